// Package builtin holds the offline providers that ship with the engine.
// They guarantee every stage has at least one Free, offline-capable
// implementation, so a fully offline job can always complete.
package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/providers"
)

// RuleBasedLLM drafts a deterministic outline-style script from the brief
// without any model call.
type RuleBasedLLM struct{}

// NewRuleBasedLLM returns the rule-based script provider.
func NewRuleBasedLLM() *RuleBasedLLM { return &RuleBasedLLM{} }

// Manifest implements providers.Provider.
func (p *RuleBasedLLM) Manifest() providers.Manifest {
	return providers.Manifest{
		Name:                 "RuleBased",
		Tier:                 providers.TierFree,
		OnlineRequired:       false,
		SupportsStreaming:    true,
		SupportsCancellation: true,
	}
}

// DraftScript implements providers.LLMProvider.
func (p *RuleBasedLLM) DraftScript(ctx context.Context, brief models.Brief, plan models.PlanSpec) (string, error) {
	return p.DraftScriptStream(ctx, brief, plan, nil)
}

// DraftScriptStream implements providers.ScriptStreamer. Chunks are emitted
// per scene.
func (p *RuleBasedLLM) DraftScriptStream(ctx context.Context, brief models.Brief, plan models.PlanSpec, chunk func(string)) (string, error) {
	var b strings.Builder
	emit := func(s string) {
		b.WriteString(s)
		if chunk != nil {
			chunk(s)
		}
	}

	emit(fmt.Sprintf("# %s\n\n", brief.Topic))
	scenes := SceneCount(plan)
	for i := 1; i <= scenes; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		emit(fmt.Sprintf("## Scene %d: %s\n", i, sceneTitle(brief, i, scenes)))
		emit(sceneBody(brief, plan, i, scenes))
		emit("\n")
	}
	return b.String(), nil
}

// SceneCount derives how many scenes the plan calls for. Density sets the
// seconds-per-scene budget; pacing nudges it.
func SceneCount(plan models.PlanSpec) int {
	perScene := 10 * time.Second
	switch plan.Density {
	case models.DensitySparse:
		perScene = 15 * time.Second
	case models.DensityDense:
		perScene = 6 * time.Second
	}
	switch plan.Pacing {
	case models.PacingFast:
		perScene = perScene * 3 / 4
	case models.PacingSlow:
		perScene = perScene * 5 / 4
	}
	n := int(plan.TargetDuration / perScene)
	if n < 1 {
		n = 1
	}
	return n
}

func sceneTitle(brief models.Brief, index, total int) string {
	switch {
	case index == 1:
		return "Introduction"
	case index == total:
		return "Wrap-up"
	default:
		return fmt.Sprintf("%s, part %d", brief.Topic, index-1)
	}
}

func sceneBody(brief models.Brief, plan models.PlanSpec, index, total int) string {
	tone := brief.Tone
	if tone == "" {
		tone = "informative"
	}
	switch {
	case index == 1:
		return fmt.Sprintf("Welcome. This video covers %s in a %s style.\n", brief.Topic, tone)
	case index == total:
		return fmt.Sprintf("That completes our look at %s. Thanks for watching.\n", brief.Topic)
	default:
		return fmt.Sprintf("Key point %d about %s, paced for a %s audience.\n",
			index-1, brief.Topic, plan.Pacing)
	}
}
