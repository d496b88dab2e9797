// Package script implements the drafting stage: select an LLM chain,
// draft the script with retry and fallback, validate it, and parse it
// into scenes and timed narration lines.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/outputs"
	"github.com/aura-studio/aura/internal/pipeline/core"
	"github.com/aura-studio/aura/internal/providers"
	"github.com/aura-studio/aura/internal/retry"
)

// Stage drafts and parses the script.
type Stage struct {
	logger *slog.Logger
	policy retry.Policy
}

// New creates the script stage.
func New(logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{logger: logger, policy: retry.DefaultPolicy()}
}

// WithPolicy overrides the per-provider retry policy.
func (s *Stage) WithPolicy(policy retry.Policy) *Stage {
	if policy.MaxAttempts > 0 {
		s.policy = policy
	}
	return s
}

// ID implements core.Stage.
func (s *Stage) ID() models.Stage { return models.StageScript }

// Name implements core.Stage.
func (s *Stage) Name() string { return "Draft Script" }

// Cleanup implements core.Stage.
func (s *Stage) Cleanup(context.Context) error { return nil }

// Execute implements core.Stage. Chain exhaustion fails the job: there is
// no meaningful video without a script.
func (s *Stage) Execute(ctx context.Context, state *core.State) error {
	chain, record, err := state.Chain(providers.CategoryLLM)
	if err != nil {
		return err
	}

	var script string
	var lastErr error
	for i, manifest := range chain {
		provider, ok := state.Registry.LLM(manifest.Name)
		if !ok {
			continue
		}
		state.Reporter.RecordProvider(ctx, models.StageScript, manifest.Name, record)
		if i > 0 {
			s.logger.Info("falling back to next script provider",
				slog.String("job_id", state.Job.ID),
				slog.String("provider", manifest.Name),
			)
		}

		err := state.Invoker.Invoke(ctx, manifest.Name, s.policy, func(ctx context.Context) error {
			draft, err := s.draft(ctx, provider, state)
			if err != nil {
				return err
			}
			if err := outputs.ValidateScript(draft); err != nil {
				return err
			}
			if err := validateLanguage(draft, state.Job.Brief.Language); err != nil {
				return err
			}
			script = draft
			return nil
		})
		if err == nil {
			break
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if script == "" {
		if lastErr == nil {
			lastErr = models.NewEngineError(models.CodeNoProvider, "no usable script provider in chain")
		}
		return lastErr
	}

	state.Script = script
	state.Scenes, state.Lines = Parse(script, state.Job.Plan)
	state.Reporter.ReportProgress(ctx, models.StageScript, 100,
		fmt.Sprintf("%d scenes drafted", len(state.Scenes)))
	return nil
}

// draft prefers the streaming surface so long drafts surface incremental
// progress.
func (s *Stage) draft(ctx context.Context, provider providers.LLMProvider, state *core.State) (string, error) {
	streamer, ok := provider.(providers.ScriptStreamer)
	if !ok {
		return provider.DraftScript(ctx, state.Job.Brief, state.Job.Plan)
	}

	var chunks int
	return streamer.DraftScriptStream(ctx, state.Job.Brief, state.Job.Plan, func(string) {
		chunks++
		// Streaming progress is indeterminate; sweep the first 90%.
		pct := float64(chunks * 5)
		if pct > 90 {
			pct = 90
		}
		state.Reporter.ReportProgress(ctx, models.StageScript, pct, "drafting")
	})
}

// validateLanguage is a cheap sanity check that the draft is not in an
// obviously different script family than the brief requested. It only
// rejects drafts that are entirely non-ASCII for ASCII-language briefs.
func validateLanguage(script, language string) error {
	switch strings.ToLower(language) {
	case "english", "en", "en-us", "en-gb":
	default:
		return nil
	}
	ascii := 0
	letters := 0
	for _, r := range script {
		if r < 128 && ((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			ascii++
		}
		if r >= 128 {
			letters++
		}
	}
	if ascii == 0 && letters > 0 {
		return models.NewEngineError(models.CodeInvalidOutput,
			fmt.Sprintf("draft does not match requested language %q", language))
	}
	return nil
}

// Parse splits a drafted script into scenes and timed narration lines.
// Scene durations are allocated proportionally to their text length over
// the plan's target duration; line timing divides each scene evenly.
func Parse(script string, plan models.PlanSpec) ([]models.Scene, []models.ScriptLine) {
	type rawScene struct {
		heading string
		lines   []string
		chars   int
	}

	var scenes []rawScene
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "## Scene") {
			heading := trimmed
			if _, after, ok := strings.Cut(trimmed, ":"); ok {
				heading = strings.TrimSpace(after)
			}
			scenes = append(scenes, rawScene{heading: heading})
			continue
		}
		if strings.HasPrefix(trimmed, "#") || len(scenes) == 0 {
			continue
		}
		last := &scenes[len(scenes)-1]
		last.lines = append(last.lines, trimmed)
		last.chars += len(trimmed)
	}
	if len(scenes) == 0 {
		return nil, nil
	}

	totalChars := 0
	for _, sc := range scenes {
		if sc.chars == 0 {
			sc.chars = 1
		}
		totalChars += sc.chars
	}
	if totalChars == 0 {
		totalChars = len(scenes)
	}

	var outScenes []models.Scene
	var outLines []models.ScriptLine
	cursor := time.Duration(0)
	for i, sc := range scenes {
		chars := sc.chars
		if chars == 0 {
			chars = 1
		}
		duration := time.Duration(float64(plan.TargetDuration) * float64(chars) / float64(totalChars))
		if i == len(scenes)-1 {
			duration = plan.TargetDuration - cursor
		}

		scene := models.Scene{
			Index:    i,
			Heading:  sc.heading,
			Start:    cursor,
			Duration: duration,
		}

		lineCursor := cursor
		for _, text := range sc.lines {
			lineDur := duration / time.Duration(max(len(sc.lines), 1))
			line := models.ScriptLine{
				SceneIndex: i,
				Text:       text,
				Start:      lineCursor,
				Duration:   lineDur,
			}
			scene.Narration = append(scene.Narration, line)
			outLines = append(outLines, line)
			lineCursor += lineDur
		}

		outScenes = append(outScenes, scene)
		cursor += duration
	}
	return outScenes, outLines
}
