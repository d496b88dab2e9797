// Package visuals implements the asset generation stage. Scenes are
// rendered by a bounded-concurrency workgroup; when no image provider is
// usable the stage substitutes placeholder frames instead of failing.
package visuals

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/outputs"
	"github.com/aura-studio/aura/internal/pipeline/core"
	"github.com/aura-studio/aura/internal/providers"
	"github.com/aura-studio/aura/internal/providers/builtin"
	"github.com/aura-studio/aura/internal/retry"
)

// Stage generates one visual asset per scene.
type Stage struct {
	logger *slog.Logger
	policy retry.Policy
}

// New creates the visuals stage.
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
func (s *Stage) ID() models.Stage { return models.StageVisuals }

// Name implements core.Stage.
func (s *Stage) Name() string { return "Generate Visuals" }

// Cleanup implements core.Stage.
func (s *Stage) Cleanup(context.Context) error { return nil }

// workers bounds the asset workgroup at min(4, cores).
func workers() int {
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Execute implements core.Stage.
func (s *Stage) Execute(ctx context.Context, state *core.State) error {
	if len(state.Scenes) == 0 {
		state.Reporter.ReportProgress(ctx, models.StageVisuals, 100, "no scenes")
		return nil
	}

	chain, record, chainErr := state.Chain(providers.CategoryImage)
	if chainErr != nil {
		if models.CodeOf(chainErr) == models.CodeOfflineViolation {
			return chainErr
		}
		// Graceful degradation: placeholders for every scene.
		chain = nil
		state.Reporter.ReportWarning(ctx, models.StageVisuals,
			"no image provider available under policy, using placeholder visuals")
	}

	total := len(state.Scenes)
	var (
		mu        sync.Mutex
		done      int
		degraded  int
		assets    = make(map[int]string, total)
		wg        sync.WaitGroup
		sem       = make(chan struct{}, workers())
		recorded  bool
		fatalOnce sync.Once
		fatal     error
	)

	for _, scene := range state.Scenes {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(scene models.Scene) {
			defer wg.Done()
			defer func() { <-sem }()

			path, usedProvider, err := s.generateScene(ctx, state, chain, scene)
			if err != nil {
				fatalOnce.Do(func() { fatal = err })
				return
			}

			mu.Lock()
			assets[scene.Index] = path
			if usedProvider != "" && !recorded {
				recorded = true
				state.Reporter.RecordProvider(ctx, models.StageVisuals, usedProvider, record)
			}
			if usedProvider == "" {
				degraded++
			}
			done++
			current := done
			mu.Unlock()

			state.Reporter.ReportItemProgress(ctx, models.StageVisuals, current, total, scene.Heading)
			state.Reporter.ReportProgress(ctx, models.StageVisuals,
				float64(current)/float64(total)*100,
				fmt.Sprintf("scene %d of %d", current, total))
		}(scene)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if fatal != nil {
		return fatal
	}

	for index, path := range assets {
		state.SceneAssets[index] = path
	}
	if degraded > 0 && chain != nil {
		state.Reporter.ReportWarning(ctx, models.StageVisuals,
			fmt.Sprintf("%d of %d scenes use placeholder visuals after provider failures", degraded, total))
	}
	return nil
}

// generateScene tries the chain for one scene, then falls back to a
// placeholder. The returned provider name is empty for placeholders.
// Only cancellation is a fatal error.
func (s *Stage) generateScene(ctx context.Context, state *core.State, chain []providers.Manifest, scene models.Scene) (string, string, error) {
	for _, manifest := range chain {
		provider, ok := state.Registry.Image(manifest.Name)
		if !ok {
			continue
		}

		var path string
		err := state.Invoker.Invoke(ctx, manifest.Name, s.policy, func(ctx context.Context) error {
			out, err := provider.GenerateAsset(ctx, scene, state.Job.Render, state.Scope.Root())
			if err != nil {
				return err
			}
			if err := outputs.ValidateImage(out); err != nil {
				return err
			}
			path = out
			return nil
		})
		if err == nil {
			state.Scope.Register(path)
			return path, manifest.Name, nil
		}
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		s.logger.Warn("image provider failed for scene",
			slog.String("job_id", state.Job.ID),
			slog.String("provider", manifest.Name),
			slog.Int("scene", scene.Index),
			slog.String("error", err.Error()),
		)
	}

	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	path := fmt.Sprintf("%s/placeholder-%03d.png", state.Scope.Root(), scene.Index)
	if err := builtin.WritePlaceholderPNG(path, scene.Index, state.Job.Render.Width, state.Job.Render.Height); err != nil {
		return "", "", models.WrapEngineError(models.CodeProviderFailure, "writing placeholder visual", err)
	}
	state.Scope.Register(path)
	return path, "", nil
}
