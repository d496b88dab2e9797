// Package validate performs the single-pass pre-generation check: spec
// shape, provider availability under policy, encoder reachability, and
// resource preconditions.
package validate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/providers"
)

// Request is a submission about to become a job.
type Request struct {
	Brief       models.Brief
	Plan        models.PlanSpec
	Voice       models.VoiceSpec
	Render      models.RenderSpec
	OfflineOnly bool
	Tier        providers.RequestedTier
}

// Issue is one fatal validation finding.
type Issue struct {
	Stage   models.Stage     `json:"stage,omitempty"`
	Code    models.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// Result is the outcome of a validation pass.
type Result struct {
	IsValid  bool     `json:"is_valid"`
	Issues   []Issue  `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Err converts a failed result into the error for its most severe issue.
// Severity follows issue order: the first issue found wins, except an
// offline policy violation always dominates.
func (r Result) Err() error {
	if r.IsValid || len(r.Issues) == 0 {
		return nil
	}
	top := r.Issues[0]
	for _, issue := range r.Issues {
		if issue.Code == models.CodeOfflineViolation {
			top = issue
			break
		}
	}
	return models.NewEngineError(top.Code, top.Message)
}

// EncoderProbe reports whether the external encoder is reachable. The
// composer's binary detector caches the underlying probe for the process
// lifetime.
type EncoderProbe func(ctx context.Context) error

// Validator runs pre-generation checks.
type Validator struct {
	registry *providers.Registry
	probe    EncoderProbe
	workDir  string
	logger   *slog.Logger
}

// New creates a validator. probe may be nil to skip encoder reachability
// (tests); workDir is the volume checked for free space.
func New(registry *providers.Registry, probe EncoderProbe, workDir string, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		registry: registry,
		probe:    probe,
		workDir:  workDir,
		logger:   logger,
	}
}

// Validate runs the full pass. Fatal issues prevent job creation; warnings
// ride along on the accepted job.
func (v *Validator) Validate(ctx context.Context, req Request) Result {
	var result Result

	v.checkSpecs(req, &result)
	if len(result.Issues) == 0 {
		v.checkProviders(req, &result)
		v.checkEncoder(ctx, &result)
		v.checkDiskSpace(ctx, req, &result)
	}

	result.IsValid = len(result.Issues) == 0
	return result
}

func (v *Validator) checkSpecs(req Request, result *Result) {
	addIssue := func(err error) {
		if err != nil {
			result.Issues = append(result.Issues, Issue{
				Code:    models.CodeOf(err),
				Message: err.Error(),
			})
		}
	}
	addIssue(req.Brief.Validate())
	addIssue(req.Plan.Validate())
	addIssue(req.Voice.Validate())
	addIssue(req.Render.Validate())
	if !req.Tier.Valid() {
		result.Issues = append(result.Issues, Issue{
			Code:    models.CodeInvalidInput,
			Message: fmt.Sprintf("unknown tier %q", req.Tier),
		})
	}
}

// checkProviders verifies each stage has a usable chain. Script and
// render must have one; absent voice or image providers degrade to a
// warning since the pipeline substitutes safe defaults.
func (v *Validator) checkProviders(req Request, result *Result) {
	type categoryCheck struct {
		category providers.Category
		stage    models.Stage
		required bool
	}
	checks := []categoryCheck{
		{providers.CategoryLLM, models.StageScript, true},
		{providers.CategoryTTS, models.StageVoice, false},
		{providers.CategoryImage, models.StageVisuals, false},
		{providers.CategoryEncoder, models.StageRender, true},
	}

	for _, check := range checks {
		_, _, err := providers.Select(req.Tier, req.OfflineOnly, v.registry.Manifests(check.category))
		if err == nil {
			continue
		}
		if check.required || models.CodeOf(err) == models.CodeOfflineViolation {
			result.Issues = append(result.Issues, Issue{
				Stage:   check.stage,
				Code:    models.CodeOf(err),
				Message: fmt.Sprintf("stage %s: %v", check.stage, err),
			})
			continue
		}
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no %s provider for stage %s, output will be degraded", check.category, check.stage))
	}
}

func (v *Validator) checkEncoder(ctx context.Context, result *Result) {
	if v.probe == nil {
		return
	}
	if err := v.probe(ctx); err != nil {
		result.Issues = append(result.Issues, Issue{
			Stage:   models.StageRender,
			Code:    models.CodeEncoderFailure,
			Message: fmt.Sprintf("encoder unavailable: %v", err),
		})
	}
}

// codecFactor approximates bytes per pixel-frame for sizing estimates.
var codecFactor = map[models.VideoCodec]float64{
	models.CodecH264: 0.08,
	models.CodecVP9:  0.06,
	models.CodecAV1:  0.05,
}

// EstimateOutputBytes is a rough lower bound for the final file size.
func EstimateOutputBytes(render models.RenderSpec, plan models.PlanSpec) uint64 {
	factor, ok := codecFactor[render.Codec]
	if !ok {
		factor = 0.08
	}
	pixelsPerSecond := float64(render.Width) * float64(render.Height) * float64(render.FPS)
	return uint64(pixelsPerSecond * plan.TargetDuration.Seconds() * factor / 8)
}

// checkDiskSpace warns (never fails) when the working volume looks too
// small for the expected output plus intermediates.
func (v *Validator) checkDiskSpace(ctx context.Context, req Request, result *Result) {
	if v.workDir == "" {
		return
	}
	usage, err := disk.UsageWithContext(ctx, v.workDir)
	if err != nil {
		v.logger.Debug("disk usage probe failed",
			slog.String("path", v.workDir),
			slog.String("error", err.Error()),
		)
		return
	}

	// Intermediates roughly double the footprint.
	needed := EstimateOutputBytes(req.Render, req.Plan) * 2
	if usage.Free < needed {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"low disk space on %s: %d MiB free, expected output needs about %d MiB",
			v.workDir, usage.Free/(1<<20), needed/(1<<20)))
	}
}
