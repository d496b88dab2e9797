package composer

import (
	"fmt"
	"strings"

	"github.com/aura-studio/aura/internal/models"
)

// videoEncoders maps the declared codec to the software encoder name.
var videoEncoders = map[models.VideoCodec]string{
	models.CodecH264: "libx264",
	models.CodecVP9:  "libvpx-vp9",
	models.CodecAV1:  "libaom-av1",
}

// audioEncoderFor picks the audio encoder compatible with the container.
func audioEncoderFor(container models.Container) string {
	if container == models.ContainerWebM {
		return "libopus"
	}
	return "aac"
}

// CommandPlan is a fully resolved encoder invocation.
type CommandPlan struct {
	Binary     string
	Args       []string
	OutputPath string
}

// String renders the plan for logging.
func (p *CommandPlan) String() string {
	return p.Binary + " " + strings.Join(p.Args, " ")
}

// BuildCommandPlan translates a timeline and render spec into encoder
// arguments: one looped still input per scene, the narration track, a
// concat filter, and the codec settings from the spec.
func BuildCommandPlan(binary string, timeline models.Timeline, spec models.RenderSpec, outputPath string) (*CommandPlan, error) {
	encoder, ok := videoEncoders[spec.Codec]
	if !ok {
		return nil, models.NewEngineError(models.CodeInvalidInput,
			fmt.Sprintf("no encoder for codec %q", spec.Codec))
	}
	if len(timeline.Scenes) == 0 {
		return nil, models.NewEngineError(models.CodeInvalidInput, "timeline has no scenes")
	}

	args := []string{"-hide_banner", "-y"}

	for _, scene := range timeline.Scenes {
		args = append(args,
			"-loop", "1",
			"-t", fmt.Sprintf("%.3f", scene.Duration.Seconds()),
			"-i", scene.AssetPath,
		)
	}

	audioIndex := -1
	if timeline.NarrationPath != "" {
		audioIndex = len(timeline.Scenes)
		args = append(args, "-i", timeline.NarrationPath)
	}

	args = append(args, "-filter_complex", buildConcatFilter(timeline, spec))
	args = append(args, "-map", "[vout]")
	if audioIndex >= 0 {
		args = append(args, "-map", fmt.Sprintf("%d:a", audioIndex))
	}

	gop := 2 * spec.FPS
	args = append(args,
		"-c:v", encoder,
		"-b:v", fmt.Sprintf("%dk", spec.VideoKbps),
		"-r", fmt.Sprintf("%d", spec.FPS),
		"-g", fmt.Sprintf("%d", gop),
		"-pix_fmt", "yuv420p",
	)
	if !spec.EnableSceneCut {
		// Keyframes stay on the fixed GOP grid.
		args = append(args, "-sc_threshold", "0")
	}
	if audioIndex >= 0 {
		args = append(args,
			"-c:a", audioEncoderFor(spec.Container),
			"-b:a", fmt.Sprintf("%dk", spec.AudioKbps),
		)
		args = append(args, "-shortest")
	}
	args = append(args,
		"-t", fmt.Sprintf("%.3f", timeline.TotalDuration.Seconds()),
		"-progress", "pipe:2",
		outputPath,
	)

	return &CommandPlan{Binary: binary, Args: args, OutputPath: outputPath}, nil
}

// buildConcatFilter scales every scene input to the output resolution and
// concatenates them in timeline order.
func buildConcatFilter(timeline models.Timeline, spec models.RenderSpec) string {
	var b strings.Builder
	for i := range timeline.Scenes {
		fmt.Fprintf(&b, "[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d[v%d];",
			i, spec.Width, spec.Height, spec.Width, spec.Height, spec.FPS, i)
	}
	for i := range timeline.Scenes {
		fmt.Fprintf(&b, "[v%d]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1:a=0[vout]", len(timeline.Scenes))
	return b.String()
}
