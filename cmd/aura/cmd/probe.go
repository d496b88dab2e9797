package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aura-studio/aura/internal/composer"
	"github.com/aura-studio/aura/internal/hardware"
	"github.com/aura-studio/aura/internal/models"
)

// probeCmd represents the probe command.
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe hardware and encoder availability",
	Long: `Probe the host system and the video encoder binary.

This command detects CPU, memory, and GPU resources, classifies the host
into a hardware tier, and locates the ffmpeg binary. The results are
printed as JSON.

Examples:
  # Basic probe (JSON output)
  aura probe

  # Pretty-printed JSON
  aura probe --pretty

  # Output to file
  aura probe > profile.json`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().Bool("pretty", false, "pretty-print JSON output")
	probeCmd.Flags().Duration("timeout", 30*time.Second, "probe timeout")
}

// EncoderInfo describes the detected encoder binary.
type EncoderInfo struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ProbeResult contains the full probe output.
type ProbeResult struct {
	Hardware models.SystemProfile `json:"hardware"`
	Encoder  EncoderInfo          `json:"encoder"`
}

func runProbe(cmd *cobra.Command, _ []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	pretty, _ := cmd.Flags().GetBool("pretty")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result := ProbeResult{
		Hardware: hardware.Detect(ctx),
	}

	detector := composer.NewBinaryDetector()
	if info, err := detector.Detect(ctx); err != nil {
		result.Encoder = EncoderInfo{Error: err.Error()}
	} else {
		result.Encoder = EncoderInfo{
			Available: true,
			Path:      info.Path,
			Version:   info.Version,
		}
	}

	var (
		output []byte
		err    error
	)
	if pretty {
		output, err = json.MarshalIndent(result, "", "  ")
	} else {
		output, err = json.Marshal(result)
	}
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	fmt.Fprintln(os.Stdout, string(output))
	return nil
}
