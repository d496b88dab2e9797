// Package outputs performs structural validation of stage artifacts.
// Invalid outputs are classified as retryable so the producing provider
// consumes retry budget before fallback.
package outputs

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/aura-studio/aura/internal/models"
)

const (
	// MinAudioBytes is the smallest plausible narration file (header + a few
	// samples).
	MinAudioBytes = 128
	// MinImageBytes is the smallest plausible visual asset.
	MinImageBytes = 64
	// sceneMarker is the heading prefix the script drafters emit.
	sceneMarker = "## Scene"
)

func invalid(format string, args ...any) error {
	return models.NewEngineError(models.CodeInvalidOutput, fmt.Sprintf(format, args...))
}

// ValidateScript checks a drafted script: non-empty, printable, and at
// least one scene marker.
func ValidateScript(script string) error {
	trimmed := strings.TrimSpace(script)
	if trimmed == "" {
		return models.NewEngineError(models.CodeEmptyOutput, "script is empty")
	}
	for _, r := range trimmed {
		if r == '\n' || r == '\r' || r == '\t' {
			continue
		}
		if !unicode.IsPrint(r) {
			return invalid("script contains non-printable character %U", r)
		}
	}
	if !strings.Contains(trimmed, sceneMarker) {
		return invalid("script has no scene headings")
	}
	return nil
}

// ValidateAudio checks a narration file: exists, non-trivial size, and a
// WAV or MP3 container header.
func ValidateAudio(path string) error {
	head, size, err := readHead(path, 12)
	if err != nil {
		return err
	}
	if size < MinAudioBytes {
		return invalid("audio file %s is too small (%d bytes)", path, size)
	}
	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return nil
	case len(head) >= 3 && bytes.Equal(head[0:3], []byte("ID3")):
		return nil
	case len(head) >= 2 && head[0] == 0xff && head[1]&0xe0 == 0xe0:
		// Raw MPEG audio frame sync.
		return nil
	}
	return invalid("audio file %s has an unrecognized container header", path)
}

// ValidateImage checks a visual asset: exists, non-trivial size, and a
// JPEG, PNG, or WebP signature.
func ValidateImage(path string) error {
	head, size, err := readHead(path, 12)
	if err != nil {
		return err
	}
	if size < MinImageBytes {
		return invalid("image file %s is too small (%d bytes)", path, size)
	}
	switch {
	case len(head) >= 3 && bytes.Equal(head[0:3], []byte{0xff, 0xd8, 0xff}):
		return nil // JPEG
	case len(head) >= 8 && bytes.Equal(head[0:8], []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}):
		return nil // PNG
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")):
		return nil // WebP
	}
	return invalid("image file %s has an unrecognized signature", path)
}

// ValidateVideo checks the final render: exists, signature matches the
// container, and size is plausible for duration and bitrate.
func ValidateVideo(path string, container models.Container, duration time.Duration, videoKbps int) error {
	head, size, err := readHead(path, 12)
	if err != nil {
		return err
	}

	switch container {
	case models.ContainerMP4:
		if len(head) < 12 || !bytes.Equal(head[4:8], []byte("ftyp")) {
			return invalid("video file %s is not an MP4 container", path)
		}
	case models.ContainerMKV, models.ContainerWebM:
		if len(head) < 4 || !bytes.Equal(head[0:4], []byte{0x1a, 0x45, 0xdf, 0xa3}) {
			return invalid("video file %s is not a Matroska container", path)
		}
	default:
		return invalid("unknown container %q", container)
	}

	if min := minVideoBytes(duration, videoKbps); size < min {
		return invalid("video file %s is %d bytes, below the %d byte floor for %s at %d kbps",
			path, size, min, duration, videoKbps)
	}
	return nil
}

// minVideoBytes is a conservative lower bound: a tenth of the nominal
// stream size, floored at 1 KiB.
func minVideoBytes(duration time.Duration, videoKbps int) int64 {
	nominal := int64(duration.Seconds()) * int64(videoKbps) * 1000 / 8
	min := nominal / 10
	if min < 1024 {
		min = 1024
	}
	return min
}

func readHead(path string, n int) ([]byte, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, models.WrapEngineError(models.CodeInvalidOutput,
			fmt.Sprintf("output file %s is missing", path), err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, models.WrapEngineError(models.CodeInvalidOutput,
			fmt.Sprintf("output file %s cannot be opened", path), err)
	}
	defer f.Close()

	head := make([]byte, n)
	read, _ := f.Read(head)
	return head[:read], info.Size(), nil
}
