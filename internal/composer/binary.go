// Package composer drives the external video encoder: binary detection,
// render command planning, subprocess supervision, and progress parsing.
package composer

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/util"
)

// BinaryInfo describes the detected encoder installation.
type BinaryInfo struct {
	Path         string `json:"path"`
	Version      string `json:"version"`
	MajorVersion int    `json:"major_version"`
	MinorVersion int    `json:"minor_version"`
}

// BinaryDetector locates the ffmpeg binary and probes its version. The
// result is cached for the process lifetime; Clear forces a re-probe.
type BinaryDetector struct {
	mu   sync.Mutex
	info *BinaryInfo
	err  error
	done bool
}

// NewBinaryDetector creates an empty detector.
func NewBinaryDetector() *BinaryDetector {
	return &BinaryDetector{}
}

// Detect locates ffmpeg and runs a version probe. Search order:
// AURA_FFMPEG_BINARY env var, ./ffmpeg, then PATH.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.done {
		return d.info, d.err
	}

	d.info, d.err = d.detect(ctx)
	d.done = true
	return d.info, d.err
}

// Clear drops the cached probe result.
func (d *BinaryDetector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = nil
	d.err = nil
	d.done = false
}

var versionRe = regexp.MustCompile(`ffmpeg version (\S+)`)

func (d *BinaryDetector) detect(ctx context.Context) (*BinaryInfo, error) {
	path, err := util.FindBinary("ffmpeg", "AURA_FFMPEG_BINARY")
	if err != nil {
		return nil, models.WrapEngineError(models.CodeEncoderFailure, "encoder binary not found", err)
	}

	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return nil, models.WrapEngineError(models.CodeEncoderFailure,
			fmt.Sprintf("encoder at %s failed version probe", path), err)
	}

	info := &BinaryInfo{Path: path}
	if m := versionRe.FindStringSubmatch(string(out)); len(m) > 1 {
		info.Version = m[1]
		info.MajorVersion, info.MinorVersion = parseMajorMinor(m[1])
	}
	return info, nil
}

func parseMajorMinor(version string) (int, int) {
	parts := strings.SplitN(version, ".", 3)
	major := 0
	minor := 0
	if len(parts) > 0 {
		major, _ = strconv.Atoi(strings.TrimFunc(parts[0], func(r rune) bool {
			return r < '0' || r > '9'
		}))
	}
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(strings.TrimFunc(parts[1], func(r rune) bool {
			return r < '0' || r > '9'
		}))
	}
	return major, minor
}
