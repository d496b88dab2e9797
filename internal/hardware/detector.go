// Package hardware detects host capabilities at startup. The resulting
// SystemProfile drives default render quality and visual generation
// concurrency.
package hardware

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/aura-studio/aura/internal/models"
)

const probeTimeout = 5 * time.Second

var (
	profileCache     models.SystemProfile
	profileCacheOnce sync.Once
)

// Detect returns the host SystemProfile. The result is cached since host
// topology does not change at runtime.
func Detect(ctx context.Context) models.SystemProfile {
	profileCacheOnce.Do(func() {
		profileCache = detect(ctx)
	})
	return profileCache
}

func detect(ctx context.Context) models.SystemProfile {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	profile := models.SystemProfile{
		LogicalCores:  runtime.NumCPU(),
		PhysicalCores: runtime.NumCPU(),
	}

	if logical, err := cpu.CountsWithContext(ctx, true); err == nil && logical > 0 {
		profile.LogicalCores = logical
	}
	if physical, err := cpu.CountsWithContext(ctx, false); err == nil && physical > 0 {
		profile.PhysicalCores = physical
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		profile.RAMGiB = int(vm.Total / (1 << 30))
	} else {
		slog.Debug("failed to read memory info, assuming minimal host",
			slog.String("error", err.Error()),
		)
	}

	profile.GPU = probeGPU(ctx)
	profile.Tier = models.DeriveTier(profile.LogicalCores, profile.RAMGiB, profile.GPU != nil)

	slog.Info("detected system profile",
		slog.Int("logical_cores", profile.LogicalCores),
		slog.Int("physical_cores", profile.PhysicalCores),
		slog.Int("ram_gib", profile.RAMGiB),
		slog.Bool("gpu", profile.GPU != nil),
		slog.String("tier", string(profile.Tier)),
	)
	return profile
}

// probeGPU shells out to nvidia-smi. Returns nil when no usable GPU is
// found; detection failure is never fatal.
func probeGPU(ctx context.Context) *models.GPUDescriptor {
	path, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return nil
	}

	cmd := exec.CommandContext(ctx, path,
		"--query-gpu=name,memory.total", "--format=csv,noheader,nounits")
	out, err := cmd.Output()
	if err != nil {
		slog.Debug("nvidia-smi probe failed", slog.String("error", err.Error()))
		return nil
	}

	line := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if line == "" {
		return nil
	}
	desc := parseNvidiaSMILine(line)
	if desc != nil {
		slog.Debug("detected GPU",
			slog.String("model", desc.Model),
			slog.Int("vram_gib", desc.VRAMGiB),
		)
	}
	return desc
}

func parseNvidiaSMILine(line string) *models.GPUDescriptor {
	name, memMiB, ok := strings.Cut(line, ",")
	if !ok {
		return nil
	}
	desc := &models.GPUDescriptor{
		Vendor:   "NVIDIA",
		Model:    strings.TrimSpace(name),
		HWEncode: true,
	}
	if mib, err := strconv.Atoi(strings.TrimSpace(memMiB)); err == nil {
		desc.VRAMGiB = mib / 1024
	}
	return desc
}
