package models

// HardwareTier classifies the host machine for default quality gating.
type HardwareTier string

const (
	TierS HardwareTier = "S"
	TierA HardwareTier = "A"
	TierB HardwareTier = "B"
	TierC HardwareTier = "C"
	TierD HardwareTier = "D"
)

// GPUDescriptor describes a detected GPU, if any.
type GPUDescriptor struct {
	Vendor   string `json:"vendor"`
	Model    string `json:"model"`
	VRAMGiB  int    `json:"vram_gib,omitempty"`
	HWEncode bool   `json:"hw_encode"`
}

// SystemProfile is a snapshot of host capabilities taken at startup.
type SystemProfile struct {
	LogicalCores  int            `json:"logical_cores"`
	PhysicalCores int            `json:"physical_cores"`
	RAMGiB        int            `json:"ram_gib"`
	GPU           *GPUDescriptor `json:"gpu,omitempty"`
	Tier          HardwareTier   `json:"tier"`
}

// DeriveTier classifies the profile. GPU presence lifts the result by one
// band since the encoder can offload.
func DeriveTier(logicalCores, ramGiB int, hasGPU bool) HardwareTier {
	var tier HardwareTier
	switch {
	case logicalCores >= 16 && ramGiB >= 32:
		tier = TierA
	case logicalCores >= 8 && ramGiB >= 16:
		tier = TierB
	case logicalCores >= 4 && ramGiB >= 8:
		tier = TierC
	default:
		tier = TierD
	}
	if hasGPU {
		switch tier {
		case TierA:
			tier = TierS
		case TierB:
			tier = TierA
		case TierC:
			tier = TierB
		case TierD:
			tier = TierC
		}
	}
	return tier
}

// DefaultQuality returns the default render quality level for a tier.
func (t HardwareTier) DefaultQuality() int {
	switch t {
	case TierS:
		return 90
	case TierA:
		return 80
	case TierB:
		return 70
	case TierC:
		return 60
	default:
		return 50
	}
}
