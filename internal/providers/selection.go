package providers

import (
	"fmt"

	"github.com/aura-studio/aura/internal/models"
)

// SelectionRecord explains a selection decision in caller-facing terms.
type SelectionRecord struct {
	Primary         string        `json:"primary"`
	Chain           []string      `json:"chain"`
	IsFallback      bool          `json:"is_fallback"`
	FallbackFrom    RequestedTier `json:"fallback_from,omitempty"`
	DowngradeReason string        `json:"downgrade_reason,omitempty"`
	Reason          string        `json:"reason"`
}

// Select computes the ordered provider chain for one stage. It is pure:
// the same inputs always yield the same chain, and all dynamic decisions
// are left for the call site to log.
//
// Precedence: offline policy first, then tier preference ordering, then
// the online-required filter, then dedup.
func Select(requested RequestedTier, offlineOnly bool, available []Manifest) ([]Manifest, SelectionRecord, error) {
	if !requested.Valid() {
		return nil, SelectionRecord{}, models.NewEngineError(models.CodeInvalidInput,
			fmt.Sprintf("unknown requested tier %q", requested))
	}

	effective := requested
	downgradeReason := ""
	if offlineOnly {
		switch requested {
		case RequestPro:
			return nil, SelectionRecord{}, models.NewEngineError(models.CodeOfflineViolation,
				"tier Pro requires online providers but offline_only is set")
		case RequestProIfAvailable:
			effective = RequestFree
			downgradeReason = "offline"
		}
	}

	var preference []ProviderTier
	switch effective {
	case RequestPro:
		preference = []ProviderTier{TierPro, TierLocal, TierFree}
	case RequestProIfAvailable:
		preference = []ProviderTier{TierPro, TierLocal, TierFree}
	case RequestFree:
		preference = []ProviderTier{TierFree, TierLocal}
	}

	var chain []Manifest
	seen := make(map[string]bool)
	for _, tier := range preference {
		for _, m := range available {
			if m.Tier != tier || seen[m.Name] {
				continue
			}
			if offlineOnly && m.OnlineRequired {
				continue
			}
			seen[m.Name] = true
			chain = append(chain, m)
		}
	}

	if len(chain) == 0 {
		return nil, SelectionRecord{}, models.NewEngineError(models.CodeNoProvider,
			fmt.Sprintf("no provider available for tier %s (offline_only=%v)", requested, offlineOnly))
	}

	record := SelectionRecord{
		Primary:         chain[0].Name,
		DowngradeReason: downgradeReason,
	}
	for _, m := range chain {
		record.Chain = append(record.Chain, m.Name)
	}
	if !tierSatisfies(chain[0].Tier, requested) {
		record.IsFallback = true
		record.FallbackFrom = requested
		record.Reason = fmt.Sprintf("no %s provider usable, primary is %s (%s)",
			requested, chain[0].Name, chain[0].Tier)
	} else {
		record.Reason = fmt.Sprintf("primary %s (%s) matches requested tier %s",
			chain[0].Name, chain[0].Tier, requested)
	}
	if downgradeReason != "" {
		record.IsFallback = true
		record.FallbackFrom = requested
	}
	return chain, record, nil
}

// tierSatisfies reports whether a provider of the given tier counts as the
// requested tier rather than a downgrade.
func tierSatisfies(tier ProviderTier, requested RequestedTier) bool {
	switch requested {
	case RequestPro:
		return tier == TierPro
	case RequestProIfAvailable:
		// ProIfAvailable never records a downgrade: any usable provider
		// satisfies the request.
		return true
	case RequestFree:
		return tier == TierFree || tier == TierLocal
	}
	return false
}
