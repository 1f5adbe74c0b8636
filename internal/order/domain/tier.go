package domain

import "strings"

// TierCode names a resource bundle sold by the store, e.g. "2gb" or "unli".
type TierCode string

const TierUnlimited TierCode = "unli"

// ResourceLimits is the server resource tuple for a tier. Zero means no cap.
type ResourceLimits struct {
	MemoryMB   int `json:"memory_mb"`
	DiskMB     int `json:"disk_mb"`
	CPUPercent int `json:"cpu_percent"`
}

func (l ResourceLimits) Unlimited() bool {
	return l.MemoryMB == 0 && l.DiskMB == 0 && l.CPUPercent == 0
}

type Tier struct {
	Code   TierCode       `json:"code"`
	Label  string         `json:"label"`
	Price  int64          `json:"price"`
	Limits ResourceLimits `json:"limits"`
}

// TierCatalog resolves tiers by code. Implementations must never fall back to
// a default tier for unknown codes.
type TierCatalog interface {
	Lookup(code TierCode) (Tier, bool)
	List() []Tier
}

// NormalizeTierCode lower-cases the code and folds the "unlimited" alias.
func NormalizeTierCode(raw string) TierCode {
	code := strings.ToLower(strings.TrimSpace(raw))
	if code == "unlimited" {
		return TierUnlimited
	}
	return TierCode(code)
}
