package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]Status{
		"success":   StatusPaid,
		"SETTLED":   StatusPaid,
		"paid":      StatusPaid,
		"expired":   StatusExpired,
		"cancel":    StatusExpired,
		"Failed":    StatusExpired,
		"pending":   StatusPending,
		"":          StatusPending,
		" Waiting ": Status("waiting"),
		"cancelled": Status("cancelled"),
		"Canceled":  Status("canceled"),
	}
	for raw, want := range tests {
		assert.Equal(t, want, NormalizeStatus(raw), "raw=%q", raw)
	}
}

func TestNormalizeStatusIsIdempotent(t *testing.T) {
	for _, raw := range []string{"success", "settled", "expired", "cancel", "failed", "pending", "processing", "PAID"} {
		once := NormalizeStatus(raw)
		if twice := NormalizeStatus(string(once)); twice != once {
			t.Fatalf("normalize(%q): %q then %q", raw, once, twice)
		}
	}
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusPaid.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, Status("processing").IsTerminal())
}

func TestNormalizeTierCode(t *testing.T) {
	assert.Equal(t, TierUnlimited, NormalizeTierCode("Unlimited"))
	assert.Equal(t, TierUnlimited, NormalizeTierCode("unli"))
	assert.Equal(t, TierCode("2gb"), NormalizeTierCode(" 2GB "))
}
