package domain

import "strings"

// NormalizeStatus maps gateway vocabulary to an order status. Unknown values
// pass through lower-cased. An empty value is pending so a stored order never
// carries a blank status.
func NormalizeStatus(raw string) Status {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "success", "settled", string(StatusPaid):
		return StatusPaid
	case "expired", "cancel", "failed":
		return StatusExpired
	case "":
		return StatusPending
	default:
		return Status(value)
	}
}

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusExpired
}
