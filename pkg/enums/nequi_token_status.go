package enums

import (
	"fmt"
	"strings"
)

// NequiTokenStatus is the status reported while a wallet token awaits approval.
type NequiTokenStatus string

const (
	NequiTokenStatusPending  NequiTokenStatus = "PENDING"
	NequiTokenStatusApproved NequiTokenStatus = "APPROVED"
	NequiTokenStatusRejected NequiTokenStatus = "REJECTED"
	NequiTokenStatusError    NequiTokenStatus = "ERROR"
)

var validNequiTokenStatuses = []NequiTokenStatus{
	NequiTokenStatusPending,
	NequiTokenStatusApproved,
	NequiTokenStatusRejected,
	NequiTokenStatusError,
}

// String implements fmt.Stringer.
func (s NequiTokenStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s NequiTokenStatus) IsValid() bool {
	for _, candidate := range validNequiTokenStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether polling should stop.
func (s NequiTokenStatus) IsTerminal() bool {
	return s == NequiTokenStatusApproved || s == NequiTokenStatusRejected || s == NequiTokenStatusError
}

// ParseNequiTokenStatus converts raw input into a NequiTokenStatus.
func ParseNequiTokenStatus(value string) (NequiTokenStatus, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validNequiTokenStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid nequi token status %q", value)
}
