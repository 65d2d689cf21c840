package enums

import "fmt"

// RunStatus is the overall outcome of a pipeline run.
type RunStatus string

const (
	RunStatusClean    RunStatus = "clean"
	RunStatusDegraded RunStatus = "degraded"
	RunStatusFailed   RunStatus = "failed"
)

var validRunStatuses = []RunStatus{
	RunStatusClean,
	RunStatusDegraded,
	RunStatusFailed,
}

// String implements fmt.Stringer.
func (r RunStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RunStatus.
func (r RunStatus) IsValid() bool {
	for _, candidate := range validRunStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRunStatus converts raw input into a RunStatus.
func ParseRunStatus(value string) (RunStatus, error) {
	for _, candidate := range validRunStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid run status %q", value)
}
