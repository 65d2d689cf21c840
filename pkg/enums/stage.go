package enums

import "fmt"

// Stage names a checkpoint in the pipeline state machine. Stages advance
// strictly in declaration order; a run report records the last one reached.
type Stage string

const (
	StageExtracted        Stage = "extracted"
	StageValidated        Stage = "validated"
	StageDimensionsLoaded Stage = "dimensions_loaded"
	StageDatesEnsured     Stage = "dates_ensured"
	StageFactsLoaded      Stage = "facts_loaded"
	StageQualityChecked   Stage = "quality_checked"
	StageReported         Stage = "reported"
)

var orderedStages = []Stage{
	StageExtracted,
	StageValidated,
	StageDimensionsLoaded,
	StageDatesEnsured,
	StageFactsLoaded,
	StageQualityChecked,
	StageReported,
}

// String implements fmt.Stringer.
func (s Stage) String() string {
	return string(s)
}

// IsValid reports whether the value is a known Stage.
func (s Stage) IsValid() bool {
	for _, candidate := range orderedStages {
		if candidate == s {
			return true
		}
	}
	return false
}

// Ordinal returns the position of the stage in the pipeline, or -1.
func (s Stage) Ordinal() int {
	for i, candidate := range orderedStages {
		if candidate == s {
			return i
		}
	}
	return -1
}

// ParseStage converts raw input into a Stage.
func ParseStage(value string) (Stage, error) {
	for _, candidate := range orderedStages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stage %q", value)
}
