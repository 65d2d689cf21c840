package pipeline

import (
	"time"

	"github.com/starlift/starlift/internal/quality"
	"github.com/starlift/starlift/internal/validate"
	"github.com/starlift/starlift/pkg/enums"
)

// EntityCounts tracks what happened to one entity type during a run.
type EntityCounts struct {
	Extracted int `json:"extracted"`
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	Loaded    int `json:"loaded"`
	Failed    int `json:"failed"`
}

// Report is the final account of one pipeline run. It is persisted to Redis
// so operators can inspect recent runs without warehouse access.
type Report struct {
	RunID      string    `json:"run_id"`
	BatchID    string    `json:"batch_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Stage is the last checkpoint the run completed.
	Stage  enums.Stage     `json:"stage"`
	Status enums.RunStatus `json:"status"`

	Entities     map[enums.EntityType]*EntityCounts `json:"entities"`
	Deduplicated int                                `json:"deduplicated"`
	DatesEnsured int                                `json:"dates_ensured"`

	Rejections  []validate.Rejection `json:"rejections,omitempty"`
	ErrorCounts map[string]int       `json:"error_counts,omitempty"`

	Quality *quality.Summary `json:"quality,omitempty"`

	Error string `json:"error,omitempty"`
}

func newReport(runID, batchID string) *Report {
	report := &Report{
		RunID:       runID,
		BatchID:     batchID,
		StartedAt:   time.Now().UTC(),
		Status:      enums.RunStatusClean,
		Entities:    make(map[enums.EntityType]*EntityCounts),
		ErrorCounts: make(map[string]int),
	}
	for _, entity := range []enums.EntityType{
		enums.EntityTypeCustomer,
		enums.EntityTypeProduct,
		enums.EntityTypeOrder,
		enums.EntityTypePayment,
	} {
		report.Entities[entity] = &EntityCounts{}
	}
	return report
}

func (r *Report) entity(entity enums.EntityType) *EntityCounts {
	counts, ok := r.Entities[entity]
	if !ok {
		counts = &EntityCounts{}
		r.Entities[entity] = counts
	}
	return counts
}

func (r *Report) countError(code string) {
	r.ErrorCounts[code]++
}

// Degraded reports whether any record was rejected or failed.
func (r *Report) Degraded() bool {
	if len(r.Rejections) > 0 {
		return true
	}
	for _, counts := range r.Entities {
		if counts.Failed > 0 || counts.Rejected > 0 {
			return true
		}
	}
	return false
}
