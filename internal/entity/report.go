package entity

// OutboxStats is a point-in-time view of the outbox backlog.
type OutboxStats struct {
	Counts    map[OutboxStatus]int64 `json:"counts"`
	Exhausted int64                  `json:"exhausted"`
}

// Reconciliation outcomes per audited payment.
const (
	OutcomeCanceled = "canceled"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
	OutcomeError    = "error"
)

type ReconcileReport struct {
	Audited  int `json:"audited"`
	Canceled int `json:"canceled"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

func (r *ReconcileReport) Add(outcome string) {
	r.Audited++

	switch outcome {
	case OutcomeCanceled:
		r.Canceled++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Errors++
	}
}
