package entity

type OutboxStatus string

const (
	OutboxInit      OutboxStatus = "INIT"
	OutboxPublished OutboxStatus = "PUBLISHED"
	OutboxSendFail  OutboxStatus = "SEND_FAIL"
)

// CanTransitionTo reports whether s may move to next.
// PUBLISHED is terminal; SEND_FAIL may repeat with a retry increment.
func (s OutboxStatus) CanTransitionTo(next OutboxStatus) bool {
	switch s {
	case OutboxInit:
		return next == OutboxPublished || next == OutboxSendFail
	case OutboxSendFail:
		return next == OutboxPublished || next == OutboxSendFail
	default:
		return false
	}
}

// Publishable lists the source states from which a row may be published or failed.
func Publishable() []OutboxStatus {
	return []OutboxStatus{OutboxInit, OutboxSendFail}
}
