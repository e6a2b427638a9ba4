package response

type OutboxStats struct {
	Init      int64 `json:"init"`
	Published int64 `json:"published"`
	SendFail  int64 `json:"send_fail"`
	Exhausted int64 `json:"exhausted"`
}

type OutboxEvent struct {
	ID            int64  `json:"id"`
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	AggregateType string `json:"aggregate_type"`
	AggregateID   string `json:"aggregate_id"`
	RetryCount    int    `json:"retry_count"`
	CreatedAt     string `json:"created_at"`
}

type ExhaustedEvents struct {
	Events []OutboxEvent `json:"events"`
}
