package entity

const (
	HeaderEventID       = "eventId"
	HeaderEventType     = "eventType"
	HeaderAggregateID   = "aggregateId"
	HeaderAggregateType = "aggregateType"
)

// Message is a broker-neutral outbound message.
type Message struct {
	Exchange   string
	RoutingKey string
	// Key orders messages of one aggregate where the broker supports it.
	Key     string
	Body    []byte
	Headers map[string]string
}
