package entity

type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is an operator notification.
type Alert struct {
	Severity Severity          `json:"severity"`
	Title    string            `json:"title"`
	Fields   map[string]string `json:"fields,omitempty"`
}
