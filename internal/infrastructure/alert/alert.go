// Package alert delivers operator notifications. An alert is always logged;
// when a webhook is configured it is also posted there off the caller's
// goroutine. No failure here reaches the caller.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/internal/entity"
	"github.com/andreyxaxa/Ledger-Outbox/internal/infrastructure"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
)

const _defaultWebhookTimeout = 5 * time.Second

type submitter interface {
	Submit(task func(ctx context.Context)) error
}

type Notifier struct {
	webhookURL string
	http       *http.Client
	pool       submitter
	metrics    infrastructure.Recorder
	logger     logger.Interface
}

var _ infrastructure.Alerter = (*Notifier)(nil)

// New returns a notifier. With an empty webhookURL alerts are only logged.
func New(webhookURL string, pool submitter, m infrastructure.Recorder, l logger.Interface) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		http:       &http.Client{Timeout: _defaultWebhookTimeout},
		pool:       pool,
		metrics:    m,
		logger:     l,
	}
}

func (n *Notifier) Notify(_ context.Context, a entity.Alert) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error(fmt.Errorf("panic: %v", r), "Notifier - Notify")
		}
	}()

	n.log(a)
	n.metrics.AlertRaised(a.Severity)

	if n.webhookURL == "" || n.pool == nil {
		return
	}

	err := n.pool.Submit(func(ctx context.Context) {
		if err := n.post(ctx, a); err != nil {
			n.logger.Error(err, "Notifier - Notify - n.post")
		}
	})
	if err != nil {
		n.logger.Warn("Notifier - Notify - webhook skipped: %v", err)
	}
}

func (n *Notifier) log(a entity.Alert) {
	fields := make(map[string]interface{}, len(a.Fields)+2)
	for k, v := range a.Fields {
		fields[k] = v
	}

	fields["severity"] = string(a.Severity)
	fields["alert"] = true

	l := n.logger.With(fields)

	switch a.Severity {
	case entity.SeverityCritical:
		l.Error("ALERT: " + a.Title)
	case entity.SeverityWarning:
		l.Warn("ALERT: " + a.Title)
	default:
		l.Info("ALERT: " + a.Title)
	}
}

type webhookBody struct {
	Text     string            `json:"text"`
	Severity entity.Severity   `json:"severity"`
	Title    string            `json:"title"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func (n *Notifier) post(ctx context.Context, a entity.Alert) error {
	raw, err := json.Marshal(webhookBody{
		Text:     Render(a),
		Severity: a.Severity,
		Title:    a.Title,
		Fields:   a.Fields,
	})
	if err != nil {
		return fmt.Errorf("Notifier - post - json.Marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("Notifier - post - http.NewRequestWithContext: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("Notifier - post - n.http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("Notifier - post - webhook status %d", resp.StatusCode)
	}

	return nil
}

// Render formats an alert as plain text with fields sorted by key.
func Render(a entity.Alert) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "[%s] %s", a.Severity, a.Title)

	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(&buf, "\n%s: %s", k, a.Fields[k])
	}

	return buf.String()
}
