// Package notify delivers rule-triggered notifications.
//
// Dispatchers implement the rule engine's Dispatcher interface. The webhook
// dispatcher POSTs a JSON payload to a configured endpoint; the log
// dispatcher writes structured log records and exists for development and
// as a fallback when no webhook is configured.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cinderhouse/watchkeeper/internal/types"
)

// defaultTimeout bounds a single webhook delivery.
const defaultTimeout = 10 * time.Second

// payload is the webhook body for a notification.
type payload struct {
	EventID   types.EventID   `json:"event_id"`
	ProjectID types.ProjectID `json:"project_id"`
	GroupID   types.GroupID   `json:"group_id,omitempty"`
	Message   string          `json:"message"`
	Logger    string          `json:"logger,omitempty"`
	Level     types.Level     `json:"level,omitempty"`
	TimesSeen int             `json:"times_seen"`
	Timestamp time.Time       `json:"timestamp"`
}

// WebhookDispatcher delivers notifications as JSON POSTs.
type WebhookDispatcher struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewWebhookDispatcher creates a dispatcher targeting url. A nil client
// gets a default with a 10 second timeout.
func NewWebhookDispatcher(url string, client *http.Client, log *slog.Logger) *WebhookDispatcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if log == nil {
		log = slog.Default()
	}
	return &WebhookDispatcher{url: url, client: client, log: log}
}

// Notify implements the Dispatcher interface. Non-2xx responses and
// transport failures wrap types.ErrDispatchFailed.
func (d *WebhookDispatcher) Notify(ctx context.Context, event *types.Event) error {
	body, err := json.Marshal(payload{
		EventID:   event.ID,
		ProjectID: event.ProjectID,
		GroupID:   event.GroupID,
		Message:   event.Message,
		Logger:    event.Logger,
		Level:     event.Level,
		TimesSeen: event.TimesSeen,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", types.ErrDispatchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", types.ErrDispatchFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrDispatchFailed, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook returned %d", types.ErrDispatchFailed, resp.StatusCode)
	}

	d.log.Debug("notification delivered",
		"event_id", event.ID,
		"project_id", event.ProjectID,
		"status", resp.StatusCode)
	return nil
}

// LogDispatcher writes notifications to the structured log.
type LogDispatcher struct {
	log *slog.Logger
}

// NewLogDispatcher creates a dispatcher writing to log.
func NewLogDispatcher(log *slog.Logger) *LogDispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &LogDispatcher{log: log}
}

// Notify implements the Dispatcher interface.
func (d *LogDispatcher) Notify(_ context.Context, event *types.Event) error {
	d.log.Info("notification",
		"event_id", event.ID,
		"project_id", event.ProjectID,
		"group_id", event.GroupID,
		"message", event.Message,
		"times_seen", event.TimesSeen)
	return nil
}
