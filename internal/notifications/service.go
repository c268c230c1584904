package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"markerflow/internal/config"
)

const userAgent = "markerflow/0.1.0"

// Event names a notification-worthy milestone.
type Event string

const (
	EventExtractionCompleted Event = "extraction_completed"
	EventExtractionFailed    Event = "extraction_failed"
	EventQueueUploaded       Event = "queue_uploaded"
	EventTest                Event = "test"
)

// Payload carries event-specific values keyed by name.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		completion: cfg.Notifications.Completion,
		errors:     cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	completion bool
	errors     bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventExtractionCompleted:
		if !n.completion {
			return message{}, false
		}
		files := intValue(payload, "files")
		body := fmt.Sprintf("✅ Extracted %d %s", files, plural(files, "project", "projects"))
		if folder := stringValue(payload, "folder"); folder != "" {
			body += "\nOutput: " + folder
		}
		return message{
			title: "markerflow - Extraction Complete",
			body:  body,
			tags:  []string{"markerflow", "extract", "completed"},
		}, true
	case EventExtractionFailed:
		if !n.errors {
			return message{}, false
		}
		failed, total := intValue(payload, "failed"), intValue(payload, "total")
		body := fmt.Sprintf("❌ %d of %d %s failed", failed, total, plural(total, "project", "projects"))
		if detail := stringValue(payload, "detail"); detail != "" {
			body += "\n" + detail
		}
		return message{
			title:    "markerflow - Extraction Failed",
			body:     body,
			tags:     []string{"markerflow", "extract", "failed"},
			priority: "high",
		}, true
	case EventQueueUploaded:
		uploaded, failed := intValue(payload, "uploaded"), intValue(payload, "failed")
		if failed == 0 && !n.completion {
			return message{}, false
		}
		if failed > 0 && !n.errors {
			return message{}, false
		}
		title := "markerflow - Queue Uploaded"
		body := fmt.Sprintf("📤 Uploaded %d queued %s", uploaded, plural(uploaded, "manifest", "manifests"))
		if failed > 0 {
			title = "markerflow - Queue Uploaded (with errors)"
			body = fmt.Sprintf("📤 Queue upload finished: %d succeeded, %d failed", uploaded, failed)
		}
		return message{
			title: title,
			body:  body,
			tags:  []string{"markerflow", "queue", "upload"},
		}, true
	case EventTest:
		return message{
			title:    "markerflow - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"markerflow", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func stringValue(p Payload, key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intValue(p Payload, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	default:
		return 0
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
