package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vidlens/internal/config"
)

const userAgent = "vidlens/0.1.0"

// Event identifies a workflow milestone that may produce a notification.
type Event string

const (
	EventJobCompleted   Event = "job_completed"
	EventJobFailed      Event = "job_failed"
	EventQueueStarted   Event = "queue_started"
	EventQueueCompleted Event = "queue_completed"
	EventTest           Event = "test"
)

// Payload carries event specific values keyed by name.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
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
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		errors:    cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	errors    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) render(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobCompleted:
		if !n.completed {
			return message{}, false
		}
		body := fmt.Sprintf("Analysis complete: %s", label(payload))
		if pct, ok := payload["motion_percentage"].(float64); ok {
			body = fmt.Sprintf("%s\nMotion: %.1f%%", body, pct)
		}
		if lang := stringValue(payload, "language"); lang != "" {
			body = fmt.Sprintf("%s\nLanguage: %s", body, lang)
		}
		return message{
			title: "vidlens - Analysis Complete",
			body:  body,
			tags:  []string{"vidlens", "analysis", "completed"},
		}, true
	case EventJobFailed:
		if !n.errors {
			return message{}, false
		}
		var builder strings.Builder
		builder.WriteString("Analysis failed for ")
		builder.WriteString(label(payload))
		if kind := stringValue(payload, "kind"); kind != "" {
			builder.WriteString(" (")
			builder.WriteString(kind)
			builder.WriteString(")")
		}
		builder.WriteString(": ")
		if detail := stringValue(payload, "error"); detail != "" {
			builder.WriteString(detail)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "vidlens - Analysis Failed",
			body:     builder.String(),
			tags:     []string{"vidlens", "error", "alert"},
			priority: "high",
		}, true
	case EventQueueCompleted:
		if !n.completed {
			return message{}, false
		}
		processed, _ := payload["processed"].(int)
		failed, _ := payload["failed"].(int)
		duration, _ := payload["duration"].(time.Duration)
		duration = duration.Round(time.Second)
		if duration < 0 {
			duration = 0
		}
		title := "vidlens - Queue Complete"
		body := fmt.Sprintf("Queue drained: %d jobs analyzed in %s", processed, duration)
		if failed > 0 {
			title = "vidlens - Queue Complete (with errors)"
			body = fmt.Sprintf("Queue drained: %d succeeded, %d failed in %s", processed, failed, duration)
		}
		return message{title: title, body: body, tags: []string{"vidlens", "queue", "completed"}}, true
	case EventTest:
		return message{
			title:    "vidlens - Test",
			body:     "Notification system test",
			tags:     []string{"vidlens", "test"},
			priority: "low",
		}, true
	default:
		// queue_started is logged only.
		return message{}, false
	}
}

func label(payload Payload) string {
	if id := stringValue(payload, "video_id"); id != "" {
		return id
	}
	if path := stringValue(payload, "path"); path != "" {
		return path
	}
	if id := stringValue(payload, "job_id"); id != "" {
		return id
	}
	return "unknown video"
}

func stringValue(payload Payload, key string) string {
	raw, ok := payload[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
