package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"lifescribe/internal/config"
)

const userAgent = "Lifescribe-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyRetriesExhausted(ctx context.Context, mediaID, stage, lastError string) error
	NotifyVendorDown(ctx context.Context, capability, vendor, detail string) error
	NotifyMediaCompleted(ctx context.Context, mediaID string) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dedup := time.Duration(cfg.Notifications.DedupWindowSecond) * time.Second

	return &ntfyService{
		endpoint:       topic,
		client:         &http.Client{Timeout: timeout},
		settings:       cfg.Notifications,
		dedupWindow:    dedup,
		recentSubjects: make(map[string]time.Time),
		now:            time.Now,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	settings    config.Notifications
	dedupWindow time.Duration
	now         func() time.Time

	mu             sync.Mutex
	recentSubjects map[string]time.Time
}

func (n *ntfyService) NotifyRetriesExhausted(ctx context.Context, mediaID, stage, lastError string) error {
	if !n.settings.RetryExhausted {
		return nil
	}
	if n.suppressed("exhausted/" + mediaID + "/" + stage) {
		return nil
	}
	message := fmt.Sprintf("Retries exhausted: %s at %s stage", mediaID, stage)
	if lastError = strings.TrimSpace(lastError); lastError != "" {
		message = fmt.Sprintf("%s\nLast error: %s", message, lastError)
	}
	data := payload{
		title:    "Lifescribe - Retries Exhausted",
		message:  message,
		tags:     []string{"lifescribe", "retry", "exhausted"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyVendorDown(ctx context.Context, capability, vendor, detail string) error {
	if !n.settings.VendorDown {
		return nil
	}
	if n.suppressed("vendor-down/" + capability + "/" + vendor) {
		return nil
	}
	message := fmt.Sprintf("Vendor down: %s (%s)", vendor, capability)
	if detail = strings.TrimSpace(detail); detail != "" {
		message = fmt.Sprintf("%s\n%s", message, detail)
	}
	data := payload{
		title:    "Lifescribe - Vendor Down",
		message:  message,
		tags:     []string{"lifescribe", "vendor", "down"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyMediaCompleted(ctx context.Context, mediaID string) error {
	if !n.settings.MediaCompleted {
		return nil
	}
	data := payload{
		title:   "Lifescribe - Media Processed",
		message: fmt.Sprintf("Searchable: %s", strings.TrimSpace(mediaID)),
		tags:    []string{"lifescribe", "media", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.settings.Errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	data := payload{
		title:    "Lifescribe - Error",
		message:  builder.String(),
		tags:     []string{"lifescribe", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Lifescribe - Test",
		message:  "Notification system test",
		tags:     []string{"lifescribe", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

// suppressed reports whether this subject fired inside the dedup window
// and records the new firing when it did not.
func (n *ntfyService) suppressed(subject string) bool {
	if n.dedupWindow <= 0 {
		return false
	}
	now := n.now()

	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.recentSubjects[subject]; ok && now.Sub(last) < n.dedupWindow {
		return true
	}
	n.recentSubjects[subject] = now
	return false
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
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

func (noopService) NotifyRetriesExhausted(context.Context, string, string, string) error { return nil }

func (noopService) NotifyVendorDown(context.Context, string, string, string) error { return nil }

func (noopService) NotifyMediaCompleted(context.Context, string) error { return nil }

func (noopService) NotifyError(context.Context, error, string) error { return nil }

func (noopService) TestNotification(context.Context) error { return nil }
