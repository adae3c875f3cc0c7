package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// WebhookNotifier POSTs events as JSON to a configured URL.
type WebhookNotifier struct {
	URL         string
	MaxRetries  int
	BackoffBase time.Duration // first retry delay, doubled per attempt
	Client      *http.Client
}

// NewWebhookNotifier creates a notifier with optional proxy support.
func NewWebhookNotifier(webhookURL, proxyURL string) *WebhookNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &WebhookNotifier{
		URL:         webhookURL,
		MaxRetries:  3,
		BackoffBase: time.Second,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

// Notify delivers the event with exponential backoff retry. The final failed
// attempt returns immediately, without a trailing backoff sleep.
func (w *WebhookNotifier) Notify(ctx context.Context, ev Event) error {
	var lastErr error
	for i := 0; ; i++ {
		err := w.send(ctx, ev)
		if err == nil {
			return nil
		}
		lastErr = err
		if i >= w.MaxRetries {
			break
		}
		backoff := w.BackoffBase << uint(i)
		log.Printf("[WARN] webhook send failed (attempt %d/%d): %v, retrying in %v", i+1, w.MaxRetries+1, err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("webhook: all retries failed: %w", lastErr)
}

func (w *WebhookNotifier) send(ctx context.Context, ev Event) error {
	payload := struct {
		Event
		Text string `json:"text"`
	}{Event: ev, Text: ev.Summary()}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
