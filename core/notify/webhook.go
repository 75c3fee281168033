package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPWebhookSender POSTs change signals to a configured endpoint. A non-2xx
// response is an error so the hub can log the miss; nobody retries these.
type HTTPWebhookSender struct {
	client  *http.Client
	url     string
	timeout time.Duration
}

func NewHTTPWebhookSender(url string, timeout time.Duration) *HTTPWebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPWebhookSender{
		client:  &http.Client{Timeout: timeout},
		url:     strings.TrimSpace(url),
		timeout: timeout,
	}
}

func (s *HTTPWebhookSender) Send(change RecordChange) error {
	if s.url == "" {
		return errors.New("webhook url missing")
	}
	raw, _ := json.Marshal(map[string]any{
		"type":      "recordChanged",
		"record_id": change.RecordID,
		"at":        change.At.Format(time.RFC3339),
	})
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook status %d", resp.StatusCode)
}
