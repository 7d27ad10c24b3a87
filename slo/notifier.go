package slo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	pkgerrors "github.com/pkg/errors"
)

const (
	LogoutEvent          = "sso.logout"
	DefaultNotifyTimeout = 5 * time.Second
)

// Notification is the body posted to every connected app's logout URL.
type Notification struct {
	Event        string `json:"event"`
	SessionToken string `json:"session_token"`
	Timestamp    string `json:"timestamp"`
}

func NewNotification(sessionToken string, at time.Time) Notification {
	return Notification{
		Event:        LogoutEvent,
		SessionToken: sessionToken,
		Timestamp:    at.UTC().Format(time.RFC3339),
	}
}

// Notifier delivers a logout notification to a single app.
type Notifier interface {
	Notify(ctx context.Context, logoutURL string, n Notification) error
}

// HTTPNotifier posts notifications as JSON, bounding every call by its timeout.
type HTTPNotifier struct {
	client  *http.Client
	timeout time.Duration
}

var _ Notifier = (*HTTPNotifier)(nil)

func NewHTTPNotifier(client *http.Client, timeout time.Duration) *HTTPNotifier {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	return &HTTPNotifier{client: client, timeout: timeout}
}

func (n *HTTPNotifier) Notify(ctx context.Context, logoutURL string, notification Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return pkgerrors.Wrap(err, "[HTTPNotifier.Notify] failed to encode notification")
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, logoutURL, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(err, "[HTTPNotifier.Notify] failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
