package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type Mailer interface {
	Send(ctx context.Context, n Notification) error
}

// HTTPMailer posts notifications to the email-sending function.
type HTTPMailer struct {
	client *resty.Client
	url    string
}

func NewHTTPMailer(url, serviceKey string, timeout time.Duration) *HTTPMailer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if serviceKey != "" {
		client.SetAuthToken(serviceKey)
	}
	return &HTTPMailer{client: client, url: url}
}

func (m *HTTPMailer) Send(ctx context.Context, n Notification) error {
	if m.url == "" {
		return fmt.Errorf("notify_url_not_configured")
	}
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"type":    n.Type,
			"user_id": n.RecipientUserID,
			"data": map[string]any{
				"lender_name":   n.LenderName,
				"request_type":  n.RequestType,
				"pending_count": n.PendingCount,
			},
		}).
		Post(m.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("notify_http_%d", resp.StatusCode())
	}
	return nil
}
