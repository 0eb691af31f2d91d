package webhook

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

type Sender interface {
	Send(ctx context.Context, url string, payload Payload) error
}

// Payload is the fixed JSON body delivered to workflow webhooks.
type Payload struct {
	BookingID        string `json:"booking_id"`
	ProviderID       string `json:"provider_id"`
	ServiceName      string `json:"service_name"`
	CustomerName     string `json:"customer_name"`
	CustomerEmail    string `json:"customer_email"`
	StaffName        string `json:"staff_name,omitempty"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	Status           string `json:"status"`
	TotalAmountCents int64  `json:"total_amount_cents"`
	Trigger          string `json:"trigger"`
}

type HTTPSender struct {
	http *http.Client
}

func NewHTTPSender() *HTTPSender {
	return &HTTPSender{
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *HTTPSender) Send(ctx context.Context, url string, payload Payload) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return errors.New("webhook url not configured")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
