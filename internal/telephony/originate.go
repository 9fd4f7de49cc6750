package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OriginateError is the structured failure surfaced to callers of the
// outbound-call interface.
type OriginateError struct {
	Status  int
	Code    int
	Message string
}

func (e *OriginateError) Error() string {
	return fmt.Sprintf("twilio call failed: status %d code %d: %s", e.Status, e.Code, e.Message)
}

// Originator places outbound calls through the Twilio REST API.
type Originator struct {
	accountSID string
	authToken  string
	baseURL    string
	from       string
	client     *http.Client
}

type OriginatorConfig struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	FromNumber string
}

func NewOriginator(cfg OriginatorConfig) (*Originator, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, fmt.Errorf("twilio credentials are required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.twilio.com/2010-04-01"
	}
	return &Originator{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		baseURL:    base,
		from:       strings.TrimSpace(cfg.FromNumber),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

// Call originates a call to the destination number. The supplied TwiML must
// land the answered call in this service's media-stream listener so the
// bridge picks it up. Returns the Twilio call SID.
func (o *Originator) Call(ctx context.Context, to, twiml string) (string, error) {
	if strings.TrimSpace(to) == "" {
		return "", fmt.Errorf("destination number is required")
	}
	if strings.TrimSpace(o.from) == "" {
		return "", fmt.Errorf("from number is not configured")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", o.from)
	form.Set("Twiml", twiml)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", o.baseURL, url.PathEscape(o.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(o.accountSID, o.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return "", &OriginateError{Status: res.StatusCode, Code: apiErr.Code, Message: apiErr.Message}
	}

	var call struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(body, &call); err != nil {
		return "", fmt.Errorf("decode call response: %w", err)
	}
	if call.SID == "" {
		return "", fmt.Errorf("call response missing sid")
	}
	return call.SID, nil
}
