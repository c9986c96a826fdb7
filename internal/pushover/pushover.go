// Package pushover implements the Pushover notification API client.
package pushover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultAPIURL is the Pushover messages endpoint.
	DefaultAPIURL = "https://api.pushover.net/1/messages.json"

	// MaxTitleLen is the maximum length for a Pushover notification title.
	MaxTitleLen = 250

	// MaxMessageLen is the maximum length for a Pushover notification message.
	MaxMessageLen = 1024
)

// Priority levels for Pushover notifications.
const (
	PriorityLowest = -2
	PriorityLow    = -1
	PriorityNormal = 0
	PriorityHigh   = 1
)

// ErrNotConfigured is returned by Send when credentials are missing.
var ErrNotConfigured = errors.New("pushover not configured: set notify.pushover.user_key and notify.pushover.app_token")

// Message represents a Pushover notification to send.
type Message struct {
	Title    string
	Body     string
	Priority int
}

// Response is the JSON response from the Pushover API.
type Response struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors,omitempty"`
}

// Client sends notifications for one user.
type Client struct {
	UserKey  string
	AppToken string
	APIURL   string       // DefaultAPIURL when empty
	HTTP     *http.Client // a 10s-timeout client when nil
}

// Configured returns true if Pushover credentials are set.
func (c *Client) Configured() bool {
	return c != nil && c.UserKey != "" && c.AppToken != ""
}

// Send posts msg to the Pushover API.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	form := url.Values{
		"token":    {c.AppToken},
		"user":     {c.UserKey},
		"title":    {truncate(msg.Title, MaxTitleLen)},
		"message":  {truncate(msg.Body, MaxMessageLen)},
		"priority": {fmt.Sprintf("%d", msg.Priority)},
	}

	endpoint := c.APIURL
	if endpoint == "" {
		endpoint = DefaultAPIURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("sending pushover notification: %w", err)
	}
	defer resp.Body.Close()

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding pushover response (HTTP %d): %w", resp.StatusCode, err)
	}
	if result.Status != 1 {
		return fmt.Errorf("pushover API error: %s", strings.Join(result.Errors, "; "))
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
