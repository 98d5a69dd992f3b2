package waha

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"followup-gateway/internal/config"
)

// Client talks to a WAHA (WhatsApp HTTP API) node.
type Client struct {
	BaseURL              string
	APIKey               string
	Session              string
	DefaultCountryCode   string
	EnforceActiveSession bool

	HTTP *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		BaseURL:              strings.TrimRight(cfg.WahaURL, "/"),
		APIKey:               cfg.WahaAPIKey,
		Session:              cfg.WahaSession,
		DefaultCountryCode:   cfg.DefaultCountryCode,
		EnforceActiveSession: cfg.EnforceActiveSession,
		HTTP:                 &http.Client{Timeout: 30 * time.Second},
	}
}

// SendResult is the canonical shape of a successful send.
type SendResult struct {
	MessageID string
	Raw       map[string]any
}

func (c *Client) doJSON(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// checkSession enforces the active-session precondition before a send.
func (c *Client) checkSession() error {
	if !c.EnforceActiveSession {
		return nil
	}
	raw, err := c.GetSessionStatus()
	if err != nil {
		if errors.Is(err, ErrChannelUnavailable) {
			return err
		}
		// Upstream answered but the session is unusable (eg. 404).
		return &SessionNotActiveError{State: NormalizeSessionState(nil, c.Session)}
	}
	state := NormalizeSessionState(raw, c.Session)
	if !state.IsActive {
		return &SessionNotActiveError{State: state}
	}
	return nil
}

func (c *Client) SendText(phone, text string) (*SendResult, error) {
	if err := c.checkSession(); err != nil {
		return nil, err
	}

	chatID := FormatChatID(phone, c.DefaultCountryCode)
	if chatID == "" {
		return nil, ErrInvalidPhone
	}

	var payload map[string]any
	err := c.doJSON(http.MethodPost, "/api/sendText", map[string]any{
		"session": c.Session,
		"chatId":  chatID,
		"text":    text,
	}, &payload)
	if err != nil {
		return nil, err
	}
	return &SendResult{MessageID: extractMessageID(payload), Raw: payload}, nil
}

func (c *Client) SendImage(phone, imageURL, caption string) (*SendResult, error) {
	if err := c.checkSession(); err != nil {
		return nil, err
	}

	chatID := FormatChatID(phone, c.DefaultCountryCode)
	if chatID == "" {
		return nil, ErrInvalidPhone
	}

	var payload map[string]any
	err := c.doJSON(http.MethodPost, "/api/sendImage", map[string]any{
		"session": c.Session,
		"chatId":  chatID,
		"file": map[string]any{
			"mimetype": "image/jpeg",
			"url":      imageURL,
		},
		"caption": caption,
	}, &payload)
	if err != nil {
		return nil, err
	}
	return &SendResult{MessageID: extractMessageID(payload), Raw: payload}, nil
}

// LookupContact resolves a channel-internal id (eg. a @lid address) to the
// contact record WAHA holds for it.
func (c *Client) LookupContact(contactID string) (map[string]any, error) {
	var payload map[string]any
	path := fmt.Sprintf("/api/contacts?contactId=%s&session=%s", contactID, c.Session)
	if err := c.doJSON(http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) GetSessionStatus() (map[string]any, error) {
	var payload map[string]any
	if err := c.doJSON(http.MethodGet, "/api/sessions/"+c.Session, nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// SessionState fetches and normalizes the current session status. A session
// that cannot be fetched normalizes to UNKNOWN rather than failing.
func (c *Client) SessionState() SessionState {
	raw, err := c.GetSessionStatus()
	if err != nil {
		return NormalizeSessionState(nil, c.Session)
	}
	return NormalizeSessionState(raw, c.Session)
}

func (c *Client) GetServerStatus() (map[string]any, error) {
	var payload map[string]any
	if err := c.doJSON(http.MethodGet, "/api/server/status", nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) CreateSession(webhookURL string) (map[string]any, error) {
	payload := map[string]any{"name": c.Session}
	if webhookURL != "" {
		payload["config"] = map[string]any{
			"webhooks": []map[string]any{
				{"url": webhookURL, "events": []string{"message", "message.ack"}},
			},
		}
	}

	var out map[string]any
	err := c.doJSON(http.MethodPost, "/api/sessions/", payload, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && isDuplicateSession(apiErr) {
			return map[string]any{"alreadyExists": true}, nil
		}
		return nil, err
	}
	return out, nil
}

func isDuplicateSession(err *APIError) bool {
	if err.StatusCode == http.StatusConflict {
		return true
	}
	body := strings.ToLower(err.Body)
	return strings.Contains(body, "already") || strings.Contains(body, "exist")
}

func (c *Client) StartSession() (map[string]any, error) {
	var out map[string]any
	err := c.doJSON(http.MethodPost, "/api/sessions/"+c.Session+"/start", nil, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) StopSession() (map[string]any, error) {
	var out map[string]any
	err := c.doJSON(http.MethodPost, "/api/sessions/"+c.Session+"/stop", nil, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RestartSession() (map[string]any, error) {
	var out map[string]any
	err := c.doJSON(http.MethodPost, "/api/sessions/"+c.Session+"/restart", nil, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) LogoutSession() (map[string]any, error) {
	var out map[string]any
	err := c.doJSON(http.MethodPost, "/api/sessions/logout", map[string]any{"name": c.Session}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetQR(format string) (map[string]any, error) {
	path := "/api/" + c.Session + "/auth/qr"
	if format != "" {
		path += "?format=" + format
	}
	var out map[string]any
	if err := c.doJSON(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StartOrCreateSession creates the session if needed and starts it, retrying
// while the freshly created session settles. Falls back to the deprecated
// combined create+start endpoint when start keeps 404ing.
func (c *Client) StartOrCreateSession(webhookURL string, retries int) (map[string]any, error) {
	if _, err := c.CreateSession(webhookURL); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < retries; attempt++ {
		out, err := c.StartSession()
		if err == nil {
			return out, nil
		}
		var apiErr *APIError
		notFound := errors.As(err, &apiErr) &&
			(apiErr.StatusCode == http.StatusNotFound ||
				strings.Contains(strings.ToLower(apiErr.Body), "session not found"))
		if !notFound {
			return nil, err
		}
		time.Sleep(time.Duration(500*(attempt+1)) * time.Millisecond)
	}

	payload := map[string]any{"name": c.Session}
	if webhookURL != "" {
		payload["config"] = map[string]any{
			"webhooks": []map[string]any{
				{"url": webhookURL, "events": []string{"message", "message.ack"}},
			},
		}
	}
	var out map[string]any
	if err := c.doJSON(http.MethodPost, "/api/sessions/start", payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BootstrapDefaultSession checks node health, then creates/starts the
// default session.
func (c *Client) BootstrapDefaultSession(webhookURL string) (SessionState, error) {
	if _, err := c.GetServerStatus(); err != nil {
		if errors.Is(err, ErrChannelUnavailable) {
			return SessionState{}, err
		}
		return SessionState{}, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}

	if _, err := c.StartOrCreateSession(webhookURL, 4); err != nil {
		return SessionState{}, err
	}
	return c.SessionState(), nil
}
