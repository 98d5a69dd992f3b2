package waha

import (
	"regexp"
	"strings"
)

// Upstream session status vocabulary. WAHA engines disagree on naming, so
// sendability is decided against a fixed allow-list.
var (
	activeSessionStatuses   = []string{"WORKING", "CONNECTED", "RUNNING", "STARTED", "READY"}
	startingSessionStatuses = []string{"STARTING", "INITIALIZING"}
	stoppingSessionStatuses = []string{"STOPPING"}
	stoppedSessionStatuses  = []string{"STOPPED", "FAILED", "LOGGED_OUT", "DISCONNECTED"}
	qrSessionStatuses       = []string{"SCAN_QR_CODE", "WAITING_FOR_QR", "PAIRING", "AUTH"}
)

// SessionState is the canonical session shape every session-control
// operation works with.
type SessionState struct {
	SessionName string         `json:"sessionName"`
	Status      string         `json:"status"`
	IsActive    bool           `json:"isActive"`
	IsStarting  bool           `json:"isStarting"`
	IsStopping  bool           `json:"isStopping"`
	IsStopped   bool           `json:"isStopped"`
	NeedsQR     bool           `json:"needsQr"`
	CanStart    bool           `json:"canStart"`
	CanStop     bool           `json:"canStop"`
	CanRestart  bool           `json:"canRestart"`
	CanLogout   bool           `json:"canLogout"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// NormalizeSessionState maps a heterogeneous upstream session payload into
// SessionState. Status is read from "status", then "state", then
// "session.status", in that order.
func NormalizeSessionState(raw map[string]any, sessionName string) SessionState {
	status := strings.ToUpper(stringField(raw, "status"))
	if status == "" {
		status = strings.ToUpper(stringField(raw, "state"))
	}
	if status == "" {
		if nested, ok := raw["session"].(map[string]any); ok {
			status = strings.ToUpper(stringField(nested, "status"))
		}
	}
	if status == "" {
		status = "UNKNOWN"
	}

	isActive := contains(activeSessionStatuses, status)
	isStarting := contains(startingSessionStatuses, status)
	isStopping := contains(stoppingSessionStatuses, status)
	isStopped := contains(stoppedSessionStatuses, status)
	needsQR := contains(qrSessionStatuses, status) ||
		strings.Contains(strings.ToUpper(stringField(raw, "message")), "QR")

	return SessionState{
		SessionName: sessionName,
		Status:      status,
		IsActive:    isActive,
		IsStarting:  isStarting,
		IsStopping:  isStopping,
		IsStopped:   isStopped,
		NeedsQR:     needsQR,
		CanStart:    !isActive && !isStarting,
		CanStop:     isActive || isStarting,
		CanRestart:  !isStopping,
		CanLogout:   isActive || isStarting || needsQR,
		Raw:         raw,
	}
}

var nonDigits = regexp.MustCompile(`[^\d]`)

// FormatChatID converts a phone number into WAHA chat-id form. Local numbers
// with a leading 0 (and short numbers missing a country prefix) get the
// default country code; already-suffixed chat ids pass through unchanged.
func FormatChatID(phone, defaultCountryCode string) string {
	if strings.HasSuffix(phone, "@c.us") {
		return phone
	}

	cleaned := nonDigits.ReplaceAllString(phone, "")
	if cleaned == "" {
		return ""
	}

	if strings.HasPrefix(cleaned, "0") && len(cleaned) >= 10 {
		cleaned = defaultCountryCode + cleaned[1:]
	}
	if len(cleaned) <= 11 && !strings.HasPrefix(cleaned, defaultCountryCode) {
		cleaned = defaultCountryCode + strings.TrimLeft(cleaned, "0")
	}

	return cleaned + "@c.us"
}

// extractMessageID pulls the upstream message identifier out of a send
// response. The id arrives either as a plain string or as an object; for
// objects "_serialized" wins over "id".
func extractMessageID(payload map[string]any) string {
	rawID, ok := payload["id"]
	if !ok || rawID == nil {
		return ""
	}
	switch id := rawID.(type) {
	case string:
		return id
	case map[string]any:
		if s := stringField(id, "_serialized"); s != "" {
			return s
		}
		return stringField(id, "id")
	default:
		return ""
	}
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
