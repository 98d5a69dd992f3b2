package waha

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(serverURL string, enforce bool) *Client {
	return &Client{
		BaseURL:              serverURL,
		APIKey:               "test-key",
		Session:              "default",
		DefaultCountryCode:   "234",
		EnforceActiveSession: enforce,
		HTTP:                 http.DefaultClient,
	}
}

func TestSendTextStringMessageID(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sessions/default":
			json.NewEncoder(w).Encode(map[string]any{"status": "WORKING"})
		case "/api/sendText":
			if r.Header.Get("X-Api-Key") != "test-key" {
				t.Errorf("missing api key header")
			}
			json.NewDecoder(r.Body).Decode(&gotBody)
			json.NewEncoder(w).Encode(map[string]any{"id": "true_2348012345678@c.us_AAA"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := testClient(server.URL, true)
	result, err := client.SendText("08012345678", "hello")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if result.MessageID != "true_2348012345678@c.us_AAA" {
		t.Errorf("MessageID = %q", result.MessageID)
	}
	if gotBody["chatId"] != "2348012345678@c.us" {
		t.Errorf("chatId = %v, want normalized chat id", gotBody["chatId"])
	}
	if gotBody["session"] != "default" {
		t.Errorf("session = %v", gotBody["session"])
	}
}

func TestSendTextObjectMessageID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": map[string]any{"_serialized": "ser-99", "id": "raw-99"},
		})
	}))
	defer server.Close()

	client := testClient(server.URL, false)
	result, err := client.SendText("2348012345678", "hello")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if result.MessageID != "ser-99" {
		t.Errorf("MessageID = %q, want ser-99", result.MessageID)
	}
}

func TestSendTextSessionNotActive(t *testing.T) {
	sendCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sessions/default":
			json.NewEncoder(w).Encode(map[string]any{"status": "STOPPED"})
		case "/api/sendText":
			sendCalled = true
			json.NewEncoder(w).Encode(map[string]any{"id": "x"})
		}
	}))
	defer server.Close()

	client := testClient(server.URL, true)
	_, err := client.SendText("2348012345678", "hello")

	var sessionErr *SessionNotActiveError
	if !errors.As(err, &sessionErr) {
		t.Fatalf("want SessionNotActiveError, got %v", err)
	}
	if sessionErr.State.Status != "STOPPED" {
		t.Errorf("State.Status = %q, want STOPPED", sessionErr.State.Status)
	}
	if sendCalled {
		t.Error("send endpoint called despite inactive session")
	}
}

func TestSendTextUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"invalid chat id"}`))
	}))
	defer server.Close()

	client := testClient(server.URL, false)
	_, err := client.SendText("2348012345678", "hello")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
}

func TestSendTextChannelUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // force connection refused

	client := testClient(server.URL, false)
	_, err := client.SendText("2348012345678", "hello")
	if !errors.Is(err, ErrChannelUnavailable) {
		t.Fatalf("want ErrChannelUnavailable, got %v", err)
	}
}

func TestSendTextInvalidPhone(t *testing.T) {
	client := testClient("http://unused", false)
	_, err := client.SendText("---", "hello")
	if !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("want ErrInvalidPhone, got %v", err)
	}
}

func TestSendImage(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sendImage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"id": "img-1"})
	}))
	defer server.Close()

	client := testClient(server.URL, false)
	result, err := client.SendImage("08012345678", "https://example.com/flyer.jpg", "This Sunday")
	if err != nil {
		t.Fatalf("SendImage: %v", err)
	}
	if result.MessageID != "img-1" {
		t.Errorf("MessageID = %q", result.MessageID)
	}
	file, ok := gotBody["file"].(map[string]any)
	if !ok || file["url"] != "https://example.com/flyer.jpg" {
		t.Errorf("file payload = %v", gotBody["file"])
	}
	if gotBody["caption"] != "This Sunday" {
		t.Errorf("caption = %v", gotBody["caption"])
	}
}

func TestCreateSessionAlreadyExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"Session already exists"}`))
	}))
	defer server.Close()

	client := testClient(server.URL, false)
	out, err := client.CreateSession("")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if out["alreadyExists"] != true {
		t.Errorf("out = %v, want alreadyExists", out)
	}
}
