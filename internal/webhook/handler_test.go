package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"followup-gateway/internal/activity"
	"followup-gateway/internal/config"
	"followup-gateway/internal/contacts"
	"followup-gateway/internal/database"
	"followup-gateway/internal/flow"
	"followup-gateway/internal/followup"
	"followup-gateway/internal/models"
	"followup-gateway/internal/waha"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeGateway struct {
	sent []string
}

func (f *fakeGateway) SendText(phone, text string) (*waha.SendResult, error) {
	f.sent = append(f.sent, text)
	return &waha.SendResult{MessageID: "msg-1"}, nil
}

func (f *fakeGateway) LookupContact(contactID string) (map[string]any, error) {
	return map[string]any{}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{ChurchName: "Grace Chapel", DefaultCountryCode: "234"}
	engine := followup.NewEngine(db, &fakeGateway{}, flow.NewStore(db), contacts.NewStore(db), activity.NewLog(db), cfg)
	engine.SendDelay = 0
	engine.LinkDelay = 0

	handler := NewHandler(engine)
	router := gin.New()
	router.POST("/webhook", handler.Receive)
	router.POST("/webhook/test", handler.Test)
	return router, db
}

func postEvent(t *testing.T, router *gin.Engine, event map[string]any) (int, map[string]any) {
	t.Helper()
	body, _ := json.Marshal(event)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	return w.Code, resp
}

func TestReceiveIgnoresNonMessageEvents(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name  string
		event map[string]any
	}{
		{"session event", map[string]any{
			"event":   "session.status",
			"payload": map[string]any{"from": "123@c.us", "body": "hi"},
		}},
		{"own message", map[string]any{
			"event":   "message",
			"payload": map[string]any{"from": "123@c.us", "body": "hi", "fromMe": true},
		}},
		{"empty body", map[string]any{
			"event":   "message",
			"payload": map[string]any{"from": "123@c.us", "body": "   "},
		}},
		{"group chat", map[string]any{
			"event":   "message",
			"payload": map[string]any{"from": "12345-67890@g.us", "body": "hi"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := postEvent(t, router, tt.event)
			if code != http.StatusOK {
				t.Errorf("status = %d, want 200 so the sender does not retry", code)
			}
			if resp["status"] != "ignored" {
				t.Errorf("status field = %v, want ignored", resp["status"])
			}
		})
	}
}

func TestReceiveUnknownSenderStillAnswers200(t *testing.T) {
	router, _ := newTestRouter(t)

	code, resp := postEvent(t, router, map[string]any{
		"event":   "message",
		"payload": map[string]any{"from": "2349999999999@c.us", "body": "hello"},
	})
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
	if resp["status"] != "ignored" {
		t.Errorf("status field = %v, want ignored", resp["status"])
	}
}

func TestReceiveRoutesReplyToEngine(t *testing.T) {
	router, db := newTestRouter(t)

	contact := &models.Contact{
		FirstName:   "Ada",
		Phone:       "08012345678",
		WhatsappLID: "2348012345678@c.us",
		OptIn:       true,
	}
	if err := db.Create(contact).Error; err != nil {
		t.Fatalf("create contact: %v", err)
	}

	code, resp := postEvent(t, router, map[string]any{
		"event":   "message",
		"payload": map[string]any{"from": contact.WhatsappLID, "body": "STOP"},
	})
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp["status"] != "processed" || resp["action"] != "opted_out" {
		t.Errorf("resp = %v, want processed/opted_out", resp)
	}

	if err := db.First(contact, contact.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if contact.OptIn {
		t.Error("contact not opted out")
	}
}

func TestReceiveRejectsUnreadableBody(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTestEndpointRequiresFields(t *testing.T) {
	router, _ := newTestRouter(t)

	body, _ := json.Marshal(map[string]any{"from": "123@c.us"})
	req := httptest.NewRequest(http.MethodPost, "/webhook/test", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 when body field missing", w.Code)
	}
}
