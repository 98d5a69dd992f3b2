package followup

import (
	"strings"
	"testing"

	"followup-gateway/internal/models"

	"gorm.io/gorm"
)

func TestNormalizeComparable(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Yes, Please!  ", "yes please"},
		{"PRAYER", "prayer"},
		{"back   soon", "back soon"},
		{"1.", "1"},
		{"???", ""},
	}
	for _, tt := range tests {
		if got := normalizeComparable(tt.in); got != tt.want {
			t.Errorf("normalizeComparable(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFindResponseOption(t *testing.T) {
	options := []models.ResponseOption{
		{Code: "1", Matches: []string{"yes", "yes please"}},
		{Code: "2", Matches: []string{"no", "not now"}},
	}

	tests := []struct {
		reply string
		want  string
	}{
		{"1", "1"},
		{"YES", "1"},
		{"Yes, please!", "1"},
		{"not now", "2"},
		{"maybe", ""},
		{"yes sir", ""}, // exact match only, no substring matching
		{"", ""},
	}
	for _, tt := range tests {
		got := findResponseOption(tt.reply, options)
		if tt.want == "" {
			if got != nil {
				t.Errorf("findResponseOption(%q) = %v, want nil", tt.reply, got)
			}
			continue
		}
		if got == nil || got.Code != tt.want {
			t.Errorf("findResponseOption(%q) = %v, want code %s", tt.reply, got, tt.want)
		}
	}
}

func TestHandleReplyOptOut(t *testing.T) {
	engine, gateway, db := newTestEngine(t)
	contact := newTestContact(t, db)
	journey, err := engine.StartJourney(contact)
	if err != nil {
		t.Fatalf("StartJourney: %v", err)
	}

	outcome, err := engine.HandleReply(contact.WhatsappLID, "STOP")
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if outcome == nil || outcome.Action != "opted_out" {
		t.Fatalf("outcome = %v, want opted_out", outcome)
	}

	if err := db.First(contact, contact.ID).Error; err != nil {
		t.Fatalf("reload contact: %v", err)
	}
	if contact.OptIn {
		t.Error("contact still opted in")
	}
	if contact.OptOutDate == nil {
		t.Error("OptOutDate not stamped")
	}

	journeyID := journey.ID
	*journey = models.Journey{}
	if err := db.First(journey, journeyID).Error; err != nil {
		t.Fatalf("reload journey: %v", err)
	}
	if journey.Status != models.JourneyOptedOut {
		t.Errorf("journey Status = %q, want opted_out", journey.Status)
	}
	if journey.NextMessageAt != nil {
		t.Error("NextMessageAt not cleared on opt-out")
	}

	last := gateway.sent[len(gateway.sent)-1]
	if !strings.Contains(last.Text, "unsubscribed") {
		t.Errorf("confirmation not sent, last message: %q", last.Text)
	}

	// No scheduled message may reach an opted-out contact.
	sendsBefore := len(gateway.sent)
	markDue(t, db, journey.ID)
	if err := engine.ProcessScheduledMessages(); err != nil {
		t.Fatalf("ProcessScheduledMessages: %v", err)
	}
	if len(gateway.sent) != sendsBefore {
		t.Error("opted-out journey received a scheduled message")
	}
}

func TestHandleReplyOptIn(t *testing.T) {
	engine, _, db := newTestEngine(t)
	contact := newTestContact(t, db)
	contact.OptIn = false
	if err := db.Save(contact).Error; err != nil {
		t.Fatalf("save: %v", err)
	}

	outcome, err := engine.HandleReply(contact.WhatsappLID, "start")
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if outcome == nil || outcome.Action != "opted_in" {
		t.Fatalf("outcome = %v, want opted_in", outcome)
	}

	if err := db.First(contact, contact.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !contact.OptIn {
		t.Error("contact not opted back in")
	}
	if contact.OptInDate == nil || contact.OptOutDate != nil {
		t.Error("consent dates not updated")
	}

	// Opt-in alone must not resurrect the journey; a fresh start does.
	var journey models.Journey
	err = db.Where("contact_id = ? AND status = ?", contact.ID, models.JourneyActive).First(&journey).Error
	if err != gorm.ErrRecordNotFound {
		t.Errorf("expected no active journey after bare opt-in, got %v", err)
	}
}

func TestHandleReplyHelp(t *testing.T) {
	engine, gateway, db := newTestEngine(t)
	contact := newTestContact(t, db)

	outcome, err := engine.HandleReply(contact.WhatsappLID, "help")
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if outcome == nil || outcome.Action != "help" {
		t.Fatalf("outcome = %v, want help", outcome)
	}
	if len(gateway.sent) != 1 || !strings.Contains(gateway.sent[0].Text, "STOP") {
		t.Errorf("help message not sent: %v", gateway.sent)
	}
}

func TestHandleReplyRecordsJourneyReply(t *testing.T) {
	engine, _, db := newTestEngine(t)
	contact := newTestContact(t, db)
	journey, err := engine.StartJourney(contact)
	if err != nil {
		t.Fatalf("StartJourney: %v", err)
	}

	outcome, err := engine.HandleReply(contact.WhatsappLID, "tell me more")
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if outcome == nil || outcome.Action != "unmapped_reply" {
		t.Fatalf("outcome = %v, want unmapped_reply", outcome)
	}

	if err := db.First(journey, journey.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(journey.Replies) != 1 {
		t.Fatalf("Replies = %v, want one entry", journey.Replies)
	}
	if journey.Replies[0].Content != "tell me more" {
		t.Errorf("reply content = %q", journey.Replies[0].Content)
	}
	if journey.EngagementScore == models.EngagementNone {
		t.Error("engagement not recalculated")
	}

	if err := db.First(contact, contact.ID).Error; err != nil {
		t.Fatalf("reload contact: %v", err)
	}
	if contact.TotalReplies != 1 || contact.LastReplyAt == nil {
		t.Error("contact reply counters not updated")
	}
}

func TestHandleReplyDeduplicates(t *testing.T) {
	engine, _, db := newTestEngine(t)
	contact := newTestContact(t, db)
	journey, err := engine.StartJourney(contact)
	if err != nil {
		t.Fatalf("StartJourney: %v", err)
	}

	if _, err := engine.HandleReply(contact.WhatsappLID, "2"); err != nil {
		t.Fatalf("first HandleReply: %v", err)
	}
	// Duplicate webhook delivery of the same inbound message.
	outcome, err := engine.HandleReply(contact.WhatsappLID, "2")
	if err != nil {
		t.Fatalf("second HandleReply: %v", err)
	}
	if outcome != nil {
		t.Errorf("duplicate reply produced outcome %v, want nil", outcome)
	}

	if err := db.First(journey, journey.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(journey.Replies) != 1 {
		t.Fatalf("Replies = %d, want exactly 1 after duplicate delivery", len(journey.Replies))
	}
}

func TestHandleReplyConfiguredOption(t *testing.T) {
	engine, gateway, db := newTestEngine(t)
	contact := newTestContact(t, db)
	journey, err := engine.StartJourney(contact)
	if err != nil {
		t.Fatalf("StartJourney: %v", err)
	}

	// Give the welcome stage a configured escalation option.
	stages := []models.FlowStage{
		{Stage: 0, Key: "welcome", Enabled: true, DelayToNextDays: intPtr(2), SendHour: 10,
			ResponseOptions: []models.ResponseOption{
				{
					Code:              "1",
					Matches:           []string{"prayer"},
					ResponseMessage:   "Thank you {{firstName}}, our team will pray with you.",
					JourneyStatus:     models.JourneyEscalated,
					EscalationNotes:   "Prayer request",
					ConversationStage: "prayer_requested",
				},
			}},
		{Stage: 2, Key: "day2", Enabled: true, DelayToNextDays: intPtr(3), SendHour: 10},
	}
	if _, err := engine.Flows.UpdateFollowUpFlow("", stages, nil, "tester"); err != nil {
		t.Fatalf("UpdateFollowUpFlow: %v", err)
	}

	outcome, err := engine.HandleReply(contact.WhatsappLID, "Prayer")
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if outcome == nil || outcome.Action != "configured_option_1" {
		t.Fatalf("outcome = %v, want configured_option_1", outcome)
	}

	last := gateway.sent[len(gateway.sent)-1]
	if !strings.Contains(last.Text, "Thank you Ada") {
		t.Errorf("interpolated response not sent: %q", last.Text)
	}

	journeyID := journey.ID
	*journey = models.Journey{}
	if err := db.First(journey, journeyID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if journey.Status != models.JourneyEscalated {
		t.Errorf("Status = %q, want escalated", journey.Status)
	}
	if journey.NextMessageAt != nil {
		t.Error("NextMessageAt not cleared when journey leaves active")
	}
	if journey.EscalationNotes != "Prayer request" {
		t.Errorf("EscalationNotes = %q", journey.EscalationNotes)
	}

	if err := db.First(contact, contact.ID).Error; err != nil {
		t.Fatalf("reload contact: %v", err)
	}
	if contact.ConversationStage != "prayer_requested" {
		t.Errorf("ConversationStage = %q", contact.ConversationStage)
	}
}

func TestHandleReplyAbsentReminder(t *testing.T) {
	engine, gateway, db := newTestEngine(t)
	contact := newTestContact(t, db)

	outbound := models.Activity{
		ContactID:         contact.ID,
		Phone:             contact.Phone,
		Direction:         models.DirectionOutbound,
		MessageType:       models.TypeAbsentReminder,
		Content:           "We missed you!",
		ConversationStage: models.StageAwaitingReply,
		Status:            models.StatusSent,
	}
	if err := engine.Activity.Record(&outbound); err != nil {
		t.Fatalf("record outbound: %v", err)
	}

	// "2" maps to the prayer/support option of the stock rules.
	outcome, err := engine.HandleReply(contact.WhatsappLID, "2")
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if outcome == nil || outcome.Action != "absent_2" {
		t.Fatalf("outcome = %v, want absent_2", outcome)
	}

	if len(gateway.sent) != 1 {
		t.Fatalf("sent %d messages, want acknowledgment", len(gateway.sent))
	}

	if err := db.First(contact, contact.ID).Error; err != nil {
		t.Fatalf("reload contact: %v", err)
	}
	if contact.ConversationStage != "prayer_requested" {
		t.Errorf("ConversationStage = %q, want prayer_requested", contact.ConversationStage)
	}
	if contact.TotalReplies != 1 {
		t.Errorf("TotalReplies = %d, want 1", contact.TotalReplies)
	}

	var reloaded models.Activity
	if err := db.First(&reloaded, outbound.ID).Error; err != nil {
		t.Fatalf("reload outbound: %v", err)
	}
	if reloaded.ConversationStage != models.StageCompleted {
		t.Errorf("outbound ConversationStage = %q, want completed", reloaded.ConversationStage)
	}
}

func TestHandleReplyUnknownSenderIgnored(t *testing.T) {
	engine, gateway, _ := newTestEngine(t)

	outcome, err := engine.HandleReply("9999999999999@c.us", "hello")
	if err != nil {
		t.Fatalf("HandleReply: %v", err)
	}
	if outcome != nil {
		t.Errorf("outcome = %v, want nil for unknown sender", outcome)
	}
	if len(gateway.sent) != 0 {
		t.Error("no message should be sent to unknown senders")
	}
}

func TestResolvePhoneFromJID(t *testing.T) {
	engine, gateway, _ := newTestEngine(t)
	gateway.lookup = map[string]any{"number": "2348012345678"}

	tests := []struct {
		jid  string
		want string
	}{
		{"2348012345678@c.us", "08012345678"},
		{"08012345678@c.us", "8012345678"},
		{"12345@lid", "08012345678"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := engine.resolvePhoneFromJID(tt.jid); got != tt.want {
			t.Errorf("resolvePhoneFromJID(%q) = %q, want %q", tt.jid, got, tt.want)
		}
	}
}
