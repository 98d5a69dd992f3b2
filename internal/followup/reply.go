package followup

import (
	"errors"
	"log"
	"regexp"
	"strings"

	"followup-gateway/internal/flow"
	"followup-gateway/internal/models"

	"gorm.io/gorm"
)

var optOutKeywords = []string{"stop", "unsubscribe", "optout", "opt-out", "cancel", "quit"}
var optInKeywords = []string{"start", "subscribe", "optin", "opt-in", "unstop"}
var helpKeywords = []string{"help", "support", "?"}

const helpMessage = "Reply 1, 2, or 3 to choose an option. Reply STOP to opt out, START to opt in."
const optOutConfirmation = "You have been unsubscribed from WhatsApp follow-up messages. Reply START to opt in again."
const optInConfirmation = "You are now subscribed again. Thank you."

// ReplyOutcome describes what the router did with one inbound message.
type ReplyOutcome struct {
	Action  string          `json:"action"`
	Journey *models.Journey `json:"journey,omitempty"`
}

var punctuation = regexp.MustCompile(`[^\w\s]`)
var whitespace = regexp.MustCompile(`\s+`)

// normalizeComparable case-folds, strips punctuation, and collapses
// whitespace so configured phrases match forgivingly but still exactly.
func normalizeComparable(value string) string {
	v := strings.ToLower(value)
	v = punctuation.ReplaceAllString(v, " ")
	v = whitespace.ReplaceAllString(v, " ")
	return strings.TrimSpace(v)
}

func keywordMatch(keywords []string, text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, k := range keywords {
		if t == k {
			return true
		}
	}
	return false
}

// findResponseOption matches a normalized reply against a stage's configured
// options, by exact match on code or any alternate phrase. First match wins.
func findResponseOption(reply string, options []models.ResponseOption) *models.ResponseOption {
	normalized := normalizeComparable(reply)
	if normalized == "" {
		return nil
	}
	for i := range options {
		option := &options[i]
		candidates := append([]string{option.Code}, option.Matches...)
		for _, candidate := range candidates {
			if c := normalizeComparable(candidate); c != "" && c == normalized {
				return option
			}
		}
	}
	return nil
}

// HandleReply routes one inbound message: resolve the sender, honor global
// commands, find the outbound message being answered, and interpret the text
// against its configured response options.
func (e *Engine) HandleReply(address, messageBody string) (*ReplyOutcome, error) {
	reply := strings.TrimSpace(messageBody)

	contact, err := e.resolveContact(address)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		log.Printf("[FollowUp] No contact for address %s, ignoring reply", address)
		return nil, nil
	}

	lock := e.locks.forContact(contact.ID)
	lock.Lock()
	defer lock.Unlock()

	// Global commands work regardless of journey state.
	if keywordMatch(optOutKeywords, reply) {
		return e.handleOptOut(contact)
	}
	if keywordMatch(optInKeywords, reply) {
		return e.handleOptIn(contact)
	}
	if keywordMatch(helpKeywords, reply) {
		if _, err := e.Gateway.SendText(contact.Phone, helpMessage); err != nil {
			log.Printf("[FollowUp] Error sending help message: %v", err)
		}
		return &ReplyOutcome{Action: "help"}, nil
	}

	lastOutbound, err := e.Activity.LastAwaitingOutbound(contact.ID, contact.LastReplyAt)
	if err != nil {
		return nil, err
	}
	if lastOutbound == nil {
		return nil, nil
	}

	// Duplicate webhook deliveries must not apply a reply twice.
	alreadyReplied, err := e.Activity.HasReplyAfter(contact.ID, lastOutbound.CreatedAt)
	if err != nil {
		return nil, err
	}
	if alreadyReplied {
		return nil, nil
	}

	if lastOutbound.MessageType == models.TypeAbsentReminder {
		outcome, err := e.handleAbsentReminderReply(contact, reply)
		if err != nil {
			return nil, err
		}
		if err := e.Activity.MarkCompleted(lastOutbound.ID); err != nil {
			log.Printf("[FollowUp] Error completing outbound record %d: %v", lastOutbound.ID, err)
		}
		return outcome, nil
	}

	return e.handleJourneyReply(contact, reply, lastOutbound)
}

func (e *Engine) handleOptOut(contact *models.Contact) (*ReplyOutcome, error) {
	now := e.Now()
	contact.OptIn = false
	contact.OptOutDate = &now
	if err := e.Contacts.Save(contact); err != nil {
		return nil, err
	}

	err := e.DB.Model(&models.Journey{}).
		Where("contact_id = ? AND status IN ?", contact.ID, []string{models.JourneyActive, models.JourneyEscalated}).
		Updates(map[string]any{
			"status":          models.JourneyOptedOut,
			"next_message_at": nil,
		}).Error
	if err != nil {
		return nil, err
	}

	if _, err := e.Gateway.SendText(contact.Phone, optOutConfirmation); err != nil {
		log.Printf("[FollowUp] Error sending opt-out confirmation: %v", err)
	}
	return &ReplyOutcome{Action: "opted_out"}, nil
}

func (e *Engine) handleOptIn(contact *models.Contact) (*ReplyOutcome, error) {
	now := e.Now()
	contact.OptIn = true
	contact.OptInDate = &now
	contact.OptOutDate = nil
	if err := e.Contacts.Save(contact); err != nil {
		return nil, err
	}

	if _, err := e.Gateway.SendText(contact.Phone, optInConfirmation); err != nil {
		log.Printf("[FollowUp] Error sending opt-in confirmation: %v", err)
	}
	return &ReplyOutcome{Action: "opted_in"}, nil
}

func (e *Engine) handleJourneyReply(contact *models.Contact, reply string, lastOutbound *models.Activity) (*ReplyOutcome, error) {
	if lastOutbound.MessageType != models.TypeFollowUp && lastOutbound.MessageType != models.TypeWelcome {
		return nil, nil
	}

	var journey models.Journey
	err := e.DB.
		Where("contact_id = ? AND status IN ?", contact.ID, []string{models.JourneyActive, models.JourneyEscalated}).
		First(&journey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	stages, err := e.stagesFor(&journey)
	if err != nil {
		return nil, err
	}
	stageConfig := flow.StageConfig(stages, journey.CurrentStage)

	currentStage := journey.CurrentStage
	inbound := models.Activity{
		ContactID:         contact.ID,
		Phone:             contact.Phone,
		Direction:         models.DirectionInbound,
		MessageType:       models.TypeReply,
		Content:           reply,
		FollowUpStage:     &currentStage,
		ConversationStage: models.StageAwaitingReply,
		Status:            models.StatusRead,
	}
	if err := e.Activity.Record(&inbound); err != nil {
		return nil, err
	}

	action := "unmapped_reply"
	var options []models.ResponseOption
	if stageConfig != nil {
		options = stageConfig.ResponseOptions
	}
	if option := findResponseOption(reply, options); option != nil {
		action = e.applyResponseOption(option, &journey, contact)
	}

	journey.Replies = append(journey.Replies, models.JourneyReply{
		Content:    reply,
		ReceivedAt: e.Now(),
		Stage:      currentStage,
		Action:     action,
	})
	journey.EngagementScore = calculateEngagement(&journey)
	if err := e.DB.Save(&journey).Error; err != nil {
		return nil, err
	}

	now := e.Now()
	contact.LastReplyAt = &now
	contact.TotalReplies++
	contact.EngagementStatus = "active"
	if err := e.Contacts.Save(contact); err != nil {
		return nil, err
	}

	if err := e.Activity.MarkCompleted(lastOutbound.ID); err != nil {
		log.Printf("[FollowUp] Error completing outbound record %d: %v", lastOutbound.ID, err)
	}
	return &ReplyOutcome{Action: action, Journey: &journey}, nil
}

// applyResponseOption applies every configured effect of a matched option.
func (e *Engine) applyResponseOption(option *models.ResponseOption, journey *models.Journey, contact *models.Contact) string {
	action := "configured_option"
	if option.Code != "" {
		action = "configured_option_" + option.Code
	}

	if strings.TrimSpace(option.ResponseMessage) != "" {
		message := flow.Interpolate(option.ResponseMessage, contact, e.ChurchName)
		if _, err := e.Gateway.SendText(contact.Phone, message); err != nil {
			log.Printf("[FollowUp] Error sending response message: %v", err)
		}
	}

	if option.ConversationStage != "" {
		contact.ConversationStage = option.ConversationStage
	}
	if option.NextStageOverride != nil {
		journey.CurrentStage = *option.NextStageOverride
	}
	if option.JourneyStatus != "" {
		journey.Status = option.JourneyStatus
		if option.JourneyStatus != models.JourneyActive {
			journey.NextMessageAt = nil
		}
	}
	if option.EscalationNotes != "" {
		journey.EscalationNotes = option.EscalationNotes
	}
	return action
}

// handleAbsentReminderReply matches a reply to the absent-reminder rules.
// Absent reminders live outside journeys entirely.
func (e *Engine) handleAbsentReminderReply(contact *models.Contact, reply string) (*ReplyOutcome, error) {
	inbound := models.Activity{
		ContactID:         contact.ID,
		Phone:             contact.Phone,
		Direction:         models.DirectionInbound,
		MessageType:       models.TypeReply,
		Content:           reply,
		ConversationStage: models.StageAwaitingReply,
		Status:            models.StatusRead,
	}
	if err := e.Activity.Record(&inbound); err != nil {
		return nil, err
	}

	absentConfig, err := e.Flows.AbsentReminder()
	if err != nil {
		return nil, err
	}
	if !absentConfig.Enabled {
		return &ReplyOutcome{Action: "absent_reply_ignored"}, nil
	}

	option := findResponseOption(reply, absentConfig.ResponseOptions)
	if option == nil {
		return &ReplyOutcome{Action: "absent_reply_unmapped"}, nil
	}

	if strings.TrimSpace(option.ResponseMessage) != "" {
		message := flow.Interpolate(option.ResponseMessage, contact, e.ChurchName)
		result, sendErr := e.Gateway.SendText(contact.Phone, message)

		outbound := models.Activity{
			ContactID:         contact.ID,
			Phone:             contact.Phone,
			Direction:         models.DirectionOutbound,
			MessageType:       models.TypeManual,
			Content:           message,
			ConversationStage: models.StageCompleted,
			Status:            models.StatusSent,
		}
		if sendErr != nil {
			outbound.Status = models.StatusFailed
			outbound.ErrorDetails = sendErr.Error()
		} else if result != nil {
			outbound.ChannelMessageID = result.MessageID
		}
		if err := e.Activity.Record(&outbound); err != nil {
			log.Printf("[FollowUp] Error recording activity: %v", err)
		}
	}

	if option.ConversationStage != "" {
		contact.ConversationStage = option.ConversationStage
	}
	now := e.Now()
	contact.LastReplyAt = &now
	contact.TotalReplies++
	contact.EngagementStatus = "active"
	if err := e.Contacts.Save(contact); err != nil {
		return nil, err
	}

	return &ReplyOutcome{Action: "absent_" + option.Code}, nil
}

// resolveContact maps an inbound address to a contact: a direct match on a
// previously learned channel id first, then a phone lookup via JID
// resolution. A resolved channel id is backfilled onto the contact.
func (e *Engine) resolveContact(address string) (*models.Contact, error) {
	contact, err := e.Contacts.FindByLID(address)
	if err != nil {
		return nil, err
	}
	if contact != nil {
		return contact, nil
	}

	phone := e.resolvePhoneFromJID(address)
	if phone == "" {
		return nil, nil
	}
	contact, err = e.Contacts.FindByPhone(phone)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, nil
	}

	contact.WhatsappLID = address
	if err := e.Contacts.Save(contact); err != nil {
		return nil, err
	}
	return contact, nil
}

// resolvePhoneFromJID converts a channel JID into a local phone form. LID
// addresses require an upstream contact lookup.
func (e *Engine) resolvePhoneFromJID(jid string) string {
	if jid == "" {
		return ""
	}
	id := strings.SplitN(jid, "@", 2)[0]
	cc := e.DefaultCountryCode

	if strings.HasPrefix(id, cc) && len(id) == len(cc)+10 {
		return "0" + id[len(cc):]
	}
	if strings.HasPrefix(id, "0") && len(id) == 11 {
		return id[1:]
	}

	if strings.HasSuffix(jid, "@lid") {
		payload, err := e.Gateway.LookupContact(jid)
		if err != nil {
			log.Printf("[FollowUp] Failed to resolve LID %s: %v", jid, err)
			return ""
		}
		number, _ := payload["number"].(string)
		if number == "" {
			return ""
		}
		if strings.HasPrefix(number, cc) {
			return "0" + number[len(cc):]
		}
		return number
	}
	return ""
}
