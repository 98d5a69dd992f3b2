package followup

import (
	"errors"
	"fmt"
	"log"
	"time"

	"followup-gateway/internal/activity"
	"followup-gateway/internal/config"
	"followup-gateway/internal/contacts"
	"followup-gateway/internal/flow"
	"followup-gateway/internal/models"
	"followup-gateway/internal/waha"

	"gorm.io/gorm"
)

// Gateway is the slice of the channel gateway the engine needs.
type Gateway interface {
	SendText(phone, text string) (*waha.SendResult, error)
	LookupContact(contactID string) (map[string]any, error)
}

// Engine owns one journey state machine per contact: it advances contacts
// through flow stages on a schedule and interprets inbound replies against
// the active stage's configured response options.
type Engine struct {
	DB       *gorm.DB
	Gateway  Gateway
	Flows    *flow.Store
	Contacts *contacts.Store
	Activity *activity.Log

	ChurchName         string
	CommunityLink      string
	DefaultCountryCode string

	// FallbackDelays is the per-stage default delay table used when a stage
	// config omits delayToNextDays.
	FallbackDelays map[int]int

	// SendDelay paces serial sends within a scheduler tick.
	SendDelay time.Duration
	// LinkDelay spaces the community-link follow-up from the welcome.
	LinkDelay time.Duration

	Now func() time.Time

	locks *contactLocks
}

func NewEngine(db *gorm.DB, gateway Gateway, flows *flow.Store, contactStore *contacts.Store, activityLog *activity.Log, cfg *config.Config) *Engine {
	return &Engine{
		DB:                 db,
		Gateway:            gateway,
		Flows:              flows,
		Contacts:           contactStore,
		Activity:           activityLog,
		ChurchName:         cfg.ChurchName,
		CommunityLink:      cfg.CommunityLink,
		DefaultCountryCode: cfg.DefaultCountryCode,
		FallbackDelays:     flow.DefaultStageDelays,
		SendDelay:          3 * time.Second,
		LinkDelay:          3 * time.Second,
		Now:                time.Now,
		locks:              newContactLocks(),
	}
}

// StartJourney is idempotent: a paused journey resumes in place, an
// active/escalated one is returned unchanged, an opted-out one restarts from
// the first enabled stage, and a missing one is created with the welcome
// message sent immediately.
func (e *Engine) StartJourney(contact *models.Contact) (*models.Journey, error) {
	lock := e.locks.forContact(contact.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.Flows.EnsureDefaults(); err != nil {
		return nil, err
	}
	activeConfig, err := e.Flows.ActiveConfig()
	if err != nil {
		return nil, err
	}
	stages := flow.DefaultStages()
	if activeConfig != nil && len(activeConfig.Stages) > 0 {
		stages = activeConfig.Stages
	}
	stages = flow.OrderedStages(stages)

	var existing models.Journey
	err = e.DB.Where("contact_id = ?", contact.ID).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		switch existing.Status {
		case models.JourneyPaused:
			existing.Status = models.JourneyActive
			if existing.NextMessageAt == nil {
				stageConfig := flow.StageConfig(stages, existing.CurrentStage)
				next := e.nextMessageAt(stageConfig, existing.CurrentStage)
				existing.NextMessageAt = next
			}
			if err := e.DB.Save(&existing).Error; err != nil {
				return nil, err
			}
			return &existing, nil
		case models.JourneyOptedOut:
			// A fresh start is the only way back from opted_out.
			return e.restartJourney(&existing, contact, activeConfig, stages)
		default:
			return &existing, nil
		}
	}

	startStage, journeyInit, err := e.sendFirstStage(contact, stages)
	if err != nil {
		return nil, err
	}

	journey := models.Journey{
		ContactID:     contact.ID,
		Phone:         contact.Phone,
		CurrentStage:  startStage,
		Status:        models.JourneyActive,
		MessagesSent:  journeyInit.messagesSent,
		StartedAt:     e.Now(),
		NextMessageAt: journeyInit.nextMessageAt,
	}
	if activeConfig != nil {
		journey.FlowConfigID = &activeConfig.ID
	}
	if err := e.DB.Create(&journey).Error; err != nil {
		return nil, err
	}
	return &journey, nil
}

type firstStageResult struct {
	messagesSent  []models.SentMessage
	nextMessageAt *time.Time
}

func (e *Engine) sendFirstStage(contact *models.Contact, stages []models.FlowStage) (int, firstStageResult, error) {
	startConfig := flow.FirstEnabledStage(stages)
	startStage := 0
	if startConfig != nil {
		startStage = startConfig.Stage
	}

	welcomeMsg := flow.ResolveStageMessage(startStage, startConfig, contact, e.ChurchName)
	result, sendErr := e.Gateway.SendText(contact.Phone, welcomeMsg)

	conversationStage := models.StageAwaitingReply
	if startStage == 0 {
		conversationStage = models.StageWelcomeSent
	}
	e.logOutboundSend(contact, welcomeMsg, models.TypeWelcome, &startStage, conversationStage, result, sendErr)

	if e.CommunityLink != "" && sendErr == nil {
		time.Sleep(e.LinkDelay)
		linkMsg := flow.CommunityLinkMessage(e.CommunityLink, e.ChurchName)
		if _, err := e.Gateway.SendText(contact.Phone, linkMsg); err == nil {
			zero := 0
			e.logOutboundSend(contact, linkMsg, models.TypeCommunityLink, &zero, models.StageWelcomeSent, nil, nil)
		}
	}

	return startStage, firstStageResult{
		messagesSent: []models.SentMessage{
			{Stage: startStage, SentAt: e.Now(), MessageType: models.TypeWelcome},
		},
		nextMessageAt: e.nextMessageAt(startConfig, startStage),
	}, nil
}

func (e *Engine) restartJourney(journey *models.Journey, contact *models.Contact, activeConfig *models.FlowConfig, stages []models.FlowStage) (*models.Journey, error) {
	startStage, init, err := e.sendFirstStage(contact, stages)
	if err != nil {
		return nil, err
	}
	journey.CurrentStage = startStage
	journey.Status = models.JourneyActive
	journey.MessagesSent = append(journey.MessagesSent, init.messagesSent...)
	journey.NextMessageAt = init.nextMessageAt
	journey.StartedAt = e.Now()
	journey.EscalationNotes = ""
	if activeConfig != nil {
		journey.FlowConfigID = &activeConfig.ID
	}
	if err := e.DB.Save(journey).Error; err != nil {
		return nil, err
	}
	return journey, nil
}

// ProcessScheduledMessages advances every due journey, serially with a fixed
// inter-send delay. A single failing journey never aborts the tick.
func (e *Engine) ProcessScheduledMessages() error {
	now := e.Now()
	var due []models.Journey
	err := e.DB.
		Where("status = ? AND next_message_at IS NOT NULL AND next_message_at <= ?", models.JourneyActive, now).
		Find(&due).Error
	if err != nil {
		return err
	}

	for i, journey := range due {
		if err := e.advanceJourney(journey.ID); err != nil {
			log.Printf("[FollowUp] Error processing journey %d: %v", journey.ID, err)
		}
		if i < len(due)-1 {
			time.Sleep(e.SendDelay)
		}
	}
	return nil
}

func (e *Engine) advanceJourney(journeyID uint) error {
	var journey models.Journey
	if err := e.DB.First(&journey, journeyID).Error; err != nil {
		return err
	}

	lock := e.locks.forContact(journey.ContactID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: a reply may have paused, completed, or
	// rescheduled the journey since the due query ran.
	if err := e.DB.First(&journey, journeyID).Error; err != nil {
		return err
	}
	if journey.Status != models.JourneyActive || journey.NextMessageAt == nil || journey.NextMessageAt.After(e.Now()) {
		return nil
	}

	contact, err := e.Contacts.Get(journey.ContactID)
	if err != nil {
		return err
	}

	stages, err := e.stagesFor(&journey)
	if err != nil {
		return err
	}

	nextConfig := flow.NextEnabledStage(journey.CurrentStage, stages)
	if nextConfig == nil {
		journey.Status = models.JourneyCompleted
		journey.NextMessageAt = nil
		return e.DB.Save(&journey).Error
	}
	nextStage := nextConfig.Stage

	message := flow.ResolveStageMessage(nextStage, nextConfig, contact, e.ChurchName)
	result, sendErr := e.Gateway.SendText(journey.Phone, message)
	e.logOutboundSend(contact, message, models.TypeFollowUp, &nextStage, models.StageAwaitingReply, result, sendErr)

	journey.CurrentStage = nextStage
	journey.MessagesSent = append(journey.MessagesSent, models.SentMessage{
		Stage:       nextStage,
		SentAt:      e.Now(),
		MessageType: models.TypeFollowUp,
	})

	if next := e.nextMessageAt(nextConfig, nextStage); next != nil {
		journey.NextMessageAt = next
	} else {
		journey.Status = models.JourneyEscalated
		journey.NextMessageAt = nil
		journey.EscalationNotes = "Automated journey completed. Needs human follow-up."
	}
	if err := e.DB.Save(&journey).Error; err != nil {
		return err
	}

	now := e.Now()
	contact.FollowUpStage = nextStage
	contact.LastMessageSentAt = &now
	return e.Contacts.Save(contact)
}

func (e *Engine) stagesFor(journey *models.Journey) ([]models.FlowStage, error) {
	if journey.FlowConfigID != nil {
		cfg, err := e.Flows.ConfigByID(*journey.FlowConfigID)
		if err != nil {
			return nil, err
		}
		if cfg != nil && len(cfg.Stages) > 0 {
			return flow.OrderedStages(cfg.Stages), nil
		}
	}
	stages, err := e.Flows.ActiveStages()
	if err != nil {
		return nil, err
	}
	return flow.OrderedStages(stages), nil
}

// nextMessageAt computes the next send time from stage config, falling back
// to the default per-stage delay table. Nil means no schedule is computable.
func (e *Engine) nextMessageAt(stageConfig *models.FlowStage, stage int) *time.Time {
	if stageConfig != nil && stageConfig.DelayToNextDays != nil {
		next := e.Now().AddDate(0, 0, *stageConfig.DelayToNextDays)
		at := time.Date(next.Year(), next.Month(), next.Day(), stageConfig.SendHour, stageConfig.SendMinute, 0, 0, next.Location())
		return &at
	}
	delay, ok := e.FallbackDelays[stage]
	if !ok {
		return nil
	}
	next := e.Now().AddDate(0, 0, delay)
	at := time.Date(next.Year(), next.Month(), next.Day(), 10, 0, 0, 0, next.Location())
	return &at
}

func (e *Engine) logOutboundSend(contact *models.Contact, content, messageType string, stage *int, conversationStage string, result *waha.SendResult, sendErr error) {
	entry := models.Activity{
		ContactID:         contact.ID,
		Phone:             contact.Phone,
		Direction:         models.DirectionOutbound,
		MessageType:       messageType,
		Content:           content,
		FollowUpStage:     stage,
		ConversationStage: conversationStage,
		Status:            models.StatusSent,
	}
	if sendErr != nil {
		entry.Status = models.StatusFailed
		entry.ErrorDetails = sendErr.Error()
	} else if result != nil {
		entry.ChannelMessageID = result.MessageID
	}
	if err := e.Activity.Record(&entry); err != nil {
		log.Printf("[FollowUp] Error recording activity: %v", err)
	}
}

// calculateEngagement buckets the reply-to-message ratio.
func calculateEngagement(journey *models.Journey) string {
	replyCount := len(journey.Replies)
	if replyCount == 0 {
		return models.EngagementNone
	}
	stageCount := len(journey.MessagesSent)
	if stageCount < 1 {
		stageCount = 1
	}
	ratio := float64(replyCount) / float64(stageCount)
	switch {
	case ratio >= 0.75:
		return models.EngagementHigh
	case ratio >= 0.4:
		return models.EngagementMedium
	default:
		return models.EngagementLow
	}
}

func stopNote(actor, reason string) string {
	if actor == "" {
		actor = "admin"
	}
	note := fmt.Sprintf("Stopped by %s on %s.", actor, time.Now().UTC().Format(time.RFC3339))
	if reason != "" {
		note += " Reason: " + reason
	}
	return note
}

// StopJourneyByContact pauses a contact's active/escalated journey. Paused
// journeys resume via StartJourney without resetting the stage.
func (e *Engine) StopJourneyByContact(contactID uint, actor, reason string) (*models.Journey, error) {
	lock := e.locks.forContact(contactID)
	lock.Lock()
	defer lock.Unlock()

	var journey models.Journey
	err := e.DB.
		Where("contact_id = ? AND status IN ?", contactID, []string{models.JourneyActive, models.JourneyEscalated}).
		First(&journey).Error
	if err != nil {
		return nil, err
	}
	return e.pauseJourney(&journey, actor, reason)
}

func (e *Engine) StopJourneyByID(journeyID uint, actor, reason string) (*models.Journey, error) {
	var journey models.Journey
	err := e.DB.
		Where("id = ? AND status IN ?", journeyID, []string{models.JourneyActive, models.JourneyEscalated}).
		First(&journey).Error
	if err != nil {
		return nil, err
	}

	lock := e.locks.forContact(journey.ContactID)
	lock.Lock()
	defer lock.Unlock()
	if err := e.DB.First(&journey, journey.ID).Error; err != nil {
		return nil, err
	}
	return e.pauseJourney(&journey, actor, reason)
}

func (e *Engine) pauseJourney(journey *models.Journey, actor, reason string) (*models.Journey, error) {
	journey.Status = models.JourneyPaused
	journey.NextMessageAt = nil
	journey.EscalationNotes = stopNote(actor, reason)
	if err := e.DB.Save(journey).Error; err != nil {
		return nil, err
	}

	if contact, err := e.Contacts.Get(journey.ContactID); err == nil {
		contact.ConversationStage = models.StageCompleted
		if err := e.Contacts.Save(contact); err != nil {
			log.Printf("[FollowUp] Error updating contact %d: %v", contact.ID, err)
		}
	}
	return journey, nil
}

// StopAllActive pauses every active/escalated journey, optionally restricted
// to a set of contacts. Returns how many journeys were updated.
func (e *Engine) StopAllActive(contactIDs []uint, actor, reason string) (int64, error) {
	q := e.DB.Model(&models.Journey{}).
		Where("status IN ?", []string{models.JourneyActive, models.JourneyEscalated})
	if len(contactIDs) > 0 {
		q = q.Where("contact_id IN ?", contactIDs)
	}

	result := q.Updates(map[string]any{
		"status":           models.JourneyPaused,
		"next_message_at":  nil,
		"escalation_notes": stopNote(actor, reason),
	})
	if result.Error != nil {
		return 0, result.Error
	}

	if len(contactIDs) > 0 {
		err := e.DB.Model(&models.Contact{}).
			Where("id IN ?", contactIDs).
			Update("conversation_stage", models.StageCompleted).Error
		if err != nil {
			return result.RowsAffected, err
		}
	}
	return result.RowsAffected, nil
}

// JourneyByContact returns a contact's journey regardless of status.
func (e *Engine) JourneyByContact(contactID uint) (*models.Journey, error) {
	var journey models.Journey
	if err := e.DB.Where("contact_id = ?", contactID).First(&journey).Error; err != nil {
		return nil, err
	}
	return &journey, nil
}

// ListJourneys returns journeys newest first, optionally filtered by status.
func (e *Engine) ListJourneys(status string, page, limit int) ([]models.Journey, int64, error) {
	q := e.DB.Model(&models.Journey{})
	if status != "" && status != "all" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var journeys []models.Journey
	err := q.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&journeys).Error
	return journeys, total, err
}
