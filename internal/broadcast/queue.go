package broadcast

import (
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"followup-gateway/internal/activity"
	"followup-gateway/internal/config"
	"followup-gateway/internal/flow"
	"followup-gateway/internal/models"
	"followup-gateway/internal/waha"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNoEligibleRecipients is returned when no contact in the target list is
// opted in with a usable phone number.
var ErrNoEligibleRecipients = errors.New("no eligible recipients (none opted in or no phone numbers)")

// Sender is the slice of the channel gateway the queue needs.
type Sender interface {
	SendText(phone, text string) (*waha.SendResult, error)
}

// Queue fans a message out to a recipient list with channel-safe pacing.
// Delivery runs in the background; the caller gets the campaign id back
// immediately.
type Queue struct {
	DB       *gorm.DB
	Gateway  Sender
	Flows    *flow.Store
	Activity *activity.Log

	ChurchName string

	// Inter-send jitter bounds. Randomized pacing between sends mitigates
	// channel-abuse detection upstream.
	MinDelay time.Duration
	MaxDelay time.Duration
	// CheckpointEvery bounds data loss on crash: counts are persisted after
	// this many recipients.
	CheckpointEvery int

	wg sync.WaitGroup
}

func NewQueue(db *gorm.DB, gateway Sender, flows *flow.Store, activityLog *activity.Log, cfg *config.Config) *Queue {
	return &Queue{
		DB:              db,
		Gateway:         gateway,
		Flows:           flows,
		Activity:        activityLog,
		ChurchName:      cfg.ChurchName,
		MinDelay:        3 * time.Second,
		MaxDelay:        5 * time.Second,
		CheckpointEvery: 10,
	}
}

// StartResult is what the synchronous half of SendBroadcast returns.
type StartResult struct {
	BroadcastID     string `json:"broadcastId"`
	TotalRecipients int    `json:"totalRecipients"`
	Message         string `json:"message"`
}

// SendBroadcast persists a campaign for every eligible contact and kicks off
// background delivery. The caller is never blocked on the full send-out.
func (q *Queue) SendBroadcast(broadcastType, content string, contactList []models.Contact, sentBy, audience string) (*StartResult, error) {
	var eligible []models.Contact
	for _, contact := range contactList {
		if contact.OptIn && contact.Phone != "" {
			eligible = append(eligible, contact)
		}
	}
	if len(eligible) == 0 {
		return nil, ErrNoEligibleRecipients
	}

	campaign := models.Broadcast{
		ID:              uuid.NewString(),
		SentBy:          sentBy,
		Type:            broadcastType,
		Content:         content,
		Audience:        audience,
		TotalRecipients: len(eligible),
		Status:          models.BroadcastInProgress,
	}
	for _, contact := range eligible {
		campaign.Recipients = append(campaign.Recipients, models.BroadcastRecipient{
			ContactID: contact.ID,
			Phone:     contact.Phone,
			Status:    models.StatusQueued,
		})
	}
	if err := q.DB.Create(&campaign).Error; err != nil {
		return nil, err
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.deliver(campaign.ID, eligible, content, sentBy)
	}()

	return &StartResult{
		BroadcastID:     campaign.ID,
		TotalRecipients: len(eligible),
		Message:         "Broadcast started.",
	}, nil
}

// Wait blocks until all in-flight deliveries finish. Used on shutdown and in
// tests.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) deliver(campaignID string, recipients []models.Contact, content, sentBy string) {
	var recipientRows []models.BroadcastRecipient
	if err := q.DB.Where("broadcast_id = ?", campaignID).Order("id").Find(&recipientRows).Error; err != nil {
		log.Printf("[Broadcast] Error loading recipients for %s: %v", campaignID, err)
		return
	}

	successCount, failCount := 0, 0
	cancelled := false

	for i := range recipientRows {
		// Honor cancellation between sends.
		var status string
		if err := q.DB.Model(&models.Broadcast{}).Where("id = ?", campaignID).
			Select("status").Scan(&status).Error; err == nil && status == models.BroadcastCancelled {
			cancelled = true
			break
		}

		row := &recipientRows[i]
		contact := recipients[i]

		result, sendErr := q.Gateway.SendText(row.Phone, content)

		now := time.Now()
		row.SentAt = &now
		if sendErr != nil {
			row.Status = models.StatusFailed
			row.Error = sendErr.Error()
			failCount++
		} else {
			row.Status = models.StatusSent
			successCount++
		}
		if err := q.DB.Save(row).Error; err != nil {
			log.Printf("[Broadcast] Error saving recipient %d: %v", row.ID, err)
		}

		q.mirrorActivity(campaignID, &contact, content, sentBy, result, sendErr)

		if (i+1)%q.CheckpointEvery == 0 {
			q.checkpoint(campaignID, successCount, failCount)
		}
		if i < len(recipientRows)-1 {
			q.pause()
		}
	}

	finalStatus := models.BroadcastCompleted
	if cancelled {
		finalStatus = models.BroadcastCancelled
	}
	now := time.Now()
	err := q.DB.Model(&models.Broadcast{}).Where("id = ?", campaignID).Updates(map[string]any{
		"success_count": successCount,
		"fail_count":    failCount,
		"status":        finalStatus,
		"completed_at":  now,
	}).Error
	if err != nil {
		log.Printf("[Broadcast] Error finalizing %s: %v", campaignID, err)
	}
}

func (q *Queue) checkpoint(campaignID string, successCount, failCount int) {
	err := q.DB.Model(&models.Broadcast{}).Where("id = ?", campaignID).Updates(map[string]any{
		"success_count": successCount,
		"fail_count":    failCount,
	}).Error
	if err != nil {
		log.Printf("[Broadcast] Error checkpointing %s: %v", campaignID, err)
	}
}

func (q *Queue) pause() {
	delay := q.MinDelay
	if q.MaxDelay > q.MinDelay {
		delay += time.Duration(rand.Int63n(int64(q.MaxDelay - q.MinDelay)))
	}
	if delay > 0 {
		time.Sleep(delay)
	}
}

func (q *Queue) mirrorActivity(campaignID string, contact *models.Contact, content, sentBy string, result *waha.SendResult, sendErr error) {
	entry := models.Activity{
		ContactID:   contact.ID,
		Phone:       contact.Phone,
		Direction:   models.DirectionOutbound,
		MessageType: models.TypeBroadcast,
		Content:     content,
		Status:      models.StatusSent,
		BroadcastID: &campaignID,
		SentBy:      sentBy,
	}
	if sendErr != nil {
		entry.Status = models.StatusFailed
		entry.ErrorDetails = sendErr.Error()
	} else if result != nil {
		entry.ChannelMessageID = result.MessageID
	}
	if err := q.Activity.Record(&entry); err != nil {
		log.Printf("[Broadcast] Error recording activity: %v", err)
	}
}

// Cancel flips an in-flight campaign to cancelled; the delivery loop checks
// the status before each send and stops.
func (q *Queue) Cancel(campaignID string) error {
	result := q.DB.Model(&models.Broadcast{}).
		Where("id = ? AND status IN ?", campaignID, []string{models.BroadcastPending, models.BroadcastInProgress}).
		Update("status", models.BroadcastCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SundayReminder broadcasts the stock service reminder.
func (q *Queue) SundayReminder(contactList []models.Contact, sentBy, serviceTime string) (*StartResult, error) {
	content := flow.SundayReminderMessage(q.ChurchName, serviceTime)
	return q.SendBroadcast("sunday_reminder", content, contactList, sentBy, "all_opted_in")
}

// EventUpdate broadcasts an event announcement.
func (q *Queue) EventUpdate(contactList []models.Contact, sentBy, eventName, date, timeOfDay, venue string) (*StartResult, error) {
	content := flow.EventUpdateMessage(eventName, date, timeOfDay, venue)
	return q.SendBroadcast("event_update", content, contactList, sentBy, "all_opted_in")
}

// Emergency broadcasts an urgent notice.
func (q *Queue) Emergency(contactList []models.Contact, sentBy, message string) (*StartResult, error) {
	content := flow.EmergencyMessage(message, q.ChurchName)
	return q.SendBroadcast("emergency", content, contactList, sentBy, "all_opted_in")
}

// SendToGroup broadcasts a custom message to an explicit contact list.
func (q *Queue) SendToGroup(contactList []models.Contact, message, sentBy string) (*StartResult, error) {
	return q.SendBroadcast("custom", message, contactList, sentBy, "custom_list")
}

// ManualResult reports a single manual send.
type ManualResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ManualMessage sends one ad-hoc message to a single contact and logs it.
func (q *Queue) ManualMessage(contact *models.Contact, message, sentBy string) (*ManualResult, error) {
	if contact.Phone == "" {
		return nil, waha.ErrInvalidPhone
	}

	result, sendErr := q.Gateway.SendText(contact.Phone, message)

	entry := models.Activity{
		ContactID:   contact.ID,
		Phone:       contact.Phone,
		Direction:   models.DirectionOutbound,
		MessageType: models.TypeManual,
		Content:     message,
		Status:      models.StatusSent,
		SentBy:      sentBy,
	}
	if sendErr != nil {
		entry.Status = models.StatusFailed
		entry.ErrorDetails = sendErr.Error()
	} else if result != nil {
		entry.ChannelMessageID = result.MessageID
	}
	if err := q.Activity.Record(&entry); err != nil {
		log.Printf("[Broadcast] Error recording activity: %v", err)
	}

	now := time.Now()
	err := q.DB.Model(&models.Contact{}).Where("id = ?", contact.ID).Updates(map[string]any{
		"last_message_sent_at": now,
		"total_messages_sent":  gorm.Expr("total_messages_sent + 1"),
	}).Error
	if err != nil {
		log.Printf("[Broadcast] Error updating contact %d: %v", contact.ID, err)
	}

	if sendErr != nil {
		return &ManualResult{Success: false, Error: sendErr.Error()}, nil
	}
	return &ManualResult{Success: true, MessageID: result.MessageID}, nil
}

// AbsentResult reports one absent-reminder send.
type AbsentResult struct {
	ContactID uint   `json:"contactId"`
	Phone     string `json:"phone"`
	Success   bool   `json:"success"`
}

// AbsentReminders sends the absent check-in to each eligible contact,
// serially with pacing, logging each as awaiting a reply.
func (q *Queue) AbsentReminders(absent []models.Contact, sentBy string, weeksMissed int) ([]AbsentResult, error) {
	absentConfig, err := q.Flows.AbsentReminder()
	if err != nil {
		return nil, err
	}

	var results []AbsentResult
	for i := range absent {
		contact := &absent[i]
		if !contact.OptIn || contact.Phone == "" {
			continue
		}

		var content string
		if absentConfig.Enabled && absentConfig.MessageTemplate != "" {
			content = flow.InterpolateAbsent(absentConfig.MessageTemplate, contact, q.ChurchName, weeksMissed)
		} else {
			content = flow.AbsentReminderMessage(flow.FirstName(contact), weeksMissed)
		}

		result, sendErr := q.Gateway.SendText(contact.Phone, content)

		entry := models.Activity{
			ContactID:         contact.ID,
			Phone:             contact.Phone,
			Direction:         models.DirectionOutbound,
			MessageType:       models.TypeAbsentReminder,
			Content:           content,
			ConversationStage: models.StageAwaitingReply,
			Status:            models.StatusSent,
			SentBy:            sentBy,
		}
		if sendErr != nil {
			entry.Status = models.StatusFailed
			entry.ErrorDetails = sendErr.Error()
		} else if result != nil {
			entry.ChannelMessageID = result.MessageID
		}
		if err := q.Activity.Record(&entry); err != nil {
			log.Printf("[Broadcast] Error recording activity: %v", err)
		}

		results = append(results, AbsentResult{
			ContactID: contact.ID,
			Phone:     contact.Phone,
			Success:   sendErr == nil,
		})

		if i < len(absent)-1 {
			q.pause()
		}
	}
	return results, nil
}

// History returns campaigns newest first, without recipient rows.
func (q *Queue) History(page, limit int, typeFilter, statusFilter string) ([]models.Broadcast, int64, error) {
	query := q.DB.Model(&models.Broadcast{})
	if typeFilter != "" {
		query = query.Where("type = ?", typeFilter)
	}
	if statusFilter != "" {
		query = query.Where("status = ?", statusFilter)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var campaigns []models.Broadcast
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&campaigns).Error
	return campaigns, total, err
}

// Detail returns one campaign with its recipient rows.
func (q *Queue) Detail(campaignID string) (*models.Broadcast, error) {
	var campaign models.Broadcast
	err := q.DB.Preload("Recipients").Where("id = ?", campaignID).First(&campaign).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}
