package activity

import (
	"errors"
	"time"

	"followup-gateway/internal/models"

	"gorm.io/gorm"
)

// Log is the append-only record of every inbound and outbound message. It
// doubles as the source of truth for "what is the contact currently expected
// to reply to".
type Log struct {
	DB *gorm.DB
}

func NewLog(db *gorm.DB) *Log {
	return &Log{DB: db}
}

func (l *Log) Record(entry *models.Activity) error {
	return l.DB.Create(entry).Error
}

// LastAwaitingOutbound finds the most recent outbound message still awaiting
// a reply, optionally restricted to after the contact's last recorded reply.
func (l *Log) LastAwaitingOutbound(contactID uint, after *time.Time) (*models.Activity, error) {
	q := l.DB.
		Where("contact_id = ? AND direction = ?", contactID, models.DirectionOutbound).
		Where("conversation_stage IN ?", []string{models.StageAwaitingReply, models.StageWelcomeSent}).
		Where("message_type IN ?", []string{models.TypeAbsentReminder, models.TypeFollowUp, models.TypeWelcome})
	if after != nil {
		q = q.Where("created_at > ?", *after)
	}

	var entry models.Activity
	err := q.Order("created_at DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// HasReplyAfter reports whether an inbound reply was already logged after
// the given outbound record. Guards against duplicate webhook deliveries.
func (l *Log) HasReplyAfter(contactID uint, after time.Time) (bool, error) {
	var count int64
	err := l.DB.Model(&models.Activity{}).
		Where("contact_id = ? AND direction = ? AND message_type = ?", contactID, models.DirectionInbound, models.TypeReply).
		Where("created_at > ?", after).
		Count(&count).Error
	return count > 0, err
}

// LastAbsentReminder finds the most recent outbound absent reminder for a
// contact.
func (l *Log) LastAbsentReminder(contactID uint) (*models.Activity, error) {
	var entry models.Activity
	err := l.DB.
		Where("contact_id = ? AND direction = ? AND message_type = ?",
			contactID, models.DirectionOutbound, models.TypeAbsentReminder).
		Order("created_at DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// MarkCompleted flips an outbound record out of the awaiting-reply pool.
func (l *Log) MarkCompleted(id uint) error {
	return l.DB.Model(&models.Activity{}).Where("id = ?", id).
		Update("conversation_stage", models.StageCompleted).Error
}

// ForContact returns a contact's history, newest first, paginated.
func (l *Log) ForContact(contactID uint, page, limit int) ([]models.Activity, int64, error) {
	var total int64
	if err := l.DB.Model(&models.Activity{}).Where("contact_id = ?", contactID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.Activity
	err := l.DB.Where("contact_id = ?", contactID).
		Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&entries).Error
	return entries, total, err
}
