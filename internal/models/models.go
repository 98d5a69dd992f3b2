package models

import (
	"time"
)

// Journey statuses.
const (
	JourneyActive    = "active"
	JourneyCompleted = "completed"
	JourneyPaused    = "paused"
	JourneyEscalated = "escalated"
	JourneyOptedOut  = "opted_out"
)

// Activity directions.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// Activity message types.
const (
	TypeWelcome        = "welcome"
	TypeFollowUp       = "follow_up"
	TypeBroadcast      = "broadcast"
	TypeManual         = "manual"
	TypeReply          = "reply"
	TypePrayerRequest  = "prayer_request"
	TypeAbsentReminder = "absent_reminder"
	TypeCommunityLink  = "community_link"
)

// Activity conversation stages.
const (
	StageWelcomeSent   = "welcome_sent"
	StageAwaitingReply = "awaiting_reply"
	StageCompleted     = "completed"
	StageIdle          = "idle"
)

// Delivery statuses shared by activities and broadcast recipients.
const (
	StatusQueued    = "queued"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Broadcast campaign statuses.
const (
	BroadcastPending    = "pending"
	BroadcastInProgress = "in_progress"
	BroadcastCompleted  = "completed"
	BroadcastCancelled  = "cancelled"
)

// Flow config types.
const (
	ConfigFollowUp       = "follow_up"
	ConfigAbsentReminder = "absent_reminder"
)

// Engagement score buckets.
const (
	EngagementNone   = "none"
	EngagementLow    = "low"
	EngagementMedium = "medium"
	EngagementHigh   = "high"
)

// Contact holds the WhatsApp-specific subset of a member record. Member
// management proper lives elsewhere; this service only reads contacts and
// patches these fields.
type Contact struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	FirstName         string     `gorm:"type:varchar(100)" json:"first_name"`
	LastName          string     `gorm:"type:varchar(100)" json:"last_name"`
	Phone             string     `gorm:"type:varchar(30);index" json:"phone"`
	WhatsappLID       string     `gorm:"column:whatsapp_lid;type:varchar(100);index" json:"whatsapp_lid"`
	OptIn             bool       `gorm:"default:false" json:"opt_in"`
	OptInDate         *time.Time `json:"opt_in_date"`
	OptOutDate        *time.Time `json:"opt_out_date"`
	FirstTimer        bool       `gorm:"default:false" json:"first_timer"`
	FirstVisitDate    *time.Time `json:"first_visit_date"`
	ConversationStage string     `gorm:"type:varchar(50);default:'none'" json:"conversation_stage"`
	FollowUpStage     int        `gorm:"default:-1" json:"follow_up_stage"`
	EngagementStatus  string     `gorm:"type:varchar(20);default:'new'" json:"engagement_status"`
	TotalMessagesSent int        `gorm:"default:0" json:"total_messages_sent"`
	TotalReplies      int        `gorm:"default:0" json:"total_replies"`
	LastMessageSentAt *time.Time `json:"last_message_sent_at"`
	LastReplyAt       *time.Time `json:"last_reply_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

func (c *Contact) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// ResponseOption maps a reply pattern to a configured outcome.
type ResponseOption struct {
	Code              string   `json:"code"`
	Matches           []string `json:"matches"`
	ResponseMessage   string   `json:"responseMessage"`
	ConversationStage string   `json:"conversationStage,omitempty"`
	JourneyStatus     string   `json:"journeyStatus,omitempty"`
	EscalationNotes   string   `json:"escalationNotes,omitempty"`
	NextStageOverride *int     `json:"nextStageOverride,omitempty"`
}

// FlowStage is one step in the ordered outbound sequence.
type FlowStage struct {
	Stage           int              `json:"stage"`
	Key             string           `json:"key"`
	Enabled         bool             `json:"enabled"`
	Message         string           `json:"message"`
	DelayToNextDays *int             `json:"delayToNextDays"`
	SendHour        int              `json:"sendHour"`
	SendMinute      int              `json:"sendMinute"`
	ResponseOptions []ResponseOption `json:"responseOptions,omitempty"`
}

// AbsentReminderConfig drives the side-channel reminder flow that runs
// outside journey stages.
type AbsentReminderConfig struct {
	Enabled         bool             `json:"enabled"`
	MessageTemplate string           `json:"messageTemplate"`
	ResponseOptions []ResponseOption `json:"responseOptions"`
}

// FlowConfig is a versioned flow definition document. ConfigType selects
// which half is populated: Stages for follow_up, AbsentReminder for
// absent_reminder.
type FlowConfig struct {
	ID             uint                  `gorm:"primaryKey" json:"id"`
	ConfigType     string                `gorm:"type:varchar(30);index;not null" json:"config_type"`
	Name           string                `gorm:"type:varchar(255)" json:"name"`
	IsDefault      bool                  `gorm:"default:false;index" json:"is_default"`
	IsActive       bool                  `gorm:"default:true;index" json:"is_active"`
	Stages         []FlowStage           `gorm:"serializer:json;type:text" json:"stages"`
	AbsentReminder *AbsentReminderConfig `gorm:"serializer:json;type:text" json:"absent_reminder"`
	UpdatedBy      string                `gorm:"type:varchar(100)" json:"updated_by"`
	CreatedAt      time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FlowConfig) TableName() string {
	return "flow_configs"
}

// SentMessage records one outbound journey message.
type SentMessage struct {
	Stage       int       `json:"stage"`
	SentAt      time.Time `json:"sentAt"`
	MessageType string    `json:"messageType"`
}

// JourneyReply records one interpreted inbound reply.
type JourneyReply struct {
	Content    string    `json:"content"`
	ReceivedAt time.Time `json:"receivedAt"`
	Stage      int       `json:"stage"`
	Action     string    `json:"action"`
}

// Journey tracks one contact's progress through the follow-up flow. One per
// contact; never deleted, only status-transitioned.
type Journey struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	ContactID       uint           `gorm:"uniqueIndex;not null" json:"contact_id"`
	Phone           string         `gorm:"type:varchar(30);not null" json:"phone"`
	FlowConfigID    *uint          `json:"flow_config_id"`
	CurrentStage    int            `gorm:"default:0" json:"current_stage"`
	Status          string         `gorm:"type:varchar(20);default:'active';index:idx_journeys_due" json:"status"`
	MessagesSent    []SentMessage  `gorm:"serializer:json;type:text" json:"messages_sent"`
	Replies         []JourneyReply `gorm:"serializer:json;type:text" json:"replies"`
	StartedAt       time.Time      `json:"started_at"`
	NextMessageAt   *time.Time     `gorm:"index:idx_journeys_due" json:"next_message_at"`
	AssignedTo      string         `gorm:"type:varchar(100)" json:"assigned_to"`
	EscalationNotes string         `gorm:"type:text" json:"escalation_notes"`
	EngagementScore string         `gorm:"type:varchar(10);default:'none'" json:"engagement_score"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Journey) TableName() string {
	return "follow_up_journeys"
}

// Activity is one append-only log entry for an inbound or outbound message.
type Activity struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ContactID         uint      `gorm:"index:idx_activities_contact;not null" json:"contact_id"`
	Phone             string    `gorm:"type:varchar(30);index" json:"phone"`
	Direction         string    `gorm:"type:varchar(10);not null" json:"direction"`
	MessageType       string    `gorm:"type:varchar(30);not null" json:"message_type"`
	Content           string    `gorm:"type:text;not null" json:"content"`
	FollowUpStage     *int      `json:"follow_up_stage"`
	ConversationStage string    `gorm:"type:varchar(50);default:'idle';index" json:"conversation_stage"`
	Status            string    `gorm:"type:varchar(20);default:'queued'" json:"status"`
	ChannelMessageID  string    `gorm:"type:varchar(255)" json:"channel_message_id"`
	ErrorDetails      string    `gorm:"type:text" json:"error_details"`
	BroadcastID       *string   `gorm:"type:varchar(36);index" json:"broadcast_id"`
	SentBy            string    `gorm:"type:varchar(100)" json:"sent_by"`
	CreatedAt         time.Time `gorm:"autoCreateTime;index:idx_activities_contact" json:"created_at"`
}

func (Activity) TableName() string {
	return "whatsapp_activities"
}

// Broadcast is one campaign sent to a recipient list, tracked to completion.
type Broadcast struct {
	ID              string               `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SentBy          string               `gorm:"type:varchar(100);not null" json:"sent_by"`
	Type            string               `gorm:"type:varchar(30);not null;index" json:"type"`
	Content         string               `gorm:"type:text;not null" json:"content"`
	Audience        string               `gorm:"type:varchar(30);default:'all_opted_in'" json:"audience"`
	TotalRecipients int                  `gorm:"default:0" json:"total_recipients"`
	SuccessCount    int                  `gorm:"default:0" json:"success_count"`
	FailCount       int                  `gorm:"default:0" json:"fail_count"`
	Recipients      []BroadcastRecipient `gorm:"foreignKey:BroadcastID;constraint:OnDelete:CASCADE" json:"recipients,omitempty"`
	Status          string               `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	CompletedAt     *time.Time           `json:"completed_at"`
	CreatedAt       time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Broadcast) TableName() string {
	return "broadcasts"
}

type BroadcastRecipient struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	BroadcastID string     `gorm:"index;type:varchar(36);not null" json:"broadcast_id"`
	ContactID   uint       `gorm:"not null" json:"contact_id"`
	Phone       string     `gorm:"type:varchar(30)" json:"phone"`
	Status      string     `gorm:"type:varchar(20);default:'queued'" json:"status"`
	SentAt      *time.Time `json:"sent_at"`
	Error       string     `gorm:"type:text" json:"error"`
}

func (BroadcastRecipient) TableName() string {
	return "broadcast_recipients"
}
