package flow

import (
	"errors"
	"fmt"
	"sort"

	"followup-gateway/internal/models"

	"gorm.io/gorm"
)

// ErrInvalidConfig marks configuration-validation failures. These are
// caller-visible and block the write entirely.
var ErrInvalidConfig = errors.New("invalid flow configuration")

// DefaultStageDelays is the hard-coded per-stage fallback delay table (in
// days) used when a stage config omits delayToNextDays.
var DefaultStageDelays = map[int]int{0: 2, 2: 3, 4: 3}

func intPtr(v int) *int { return &v }

// DefaultStages is the stock follow-up sequence seeded when no default
// config exists.
func DefaultStages() []models.FlowStage {
	return []models.FlowStage{
		{Stage: 0, Key: "welcome", Enabled: true, DelayToNextDays: intPtr(2), SendHour: 10,
			ResponseOptions: []models.ResponseOption{
				{
					Code:              "1",
					Matches:           []string{"prayer", "prayer request"},
					ResponseMessage:   PrayerRequestAckTemplate,
					ConversationStage: "prayer_requested",
				},
				{
					Code:            "2",
					Matches:         []string{"small group", "group"},
					ResponseMessage: SmallGroupInfoTemplate,
				},
				{
					Code:            "3",
					Matches:         []string{"membership", "member"},
					ResponseMessage: MembershipInfoTemplate,
				},
			}},
		{Stage: 2, Key: "day2", Enabled: true, DelayToNextDays: intPtr(2), SendHour: 10},
		{Stage: 4, Key: "day4", Enabled: true, DelayToNextDays: intPtr(3), SendHour: 10},
		{Stage: 7, Key: "day7", Enabled: true, DelayToNextDays: nil, SendHour: 10},
	}
}

// DefaultAbsentReminder is the stock absent-reminder rule set.
func DefaultAbsentReminder() *models.AbsentReminderConfig {
	return &models.AbsentReminderConfig{
		Enabled: true,
		ResponseOptions: []models.ResponseOption{
			{
				Code:            "1",
				Matches:         []string{"fine", "back soon"},
				ResponseMessage: "Thanks {{firstName}}. We are glad to hear from you and look forward to seeing you soon.",
			},
			{
				Code:              "2",
				Matches:           []string{"prayer", "support"},
				ResponseMessage:   "Thank you for sharing. Our team will pray with you and reach out shortly.",
				ConversationStage: "prayer_requested",
			},
			{
				Code:              "3",
				Matches:           []string{"call", "please call me"},
				ResponseMessage:   "Thanks {{firstName}}. A team member will call you as soon as possible.",
				ConversationStage: "escalated_to_human",
			},
		},
	}
}

// Store reads and writes flow configuration documents. Configuration is
// fetched fresh per operation; nothing is cached.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// EnsureDefaults creates the default follow-up and absent-reminder configs
// when none exist. Safe to call on every scheduler tick.
func (s *Store) EnsureDefaults() error {
	var count int64
	if err := s.DB.Model(&models.FlowConfig{}).
		Where("config_type = ? AND is_default = ?", models.ConfigFollowUp, true).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		cfg := models.FlowConfig{
			ConfigType: models.ConfigFollowUp,
			Name:       "Default Follow-up Flow",
			IsDefault:  true,
			IsActive:   true,
			Stages:     DefaultStages(),
		}
		if err := s.DB.Create(&cfg).Error; err != nil {
			return err
		}
	}

	if err := s.DB.Model(&models.FlowConfig{}).
		Where("config_type = ? AND is_default = ?", models.ConfigAbsentReminder, true).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		cfg := models.FlowConfig{
			ConfigType:     models.ConfigAbsentReminder,
			Name:           "Default Absent Reminder",
			IsDefault:      true,
			IsActive:       true,
			AbsentReminder: DefaultAbsentReminder(),
		}
		if err := s.DB.Create(&cfg).Error; err != nil {
			return err
		}
	}
	return nil
}

// ActiveConfig returns the most recently updated default active follow-up
// config, or nil when none exists.
func (s *Store) ActiveConfig() (*models.FlowConfig, error) {
	var cfg models.FlowConfig
	err := s.DB.
		Where("config_type = ? AND is_default = ? AND is_active = ?", models.ConfigFollowUp, true, true).
		Order("updated_at DESC").
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) ConfigByID(id uint) (*models.FlowConfig, error) {
	var cfg models.FlowConfig
	err := s.DB.
		Where("id = ? AND config_type = ? AND is_active = ?", id, models.ConfigFollowUp, true).
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ActiveStages returns the active config's stages, falling back to the stock
// sequence.
func (s *Store) ActiveStages() ([]models.FlowStage, error) {
	cfg, err := s.ActiveConfig()
	if err != nil {
		return nil, err
	}
	if cfg != nil && len(cfg.Stages) > 0 {
		return cfg.Stages, nil
	}
	return DefaultStages(), nil
}

// AbsentReminder returns the default absent-reminder rules, falling back to
// the stock set.
func (s *Store) AbsentReminder() (*models.AbsentReminderConfig, error) {
	var cfg models.FlowConfig
	err := s.DB.
		Where("config_type = ? AND is_default = ? AND is_active = ?", models.ConfigAbsentReminder, true, true).
		Order("updated_at DESC").
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultAbsentReminder(), nil
	}
	if err != nil {
		return nil, err
	}
	if cfg.AbsentReminder == nil {
		return DefaultAbsentReminder(), nil
	}
	return cfg.AbsentReminder, nil
}

// UpdateFollowUpFlow validates and replaces the default follow-up flow.
// Validation failures block the write entirely.
func (s *Store) UpdateFollowUpFlow(name string, stages []models.FlowStage, absentReminder *models.AbsentReminderConfig, updatedBy string) (*models.FlowConfig, error) {
	if err := ValidateStages(stages); err != nil {
		return nil, err
	}
	if absentReminder != nil {
		if err := ValidateAbsentReminder(absentReminder); err != nil {
			return nil, err
		}
	}

	cfg, err := s.ActiveConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &models.FlowConfig{
			ConfigType: models.ConfigFollowUp,
			IsDefault:  true,
			IsActive:   true,
		}
	}
	if name != "" {
		cfg.Name = name
	}
	cfg.Stages = OrderedStages(stages)
	cfg.UpdatedBy = updatedBy
	if err := s.DB.Save(cfg).Error; err != nil {
		return nil, err
	}

	if absentReminder != nil {
		var absentCfg models.FlowConfig
		err := s.DB.
			Where("config_type = ? AND is_default = ?", models.ConfigAbsentReminder, true).
			Order("updated_at DESC").
			First(&absentCfg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			absentCfg = models.FlowConfig{
				ConfigType: models.ConfigAbsentReminder,
				Name:       "Default Absent Reminder",
				IsDefault:  true,
				IsActive:   true,
			}
		} else if err != nil {
			return nil, err
		}
		absentCfg.AbsentReminder = absentReminder
		absentCfg.UpdatedBy = updatedBy
		if err := s.DB.Save(&absentCfg).Error; err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// ResetToDefault restores the stock follow-up and absent-reminder configs.
func (s *Store) ResetToDefault(updatedBy string) (*models.FlowConfig, error) {
	cfg, err := s.ActiveConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &models.FlowConfig{
			ConfigType: models.ConfigFollowUp,
			IsDefault:  true,
			IsActive:   true,
		}
	}
	cfg.Name = "Default Follow-up Flow"
	cfg.Stages = DefaultStages()
	cfg.UpdatedBy = updatedBy
	if err := s.DB.Save(cfg).Error; err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateStages enforces the structural invariants of a stage list.
func ValidateStages(stages []models.FlowStage) error {
	if len(stages) == 0 {
		return fmt.Errorf("%w: stages array cannot be empty", ErrInvalidConfig)
	}

	seenStages := map[int]bool{}
	seenKeys := map[string]bool{}
	enabledCount := 0

	for _, stage := range stages {
		if stage.Stage < 0 {
			return fmt.Errorf("%w: invalid stage: %d", ErrInvalidConfig, stage.Stage)
		}
		if seenStages[stage.Stage] {
			return fmt.Errorf("%w: duplicate stage detected: %d", ErrInvalidConfig, stage.Stage)
		}
		seenStages[stage.Stage] = true

		if stage.Key == "" {
			return fmt.Errorf("%w: stage %d key is required", ErrInvalidConfig, stage.Stage)
		}
		if seenKeys[stage.Key] {
			return fmt.Errorf("%w: duplicate key detected: %s", ErrInvalidConfig, stage.Key)
		}
		seenKeys[stage.Key] = true

		if stage.Enabled {
			enabledCount++
		}
		if stage.SendHour < 0 || stage.SendHour > 23 {
			return fmt.Errorf("%w: stage %d sendHour must be between 0 and 23", ErrInvalidConfig, stage.Stage)
		}
		if stage.SendMinute < 0 || stage.SendMinute > 59 {
			return fmt.Errorf("%w: stage %d sendMinute must be between 0 and 59", ErrInvalidConfig, stage.Stage)
		}
		if stage.DelayToNextDays != nil && *stage.DelayToNextDays < 0 {
			return fmt.Errorf("%w: stage %d delayToNextDays must be null or >= 0", ErrInvalidConfig, stage.Stage)
		}

		if err := validateResponseOptions(stage.Stage, stage.ResponseOptions); err != nil {
			return err
		}
	}

	if enabledCount == 0 {
		return fmt.Errorf("%w: at least one stage must be enabled", ErrInvalidConfig)
	}
	return nil
}

func validateResponseOptions(stage int, options []models.ResponseOption) error {
	seenCodes := map[string]bool{}
	for _, option := range options {
		if option.Code == "" {
			return fmt.Errorf("%w: stage %d responseOptions[].code is required", ErrInvalidConfig, stage)
		}
		if seenCodes[option.Code] {
			return fmt.Errorf("%w: stage %d has duplicate response option code: %s", ErrInvalidConfig, stage, option.Code)
		}
		seenCodes[option.Code] = true

		if option.JourneyStatus != "" && !validJourneyStatus(option.JourneyStatus) {
			return fmt.Errorf("%w: stage %d responseOptions[].journeyStatus is invalid", ErrInvalidConfig, stage)
		}
		if option.NextStageOverride != nil && *option.NextStageOverride < 0 {
			return fmt.Errorf("%w: stage %d responseOptions[].nextStageOverride must be null or a non-negative integer", ErrInvalidConfig, stage)
		}
	}
	return nil
}

// ValidateAbsentReminder enforces the absent-reminder rule invariants.
func ValidateAbsentReminder(cfg *models.AbsentReminderConfig) error {
	seenCodes := map[string]bool{}
	for _, option := range cfg.ResponseOptions {
		if option.Code == "" {
			return fmt.Errorf("%w: absent reminder responseOptions[].code is required", ErrInvalidConfig)
		}
		if seenCodes[option.Code] {
			return fmt.Errorf("%w: absent reminder has duplicate response option code: %s", ErrInvalidConfig, option.Code)
		}
		seenCodes[option.Code] = true
	}
	return nil
}

func validJourneyStatus(status string) bool {
	switch status {
	case models.JourneyActive, models.JourneyCompleted, models.JourneyPaused,
		models.JourneyEscalated, models.JourneyOptedOut:
		return true
	}
	return false
}

// OrderedStages returns a copy sorted by ascending stage number. Stages are
// always processed in this order regardless of storage order.
func OrderedStages(stages []models.FlowStage) []models.FlowStage {
	ordered := make([]models.FlowStage, len(stages))
	copy(ordered, stages)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Stage < ordered[j].Stage })
	return ordered
}

// FirstEnabledStage returns the lowest-numbered enabled stage, or nil.
func FirstEnabledStage(stages []models.FlowStage) *models.FlowStage {
	for _, stage := range OrderedStages(stages) {
		if stage.Enabled {
			s := stage
			return &s
		}
	}
	return nil
}

// NextEnabledStage returns the enabled stage strictly greater than current,
// or nil when the sequence is exhausted.
func NextEnabledStage(current int, stages []models.FlowStage) *models.FlowStage {
	for _, stage := range OrderedStages(stages) {
		if stage.Enabled && stage.Stage > current {
			s := stage
			return &s
		}
	}
	return nil
}

// StageConfig finds a stage by number, or nil.
func StageConfig(stages []models.FlowStage, stage int) *models.FlowStage {
	for _, s := range stages {
		if s.Stage == stage {
			found := s
			return &found
		}
	}
	return nil
}
