package flow

import (
	"errors"
	"strings"
	"testing"

	"followup-gateway/internal/models"
)

func validStages() []models.FlowStage {
	return []models.FlowStage{
		{Stage: 0, Key: "welcome", Enabled: true, DelayToNextDays: intPtr(2), SendHour: 10},
		{Stage: 2, Key: "day2", Enabled: true, DelayToNextDays: intPtr(3), SendHour: 10},
		{Stage: 7, Key: "day7", Enabled: true, SendHour: 10},
	}
}

func TestValidateStages(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(stages []models.FlowStage) []models.FlowStage
		wantErr string
	}{
		{"valid sequence", func(s []models.FlowStage) []models.FlowStage { return s }, ""},
		{"empty list", func(s []models.FlowStage) []models.FlowStage { return nil }, "cannot be empty"},
		{"negative stage", func(s []models.FlowStage) []models.FlowStage {
			s[0].Stage = -1
			return s
		}, "invalid stage"},
		{"duplicate stage", func(s []models.FlowStage) []models.FlowStage {
			s[1].Stage = 0
			return s
		}, "duplicate stage"},
		{"missing key", func(s []models.FlowStage) []models.FlowStage {
			s[0].Key = ""
			return s
		}, "key is required"},
		{"duplicate key", func(s []models.FlowStage) []models.FlowStage {
			s[1].Key = "welcome"
			return s
		}, "duplicate key"},
		{"send hour out of range", func(s []models.FlowStage) []models.FlowStage {
			s[0].SendHour = 24
			return s
		}, "sendHour"},
		{"send minute out of range", func(s []models.FlowStage) []models.FlowStage {
			s[0].SendMinute = 60
			return s
		}, "sendMinute"},
		{"negative delay", func(s []models.FlowStage) []models.FlowStage {
			s[0].DelayToNextDays = intPtr(-1)
			return s
		}, "delayToNextDays"},
		{"all disabled", func(s []models.FlowStage) []models.FlowStage {
			for i := range s {
				s[i].Enabled = false
			}
			return s
		}, "at least one stage"},
		{"option missing code", func(s []models.FlowStage) []models.FlowStage {
			s[0].ResponseOptions = []models.ResponseOption{{Matches: []string{"yes"}}}
			return s
		}, "code is required"},
		{"duplicate option code", func(s []models.FlowStage) []models.FlowStage {
			s[0].ResponseOptions = []models.ResponseOption{{Code: "1"}, {Code: "1"}}
			return s
		}, "duplicate response option code"},
		{"bad journey status", func(s []models.FlowStage) []models.FlowStage {
			s[0].ResponseOptions = []models.ResponseOption{{Code: "1", JourneyStatus: "bogus"}}
			return s
		}, "journeyStatus"},
		{"negative next stage override", func(s []models.FlowStage) []models.FlowStage {
			s[0].ResponseOptions = []models.ResponseOption{{Code: "1", NextStageOverride: intPtr(-2)}}
			return s
		}, "nextStageOverride"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStages(tt.mutate(validStages()))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v is not ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultStagesValidate(t *testing.T) {
	if err := ValidateStages(DefaultStages()); err != nil {
		t.Fatalf("stock stages should validate: %v", err)
	}

	welcome := StageConfig(DefaultStages(), 0)
	if welcome == nil {
		t.Fatal("stock sequence missing the welcome stage")
	}
	// The welcome body offers options 1-3; the stage config must map them.
	if len(welcome.ResponseOptions) != 3 {
		t.Fatalf("welcome options = %d, want 3", len(welcome.ResponseOptions))
	}
}

func TestValidateAbsentReminder(t *testing.T) {
	if err := ValidateAbsentReminder(DefaultAbsentReminder()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	bad := &models.AbsentReminderConfig{
		ResponseOptions: []models.ResponseOption{{Code: "1"}, {Code: "1"}},
	}
	err := ValidateAbsentReminder(bad)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}
}

func TestOrderedStages(t *testing.T) {
	unordered := []models.FlowStage{
		{Stage: 7, Key: "day7"},
		{Stage: 0, Key: "welcome"},
		{Stage: 4, Key: "day4"},
	}
	ordered := OrderedStages(unordered)
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Stage <= ordered[i-1].Stage {
			t.Fatalf("stages not strictly ascending: %v", ordered)
		}
	}
	if unordered[0].Stage != 7 {
		t.Error("OrderedStages mutated its input")
	}
}

func TestFirstEnabledStage(t *testing.T) {
	stages := []models.FlowStage{
		{Stage: 0, Key: "welcome", Enabled: false},
		{Stage: 4, Key: "day4", Enabled: true},
		{Stage: 2, Key: "day2", Enabled: true},
	}
	first := FirstEnabledStage(stages)
	if first == nil || first.Stage != 2 {
		t.Fatalf("FirstEnabledStage = %v, want stage 2", first)
	}

	for i := range stages {
		stages[i].Enabled = false
	}
	if FirstEnabledStage(stages) != nil {
		t.Error("expected nil when nothing enabled")
	}
}

func TestNextEnabledStage(t *testing.T) {
	stages := DefaultStages()

	tests := []struct {
		current int
		want    int
		done    bool
	}{
		{0, 2, false},
		{2, 4, false},
		{4, 7, false},
		{7, 0, true},
		{-1, 0, false},
	}
	for _, tt := range tests {
		next := NextEnabledStage(tt.current, stages)
		if tt.done {
			if next != nil {
				t.Errorf("NextEnabledStage(%d) = %v, want nil", tt.current, next)
			}
			continue
		}
		if next == nil || next.Stage != tt.want {
			t.Errorf("NextEnabledStage(%d) = %v, want stage %d", tt.current, next, tt.want)
		}
	}
}

func TestNextEnabledStageSkipsDisabled(t *testing.T) {
	stages := DefaultStages()
	for i := range stages {
		if stages[i].Stage == 2 {
			stages[i].Enabled = false
		}
	}
	next := NextEnabledStage(0, stages)
	if next == nil || next.Stage != 4 {
		t.Fatalf("NextEnabledStage(0) = %v, want stage 4", next)
	}
}

func TestStageConfig(t *testing.T) {
	stages := DefaultStages()
	if got := StageConfig(stages, 4); got == nil || got.Key != "day4" {
		t.Errorf("StageConfig(4) = %v", got)
	}
	if got := StageConfig(stages, 5); got != nil {
		t.Errorf("StageConfig(5) = %v, want nil", got)
	}
}
