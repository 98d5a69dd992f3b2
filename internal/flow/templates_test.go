package flow

import (
	"strings"
	"testing"

	"followup-gateway/internal/models"
)

func TestInterpolate(t *testing.T) {
	contact := &models.Contact{FirstName: "Ada", LastName: "Obi", Phone: "08012345678"}

	got := Interpolate("Hi {{firstName}} {{lastName}}, welcome to {{churchName}}. We have {{phone}} on file.", contact, "Grace Chapel")
	want := "Hi Ada Obi, welcome to Grace Chapel. We have 08012345678 on file."
	if got != want {
		t.Errorf("Interpolate = %q, want %q", got, want)
	}
}

func TestInterpolateNilContact(t *testing.T) {
	got := Interpolate("Hi {{firstName}}", nil, "Grace Chapel")
	if got != "Hi Friend" {
		t.Errorf("Interpolate = %q, want fallback name", got)
	}
}

func TestInterpolateAbsent(t *testing.T) {
	contact := &models.Contact{FirstName: "Ada"}

	tests := []struct {
		name        string
		template    string
		weeksMissed int
		want        string
	}{
		{"single week", "Hi {{firstName}}, we missed you {{weekText}}.", 1, "Hi Ada, we missed you last week."},
		{"multiple weeks", "We missed you {{weekText}}.", 3, "We missed you the last 3 weeks."},
		{"numeric placeholder", "{{weeksMissed}} weeks", 2, "2 weeks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InterpolateAbsent(tt.template, contact, "Grace Chapel", tt.weeksMissed)
			if got != tt.want {
				t.Errorf("InterpolateAbsent = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveStageMessage(t *testing.T) {
	contact := &models.Contact{FirstName: "Ada"}

	configured := &models.FlowStage{Stage: 2, Message: "Hello {{firstName}} from {{churchName}}"}
	got := ResolveStageMessage(2, configured, contact, "Grace Chapel")
	if got != "Hello Ada from Grace Chapel" {
		t.Errorf("configured template not used: %q", got)
	}

	// Blank template falls through to the built-in body.
	blank := &models.FlowStage{Stage: 2, Message: "   "}
	got = ResolveStageMessage(2, blank, contact, "Grace Chapel")
	if !strings.Contains(got, "Ada") || !strings.Contains(got, "praying for you") {
		t.Errorf("default day-2 body not used: %q", got)
	}

	got = ResolveStageMessage(99, nil, contact, "Grace Chapel")
	if !strings.Contains(got, "Ada") || !strings.Contains(got, "Grace Chapel") {
		t.Errorf("generic fallback body not used: %q", got)
	}
}

func TestDefaultStageMessageKnownStages(t *testing.T) {
	contact := &models.Contact{FirstName: "Ada"}
	for _, stage := range []int{0, 2, 4, 7} {
		msg := DefaultStageMessage(stage, contact, "Grace Chapel")
		if !strings.Contains(msg, "Ada") {
			t.Errorf("stage %d body missing first name: %q", stage, msg)
		}
	}
}
