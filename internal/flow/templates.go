package flow

import (
	"fmt"
	"strings"

	"followup-gateway/internal/models"
)

// Built-in message bodies used when a stage has no configured template.

func WelcomeMessage(firstName, churchName string) string {
	return fmt.Sprintf("Hello %s!\nWelcome to %s!\nWe're glad you worshipped with us.\n\nReply:\n1 - Prayer Request\n2 - Small Group Info\n3 - Membership Info", firstName, churchName)
}

func CommunityLinkMessage(groupLink, churchName string) string {
	return fmt.Sprintf("Join our %s community:\n%s\n\nStay connected with us for updates, prayers, and encouragement!", churchName, groupLink)
}

func FollowUpDay2Message(firstName string) string {
	return fmt.Sprintf("Hi %s,\nWe're praying for you this week.\nIs there anything specific you'd like us to pray about?\n\nFeel free to share, or reply:\n1 - Yes, I have a prayer request\n2 - No, just keep me in your prayers", firstName)
}

func FollowUpDay4Message(firstName string) string {
	return fmt.Sprintf("Hi %s,\nOne of the best ways to grow in faith is through community.\nWe'd love to connect you with a small group near you!\n\nReply:\n1 - I'm interested in joining a small group\n2 - Maybe later\n3 - Tell me more", firstName)
}

func FollowUpDay7Message(firstName string) string {
	return fmt.Sprintf("Hi %s,\nWe hope you've been blessed this week!\nOur pastoral team would love to connect with you personally.\n\nWould you be open to a brief call or visit?\nReply:\n1 - Yes, please\n2 - Not right now", firstName)
}

// Response-message templates for the default welcome options. Interpolated
// at reply time, so they keep {{placeholder}} form here.
const (
	PrayerRequestAckTemplate = "Thank you {{firstName}}.\nYour prayer request has been received.\nOur prayer team is lifting you up in prayer.\nGod bless you!"
	SmallGroupInfoTemplate   = "Great choice {{firstName}}!\nSmall groups meet during the week in homes across the city.\nA group leader will reach out to connect you with the group nearest to you."
	MembershipInfoTemplate   = "Wonderful {{firstName}}!\nOur membership class introduces you to the vision and family of {{churchName}}.\nSomeone from our team will contact you with the next class date."
)

func SundayReminderMessage(churchName, serviceTime string) string {
	return fmt.Sprintf("See you tomorrow!\n\nJoin us at %s for worship.\nService starts at %s\n\nBring a friend!", churchName, serviceTime)
}

func EventUpdateMessage(eventName, date, timeOfDay, venue string) string {
	msg := fmt.Sprintf("Event Update\n\n*%s*\n%s\n%s\n", eventName, date, timeOfDay)
	if venue != "" {
		msg += venue + "\n"
	}
	return msg + "\nWe look forward to seeing you there!"
}

func EmergencyMessage(message, churchName string) string {
	return fmt.Sprintf("Important Notice from %s\n\n%s", churchName, message)
}

func AbsentReminderMessage(firstName string, weeksMissed int) string {
	return fmt.Sprintf("Hi %s,\nWe missed you %s!\nJust checking in, hope you're doing well.\n\nIs everything okay?\nReply:\n1 - I'm fine, will be back soon\n2 - I need prayer/support\n3 - Please call me", firstName, weekText(weeksMissed))
}

func weekText(weeksMissed int) string {
	if weeksMissed == 1 {
		return "last week"
	}
	return fmt.Sprintf("the last %d weeks", weeksMissed)
}

// FirstName returns the contact's first name with the generic fallback used
// across every template.
func FirstName(contact *models.Contact) string {
	if contact != nil && contact.FirstName != "" {
		return contact.FirstName
	}
	return "Friend"
}

// Interpolate substitutes the supported {{placeholder}} variables into a
// configured message template.
func Interpolate(message string, contact *models.Contact, churchName string) string {
	lastName, phone := "", ""
	if contact != nil {
		lastName = contact.LastName
		phone = contact.Phone
	}
	r := strings.NewReplacer(
		"{{firstName}}", FirstName(contact),
		"{{lastName}}", lastName,
		"{{churchName}}", churchName,
		"{{phone}}", phone,
	)
	return r.Replace(message)
}

// InterpolateAbsent additionally supports the weeks-missed placeholders used
// by absent reminder templates.
func InterpolateAbsent(template string, contact *models.Contact, churchName string, weeksMissed int) string {
	msg := Interpolate(template, contact, churchName)
	r := strings.NewReplacer(
		"{{weekText}}", weekText(weeksMissed),
		"{{weeksMissed}}", fmt.Sprintf("%d", weeksMissed),
	)
	return r.Replace(msg)
}

// DefaultStageMessage picks the built-in body for a stage number.
func DefaultStageMessage(stage int, contact *models.Contact, churchName string) string {
	firstName := FirstName(contact)
	switch stage {
	case 0:
		return WelcomeMessage(firstName, churchName)
	case 2:
		return FollowUpDay2Message(firstName)
	case 4:
		return FollowUpDay4Message(firstName)
	case 7:
		return FollowUpDay7Message(firstName)
	default:
		return fmt.Sprintf("Hi %s, we are checking in from %s. Reply to this message if you need support or prayer.", firstName, churchName)
	}
}

// ResolveStageMessage prefers the configured stage template, interpolated,
// over the built-in default.
func ResolveStageMessage(stage int, stageConfig *models.FlowStage, contact *models.Contact, churchName string) string {
	if stageConfig != nil && strings.TrimSpace(stageConfig.Message) != "" {
		return Interpolate(stageConfig.Message, contact, churchName)
	}
	return DefaultStageMessage(stage, contact, churchName)
}
