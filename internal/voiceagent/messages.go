package voiceagent

import (
	"time"

	"github.com/wolfman30/dental-voice-booking/internal/booking"
	"github.com/wolfman30/dental-voice-booking/internal/directory"
)

const (
	TypeInitiationMetadata      = "conversation_initiation_metadata"
	TypeAppointmentConfirmation = "appointment_confirmation"
)

// PractitionerEntry is one practitioner in the initiation push.
type PractitionerEntry struct {
	ID   int    `json:"practitioner_id"`
	Name string `json:"practitioner_name"`
}

// PractitionerList is pushed when the agent starts a conversation.
type PractitionerList struct {
	ConversationID string              `json:"conversation_id"`
	Text           []PractitionerEntry `json:"text"`
}

// maxPushedPractitioners bounds the initiation push.
const maxPushedPractitioners = 50

func PractitionerListMessage(conversationID string, practitioners []directory.Practitioner) PractitionerList {
	if len(practitioners) > maxPushedPractitioners {
		practitioners = practitioners[:maxPushedPractitioners]
	}
	entries := make([]PractitionerEntry, 0, len(practitioners))
	for _, p := range practitioners {
		entries = append(entries, PractitionerEntry{ID: p.ID, Name: p.DisplayName})
	}
	return PractitionerList{ConversationID: conversationID, Text: entries}
}

// ConfirmedAppointment describes one booked service.
type ConfirmedAppointment struct {
	AppointmentID  int       `json:"appointment_id"`
	ServiceID      int       `json:"service_id"`
	ServiceName    string    `json:"service_name"`
	PractitionerID int       `json:"practitioner_id"`
	StartTime      time.Time `json:"start_time"`
	FinishTime     time.Time `json:"finish_time"`
}

type ConfirmationData struct {
	Appointments []ConfirmedAppointment `json:"appointments"`
	Summary      string                 `json:"summary"`
	PaymentLink  string                 `json:"payment_link,omitempty"`
}

// Confirmation is pushed into the live call after a booking.
type Confirmation struct {
	Type string           `json:"type"`
	Data ConfirmationData `json:"data"`
}

func ConfirmationMessage(out *booking.Outcome) Confirmation {
	msg := Confirmation{Type: TypeAppointmentConfirmation, Data: ConfirmationData{Summary: out.Summary, PaymentLink: out.PaymentLinkURL}}
	for _, s := range out.Booked() {
		msg.Data.Appointments = append(msg.Data.Appointments, ConfirmedAppointment{
			AppointmentID:  s.AppointmentID,
			ServiceID:      s.ServiceID,
			ServiceName:    s.ServiceName,
			PractitionerID: s.PractitionerID,
			StartTime:      s.Start.UTC(),
			FinishTime:     s.Finish.UTC(),
		})
	}
	return msg
}
