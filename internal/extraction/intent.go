package extraction

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/dental-voice-booking/internal/booking"
	"github.com/wolfman30/dental-voice-booking/internal/catalog"
)

// FlexInt decodes a JSON number, a numeric string or null.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if strings.TrimSpace(s) == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("extraction: not a number: %s", string(data))
	}
	*f = FlexInt(n)
	return nil
}

// Intent is the booking information an LLM extracts from a call.
type Intent struct {
	PatientFirstName      string  `json:"patient_first_name"`
	PatientLastName       string  `json:"patient_last_name"`
	PatientTitle          string  `json:"patient_title"`
	PatientDOB            string  `json:"patient_dob"`
	PatientGender         string  `json:"patient_gender"`
	PatientEmail          string  `json:"patient_email"`
	PatientPhoneNumber    string  `json:"patient_phone_number"`
	PatientEthnicity      string  `json:"patient_ethnicity"`
	PatientAddressLine1   string  `json:"patient_address_line_1"`
	PatientPostcode       string  `json:"patient_postcode"`
	PatientPaymentPlanID  FlexInt `json:"patient_payment_plan_id"`
	ServiceRequested      string  `json:"service_requested"`
	AppointmentStartTime  string  `json:"appointment_start_time"`
	AppointmentFinishTime string  `json:"appointment_finish_time"`
	BookedPractitionerID  FlexInt `json:"booked_practitioner_id"`
	AppointmentReason     string  `json:"appointment_reason"`
	ConsultationType      string  `json:"consultation_type"`
	PatientStatus         string  `json:"patient_status"`
}

// Patient maps the extracted fields onto the booking patient record.
func (i *Intent) Patient() booking.PatientInput {
	return booking.PatientInput{
		Title:        strings.TrimSpace(i.PatientTitle),
		FirstName:    strings.TrimSpace(i.PatientFirstName),
		LastName:     strings.TrimSpace(i.PatientLastName),
		DateOfBirth:  strings.TrimSpace(i.PatientDOB),
		AddressLine1: strings.TrimSpace(i.PatientAddressLine1),
		Postcode:     strings.TrimSpace(i.PatientPostcode),
		MobilePhone:  strings.TrimSpace(i.PatientPhoneNumber),
		EmailAddress: strings.TrimSpace(i.PatientEmail),
	}
}

// ServiceIDs resolves the requested services: the "Name-ID" reason string
// first, then service names mentioned in service_requested or consultation_type.
func (i *Intent) ServiceIDs(cat *catalog.Catalog) []int {
	if ids, err := catalog.ParseReason(i.AppointmentReason); err == nil {
		var known []int
		for _, id := range ids {
			if _, ok := cat.Get(id); ok {
				known = append(known, id)
			}
		}
		if len(known) > 0 {
			sort.Ints(known)
			return known
		}
	}
	text := strings.ToLower(i.ServiceRequested + " " + i.ConsultationType)
	services := cat.All()
	// Longest names first so "Holistic Hygiene Direct Access" is not also
	// read as "Holistic Hygiene".
	sort.SliceStable(services, func(a, b int) bool { return len(services[a].Name) > len(services[b].Name) })
	var ids []int
	for _, svc := range services {
		name := strings.ToLower(svc.Name)
		if strings.Contains(text, name) {
			ids = append(ids, svc.ID)
			text = strings.ReplaceAll(text, name, " ")
		}
	}
	if len(ids) == 0 && (strings.Contains(text, "biological") || strings.Contains(text, "consultation")) {
		ids = append(ids, catalog.BiologicalConsultation)
	}
	sort.Ints(ids)
	return ids
}

// RequestedStart parses appointment_start_time in loc when it carries no offset.
func (i *Intent) RequestedStart(loc *time.Location) (time.Time, bool) {
	return ParseTime(i.AppointmentStartTime, loc)
}

// RequestedFinish parses appointment_finish_time.
func (i *Intent) RequestedFinish(loc *time.Location) (time.Time, bool) {
	return ParseTime(i.AppointmentFinishTime, loc)
}

// HasSlot reports whether the intent names a concrete practitioner and time
// for a single service, so it can be booked without a search.
func (i *Intent) HasSlot(cat *catalog.Catalog) bool {
	_, ok := i.RequestedStart(time.UTC)
	return ok && i.BookedPractitionerID > 0 && len(i.ServiceIDs(cat)) == 1
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTime accepts RFC 3339 or an offset-less local time, read in loc.
func ParseTime(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
