package booking

import (
	"fmt"
	"strings"
	"time"
)

const summaryTimeLayout = "Monday 2 January 2006 at 15:04"

func buildSummary(o *Outcome, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var lines []string
	for _, s := range o.Services {
		when := s.Start.In(loc).Format(summaryTimeLayout)
		if s.Status == StatusSuccess {
			lines = append(lines, fmt.Sprintf("%s booked for %s with practitioner %d.", s.ServiceName, when, s.PractitionerID))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s on %s could not be booked: %s.", s.ServiceName, when, s.Reason))
	}
	switch {
	case o.PaymentAmount > 0 && o.PaymentLinkURL != "" && o.SMSSent:
		lines = append(lines, fmt.Sprintf("A payment link for %s %s has been sent by SMS.", strings.ToUpper(o.Currency), o.PaymentAmount))
	case o.PaymentAmount > 0 && o.PaymentLinkURL != "":
		lines = append(lines, fmt.Sprintf("Payment of %s %s is due; the SMS could not be sent.", strings.ToUpper(o.Currency), o.PaymentAmount))
	case o.PaymentAmount > 0:
		lines = append(lines, fmt.Sprintf("Payment of %s %s is due; the clinic will follow up with a payment link.", strings.ToUpper(o.Currency), o.PaymentAmount))
	}
	return strings.Join(lines, " ")
}
