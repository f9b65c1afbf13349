package archive

import "regexp"

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// Eight or more digits, optionally grouped, covers Irish and UK mobiles
	// and landlines in national or international form.
	phoneRe = regexp.MustCompile(`(?:\+|00)?\d[\d\s().-]{6,}\d`)
	dobRe   = regexp.MustCompile(`\b\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}\b`)
)

// ScrubPII masks emails, phone numbers and numeric dates. Names and
// appointment times stay so the call remains readable.
func ScrubPII(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	text = dobRe.ReplaceAllString(text, "[DATE]")
	return phoneRe.ReplaceAllString(text, "[PHONE]")
}
