package messaging

import (
	"fmt"
	"strings"

	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

const (
	// SMSProviderAuto tries ClickSend first, then Twilio.
	SMSProviderAuto = "auto"
	// SMSProviderClickSend forces the ClickSend sender when credentials exist.
	SMSProviderClickSend = "clicksend"
	// SMSProviderTwilio forces the Twilio sender when credentials exist.
	SMSProviderTwilio = "twilio"
	// SMSProviderLog logs messages without sending.
	SMSProviderLog = "log"
)

// ProviderSelectionConfig captures the credentials required to build outbound senders.
type ProviderSelectionConfig struct {
	Preference        string
	ClickSendUsername string
	ClickSendAPIKey   string
	ClickSendFrom     string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
}

// BuildSender instantiates a Sender based on the preferred provider.
// It returns the sender, the provider that was selected, and a reason when no provider could be initialized.
func BuildSender(cfg ProviderSelectionConfig, logger *logging.Logger) (Sender, string, string) {
	if logger == nil {
		logger = logging.Default()
	}
	preference := strings.ToLower(strings.TrimSpace(cfg.Preference))
	if preference == "" {
		preference = SMSProviderAuto
	}
	if preference == SMSProviderLog {
		return NewLogSender(logger), SMSProviderLog, ""
	}

	missing := map[string]string{}
	var clickSend, twilio Sender

	if cfg.ClickSendUsername != "" && cfg.ClickSendAPIKey != "" {
		clickSend = NewClickSendSender(cfg.ClickSendUsername, cfg.ClickSendAPIKey, cfg.ClickSendFrom, logger)
	} else {
		var reasons []string
		if cfg.ClickSendUsername == "" {
			reasons = append(reasons, "CLICKSEND_USERNAME missing")
		}
		if cfg.ClickSendAPIKey == "" {
			reasons = append(reasons, "CLICKSEND_API_KEY missing")
		}
		missing[SMSProviderClickSend] = strings.Join(reasons, ", ")
	}

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		twilio = NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	} else {
		var reasons []string
		if cfg.TwilioAccountSID == "" {
			reasons = append(reasons, "TWILIO_ACCOUNT_SID missing")
		}
		if cfg.TwilioAuthToken == "" {
			reasons = append(reasons, "TWILIO_AUTH_TOKEN missing")
		}
		missing[SMSProviderTwilio] = strings.Join(reasons, ", ")
	}

	if preference != SMSProviderAuto {
		if preference == SMSProviderClickSend && clickSend != nil {
			return clickSend, SMSProviderClickSend, ""
		}
		if preference == SMSProviderTwilio && twilio != nil {
			return twilio, SMSProviderTwilio, ""
		}
		reason := missing[preference]
		if reason == "" {
			reason = fmt.Sprintf("%s sender not configured", preference)
		}
		return nil, "", reason
	}

	switch {
	case clickSend != nil && twilio != nil:
		return NewFailoverSender(clickSend, SMSProviderClickSend, twilio, SMSProviderTwilio, logger), SMSProviderClickSend + "+" + SMSProviderTwilio, ""
	case clickSend != nil:
		return clickSend, SMSProviderClickSend, ""
	case twilio != nil:
		return twilio, SMSProviderTwilio, ""
	}
	return nil, "", fmt.Sprintf("%s: %s; %s: %s",
		SMSProviderClickSend, missing[SMSProviderClickSend], SMSProviderTwilio, missing[SMSProviderTwilio])
}
