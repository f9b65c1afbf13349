package bootstrap

import (
	appconfig "github.com/wolfman30/dental-voice-booking/internal/config"
	"github.com/wolfman30/dental-voice-booking/internal/messaging"
	"github.com/wolfman30/dental-voice-booking/internal/notify"
	"github.com/wolfman30/dental-voice-booking/internal/payments"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

// BuildSMSSender creates the patient SMS sender. A nil sender disables the
// payment text; the reason explains why.
func BuildSMSSender(cfg *appconfig.Config, logger *logging.Logger) (messaging.Sender, string, string) {
	if cfg == nil {
		return nil, "", "missing config"
	}
	return messaging.BuildSender(messaging.ProviderSelectionConfig{
		Preference:        cfg.SMSProvider,
		ClickSendUsername: cfg.ClickSendUsername,
		ClickSendAPIKey:   cfg.ClickSendAPIKey,
		ClickSendFrom:     cfg.ClickSendFrom,
		TwilioAccountSID:  cfg.TwilioAccountSID,
		TwilioAuthToken:   cfg.TwilioAuthToken,
		TwilioFromNumber:  cfg.TwilioFromNumber,
	}, logger)
}

// BuildNotifier creates the clinic booking email service. ses may be nil.
func BuildNotifier(cfg *appconfig.Config, ses notify.SESAPI, logger *logging.Logger) (*notify.Service, string) {
	sender, provider := notify.BuildEmailSender(notify.SenderConfig{
		Provider:       cfg.EmailProvider,
		SendGridAPIKey: cfg.SendGridAPIKey,
		SendGridFrom:   cfg.SendGridFromEmail,
		SESFrom:        cfg.SESFromEmail,
		FromName:       cfg.SendGridFromName,
	}, ses, logger)
	return notify.NewService(sender, cfg.ClinicNotifyEmails, cfg.ClinicName, logger), provider
}

// BuildPaymentLinks returns the dry-run service when PAYMENT_DRY_RUN is set,
// the Stripe service when a key is configured and nil otherwise, which
// leaves bookings without a payment link.
func BuildPaymentLinks(cfg *appconfig.Config, logger *logging.Logger) (payments.LinkCreator, string) {
	if cfg.PaymentDryRun {
		return payments.NewDryRunLinkService(logger), "dry_run"
	}
	if cfg.StripeAPIKey == "" {
		return nil, "disabled"
	}
	return payments.NewStripeLinkService(payments.StripeConfig{
		SecretKey: cfg.StripeAPIKey,
		ProductID: cfg.StripeProductID,
	}, logger), "stripe"
}
