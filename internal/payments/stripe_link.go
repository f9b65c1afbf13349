package payments

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

var stripeTracer = otel.Tracer("dentalbridge.internal.payments.stripe")

// StripeLinkService creates a one-off Price and a Payment Link for it.
type StripeLinkService struct {
	api       *client.API
	productID string
	logger    *logging.Logger
}

// StripeConfig configures the Stripe client.
type StripeConfig struct {
	SecretKey string
	// ProductID is the catalog product prices are attached to. When empty
	// the price carries inline product data.
	ProductID string
	// BaseURL overrides the Stripe API endpoint (tests).
	BaseURL string
	Timeout time.Duration
}

// NewStripeLinkService builds a Stripe-backed LinkCreator.
func NewStripeLinkService(cfg StripeConfig, logger *logging.Logger) *StripeLinkService {
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		backendCfg.URL = stripe.String(base)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	api := client.New(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &StripeLinkService{
		api:       api,
		productID: strings.TrimSpace(cfg.ProductID),
		logger:    logger,
	}
}

// CreatePaymentLink implements LinkCreator.
func (s *StripeLinkService) CreatePaymentLink(ctx context.Context, req LinkRequest) (*Link, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_payment_link")
	defer span.End()
	span.SetAttributes(
		attribute.Int("dentalbridge.patient_id", req.PatientID),
		attribute.Int64("dentalbridge.amount_cents", int64(req.Amount)),
	)

	if req.Amount <= 0 {
		return nil, ErrZeroAmount
	}
	currency := normalizeCurrency(req.Currency)
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Appointment"
	}

	priceParams := &stripe.PriceParams{
		Currency:   stripe.String(currency),
		UnitAmount: stripe.Int64(int64(req.Amount)),
	}
	if s.productID != "" {
		priceParams.Product = stripe.String(s.productID)
	} else {
		priceParams.ProductData = &stripe.PriceProductDataParams{Name: stripe.String(description)}
	}
	priceParams.Context = ctx
	price, err := s.api.Prices.New(priceParams)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("payments: stripe price: %w", err)
	}

	linkParams := &stripe.PaymentLinkParams{
		LineItems: []*stripe.PaymentLinkLineItemParams{
			{Price: stripe.String(price.ID), Quantity: stripe.Int64(1)},
		},
	}
	linkParams.Context = ctx
	linkParams.AddMetadata("patient_id", strconv.Itoa(req.PatientID))
	if len(req.AppointmentIDs) > 0 {
		ids := make([]string, 0, len(req.AppointmentIDs))
		for _, id := range req.AppointmentIDs {
			ids = append(ids, strconv.Itoa(id))
		}
		linkParams.AddMetadata("appointment_ids", strings.Join(ids, ","))
	}
	link, err := s.api.PaymentLinks.New(linkParams)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("payments: stripe payment link: %w", err)
	}
	if link.URL == "" {
		return nil, fmt.Errorf("payments: stripe response missing payment link url")
	}

	s.logger.Info("stripe payment link created",
		"patient_id", req.PatientID, "amount", req.Amount.String(), "currency", currency, "link_id", link.ID)
	return &Link{URL: link.URL, ProviderID: link.ID}, nil
}
