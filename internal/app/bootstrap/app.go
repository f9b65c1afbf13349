package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/dental-voice-booking/internal/api/router"
	"github.com/wolfman30/dental-voice-booking/internal/availability"
	"github.com/wolfman30/dental-voice-booking/internal/booking"
	"github.com/wolfman30/dental-voice-booking/internal/catalog"
	appconfig "github.com/wolfman30/dental-voice-booking/internal/config"
	"github.com/wolfman30/dental-voice-booking/internal/dentally"
	"github.com/wolfman30/dental-voice-booking/internal/directory"
	"github.com/wolfman30/dental-voice-booking/internal/extraction"
	"github.com/wolfman30/dental-voice-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/dental-voice-booking/internal/http/middleware"
	"github.com/wolfman30/dental-voice-booking/internal/maintenance"
	"github.com/wolfman30/dental-voice-booking/internal/notify"
	"github.com/wolfman30/dental-voice-booking/internal/observability/metrics"
	"github.com/wolfman30/dental-voice-booking/internal/pricing"
	"github.com/wolfman30/dental-voice-booking/internal/store"
	"github.com/wolfman30/dental-voice-booking/internal/voiceagent"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

// Resources are the connections both the API and the maintenance CLI need.
type Resources struct {
	Store    store.Store
	Pool     *pgxpool.Pool
	Dentally *dentally.Client
	Catalog  *catalog.Catalog
	closers  []func()
}

// OpenResources connects the document store and builds the Dentally client.
func OpenResources(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Resources, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	res := &Resources{Catalog: catalog.Default()}

	pool, err := ConnectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		if cfg.StoreDriver == "postgres" {
			return nil, err
		}
		logger.Warn("postgres unavailable", "error", err)
	}
	if pool != nil {
		res.Pool = pool
		res.closers = append(res.closers, pool.Close)
	}

	st, closeStore, err := BuildStore(ctx, cfg, pool, logger)
	if err != nil {
		res.Close()
		return nil, err
	}
	res.Store = st
	res.closers = append(res.closers, closeStore)

	if cfg.DentallyAPIKey == "" {
		logger.Warn("DENTALLY_API_KEY empty; Dentally calls will be rejected")
	}
	res.Dentally = dentally.NewClient(dentally.Config{
		APIKey:  cfg.DentallyAPIKey,
		BaseURL: cfg.DentallyBaseURL,
		SiteID:  cfg.DentallySiteID,
		Timeout: cfg.DentallyTimeout,
	}, logger)
	return res, nil
}

// Close releases connections, newest first.
func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Maintenance builds the mirror job service.
func (r *Resources) Maintenance(logger *logging.Logger) *maintenance.Service {
	return maintenance.NewService(r.Dentally, r.Store, r.Catalog, logger)
}

// Options carries what the caller has already built.
type Options struct {
	Config *appconfig.Config
	// AWS is required only for Bedrock extraction and SES email.
	AWS            *aws.Config
	Metrics        *metrics.BookingMetrics
	MetricsHandler http.Handler
	Logger         *logging.Logger
}

// App is the wired API service.
type App struct {
	Handler http.Handler
	// Voice is nil when no ElevenLabs agent is configured.
	Voice     *voiceagent.Manager
	Resources *Resources
}

// Close stops voice channels and releases connections.
func (a *App) Close() {
	if a.Voice != nil {
		a.Voice.Close()
	}
	if a.Resources != nil {
		a.Resources.Close()
	}
}

// BuildApp wires every component behind the HTTP router.
func BuildApp(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	m := opts.Metrics
	loc := cfg.Location()

	res, err := OpenResources(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := &App{Resources: res}
	fail := func(err error) (*App, error) {
		app.Close()
		return nil, err
	}
	cat := res.Catalog

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		res.closers = append(res.closers, func() { _ = redisClient.Close() })
	}
	dedupe, dedupeKind := BuildDeduper(ctx, cfg, redisClient, res.Pool, logger)
	logger.Info("webhook dedupe configured", "backend", dedupeKind)

	dir := directory.NewResolver(res.Dentally, res.Store, logger)
	gateway := availability.NewGateway(res.Dentally, logger, m)
	searcher := availability.NewSearcher(gateway, availability.SearchConfig{MaxAttempts: cfg.SearchMaxAttempts}, logger, m)
	pairer := availability.NewPairer(searcher, availability.PairingConfig{
		MaxSequences:         cfg.PairingMaxSequences,
		MaxAnchorCandidates:  cfg.PairingMaxAnchors,
		AnchorMaxAttempts:    cfg.SearchMaxAttempts,
		DependentMaxAttempts: cfg.DependentMaxAttempts,
	}, logger, m)
	finder := availability.NewFinder(cat, dir, pairer)

	policy, err := pricing.LoadPolicy(cfg.PricingPolicyJSON, cfg.PricingPolicyFile, cat)
	if err != nil {
		return fail(err)
	}
	links, linkKind := BuildPaymentLinks(cfg, logger)
	sms, smsProvider, smsReason := BuildSMSSender(cfg, logger)
	if sms == nil {
		logger.Warn("patient SMS disabled", "reason", smsReason)
	}
	var ses notify.SESAPI
	if opts.AWS != nil {
		ses = sesv2.NewFromConfig(*opts.AWS)
	}
	notifier, emailProvider := BuildNotifier(cfg, ses, logger)
	logger.Info("booking collaborators configured",
		"payments", linkKind,
		"sms", smsProvider,
		"email", emailProvider,
		"currency", policy.Currency(),
	)

	orchestrator := booking.NewOrchestrator(res.Dentally, booking.Options{
		Catalog:              cat,
		Pricing:              policy,
		Payments:             links,
		SMS:                  sms,
		Notifier:             notifier,
		Mirror:               res.Store,
		Metrics:              m,
		Logger:               logger,
		ClinicName:           cfg.ClinicName,
		SiteID:               cfg.DentallySiteID,
		DefaultPaymentPlanID: cfg.DefaultPaymentPlanID,
		Currency:             cfg.PaymentCurrency,
		Location:             loc,
	})

	completer, err := BuildCompleter(ctx, cfg, opts.AWS, logger)
	if err != nil {
		return fail(err)
	}
	var extractor handlers.IntentExtractor
	if completer != nil {
		extractor = extraction.NewExtractor(completer, cat, loc, logger)
	}

	var voice handlers.VoiceChannel
	if cfg.ElevenLabsAgentID != "" {
		app.Voice = voiceagent.NewManager(voiceagent.Config{
			URL:         cfg.ElevenLabsWSURL,
			AgentID:     cfg.ElevenLabsAgentID,
			APIKey:      cfg.ElevenLabsAPIKey,
			IdleTimeout: cfg.VoiceChannelIdleTimeout,
		}, dir, logger)
		voice = app.Voice
	}

	if cfg.ElevenLabsVerifySignature && cfg.ElevenLabsWebhookSecret == "" {
		logger.Warn("ELEVENLABS_WEBHOOK_SECRET empty; webhook signatures are not checked")
	}
	if len(cfg.AgentAPIKeys) == 0 {
		logger.Warn("AGENT_KEYS empty; agent tool routes will reject every request")
	}
	app.Handler = router.New(&router.Config{
		Logger:        logger,
		Availability:  handlers.NewAvailabilityHandler(finder, cat, loc, logger),
		Booking:       handlers.NewBookingHandler(orchestrator, finder, cat, loc, logger),
		Practitioners: handlers.NewPractitionersHandler(dir, logger),
		Appointments:  handlers.NewAppointmentsHandler(res.Store, logger),
		Webhook: handlers.NewWebhookHandler(handlers.WebhookHandlerConfig{
			Extractor: extractor,
			Archive:   BuildTranscriptArchive(cfg, opts.AWS, logger),
			Directory: dir,
			Finder:    finder,
			Booker:    orchestrator,
			Dedupe:    dedupe,
			Voice:     voice,
			Catalog:   cat,
			Location:  loc,
			AgentID:   cfg.ElevenLabsAgentID,
			Metrics:   m,
			Logger:    logger,
		}),
		Admin:          handlers.NewAdminHandler(res.Maintenance(logger), logger),
		AgentAPIKeys:   cfg.AgentAPIKeys,
		AgentRateLimit: cfg.RateLimitRPM,
		Signature: httpmiddleware.SignatureConfig{
			Secret:  cfg.ElevenLabsWebhookSecret,
			Enabled: cfg.ElevenLabsVerifySignature,
		},
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     opts.MetricsHandler,
		CORSAllowedOrigins: cfg.CORSOrigins,
	})
	return app, nil
}
