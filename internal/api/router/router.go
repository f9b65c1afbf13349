package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/dental-voice-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/dental-voice-booking/internal/http/middleware"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger        *logging.Logger
	Availability  *handlers.AvailabilityHandler
	Booking       *handlers.BookingHandler
	Practitioners *handlers.PractitionersHandler
	Appointments  *handlers.AppointmentsHandler
	Webhook       *handlers.WebhookHandler
	Admin         *handlers.AdminHandler

	// AgentAPIKeys are the bearer keys the voice agent's tools present.
	AgentAPIKeys   []string
	AgentRateLimit int
	Signature      httpmiddleware.SignatureConfig

	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (health checks, metrics)
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/health", health)

		// Voice agent tool calls
		api.Group(func(agent chi.Router) {
			agent.Use(httpmiddleware.RateLimit(cfg.AgentRateLimit))
			agent.Use(httpmiddleware.AgentKey(cfg.AgentAPIKeys))
			if cfg.Availability != nil {
				agent.Post("/practitioners/available", cfg.Availability.FindAvailable)
			}
			if cfg.Practitioners != nil {
				agent.Get("/practitioners", cfg.Practitioners.List)
			}
			if cfg.Booking != nil {
				agent.Post("/create-patient-and-book-appointment", cfg.Booking.CreatePatientAndBook)
			}
			if cfg.Appointments != nil {
				agent.Get("/appointments", cfg.Appointments.List)
				agent.Get("/appointments/{id}", cfg.Appointments.Get)
			}
		})

		// ElevenLabs deliveries authenticate by signature, not bearer key
		if cfg.Webhook != nil {
			api.Group(func(hooks chi.Router) {
				hooks.Use(httpmiddleware.ElevenLabsSignature(cfg.Signature, cfg.Logger))
				hooks.Post("/webhooks/elevenlabs", cfg.Webhook.Handle)
				hooks.Post("/create-appointment", cfg.Webhook.Handle)
			})
		}
	})

	// Admin routes (protected by HMAC JWT)
	if cfg.Admin != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, cfg.Logger))
			admin.Get("/dentally/appointments/{date}", cfg.Admin.SyncAppointments)
			admin.Post("/sync/payment-plans", cfg.Admin.SyncPaymentPlans)
			admin.Post("/sync/practitioners", cfg.Admin.SyncPractitioners)
		})
	}

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
