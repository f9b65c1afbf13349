package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	LogFormat      string
	Timezone       string
	ClinicName     string
	CORSOrigins    []string
	RateLimitRPM   int
	AgentAPIKeys   []string
	AdminJWTSecret string

	// Dentally practice-management API
	DentallyAPIKey       string
	DentallyBaseURL      string
	DentallySiteID       string
	DentallyTimeout      time.Duration
	DefaultPaymentPlanID int

	// Availability search tuning
	SearchMaxAttempts    int
	DependentMaxAttempts int
	PairingMaxSequences  int
	PairingMaxAnchors    int

	// Local document storage: memory, postgres or mongo
	StoreDriver   string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	WebhookDedupeTTL time.Duration

	// ElevenLabs voice agent
	ElevenLabsAgentID         string
	ElevenLabsAPIKey          string
	ElevenLabsWebhookSecret   string
	ElevenLabsVerifySignature bool
	ElevenLabsWSURL           string
	VoiceChannelIdleTimeout   time.Duration

	// Transcript extraction
	LLMProvider    string
	GeminiAPIKey   string
	GeminiModel    string
	BedrockModelID string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Transcript archive; empty disables it.
	TranscriptArchiveBucket string

	// Payments
	StripeAPIKey      string
	StripeProductID   string
	PaymentCurrency   string
	PaymentDryRun     bool
	PricingPolicyJSON string
	PricingPolicyFile string

	// SMS
	SMSProvider       string
	ClickSendUsername string
	ClickSendAPIKey   string
	ClickSendFrom     string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string

	// Clinic booking email
	EmailProvider      string
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	SESFromEmail       string
	ClinicNotifyEmails []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		Timezone:       getEnv("TIMEZONE", "Europe/London"),
		ClinicName:     getEnv("CLINIC_NAME", "Wonder of Wellness"),
		CORSOrigins:    getEnvAsList("CORS_ORIGINS"),
		RateLimitRPM:   getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
		AgentAPIKeys:   getEnvAsList("AGENT_KEYS"),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		DentallyAPIKey:       getEnv("DENTALLY_API_KEY", ""),
		DentallyBaseURL:      getEnv("DENTALLY_BASE_URL", "https://api.dentally.co/v1"),
		DentallySiteID:       getEnv("DENTALLY_SITE_ID", ""),
		DentallyTimeout:      getEnvAsDuration("DENTALLY_TIMEOUT", 15*time.Second),
		DefaultPaymentPlanID: getEnvAsInt("DEFAULT_PAYMENT_PLAN_ID", 44651),

		SearchMaxAttempts:    getEnvAsInt("SEARCH_MAX_ATTEMPTS", 7),
		DependentMaxAttempts: getEnvAsInt("DEPENDENT_SEARCH_MAX_ATTEMPTS", 5),
		PairingMaxSequences:  getEnvAsInt("PAIRING_MAX_SEQUENCES", 10),
		PairingMaxAnchors:    getEnvAsInt("PAIRING_MAX_ANCHOR_CANDIDATES", 20),

		StoreDriver:   strings.ToLower(strings.TrimSpace(getEnv("STORE_DRIVER", "memory"))),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DATABASE", "dentally_bridge"),

		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		WebhookDedupeTTL: getEnvAsDuration("WEBHOOK_DEDUPE_TTL", 24*time.Hour),

		ElevenLabsAgentID:         getEnv("ELEVENLABS_AGENT_ID", ""),
		ElevenLabsAPIKey:          getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsWebhookSecret:   getEnv("ELEVENLABS_WEBHOOK_SECRET", ""),
		ElevenLabsVerifySignature: getEnvAsBool("ELEVENLABS_VERIFY_SIGNATURE", true),
		ElevenLabsWSURL:           getEnv("ELEVENLABS_WS_URL", "wss://api.elevenlabs.io/v1/convai/conversation"),
		VoiceChannelIdleTimeout:   getEnvAsDuration("VOICE_CHANNEL_IDLE_TIMEOUT", 10*time.Minute),

		LLMProvider:    strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "gemini"))),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),

		AWSRegion:           getEnv("AWS_REGION", "eu-west-2"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		TranscriptArchiveBucket: strings.TrimSpace(getEnv("TRANSCRIPT_ARCHIVE_BUCKET", "")),

		StripeAPIKey:      getEnv("STRIPE_API_KEY", ""),
		StripeProductID:   getEnv("STRIPE_PRODUCT_ID", ""),
		PaymentCurrency:   strings.ToLower(getEnv("PAYMENT_CURRENCY", "eur")),
		PaymentDryRun:     getEnvAsBool("PAYMENT_DRY_RUN", false),
		PricingPolicyJSON: getEnv("PRICING_POLICY_JSON", ""),
		PricingPolicyFile: getEnv("PRICING_POLICY_FILE", ""),

		SMSProvider:       strings.ToLower(strings.TrimSpace(getEnv("SMS_PROVIDER", "auto"))),
		ClickSendUsername: getEnv("CLICKSEND_USERNAME", ""),
		ClickSendAPIKey:   getEnv("CLICKSEND_API_KEY", ""),
		ClickSendFrom:     getEnv("CLICKSEND_FROM", ""),
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:  getEnv("TWILIO_FROM_NUMBER", ""),

		EmailProvider:      strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "Booking Assistant"),
		SESFromEmail:       getEnv("SES_FROM_EMAIL", ""),
		ClinicNotifyEmails: getEnvAsList("CLINIC_NOTIFY_EMAILS"),
	}
}

// Location resolves the configured clinic timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
