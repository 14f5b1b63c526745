// Package config centralizes the environment-variable surface the
// daemon reads at startup. All config is read once; nothing here is
// mutated after Load returns.
package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	StageLocal = "local"
	StageDev   = "dev"
	StageProd  = "prod"
)

// IsValidStage reports whether s is one of the recognized deployment stages.
func IsValidStage(s string) bool {
	switch s {
	case StageLocal, StageDev, StageProd:
		return true
	default:
		return false
	}
}

// Config is the fully-resolved process configuration, read once from
// the environment at startup.
type Config struct {
	Stage string

	DatabaseURL string
	CacheURL    string

	PaymentProcessorKey           string
	PaymentProcessorWebhookSecret string

	TaxProcessorKey string
	TaxProcessorURL string

	ProvisionerURL       string
	ProvisionerMasterKey string

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMTPTLSMode  string
	ResendAPIKey string

	FileHostKey    string
	FileHostSecret string
	PublicCDNURL   string

	SelfURL                string
	AllowedCallbackSuffixes []string

	AMQPURL string

	AuthJWKSURL string
}

// Load reads the process environment into a Config, defaulting STAGE to
// local and validating it. Missing feature-specific values are left
// blank; callers that need them (e.g. the billing reconciliation loops
// needing PaymentProcessorKey) fail fast when they try to use an
// unconfigured adapter, rather than failing at startup.
func Load() (*Config, error) {
	stage := os.Getenv("STAGE")
	if stage == "" {
		stage = StageLocal
	}
	if !IsValidStage(stage) {
		return nil, fmt.Errorf("invalid STAGE %q: must be one of %s, %s, %s", stage, StageLocal, StageDev, StageProd)
	}

	cfg := &Config{
		Stage:       stage,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		CacheURL:    os.Getenv("CACHE_URL"),

		PaymentProcessorKey:           os.Getenv("PAYMENT_PROCESSOR_KEY"),
		PaymentProcessorWebhookSecret: os.Getenv("PAYMENT_PROCESSOR_WEBHOOK_SECRET"),

		TaxProcessorKey: os.Getenv("TAX_PROCESSOR_KEY"),
		TaxProcessorURL: os.Getenv("TAX_PROCESSOR_URL"),

		ProvisionerURL:       os.Getenv("PROVISIONER_URL"),
		ProvisionerMasterKey: os.Getenv("PROVISIONER_MASTER_KEY"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     os.Getenv("SMTP_PORT"),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPass:     os.Getenv("SMTP_PASS"),
		SMTPTLSMode:  os.Getenv("SMTP_TLS_MODE"),
		ResendAPIKey: os.Getenv("RESEND_API_KEY"),

		FileHostKey:    os.Getenv("FILE_HOST_KEY"),
		FileHostSecret: os.Getenv("FILE_HOST_SECRET"),
		PublicCDNURL:   os.Getenv("PUBLIC_CDN_URL"),

		SelfURL: os.Getenv("SELF_URL"),
		AMQPURL: os.Getenv("AMQP_URL"),

		AuthJWKSURL: os.Getenv("AUTH_JWKS_URL"),
	}

	if suffixes := os.Getenv("ALLOWED_CALLBACK_SUFFIXES"); suffixes != "" {
		cfg.AllowedCallbackSuffixes = strings.Split(suffixes, ",")
	}

	return cfg, nil
}
