package config

import (
	"testing"
	"time"
)

func requiredEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":          "postgres://localhost:5432/storefront",
		"REDIS_URL":             "redis://localhost:6379/0",
		"JWT_SECRET":            "secret",
		"STRIPE_SECRET_KEY":     "sk_test_123",
		"STRIPE_WEBHOOK_SECRET": "whsec_123",
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := LoadForTests(requiredEnv())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("unexpected port %q", cfg.Port)
	}
	if cfg.CurrencyCode != "usd" {
		t.Fatalf("unexpected currency %q", cfg.CurrencyCode)
	}
	if cfg.MinChargeAmount != 50 {
		t.Fatalf("unexpected min charge %d", cfg.MinChargeAmount)
	}
	if cfg.PartnerCouponTTL != 2160*time.Hour {
		t.Fatalf("unexpected partner coupon ttl %v", cfg.PartnerCouponTTL)
	}
	if cfg.WebhookReplayTTL != 48*time.Hour {
		t.Fatalf("unexpected replay ttl %v", cfg.WebhookReplayTTL)
	}
	if !cfg.NotifyEmailEnabled {
		t.Fatal("email notifications should default on")
	}
	if cfg.QueueRedisPrefix != "storefront" {
		t.Fatalf("unexpected queue prefix %q", cfg.QueueRedisPrefix)
	}
}

func TestLoadRejectsMissingRequired(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "JWT_SECRET", "STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET"} {
		env := requiredEnv()
		env[key] = ""
		if _, err := LoadForTests(env); err == nil {
			t.Fatalf("expected error when %s is missing", key)
		}
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	env := requiredEnv()
	env["PORT"] = "9090"
	env["PRICING_TAX_RATE_BPS"] = "725"
	env["PAYMENT_MIN_CHARGE_AMOUNT"] = "100"
	env["CORS_ALLOWED_ORIGINS"] = "https://shop.example.com, https://admin.example.com"
	env["PAYMENT_SESSION_TTL"] = "15m"
	env["NOTIFY_EMAIL_ENABLED"] = "false"
	env["QUEUE_BACKOFF_JITTER"] = "0.5"

	cfg, err := LoadForTests(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TaxRateBPS != 725 {
		t.Fatalf("unexpected tax rate %d", cfg.TaxRateBPS)
	}
	if cfg.MinChargeAmount != 100 {
		t.Fatalf("unexpected min charge %d", cfg.MinChargeAmount)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[0] != "https://shop.example.com" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.PaymentSessionTTL != 15*time.Minute {
		t.Fatalf("unexpected session ttl %v", cfg.PaymentSessionTTL)
	}
	if cfg.NotifyEmailEnabled {
		t.Fatal("expected email notifications to be disabled")
	}
	if cfg.QueueBackoffJitter != 0.5 {
		t.Fatalf("unexpected jitter %v", cfg.QueueBackoffJitter)
	}
}

func TestLoadFallsBackOnBadDuration(t *testing.T) {
	env := requiredEnv()
	env["PAYMENT_SESSION_TTL"] = "not-a-duration"
	cfg, err := LoadForTests(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PaymentSessionTTL != 30*time.Minute {
		t.Fatalf("expected fallback ttl, got %v", cfg.PaymentSessionTTL)
	}
}

func TestHTTPAddrNormalisesPort(t *testing.T) {
	cases := map[string]string{
		"8080":  ":8080",
		":9090": ":9090",
		"":      ":8080",
	}
	for in, want := range cases {
		c := Config{Port: in}
		if got := c.HTTPAddr(); got != want {
			t.Fatalf("HTTPAddr(%q) = %q, want %q", in, got, want)
		}
	}
}
