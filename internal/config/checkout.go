package config

import (
	"os"
	"strconv"
	"time"
)

// CheckoutConfig drives the reservation window and the payment-gateway
// handoff. The gateway secret itself is read from viper at the point of
// use so a missing credential fails the request, not the process.
type CheckoutConfig struct {
	ReservationTTL   time.Duration
	ReleaseOnFailure bool // release holds immediately on failed/cancelled payment
	GatewayBaseURL   string
	CallbackURL      string
	Currency         string
	PaymentTitle     string
	PaymentLogo      string
	ErrorRedirect    string
}

func LoadCheckoutConfig() *CheckoutConfig {
	return &CheckoutConfig{
		ReservationTTL:   getEnvAsDuration("CHECKOUT_RESERVATION_TTL", 5*time.Minute),
		ReleaseOnFailure: getEnvAsBool("CHECKOUT_RELEASE_ON_FAILURE", false),
		GatewayBaseURL:   getEnv("GATEWAY_BASE_URL", "https://api.flutterwave.com/v3"),
		CallbackURL:      getEnv("GATEWAY_CALLBACK_URL", "http://localhost:8080/api/v1/payment/callback"),
		Currency:         getEnv("CHECKOUT_CURRENCY", "USD"),
		PaymentTitle:     getEnv("CHECKOUT_PAYMENT_TITLE", "Warren Pro Beats"),
		PaymentLogo:      getEnv("CHECKOUT_PAYMENT_LOGO", ""),
		ErrorRedirect:    getEnv("CHECKOUT_ERROR_REDIRECT", "/payment/error"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
