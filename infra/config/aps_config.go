package config

import (
	"fmt"
	"strings"
)

// PluginVersion identifies this integration build to the processor.
const PluginVersion = "v1.0.0"

const (
	checkoutSandboxURL    = "https://sbcheckout.payfort.com/FortAPI/paymentPage"
	checkoutProductionURL = "https://checkout.payfort.com/FortAPI/paymentPage"
	apiSandboxURL         = "https://sbpaymentservices.payfort.com/FortAPI/paymentApi"
	apiProductionURL      = "https://paymentservices.payfort.com/FortAPI/paymentApi"
)

// Hash algorithms accepted by the gateway for request/response signing.
const (
	HashSHA256  = "sha256"
	HashSHA512  = "sha512"
	HashHMAC256 = "hmac256"
	HashHMAC512 = "hmac512"
)

// APSConfig holds the merchant-level gateway configuration. It is loaded once
// at startup and read-only afterwards.
type APSConfig struct {
	MerchantIdentifier string
	AccessCode         string
	WalletAccessCode   string
	Language           string
	Environment        string

	// Signing secrets per flavor. The wallet pair is used for the digital
	// wallet channel, which is provisioned with its own access code.
	HashAlgorithm        string
	RequestPhrase        string
	ResponsePhrase       string
	WalletHashAlgorithm  string
	WalletRequestPhrase  string
	WalletResponsePhrase string

	// GatewayCurrency selects whether the shopper-facing ("front") or the
	// store base currency is sent to the processor.
	GatewayCurrency string
	BaseCurrency    string
	PaymentAction   string
	DebugMode       bool
	Subscriptions   bool

	// Where the shopper lands after the payment outcome is recorded.
	CheckoutSuccessURL string
	CheckoutFailureURL string

	// Domestic scheme BIN patterns, regex fragments anchored at the start
	// of the card number.
	MadaBins  string
	MeezaBins string

	// Wallet merchant validation (TLS client certificate).
	WalletDomainName      string
	WalletDisplayName     string
	WalletCertificatePath string
	WalletCertificateKey  string
	WalletCertificatePass string

	// BaseURL is this service's externally reachable URL, used to build
	// return URLs for redirect and webhook responses.
	BaseURL string

	// Endpoint overrides for test rigs and mock processors. Empty means
	// the environment-selected processor endpoints.
	APIEndpoint      string
	CheckoutEndpoint string
}

// LoadAPSConfig builds the merchant configuration from environment variables.
func LoadAPSConfig() *APSConfig {
	return &APSConfig{
		MerchantIdentifier:    GetEnv("APS_MERCHANT_IDENTIFIER", ""),
		AccessCode:            GetEnv("APS_ACCESS_CODE", ""),
		WalletAccessCode:      GetEnv("APS_WALLET_ACCESS_CODE", ""),
		Language:              GetEnv("APS_LANGUAGE", "en"),
		Environment:           GetEnv("APS_ENVIRONMENT", "sandbox"),
		HashAlgorithm:         GetEnv("APS_HASH_ALGORITHM", HashSHA256),
		RequestPhrase:         GetEnv("APS_REQUEST_PHRASE", ""),
		ResponsePhrase:        GetEnv("APS_RESPONSE_PHRASE", ""),
		WalletHashAlgorithm:   GetEnv("APS_WALLET_HASH_ALGORITHM", HashSHA256),
		WalletRequestPhrase:   GetEnv("APS_WALLET_REQUEST_PHRASE", ""),
		WalletResponsePhrase:  GetEnv("APS_WALLET_RESPONSE_PHRASE", ""),
		GatewayCurrency:       GetEnv("APS_GATEWAY_CURRENCY", "base"),
		BaseCurrency:          GetEnv("APS_BASE_CURRENCY", "USD"),
		CheckoutSuccessURL:    GetEnv("APS_CHECKOUT_SUCCESS_URL", "/checkout/success"),
		CheckoutFailureURL:    GetEnv("APS_CHECKOUT_FAILURE_URL", "/checkout"),
		PaymentAction:         GetEnv("APS_PAYMENT_ACTION", "PURCHASE"),
		DebugMode:             GetBoolEnv("APS_DEBUG_MODE", false),
		Subscriptions:         GetBoolEnv("APS_SUBSCRIPTIONS", false),
		MadaBins:              GetEnv("APS_MADA_BINS", "588845|588850|589005|508160|440647|440795|446404|457865|468540"),
		MeezaBins:             GetEnv("APS_MEEZA_BINS", "507803|507808|507809|504425"),
		WalletDomainName:      GetEnv("APS_WALLET_DOMAIN_NAME", ""),
		WalletDisplayName:     GetEnv("APS_WALLET_DISPLAY_NAME", ""),
		WalletCertificatePath: GetEnv("APS_WALLET_CERTIFICATE", ""),
		WalletCertificateKey:  GetEnv("APS_WALLET_CERTIFICATE_KEY", ""),
		WalletCertificatePass: GetEnv("APS_WALLET_CERTIFICATE_PASS", ""),
		BaseURL:               GetEnv("APP_URL", "http://localhost:9999"),
		APIEndpoint:           GetEnv("APS_API_ENDPOINT", ""),
		CheckoutEndpoint:      GetEnv("APS_CHECKOUT_ENDPOINT", ""),
	}
}

// Validate rejects configurations the signing engine cannot serve. An unknown
// hash algorithm would otherwise only surface on the first payment.
func (c *APSConfig) Validate() error {
	if c.MerchantIdentifier == "" {
		return fmt.Errorf("aps config: merchant identifier is required")
	}
	if c.AccessCode == "" {
		return fmt.Errorf("aps config: access code is required")
	}
	if c.RequestPhrase == "" || c.ResponsePhrase == "" {
		return fmt.Errorf("aps config: request and response phrases are required")
	}
	for _, algorithm := range []string{c.HashAlgorithm, c.WalletHashAlgorithm} {
		switch algorithm {
		case HashSHA256, HashSHA512, HashHMAC256, HashHMAC512:
		default:
			return fmt.Errorf("aps config: unsupported hash algorithm %q", algorithm)
		}
	}
	if c.GatewayCurrency != "front" && c.GatewayCurrency != "base" {
		return fmt.Errorf("aps config: gateway currency must be 'front' or 'base', got %q", c.GatewayCurrency)
	}
	if action := strings.ToUpper(c.PaymentAction); action != "PURCHASE" && action != "AUTHORIZATION" {
		return fmt.Errorf("aps config: payment action must be PURCHASE or AUTHORIZATION, got %q", c.PaymentAction)
	}
	return nil
}

// IsProduction reports whether the production gateway endpoints are targeted.
func (c *APSConfig) IsProduction() bool {
	return c.Environment == "production"
}

// GatewayURL returns the redirect (payment page) endpoint.
func (c *APSConfig) GatewayURL() string {
	if c.CheckoutEndpoint != "" {
		return c.CheckoutEndpoint
	}
	if c.IsProduction() {
		return checkoutProductionURL
	}
	return checkoutSandboxURL
}

// APIURL returns the host-to-host API endpoint.
func (c *APSConfig) APIURL() string {
	if c.APIEndpoint != "" {
		return c.APIEndpoint
	}
	if c.IsProduction() {
		return apiProductionURL
	}
	return apiSandboxURL
}

// ReturnURL builds the callback URL for the given route under this service.
func (c *APSConfig) ReturnURL(route string) string {
	return strings.TrimRight(c.BaseURL, "/") + route
}

// PluginParams identifies this integration to the processor. The fields are
// merged into every redirect and purchase request before signing.
func (c *APSConfig) PluginParams() map[string]string {
	return map[string]string{
		"app_programming":    "GO",
		"app_framework":      "CHI",
		"app_plugin":         "APSGW",
		"app_plugin_version": PluginVersion,
	}
}
