package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *APSConfig {
	return &APSConfig{
		MerchantIdentifier:  "CycHZxVj",
		AccessCode:          "zx0IPmPy5jp1vAz",
		Language:            "en",
		Environment:         "sandbox",
		HashAlgorithm:       HashSHA256,
		RequestPhrase:       "PASS",
		ResponsePhrase:      "RESP",
		WalletHashAlgorithm: HashSHA256,
		GatewayCurrency:     "base",
		BaseCurrency:        "USD",
		PaymentAction:       "PURCHASE",
		BaseURL:             "https://pay.example",
	}
}

func TestAPSConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *APSConfig)
	}{
		{"missing merchant identifier", func(c *APSConfig) { c.MerchantIdentifier = "" }},
		{"missing access code", func(c *APSConfig) { c.AccessCode = "" }},
		{"missing request phrase", func(c *APSConfig) { c.RequestPhrase = "" }},
		{"missing response phrase", func(c *APSConfig) { c.ResponsePhrase = "" }},
		{"unknown hash algorithm", func(c *APSConfig) { c.HashAlgorithm = "md5" }},
		{"unknown wallet hash algorithm", func(c *APSConfig) { c.WalletHashAlgorithm = "crc32" }},
		{"bad gateway currency", func(c *APSConfig) { c.GatewayCurrency = "shopper" }},
		{"bad payment action", func(c *APSConfig) { c.PaymentAction = "CAPTURE" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAPSConfig_ValidatePaymentActionCaseInsensitive(t *testing.T) {
	cfg := validConfig()
	cfg.PaymentAction = "authorization"
	assert.NoError(t, cfg.Validate())
}

func TestAPSConfig_Endpoints(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "https://sbcheckout.payfort.com/FortAPI/paymentPage", cfg.GatewayURL())
	assert.Equal(t, "https://sbpaymentservices.payfort.com/FortAPI/paymentApi", cfg.APIURL())
	assert.False(t, cfg.IsProduction())

	cfg.Environment = "production"
	assert.Equal(t, "https://checkout.payfort.com/FortAPI/paymentPage", cfg.GatewayURL())
	assert.Equal(t, "https://paymentservices.payfort.com/FortAPI/paymentApi", cfg.APIURL())
	assert.True(t, cfg.IsProduction())
}

func TestAPSConfig_EndpointOverrides(t *testing.T) {
	cfg := validConfig()
	cfg.APIEndpoint = "http://127.0.0.1:8081/api"
	cfg.CheckoutEndpoint = "http://127.0.0.1:8081/page"

	assert.Equal(t, "http://127.0.0.1:8081/api", cfg.APIURL())
	assert.Equal(t, "http://127.0.0.1:8081/page", cfg.GatewayURL())
}

func TestAPSConfig_ReturnURL(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "https://pay.example/v1/callback", cfg.ReturnURL("/v1/callback"))

	cfg.BaseURL = "https://pay.example/"
	assert.Equal(t, "https://pay.example/v1/callback", cfg.ReturnURL("/v1/callback"))
}

func TestAPSConfig_PluginParams(t *testing.T) {
	params := validConfig().PluginParams()
	assert.Equal(t, "GO", params["app_programming"])
	assert.Equal(t, "APSGW", params["app_plugin"])
	assert.Equal(t, PluginVersion, params["app_plugin_version"])
}

func TestLoadAPSConfigDefaults(t *testing.T) {
	cfg := LoadAPSConfig()
	assert.Equal(t, "sandbox", cfg.Environment)
	assert.Equal(t, HashSHA256, cfg.HashAlgorithm)
	assert.Equal(t, "base", cfg.GatewayCurrency)
	assert.NotEmpty(t, cfg.MadaBins)
	assert.NotEmpty(t, cfg.MeezaBins)
}
