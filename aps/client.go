package aps

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

// Response is a parsed gateway reply. A nil Response means the transport
// failed or the body was not a structured reply; ordinary HTTP failures are
// signaled this way rather than through errors.
type Response map[string]any

// Str returns the string form of a scalar field, or "" when absent.
func (r Response) Str(key string) string {
	if r == nil {
		return ""
	}
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Has reports whether the field is present and non-empty.
func (r Response) Has(key string) bool {
	return r.Str(key) != ""
}

// Code returns the response_code field.
func (r Response) Code() string { return r.Str("response_code") }

// Message returns the response_message field.
func (r Response) Message() string { return r.Str("response_message") }

// ClientConfig represents configuration for the gateway HTTP client.
type ClientConfig struct {
	Timeout time.Duration

	// Wallet merchant validation requires a TLS client certificate pair.
	WalletCertificatePath string
	WalletCertificateKey  string
}

// Client is the sole outbound I/O boundary towards the processor.
type Client struct {
	config *ClientConfig
	client *http.Client
}

// NewClient creates a gateway client.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = &ClientConfig{}
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// PostJSON sends the payload as a JSON body and parses the structured reply.
// Redirects are followed and gzip-encoded replies decoded. HTTP error
// statuses fail the call; all failures surface as a nil Response.
func (c *Client) PostJSON(ctx context.Context, payload any, url string) Response {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}

	reader := io.Reader(resp.Body)
	// Transparent decompression is off when the gateway encodes the body
	// in reply to a proxy-injected Accept-Encoding header.
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil
		}
		defer gz.Close()
		reader = gz
	}

	respBody, err := io.ReadAll(reader)
	if err != nil {
		return nil
	}

	var parsed Response
	if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed) == 0 {
		return nil
	}
	return parsed
}

// PostWalletSession performs the wallet merchant-validation call, which is
// authenticated with the merchant's TLS client certificate.
func (c *Client) PostWalletSession(ctx context.Context, payload any, url string) ([]byte, error) {
	cert, err := tls.LoadX509KeyPair(c.config.WalletCertificatePath, c.config.WalletCertificateKey)
	if err != nil {
		return nil, fmt.Errorf("aps: failed to load wallet certificate: %w", err)
	}

	client := &http.Client{
		Timeout: c.config.Timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("aps: failed to marshal wallet session payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aps: wallet session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("aps: wallet session returned HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
