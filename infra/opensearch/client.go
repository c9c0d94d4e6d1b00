package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/payops/apsgw/infra/config"
)

// GatewayLog is a single gateway diagnostics document. Request and response
// payloads are stored as rendered JSON so the document mapping stays flat.
type GatewayLog struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	OrderID   string    `json:"order_id,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	Service   string    `json:"service"`
}

// Client wraps the OpenSearch client used as the gateway log sink.
type Client struct {
	client *opensearch.Client
	config *config.AppConfig
}

// NewClient creates a new OpenSearch client
func NewClient(cfg *config.AppConfig) (*Client, error) {
	opensearchConfig := opensearch.Config{
		Addresses: []string{cfg.OpenSearchURL},
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // For development/testing
			},
		},
		MaxRetries:    3,
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 100 * time.Millisecond
		},
	}

	if cfg.OpenSearchUser != "" && cfg.OpenSearchPass != "" {
		opensearchConfig.Username = cfg.OpenSearchUser
		opensearchConfig.Password = cfg.OpenSearchPass
	}

	client, err := opensearch.NewClient(opensearchConfig)
	if err != nil {
		return nil, err
	}

	return &Client{client: client, config: cfg}, nil
}

// IndexName returns the monthly index the given document belongs to.
func (c *Client) IndexName(at time.Time) string {
	return fmt.Sprintf("apsgw-gateway-logs-%s", at.Format("2006.01"))
}

// IndexGatewayLog writes one log document.
func (c *Client) IndexGatewayLog(ctx context.Context, entry GatewayLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Service = "apsgw"

	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: c.IndexName(entry.Timestamp),
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to index log entry: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch returned %s indexing log entry", res.Status())
	}
	return nil
}

// DeleteExpiredIndices removes monthly indices older than the retention window.
func (c *Client) DeleteExpiredIndices(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -c.config.LogRetentionDays)

	req := opensearchapi.CatIndicesRequest{
		Index:  []string{"apsgw-gateway-logs-*"},
		Format: "json",
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to list log indices: %w", err)
	}
	defer res.Body.Close()

	var indices []struct {
		Index string `json:"index"`
	}
	if err := json.NewDecoder(res.Body).Decode(&indices); err != nil {
		return fmt.Errorf("failed to decode index list: %w", err)
	}

	var expired []string
	for _, idx := range indices {
		suffix := strings.TrimPrefix(idx.Index, "apsgw-gateway-logs-")
		month, err := time.Parse("2006.01", suffix)
		if err != nil {
			continue
		}
		if month.Before(cutoff) {
			expired = append(expired, idx.Index)
		}
	}
	if len(expired) == 0 {
		return nil
	}

	del := opensearchapi.IndicesDeleteRequest{Index: expired}
	delRes, err := del.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to delete expired indices: %w", err)
	}
	defer delRes.Body.Close()
	return nil
}
