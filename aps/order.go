package aps

import (
	"context"
	"errors"
)

// Dispatch failure classes.
var (
	ErrInvalidPayload = errors.New("aps: invalid gateway parameters")
	ErrOrderNotFound  = errors.New("aps: order not found")
)

// Mode tells the order store which channel delivered the outcome.
type Mode string

const (
	ModeOnline  Mode = "online"
	ModeWebhook Mode = "webhook"
)

// Item is one order line item.
type Item struct {
	Name     string
	Category string
	Price    float64
	Quantity int
}

// Order is the platform order this core acts on. It is owned by the
// surrounding commerce platform; the core only reads it and requests state
// transitions through the OrderStore.
type Order struct {
	ID            string
	Total         float64
	Currency      string
	CurrencyRate  float64
	Email         string
	CustomerName  string
	PaymentMethod string
	UserID        string
	Items         []Item

	// Hosted installment plan selection captured earlier in the checkout.
	PlanCode   string
	IssuerCode string

	// BNPL reference id linked to this order at purchase time.
	ValuReferenceID string

	// GatewayResponse is the stored processor response of the original
	// purchase, reused for subscription renewals.
	GatewayResponse map[string]string
}

// OrderStore loads orders and applies lifecycle transitions. Callers must
// serialize per order id; the core performs load-decide-transition sequences
// without isolation of its own.
type OrderStore interface {
	Load(ctx context.Context, orderID string) (*Order, error)

	// FindByReference resolves an order by the BNPL reference id attached
	// at purchase time. Refund webhooks can arrive before the local link
	// does, carrying the reference instead of the order id.
	FindByReference(ctx context.Context, reference string) (string, error)

	MarkSuccess(ctx context.Context, orderID string, payload map[string]string, mode Mode) error
	MarkOnHold(ctx context.Context, orderID, message string) error

	// MarkDeclined returns true when the order was already in a failure
	// state before this decline.
	MarkDeclined(ctx context.Context, orderID string, payload map[string]string, message string) (bool, error)

	MarkCaptured(ctx context.Context, orderID string, payload map[string]string, mode Mode) error
	MarkRefunded(ctx context.Context, orderID string, payload map[string]string, mode Mode) error
	MarkVoided(ctx context.Context, orderID string, payload map[string]string, mode Mode) error
	MarkCancelled(ctx context.Context, orderID string) error

	SaveTokenizationStatus(ctx context.Context, orderID string) error
}

// TokenRecord is a saved card token. TokenName is the processor's opaque
// token identifier used on later charges; MaskedCard is the redacted card
// number returned alongside it.
type TokenRecord struct {
	TokenName  string
	MaskedCard string
	UserID     string
	CardType   string
}

// TokenStore persists and looks up saved card tokens.
type TokenStore interface {
	SaveToken(ctx context.Context, record *TokenRecord) error
	FindByName(ctx context.Context, tokenName, userID string) (*TokenRecord, error)
}

// PaymentSession is the in-flight state of the BNPL multi-step flow, keyed
// by a shopper session token. Single-flight per shopper.
type PaymentSession struct {
	ReferenceID   string
	MobileNumber  string
	OTP           string
	TransactionID string
	OrderID       string
}

// SessionStore persists BNPL step state between requests.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*PaymentSession, error)
	Put(ctx context.Context, sessionID string, session *PaymentSession) error
	Delete(ctx context.Context, sessionID string) error
}
