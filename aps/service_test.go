package aps

import (
	"context"
	"sync"

	"github.com/payops/apsgw/infra/config"
	"github.com/payops/apsgw/infra/logger"
)

// mockOrderStore records every transition so tests can assert dispatch
// behavior without a database.
type mockOrderStore struct {
	mu     sync.Mutex
	orders map[string]*Order

	// reference -> order id, for refund webhook resolution
	references map[string]string

	successCalls  []string
	successMode   Mode
	onHoldCalls   []string
	onHoldMessage string
	declinedCalls []string
	declinedMsg   string
	capturedCalls []string
	refundedCalls []string
	voidedCalls   []string
	cancelled     []string
	tokenized     []string

	// pre-existing failure state reported by MarkDeclined
	alreadyFailed bool
}

func newMockOrderStore(orders ...*Order) *mockOrderStore {
	store := &mockOrderStore{
		orders:     map[string]*Order{},
		references: map[string]string{},
	}
	for _, order := range orders {
		store.orders[order.ID] = order
	}
	return store
}

func (m *mockOrderStore) Load(ctx context.Context, orderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order, ok := m.orders[orderID]; ok {
		return order, nil
	}
	return nil, ErrOrderNotFound
}

func (m *mockOrderStore) FindByReference(ctx context.Context, reference string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.references[reference], nil
}

func (m *mockOrderStore) MarkSuccess(ctx context.Context, orderID string, payload map[string]string, mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successCalls = append(m.successCalls, orderID)
	m.successMode = mode
	return nil
}

func (m *mockOrderStore) MarkOnHold(ctx context.Context, orderID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onHoldCalls = append(m.onHoldCalls, orderID)
	m.onHoldMessage = message
	return nil
}

func (m *mockOrderStore) MarkDeclined(ctx context.Context, orderID string, payload map[string]string, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.declinedCalls = append(m.declinedCalls, orderID)
	m.declinedMsg = message
	return m.alreadyFailed, nil
}

func (m *mockOrderStore) MarkCaptured(ctx context.Context, orderID string, payload map[string]string, mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capturedCalls = append(m.capturedCalls, orderID)
	return nil
}

func (m *mockOrderStore) MarkRefunded(ctx context.Context, orderID string, payload map[string]string, mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refundedCalls = append(m.refundedCalls, orderID)
	return nil
}

func (m *mockOrderStore) MarkVoided(ctx context.Context, orderID string, payload map[string]string, mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voidedCalls = append(m.voidedCalls, orderID)
	return nil
}

func (m *mockOrderStore) MarkCancelled(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, orderID)
	return nil
}

func (m *mockOrderStore) SaveTokenizationStatus(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenized = append(m.tokenized, orderID)
	return nil
}

type mockTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*TokenRecord
}

func (m *mockTokenStore) SaveToken(ctx context.Context, record *TokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = map[string]*TokenRecord{}
	}
	m.tokens[record.TokenName] = record
	return nil
}

func (m *mockTokenStore) FindByName(ctx context.Context, tokenName, userID string) (*TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token, ok := m.tokens[tokenName]; ok && token.UserID == userID {
		return token, nil
	}
	return nil, ErrOrderNotFound
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*PaymentSession
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]*PaymentSession{}}
}

func (m *memSessionStore) Get(ctx context.Context, sessionID string) (*PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID], nil
}

func (m *memSessionStore) Put(ctx context.Context, sessionID string, session *PaymentSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = session
	return nil
}

func (m *memSessionStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func testConfig() *config.APSConfig {
	return &config.APSConfig{
		MerchantIdentifier:   "CycHZxVj",
		AccessCode:           "zx0IPmPy5jp1vAz",
		WalletAccessCode:     "walletAccess",
		Language:             "en",
		Environment:          "sandbox",
		HashAlgorithm:        config.HashSHA256,
		RequestPhrase:        "PASS",
		ResponsePhrase:       "RESP",
		WalletHashAlgorithm:  config.HashSHA256,
		WalletRequestPhrase:  "WREQ",
		WalletResponsePhrase: "WRESP",
		GatewayCurrency:      "base",
		BaseCurrency:         "USD",
		PaymentAction:        "PURCHASE",
		CheckoutSuccessURL:   "https://shop.example/checkout/success",
		CheckoutFailureURL:   "https://shop.example/checkout",
		MadaBins:             "588845|440647|440795",
		MeezaBins:            "507803|507808",
		BaseURL:              "https://pay.example",
	}
}

func newTestService(cfg *config.APSConfig, orders OrderStore, tokens TokenStore, sessions SessionStore) *Service {
	if tokens == nil {
		tokens = &mockTokenStore{tokens: map[string]*TokenRecord{}}
	}
	if sessions == nil {
		sessions = newMemSessionStore()
	}
	return NewService(
		cfg,
		orders,
		tokens,
		sessions,
		SignerFromConfig(cfg),
		NewClient(nil),
		logger.New(nil, false),
	)
}

func testOrder(id string) *Order {
	return &Order{
		ID:           id,
		Total:        100,
		Currency:     "USD",
		CurrencyRate: 1,
		Email:        "shopper@example.com",
		UserID:       "u-1",
		Items:        []Item{{Name: "Blue Shirt", Category: "Apparel", Price: 100, Quantity: 1}},
	}
}
