package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/payops/apsgw/aps"
)

// Order lifecycle statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusOnHold     = "on-hold"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
	StatusRefunded   = "refunded"
)

// SQLiteStore persists orders, saved card tokens and checkout sessions. It
// implements aps.OrderStore, aps.TokenStore and aps.SessionStore.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// retryOperation executes a database operation with retry logic for SQLITE_BUSY errors
func (s *SQLiteStore) retryOperation(operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		// Check if it's a busy error
		if strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked") {
			lastErr = err
			if attempt < maxRetries {
				// Exponential backoff: 10ms, 20ms, 40ms, 80ms
				backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
				log.Printf("SQLite busy, retrying in %v (attempt %d/%d)", backoff, attempt+1, maxRetries+1)
				time.Sleep(backoff)
				continue
			}
		} else {
			// Not a retry-able error
			return err
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", maxRetries+1, lastErr)
}

// NewSQLiteStore creates a new SQLite store optimized for multiple processes
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// SQLite connection string with multi-process optimizations
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_timeout=20000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:   db,
		path: dbPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := store.optimizeForMultiProcess(); err != nil {
		log.Printf("Warning: Failed to apply optimizations: %v", err)
	}

	log.Printf("SQLite store initialized at: %s (multi-process optimized)", dbPath)
	return store, nil
}

// initSchema creates the necessary tables
func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		status_message TEXT NOT NULL DEFAULT '',
		gateway_response TEXT NOT NULL DEFAULT '{}',
		valu_reference_id TEXT NOT NULL DEFAULT '',
		tokenization_saved INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_orders_valu_reference ON orders(valu_reference_id);

	CREATE TABLE IF NOT EXISTS order_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL,
		status TEXT NOT NULL,
		mode TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_order_events_order ON order_events(order_id);

	CREATE TABLE IF NOT EXISTS tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token_name TEXT NOT NULL,
		user_id TEXT NOT NULL,
		card_number TEXT NOT NULL DEFAULT '',
		card_type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(token_name, user_id)
	);

	CREATE TABLE IF NOT EXISTS payment_sessions (
		session_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Trigger to update updated_at column
	CREATE TRIGGER IF NOT EXISTS update_orders_updated_at
		AFTER UPDATE ON orders
	BEGIN
		UPDATE orders SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
	END;
	`

	_, err := s.db.Exec(query)
	return err
}

// optimizeForMultiProcess applies SQLite optimizations for multi-process access
func (s *SQLiteStore) optimizeForMultiProcess() error {
	optimizations := []string{
		"PRAGMA journal_mode = WAL;",    // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous = NORMAL;",  // Balance between safety and speed
		"PRAGMA cache_size = 1000;",     // Increase cache size
		"PRAGMA busy_timeout = 30000;",  // 30 second timeout for lock waits
		"PRAGMA temp_store = memory;",   // Store temp tables in memory
		"PRAGMA mmap_size = 268435456;", // 256MB memory mapping
		"PRAGMA optimize;",              // Optimize database
	}

	for _, pragma := range optimizations {
		if _, err := s.db.Exec(pragma); err != nil {
			log.Printf("Warning: Failed to execute %s: %v", pragma, err)
		}
	}

	var journalMode string
	err := s.db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode)
	if err != nil {
		return fmt.Errorf("failed to check journal mode: %w", err)
	}

	log.Printf("SQLite journal mode: %s", journalMode)
	return nil
}

// SaveOrder registers or replaces an order before checkout starts.
func (s *SQLiteStore) SaveOrder(ctx context.Context, order *aps.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	return s.retryOperation(func() error {
		query := `
		INSERT INTO orders (id, data, status, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id)
		DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
		`
		_, err := s.db.ExecContext(ctx, query, order.ID, string(data), StatusPending)
		if err != nil {
			return fmt.Errorf("failed to save order: %w", err)
		}
		return nil
	}, 3) // Max 3 retries
}

// Load returns the order with its stored BNPL reference and saved gateway
// response. Missing orders return aps.ErrOrderNotFound.
func (s *SQLiteStore) Load(ctx context.Context, orderID string) (*aps.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var order *aps.Order
	err := s.retryOperation(func() error {
		query := `
		SELECT data, valu_reference_id, gateway_response
		FROM orders
		WHERE id = ?
		`

		var data, valuReference, gatewayResponse string
		err := s.db.QueryRowContext(ctx, query, orderID).Scan(&data, &valuReference, &gatewayResponse)
		if err != nil {
			if err == sql.ErrNoRows {
				return aps.ErrOrderNotFound
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		order = &aps.Order{}
		if err := json.Unmarshal([]byte(data), order); err != nil {
			return fmt.Errorf("failed to unmarshal order: %w", err)
		}
		order.ValuReferenceID = valuReference
		if gatewayResponse != "" && gatewayResponse != "{}" {
			var stored map[string]string
			if err := json.Unmarshal([]byte(gatewayResponse), &stored); err == nil {
				order.GatewayResponse = stored
			}
		}
		return nil
	}, 3)

	if err != nil {
		return nil, err
	}
	return order, nil
}

// FindByReference resolves an order id by the BNPL purchase reference. An
// unknown reference returns an empty id without error.
func (s *SQLiteStore) FindByReference(ctx context.Context, reference string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orderID string
	err := s.retryOperation(func() error {
		query := `SELECT id FROM orders WHERE valu_reference_id = ?`
		err := s.db.QueryRowContext(ctx, query, reference).Scan(&orderID)
		if err != nil {
			if err == sql.ErrNoRows {
				orderID = ""
				return nil
			}
			return fmt.Errorf("failed to find order by reference: %w", err)
		}
		return nil
	}, 3)

	return orderID, err
}

func (s *SQLiteStore) transition(ctx context.Context, orderID, status, message string, payload map[string]string, mode aps.Mode) error {
	rendered := "{}"
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			rendered = string(data)
		}
	}

	return s.retryOperation(func() error {
		query := `
		UPDATE orders
		SET status = ?, status_message = ?, gateway_response = ?
		WHERE id = ?
		`
		result, err := s.db.ExecContext(ctx, query, status, message, rendered, orderID)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return aps.ErrOrderNotFound
		}

		event := `
		INSERT INTO order_events (order_id, status, mode, message, payload)
		VALUES (?, ?, ?, ?, ?)
		`
		if _, err := s.db.ExecContext(ctx, event, orderID, status, string(mode), message, rendered); err != nil {
			return fmt.Errorf("failed to record order event: %w", err)
		}
		return nil
	}, 3) // Max 3 retries
}

// MarkSuccess completes the order. A BNPL payload also links its purchase
// reference so refund webhooks can find the order later.
func (s *SQLiteStore) MarkSuccess(ctx context.Context, orderID string, payload map[string]string, mode aps.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transition(ctx, orderID, StatusProcessing, payload["response_message"], payload, mode); err != nil {
		return err
	}

	if payload["payment_option"] == aps.PaymentOptionValu && payload["merchant_reference"] != "" {
		return s.retryOperation(func() error {
			query := `UPDATE orders SET valu_reference_id = ? WHERE id = ?`
			if _, err := s.db.ExecContext(ctx, query, payload["merchant_reference"], orderID); err != nil {
				return fmt.Errorf("failed to link purchase reference: %w", err)
			}
			return nil
		}, 3)
	}
	return nil
}

func (s *SQLiteStore) MarkOnHold(ctx context.Context, orderID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(ctx, orderID, StatusOnHold, message, nil, "")
}

// MarkDeclined fails the order and reports whether it was already in a
// failure state before this decline.
func (s *SQLiteStore) MarkDeclined(ctx context.Context, orderID string, payload map[string]string, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alreadyFailed := false
	err := s.retryOperation(func() error {
		var status string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, orderID).Scan(&status)
		if err != nil {
			if err == sql.ErrNoRows {
				return aps.ErrOrderNotFound
			}
			return fmt.Errorf("failed to read order status: %w", err)
		}
		alreadyFailed = status == StatusFailed || status == StatusCancelled
		return nil
	}, 3)
	if err != nil {
		return false, err
	}

	if err := s.transition(ctx, orderID, StatusFailed, message, payload, ""); err != nil {
		return false, err
	}
	return alreadyFailed, nil
}

func (s *SQLiteStore) MarkCaptured(ctx context.Context, orderID string, payload map[string]string, mode aps.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(ctx, orderID, StatusProcessing, payload["response_message"], payload, mode)
}

func (s *SQLiteStore) MarkRefunded(ctx context.Context, orderID string, payload map[string]string, mode aps.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(ctx, orderID, StatusRefunded, payload["response_message"], payload, mode)
}

func (s *SQLiteStore) MarkVoided(ctx context.Context, orderID string, payload map[string]string, mode aps.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(ctx, orderID, StatusCancelled, payload["response_message"], payload, mode)
}

func (s *SQLiteStore) MarkCancelled(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(ctx, orderID, StatusCancelled, "Transaction Cancelled", nil, "")
}

func (s *SQLiteStore) SaveTokenizationStatus(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		query := `UPDATE orders SET tokenization_saved = 1 WHERE id = ?`
		result, err := s.db.ExecContext(ctx, query, orderID)
		if err != nil {
			return fmt.Errorf("failed to save tokenization status: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return aps.ErrOrderNotFound
		}
		return nil
	}, 3)
}

// SaveToken stores a card token the processor returned for a shopper.
func (s *SQLiteStore) SaveToken(ctx context.Context, record *aps.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		query := `
		INSERT INTO tokens (token_name, user_id, card_number, card_type)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(token_name, user_id)
		DO UPDATE SET
			card_number = excluded.card_number,
			card_type = excluded.card_type,
			status = 'ACTIVE'
		`
		_, err := s.db.ExecContext(ctx, query, record.TokenName, record.UserID, record.MaskedCard, record.CardType)
		if err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
		return nil
	}, 3)
}

// FindByName looks up an active saved card token for a shopper.
func (s *SQLiteStore) FindByName(ctx context.Context, tokenName, userID string) (*aps.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var record *aps.TokenRecord
	err := s.retryOperation(func() error {
		query := `
		SELECT token_name, user_id, card_number, card_type
		FROM tokens
		WHERE token_name = ? AND user_id = ? AND status = 'ACTIVE'
		`
		record = &aps.TokenRecord{}
		err := s.db.QueryRowContext(ctx, query, tokenName, userID).Scan(&record.TokenName, &record.UserID, &record.MaskedCard, &record.CardType)
		if err != nil {
			if err == sql.ErrNoRows {
				record = nil
				return fmt.Errorf("no token found for name: %s", tokenName)
			}
			return fmt.Errorf("failed to load token: %w", err)
		}
		return nil
	}, 3)

	if err != nil {
		return nil, err
	}
	return record, nil
}

// DeactivateToken marks a saved token inactive after the processor confirmed
// the deletion.
func (s *SQLiteStore) DeactivateToken(ctx context.Context, tokenName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		query := `UPDATE tokens SET status = 'INACTIVE' WHERE token_name = ?`
		if _, err := s.db.ExecContext(ctx, query, tokenName); err != nil {
			return fmt.Errorf("failed to deactivate token: %w", err)
		}
		return nil
	}, 3)
}

// Get returns the payment session for a shopper, or nil when none is open.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*aps.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var session *aps.PaymentSession
	err := s.retryOperation(func() error {
		var data string
		err := s.db.QueryRowContext(ctx, `SELECT data FROM payment_sessions WHERE session_id = ?`, sessionID).Scan(&data)
		if err != nil {
			if err == sql.ErrNoRows {
				session = nil
				return nil
			}
			return fmt.Errorf("failed to load payment session: %w", err)
		}
		session = &aps.PaymentSession{}
		if err := json.Unmarshal([]byte(data), session); err != nil {
			return fmt.Errorf("failed to unmarshal payment session: %w", err)
		}
		return nil
	}, 3)

	if err != nil {
		return nil, err
	}
	return session, nil
}

// Put stores the payment session for a shopper.
func (s *SQLiteStore) Put(ctx context.Context, sessionID string, session *aps.PaymentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal payment session: %w", err)
	}

	return s.retryOperation(func() error {
		query := `
		INSERT INTO payment_sessions (session_id, data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id)
		DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
		`
		if _, err := s.db.ExecContext(ctx, query, sessionID, string(data)); err != nil {
			return fmt.Errorf("failed to save payment session: %w", err)
		}
		return nil
	}, 3)
}

// Delete removes the payment session for a shopper.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM payment_sessions WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("failed to delete payment session: %w", err)
		}
		return nil
	}, 3)
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
