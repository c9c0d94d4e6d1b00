package logger

import (
	"context"
	"log"
	"time"

	"github.com/payops/apsgw/infra/opensearch"
)

// Logger writes gateway diagnostics to the console and, when configured, to
// the OpenSearch log sink. Record is gated by the merchant debug flag so that
// production traffic only logs what callers force through.
type Logger struct {
	sink      *opensearch.Client
	debugMode bool
}

// New creates a logger. sink may be nil for console-only operation.
func New(sink *opensearch.Client, debugMode bool) *Logger {
	return &Logger{sink: sink, debugMode: debugMode}
}

// Record writes a diagnostic message. When debug mode is off the message is
// dropped unless force is set.
func (l *Logger) Record(message string, force bool) {
	if l == nil {
		return
	}
	if !l.debugMode && !force {
		return
	}
	log.Println(message)
	l.index("info", message, "")
}

// Error writes an error-level message regardless of debug mode.
func (l *Logger) Error(message string, err error) {
	if l == nil {
		return
	}
	if err != nil {
		message = message + ": " + err.Error()
	}
	log.Println("ERROR " + message)
	l.index("error", message, "")
}

// Payload records a message together with a rendered gateway payload. Used for
// full request/response captures, which bypass the debug gate only on demand.
func (l *Logger) Payload(message, payload string, force bool) {
	if l == nil {
		return
	}
	if !l.debugMode && !force {
		return
	}
	log.Println(message + "\n" + payload)
	l.index("info", message, payload)
}

func (l *Logger) index(level, message, payload string) {
	if l.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entry := opensearch.GatewayLog{Level: level, Message: message, Payload: payload}
	if err := l.sink.IndexGatewayLog(ctx, entry); err != nil {
		log.Printf("failed to index log entry: %v", err)
	}
}
