package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/curaious/warden/internal/config"
)

const channelName = "approval_decisions"

// DecisionEvent is an approval decision broadcast to all replicas. The
// replica holding the blocked conversation is usually not the one that served
// the approve/deny request, so decisions fan out over LISTEN/NOTIFY.
type DecisionEvent struct {
	RequestID string
	Status    string // APPROVED or DENIED
}

// DecisionHandler is a callback function for approval decisions
type DecisionHandler func(event DecisionEvent)

// PubSub handles PostgreSQL LISTEN/NOTIFY for approval decisions
type PubSub struct {
	connStr  string
	db       *sqlx.DB
	listener *pq.Listener
	handlers []DecisionHandler
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewPubSub creates a new PubSub instance
func NewPubSub(conf *config.Config, db *sqlx.DB) *PubSub {
	connStr := fmt.Sprintf("postgresql://%v:%v@%v:%v/%v",
		conf.DB_USERNAME, conf.DB_PASSWORD, conf.DB_HOST, conf.DB_PORT, conf.DB_NAME)
	if conf.DISABLE_TLS == "true" {
		connStr = connStr + "?sslmode=disable"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &PubSub{
		connStr:  connStr,
		db:       db,
		handlers: make([]DecisionHandler, 0),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Subscribe adds a handler for approval decision events
func (ps *PubSub) Subscribe(handler DecisionHandler) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.handlers = append(ps.handlers, handler)
}

// Publish broadcasts a decision to every listening replica, including this
// one. The local replica already resolved the request directly, so the echo
// is a no-op there.
func (ps *PubSub) Publish(ctx context.Context, event DecisionEvent) error {
	payload := fmt.Sprintf("%s:%s", event.RequestID, event.Status)
	if _, err := ps.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channelName, payload); err != nil {
		return fmt.Errorf("failed to publish approval decision: %w", err)
	}
	return nil
}

// Start begins listening for notifications
func (ps *PubSub) Start() error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Error("PubSub listener error", slog.Any("error", err))
		}
		if ev == pq.ListenerEventConnectionAttemptFailed {
			slog.Warn("PubSub connection attempt failed, will retry")
		}
		if ev == pq.ListenerEventDisconnected {
			slog.Warn("PubSub disconnected, will attempt reconnect")
		}
		if ev == pq.ListenerEventReconnected {
			// Decisions missed during the outage are not replayed. A request
			// that stayed PENDING past its window is denied by the waiter's
			// own timeout, so nothing is left hanging.
			slog.Info("PubSub reconnected")
		}
	}

	ps.listener = pq.NewListener(ps.connStr, 10*time.Second, time.Minute, reportProblem)

	if err := ps.listener.Listen(channelName); err != nil {
		return fmt.Errorf("failed to listen on %s channel: %w", channelName, err)
	}

	slog.Info("PubSub started listening for approval decisions")

	// Start the notification processing goroutine
	go ps.processNotifications()

	return nil
}

// Stop closes the listener
func (ps *PubSub) Stop() {
	ps.cancel()
	if ps.listener != nil {
		ps.listener.Close()
	}
	slog.Info("PubSub stopped")
}

func (ps *PubSub) processNotifications() {
	for {
		select {
		case <-ps.ctx.Done():
			return
		case notification := <-ps.listener.Notify:
			if notification == nil {
				// Connection lost, will be handled by reportProblem callback
				continue
			}

			// Parse the payload: "request_id:status"
			parts := strings.SplitN(notification.Extra, ":", 2)
			if len(parts) != 2 {
				slog.Warn("Invalid notification payload", slog.String("payload", notification.Extra))
				continue
			}

			event := DecisionEvent{
				RequestID: parts[0],
				Status:    parts[1],
			}

			slog.Debug("Received approval decision notification",
				slog.String("request_id", event.RequestID),
				slog.String("status", event.Status))

			ps.notifyHandlers(event)
		}
	}
}

func (ps *PubSub) notifyHandlers(event DecisionEvent) {
	ps.mu.RLock()
	handlers := make([]DecisionHandler, len(ps.handlers))
	copy(handlers, ps.handlers)
	ps.mu.RUnlock()

	for _, handler := range handlers {
		// Run handlers in goroutines to avoid blocking the notification loop
		go handler(event)
	}
}
