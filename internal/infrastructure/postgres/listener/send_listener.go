package listener

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/lib/pq"

	"herald/internal/domain/notification"
)

const (
	channelName       = "notification_send"
	reconnectInterval = 5 * time.Second
)

// SendRequest represents the payload of a PostgreSQL NOTIFY on the
// notification_send channel. Other services sharing the database can
// dispatch notifications by emitting this payload instead of calling
// the HTTP API.
type SendRequest struct {
	RecipientID int64             `json:"recipient_id"`
	Type        string            `json:"notification_type"`
	ActorID     *int64            `json:"actor_id,omitempty"`
	TargetKind  string            `json:"target_kind,omitempty"`
	TargetID    string            `json:"target_id,omitempty"`
	Subject     string            `json:"subject,omitempty"`
	Text        string            `json:"text,omitempty"`
	URL         string            `json:"url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Dispatcher is the slice of the notification service the listener
// needs. Satisfied by *notification.Service.
type Dispatcher interface {
	Send(ctx context.Context, p notification.SendParams) (*notification.Notification, error)
}

// SendListener listens for PostgreSQL notifications requesting a
// notification dispatch and forwards them to the notification service.
type SendListener struct {
	connStr    string
	dispatcher Dispatcher
	shutdownCh chan struct{}
	done       chan struct{}
}

// NewSendListener creates a listener for notification send requests.
func NewSendListener(connStr string, dispatcher Dispatcher) *SendListener {
	return &SendListener{
		connStr:    connStr,
		dispatcher: dispatcher,
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins listening for notifications in a background goroutine
func (l *SendListener) Start(ctx context.Context) {
	go l.listen(ctx)
	log.Println("Notification send listener started")
}

// Stop gracefully shuts down the listener
func (l *SendListener) Stop() {
	close(l.shutdownCh)
	<-l.done
	log.Println("Notification send listener stopped")
}

func (l *SendListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		// Wait before reconnecting
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			log.Println("Reconnecting to PostgreSQL for notifications...")
		}
	}
}

func (l *SendListener) connectAndListen(ctx context.Context) {
	// Create a dedicated listener connection
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("Listener error: %v", err)
		}
		switch ev {
		case pq.ListenerEventConnected:
			log.Println("Connected to PostgreSQL notification channel")
		case pq.ListenerEventDisconnected:
			log.Println("Disconnected from PostgreSQL notification channel")
		case pq.ListenerEventReconnected:
			log.Println("Reconnected to PostgreSQL notification channel")
		case pq.ListenerEventConnectionAttemptFailed:
			log.Printf("Connection attempt failed: %v", err)
		}
	})

	defer listener.Close()

	err := listener.Listen(channelName)
	if err != nil {
		log.Printf("Failed to listen on channel %s: %v", channelName, err)
		return
	}

	log.Printf("Listening on channel: %s", channelName)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			if n == nil {
				// Connection lost, break to reconnect
				return
			}
			l.handleNotification(n)
		case <-time.After(90 * time.Second):
			// Ping to keep connection alive
			go func() {
				if err := listener.Ping(); err != nil {
					log.Printf("Listener ping failed: %v", err)
				}
			}()
		}
	}
}

func (l *SendListener) handleNotification(n *pq.Notification) {
	log.Printf("Received send request on channel %s", n.Channel)

	var payload SendRequest
	if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil {
		log.Printf("Failed to parse send request payload: %v", err)
		return
	}

	if payload.RecipientID <= 0 || payload.Type == "" {
		log.Printf("Ignoring send request with missing recipient or type")
		return
	}

	// Use background context since parent ctx may be cancelled during shutdown
	go l.dispatch(context.Background(), payload)
}

func (l *SendListener) dispatch(ctx context.Context, payload SendRequest) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	params := notification.SendParams{
		RecipientID: payload.RecipientID,
		Type:        payload.Type,
		ActorID:     payload.ActorID,
		Subject:     payload.Subject,
		Text:        payload.Text,
		URL:         payload.URL,
		Metadata:    payload.Metadata,
	}
	if payload.TargetKind != "" || payload.TargetID != "" {
		params.Target = &notification.TargetRef{Kind: payload.TargetKind, ID: payload.TargetID}
	}

	n, err := l.dispatcher.Send(ctx, params)
	if err != nil {
		log.Printf("Failed to dispatch notification for user %d: %v", payload.RecipientID, err)
		return
	}
	if n == nil {
		log.Printf("Send request for user %d was suppressed or merged", payload.RecipientID)
		return
	}
	log.Printf("Dispatched notification %s for user %d", n.ID, payload.RecipientID)
}
