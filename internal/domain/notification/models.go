package notification

import (
	"errors"
	"strings"
	"time"
)

// Domain errors
var (
	ErrTypeNotRegistered      = errors.New("notification type not registered")
	ErrChannelNotRegistered   = errors.New("channel not registered")
	ErrFrequencyNotRegistered = errors.New("frequency not registered")
	ErrNotificationNotFound   = errors.New("notification not found")
	ErrChannelRequired        = errors.New("channel is required and cannot be disabled")
	ErrInvalidRegistration    = errors.New("invalid registration")
)

// TargetRef is a polymorphic reference to the entity a notification is
// about (a comment, an order, another user, ...). Kind identifies the
// entity type, ID the entity within that type.
type TargetRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// ChannelState tracks per-channel delivery for one notification.
// A row exists for exactly the channels that were enabled when the
// notification was created; SentAt nil means delivery is still pending.
type ChannelState struct {
	Channel string     `json:"channel"`
	SentAt  *time.Time `json:"sent_at"`
}

// Notification is a single notification record for one recipient.
type Notification struct {
	ID             string            `json:"id"`
	RecipientID    int64             `json:"-"`
	RecipientEmail string            `json:"-"`
	Type           string            `json:"notification_type"`
	ActorID        *int64            `json:"actor_id,omitempty"`
	Target         *TargetRef        `json:"target,omitempty"`
	Subject        string            `json:"subject"`
	Text           string            `json:"text"`
	URL            string            `json:"url"`
	Metadata       map[string]string `json:"metadata"`
	Added          time.Time         `json:"added"`
	Read           *time.Time        `json:"read"`
	Channels       []ChannelState    `json:"channels"`
}

// IsRead reports whether the notification has been read.
func (n *Notification) IsRead() bool {
	return n.Read != nil
}

// IsSentOn reports whether the notification has been delivered on the
// given channel. Channels that were not enabled at creation time always
// report false.
func (n *Notification) IsSentOn(channelKey string) bool {
	for _, cs := range n.Channels {
		if cs.Channel == channelKey {
			return cs.SentAt != nil
		}
	}
	return false
}

// HasChannel reports whether the given channel was enabled for this
// notification when it was created.
func (n *Notification) HasChannel(channelKey string) bool {
	for _, cs := range n.Channels {
		if cs.Channel == channelKey {
			return true
		}
	}
	return false
}

// AbsoluteURL resolves the notification URL against the given base URL.
// An empty URL stays empty and an already-absolute URL is returned as-is.
// A base without a scheme defaults to https.
func (n *Notification) AbsoluteURL(base string) string {
	if n.URL == "" {
		return ""
	}
	if strings.HasPrefix(n.URL, "http://") || strings.HasPrefix(n.URL, "https://") {
		return n.URL
	}
	if base == "" {
		return n.URL
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return strings.TrimSuffix(base, "/") + n.URL
}

// SendParams contains parameters for dispatching a notification.
type SendParams struct {
	RecipientID int64
	Type        string
	ActorID     *int64
	Target      *TargetRef
	Subject     string
	Text        string
	URL         string
	Metadata    map[string]string
}

// DecisionOp is the action a type's dedup hook tells the dispatcher to take.
type DecisionOp int

const (
	// OpCreate persists the new notification and processes its channels.
	OpCreate DecisionOp = iota
	// OpMerge folds the new notification into an existing one by patching
	// its metadata; no new row is created and no channel is processed.
	OpMerge
	// OpSuppress drops the notification entirely.
	OpSuppress
)

// Decision is the explicit result of a Deduper hook.
type Decision struct {
	Op            DecisionOp
	ExistingID    string
	MetadataPatch map[string]string
}

// ChannelOverride is a stored per-user channel toggle for one
// notification type. Absence of a row means the type/channel defaults
// apply.
type ChannelOverride struct {
	UserID  int64
	Type    string
	Channel string
	Enabled bool
}

// ListQuery filters notification listings.
type ListQuery struct {
	RecipientID int64
	// Channel restricts results to notifications that have a delivery
	// state row for this channel key. Empty means any channel.
	Channel    string
	UnreadOnly bool
	// ReadOnly restricts to already-read notifications (archive view).
	ReadOnly bool
	// Limit caps the number of results; zero means no limit.
	Limit int
}
