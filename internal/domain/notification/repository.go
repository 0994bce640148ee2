package notification

import (
	"context"
	"time"
)

// Repository defines the notification store. Defined in the domain
// layer, implemented in the infrastructure layer.
type Repository interface {
	ExistingLookup

	// Create persists the notification together with one channel-state
	// row per entry in n.Channels, atomically. It fills in the generated
	// ID and creation timestamp.
	Create(ctx context.Context, n *Notification) error

	// Get returns one notification owned by the recipient, including its
	// channel states, or ErrNotificationNotFound.
	Get(ctx context.Context, id string, recipientID int64) (*Notification, error)

	// MergeMetadata atomically folds patch into the stored metadata of
	// an existing notification.
	MergeMetadata(ctx context.Context, id string, patch map[string]string) error

	// List returns notifications matching the query, newest first.
	List(ctx context.Context, q ListQuery) ([]*Notification, error)

	// UnreadCount counts unread notifications for the user that have a
	// delivery state row on the given channel.
	UnreadCount(ctx context.Context, recipientID int64, channelKey string) (int, error)

	// MarkRead sets the read timestamp on the given notifications (all
	// of the user's notifications when ids is empty). Already-read rows
	// keep their original timestamp.
	MarkRead(ctx context.Context, recipientID int64, ids []string) error

	// MarkUnread clears the read timestamp on one notification.
	MarkUnread(ctx context.Context, recipientID int64, id string) error

	// MarkSent records delivery of one notification on one channel.
	// Sent state is terminal; an already-sent row is left untouched.
	MarkSent(ctx context.Context, notificationID, channelKey string, at time.Time) error

	// PendingOnChannel returns every unread notification with a pending
	// (unsent) delivery state row on the given channel, newest first.
	PendingOnChannel(ctx context.Context, channelKey string) ([]*Notification, error)

	// MarkBatchSent marks all given notifications sent on the channel in
	// a single transaction, so one user's digest batch is flipped
	// all-or-nothing.
	MarkBatchSent(ctx context.Context, ids []string, channelKey string, at time.Time) error
}

// PreferenceRepository stores per-user channel toggles and frequency
// overrides.
type PreferenceRepository interface {
	// ChannelOverrides returns the user's stored toggles for one type as
	// a channel-key → enabled map, in a single query.
	ChannelOverrides(ctx context.Context, userID int64, typeKey string) (map[string]bool, error)

	// AllChannelOverrides returns every stored toggle for the user.
	AllChannelOverrides(ctx context.Context, userID int64) ([]ChannelOverride, error)

	// SetChannelOverride upserts one toggle row.
	SetChannelOverride(ctx context.Context, o ChannelOverride) error

	// FrequencyOverride returns the user's stored frequency key for one
	// type, or "" when none is stored.
	FrequencyOverride(ctx context.Context, userID int64, typeKey string) (string, error)

	// AllFrequencyOverrides returns every stored frequency override for
	// the user as a type-key → frequency-key map.
	AllFrequencyOverrides(ctx context.Context, userID int64) (map[string]string, error)

	// SetFrequencyOverride upserts the single (user, type) frequency row.
	SetFrequencyOverride(ctx context.Context, userID int64, typeKey, frequencyKey string) error

	// DeleteFrequencyOverride removes the (user, type) frequency row.
	DeleteFrequencyOverride(ctx context.Context, userID int64, typeKey string) error

	// ReplaceAll deletes every stored preference for the user and
	// inserts the given sets in one transaction (bulk settings save).
	ReplaceAll(ctx context.Context, userID int64, channels []ChannelOverride, frequencies map[string]string) error
}
