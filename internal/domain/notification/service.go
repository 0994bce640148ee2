package notification

import (
	"context"
	"fmt"
	"log"
	"maps"
	"time"

	"herald/internal/domain/user"
)

// Service is the notification dispatcher. It owns the resolution of
// channels and frequencies, the dedup hook, and the realtime/digest
// state machine.
type Service struct {
	registry *Registry
	repo     Repository
	prefs    PreferenceRepository
	users    user.Directory
}

func NewService(registry *Registry, repo Repository, prefs PreferenceRepository, users user.Directory) *Service {
	return &Service{
		registry: registry,
		repo:     repo,
		prefs:    prefs,
		users:    users,
	}
}

// Send dispatches one notification. It resolves the recipient's enabled
// channels, runs the type's dedup hook when the type implements one,
// persists the notification with one pending channel-state row per
// enabled channel and delivers immediately on realtime channels.
//
// Returns the created notification, or (nil, nil) when no channel is
// enabled or the dedup hook merged or suppressed the notification.
func (s *Service) Send(ctx context.Context, p SendParams) (*Notification, error) {
	t, err := s.registry.Type(p.Type)
	if err != nil {
		return nil, err
	}

	channels, err := s.EnabledChannels(ctx, p.RecipientID, t)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, nil
	}

	recipient, err := s.users.ByID(ctx, p.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up recipient %d: %w", p.RecipientID, err)
	}

	n := &Notification{
		RecipientID:    recipient.ID,
		RecipientEmail: recipient.Email,
		Type:           p.Type,
		ActorID:        p.ActorID,
		Target:         p.Target,
		Subject:        p.Subject,
		Text:           p.Text,
		URL:            p.URL,
		Metadata:       maps.Clone(p.Metadata),
	}
	for _, ch := range channels {
		n.Channels = append(n.Channels, ChannelState{Channel: ch.Key()})
	}

	if deduper, ok := t.(Deduper); ok {
		decision, err := deduper.Dedupe(ctx, s.repo, n)
		if err != nil {
			return nil, fmt.Errorf("dedup hook failed for type %s: %w", t.Key(), err)
		}
		switch decision.Op {
		case OpMerge:
			if err := s.repo.MergeMetadata(ctx, decision.ExistingID, decision.MetadataPatch); err != nil {
				return nil, fmt.Errorf("failed to merge into notification %s: %w", decision.ExistingID, err)
			}
			return nil, nil
		case OpSuppress:
			return nil, nil
		}
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	// Delivery failures are isolated per channel: one broken channel
	// must not lose the notification or block the others.
	for _, ch := range channels {
		if err := s.process(ctx, ch, t, n); err != nil {
			log.Printf("Failed to process notification %s on channel %s: %v", n.ID, ch.Key(), err)
		}
	}

	return n, nil
}

// process runs the realtime/digest state machine for one channel:
// channels without realtime support stay pending for the digest batcher,
// digest-capable channels stay pending when the effective frequency is
// not realtime, and channels that report ShouldSend false are skipped
// silently. Everything else is delivered now and marked sent.
func (s *Service) process(ctx context.Context, ch Channel, t NotificationType, n *Notification) error {
	if !ch.SupportsRealtime() {
		return nil
	}

	if ch.SupportsDigest() {
		freq, err := s.EffectiveFrequency(ctx, n.RecipientID, t)
		if err != nil {
			return err
		}
		if !freq.Realtime {
			return nil
		}
	}

	if !ch.ShouldSend(n) {
		return nil
	}

	if err := ch.SendNow(ctx, n); err != nil {
		return fmt.Errorf("failed to deliver on channel %s: %w", ch.Key(), err)
	}

	now := time.Now().UTC()
	if err := s.repo.MarkSent(ctx, n.ID, ch.Key(), now); err != nil {
		return fmt.Errorf("failed to record delivery on channel %s: %w", ch.Key(), err)
	}
	for i := range n.Channels {
		if n.Channels[i].Channel == ch.Key() {
			n.Channels[i].SentAt = &now
		}
	}
	return nil
}

// Get returns one notification owned by the user.
func (s *Service) Get(ctx context.Context, id string, recipientID int64) (*Notification, error) {
	return s.repo.Get(ctx, id, recipientID)
}

// List returns the user's notifications matching the query, newest first.
func (s *Service) List(ctx context.Context, q ListQuery) ([]*Notification, error) {
	return s.repo.List(ctx, q)
}

// UnreadCount counts the user's unread notifications on a channel.
func (s *Service) UnreadCount(ctx context.Context, recipientID int64, channelKey string) (int, error) {
	return s.repo.UnreadCount(ctx, recipientID, channelKey)
}

// MarkRead marks the given notifications read, or every notification of
// the user when ids is empty.
func (s *Service) MarkRead(ctx context.Context, recipientID int64, ids []string) error {
	return s.repo.MarkRead(ctx, recipientID, ids)
}

// MarkUnread clears the read timestamp on one notification, moving it
// back out of the archive.
func (s *Service) MarkUnread(ctx context.Context, recipientID int64, id string) error {
	return s.repo.MarkUnread(ctx, recipientID, id)
}
