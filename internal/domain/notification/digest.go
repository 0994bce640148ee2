package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"herald/internal/domain/user"
)

// SendDigests delivers one batched message per (user, channel) covering
// every pending notification whose effective frequency matches
// frequencyKey. Returns the number of digests sent (or that would have
// been sent when dryRun is set).
//
// Unknown and realtime frequency keys are logged and skipped rather
// than treated as errors so a scheduler can iterate over configured
// keys blindly.
func (s *Service) SendDigests(ctx context.Context, frequencyKey string, dryRun bool) (int, error) {
	freq, err := s.registry.Frequency(frequencyKey)
	if err != nil {
		log.Printf("Skipping digest run for unknown frequency %q", frequencyKey)
		return 0, nil
	}
	if freq.Realtime {
		log.Printf("Skipping digest run for realtime frequency %q", freq.Key)
		return 0, nil
	}

	sent := 0
	for _, ch := range s.registry.AllChannels() {
		if !ch.SupportsDigest() {
			continue
		}
		n, err := s.sendChannelDigests(ctx, ch, freq, dryRun)
		if err != nil {
			return sent, err
		}
		sent += n
	}
	return sent, nil
}

func (s *Service) sendChannelDigests(ctx context.Context, ch Channel, freq Frequency, dryRun bool) (int, error) {
	pending, err := s.repo.PendingOnChannel(ctx, ch.Key())
	if err != nil {
		return 0, fmt.Errorf("failed to load pending notifications for channel %s: %w", ch.Key(), err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	// PendingOnChannel returns newest first; grouping preserves that
	// order inside each user's batch.
	byUser := make(map[int64][]*Notification)
	for _, n := range pending {
		byUser[n.RecipientID] = append(byUser[n.RecipientID], n)
	}
	userIDs := make([]int64, 0, len(byUser))
	for id := range byUser {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	sent := 0
	for _, userID := range userIDs {
		overrides, err := s.prefs.AllFrequencyOverrides(ctx, userID)
		if err != nil {
			return sent, fmt.Errorf("failed to load frequency preferences for user %d: %w", userID, err)
		}

		var batch []*Notification
		for _, n := range byUser[userID] {
			t, err := s.registry.Type(n.Type)
			if err != nil {
				log.Printf("Skipping notification %s with unregistered type %q", n.ID, n.Type)
				continue
			}
			if s.resolveFrequency(overrides[n.Type], t).Key != freq.Key {
				continue
			}
			batch = append(batch, n)
		}
		if len(batch) == 0 {
			continue
		}

		recipient, err := s.users.ByID(ctx, userID)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				log.Printf("Skipping digest for unknown user %d", userID)
				continue
			}
			return sent, fmt.Errorf("failed to look up user %d: %w", userID, err)
		}
		if recipient.Email == "" {
			log.Printf("Skipping digest for user %d without an email address", userID)
			continue
		}

		if dryRun {
			log.Printf("Would send %s digest with %d notification(s) to %s", freq.Name, len(batch), recipient.Email)
			sent++
			continue
		}

		if err := ch.SendDigest(ctx, recipient.Email, batch, freq); err != nil {
			// One user's broken digest must not abort the whole run.
			log.Printf("Failed to send %s digest to %s: %v", freq.Name, recipient.Email, err)
			continue
		}

		ids := make([]string, len(batch))
		for i, n := range batch {
			ids[i] = n.ID
		}
		if err := s.repo.MarkBatchSent(ctx, ids, ch.Key(), time.Now().UTC()); err != nil {
			return sent, fmt.Errorf("failed to mark digest batch sent for user %d: %w", userID, err)
		}
		sent++
	}
	return sent, nil
}
