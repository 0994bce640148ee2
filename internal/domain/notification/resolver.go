package notification

import (
	"context"
	"fmt"
	"log"
	"sort"
)

// EnabledChannels computes the effective channel set for a (user, type)
// pair:
//
//  1. candidates = the type's DefaultChannels, or every channel with
//     EnabledByDefault when DefaultChannels is nil
//  2. forbidden channels are removed unconditionally
//  3. required channels are added (unless also forbidden)
//  4. stored user toggles apply to the remaining non-required,
//     non-forbidden channels
//
// The preference store is hit exactly once per call.
func (s *Service) EnabledChannels(ctx context.Context, userID int64, t NotificationType) ([]Channel, error) {
	enabled := make(map[string]bool)
	if t.DefaultChannels() == nil {
		for _, ch := range s.registry.AllChannels() {
			if ch.EnabledByDefault() {
				enabled[ch.Key()] = true
			}
		}
	} else {
		for _, key := range t.DefaultChannels() {
			enabled[key] = true
		}
	}

	forbidden := make(map[string]bool, len(t.ForbiddenChannels()))
	for _, key := range t.ForbiddenChannels() {
		forbidden[key] = true
		delete(enabled, key)
	}

	required := make(map[string]bool, len(t.RequiredChannels()))
	for _, key := range t.RequiredChannels() {
		if forbidden[key] {
			log.Printf("Notification type %s lists channel %s as both required and forbidden; forbidden wins", t.Key(), key)
			continue
		}
		required[key] = true
		enabled[key] = true
	}

	overrides, err := s.prefs.ChannelOverrides(ctx, userID, t.Key())
	if err != nil {
		return nil, fmt.Errorf("failed to load channel preferences: %w", err)
	}
	for key, on := range overrides {
		if required[key] || forbidden[key] {
			continue
		}
		if on {
			enabled[key] = true
		} else {
			delete(enabled, key)
		}
	}

	keys := make([]string, 0, len(enabled))
	for key := range enabled {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	channels := make([]Channel, 0, len(keys))
	for _, key := range keys {
		ch, err := s.registry.Channel(key)
		if err != nil {
			log.Printf("Skipping unregistered channel %s for type %s", key, t.Key())
			continue
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// EffectiveFrequency resolves the delivery frequency for a (user, type)
// pair: the user's stored override when it names a registered
// frequency, else the type default, else the first registered realtime
// frequency, else a literal realtime fallback.
func (s *Service) EffectiveFrequency(ctx context.Context, userID int64, t NotificationType) (Frequency, error) {
	override, err := s.prefs.FrequencyOverride(ctx, userID, t.Key())
	if err != nil {
		return Frequency{}, fmt.Errorf("failed to load frequency preference: %w", err)
	}
	return s.resolveFrequency(override, t), nil
}

// resolveFrequency applies the override → type default → realtime
// fallback chain without touching the preference store, so batch callers
// can reuse a prefetched override set.
func (s *Service) resolveFrequency(overrideKey string, t NotificationType) Frequency {
	if overrideKey != "" {
		if f, err := s.registry.Frequency(overrideKey); err == nil {
			return f
		}
	}
	if f, err := s.registry.Frequency(t.DefaultFrequency()); err == nil {
		return f
	}
	if realtime := s.registry.RealtimeFrequencies(); len(realtime) > 0 {
		return realtime[0]
	}
	return Frequency{Key: FallbackFrequencyKey, Name: "Realtime", Realtime: true}
}

// SetFrequency stores a frequency override for the (user, type) pair.
func (s *Service) SetFrequency(ctx context.Context, userID int64, typeKey, frequencyKey string) error {
	if _, err := s.registry.Type(typeKey); err != nil {
		return err
	}
	if _, err := s.registry.Frequency(frequencyKey); err != nil {
		return err
	}
	return s.prefs.SetFrequencyOverride(ctx, userID, typeKey, frequencyKey)
}

// ResetFrequency removes the (user, type) frequency override so the
// type default applies again.
func (s *Service) ResetFrequency(ctx context.Context, userID int64, typeKey string) error {
	return s.prefs.DeleteFrequencyOverride(ctx, userID, typeKey)
}

// EnableChannel stores an explicit enable toggle for the (user, type,
// channel) triple.
func (s *Service) EnableChannel(ctx context.Context, userID int64, typeKey, channelKey string) error {
	if err := s.validateToggle(typeKey, channelKey, true); err != nil {
		return err
	}
	return s.prefs.SetChannelOverride(ctx, ChannelOverride{
		UserID: userID, Type: typeKey, Channel: channelKey, Enabled: true,
	})
}

// DisableChannel stores an explicit disable toggle. Disabling a channel
// the type marks required is rejected.
func (s *Service) DisableChannel(ctx context.Context, userID int64, typeKey, channelKey string) error {
	if err := s.validateToggle(typeKey, channelKey, false); err != nil {
		return err
	}
	return s.prefs.SetChannelOverride(ctx, ChannelOverride{
		UserID: userID, Type: typeKey, Channel: channelKey, Enabled: false,
	})
}

func (s *Service) validateToggle(typeKey, channelKey string, enabled bool) error {
	t, err := s.registry.Type(typeKey)
	if err != nil {
		return err
	}
	if _, err := s.registry.Channel(channelKey); err != nil {
		return err
	}
	if !enabled {
		for _, key := range t.RequiredChannels() {
			if key == channelKey {
				return fmt.Errorf("%w: cannot disable %s channel for %s", ErrChannelRequired, channelKey, t.Name())
			}
		}
	}
	return nil
}

// ValidateOverride checks a stored channel toggle against the registry.
// Stored rows may reference keys that were unregistered later; this is
// the explicit validation point for such data.
func (s *Service) ValidateOverride(o ChannelOverride) error {
	return s.validateToggle(o.Type, o.Channel, o.Enabled)
}

// ValidateFrequencyOverride checks a stored frequency override against
// the registry.
func (s *Service) ValidateFrequencyOverride(typeKey, frequencyKey string) error {
	if _, err := s.registry.Type(typeKey); err != nil {
		return err
	}
	if _, err := s.registry.Frequency(frequencyKey); err != nil {
		return err
	}
	return nil
}

// ValidateNotification checks that a notification references a
// registered type.
func (s *Service) ValidateNotification(n *Notification) error {
	_, err := s.registry.Type(n.Type)
	return err
}
