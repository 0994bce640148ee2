package notification

import (
	"context"
	"fmt"
)

// ChannelSetting is the resolved state of one channel for one type in
// the settings view. Required and Forbidden tell the UI to render the
// toggle locked.
type ChannelSetting struct {
	Channel   Channel
	Enabled   bool
	Required  bool
	Forbidden bool
}

// TypePreferences is one row of the settings page: a notification type
// with the per-channel state and the effective frequency.
type TypePreferences struct {
	Type      NotificationType
	Channels  []ChannelSetting
	Frequency Frequency
}

// Preferences returns the full settings view for a user: every
// registered type with its resolved channel states and effective
// frequency. The preference store is read twice (channel toggles and
// frequency overrides), regardless of how many types are registered.
func (s *Service) Preferences(ctx context.Context, userID int64) ([]TypePreferences, error) {
	channelOverrides, err := s.prefs.AllChannelOverrides(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load channel preferences: %w", err)
	}
	frequencyOverrides, err := s.prefs.AllFrequencyOverrides(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load frequency preferences: %w", err)
	}

	toggles := make(map[string]map[string]bool)
	for _, o := range channelOverrides {
		if toggles[o.Type] == nil {
			toggles[o.Type] = make(map[string]bool)
		}
		toggles[o.Type][o.Channel] = o.Enabled
	}

	var out []TypePreferences
	for _, t := range s.registry.AllTypes() {
		enabled := resolveChannelKeys(s.registry, t, toggles[t.Key()])

		required := make(map[string]bool)
		for _, key := range t.RequiredChannels() {
			required[key] = true
		}
		forbidden := make(map[string]bool)
		for _, key := range t.ForbiddenChannels() {
			forbidden[key] = true
		}

		var settings []ChannelSetting
		for _, ch := range s.registry.AllChannels() {
			settings = append(settings, ChannelSetting{
				Channel:   ch,
				Enabled:   enabled[ch.Key()],
				Required:  required[ch.Key()] && !forbidden[ch.Key()],
				Forbidden: forbidden[ch.Key()],
			})
		}

		out = append(out, TypePreferences{
			Type:      t,
			Channels:  settings,
			Frequency: s.resolveFrequency(frequencyOverrides[t.Key()], t),
		})
	}
	return out, nil
}

// resolveChannelKeys applies the default/forbidden/required/override
// chain and returns the enabled key set. Shared by the settings view,
// which resolves many types from one prefetched override set.
func resolveChannelKeys(registry *Registry, t NotificationType, overrides map[string]bool) map[string]bool {
	enabled := make(map[string]bool)
	if t.DefaultChannels() == nil {
		for _, ch := range registry.AllChannels() {
			if ch.EnabledByDefault() {
				enabled[ch.Key()] = true
			}
		}
	} else {
		for _, key := range t.DefaultChannels() {
			enabled[key] = true
		}
	}

	forbidden := make(map[string]bool)
	for _, key := range t.ForbiddenChannels() {
		forbidden[key] = true
		delete(enabled, key)
	}
	required := make(map[string]bool)
	for _, key := range t.RequiredChannels() {
		if forbidden[key] {
			continue
		}
		required[key] = true
		enabled[key] = true
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
	return enabled
}

// SavePreferences replaces the user's stored preferences from a bulk
// settings form. Form keys follow the settings page convention:
//
//	{typeKey}_{channelKey}  present means the channel is checked
//	{typeKey}_frequency     the selected frequency key
//
// Unchecked channels have no form key, so every (type, channel) pair is
// written explicitly: present means enabled, absent means disabled.
// Required and forbidden channels are skipped since the user cannot
// change them. A frequency is stored only when it differs from the type
// default and names a registered frequency.
func (s *Service) SavePreferences(ctx context.Context, userID int64, form map[string]string) error {
	var channels []ChannelOverride
	frequencies := make(map[string]string)

	for _, t := range s.registry.AllTypes() {
		required := make(map[string]bool)
		for _, key := range t.RequiredChannels() {
			required[key] = true
		}
		forbidden := make(map[string]bool)
		for _, key := range t.ForbiddenChannels() {
			forbidden[key] = true
		}

		for _, ch := range s.registry.AllChannels() {
			if required[ch.Key()] || forbidden[ch.Key()] {
				continue
			}
			_, checked := form[t.Key()+"_"+ch.Key()]
			channels = append(channels, ChannelOverride{
				UserID:  userID,
				Type:    t.Key(),
				Channel: ch.Key(),
				Enabled: checked,
			})
		}

		if key, ok := form[t.Key()+"_frequency"]; ok && key != t.DefaultFrequency() {
			if _, err := s.registry.Frequency(key); err == nil {
				frequencies[t.Key()] = key
			}
		}
	}

	if err := s.prefs.ReplaceAll(ctx, userID, channels, frequencies); err != nil {
		return fmt.Errorf("failed to save notification preferences: %w", err)
	}
	return nil
}
