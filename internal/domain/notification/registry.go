package notification

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry is the catalog of notification types, channels and
// frequencies, keyed by string. It is safe for concurrent use.
//
// Applications normally register everything once at startup into a
// single Registry instance and hand it to the Service. Tests create
// their own instances for isolation.
type Registry struct {
	mu          sync.RWMutex
	types       map[string]NotificationType
	channels    map[string]Channel
	frequencies map[string]Frequency
}

func NewRegistry() *Registry {
	return &Registry{
		types:       make(map[string]NotificationType),
		channels:    make(map[string]Channel),
		frequencies: make(map[string]Frequency),
	}
}

// DefaultRegistry is the process-wide default. It is a plain Registry;
// prefer passing an explicit instance where practical.
var DefaultRegistry = NewRegistry()

// RegisterType adds or replaces a notification type. Replacing an
// existing key is always allowed.
func (r *Registry) RegisterType(t NotificationType) error {
	if t == nil || t.Key() == "" {
		return fmt.Errorf("%w: must register a NotificationType with a non-empty key", ErrInvalidRegistration)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.Key()] = t
	return nil
}

// RegisterChannel adds or replaces a channel.
func (r *Registry) RegisterChannel(c Channel) error {
	if c == nil || c.Key() == "" {
		return fmt.Errorf("%w: must register a Channel with a non-empty key", ErrInvalidRegistration)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[c.Key()] = c
	return nil
}

// RegisterFrequency adds or replaces a frequency.
func (r *Registry) RegisterFrequency(f Frequency) error {
	if f.Key == "" {
		return fmt.Errorf("%w: must register a Frequency with a non-empty key", ErrInvalidRegistration)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frequencies[f.Key] = f
	return nil
}

// Type returns the registered type for key. The error lists the
// currently known keys to aid debugging misconfigured dispatch calls.
func (r *Registry) Type(key string) (NotificationType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.types[key]; ok {
		return t, nil
	}
	if len(r.types) == 0 {
		return nil, fmt.Errorf("%w: %q (no notification types are registered)", ErrTypeNotRegistered, key)
	}
	keys := make([]string, 0, len(r.types))
	for k := range r.types {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return nil, fmt.Errorf("%w: %q (registered types: %s)", ErrTypeNotRegistered, key, strings.Join(keys, ", "))
}

// Channel returns the registered channel for key.
func (r *Registry) Channel(key string) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.channels[key]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrChannelNotRegistered, key)
}

// Frequency returns the registered frequency for key.
func (r *Registry) Frequency(key string) (Frequency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.frequencies[key]; ok {
		return f, nil
	}
	return Frequency{}, fmt.Errorf("%w: %q", ErrFrequencyNotRegistered, key)
}

// AllTypes returns every registered type sorted by key.
func (r *Registry) AllTypes() []NotificationType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NotificationType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// AllChannels returns every registered channel sorted by key.
func (r *Registry) AllChannels() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Channel, 0, len(r.channels))
	for _, c := range r.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// AllFrequencies returns every registered frequency sorted by key.
func (r *Registry) AllFrequencies() []Frequency {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Frequency, 0, len(r.frequencies))
	for _, f := range r.frequencies {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// RealtimeFrequencies returns the registered frequencies eligible for
// immediate delivery, sorted by key.
func (r *Registry) RealtimeFrequencies() []Frequency {
	var out []Frequency
	for _, f := range r.AllFrequencies() {
		if f.Realtime {
			out = append(out, f)
		}
	}
	return out
}

// UnregisterType removes the type with the given key and reports
// whether anything was removed.
func (r *Registry) UnregisterType(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.types[key]
	delete(r.types, key)
	return ok
}

// UnregisterChannel removes the channel with the given key.
func (r *Registry) UnregisterChannel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.channels[key]
	delete(r.channels, key)
	return ok
}

// UnregisterFrequency removes the frequency with the given key.
func (r *Registry) UnregisterFrequency(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.frequencies[key]
	delete(r.frequencies, key)
	return ok
}

// ClearTypes removes all registered types. Intended for test teardown.
func (r *Registry) ClearTypes() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = make(map[string]NotificationType)
}

// ClearChannels removes all registered channels.
func (r *Registry) ClearChannels() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = make(map[string]Channel)
}

// ClearFrequencies removes all registered frequencies.
func (r *Registry) ClearFrequencies() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frequencies = make(map[string]Frequency)
}
