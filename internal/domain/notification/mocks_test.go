package notification

import (
	"context"
	"fmt"
	"sort"
	"time"

	"herald/internal/domain/user"
)

// MockRepository is a mock implementation of Repository interface
type MockRepository struct {
	CreateFunc           func(ctx context.Context, n *Notification) error
	GetFunc              func(ctx context.Context, id string, recipientID int64) (*Notification, error)
	MergeMetadataFunc    func(ctx context.Context, id string, patch map[string]string) error
	ListFunc             func(ctx context.Context, q ListQuery) ([]*Notification, error)
	UnreadCountFunc      func(ctx context.Context, recipientID int64, channelKey string) (int, error)
	MarkReadFunc         func(ctx context.Context, recipientID int64, ids []string) error
	MarkUnreadFunc       func(ctx context.Context, recipientID int64, id string) error
	MarkSentFunc         func(ctx context.Context, notificationID, channelKey string, at time.Time) error
	PendingOnChannelFunc func(ctx context.Context, channelKey string) ([]*Notification, error)
	MarkBatchSentFunc    func(ctx context.Context, ids []string, channelKey string, at time.Time) error
	FindUnreadGroupFunc  func(ctx context.Context, recipientID int64, typeKey string, actorID *int64, target *TargetRef) (*Notification, error)
}

func (m *MockRepository) Create(ctx context.Context, n *Notification) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, n)
	}
	n.ID = "n-1"
	n.Added = time.Now()
	return nil
}

func (m *MockRepository) Get(ctx context.Context, id string, recipientID int64) (*Notification, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id, recipientID)
	}
	return nil, ErrNotificationNotFound
}

func (m *MockRepository) MergeMetadata(ctx context.Context, id string, patch map[string]string) error {
	if m.MergeMetadataFunc != nil {
		return m.MergeMetadataFunc(ctx, id, patch)
	}
	return nil
}

func (m *MockRepository) List(ctx context.Context, q ListQuery) ([]*Notification, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, q)
	}
	return nil, nil
}

func (m *MockRepository) UnreadCount(ctx context.Context, recipientID int64, channelKey string) (int, error) {
	if m.UnreadCountFunc != nil {
		return m.UnreadCountFunc(ctx, recipientID, channelKey)
	}
	return 0, nil
}

func (m *MockRepository) MarkRead(ctx context.Context, recipientID int64, ids []string) error {
	if m.MarkReadFunc != nil {
		return m.MarkReadFunc(ctx, recipientID, ids)
	}
	return nil
}

func (m *MockRepository) MarkUnread(ctx context.Context, recipientID int64, id string) error {
	if m.MarkUnreadFunc != nil {
		return m.MarkUnreadFunc(ctx, recipientID, id)
	}
	return nil
}

func (m *MockRepository) MarkSent(ctx context.Context, notificationID, channelKey string, at time.Time) error {
	if m.MarkSentFunc != nil {
		return m.MarkSentFunc(ctx, notificationID, channelKey, at)
	}
	return nil
}

func (m *MockRepository) PendingOnChannel(ctx context.Context, channelKey string) ([]*Notification, error) {
	if m.PendingOnChannelFunc != nil {
		return m.PendingOnChannelFunc(ctx, channelKey)
	}
	return nil, nil
}

func (m *MockRepository) MarkBatchSent(ctx context.Context, ids []string, channelKey string, at time.Time) error {
	if m.MarkBatchSentFunc != nil {
		return m.MarkBatchSentFunc(ctx, ids, channelKey, at)
	}
	return nil
}

func (m *MockRepository) FindUnreadGroup(ctx context.Context, recipientID int64, typeKey string, actorID *int64, target *TargetRef) (*Notification, error) {
	if m.FindUnreadGroupFunc != nil {
		return m.FindUnreadGroupFunc(ctx, recipientID, typeKey, actorID, target)
	}
	return nil, ErrNotificationNotFound
}

// MockPreferenceRepository is a mock implementation of PreferenceRepository
type MockPreferenceRepository struct {
	ChannelOverridesFunc        func(ctx context.Context, userID int64, typeKey string) (map[string]bool, error)
	AllChannelOverridesFunc     func(ctx context.Context, userID int64) ([]ChannelOverride, error)
	SetChannelOverrideFunc      func(ctx context.Context, o ChannelOverride) error
	FrequencyOverrideFunc       func(ctx context.Context, userID int64, typeKey string) (string, error)
	AllFrequencyOverridesFunc   func(ctx context.Context, userID int64) (map[string]string, error)
	SetFrequencyOverrideFunc    func(ctx context.Context, userID int64, typeKey, frequencyKey string) error
	DeleteFrequencyOverrideFunc func(ctx context.Context, userID int64, typeKey string) error
	ReplaceAllFunc              func(ctx context.Context, userID int64, channels []ChannelOverride, frequencies map[string]string) error
}

func (m *MockPreferenceRepository) ChannelOverrides(ctx context.Context, userID int64, typeKey string) (map[string]bool, error) {
	if m.ChannelOverridesFunc != nil {
		return m.ChannelOverridesFunc(ctx, userID, typeKey)
	}
	return map[string]bool{}, nil
}

func (m *MockPreferenceRepository) AllChannelOverrides(ctx context.Context, userID int64) ([]ChannelOverride, error) {
	if m.AllChannelOverridesFunc != nil {
		return m.AllChannelOverridesFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockPreferenceRepository) SetChannelOverride(ctx context.Context, o ChannelOverride) error {
	if m.SetChannelOverrideFunc != nil {
		return m.SetChannelOverrideFunc(ctx, o)
	}
	return nil
}

func (m *MockPreferenceRepository) FrequencyOverride(ctx context.Context, userID int64, typeKey string) (string, error) {
	if m.FrequencyOverrideFunc != nil {
		return m.FrequencyOverrideFunc(ctx, userID, typeKey)
	}
	return "", nil
}

func (m *MockPreferenceRepository) AllFrequencyOverrides(ctx context.Context, userID int64) (map[string]string, error) {
	if m.AllFrequencyOverridesFunc != nil {
		return m.AllFrequencyOverridesFunc(ctx, userID)
	}
	return map[string]string{}, nil
}

func (m *MockPreferenceRepository) SetFrequencyOverride(ctx context.Context, userID int64, typeKey, frequencyKey string) error {
	if m.SetFrequencyOverrideFunc != nil {
		return m.SetFrequencyOverrideFunc(ctx, userID, typeKey, frequencyKey)
	}
	return nil
}

func (m *MockPreferenceRepository) DeleteFrequencyOverride(ctx context.Context, userID int64, typeKey string) error {
	if m.DeleteFrequencyOverrideFunc != nil {
		return m.DeleteFrequencyOverrideFunc(ctx, userID, typeKey)
	}
	return nil
}

func (m *MockPreferenceRepository) ReplaceAll(ctx context.Context, userID int64, channels []ChannelOverride, frequencies map[string]string) error {
	if m.ReplaceAllFunc != nil {
		return m.ReplaceAllFunc(ctx, userID, channels, frequencies)
	}
	return nil
}

// MockDirectory is a mock implementation of user.Directory
type MockDirectory struct {
	ByIDFunc func(ctx context.Context, id int64) (*user.User, error)
}

func (m *MockDirectory) ByID(ctx context.Context, id int64) (*user.User, error) {
	if m.ByIDFunc != nil {
		return m.ByIDFunc(ctx, id)
	}
	return &user.User{ID: id, Email: fmt.Sprintf("user%d@example.com", id)}, nil
}

// sentMail records one outgoing message captured by MockMailer.
type sentMail struct {
	To      string
	Subject string
	Body    string
}

// MockMailer records sent messages and optionally delegates to SendFunc.
type MockMailer struct {
	SendFunc func(ctx context.Context, to, subject, body string) error
	Sent     []sentMail
}

func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, to, subject, body); err != nil {
			return err
		}
	}
	m.Sent = append(m.Sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

// memoryRepository is a stateful in-memory Repository for tests that
// exercise full flows (dedup round trips, digest batching).
type memoryRepository struct {
	nextID        int
	order         []string
	notifications map[string]*Notification
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{notifications: make(map[string]*Notification)}
}

func (r *memoryRepository) Create(_ context.Context, n *Notification) error {
	r.nextID++
	n.ID = fmt.Sprintf("n-%d", r.nextID)
	n.Added = time.Now().Add(time.Duration(r.nextID) * time.Millisecond)
	stored := *n
	stored.Channels = append([]ChannelState(nil), n.Channels...)
	r.notifications[n.ID] = &stored
	r.order = append(r.order, n.ID)
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string, recipientID int64) (*Notification, error) {
	n, ok := r.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return nil, ErrNotificationNotFound
	}
	return n, nil
}

func (r *memoryRepository) MergeMetadata(_ context.Context, id string, patch map[string]string) error {
	n, ok := r.notifications[id]
	if !ok {
		return ErrNotificationNotFound
	}
	if n.Metadata == nil {
		n.Metadata = make(map[string]string)
	}
	for k, v := range patch {
		n.Metadata[k] = v
	}
	return nil
}

// newestFirst returns all stored notifications most recent first.
func (r *memoryRepository) newestFirst() []*Notification {
	out := make([]*Notification, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.notifications[r.order[i]])
	}
	return out
}

func (r *memoryRepository) List(_ context.Context, q ListQuery) ([]*Notification, error) {
	var out []*Notification
	for _, n := range r.newestFirst() {
		if n.RecipientID != q.RecipientID {
			continue
		}
		if q.Channel != "" && !n.HasChannel(q.Channel) {
			continue
		}
		if q.UnreadOnly && n.IsRead() {
			continue
		}
		if q.ReadOnly && !n.IsRead() {
			continue
		}
		out = append(out, n)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepository) UnreadCount(_ context.Context, recipientID int64, channelKey string) (int, error) {
	count := 0
	for _, n := range r.notifications {
		if n.RecipientID == recipientID && !n.IsRead() && n.HasChannel(channelKey) {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepository) MarkRead(_ context.Context, recipientID int64, ids []string) error {
	now := time.Now()
	mark := func(n *Notification) {
		if n.RecipientID == recipientID && n.Read == nil {
			t := now
			n.Read = &t
		}
	}
	if len(ids) == 0 {
		for _, n := range r.notifications {
			mark(n)
		}
		return nil
	}
	for _, id := range ids {
		if n, ok := r.notifications[id]; ok {
			mark(n)
		}
	}
	return nil
}

func (r *memoryRepository) MarkUnread(_ context.Context, recipientID int64, id string) error {
	n, ok := r.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return ErrNotificationNotFound
	}
	n.Read = nil
	return nil
}

func (r *memoryRepository) MarkSent(_ context.Context, notificationID, channelKey string, at time.Time) error {
	n, ok := r.notifications[notificationID]
	if !ok {
		return ErrNotificationNotFound
	}
	for i := range n.Channels {
		if n.Channels[i].Channel == channelKey && n.Channels[i].SentAt == nil {
			t := at
			n.Channels[i].SentAt = &t
		}
	}
	return nil
}

func (r *memoryRepository) PendingOnChannel(_ context.Context, channelKey string) ([]*Notification, error) {
	var out []*Notification
	for _, n := range r.newestFirst() {
		if !n.IsRead() && n.HasChannel(channelKey) && !n.IsSentOn(channelKey) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memoryRepository) MarkBatchSent(ctx context.Context, ids []string, channelKey string, at time.Time) error {
	for _, id := range ids {
		if err := r.MarkSent(ctx, id, channelKey, at); err != nil {
			return err
		}
	}
	return nil
}

func (r *memoryRepository) FindUnreadGroup(_ context.Context, recipientID int64, typeKey string, actorID *int64, target *TargetRef) (*Notification, error) {
	for _, n := range r.newestFirst() {
		if n.RecipientID != recipientID || n.Type != typeKey || n.IsRead() {
			continue
		}
		if !sameActor(n.ActorID, actorID) || !sameTarget(n.Target, target) {
			continue
		}
		return n, nil
	}
	return nil, ErrNotificationNotFound
}

func sameActor(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameTarget(a, b *TargetRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// memoryPreferences is a stateful in-memory PreferenceRepository.
type memoryPreferences struct {
	channels    map[string]bool   // "user|type|channel" -> enabled
	frequencies map[string]string // "user|type" -> frequency key
	// ChannelQueries counts ChannelOverrides calls so tests can assert
	// the resolver hits the store exactly once.
	ChannelQueries int
}

func newMemoryPreferences() *memoryPreferences {
	return &memoryPreferences{
		channels:    make(map[string]bool),
		frequencies: make(map[string]string),
	}
}

func channelPrefKey(userID int64, typeKey, channelKey string) string {
	return fmt.Sprintf("%d|%s|%s", userID, typeKey, channelKey)
}

func frequencyPrefKey(userID int64, typeKey string) string {
	return fmt.Sprintf("%d|%s", userID, typeKey)
}

func (p *memoryPreferences) ChannelOverrides(_ context.Context, userID int64, typeKey string) (map[string]bool, error) {
	p.ChannelQueries++
	out := make(map[string]bool)
	prefix := fmt.Sprintf("%d|%s|", userID, typeKey)
	for key, enabled := range p.channels {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out[key[len(prefix):]] = enabled
		}
	}
	return out, nil
}

func (p *memoryPreferences) AllChannelOverrides(_ context.Context, userID int64) ([]ChannelOverride, error) {
	var out []ChannelOverride
	for key, enabled := range p.channels {
		parts := splitPrefKey(key)
		if len(parts) != 3 || parts[0] != fmt.Sprintf("%d", userID) {
			continue
		}
		out = append(out, ChannelOverride{UserID: userID, Type: parts[1], Channel: parts[2], Enabled: enabled})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Channel < out[j].Channel
	})
	return out, nil
}

func splitPrefKey(key string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			parts = append(parts, key[start:i])
			start = i + 1
		}
	}
	return append(parts, key[start:])
}

func (p *memoryPreferences) SetChannelOverride(_ context.Context, o ChannelOverride) error {
	p.channels[channelPrefKey(o.UserID, o.Type, o.Channel)] = o.Enabled
	return nil
}

func (p *memoryPreferences) FrequencyOverride(_ context.Context, userID int64, typeKey string) (string, error) {
	return p.frequencies[frequencyPrefKey(userID, typeKey)], nil
}

func (p *memoryPreferences) AllFrequencyOverrides(_ context.Context, userID int64) (map[string]string, error) {
	out := make(map[string]string)
	prefix := fmt.Sprintf("%d|", userID)
	for key, freq := range p.frequencies {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out[key[len(prefix):]] = freq
		}
	}
	return out, nil
}

func (p *memoryPreferences) SetFrequencyOverride(_ context.Context, userID int64, typeKey, frequencyKey string) error {
	p.frequencies[frequencyPrefKey(userID, typeKey)] = frequencyKey
	return nil
}

func (p *memoryPreferences) DeleteFrequencyOverride(_ context.Context, userID int64, typeKey string) error {
	delete(p.frequencies, frequencyPrefKey(userID, typeKey))
	return nil
}

func (p *memoryPreferences) ReplaceAll(ctx context.Context, userID int64, channels []ChannelOverride, frequencies map[string]string) error {
	for key := range p.channels {
		if splitPrefKey(key)[0] == fmt.Sprintf("%d", userID) {
			delete(p.channels, key)
		}
	}
	for key := range p.frequencies {
		if splitPrefKey(key)[0] == fmt.Sprintf("%d", userID) {
			delete(p.frequencies, key)
		}
	}
	for _, o := range channels {
		p.channels[channelPrefKey(userID, o.Type, o.Channel)] = o.Enabled
	}
	for typeKey, freq := range frequencies {
		p.frequencies[frequencyPrefKey(userID, typeKey)] = freq
	}
	return nil
}

// testRegistry builds a registry with the built-in frequencies and both
// built-in channels wired to the given mailer.
func testRegistry(mailer Mailer) *Registry {
	r := NewRegistry()
	r.RegisterFrequency(RealtimeFrequency)
	r.RegisterFrequency(DailyFrequency)
	r.RegisterFrequency(WeeklyFrequency)
	r.RegisterChannel(NewWebsiteChannel())
	r.RegisterChannel(NewEmailChannel(r, mailer, "https://example.com"))
	return r
}

// testService wires a Service over in-memory stores.
func testService(registry *Registry) (*Service, *memoryRepository, *memoryPreferences) {
	repo := newMemoryRepository()
	prefs := newMemoryPreferences()
	svc := NewService(registry, repo, prefs, &MockDirectory{})
	return svc, repo, prefs
}
