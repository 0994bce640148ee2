package notification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// NotificationType is the per-category policy contract: which channels
// apply by default, which are mandatory or excluded, the default email
// frequency, and content generation for notifications that carry no
// stored subject/text.
type NotificationType interface {
	Key() string
	Name() string
	Description() string

	// DefaultChannels returns the channel keys enabled by default for
	// this type. A nil slice means "use every channel whose
	// EnabledByDefault flag is set"; an empty non-nil slice means no
	// channels by default.
	DefaultChannels() []string

	// RequiredChannels are always enabled and cannot be disabled by the
	// user. ForbiddenChannels are always excluded; forbidden wins when a
	// channel is somehow listed in both.
	RequiredChannels() []string
	ForbiddenChannels() []string

	// DefaultFrequency is the frequency key used when the user has no
	// stored override for this type.
	DefaultFrequency() string

	// Subject and Text generate fallback content for notifications that
	// were dispatched without a stored subject or text.
	Subject(n *Notification) string
	Text(n *Notification) string
}

// ExistingLookup is the narrow read surface a Deduper may use to find a
// notification to merge into.
type ExistingLookup interface {
	// FindUnreadGroup returns the most recent unread notification with
	// the same recipient, type, actor and target, or
	// ErrNotificationNotFound.
	FindUnreadGroup(ctx context.Context, recipientID int64, typeKey string, actorID *int64, target *TargetRef) (*Notification, error)
}

// Deduper is an optional interface a NotificationType can implement to
// collapse repeated notifications into one. The dispatcher calls it
// before persisting and applies the returned Decision.
type Deduper interface {
	Dedupe(ctx context.Context, existing ExistingLookup, n *Notification) (Decision, error)
}

// BaseType is a configuration-only NotificationType. Concrete types
// either use it directly or embed it and override the content hooks.
type BaseType struct {
	TypeKey      string
	TypeName     string
	TypeDesc     string
	Defaults     []string // nil means global channel defaults
	Required     []string
	Forbidden    []string
	FrequencyKey string
}

func (t BaseType) Key() string                  { return t.TypeKey }
func (t BaseType) Name() string                 { return t.TypeName }
func (t BaseType) Description() string          { return t.TypeDesc }
func (t BaseType) DefaultChannels() []string    { return t.Defaults }
func (t BaseType) RequiredChannels() []string   { return t.Required }
func (t BaseType) ForbiddenChannels() []string  { return t.Forbidden }
func (t BaseType) DefaultFrequency() string     { return t.FrequencyKey }
func (t BaseType) Subject(*Notification) string { return "" }
func (t BaseType) Text(*Notification) string    { return "" }

// SystemMessageType is a built-in type for operator announcements: email
// is mandatory and delivery is immediate by default.
type SystemMessageType struct {
	BaseType
}

func NewSystemMessageType() SystemMessageType {
	return SystemMessageType{BaseType{
		TypeKey:      "system_message",
		TypeName:     "System Message",
		TypeDesc:     "Important messages about your account",
		Required:     []string{ChannelEmail},
		FrequencyKey: RealtimeFrequency.Key,
	}}
}

// CommentReceivedType is a built-in type demonstrating grouping: repeat
// comments from the same actor on the same target collapse into one
// unread notification with an incrementing counter.
type CommentReceivedType struct {
	BaseType
}

func NewCommentReceivedType() CommentReceivedType {
	return CommentReceivedType{BaseType{
		TypeKey:      "comment_received",
		TypeName:     "Comments",
		TypeDesc:     "You received a comment",
		FrequencyKey: DailyFrequency.Key,
	}}
}

// GroupCountKey is the metadata key holding the number of collapsed
// notifications in a group.
const GroupCountKey = "count"

func (t CommentReceivedType) Dedupe(ctx context.Context, existing ExistingLookup, n *Notification) (Decision, error) {
	prev, err := existing.FindUnreadGroup(ctx, n.RecipientID, t.Key(), n.ActorID, n.Target)
	if errors.Is(err, ErrNotificationNotFound) {
		return Decision{Op: OpCreate}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("failed to look up comment group: %w", err)
	}

	count := 1
	if v := prev.Metadata[GroupCountKey]; v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			count = parsed
		}
	}

	return Decision{
		Op:            OpMerge,
		ExistingID:    prev.ID,
		MetadataPatch: map[string]string{GroupCountKey: strconv.Itoa(count + 1)},
	}, nil
}

func (t CommentReceivedType) Text(n *Notification) string {
	if v := n.Metadata[GroupCountKey]; v != "" {
		if count, err := strconv.Atoi(v); err == nil && count > 1 {
			return fmt.Sprintf("%d people commented", count)
		}
	}
	return t.TypeDesc
}
