package notification

import (
	"context"
	"fmt"
	"strings"
)

// Built-in channel keys.
const (
	ChannelWebsite = "website"
	ChannelEmail   = "email"
)

// Mailer sends a plain-text message to an address. Implemented by the
// SMTP client in the infrastructure layer; tests use an in-memory outbox.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Channel is a delivery mechanism for notifications. The realtime/digest
// state machine lives in the Service; channels declare their
// capabilities and perform the actual sends.
type Channel interface {
	Key() string
	Name() string

	// EnabledByDefault is consulted only for types whose DefaultChannels
	// is nil (global default policy).
	EnabledByDefault() bool

	// SupportsRealtime marks channels that may deliver immediately.
	// SupportsDigest marks channels the digest batcher considers.
	SupportsRealtime() bool
	SupportsDigest() bool

	// ShouldSend reports whether delivery to this recipient is possible
	// at all (e.g. the email channel needs an address). A false result
	// suppresses delivery without error.
	ShouldSend(n *Notification) bool

	// SendNow delivers a single notification immediately.
	SendNow(ctx context.Context, n *Notification) error

	// SendDigest delivers one batched message covering all given
	// notifications, ordered most-recent-first.
	SendDigest(ctx context.Context, to string, notifications []*Notification, freq Frequency) error
}

// WebsiteChannel is the in-app feed. The notification row itself is the
// delivery, so SendNow has no external side effect; marking the channel
// state sent is handled by the dispatcher.
type WebsiteChannel struct{}

func NewWebsiteChannel() WebsiteChannel { return WebsiteChannel{} }

func (WebsiteChannel) Key() string            { return ChannelWebsite }
func (WebsiteChannel) Name() string           { return "Website" }
func (WebsiteChannel) EnabledByDefault() bool { return true }
func (WebsiteChannel) SupportsRealtime() bool { return true }
func (WebsiteChannel) SupportsDigest() bool   { return false }

func (WebsiteChannel) ShouldSend(*Notification) bool { return true }

func (WebsiteChannel) SendNow(context.Context, *Notification) error { return nil }

func (WebsiteChannel) SendDigest(context.Context, string, []*Notification, Frequency) error {
	return nil
}

// EmailChannel delivers notifications by email, either immediately or
// batched into digests depending on the recipient's effective frequency.
type EmailChannel struct {
	registry *Registry
	mailer   Mailer
	baseURL  string
}

func NewEmailChannel(registry *Registry, mailer Mailer, baseURL string) *EmailChannel {
	return &EmailChannel{registry: registry, mailer: mailer, baseURL: baseURL}
}

func (c *EmailChannel) Key() string            { return ChannelEmail }
func (c *EmailChannel) Name() string           { return "Email" }
func (c *EmailChannel) EnabledByDefault() bool { return true }
func (c *EmailChannel) SupportsRealtime() bool { return true }
func (c *EmailChannel) SupportsDigest() bool   { return true }

func (c *EmailChannel) ShouldSend(n *Notification) bool {
	return n.RecipientEmail != ""
}

func (c *EmailChannel) SendNow(ctx context.Context, n *Notification) error {
	if !c.ShouldSend(n) {
		return nil
	}

	body := c.contentText(n)
	if url := n.AbsoluteURL(c.baseURL); url != "" {
		body += "\n" + url
	}

	if err := c.mailer.Send(ctx, n.RecipientEmail, c.contentSubject(n), body); err != nil {
		return fmt.Errorf("failed to send notification email: %w", err)
	}
	return nil
}

func (c *EmailChannel) SendDigest(ctx context.Context, to string, notifications []*Notification, freq Frequency) error {
	if to == "" || len(notifications) == 0 {
		return nil
	}

	count := len(notifications)
	subject := fmt.Sprintf("%s digest - %d new %s", freq.Name, count, pluralize(count))

	var b strings.Builder
	fmt.Fprintf(&b, "You have %d new %s:\n", count, pluralize(count))
	for _, n := range notifications {
		b.WriteString("\n- ")
		b.WriteString(c.contentText(n))
		if url := n.AbsoluteURL(c.baseURL); url != "" {
			b.WriteString("\n  ")
			b.WriteString(url)
		}
	}

	if err := c.mailer.Send(ctx, to, subject, b.String()); err != nil {
		return fmt.Errorf("failed to send digest email: %w", err)
	}
	return nil
}

// contentSubject resolves the email subject: stored subject, then the
// type's generated subject, then the type description.
func (c *EmailChannel) contentSubject(n *Notification) string {
	if n.Subject != "" {
		return n.Subject
	}
	if t, err := c.registry.Type(n.Type); err == nil {
		if s := t.Subject(n); s != "" {
			return s
		}
		return t.Description()
	}
	return ""
}

// contentText resolves the body text: stored text, then the type's
// generated text.
func (c *EmailChannel) contentText(n *Notification) string {
	if n.Text != "" {
		return n.Text
	}
	if t, err := c.registry.Type(n.Type); err == nil {
		return t.Text(n)
	}
	return ""
}

func pluralize(count int) string {
	if count == 1 {
		return "notification"
	}
	return "notifications"
}
