package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"herald/internal/domain/notification"
)

type NotificationRepository struct {
	db *DB
}

func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, recipient_id, notification_type, actor_id, target_kind, target_id, subject, text, url, metadata, added, read`

// Create persists the notification and one channel-state row per enabled
// channel in a single transaction.
func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	metadataJSON, err := marshalMetadata(n.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	var targetKind, targetID sql.NullString
	if n.Target != nil {
		targetKind = sql.NullString{String: n.Target.Kind, Valid: true}
		targetID = sql.NullString{String: n.Target.ID, Valid: true}
	}

	query := `
		INSERT INTO notifications (id, recipient_id, notification_type, actor_id, target_kind, target_id, subject, text, url, metadata, added)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING added
	`
	err = tx.QueryRowContext(ctx, query,
		id, n.RecipientID, n.Type, nullableInt64(n.ActorID), targetKind, targetID,
		n.Subject, n.Text, n.URL, metadataJSON,
	).Scan(&n.Added)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	for _, cs := range n.Channels {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO notification_channels (notification_id, channel) VALUES ($1, $2)`,
			id, cs.Channel,
		)
		if err != nil {
			return fmt.Errorf("failed to create channel state for %s: %w", cs.Channel, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit notification: %w", err)
	}

	n.ID = id
	return nil
}

func (r *NotificationRepository) Get(ctx context.Context, id string, recipientID int64) (*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1 AND recipient_id = $2`

	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id, recipientID))
	if err != nil {
		return nil, err
	}
	if err := r.attachChannelStates(ctx, []*notification.Notification{n}); err != nil {
		return nil, err
	}
	return n, nil
}

// MergeMetadata folds patch into the stored jsonb document atomically
// using the jsonb concatenation operator.
func (r *NotificationRepository) MergeMetadata(ctx context.Context, id string, patch map[string]string) error {
	if len(patch) == 0 {
		return nil
	}
	patchJSON, err := marshalMetadata(patch)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET metadata = COALESCE(metadata, '{}'::jsonb) || $1::jsonb WHERE id = $2`,
		patchJSON, id,
	)
	if err != nil {
		return fmt.Errorf("failed to merge notification metadata: %w", err)
	}
	return requireRow(result)
}

func (r *NotificationRepository) List(ctx context.Context, q notification.ListQuery) ([]*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1`
	args := []any{q.RecipientID}

	if q.Channel != "" {
		args = append(args, q.Channel)
		query += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM notification_channels nc
			WHERE nc.notification_id = notifications.id AND nc.channel = $%d
		)`, len(args))
	}
	if q.UnreadOnly {
		query += ` AND read IS NULL`
	}
	if q.ReadOnly {
		query += ` AND read IS NOT NULL`
	}
	query += ` ORDER BY added DESC`
	if q.Limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	if err := r.attachChannelStates(ctx, notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *NotificationRepository) UnreadCount(ctx context.Context, recipientID int64, channelKey string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications n
		WHERE n.recipient_id = $1 AND n.read IS NULL
		AND EXISTS (
			SELECT 1 FROM notification_channels nc
			WHERE nc.notification_id = n.id AND nc.channel = $2
		)
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, recipientID, channelKey).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead sets the read timestamp, keeping the original timestamp on
// rows that are already read. Empty ids means every notification the
// user owns.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID int64, ids []string) error {
	now := time.Now().UTC()

	if len(ids) == 0 {
		_, err := r.db.ExecContext(ctx,
			`UPDATE notifications SET read = COALESCE(read, $1) WHERE recipient_id = $2`,
			now, recipientID,
		)
		if err != nil {
			return fmt.Errorf("failed to mark notifications read: %w", err)
		}
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = COALESCE(read, $1) WHERE recipient_id = $2 AND id = ANY($3)`,
		now, recipientID, pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}

func (r *NotificationRepository) MarkUnread(ctx context.Context, recipientID int64, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = NULL WHERE id = $1 AND recipient_id = $2`,
		id, recipientID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification unread: %w", err)
	}
	return requireRow(result)
}

// MarkSent records delivery; an already-sent channel keeps its original
// timestamp.
func (r *NotificationRepository) MarkSent(ctx context.Context, notificationID, channelKey string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notification_channels SET sent_at = COALESCE(sent_at, $1) WHERE notification_id = $2 AND channel = $3`,
		at, notificationID, channelKey,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

func (r *NotificationRepository) PendingOnChannel(ctx context.Context, channelKey string) ([]*notification.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE read IS NULL
		AND EXISTS (
			SELECT 1 FROM notification_channels nc
			WHERE nc.notification_id = notifications.id AND nc.channel = $1 AND nc.sent_at IS NULL
		)
		ORDER BY added DESC
	`

	rows, err := r.db.QueryContext(ctx, query, channelKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending notifications: %w", err)
	}

	if err := r.attachChannelStates(ctx, notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkBatchSent flips a whole digest batch in one transaction so a
// partially delivered digest is never recorded.
func (r *NotificationRepository) MarkBatchSent(ctx context.Context, ids []string, channelKey string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE notification_channels SET sent_at = COALESCE(sent_at, $1) WHERE notification_id = ANY($2) AND channel = $3`,
		at, pq.Array(ids), channelKey,
	)
	if err != nil {
		return fmt.Errorf("failed to mark digest batch sent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit digest batch: %w", err)
	}
	return nil
}

// FindUnreadGroup finds the most recent unread notification matching the
// full grouping key. IS NOT DISTINCT FROM makes NULL actor and target
// values compare as equal, unlike plain equality.
func (r *NotificationRepository) FindUnreadGroup(ctx context.Context, recipientID int64, typeKey string, actorID *int64, target *notification.TargetRef) (*notification.Notification, error) {
	var targetKind, targetID sql.NullString
	if target != nil {
		targetKind = sql.NullString{String: target.Kind, Valid: true}
		targetID = sql.NullString{String: target.ID, Valid: true}
	}

	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE recipient_id = $1 AND notification_type = $2 AND read IS NULL
		AND actor_id IS NOT DISTINCT FROM $3
		AND target_kind IS NOT DISTINCT FROM $4
		AND target_id IS NOT DISTINCT FROM $5
		ORDER BY added DESC
		LIMIT 1
	`

	n, err := scanNotification(r.db.QueryRowContext(ctx, query,
		recipientID, typeKey, nullableInt64(actorID), targetKind, targetID,
	))
	if err != nil {
		return nil, err
	}
	if err := r.attachChannelStates(ctx, []*notification.Notification{n}); err != nil {
		return nil, err
	}
	return n, nil
}

// attachChannelStates loads the channel-state rows for a batch of
// notifications in one query.
func (r *NotificationRepository) attachChannelStates(ctx context.Context, notifications []*notification.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	byID := make(map[string]*notification.Notification, len(notifications))
	ids := make([]string, len(notifications))
	for i, n := range notifications {
		byID[n.ID] = n
		ids[i] = n.ID
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT notification_id, channel, sent_at FROM notification_channels WHERE notification_id = ANY($1) ORDER BY channel`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to load channel states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var notificationID, channel string
		var sentAt sql.NullTime
		if err := rows.Scan(&notificationID, &channel, &sentAt); err != nil {
			return fmt.Errorf("failed to scan channel state: %w", err)
		}
		cs := notification.ChannelState{Channel: channel}
		if sentAt.Valid {
			cs.SentAt = &sentAt.Time
		}
		if n, ok := byID[notificationID]; ok {
			n.Channels = append(n.Channels, cs)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*notification.Notification, error) {
	var n notification.Notification
	var actorID sql.NullInt64
	var targetKind, targetID sql.NullString
	var metadataBytes []byte
	var read sql.NullTime

	err := row.Scan(
		&n.ID, &n.RecipientID, &n.Type, &actorID, &targetKind, &targetID,
		&n.Subject, &n.Text, &n.URL, &metadataBytes, &n.Added, &read,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notification.ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}

	if actorID.Valid {
		n.ActorID = &actorID.Int64
	}
	if targetKind.Valid {
		n.Target = &notification.TargetRef{Kind: targetKind.String, ID: targetID.String}
	}
	if read.Valid {
		n.Read = &read.Time
	}
	if len(metadataBytes) > 0 {
		if err := json.Unmarshal(metadataBytes, &n.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification metadata: %w", err)
		}
	}
	return &n, nil
}

func marshalMetadata(metadata map[string]string) ([]byte, error) {
	if metadata == nil {
		return []byte(`{}`), nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification metadata: %w", err)
	}
	return data, nil
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return notification.ErrNotificationNotFound
	}
	return nil
}
