package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"herald/internal/domain/notification"
)

type PreferenceRepository struct {
	db *DB
}

func NewPreferenceRepository(db *DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

func (r *PreferenceRepository) ChannelOverrides(ctx context.Context, userID int64, typeKey string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT channel, enabled FROM notification_channel_preferences WHERE user_id = $1 AND notification_type = $2`,
		userID, typeKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get channel preferences: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]bool)
	for rows.Next() {
		var channel string
		var enabled bool
		if err := rows.Scan(&channel, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan channel preference: %w", err)
		}
		overrides[channel] = enabled
	}
	return overrides, rows.Err()
}

func (r *PreferenceRepository) AllChannelOverrides(ctx context.Context, userID int64) ([]notification.ChannelOverride, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT notification_type, channel, enabled
		FROM notification_channel_preferences
		WHERE user_id = $1
		ORDER BY notification_type, channel`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get channel preferences: %w", err)
	}
	defer rows.Close()

	var overrides []notification.ChannelOverride
	for rows.Next() {
		o := notification.ChannelOverride{UserID: userID}
		if err := rows.Scan(&o.Type, &o.Channel, &o.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan channel preference: %w", err)
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func (r *PreferenceRepository) SetChannelOverride(ctx context.Context, o notification.ChannelOverride) error {
	query := `
		INSERT INTO notification_channel_preferences (user_id, notification_type, channel, enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, notification_type, channel) DO UPDATE
			SET enabled = EXCLUDED.enabled,
			    updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, o.UserID, o.Type, o.Channel, o.Enabled); err != nil {
		return fmt.Errorf("failed to set channel preference: %w", err)
	}
	return nil
}

func (r *PreferenceRepository) FrequencyOverride(ctx context.Context, userID int64, typeKey string) (string, error) {
	var frequency string
	err := r.db.QueryRowContext(ctx,
		`SELECT frequency FROM notification_frequency_preferences WHERE user_id = $1 AND notification_type = $2`,
		userID, typeKey,
	).Scan(&frequency)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get frequency preference: %w", err)
	}
	return frequency, nil
}

func (r *PreferenceRepository) AllFrequencyOverrides(ctx context.Context, userID int64) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT notification_type, frequency FROM notification_frequency_preferences WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get frequency preferences: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]string)
	for rows.Next() {
		var typeKey, frequency string
		if err := rows.Scan(&typeKey, &frequency); err != nil {
			return nil, fmt.Errorf("failed to scan frequency preference: %w", err)
		}
		overrides[typeKey] = frequency
	}
	return overrides, rows.Err()
}

func (r *PreferenceRepository) SetFrequencyOverride(ctx context.Context, userID int64, typeKey, frequencyKey string) error {
	query := `
		INSERT INTO notification_frequency_preferences (user_id, notification_type, frequency)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, notification_type) DO UPDATE
			SET frequency = EXCLUDED.frequency,
			    updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, userID, typeKey, frequencyKey); err != nil {
		return fmt.Errorf("failed to set frequency preference: %w", err)
	}
	return nil
}

func (r *PreferenceRepository) DeleteFrequencyOverride(ctx context.Context, userID int64, typeKey string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM notification_frequency_preferences WHERE user_id = $1 AND notification_type = $2`,
		userID, typeKey,
	)
	if err != nil {
		return fmt.Errorf("failed to delete frequency preference: %w", err)
	}
	return nil
}

// ReplaceAll rewrites every stored preference for the user in one
// transaction, used by the bulk settings save.
func (r *PreferenceRepository) ReplaceAll(ctx context.Context, userID int64, channels []notification.ChannelOverride, frequencies map[string]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM notification_channel_preferences WHERE user_id = $1`, userID,
	); err != nil {
		return fmt.Errorf("failed to clear channel preferences: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM notification_frequency_preferences WHERE user_id = $1`, userID,
	); err != nil {
		return fmt.Errorf("failed to clear frequency preferences: %w", err)
	}

	for _, o := range channels {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO notification_channel_preferences (user_id, notification_type, channel, enabled) VALUES ($1, $2, $3, $4)`,
			userID, o.Type, o.Channel, o.Enabled,
		); err != nil {
			return fmt.Errorf("failed to insert channel preference: %w", err)
		}
	}
	for typeKey, frequency := range frequencies {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO notification_frequency_preferences (user_id, notification_type, frequency) VALUES ($1, $2, $3)`,
			userID, typeKey, frequency,
		); err != nil {
			return fmt.Errorf("failed to insert frequency preference: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit preferences: %w", err)
	}
	return nil
}
