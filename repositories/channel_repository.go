package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ak-bharadwaj/concurrence2k26-sub000/models"
)

var ErrChannelNotFound = errors.New("payment channel not found")

const channelColumns = `id, name, upi_id, amount, usage_count, daily_limit, active, image_key, created_at`

type PaymentChannelRepository interface {
	Create(ctx context.Context, channel *models.PaymentChannel) error
	GetByID(ctx context.Context, id int) (*models.PaymentChannel, error)
	List(ctx context.Context) ([]*models.PaymentChannel, error)
	// ListActiveByAmount returns active channels for one amount tier ordered
	// by usage then creation time, which is the allocator's selection order.
	ListActiveByAmount(ctx context.Context, amount int) ([]*models.PaymentChannel, error)
	// IncrementUsage bumps the counter in one conditional UPDATE, guarded by
	// the active flag and the daily limit. Returns false when the guard
	// fails, so a stale listing never pushes a channel past its cap.
	IncrementUsage(ctx context.Context, id int) (bool, error)
	ResetUsage(ctx context.Context, id int) error
	SetActive(ctx context.Context, id int, active bool) error
}

type postgresPaymentChannelRepository struct {
	db *sql.DB
}

func NewPostgresPaymentChannelRepository(db *sql.DB) PaymentChannelRepository {
	return &postgresPaymentChannelRepository{db: db}
}

func (r *postgresPaymentChannelRepository) Create(ctx context.Context, channel *models.PaymentChannel) error {
	query := `
		INSERT INTO payment_channels (name, upi_id, amount, daily_limit, active, image_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, usage_count, created_at`

	err := r.db.QueryRowContext(ctx, query,
		channel.Name,
		channel.UpiID,
		channel.Amount,
		channel.DailyLimit,
		channel.Active,
		channel.ImageKey,
	).Scan(&channel.ID, &channel.UsageCount, &channel.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment channel: %w", err)
	}
	return nil
}

func (r *postgresPaymentChannelRepository) GetByID(ctx context.Context, id int) (*models.PaymentChannel, error) {
	query := `SELECT ` + channelColumns + ` FROM payment_channels WHERE id = $1`

	channel := &models.PaymentChannel{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&channel.ID, &channel.Name, &channel.UpiID, &channel.Amount,
		&channel.UsageCount, &channel.DailyLimit, &channel.Active,
		&channel.ImageKey, &channel.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}
	return channel, nil
}

func (r *postgresPaymentChannelRepository) List(ctx context.Context) ([]*models.PaymentChannel, error) {
	query := `SELECT ` + channelColumns + ` FROM payment_channels ORDER BY amount ASC, created_at ASC`
	return r.listChannels(ctx, query)
}

func (r *postgresPaymentChannelRepository) ListActiveByAmount(ctx context.Context, amount int) ([]*models.PaymentChannel, error) {
	query := `
		SELECT ` + channelColumns + `
		FROM payment_channels
		WHERE active = TRUE AND amount = $1
		ORDER BY usage_count ASC, created_at ASC`
	return r.listChannels(ctx, query, amount)
}

func (r *postgresPaymentChannelRepository) IncrementUsage(ctx context.Context, id int) (bool, error) {
	query := `
		UPDATE payment_channels
		SET usage_count = usage_count + 1
		WHERE id = $1 AND active = TRUE AND usage_count < daily_limit`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *postgresPaymentChannelRepository) ResetUsage(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `UPDATE payment_channels SET usage_count = 0 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrChannelNotFound)
}

func (r *postgresPaymentChannelRepository) SetActive(ctx context.Context, id int, active bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE payment_channels SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrChannelNotFound)
}

func (r *postgresPaymentChannelRepository) listChannels(ctx context.Context, query string, args ...interface{}) ([]*models.PaymentChannel, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := make([]*models.PaymentChannel, 0)
	for rows.Next() {
		var channel models.PaymentChannel
		scanErr := rows.Scan(
			&channel.ID, &channel.Name, &channel.UpiID, &channel.Amount,
			&channel.UsageCount, &channel.DailyLimit, &channel.Active,
			&channel.ImageKey, &channel.CreatedAt,
		)
		if scanErr != nil {
			return nil, scanErr
		}
		channels = append(channels, &channel)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return channels, nil
}
