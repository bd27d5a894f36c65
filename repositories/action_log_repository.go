package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ak-bharadwaj/concurrence2k26-sub000/models"
)

// ActionLogRepository is append-only: entries are never updated or deleted.
type ActionLogRepository interface {
	Create(ctx context.Context, exec SQLExecutor, entry *models.ActionLog) error
	ListByUserID(ctx context.Context, userID int) ([]*models.ActionLog, error)
}

type postgresActionLogRepository struct {
	db *sql.DB
}

func NewPostgresActionLogRepository(db *sql.DB) ActionLogRepository {
	return &postgresActionLogRepository{db: db}
}

func (r *postgresActionLogRepository) executor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresActionLogRepository) Create(ctx context.Context, exec SQLExecutor, entry *models.ActionLog) error {
	query := `
		INSERT INTO action_logs (admin_id, user_id, user_label, action)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.executor(exec).QueryRowContext(ctx, query,
		entry.AdminID,
		entry.UserID,
		entry.UserLabel,
		entry.Action,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create action log entry: %w", err)
	}
	return nil
}

func (r *postgresActionLogRepository) ListByUserID(ctx context.Context, userID int) ([]*models.ActionLog, error) {
	query := `
		SELECT id, admin_id, user_id, user_label, action, created_at
		FROM action_logs
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*models.ActionLog, 0)
	for rows.Next() {
		var entry models.ActionLog
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.AdminID,
			&entry.UserID,
			&entry.UserLabel,
			&entry.Action,
			&entry.CreatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, &entry)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
