package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ak-bharadwaj/concurrence2k26-sub000/models"
	"github.com/lib/pq"
)

var (
	ErrTeamNotFound         = errors.New("team not found")
	ErrTeamNameConflict     = errors.New("team name conflict")
	ErrTeamJoinCodeConflict = errors.New("team join code conflict")
)

type TeamRepository interface {
	Create(ctx context.Context, exec SQLExecutor, team *models.Team) error
	GetByID(ctx context.Context, id int) (*models.Team, error)
	GetByJoinCode(ctx context.Context, joinCode string) (*models.Team, error)
	UpdateSettings(ctx context.Context, id int, name string, maxMembers int) error
	SetLeader(ctx context.Context, exec SQLExecutor, teamID int, leaderID *int) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

func (r *postgresTeamRepository) executor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func mapTeamConstraintError(err error) error {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case "teams_name_key":
			return ErrTeamNameConflict
		case "teams_join_code_key":
			return ErrTeamJoinCodeConflict
		}
	}
	return err
}

func (r *postgresTeamRepository) Create(ctx context.Context, exec SQLExecutor, team *models.Team) error {
	query := `
		INSERT INTO teams (name, join_code, payment_mode, max_members)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.executor(exec).QueryRowContext(ctx, query,
		team.Name,
		team.JoinCode,
		team.PaymentMode,
		team.MaxMembers,
	).Scan(&team.ID, &team.CreatedAt)

	if err != nil {
		return mapTeamConstraintError(err)
	}
	return nil
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, id int) (*models.Team, error) {
	query := `
		SELECT id, name, join_code, payment_mode, max_members, leader_id, created_at
		FROM teams
		WHERE id = $1`
	return r.scanTeam(ctx, query, id)
}

func (r *postgresTeamRepository) GetByJoinCode(ctx context.Context, joinCode string) (*models.Team, error) {
	query := `
		SELECT id, name, join_code, payment_mode, max_members, leader_id, created_at
		FROM teams
		WHERE join_code = $1`
	return r.scanTeam(ctx, query, joinCode)
}

func (r *postgresTeamRepository) UpdateSettings(ctx context.Context, id int, name string, maxMembers int) error {
	query := `UPDATE teams SET name = $1, max_members = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, name, maxMembers, id)
	if err != nil {
		return mapTeamConstraintError(err)
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}

func (r *postgresTeamRepository) SetLeader(ctx context.Context, exec SQLExecutor, teamID int, leaderID *int) error {
	result, err := r.executor(exec).ExecContext(ctx, `UPDATE teams SET leader_id = $1 WHERE id = $2`, leaderID, teamID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}

func (r *postgresTeamRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	result, err := r.executor(exec).ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}

func (r *postgresTeamRepository) scanTeam(ctx context.Context, query string, args ...interface{}) (*models.Team, error) {
	team := &models.Team{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&team.ID,
		&team.Name,
		&team.JoinCode,
		&team.PaymentMode,
		&team.MaxMembers,
		&team.LeaderID,
		&team.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	return team, nil
}
