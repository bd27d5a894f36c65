package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ak-bharadwaj/concurrence2k26-sub000/models"
	"github.com/lib/pq"
)

var (
	ErrRequestNotFound    = errors.New("join request not found")
	ErrRequestTeamInvalid = errors.New("join request team conflict or invalid")
	ErrRequestUserInvalid = errors.New("join request user conflict or invalid")
	ErrRequestDuplicate   = errors.New("a pending join request already exists for this requester")
)

const joinRequestColumns = `id, team_id, user_id, candidate_name, candidate_email, candidate_phone, candidate_reg_no, candidate_college, status, created_at, resolved_at`

type JoinRequestRepository interface {
	// Create inserts a PENDING request. Returns ErrRequestDuplicate when a
	// pending request for the same (team, requester) already exists; partial
	// unique indexes hold the invariant under concurrent inserts.
	Create(ctx context.Context, request *models.JoinRequest) error
	GetByID(ctx context.Context, id int) (*models.JoinRequest, error)

	// FindPendingByTeamAndUser / ...AndEmail back the same invariant on the
	// read side: at most one non-terminal request per (team, requester).
	FindPendingByTeamAndUser(ctx context.Context, teamID, userID int) (*models.JoinRequest, error)
	FindPendingByTeamAndEmail(ctx context.Context, teamID int, email string) (*models.JoinRequest, error)

	ListPendingByTeam(ctx context.Context, teamID int) ([]*models.JoinRequest, error)
	ListPendingByUser(ctx context.Context, userID int) ([]*models.JoinRequest, error)

	// Resolve moves a request out of PENDING. Returns false when the request
	// was already terminal, which makes every resolution path idempotent.
	Resolve(ctx context.Context, exec SQLExecutor, id int, status models.JoinRequestStatus) (bool, error)

	DeleteByTeamID(ctx context.Context, exec SQLExecutor, teamID int) error
}

type postgresJoinRequestRepository struct {
	db *sql.DB
}

func NewPostgresJoinRequestRepository(db *sql.DB) JoinRequestRepository {
	return &postgresJoinRequestRepository{db: db}
}

func (r *postgresJoinRequestRepository) executor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresJoinRequestRepository) Create(ctx context.Context, request *models.JoinRequest) error {
	query := `
		INSERT INTO join_requests (team_id, user_id, candidate_name, candidate_email, candidate_phone, candidate_reg_no, candidate_college, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		request.TeamID,
		request.UserID,
		request.CandidateName,
		request.CandidateEmail,
		request.CandidatePhone,
		request.CandidateRegNo,
		request.CandidateCollege,
		request.Status,
	).Scan(&request.ID, &request.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch {
			case pqErr.Code == "23503" && pqErr.Constraint == "join_requests_team_id_fkey":
				return ErrRequestTeamInvalid
			case pqErr.Code == "23503" && pqErr.Constraint == "join_requests_user_id_fkey":
				return ErrRequestUserInvalid
			case pqErr.Code == "23505" &&
				(pqErr.Constraint == "join_requests_pending_user_uniq" ||
					pqErr.Constraint == "join_requests_pending_email_uniq"):
				return ErrRequestDuplicate
			}
		}
		return err
	}
	return nil
}

func (r *postgresJoinRequestRepository) GetByID(ctx context.Context, id int) (*models.JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + ` FROM join_requests WHERE id = $1`
	return r.scanRequest(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresJoinRequestRepository) FindPendingByTeamAndUser(ctx context.Context, teamID, userID int) (*models.JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM join_requests
		WHERE team_id = $1 AND user_id = $2 AND status = $3`
	return r.scanRequest(r.db.QueryRowContext(ctx, query, teamID, userID, models.RequestPending))
}

func (r *postgresJoinRequestRepository) FindPendingByTeamAndEmail(ctx context.Context, teamID int, email string) (*models.JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM join_requests
		WHERE team_id = $1 AND candidate_email = $2 AND status = $3`
	return r.scanRequest(r.db.QueryRowContext(ctx, query, teamID, email, models.RequestPending))
}

func (r *postgresJoinRequestRepository) ListPendingByTeam(ctx context.Context, teamID int) ([]*models.JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM join_requests
		WHERE team_id = $1 AND status = $2
		ORDER BY created_at ASC`
	return r.listRequests(ctx, query, teamID, models.RequestPending)
}

func (r *postgresJoinRequestRepository) ListPendingByUser(ctx context.Context, userID int) ([]*models.JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM join_requests
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at ASC`
	return r.listRequests(ctx, query, userID, models.RequestPending)
}

func (r *postgresJoinRequestRepository) Resolve(ctx context.Context, exec SQLExecutor, id int, status models.JoinRequestStatus) (bool, error) {
	query := `
		UPDATE join_requests
		SET status = $1, resolved_at = NOW()
		WHERE id = $2 AND status = $3`

	result, err := r.executor(exec).ExecContext(ctx, query, status, id, models.RequestPending)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *postgresJoinRequestRepository) DeleteByTeamID(ctx context.Context, exec SQLExecutor, teamID int) error {
	_, err := r.executor(exec).ExecContext(ctx, `DELETE FROM join_requests WHERE team_id = $1`, teamID)
	if err != nil {
		return fmt.Errorf("failed to delete join requests of team %d: %w", teamID, err)
	}
	return nil
}

func (r *postgresJoinRequestRepository) scanRequest(row *sql.Row) (*models.JoinRequest, error) {
	request := &models.JoinRequest{}
	err := row.Scan(
		&request.ID,
		&request.TeamID,
		&request.UserID,
		&request.CandidateName,
		&request.CandidateEmail,
		&request.CandidatePhone,
		&request.CandidateRegNo,
		&request.CandidateCollege,
		&request.Status,
		&request.CreatedAt,
		&request.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return request, nil
}

func (r *postgresJoinRequestRepository) listRequests(ctx context.Context, query string, args ...interface{}) ([]*models.JoinRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]*models.JoinRequest, 0)
	for rows.Next() {
		var request models.JoinRequest
		scanErr := rows.Scan(
			&request.ID,
			&request.TeamID,
			&request.UserID,
			&request.CandidateName,
			&request.CandidateEmail,
			&request.CandidatePhone,
			&request.CandidateRegNo,
			&request.CandidateCollege,
			&request.Status,
			&request.CreatedAt,
			&request.ResolvedAt,
		)
		if scanErr != nil {
			return nil, scanErr
		}
		requests = append(requests, &request)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}
