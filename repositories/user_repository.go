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
	ErrUserNotFound      = errors.New("user not found")
	ErrUserEmailConflict = errors.New("user email conflict")
	ErrUserPhoneConflict = errors.New("user phone conflict")
	ErrUserRegNoConflict = errors.New("user registration number conflict")
	ErrUserTeamInvalid   = errors.New("user team conflict or invalid")
)

const userColumns = `id, name, reg_no, email, phone, college, branch, year, team_id, role, status, transaction_id, proof_url, channel_id, attended, password_hash, created_at`

// UserRepository exposes a closed set of typed writes instead of a free-form
// update: every status or membership change goes through its own guarded
// statement.
type UserRepository interface {
	Create(ctx context.Context, exec SQLExecutor, user *models.User) error
	GetByID(ctx context.Context, id int) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByRegNo(ctx context.Context, regNo string) (*models.User, error)
	ListByTeamID(ctx context.Context, exec SQLExecutor, teamID int) ([]models.User, error)
	ListByStatus(ctx context.Context, status models.UserStatus) ([]models.User, error)
	CountByTeamID(ctx context.Context, exec SQLExecutor, teamID int) (int, error)

	// AssignTeam re-parents a user onto a team with the given squad role.
	AssignTeam(ctx context.Context, exec SQLExecutor, userID, teamID int, role models.UserRole) error
	// ClearTeam detaches a user from their team and demotes them to MEMBER.
	ClearTeam(ctx context.Context, exec SQLExecutor, userID int) error
	// ReleaseAllFromTeam detaches every member of a team in one statement.
	// When resetStatus is true every released member also drops to UNPAID.
	ReleaseAllFromTeam(ctx context.Context, exec SQLExecutor, teamID int, resetStatus bool) error

	// SetPaymentProof stores the proof fields and moves UNPAID -> PENDING in a
	// single conditional update. Returns false if the user was not UNPAID.
	SetPaymentProof(ctx context.Context, userID int, transactionID, proofURL string, channelID int) (bool, error)
	// UpdateStatusGuarded applies from -> to only if the row still holds from.
	// Returns false when another writer got there first.
	UpdateStatusGuarded(ctx context.Context, exec SQLExecutor, userID int, from, to models.UserStatus) (bool, error)
	SetAttendance(ctx context.Context, userID int, attended bool) error

	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

func (r *postgresUserRepository) executor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func mapUserConstraintError(err error) error {
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505": // unique_violation
			switch pqErr.Constraint {
			case "users_email_key":
				return ErrUserEmailConflict
			case "users_phone_key":
				return ErrUserPhoneConflict
			case "users_reg_no_key":
				return ErrUserRegNoConflict
			}
		case "23503": // foreign_key_violation
			if pqErr.Constraint == "users_team_id_fkey" {
				return ErrUserTeamInvalid
			}
		}
	}
	return err
}

func (r *postgresUserRepository) Create(ctx context.Context, exec SQLExecutor, user *models.User) error {
	query := `
		INSERT INTO users (name, reg_no, email, phone, college, branch, year, team_id, role, status, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	err := r.executor(exec).QueryRowContext(ctx, query,
		user.Name,
		user.RegNo,
		user.Email,
		user.Phone,
		user.College,
		user.Branch,
		user.Year,
		user.TeamID,
		user.Role,
		user.Status,
		user.PasswordHash,
	).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		return mapUserConstraintError(err)
	}
	return nil
}

func (r *postgresUserRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	query := `
		SELECT
			u.id, u.name, u.reg_no, u.email, u.phone, u.college, u.branch, u.year,
			u.team_id, u.role, u.status, u.transaction_id, u.proof_url, u.channel_id,
			u.attended, u.password_hash, u.created_at,
			t.id, t.name, t.join_code, t.payment_mode, t.max_members, t.leader_id, t.created_at
		FROM users u
		LEFT JOIN teams t ON u.team_id = t.id
		WHERE u.id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	var user models.User
	var team models.Team

	var teamID, teamMaxMembers, teamLeaderID sql.NullInt64
	var teamName, teamJoinCode, teamPaymentMode sql.NullString
	var teamCreatedAt sql.NullTime

	err := row.Scan(
		&user.ID, &user.Name, &user.RegNo, &user.Email, &user.Phone,
		&user.College, &user.Branch, &user.Year,
		&user.TeamID, &user.Role, &user.Status,
		&user.TransactionID, &user.ProofURL, &user.ChannelID,
		&user.Attended, &user.PasswordHash, &user.CreatedAt,
		&teamID, &teamName, &teamJoinCode, &teamPaymentMode,
		&teamMaxMembers, &teamLeaderID, &teamCreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user with team: %w", err)
	}

	if teamID.Valid {
		team.ID = int(teamID.Int64)
		team.Name = teamName.String
		team.JoinCode = teamJoinCode.String
		team.PaymentMode = models.PaymentMode(teamPaymentMode.String)
		team.MaxMembers = int(teamMaxMembers.Int64)
		if teamLeaderID.Valid {
			leaderID := int(teamLeaderID.Int64)
			team.LeaderID = &leaderID
		}
		team.CreatedAt = teamCreatedAt.Time
		user.Team = &team
	}

	return &user, nil
}

func (r *postgresUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(ctx, query, email)
}

func (r *postgresUserRepository) GetByRegNo(ctx context.Context, regNo string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE reg_no = $1`
	return r.scanUser(ctx, query, regNo)
}

func (r *postgresUserRepository) ListByTeamID(ctx context.Context, exec SQLExecutor, teamID int) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE team_id = $1 ORDER BY created_at ASC`
	return r.listUsers(ctx, exec, query, teamID)
}

func (r *postgresUserRepository) ListByStatus(ctx context.Context, status models.UserStatus) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE status = $1 ORDER BY created_at ASC`
	return r.listUsers(ctx, nil, query, status)
}

func (r *postgresUserRepository) CountByTeamID(ctx context.Context, exec SQLExecutor, teamID int) (int, error) {
	var count int
	err := r.executor(exec).QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE team_id = $1`, teamID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count team members: %w", err)
	}
	return count, nil
}

func (r *postgresUserRepository) AssignTeam(ctx context.Context, exec SQLExecutor, userID, teamID int, role models.UserRole) error {
	query := `UPDATE users SET team_id = $1, role = $2 WHERE id = $3`
	result, err := r.executor(exec).ExecContext(ctx, query, teamID, role, userID)
	if err != nil {
		return mapUserConstraintError(err)
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresUserRepository) ClearTeam(ctx context.Context, exec SQLExecutor, userID int) error {
	query := `UPDATE users SET team_id = NULL, role = $1 WHERE id = $2`
	result, err := r.executor(exec).ExecContext(ctx, query, models.RoleMember, userID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresUserRepository) ReleaseAllFromTeam(ctx context.Context, exec SQLExecutor, teamID int, resetStatus bool) error {
	query := `UPDATE users SET team_id = NULL, role = $1 WHERE team_id = $2`
	if resetStatus {
		query = `UPDATE users SET team_id = NULL, role = $1, status = 'UNPAID' WHERE team_id = $2`
	}
	_, err := r.executor(exec).ExecContext(ctx, query, models.RoleMember, teamID)
	if err != nil {
		return fmt.Errorf("failed to release members of team %d: %w", teamID, err)
	}
	return nil
}

func (r *postgresUserRepository) SetPaymentProof(ctx context.Context, userID int, transactionID, proofURL string, channelID int) (bool, error) {
	query := `
		UPDATE users
		SET status = $1, transaction_id = $2, proof_url = $3, channel_id = $4
		WHERE id = $5 AND status = $6`

	result, err := r.db.ExecContext(ctx, query,
		models.StatusPending, transactionID, proofURL, channelID,
		userID, models.StatusUnpaid,
	)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *postgresUserRepository) UpdateStatusGuarded(ctx context.Context, exec SQLExecutor, userID int, from, to models.UserStatus) (bool, error) {
	query := `UPDATE users SET status = $1 WHERE id = $2 AND status = $3 AND status <> $1`
	result, err := r.executor(exec).ExecContext(ctx, query, to, userID, from)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *postgresUserRepository) SetAttendance(ctx context.Context, userID int, attended bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET attended = $1 WHERE id = $2`, attended, userID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresUserRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	result, err := r.executor(exec).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresUserRepository) scanUser(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.Name, &user.RegNo, &user.Email, &user.Phone,
		&user.College, &user.Branch, &user.Year,
		&user.TeamID, &user.Role, &user.Status,
		&user.TransactionID, &user.ProofURL, &user.ChannelID,
		&user.Attended, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *postgresUserRepository) listUsers(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]models.User, error) {
	rows, err := r.executor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var user models.User
		scanErr := rows.Scan(
			&user.ID, &user.Name, &user.RegNo, &user.Email, &user.Phone,
			&user.College, &user.Branch, &user.Year,
			&user.TeamID, &user.Role, &user.Status,
			&user.TransactionID, &user.ProofURL, &user.ChannelID,
			&user.Attended, &user.PasswordHash, &user.CreatedAt,
		)
		if scanErr != nil {
			return nil, scanErr
		}
		users = append(users, user)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}
