package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ak-bharadwaj/concurrence2k26-sub000/events"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/models"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/repositories"
)

// joinCodeAttempts bounds how often CreateTeam retries a colliding join code
// before surfacing ErrJoinCodeConflict.
const joinCodeAttempts = 2

type CreateTeamInput struct {
	Name        string             `json:"name"`
	PaymentMode models.PaymentMode `json:"payment_mode"`
	MaxMembers  int                `json:"max_members"`
	CreatorID   int                `json:"-"`
}

// CandidateInput carries the registration details of a participant being
// added to a squad who may not have an account yet.
type CandidateInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	RegNo   string `json:"reg_no"`
	College string `json:"college"`
	Branch  string `json:"branch"`
	Year    int    `json:"year"`
}

type TeamSettingsPatch struct {
	Name       *string `json:"name"`
	MaxMembers *int    `json:"max_members"`
}

// RosterService owns team membership: creation, capacity, leader
// designation, removal and disbandment.
type RosterService interface {
	CreateTeam(ctx context.Context, input CreateTeamInput) (*models.Team, error)
	GetTeamByID(ctx context.Context, teamID int) (*models.Team, error)
	GetTeamByJoinCode(ctx context.Context, joinCode string) (*models.Team, error)
	AddMember(ctx context.Context, teamID, actorID int, candidate CandidateInput) (*models.User, error)
	RemoveMember(ctx context.Context, teamID, userID, actorID int) error
	LeaveTeam(ctx context.Context, userID int) error
	DisbandTeam(ctx context.Context, teamID, actorID int) error
	UpdateTeamSettings(ctx context.Context, teamID, actorID int, patch TeamSettingsPatch) error
}

type rosterService struct {
	tx          repositories.Transactor
	teamRepo    repositories.TeamRepository
	userRepo    repositories.UserRepository
	requestRepo repositories.JoinRequestRepository
	publisher   events.Publisher
	logger      *slog.Logger
}

func NewRosterService(
	tx repositories.Transactor,
	teamRepo repositories.TeamRepository,
	userRepo repositories.UserRepository,
	requestRepo repositories.JoinRequestRepository,
	publisher events.Publisher,
	logger *slog.Logger,
) RosterService {
	return &rosterService{
		tx:          tx,
		teamRepo:    teamRepo,
		userRepo:    userRepo,
		requestRepo: requestRepo,
		publisher:   publisher,
		logger:      logger,
	}
}

func (s *rosterService) CreateTeam(ctx context.Context, input CreateTeamInput) (*models.Team, error) {
	if input.Name == "" {
		return nil, ErrTeamNameRequired
	}
	if input.PaymentMode != models.PaymentIndividual && input.PaymentMode != models.PaymentBulk {
		return nil, ErrInvalidPaymentMode
	}
	if input.MaxMembers <= 0 {
		input.MaxMembers = models.DefaultMaxMembers
	}

	creator, err := s.userRepo.GetByID(ctx, input.CreatorID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get creator %d: %w", input.CreatorID, err)
	}
	if creator.TeamID != nil {
		return nil, ErrUserAlreadyInTeam
	}

	var team *models.Team
	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		code, err := generateJoinCode()
		if err != nil {
			return nil, err
		}

		team = &models.Team{
			Name:        input.Name,
			JoinCode:    code,
			PaymentMode: input.PaymentMode,
			MaxMembers:  input.MaxMembers,
		}

		// Each attempt is its own transaction: a join-code collision aborts
		// the whole postgres transaction, so the retry has to start over.
		err = s.tx.InTx(ctx, func(exec repositories.SQLExecutor) error {
			if err := s.teamRepo.Create(ctx, exec, team); err != nil {
				return err
			}
			if err := s.userRepo.AssignTeam(ctx, exec, creator.ID, team.ID, models.RoleLeader); err != nil {
				return err
			}
			return s.teamRepo.SetLeader(ctx, exec, team.ID, &creator.ID)
		})
		if err == nil {
			break
		}
		if errors.Is(err, repositories.ErrTeamJoinCodeConflict) {
			if attempt == joinCodeAttempts-1 {
				return nil, ErrJoinCodeConflict
			}
			continue
		}
		if errors.Is(err, repositories.ErrTeamNameConflict) {
			return nil, ErrTeamNameConflict
		}
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	team.LeaderID = &creator.ID
	s.publisher.Publish(events.TypeTeamCreated, map[string]interface{}{
		"team_id":      team.ID,
		"name":         team.Name,
		"payment_mode": team.PaymentMode,
		"leader_id":    creator.ID,
	})

	return team, nil
}

func (s *rosterService) GetTeamByID(ctx context.Context, teamID int) (*models.Team, error) {
	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team %d: %w", teamID, err)
	}

	members, err := s.userRepo.ListByTeamID(ctx, nil, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of team %d: %w", teamID, err)
	}
	team.Members = members
	return team, nil
}

func (s *rosterService) GetTeamByJoinCode(ctx context.Context, joinCode string) (*models.Team, error) {
	team, err := s.teamRepo.GetByJoinCode(ctx, joinCode)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to resolve join code: %w", err)
	}
	return team, nil
}

func (s *rosterService) AddMember(ctx context.Context, teamID, actorID int, candidate CandidateInput) (*models.User, error) {
	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team %d: %w", teamID, err)
	}
	if team.LeaderID == nil || *team.LeaderID != actorID {
		return nil, ErrLeaderActionForbidden
	}

	existing, err := s.userRepo.GetByEmail(ctx, candidate.Email)
	if err != nil && !errors.Is(err, repositories.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up candidate by email: %w", err)
	}
	if existing != nil && existing.TeamID != nil {
		if *existing.TeamID == teamID {
			return existing, nil
		}
		return nil, ErrUserAlreadyInTeam
	}

	var member *models.User
	err = s.tx.InTx(ctx, func(exec repositories.SQLExecutor) error {
		// Capacity is checked and enforced inside the same transaction as
		// the insert; two concurrent adds cannot both see a free slot and
		// both commit.
		count, err := s.userRepo.CountByTeamID(ctx, exec, teamID)
		if err != nil {
			return err
		}
		if count >= team.MaxMembers {
			return ErrTeamFull
		}

		if existing != nil {
			if err := s.userRepo.AssignTeam(ctx, exec, existing.ID, teamID, models.RoleMember); err != nil {
				return err
			}
			existing.TeamID = &teamID
			existing.Role = models.RoleMember
			member = existing
			return nil
		}

		member = &models.User{
			Name:    candidate.Name,
			RegNo:   candidate.RegNo,
			Email:   candidate.Email,
			Phone:   candidate.Phone,
			College: candidate.College,
			Branch:  candidate.Branch,
			Year:    candidate.Year,
			TeamID:  &teamID,
			Role:    models.RoleMember,
			// Bulk approval only ever arrives through the leader cascade,
			// so a fresh member always starts UNPAID.
			Status: models.StatusUnpaid,
		}
		return s.userRepo.Create(ctx, exec, member)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrTeamFull):
			return nil, ErrTeamFull
		case errors.Is(err, repositories.ErrUserEmailConflict):
			return nil, ErrEmailConflict
		case errors.Is(err, repositories.ErrUserPhoneConflict):
			return nil, ErrPhoneConflict
		case errors.Is(err, repositories.ErrUserRegNoConflict):
			return nil, ErrRegNoConflict
		}
		return nil, fmt.Errorf("failed to add member to team %d: %w", teamID, err)
	}

	s.publisher.Publish(events.TypeMemberAdded, map[string]interface{}{
		"team_id": teamID,
		"user_id": member.ID,
	})
	return member, nil
}

func (s *rosterService) RemoveMember(ctx context.Context, teamID, userID, actorID int) error {
	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return ErrTeamNotFound
		}
		return fmt.Errorf("failed to get team %d: %w", teamID, err)
	}
	if team.LeaderID == nil || *team.LeaderID != actorID {
		return ErrLeaderActionForbidden
	}
	if *team.LeaderID == userID {
		return ErrCannotRemoveLeader
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	if user.TeamID == nil || *user.TeamID != teamID {
		return ErrUserNotOnTeam
	}

	// Payment status is deliberately untouched: removal is a membership
	// change, not a refund.
	if err := s.userRepo.ClearTeam(ctx, nil, userID); err != nil {
		return fmt.Errorf("failed to remove user %d from team %d: %w", userID, teamID, err)
	}

	s.publisher.Publish(events.TypeMemberRemoved, map[string]interface{}{
		"team_id": teamID,
		"user_id": userID,
	})
	return nil
}

func (s *rosterService) LeaveTeam(ctx context.Context, userID int) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	if user.TeamID == nil {
		return ErrUserNotOnTeam
	}
	if user.Role == models.RoleLeader {
		return ErrLeaderCannotLeave
	}

	teamID := *user.TeamID
	if err := s.userRepo.ClearTeam(ctx, nil, userID); err != nil {
		return fmt.Errorf("failed to leave team %d: %w", teamID, err)
	}

	s.publisher.Publish(events.TypeMemberRemoved, map[string]interface{}{
		"team_id": teamID,
		"user_id": userID,
	})
	return nil
}

func (s *rosterService) DisbandTeam(ctx context.Context, teamID, actorID int) error {
	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return ErrTeamNotFound
		}
		return fmt.Errorf("failed to get team %d: %w", teamID, err)
	}
	if team.LeaderID == nil || *team.LeaderID != actorID {
		return ErrLeaderActionForbidden
	}

	// Bulk-paid status was contingent on the team, so disbanding a BULK squad
	// drops every member back to UNPAID. Individual payments stand on their
	// own and survive the disband.
	resetStatus := team.PaymentMode == models.PaymentBulk

	err = s.tx.InTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.userRepo.ReleaseAllFromTeam(ctx, exec, teamID, resetStatus); err != nil {
			return err
		}
		if err := s.requestRepo.DeleteByTeamID(ctx, exec, teamID); err != nil {
			return err
		}
		return s.teamRepo.Delete(ctx, exec, teamID)
	})
	if err != nil {
		return fmt.Errorf("failed to disband team %d: %w", teamID, err)
	}

	s.publisher.Publish(events.TypeTeamDisbanded, map[string]interface{}{
		"team_id": teamID,
		"name":    team.Name,
	})
	return nil
}

func (s *rosterService) UpdateTeamSettings(ctx context.Context, teamID, actorID int, patch TeamSettingsPatch) error {
	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return ErrTeamNotFound
		}
		return fmt.Errorf("failed to get team %d: %w", teamID, err)
	}
	if team.LeaderID == nil || *team.LeaderID != actorID {
		return ErrLeaderActionForbidden
	}

	name := team.Name
	if patch.Name != nil {
		if *patch.Name == "" {
			return ErrTeamNameRequired
		}
		name = *patch.Name
	}

	maxMembers := team.MaxMembers
	if patch.MaxMembers != nil {
		count, err := s.userRepo.CountByTeamID(ctx, nil, teamID)
		if err != nil {
			return fmt.Errorf("failed to count members of team %d: %w", teamID, err)
		}
		if *patch.MaxMembers < count {
			return ErrInvalidCapacity
		}
		maxMembers = *patch.MaxMembers
	}

	if err := s.teamRepo.UpdateSettings(ctx, teamID, name, maxMembers); err != nil {
		if errors.Is(err, repositories.ErrTeamNameConflict) {
			return ErrTeamNameConflict
		}
		return fmt.Errorf("failed to update team %d: %w", teamID, err)
	}

	s.publisher.Publish(events.TypeTeamUpdated, map[string]interface{}{
		"team_id":     teamID,
		"name":        name,
		"max_members": maxMembers,
	})
	return nil
}
