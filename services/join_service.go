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

var ErrInvalidDecision = errors.New("decision must be ACCEPTED or REJECTED")

// JoinRequester identifies who is asking to join: a registered user by ID,
// or an unregistered candidate captured as a snapshot.
type JoinRequester struct {
	UserID    *int            `json:"user_id,omitempty"`
	Candidate *CandidateInput `json:"candidate,omitempty"`
}

// JoinRequestService mediates a non-member's request to join a squad and the
// leader's accept/reject decision.
type JoinRequestService interface {
	RequestJoin(ctx context.Context, joinCode string, requester JoinRequester) (*models.JoinRequest, error)
	Respond(ctx context.Context, requestID, actorID int, decision models.JoinRequestStatus) error
	ListPendingByTeam(ctx context.Context, teamID, actorID int) ([]*models.JoinRequest, error)

	// AutoComplete marks every non-terminal request by userID COMPLETED. The
	// verification engine calls it when the user submits a payment: someone
	// who has paid is no longer available to be recruited elsewhere.
	AutoComplete(ctx context.Context, userID int) error
}

type joinRequestService struct {
	tx          repositories.Transactor
	requestRepo repositories.JoinRequestRepository
	teamRepo    repositories.TeamRepository
	userRepo    repositories.UserRepository
	notifier    Notifier
	publisher   events.Publisher
	logger      *slog.Logger
}

func NewJoinRequestService(
	tx repositories.Transactor,
	requestRepo repositories.JoinRequestRepository,
	teamRepo repositories.TeamRepository,
	userRepo repositories.UserRepository,
	notifier Notifier,
	publisher events.Publisher,
	logger *slog.Logger,
) JoinRequestService {
	return &joinRequestService{
		tx:          tx,
		requestRepo: requestRepo,
		teamRepo:    teamRepo,
		userRepo:    userRepo,
		notifier:    notifier,
		publisher:   publisher,
		logger:      logger,
	}
}

func (s *joinRequestService) RequestJoin(ctx context.Context, joinCode string, requester JoinRequester) (*models.JoinRequest, error) {
	team, err := s.teamRepo.GetByJoinCode(ctx, joinCode)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to resolve join code: %w", err)
	}

	request := &models.JoinRequest{
		TeamID: team.ID,
		Status: models.RequestPending,
	}

	switch {
	case requester.UserID != nil:
		user, err := s.userRepo.GetByID(ctx, *requester.UserID)
		if err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, fmt.Errorf("failed to get requester %d: %w", *requester.UserID, err)
		}
		if user.TeamID != nil {
			return nil, ErrUserAlreadyInTeam
		}

		// Idempotent: a second request while one is PENDING returns the
		// existing one instead of duplicating it.
		existing, err := s.requestRepo.FindPendingByTeamAndUser(ctx, team.ID, user.ID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repositories.ErrRequestNotFound) {
			return nil, fmt.Errorf("failed to check for pending request: %w", err)
		}
		request.UserID = &user.ID

	case requester.Candidate != nil:
		c := requester.Candidate
		existing, err := s.requestRepo.FindPendingByTeamAndEmail(ctx, team.ID, c.Email)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repositories.ErrRequestNotFound) {
			return nil, fmt.Errorf("failed to check for pending request: %w", err)
		}
		request.CandidateName = &c.Name
		request.CandidateEmail = &c.Email
		request.CandidatePhone = &c.Phone
		request.CandidateRegNo = &c.RegNo
		request.CandidateCollege = &c.College

	default:
		return nil, errors.New("requester must carry a user id or a candidate snapshot")
	}

	if err := s.requestRepo.Create(ctx, request); err != nil {
		switch {
		case errors.Is(err, repositories.ErrRequestDuplicate):
			// Lost a race with an identical concurrent request; the pending
			// uniqueness index kept one row, return it.
			if request.UserID != nil {
				return s.requestRepo.FindPendingByTeamAndUser(ctx, team.ID, *request.UserID)
			}
			return s.requestRepo.FindPendingByTeamAndEmail(ctx, team.ID, *request.CandidateEmail)
		case errors.Is(err, repositories.ErrRequestTeamInvalid):
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to create join request: %w", err)
	}

	s.publisher.Publish(events.TypeRequestCreated, map[string]interface{}{
		"request_id": request.ID,
		"team_id":    team.ID,
	})
	return request, nil
}

func (s *joinRequestService) Respond(ctx context.Context, requestID, actorID int, decision models.JoinRequestStatus) error {
	if decision != models.RequestAccepted && decision != models.RequestRejected {
		return ErrInvalidDecision
	}

	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repositories.ErrRequestNotFound) {
			return ErrRequestNotFound
		}
		return fmt.Errorf("failed to get join request %d: %w", requestID, err)
	}
	if request.Status != models.RequestPending {
		return ErrRequestAlreadyResolved
	}

	team, err := s.teamRepo.GetByID(ctx, request.TeamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return ErrTeamNotFound
		}
		return fmt.Errorf("failed to get team %d: %w", request.TeamID, err)
	}
	if team.LeaderID == nil || *team.LeaderID != actorID {
		return ErrLeaderActionForbidden
	}

	if err := s.populateRequester(ctx, request); err != nil {
		return err
	}

	if decision == models.RequestRejected {
		applied, err := s.requestRepo.Resolve(ctx, nil, request.ID, models.RequestRejected)
		if err != nil {
			return fmt.Errorf("failed to reject request %d: %w", request.ID, err)
		}
		if !applied {
			return ErrRequestAlreadyResolved
		}
		s.notifyResolution(request, team, TemplateJoinRejected)
		s.publishResolved(request.ID, team.ID, models.RequestRejected)
		return nil
	}

	return s.accept(ctx, request, team)
}

func (s *joinRequestService) accept(ctx context.Context, request *models.JoinRequest, team *models.Team) error {
	var memberCount int
	err := s.tx.InTx(ctx, func(exec repositories.SQLExecutor) error {
		// Capacity is re-checked at decision time, not request time: the
		// roster may have filled up since the request was raised. On
		// ErrTeamFull the request deliberately stays PENDING.
		count, err := s.userRepo.CountByTeamID(ctx, exec, team.ID)
		if err != nil {
			return err
		}
		if count >= team.MaxMembers {
			return ErrTeamFull
		}

		if request.User != nil {
			if request.User.TeamID != nil {
				return ErrUserAlreadyInTeam
			}
			if err := s.userRepo.AssignTeam(ctx, exec, request.User.ID, team.ID, models.RoleMember); err != nil {
				return err
			}
		} else {
			member := &models.User{
				Name:    derefString(request.CandidateName),
				RegNo:   derefString(request.CandidateRegNo),
				Email:   derefString(request.CandidateEmail),
				Phone:   derefString(request.CandidatePhone),
				College: derefString(request.CandidateCollege),
				TeamID:  &team.ID,
				Role:    models.RoleMember,
				Status:  models.StatusUnpaid,
			}
			if err := s.userRepo.Create(ctx, exec, member); err != nil {
				return err
			}
			request.User = member
		}

		applied, err := s.requestRepo.Resolve(ctx, exec, request.ID, models.RequestAccepted)
		if err != nil {
			return err
		}
		if !applied {
			return ErrRequestAlreadyResolved
		}

		memberCount = count + 1
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrTeamFull),
			errors.Is(err, ErrUserAlreadyInTeam),
			errors.Is(err, ErrRequestAlreadyResolved):
			return err
		case errors.Is(err, repositories.ErrUserEmailConflict):
			return ErrEmailConflict
		case errors.Is(err, repositories.ErrUserPhoneConflict):
			return ErrPhoneConflict
		case errors.Is(err, repositories.ErrUserRegNoConflict):
			return ErrRegNoConflict
		}
		return fmt.Errorf("failed to accept request %d: %w", request.ID, err)
	}

	s.notifyResolution(request, team, TemplateJoinAccepted)
	s.publishResolved(request.ID, team.ID, models.RequestAccepted)
	s.publisher.Publish(events.TypeMemberAdded, map[string]interface{}{
		"team_id": team.ID,
		"user_id": request.User.ID,
	})

	// Accepting may have filled the last slot; everyone else still waiting
	// gets a courtesy rejection.
	if memberCount >= team.MaxMembers {
		s.rejectRemaining(ctx, team)
	}
	return nil
}

func (s *joinRequestService) ListPendingByTeam(ctx context.Context, teamID, actorID int) ([]*models.JoinRequest, error) {
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

	pending, err := s.requestRepo.ListPendingByTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests of team %d: %w", teamID, err)
	}
	return pending, nil
}

func (s *joinRequestService) rejectRemaining(ctx context.Context, team *models.Team) {
	pending, err := s.requestRepo.ListPendingByTeam(ctx, team.ID)
	if err != nil {
		s.logger.Error("failed to list pending requests for courtesy rejection",
			slog.Int("team_id", team.ID), slog.Any("error", err))
		return
	}

	for _, other := range pending {
		applied, err := s.requestRepo.Resolve(ctx, nil, other.ID, models.RequestRejected)
		if err != nil {
			s.logger.Error("failed to courtesy-reject request",
				slog.Int("request_id", other.ID), slog.Any("error", err))
			continue
		}
		if !applied {
			continue
		}
		if err := s.populateRequester(ctx, other); err != nil {
			s.logger.Warn("failed to resolve requester for courtesy rejection",
				slog.Int("request_id", other.ID), slog.Any("error", err))
		}
		s.notifyResolution(other, team, TemplateJoinRejected)
		s.publishResolved(other.ID, team.ID, models.RequestRejected)
	}
}

func (s *joinRequestService) AutoComplete(ctx context.Context, userID int) error {
	pending, err := s.requestRepo.ListPendingByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list pending requests of user %d: %w", userID, err)
	}

	for _, request := range pending {
		applied, err := s.requestRepo.Resolve(ctx, nil, request.ID, models.RequestCompleted)
		if err != nil {
			return fmt.Errorf("failed to complete request %d: %w", request.ID, err)
		}
		if applied {
			s.publishResolved(request.ID, request.TeamID, models.RequestCompleted)
		}
	}
	return nil
}

func (s *joinRequestService) populateRequester(ctx context.Context, request *models.JoinRequest) error {
	if request.UserID == nil || request.User != nil {
		return nil
	}
	user, err := s.userRepo.GetByID(ctx, *request.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get requester %d: %w", *request.UserID, err)
	}
	request.User = user
	return nil
}

// notifyResolution sends the join decision mail off the request path. A
// delivery failure is logged, never propagated: the decision already stands.
func (s *joinRequestService) notifyResolution(request *models.JoinRequest, team *models.Team, kind TemplateKind) {
	email := request.RequesterEmail()
	if email == "" {
		return
	}
	go func() {
		err := s.notifier.Notify(email, kind, map[string]interface{}{
			"TeamName": team.Name,
		})
		if err != nil {
			s.logger.Warn("failed to send join decision mail",
				slog.String("kind", string(kind)), slog.Any("error", err))
		}
	}()
}

func (s *joinRequestService) publishResolved(requestID, teamID int, status models.JoinRequestStatus) {
	s.publisher.Publish(events.TypeRequestResolved, map[string]interface{}{
		"request_id": requestID,
		"team_id":    teamID,
		"status":     status,
	})
}
