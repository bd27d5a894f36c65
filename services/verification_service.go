package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ak-bharadwaj/concurrence2k26-sub000/events"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/models"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/repositories"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/storage"
	"golang.org/x/sync/errgroup"
)

// requestCompleter is the slice of the join request broker the verification
// engine needs: close out a payer's open requests.
type requestCompleter interface {
	AutoComplete(ctx context.Context, userID int) error
}

// VerificationService owns the payment status state machine, including the
// cascade that propagates a leader's approval to a bulk-paying squad.
type VerificationService interface {
	SubmitPayment(ctx context.Context, userID int, transactionID, proofURL string, channelID int) error

	// SetStatus is the only mover across {PENDING, VERIFYING, APPROVED,
	// REJECTED}. REJECTED permanently deletes the user row (rejection is a
	// purge, not a soft flag); the rejection mail goes to the last known
	// address and the ActionLog entry is the surviving audit trail.
	SetStatus(ctx context.Context, userID, actorID int, newStatus models.UserStatus) error

	MarkAttendance(ctx context.Context, userID, actorID int, attended bool) error
	GetUser(ctx context.Context, userID int) (*models.User, error)
	FindUserByRegNo(ctx context.Context, regNo string) (*models.User, error)
	ListByStatus(ctx context.Context, status models.UserStatus) ([]models.User, error)
	ListActionLog(ctx context.Context, userID int) ([]*models.ActionLog, error)
}

type verificationService struct {
	tx          repositories.Transactor
	userRepo    repositories.UserRepository
	channelRepo repositories.PaymentChannelRepository
	logRepo     repositories.ActionLogRepository
	requests    requestCompleter
	notifier    Notifier
	publisher   events.Publisher
	uploader    storage.FileUploader
	logger      *slog.Logger

	communityLink string
}

func NewVerificationService(
	tx repositories.Transactor,
	userRepo repositories.UserRepository,
	channelRepo repositories.PaymentChannelRepository,
	logRepo repositories.ActionLogRepository,
	requests requestCompleter,
	notifier Notifier,
	publisher events.Publisher,
	uploader storage.FileUploader,
	logger *slog.Logger,
	communityLink string,
) VerificationService {
	return &verificationService{
		tx:            tx,
		userRepo:      userRepo,
		channelRepo:   channelRepo,
		logRepo:       logRepo,
		requests:      requests,
		notifier:      notifier,
		publisher:     publisher,
		uploader:      uploader,
		logger:        logger,
		communityLink: communityLink,
	}
}

func (s *verificationService) SubmitPayment(ctx context.Context, userID int, transactionID, proofURL string, channelID int) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	if user.Status != models.StatusUnpaid {
		// No resubmission once under review; disputes go through support,
		// not through a second SubmitPayment.
		return ErrInvalidStatusTransition
	}

	if _, err := s.channelRepo.GetByID(ctx, channelID); err != nil {
		if errors.Is(err, repositories.ErrChannelNotFound) {
			return ErrChannelNotFound
		}
		return fmt.Errorf("failed to get channel %d: %w", channelID, err)
	}

	applied, err := s.userRepo.SetPaymentProof(ctx, userID, transactionID, proofURL, channelID)
	if err != nil {
		return fmt.Errorf("failed to store payment proof for user %d: %w", userID, err)
	}
	if !applied {
		// Lost a race with another submission of the same proof.
		return ErrInvalidStatusTransition
	}

	// A payer is no longer recruitable: close their open join requests. The
	// status change already committed, so a failure here is reported rather
	// than rolled back; AutoComplete is idempotent and safe to re-run.
	if err := s.requests.AutoComplete(ctx, userID); err != nil {
		return fmt.Errorf("payment recorded but failed to complete open join requests: %w", err)
	}

	s.dispatchMail(user.Email, TemplatePaymentReceived, map[string]interface{}{
		"Name":          user.Name,
		"TransactionID": transactionID,
	})
	s.publisher.Publish(events.TypePaymentSubmitted, map[string]interface{}{
		"user_id":    userID,
		"channel_id": channelID,
	})
	return nil
}

func (s *verificationService) SetStatus(ctx context.Context, userID, actorID int, newStatus models.UserStatus) error {
	switch newStatus {
	case models.StatusPending, models.StatusVerifying, models.StatusApproved, models.StatusRejected:
	default:
		return ErrInvalidStatusTransition
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user %d: %w", userID, err)
	}

	if user.Status == newStatus {
		// Idempotent re-run, nothing to apply.
		return nil
	}
	if !isValidStatusTransition(user.Status, newStatus) {
		return ErrInvalidStatusTransition
	}

	if newStatus == models.StatusRejected {
		return s.reject(ctx, user, actorID)
	}

	cascade := newStatus == models.StatusApproved &&
		user.Role == models.RoleLeader &&
		user.Team != nil &&
		user.Team.PaymentMode == models.PaymentBulk
	if cascade {
		return s.approveBulkTeam(ctx, user, actorID)
	}

	var applied bool
	err = s.tx.InTx(ctx, func(exec repositories.SQLExecutor) error {
		applied, err = s.userRepo.UpdateStatusGuarded(ctx, exec, user.ID, user.Status, newStatus)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		return s.logRepo.Create(ctx, exec, &models.ActionLog{
			AdminID:   actorID,
			UserID:    &user.ID,
			UserLabel: userLabel(user),
			Action:    fmt.Sprintf("status %s -> %s", user.Status, newStatus),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to set status of user %d: %w", userID, err)
	}
	if !applied {
		// Another admin got there first; their write stands.
		return nil
	}

	if newStatus == models.StatusApproved {
		s.dispatchMail(user.Email, TemplatePaymentVerified, s.verifiedMailArgs(user))
	}
	s.publishStatusChanged(user.ID, user.Status, newStatus)
	return nil
}

// approveBulkTeam applies the central rule of the engine: approving a bulk
// leader approves every teammate already under review. UNPAID teammates are
// skipped — they have submitted nothing to approve — and terminal teammates
// are never touched.
func (s *verificationService) approveBulkTeam(ctx context.Context, leader *models.User, actorID int) error {
	var approved []models.User

	err := s.tx.InTx(ctx, func(exec repositories.SQLExecutor) error {
		applied, err := s.userRepo.UpdateStatusGuarded(ctx, exec, leader.ID, leader.Status, models.StatusApproved)
		if err != nil {
			return err
		}
		if !applied {
			// Concurrent admin action on the leader; abort the cascade and
			// let their outcome stand.
			return nil
		}
		if err := s.logRepo.Create(ctx, exec, &models.ActionLog{
			AdminID:   actorID,
			UserID:    &leader.ID,
			UserLabel: userLabel(leader),
			Action:    fmt.Sprintf("status %s -> %s", leader.Status, models.StatusApproved),
		}); err != nil {
			return err
		}
		approved = append(approved, *leader)

		members, err := s.userRepo.ListByTeamID(ctx, exec, leader.Team.ID)
		if err != nil {
			return err
		}
		for _, member := range members {
			if member.ID == leader.ID {
				continue
			}
			if member.Status != models.StatusPending && member.Status != models.StatusVerifying {
				continue
			}
			applied, err := s.userRepo.UpdateStatusGuarded(ctx, exec, member.ID, member.Status, models.StatusApproved)
			if err != nil {
				return err
			}
			if !applied {
				continue
			}
			memberID := member.ID
			if err := s.logRepo.Create(ctx, exec, &models.ActionLog{
				AdminID:   actorID,
				UserID:    &memberID,
				UserLabel: userLabel(&member),
				Action:    fmt.Sprintf("status %s -> %s (bulk cascade)", member.Status, models.StatusApproved),
			}); err != nil {
				return err
			}
			approved = append(approved, member)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to approve bulk team of user %d: %w", leader.ID, err)
	}

	// Notifications fan out concurrently after the commit; failures are
	// logged, never unwound into the already-applied approvals.
	if len(approved) > 0 {
		go s.notifyApproved(approved)
	}
	for _, user := range approved {
		s.publishStatusChanged(user.ID, user.Status, models.StatusApproved)
	}
	return nil
}

func (s *verificationService) reject(ctx context.Context, user *models.User, actorID int) error {
	// Captured before the purge: the row is gone once the tx commits.
	email := user.Email
	label := userLabel(user)

	err := s.tx.InTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.logRepo.Create(ctx, exec, &models.ActionLog{
			AdminID:   actorID,
			UserID:    &user.ID,
			UserLabel: label,
			Action:    fmt.Sprintf("status %s -> REJECTED (record purged)", user.Status),
		}); err != nil {
			return err
		}
		return s.userRepo.Delete(ctx, exec, user.ID)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			// Already purged by a concurrent rejection.
			return nil
		}
		return fmt.Errorf("failed to reject user %d: %w", user.ID, err)
	}

	// The proof screenshot belongs to the purged record; remove the stored
	// object off the request path.
	if user.ProofURL != nil && s.uploader != nil {
		if key := proofObjectKey(*user.ProofURL); key != "" {
			go func() {
				if err := s.uploader.Delete(context.Background(), key); err != nil {
					s.logger.Warn("failed to delete proof object",
						slog.String("key", key), slog.Any("error", err))
				}
			}()
		}
	}

	s.dispatchMail(email, TemplatePaymentRejected, map[string]interface{}{
		"Name": user.Name,
	})
	s.publishStatusChanged(user.ID, user.Status, models.StatusRejected)
	return nil
}

// proofObjectKey recovers the storage key from a stored proof URL. The upload
// handler keys every proof object under proofs/.
func proofObjectKey(url string) string {
	i := strings.Index(url, "proofs/")
	if i < 0 {
		return ""
	}
	return url[i:]
}

func (s *verificationService) MarkAttendance(ctx context.Context, userID, actorID int, attended bool) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user %d: %w", userID, err)
	}

	if err := s.userRepo.SetAttendance(ctx, userID, attended); err != nil {
		return fmt.Errorf("failed to set attendance of user %d: %w", userID, err)
	}

	action := "attendance marked"
	if !attended {
		action = "attendance cleared"
	}
	if err := s.logRepo.Create(ctx, nil, &models.ActionLog{
		AdminID:   actorID,
		UserID:    &user.ID,
		UserLabel: userLabel(user),
		Action:    action,
	}); err != nil {
		s.logger.Error("failed to log attendance action",
			slog.Int("user_id", userID), slog.Any("error", err))
	}
	return nil
}

func (s *verificationService) GetUser(ctx context.Context, userID int) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *verificationService) FindUserByRegNo(ctx context.Context, regNo string) (*models.User, error) {
	user, err := s.userRepo.GetByRegNo(ctx, regNo)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *verificationService) ListByStatus(ctx context.Context, status models.UserStatus) ([]models.User, error) {
	return s.userRepo.ListByStatus(ctx, status)
}

func (s *verificationService) ListActionLog(ctx context.Context, userID int) ([]*models.ActionLog, error) {
	return s.logRepo.ListByUserID(ctx, userID)
}

func (s *verificationService) notifyApproved(users []models.User) {
	var g errgroup.Group
	for _, user := range users {
		user := user
		g.Go(func() error {
			return s.notifier.Notify(user.Email, TemplatePaymentVerified, s.verifiedMailArgs(&user))
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("failed to send one or more approval mails", slog.Any("error", err))
	}
}

func (s *verificationService) verifiedMailArgs(user *models.User) map[string]interface{} {
	ticketURL := ""
	if s.uploader != nil {
		ticketURL = s.uploader.GetPublicURL("tickets/" + user.RegNo + ".png")
	}
	return map[string]interface{}{
		"Name":          user.Name,
		"TicketURL":     ticketURL,
		"CommunityLink": s.communityLink,
	}
}

func (s *verificationService) dispatchMail(email string, kind TemplateKind, args map[string]interface{}) {
	go func() {
		if err := s.notifier.Notify(email, kind, args); err != nil {
			s.logger.Warn("failed to send notification",
				slog.String("kind", string(kind)), slog.Any("error", err))
		}
	}()
}

func (s *verificationService) publishStatusChanged(userID int, from, to models.UserStatus) {
	s.publisher.Publish(events.TypeStatusChanged, map[string]interface{}{
		"user_id": userID,
		"from":    from,
		"to":      to,
	})
}

func userLabel(user *models.User) string {
	return fmt.Sprintf("%s (%s)", user.Name, user.RegNo)
}
