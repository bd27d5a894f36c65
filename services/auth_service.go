package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ak-bharadwaj/concurrence2k26-sub000/models"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/repositories"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type RegisterInput struct {
	Name     string `json:"name"`
	RegNo    string `json:"reg_no"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	College  string `json:"college"`
	Branch   string `json:"branch"`
	Year     int    `json:"year"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthService registers participants and checks credentials for both
// participants and staff. Token minting lives in the HTTP layer.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*models.User, error)
	Login(ctx context.Context, input LoginInput) (*models.User, error)
	AdminLogin(ctx context.Context, input LoginInput) (*models.Admin, error)
}

type authService struct {
	userRepo  repositories.UserRepository
	adminRepo repositories.AdminRepository
	notifier  Notifier
	logger    *slog.Logger
}

func NewAuthService(userRepo repositories.UserRepository, adminRepo repositories.AdminRepository, notifier Notifier, logger *slog.Logger) AuthService {
	return &authService{
		userRepo:  userRepo,
		adminRepo: adminRepo,
		notifier:  notifier,
		logger:    logger,
	}
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	if len(input.Password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	hash := string(hashed)

	user := &models.User{
		Name:         strings.TrimSpace(input.Name),
		RegNo:        strings.ToUpper(strings.TrimSpace(input.RegNo)),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:        strings.TrimSpace(input.Phone),
		College:      strings.TrimSpace(input.College),
		Branch:       strings.TrimSpace(input.Branch),
		Year:         input.Year,
		Role:         models.RoleMember,
		Status:       models.StatusUnpaid,
		PasswordHash: &hash,
	}

	if err := s.userRepo.Create(ctx, nil, user); err != nil {
		switch {
		case errors.Is(err, repositories.ErrUserEmailConflict):
			return nil, ErrEmailConflict
		case errors.Is(err, repositories.ErrUserPhoneConflict):
			return nil, ErrPhoneConflict
		case errors.Is(err, repositories.ErrUserRegNoConflict):
			return nil, ErrRegNoConflict
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	go func() {
		err := s.notifier.Notify(user.Email, TemplateWelcome, map[string]interface{}{
			"Name":  user.Name,
			"RegNo": user.RegNo,
		})
		if err != nil {
			s.logger.Warn("failed to send welcome mail", slog.Any("error", err))
		}
	}()

	user.PasswordHash = nil
	return user, nil
}

func (s *authService) Login(ctx context.Context, input LoginInput) (*models.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(input.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to compare password hash: %w", err)
	}

	user.PasswordHash = nil
	return user, nil
}

func (s *authService) AdminLogin(ctx context.Context, input LoginInput) (*models.Admin, error) {
	admin, err := s.adminRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		if errors.Is(err, repositories.ErrAdminNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find admin by email: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(input.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to compare password hash: %w", err)
	}

	admin.PasswordHash = ""
	return admin, nil
}
