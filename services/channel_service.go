package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ak-bharadwaj/concurrence2k26-sub000/models"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/repositories"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/storage"
)

type CreateChannelInput struct {
	Name       string  `json:"name"`
	UpiID      string  `json:"upi_id"`
	Amount     int     `json:"amount"`
	DailyLimit int     `json:"daily_limit"`
	ImageKey   *string `json:"image_key"`
}

// ChannelService picks a payment-collection channel for a requested amount,
// load-balancing by usage counter. It is an approximate balancer, not a
// quota enforcer: it never verifies that a payment actually happened.
type ChannelService interface {
	Allocate(ctx context.Context, amount int) (*models.PaymentChannel, error)
	AmountDue(ctx context.Context, userID int) (int, error)

	CreateChannel(ctx context.Context, input CreateChannelInput) (*models.PaymentChannel, error)
	DeactivateChannel(ctx context.Context, id int) error
	ResetUsage(ctx context.Context, id int) error
	ListChannels(ctx context.Context) ([]*models.PaymentChannel, error)
}

type channelService struct {
	channelRepo repositories.PaymentChannelRepository
	userRepo    repositories.UserRepository
	uploader    storage.FileUploader
	feeAmount   int
}

func NewChannelService(
	channelRepo repositories.PaymentChannelRepository,
	userRepo repositories.UserRepository,
	uploader storage.FileUploader,
	feeAmount int,
) ChannelService {
	return &channelService{
		channelRepo: channelRepo,
		userRepo:    userRepo,
		uploader:    uploader,
		feeAmount:   feeAmount,
	}
}

func (s *channelService) Allocate(ctx context.Context, amount int) (*models.PaymentChannel, error) {
	channels, err := s.channelRepo.ListActiveByAmount(ctx, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels for amount %d: %w", amount, err)
	}

	// Channels arrive ordered by usage then creation time. The listing is
	// advisory; the conditional UPDATE inside IncrementUsage is what holds
	// the daily cap, so a channel that filled up (or was deactivated) since
	// the read is skipped, never overrun.
	for _, channel := range channels {
		if channel.UsageCount >= channel.DailyLimit {
			continue
		}
		applied, err := s.channelRepo.IncrementUsage(ctx, channel.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to increment usage of channel %d: %w", channel.ID, err)
		}
		if !applied {
			continue
		}
		channel.UsageCount++
		s.populateImageURL(channel)
		return channel, nil
	}

	return nil, ErrNoChannelAvailable
}

func (s *channelService) AmountDue(ctx context.Context, userID int) (int, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to get user %d: %w", userID, err)
	}

	if user.Team == nil || user.Team.PaymentMode != models.PaymentBulk || user.Role != models.RoleLeader {
		return s.feeAmount, nil
	}

	members, err := s.userRepo.ListByTeamID(ctx, nil, user.Team.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list members of team %d: %w", user.Team.ID, err)
	}

	unpaid := 0
	for _, member := range members {
		if member.Status == models.StatusUnpaid {
			unpaid++
		}
	}
	if unpaid == 0 {
		// Everyone already paid individually; floor at one unit so the
		// leader never requests a zero-amount channel.
		return s.feeAmount, nil
	}
	return s.feeAmount * unpaid, nil
}

func (s *channelService) CreateChannel(ctx context.Context, input CreateChannelInput) (*models.PaymentChannel, error) {
	if input.Amount <= 0 {
		return nil, errors.New("channel amount must be positive")
	}
	if input.DailyLimit <= 0 {
		return nil, errors.New("channel daily limit must be positive")
	}

	channel := &models.PaymentChannel{
		Name:       input.Name,
		UpiID:      input.UpiID,
		Amount:     input.Amount,
		DailyLimit: input.DailyLimit,
		Active:     true,
		ImageKey:   input.ImageKey,
	}
	if err := s.channelRepo.Create(ctx, channel); err != nil {
		return nil, err
	}
	s.populateImageURL(channel)
	return channel, nil
}

func (s *channelService) DeactivateChannel(ctx context.Context, id int) error {
	if err := s.channelRepo.SetActive(ctx, id, false); err != nil {
		if errors.Is(err, repositories.ErrChannelNotFound) {
			return ErrChannelNotFound
		}
		return err
	}
	return nil
}

// ResetUsage is the operator-driven daily counter reset; the allocator never
// resets counters on its own.
func (s *channelService) ResetUsage(ctx context.Context, id int) error {
	if err := s.channelRepo.ResetUsage(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrChannelNotFound) {
			return ErrChannelNotFound
		}
		return err
	}
	return nil
}

func (s *channelService) ListChannels(ctx context.Context) ([]*models.PaymentChannel, error) {
	channels, err := s.channelRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, channel := range channels {
		s.populateImageURL(channel)
	}
	return channels, nil
}

func (s *channelService) populateImageURL(channel *models.PaymentChannel) {
	if channel == nil || channel.ImageKey == nil || *channel.ImageKey == "" || s.uploader == nil {
		return
	}
	url := s.uploader.GetPublicURL(*channel.ImageKey)
	if url != "" {
		channel.ImageURL = &url
	}
}
