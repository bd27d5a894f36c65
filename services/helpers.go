package services

import (
	"crypto/rand"
	"fmt"

	"github.com/ak-bharadwaj/concurrence2k26-sub000/models"
)

// joinCodeAlphabet excludes 0/O and 1/I so codes survive being read out loud
// at a registration desk.
const (
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	joinCodeLength   = 6
)

func generateJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate join code: %w", err)
	}
	for i, b := range buf {
		buf[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(buf), nil
}

// isValidStatusTransition encodes the verification state machine:
// UNPAID -> {PENDING, VERIFYING} -> {APPROVED, REJECTED}. Staff may bounce a
// record between PENDING and VERIFYING while reviewing; APPROVED and REJECTED
// are terminal.
func isValidStatusTransition(current, next models.UserStatus) bool {
	if current == next {
		return true
	}
	allowed := map[models.UserStatus][]models.UserStatus{
		models.StatusUnpaid:    {models.StatusPending, models.StatusVerifying},
		models.StatusPending:   {models.StatusVerifying, models.StatusApproved, models.StatusRejected},
		models.StatusVerifying: {models.StatusPending, models.StatusApproved, models.StatusRejected},
		models.StatusApproved:  {},
		models.StatusRejected:  {},
	}
	for _, s := range allowed[current] {
		if next == s {
			return true
		}
	}
	return false
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
