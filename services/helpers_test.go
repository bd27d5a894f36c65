package services

import (
	"strings"
	"testing"

	"github.com/ak-bharadwaj/concurrence2k26-sub000/models"
)

func TestGenerateJoinCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := generateJoinCode()
		if err != nil {
			t.Fatalf("generateJoinCode: %v", err)
		}
		if len(code) != joinCodeLength {
			t.Fatalf("expected %d characters, got %q", joinCodeLength, code)
		}
		for _, c := range code {
			if !strings.ContainsRune(joinCodeAlphabet, c) {
				t.Fatalf("character %q outside the alphabet in %q", c, code)
			}
		}
		for _, ambiguous := range "0O1I" {
			if strings.ContainsRune(code, ambiguous) {
				t.Fatalf("ambiguous character %q in %q", ambiguous, code)
			}
		}
		seen[code] = true
	}
	// Not a collision proof, just a sanity check that codes vary.
	if len(seen) < 90 {
		t.Errorf("expected mostly distinct codes, got %d distinct of 100", len(seen))
	}
}

func TestStatusTransitionMatrix(t *testing.T) {
	all := []models.UserStatus{
		models.StatusUnpaid, models.StatusPending, models.StatusVerifying,
		models.StatusApproved, models.StatusRejected,
	}

	allowed := map[models.UserStatus]map[models.UserStatus]bool{
		models.StatusUnpaid:    {models.StatusPending: true, models.StatusVerifying: true},
		models.StatusPending:   {models.StatusVerifying: true, models.StatusApproved: true, models.StatusRejected: true},
		models.StatusVerifying: {models.StatusPending: true, models.StatusApproved: true, models.StatusRejected: true},
		models.StatusApproved:  {},
		models.StatusRejected:  {},
	}

	for _, from := range all {
		for _, to := range all {
			want := from == to || allowed[from][to]
			if got := isValidStatusTransition(from, to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestDerefString(t *testing.T) {
	if got := derefString(nil); got != "" {
		t.Errorf("nil: got %q", got)
	}
	s := "value"
	if got := derefString(&s); got != "value" {
		t.Errorf("non-nil: got %q", got)
	}
}
