package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/ak-bharadwaj/concurrence2k26-sub000/models"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/repositories"
)

type rosterFixture struct {
	users     *fakeUserRepo
	teams     *fakeTeamRepo
	requests  *fakeRequestRepo
	publisher *recorderPublisher
	svc       RosterService
}

func newRosterFixture() *rosterFixture {
	users := newFakeUserRepo()
	teams := newFakeTeamRepo()
	users.teams = teams
	requests := newFakeRequestRepo()
	publisher := &recorderPublisher{}
	svc := NewRosterService(fakeTransactor{}, teams, users, requests, publisher, testLogger())
	return &rosterFixture{
		users:     users,
		teams:     teams,
		requests:  requests,
		publisher: publisher,
		svc:       svc,
	}
}

func (f *rosterFixture) seedUser(t *testing.T, name string) *models.User {
	t.Helper()
	user := &models.User{
		Name:   name,
		RegNo:  strings.ToUpper(name) + "-001",
		Email:  strings.ToLower(name) + "@college.edu",
		Phone:  fmt.Sprintf("%s-%d", name, len(f.users.users)+1),
		Role:   models.RoleMember,
		Status: models.StatusUnpaid,
	}
	if err := f.users.Create(context.Background(), nil, user); err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return user
}

func (f *rosterFixture) seedTeam(t *testing.T, leaderName string, mode models.PaymentMode, maxMembers int) (*models.Team, *models.User) {
	t.Helper()
	leader := f.seedUser(t, leaderName)
	team, err := f.svc.CreateTeam(context.Background(), CreateTeamInput{
		Name:        leaderName + "-squad",
		PaymentMode: mode,
		MaxMembers:  maxMembers,
		CreatorID:   leader.ID,
	})
	if err != nil {
		t.Fatalf("seed team: %v", err)
	}
	return team, leader
}

func TestCreateTeamAssignsLeader(t *testing.T) {
	f := newRosterFixture()
	creator := f.seedUser(t, "asha")

	team, err := f.svc.CreateTeam(context.Background(), CreateTeamInput{
		Name:        "Null Pointers",
		PaymentMode: models.PaymentBulk,
		CreatorID:   creator.ID,
	})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	if team.LeaderID == nil || *team.LeaderID != creator.ID {
		t.Errorf("expected leader %d, got %v", creator.ID, team.LeaderID)
	}
	if team.MaxMembers != models.DefaultMaxMembers {
		t.Errorf("expected default capacity %d, got %d", models.DefaultMaxMembers, team.MaxMembers)
	}
	if len(team.JoinCode) != 6 {
		t.Errorf("expected 6-character join code, got %q", team.JoinCode)
	}
	for _, c := range team.JoinCode {
		if !strings.ContainsRune(joinCodeAlphabet, c) {
			t.Errorf("join code %q contains character outside the alphabet", team.JoinCode)
		}
	}

	stored, err := f.users.GetByID(context.Background(), creator.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.TeamID == nil || *stored.TeamID != team.ID {
		t.Errorf("creator not assigned to team: %v", stored.TeamID)
	}
	if stored.Role != models.RoleLeader {
		t.Errorf("expected creator role LEADER, got %s", stored.Role)
	}
}

func TestCreateTeamValidation(t *testing.T) {
	f := newRosterFixture()
	creator := f.seedUser(t, "ravi")

	_, err := f.svc.CreateTeam(context.Background(), CreateTeamInput{
		PaymentMode: models.PaymentBulk,
		CreatorID:   creator.ID,
	})
	if !errors.Is(err, ErrTeamNameRequired) {
		t.Errorf("empty name: expected ErrTeamNameRequired, got %v", err)
	}

	_, err = f.svc.CreateTeam(context.Background(), CreateTeamInput{
		Name:        "Segfault Society",
		PaymentMode: "SPLIT",
		CreatorID:   creator.ID,
	})
	if !errors.Is(err, ErrInvalidPaymentMode) {
		t.Errorf("bad mode: expected ErrInvalidPaymentMode, got %v", err)
	}
}

func TestCreateTeamCreatorAlreadyOnTeam(t *testing.T) {
	f := newRosterFixture()
	_, leader := f.seedTeam(t, "meera", models.PaymentIndividual, 4)

	_, err := f.svc.CreateTeam(context.Background(), CreateTeamInput{
		Name:        "Second Squad",
		PaymentMode: models.PaymentIndividual,
		CreatorID:   leader.ID,
	})
	if !errors.Is(err, ErrUserAlreadyInTeam) {
		t.Errorf("expected ErrUserAlreadyInTeam, got %v", err)
	}
}

func TestAddMemberLeaderGateAndCapacity(t *testing.T) {
	f := newRosterFixture()
	team, leader := f.seedTeam(t, "kiran", models.PaymentBulk, 2)
	outsider := f.seedUser(t, "zoya")

	_, err := f.svc.AddMember(context.Background(), team.ID, outsider.ID, CandidateInput{
		Name: "Dev", Email: "dev@college.edu", Phone: "900", RegNo: "DEV-1", College: "NIT",
	})
	if !errors.Is(err, ErrLeaderActionForbidden) {
		t.Fatalf("non-leader add: expected ErrLeaderActionForbidden, got %v", err)
	}

	member, err := f.svc.AddMember(context.Background(), team.ID, leader.ID, CandidateInput{
		Name: "Dev", Email: "dev@college.edu", Phone: "900", RegNo: "DEV-1", College: "NIT",
	})
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if member.Status != models.StatusUnpaid {
		t.Errorf("new member should start UNPAID, got %s", member.Status)
	}
	if member.Role != models.RoleMember {
		t.Errorf("new member should be MEMBER, got %s", member.Role)
	}

	// Roster is now full (leader + one member, cap 2).
	_, err = f.svc.AddMember(context.Background(), team.ID, leader.ID, CandidateInput{
		Name: "Tara", Email: "tara@college.edu", Phone: "901", RegNo: "TARA-1", College: "NIT",
	})
	if !errors.Is(err, ErrTeamFull) {
		t.Errorf("expected ErrTeamFull, got %v", err)
	}
}

func TestAddMemberReparentsExistingUser(t *testing.T) {
	f := newRosterFixture()
	team, leader := f.seedTeam(t, "noor", models.PaymentIndividual, 3)
	existing := f.seedUser(t, "vikram")

	member, err := f.svc.AddMember(context.Background(), team.ID, leader.ID, CandidateInput{
		Name: existing.Name, Email: existing.Email, Phone: existing.Phone,
		RegNo: existing.RegNo, College: existing.College,
	})
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if member.ID != existing.ID {
		t.Errorf("expected existing user %d to be re-parented, got new user %d", existing.ID, member.ID)
	}

	stored, _ := f.users.GetByID(context.Background(), existing.ID)
	if stored.TeamID == nil || *stored.TeamID != team.ID {
		t.Errorf("existing user not attached to team: %v", stored.TeamID)
	}
}

func TestAddMemberAlreadyOnAnotherTeam(t *testing.T) {
	f := newRosterFixture()
	teamA, leaderA := f.seedTeam(t, "anil", models.PaymentIndividual, 3)
	_, leaderB := f.seedTeam(t, "bala", models.PaymentIndividual, 3)

	_, err := f.svc.AddMember(context.Background(), teamA.ID, leaderA.ID, CandidateInput{
		Name: leaderB.Name, Email: leaderB.Email, Phone: leaderB.Phone,
		RegNo: leaderB.RegNo, College: leaderB.College,
	})
	if !errors.Is(err, ErrUserAlreadyInTeam) {
		t.Errorf("expected ErrUserAlreadyInTeam, got %v", err)
	}
}

func TestRemoveMemberRules(t *testing.T) {
	f := newRosterFixture()
	team, leader := f.seedTeam(t, "isha", models.PaymentIndividual, 4)
	member, err := f.svc.AddMember(context.Background(), team.ID, leader.ID, CandidateInput{
		Name: "Rahul", Email: "rahul@college.edu", Phone: "902", RegNo: "RAH-1", College: "NIT",
	})
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	if err := f.svc.RemoveMember(context.Background(), team.ID, leader.ID, leader.ID); !errors.Is(err, ErrCannotRemoveLeader) {
		t.Errorf("removing leader: expected ErrCannotRemoveLeader, got %v", err)
	}
	if err := f.svc.RemoveMember(context.Background(), team.ID, member.ID, member.ID); !errors.Is(err, ErrLeaderActionForbidden) {
		t.Errorf("member removing: expected ErrLeaderActionForbidden, got %v", err)
	}

	// Mark the member paid, then remove; status must survive.
	if _, err := f.users.SetPaymentProof(context.Background(), member.ID, "TXN1", "", 1); err != nil {
		t.Fatalf("SetPaymentProof: %v", err)
	}
	if err := f.svc.RemoveMember(context.Background(), team.ID, member.ID, leader.ID); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}

	stored, _ := f.users.GetByID(context.Background(), member.ID)
	if stored.TeamID != nil {
		t.Errorf("removed member still on team: %v", stored.TeamID)
	}
	if stored.Status != models.StatusPending {
		t.Errorf("removal must not touch payment status, got %s", stored.Status)
	}
}

func TestLeaveTeam(t *testing.T) {
	f := newRosterFixture()
	team, leader := f.seedTeam(t, "dev", models.PaymentIndividual, 4)
	member, err := f.svc.AddMember(context.Background(), team.ID, leader.ID, CandidateInput{
		Name: "Sana", Email: "sana@college.edu", Phone: "903", RegNo: "SAN-1", College: "NIT",
	})
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	if err := f.svc.LeaveTeam(context.Background(), leader.ID); !errors.Is(err, ErrLeaderCannotLeave) {
		t.Errorf("leader leaving: expected ErrLeaderCannotLeave, got %v", err)
	}
	if err := f.svc.LeaveTeam(context.Background(), member.ID); err != nil {
		t.Fatalf("LeaveTeam: %v", err)
	}
	if err := f.svc.LeaveTeam(context.Background(), member.ID); !errors.Is(err, ErrUserNotOnTeam) {
		t.Errorf("leaving twice: expected ErrUserNotOnTeam, got %v", err)
	}
}

func TestDisbandBulkTeamResetsStatuses(t *testing.T) {
	f := newRosterFixture()
	team, leader := f.seedTeam(t, "uma", models.PaymentBulk, 4)
	member, err := f.svc.AddMember(context.Background(), team.ID, leader.ID, CandidateInput{
		Name: "Arjun", Email: "arjun@college.edu", Phone: "904", RegNo: "ARJ-1", College: "NIT",
	})
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	// Simulate an approved bulk squad.
	f.users.UpdateStatusGuarded(context.Background(), nil, leader.ID, models.StatusUnpaid, models.StatusApproved)
	f.users.UpdateStatusGuarded(context.Background(), nil, member.ID, models.StatusUnpaid, models.StatusApproved)

	if err := f.svc.DisbandTeam(context.Background(), team.ID, leader.ID); err != nil {
		t.Fatalf("DisbandTeam: %v", err)
	}

	for _, id := range []int{leader.ID, member.ID} {
		stored, err := f.users.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID %d: %v", id, err)
		}
		if stored.TeamID != nil {
			t.Errorf("user %d still on disbanded team", id)
		}
		if stored.Status != models.StatusUnpaid {
			t.Errorf("bulk disband must reset user %d to UNPAID, got %s", id, stored.Status)
		}
	}
	if _, err := f.teams.GetByID(context.Background(), team.ID); !errors.Is(err, repositories.ErrTeamNotFound) {
		t.Errorf("team %d still exists after disband: %v", team.ID, err)
	}
}

func TestDisbandIndividualTeamKeepsStatuses(t *testing.T) {
	f := newRosterFixture()
	team, leader := f.seedTeam(t, "hari", models.PaymentIndividual, 4)
	member, err := f.svc.AddMember(context.Background(), team.ID, leader.ID, CandidateInput{
		Name: "Lena", Email: "lena@college.edu", Phone: "905", RegNo: "LEN-1", College: "NIT",
	})
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	f.users.UpdateStatusGuarded(context.Background(), nil, member.ID, models.StatusUnpaid, models.StatusApproved)

	if err := f.svc.DisbandTeam(context.Background(), team.ID, leader.ID); err != nil {
		t.Fatalf("DisbandTeam: %v", err)
	}

	stored, _ := f.users.GetByID(context.Background(), member.ID)
	if stored.Status != models.StatusApproved {
		t.Errorf("individual payment must survive disband, got %s", stored.Status)
	}
}

func TestDisbandDeletesPendingRequests(t *testing.T) {
	f := newRosterFixture()
	team, leader := f.seedTeam(t, "omar", models.PaymentIndividual, 4)

	email := "waiting@college.edu"
	f.requests.Create(context.Background(), &models.JoinRequest{
		TeamID:         team.ID,
		CandidateName:  strPtr("Waiting"),
		CandidateEmail: &email,
	})

	if err := f.svc.DisbandTeam(context.Background(), team.ID, leader.ID); err != nil {
		t.Fatalf("DisbandTeam: %v", err)
	}

	pending, _ := f.requests.ListPendingByTeam(context.Background(), team.ID)
	if len(pending) != 0 {
		t.Errorf("expected pending requests purged on disband, found %d", len(pending))
	}
}

func TestUpdateTeamSettingsCapacityFloor(t *testing.T) {
	f := newRosterFixture()
	team, leader := f.seedTeam(t, "gita", models.PaymentIndividual, 4)
	_, err := f.svc.AddMember(context.Background(), team.ID, leader.ID, CandidateInput{
		Name: "Mo", Email: "mo@college.edu", Phone: "906", RegNo: "MO-1", College: "NIT",
	})
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	one := 1
	err = f.svc.UpdateTeamSettings(context.Background(), team.ID, leader.ID, TeamSettingsPatch{MaxMembers: &one})
	if !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("shrinking below member count: expected ErrInvalidCapacity, got %v", err)
	}

	three := 3
	newName := "Gita's Crew"
	err = f.svc.UpdateTeamSettings(context.Background(), team.ID, leader.ID, TeamSettingsPatch{
		Name:       &newName,
		MaxMembers: &three,
	})
	if err != nil {
		t.Fatalf("UpdateTeamSettings: %v", err)
	}

	stored, _ := f.teams.GetByID(context.Background(), team.ID)
	if stored.Name != newName || stored.MaxMembers != 3 {
		t.Errorf("settings not applied: name=%q max=%d", stored.Name, stored.MaxMembers)
	}
}

// TestRosterCapacityInvariant drives a random add/remove sequence and checks
// the member count never exceeds the cap.
func TestRosterCapacityInvariant(t *testing.T) {
	f := newRosterFixture()
	const maxMembers = 3
	team, leader := f.seedTeam(t, "prop", models.PaymentIndividual, maxMembers)

	rng := rand.New(rand.NewSource(42))
	var memberIDs []int

	for i := 0; i < 200; i++ {
		if rng.Intn(2) == 0 {
			member, err := f.svc.AddMember(context.Background(), team.ID, leader.ID, CandidateInput{
				Name:    fmt.Sprintf("r%d", i),
				Email:   fmt.Sprintf("r%d@college.edu", i),
				Phone:   fmt.Sprintf("p%d", i),
				RegNo:   fmt.Sprintf("R-%d", i),
				College: "NIT",
			})
			if err != nil {
				if !errors.Is(err, ErrTeamFull) {
					t.Fatalf("step %d: unexpected add error: %v", i, err)
				}
			} else {
				memberIDs = append(memberIDs, member.ID)
			}
		} else if len(memberIDs) > 0 {
			idx := rng.Intn(len(memberIDs))
			id := memberIDs[idx]
			if err := f.svc.RemoveMember(context.Background(), team.ID, id, leader.ID); err != nil {
				t.Fatalf("step %d: unexpected remove error: %v", i, err)
			}
			memberIDs = append(memberIDs[:idx], memberIDs[idx+1:]...)
		}

		count, err := f.users.CountByTeamID(context.Background(), nil, team.ID)
		if err != nil {
			t.Fatalf("CountByTeamID: %v", err)
		}
		if count > maxMembers {
			t.Fatalf("step %d: member count %d exceeds cap %d", i, count, maxMembers)
		}
	}
}

func strPtr(s string) *string { return &s }
