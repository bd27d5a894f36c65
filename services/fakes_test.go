package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ak-bharadwaj/concurrence2k26-sub000/events"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/models"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/repositories"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTransactor runs the function directly; the fakes below are their own
// source of truth and need no real transaction.
type fakeTransactor struct{}

func (fakeTransactor) InTx(_ context.Context, fn func(exec repositories.SQLExecutor) error) error {
	return fn(nil)
}

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]*models.User

	// teams, when set, backs the Team join on GetByID.
	teams *fakeTeamRepo
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int]*models.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, _ repositories.SQLExecutor, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		switch {
		case existing.Email == user.Email:
			return repositories.ErrUserEmailConflict
		case existing.Phone == user.Phone && user.Phone != "":
			return repositories.ErrUserPhoneConflict
		case existing.RegNo == user.RegNo && user.RegNo != "":
			return repositories.ErrUserRegNoConflict
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now()
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	user := *stored
	if user.TeamID != nil && r.teams != nil {
		if team, err := r.teams.GetByID(context.Background(), *user.TeamID); err == nil {
			user.Team = team
		}
	}
	return &user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.users {
		if stored.Email == email {
			user := *stored
			return &user, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *fakeUserRepo) GetByRegNo(_ context.Context, regNo string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.users {
		if stored.RegNo == regNo {
			user := *stored
			return &user, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *fakeUserRepo) ListByTeamID(_ context.Context, _ repositories.SQLExecutor, teamID int) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var members []models.User
	for _, stored := range r.users {
		if stored.TeamID != nil && *stored.TeamID == teamID {
			members = append(members, *stored)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

func (r *fakeUserRepo) ListByStatus(_ context.Context, status models.UserStatus) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var users []models.User
	for _, stored := range r.users {
		if stored.Status == status {
			users = append(users, *stored)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *fakeUserRepo) CountByTeamID(_ context.Context, _ repositories.SQLExecutor, teamID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, stored := range r.users {
		if stored.TeamID != nil && *stored.TeamID == teamID {
			count++
		}
	}
	return count, nil
}

func (r *fakeUserRepo) AssignTeam(_ context.Context, _ repositories.SQLExecutor, userID, teamID int, role models.UserRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	stored.TeamID = &teamID
	stored.Role = role
	return nil
}

func (r *fakeUserRepo) ClearTeam(_ context.Context, _ repositories.SQLExecutor, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	stored.TeamID = nil
	stored.Role = models.RoleMember
	return nil
}

func (r *fakeUserRepo) ReleaseAllFromTeam(_ context.Context, _ repositories.SQLExecutor, teamID int, resetStatus bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.users {
		if stored.TeamID != nil && *stored.TeamID == teamID {
			stored.TeamID = nil
			stored.Role = models.RoleMember
			if resetStatus {
				stored.Status = models.StatusUnpaid
			}
		}
	}
	return nil
}

func (r *fakeUserRepo) SetPaymentProof(_ context.Context, userID int, transactionID, proofURL string, channelID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[userID]
	if !ok {
		return false, repositories.ErrUserNotFound
	}
	if stored.Status != models.StatusUnpaid {
		return false, nil
	}
	stored.Status = models.StatusPending
	stored.TransactionID = &transactionID
	stored.ProofURL = &proofURL
	stored.ChannelID = &channelID
	return true, nil
}

func (r *fakeUserRepo) UpdateStatusGuarded(_ context.Context, _ repositories.SQLExecutor, userID int, from, to models.UserStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[userID]
	if !ok {
		return false, nil
	}
	if stored.Status != from || from == to {
		return false, nil
	}
	stored.Status = to
	return true, nil
}

func (r *fakeUserRepo) SetAttendance(_ context.Context, userID int, attended bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	stored.Attended = attended
	return nil
}

func (r *fakeUserRepo) Delete(_ context.Context, _ repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repositories.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

type fakeTeamRepo struct {
	mu     sync.Mutex
	nextID int
	teams  map[int]*models.Team
}

func newFakeTeamRepo() *fakeTeamRepo {
	return &fakeTeamRepo{teams: make(map[int]*models.Team)}
}

func (r *fakeTeamRepo) Create(_ context.Context, _ repositories.SQLExecutor, team *models.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.teams {
		if existing.Name == team.Name {
			return repositories.ErrTeamNameConflict
		}
		if existing.JoinCode == team.JoinCode {
			return repositories.ErrTeamJoinCodeConflict
		}
	}
	r.nextID++
	team.ID = r.nextID
	team.CreatedAt = time.Now()
	stored := *team
	r.teams[team.ID] = &stored
	return nil
}

func (r *fakeTeamRepo) GetByID(_ context.Context, id int) (*models.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.teams[id]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	team := *stored
	return &team, nil
}

func (r *fakeTeamRepo) GetByJoinCode(_ context.Context, joinCode string) (*models.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.teams {
		if stored.JoinCode == joinCode {
			team := *stored
			return &team, nil
		}
	}
	return nil, repositories.ErrTeamNotFound
}

func (r *fakeTeamRepo) UpdateSettings(_ context.Context, id int, name string, maxMembers int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.teams[id]
	if !ok {
		return repositories.ErrTeamNotFound
	}
	for otherID, other := range r.teams {
		if otherID != id && other.Name == name {
			return repositories.ErrTeamNameConflict
		}
	}
	stored.Name = name
	stored.MaxMembers = maxMembers
	return nil
}

func (r *fakeTeamRepo) SetLeader(_ context.Context, _ repositories.SQLExecutor, teamID int, leaderID *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.teams[teamID]
	if !ok {
		return repositories.ErrTeamNotFound
	}
	stored.LeaderID = leaderID
	return nil
}

func (r *fakeTeamRepo) Delete(_ context.Context, _ repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teams[id]; !ok {
		return repositories.ErrTeamNotFound
	}
	delete(r.teams, id)
	return nil
}

type fakeRequestRepo struct {
	mu       sync.Mutex
	nextID   int
	requests map[int]*models.JoinRequest
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[int]*models.JoinRequest)}
}

func (r *fakeRequestRepo) Create(_ context.Context, request *models.JoinRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Mirrors the partial unique indexes on pending requests.
	for _, existing := range r.requests {
		if existing.TeamID != request.TeamID || existing.Status != models.RequestPending {
			continue
		}
		if request.UserID != nil && existing.UserID != nil && *existing.UserID == *request.UserID {
			return repositories.ErrRequestDuplicate
		}
		if request.UserID == nil && existing.UserID == nil &&
			request.CandidateEmail != nil && existing.CandidateEmail != nil &&
			*existing.CandidateEmail == *request.CandidateEmail {
			return repositories.ErrRequestDuplicate
		}
	}
	r.nextID++
	request.ID = r.nextID
	request.Status = models.RequestPending
	request.CreatedAt = time.Now()
	stored := *request
	stored.User = nil
	stored.Team = nil
	r.requests[request.ID] = &stored
	return nil
}

func (r *fakeRequestRepo) GetByID(_ context.Context, id int) (*models.JoinRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[id]
	if !ok {
		return nil, repositories.ErrRequestNotFound
	}
	request := *stored
	return &request, nil
}

func (r *fakeRequestRepo) FindPendingByTeamAndUser(_ context.Context, teamID, userID int) (*models.JoinRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.requests {
		if stored.TeamID == teamID && stored.Status == models.RequestPending &&
			stored.UserID != nil && *stored.UserID == userID {
			request := *stored
			return &request, nil
		}
	}
	return nil, repositories.ErrRequestNotFound
}

func (r *fakeRequestRepo) FindPendingByTeamAndEmail(_ context.Context, teamID int, email string) (*models.JoinRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.requests {
		if stored.TeamID == teamID && stored.Status == models.RequestPending &&
			stored.CandidateEmail != nil && *stored.CandidateEmail == email {
			request := *stored
			return &request, nil
		}
	}
	return nil, repositories.ErrRequestNotFound
}

func (r *fakeRequestRepo) ListPendingByTeam(_ context.Context, teamID int) ([]*models.JoinRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []*models.JoinRequest
	for _, stored := range r.requests {
		if stored.TeamID == teamID && stored.Status == models.RequestPending {
			request := *stored
			pending = append(pending, &request)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	return pending, nil
}

func (r *fakeRequestRepo) ListPendingByUser(_ context.Context, userID int) ([]*models.JoinRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []*models.JoinRequest
	for _, stored := range r.requests {
		if stored.UserID != nil && *stored.UserID == userID && stored.Status == models.RequestPending {
			request := *stored
			pending = append(pending, &request)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	return pending, nil
}

func (r *fakeRequestRepo) Resolve(_ context.Context, _ repositories.SQLExecutor, id int, status models.JoinRequestStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[id]
	if !ok {
		return false, repositories.ErrRequestNotFound
	}
	if stored.Status != models.RequestPending {
		return false, nil
	}
	stored.Status = status
	now := time.Now()
	stored.ResolvedAt = &now
	return true, nil
}

func (r *fakeRequestRepo) DeleteByTeamID(_ context.Context, _ repositories.SQLExecutor, teamID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, stored := range r.requests {
		if stored.TeamID == teamID {
			delete(r.requests, id)
		}
	}
	return nil
}

type fakeChannelRepo struct {
	mu       sync.Mutex
	nextID   int
	channels map[int]*models.PaymentChannel
}

func newFakeChannelRepo() *fakeChannelRepo {
	return &fakeChannelRepo{channels: make(map[int]*models.PaymentChannel)}
}

func (r *fakeChannelRepo) Create(_ context.Context, channel *models.PaymentChannel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	channel.ID = r.nextID
	channel.CreatedAt = time.Now().Add(time.Duration(r.nextID) * time.Millisecond)
	stored := *channel
	r.channels[channel.ID] = &stored
	return nil
}

func (r *fakeChannelRepo) GetByID(_ context.Context, id int) (*models.PaymentChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.channels[id]
	if !ok {
		return nil, repositories.ErrChannelNotFound
	}
	channel := *stored
	return &channel, nil
}

func (r *fakeChannelRepo) List(_ context.Context) ([]*models.PaymentChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var channels []*models.PaymentChannel
	for _, stored := range r.channels {
		channel := *stored
		channels = append(channels, &channel)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })
	return channels, nil
}

func (r *fakeChannelRepo) ListActiveByAmount(_ context.Context, amount int) ([]*models.PaymentChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var channels []*models.PaymentChannel
	for _, stored := range r.channels {
		if stored.Active && stored.Amount == amount {
			channel := *stored
			channels = append(channels, &channel)
		}
	}
	sort.Slice(channels, func(i, j int) bool {
		if channels[i].UsageCount != channels[j].UsageCount {
			return channels[i].UsageCount < channels[j].UsageCount
		}
		return channels[i].CreatedAt.Before(channels[j].CreatedAt)
	})
	return channels, nil
}

func (r *fakeChannelRepo) IncrementUsage(_ context.Context, id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.channels[id]
	if !ok || !stored.Active || stored.UsageCount >= stored.DailyLimit {
		return false, nil
	}
	stored.UsageCount++
	return true, nil
}

func (r *fakeChannelRepo) ResetUsage(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.channels[id]
	if !ok {
		return repositories.ErrChannelNotFound
	}
	stored.UsageCount = 0
	return nil
}

func (r *fakeChannelRepo) SetActive(_ context.Context, id int, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.channels[id]
	if !ok {
		return repositories.ErrChannelNotFound
	}
	stored.Active = active
	return nil
}

type fakeLogRepo struct {
	mu      sync.Mutex
	entries []models.ActionLog
}

func newFakeLogRepo() *fakeLogRepo {
	return &fakeLogRepo{}
}

func (r *fakeLogRepo) Create(_ context.Context, _ repositories.SQLExecutor, entry *models.ActionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = len(r.entries) + 1
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeLogRepo) ListByUserID(_ context.Context, userID int) ([]*models.ActionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var logs []*models.ActionLog
	for i := range r.entries {
		if r.entries[i].UserID != nil && *r.entries[i].UserID == userID {
			entry := r.entries[i]
			logs = append(logs, &entry)
		}
	}
	return logs, nil
}

func (r *fakeLogRepo) all() []models.ActionLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ActionLog(nil), r.entries...)
}

type fakeAdminRepo struct {
	mu     sync.Mutex
	nextID int
	admins map[int]*models.Admin
}

func newFakeAdminRepo() *fakeAdminRepo {
	return &fakeAdminRepo{admins: make(map[int]*models.Admin)}
}

func (r *fakeAdminRepo) Create(_ context.Context, admin *models.Admin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.admins {
		if existing.Email == admin.Email {
			return repositories.ErrAdminEmailConflict
		}
	}
	r.nextID++
	admin.ID = r.nextID
	stored := *admin
	r.admins[admin.ID] = &stored
	return nil
}

func (r *fakeAdminRepo) GetByID(_ context.Context, id int) (*models.Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.admins[id]
	if !ok {
		return nil, repositories.ErrAdminNotFound
	}
	admin := *stored
	return &admin, nil
}

func (r *fakeAdminRepo) GetByEmail(_ context.Context, email string) (*models.Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.admins {
		if stored.Email == email {
			admin := *stored
			return &admin, nil
		}
	}
	return nil, repositories.ErrAdminNotFound
}

type sentMail struct {
	Email string
	Kind  TemplateKind
	Args  map[string]interface{}
}

// recorderNotifier captures notifications; delivery is asynchronous in the
// services, so tests wait with waitForMail.
type recorderNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *recorderNotifier) Notify(email string, kind TemplateKind, args map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{Email: email, Kind: kind, Args: args})
	return nil
}

func (n *recorderNotifier) all() []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMail(nil), n.sent...)
}

func waitForMail(t *testing.T, n *recorderNotifier, want int) []sentMail {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sent := n.all()
		if len(sent) >= want {
			return sent
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d notifications, got %d", want, len(n.all()))
	return nil
}

type publishedEvent struct {
	Type    events.Type
	Payload interface{}
}

type recorderPublisher struct {
	mu        sync.Mutex
	published []publishedEvent
}

func (p *recorderPublisher) Publish(eventType events.Type, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, publishedEvent{Type: eventType, Payload: payload})
}

func (p *recorderPublisher) all() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.published...)
}

type fakeUploader struct {
	mu      sync.Mutex
	baseURL string
	deleted []string
}

func (u *fakeUploader) Upload(_ context.Context, key, _ string, _ io.Reader) (*storage.UploadResult, error) {
	return &storage.UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *fakeUploader) Delete(_ context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deleted = append(u.deleted, key)
	return nil
}

func (u *fakeUploader) deletedKeys() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.deleted...)
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return u.baseURL + "/" + key
}
