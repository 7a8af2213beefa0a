package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"recruitcrm/api/internal/authpw"
	"recruitcrm/api/internal/config"
	"recruitcrm/api/internal/export"
	"recruitcrm/api/internal/idle"
	"recruitcrm/api/internal/notify"
	"recruitcrm/api/internal/search"
	"recruitcrm/api/internal/store"
)

type fakeStore struct {
	mu            sync.Mutex
	pingErr       error
	lookupRoleErr error
	insertErr     error
	users         map[string]store.User
	resets        map[string]string
	refresh       map[string]string
	revoked       map[string]bool
	candidates    map[string]store.Candidate
	cvDocs        []store.CVDocument
	companies     []store.Company
	notifications []store.Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      map[string]store.User{},
		resets:     map[string]string{},
		refresh:    map[string]string{},
		revoked:    map[string]bool{},
		candidates: map[string]store.Candidate{},
	}
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, fmt.Errorf("get user: %w", store.ErrNotFound)
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(user.Email, strings.TrimSpace(email)) {
			return user, nil
		}
	}
	return store.User{}, fmt.Errorf("get user by email: %w", store.ErrNotFound)
}

func (f *fakeStore) LookupRole(ctx context.Context, email string) (*store.RoleRecord, error) {
	if f.lookupRoleErr != nil {
		return nil, f.lookupRoleErr
	}
	user, err := f.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return &store.RoleRecord{Email: user.Email, Role: user.Role}, nil
}

func (f *fakeStore) ListUsers(context.Context) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.User, 0, len(f.users))
	for _, user := range f.users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return fmt.Errorf("create user: %w", store.ErrConflict)
		}
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) UpdateUser(_ context.Context, id, firstName, lastName, role string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, fmt.Errorf("update user: %w", store.ErrNotFound)
	}
	user.FirstName, user.LastName, user.Role = firstName, lastName, role
	user.DisplayName = strings.TrimSpace(firstName + " " + lastName)
	f.users[id] = user
	return user, nil
}

func (f *fakeStore) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return fmt.Errorf("delete user: %w", store.ErrNotFound)
	}
	delete(f.users, id)
	return nil
}

func (f *fakeStore) UpdateUserVerificationToken(_ context.Context, userID, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	user.VerificationToken = token
	f.users[userID] = user
	return nil
}

func (f *fakeStore) VerifyUserEmail(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, user := range f.users {
		if token != "" && user.VerificationToken == token {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			f.users[id] = user
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	user.PasswordHash = hash
	user.IsEmailVerified = true
	f.users[userID] = user
	return nil
}

func (f *fakeStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[token] = userID
	return nil
}

func (f *fakeStore) ConsumePasswordReset(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.resets[token]
	if !ok {
		return "", store.ErrNotFound
	}
	delete(f.resets, token)
	return userID, nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	userID, ok := f.refresh[tokenHash]
	f.mu.Unlock()
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return f.GetUserByID(ctx, userID)
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func (f *fakeStore) InsertCandidate(_ context.Context, item store.Candidate) (store.Candidate, error) {
	if f.insertErr != nil {
		return store.Candidate{}, f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates[item.ID] = item
	return item, nil
}

func (f *fakeStore) GetCandidate(_ context.Context, id string) (store.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.candidates[id]
	if !ok {
		return store.Candidate{}, fmt.Errorf("get candidate: %w", store.ErrNotFound)
	}
	return item, nil
}

func (f *fakeStore) ListCandidates(_ context.Context, limit int) ([]store.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Candidate, 0, len(f.candidates))
	for _, item := range f.candidates {
		out = append(out, item)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) DeleteCandidate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.candidates[id]; !ok {
		return fmt.Errorf("delete candidate: %w", store.ErrNotFound)
	}
	delete(f.candidates, id)
	return nil
}

func (f *fakeStore) InsertCVDocument(_ context.Context, doc store.CVDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cvDocs = append(f.cvDocs, doc)
	return nil
}

func (f *fakeStore) InsertCompany(_ context.Context, item store.Company) (store.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.companies = append(f.companies, item)
	return item, nil
}

func (f *fakeStore) ListCompanies(context.Context) ([]store.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Company(nil), f.companies...), nil
}

func (f *fakeStore) ListNotifications(_ context.Context, userID string, limit int) ([]store.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Notification
	for _, item := range f.notifications {
		if item.UserID == userID && len(out) < limit {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeStore) UnreadNotificationCount(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, item := range f.notifications {
		if item.UserID == userID && !item.IsRead {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) MarkNotificationRead(_ context.Context, userID, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, item := range f.notifications {
		if item.ID == id && item.UserID == userID {
			f.notifications[i].IsRead = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) MarkAllNotificationsRead(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i, item := range f.notifications {
		if item.UserID == userID && !item.IsRead {
			f.notifications[i].IsRead = true
			n++
		}
	}
	return n, nil
}

type fakeAI struct {
	text     string
	err      error
	prompts  []string
	media    []string
	docBytes int
}

func (f *fakeAI) GenerateText(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.text, f.err
}

func (f *fakeAI) GenerateFromDocument(_ context.Context, data []byte, mediaType, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.media = append(f.media, mediaType)
	f.docBytes = len(data)
	return f.text, f.err
}

type fakeBucket struct {
	err  error
	puts map[string][]byte
}

func (f *fakeBucket) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if f.err != nil {
		return f.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = buf.Bytes()
	return nil
}

func (f *fakeBucket) PublicURL(key string) string {
	return "http://storage.test/cvs-bucket/" + key
}

type fakeText struct {
	body string
	err  error
}

func (f *fakeText) Extract([]byte, string, string) (string, error) {
	return f.body, f.err
}

type fakeIndex struct {
	mu      sync.Mutex
	indexed []string
	deleted []string
	resp    search.Response
	err     error
}

func (f *fakeIndex) Search(_ context.Context, q search.Query) (search.Response, error) {
	if f.err != nil {
		return search.Response{}, f.err
	}
	resp := f.resp
	resp.Query = q.Text
	return resp, nil
}

func (f *fakeIndex) IndexCandidate(c store.Candidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, c.ID)
}

func (f *fakeIndex) DeleteCandidate(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
}

// fakeNotifier persists through the fake store and has no live channel.
type fakeNotifier struct {
	store *fakeStore
}

func (f *fakeNotifier) Create(_ context.Context, userID, title, message, link string) (store.Notification, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	item := store.Notification{
		ID:        fmt.Sprintf("ntf_%d", len(f.store.notifications)+1),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Link:      link,
		CreatedAt: time.Now(),
	}
	f.store.notifications = append(f.store.notifications, item)
	return item, nil
}

func (f *fakeNotifier) Subscribe(context.Context, string) (<-chan notify.Event, error) {
	return nil, notify.ErrLiveUnavailable
}

type fakeMailer struct {
	configured bool
	invites    []string
	resets     []string
}

func (f *fakeMailer) IsConfigured() bool { return f.configured }
func (f *fakeMailer) SendVerificationEmail(string, string, string) error {
	return nil
}
func (f *fakeMailer) SendPasswordResetEmail(to, _, url string) error {
	f.resets = append(f.resets, to+" "+url)
	return nil
}
func (f *fakeMailer) SendInviteEmail(to, _, _, url string) error {
	f.invites = append(f.invites, to+" "+url)
	return nil
}

type fakeExporter struct {
	err error
}

func (f *fakeExporter) CandidateProfile(_ context.Context, c store.Candidate) (*export.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &export.Result{Data: []byte("%PDF-1.7 " + c.ID), Filename: "profile.pdf", MimeType: "application/pdf"}, nil
}

type testEnv struct {
	server   *HTTPServer
	service  *Service
	store    *fakeStore
	ai       *fakeAI
	bucket   *fakeBucket
	index    *fakeIndex
	mailer   *fakeMailer
	exporter *fakeExporter
	idle     *idle.MemoryTracker
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:     "test-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		IdleTimeout:   2 * time.Hour,
		PublicBaseURL: "http://app.test",
	}
}

// newTestEnv wires a service around fakes. withAI=false leaves AI disabled.
func newTestEnv(t *testing.T, withAI bool) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    newFakeStore(),
		ai:       &fakeAI{},
		bucket:   &fakeBucket{},
		index:    &fakeIndex{},
		mailer:   &fakeMailer{},
		exporter: &fakeExporter{},
		idle:     idle.NewMemoryTracker(2 * time.Hour),
	}
	deps := Deps{
		Store:     env.store,
		Bucket:    env.bucket,
		Text:      &fakeText{body: "Go developer"},
		Search:    env.index,
		Notify:    &fakeNotifier{store: env.store},
		Idle:      env.idle,
		Email:     env.mailer,
		Passwords: authpw.NewService(env.store, nil).WithCost(bcrypt.MinCost),
		Export:    env.exporter,
	}
	if withAI {
		deps.AI = env.ai
	}
	env.service = New(testConfig(), deps)
	env.server = NewHTTPServer(env.service, "*", nil)
	return env
}

// addUser stores a verified user with password "password123".
func (e *testEnv) addUser(t *testing.T, id, email, role string) store.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := store.User{
		ID:              id,
		Email:           email,
		FirstName:       "Test",
		LastName:        strings.ToUpper(role[:1]) + role[1:],
		DisplayName:     "Test " + role,
		Role:            role,
		PasswordHash:    string(hash),
		IsEmailVerified: true,
	}
	if err := e.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// signIn creates a user with role and returns an access token.
func (e *testEnv) signIn(t *testing.T, role string) (string, store.User) {
	t.Helper()
	user := e.addUser(t, "usr_"+role, role+"@example.com", role)
	session, err := e.service.CreateSession(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session.Token, user
}
