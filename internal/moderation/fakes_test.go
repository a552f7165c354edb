package moderation_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gratefultolord/art_suggest_bot/internal/db"
	"github.com/gratefultolord/art_suggest_bot/internal/moderation"
	"github.com/gratefultolord/art_suggest_bot/internal/notify"
)

const adminID int64 = 42

type memUsers struct {
	mu    sync.Mutex
	users map[int64]db.User
}

func (m *memUsers) Create(_ context.Context, u *db.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.ID]; ok {
		return false, nil
	}
	m.users[u.ID] = db.User{ID: u.ID, DisplayName: u.DisplayName, CreatedAt: time.Now()}

	return true, nil
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}

	return &u, nil
}

func (m *memUsers) Block(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[id]; ok {
		u.Blocked = true
		m.users[id] = u
	}

	return nil
}

func (m *memUsers) ListIDs(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

func (m *memUsers) snapshot() map[int64]db.User {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int64]db.User, len(m.users))
	for k, v := range m.users {
		out[k] = v
	}

	return out
}

type memSuggestions struct {
	mu     sync.Mutex
	users  *memUsers
	nextID int64
	rows   map[int64]db.Suggestion
}

func (m *memSuggestions) Create(_ context.Context, s *db.Suggestion) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	row := *s
	row.ID = m.nextID
	row.Status = db.StatusPending
	m.rows[row.ID] = row

	return row.ID, nil
}

func (m *memSuggestions) GetByID(ctx context.Context, id int64) (*db.Suggestion, error) {
	m.mu.Lock()
	row, ok := m.rows[id]
	m.mu.Unlock()

	if !ok {
		return nil, db.ErrNotFound
	}

	return m.withName(ctx, row), nil
}

// Decide mirrors the SQL repository: the status check and the update
// happen under one lock.
func (m *memSuggestions) Decide(ctx context.Context, id int64, status db.SuggestionStatus, by int64) (*db.Suggestion, error) {
	if !status.Terminal() {
		return nil, errors.New("invalid target status")
	}

	m.mu.Lock()
	row, ok := m.rows[id]
	if !ok {
		m.mu.Unlock()
		return nil, db.ErrNotFound
	}

	if row.Status != db.StatusPending {
		m.mu.Unlock()
		return m.withName(ctx, row), db.ErrNotPending
	}

	now := time.Now()
	row.Status = status
	row.DecidedAt = &now
	row.DecidedBy = &by
	m.rows[id] = row
	m.mu.Unlock()

	return m.withName(ctx, row), nil
}

func (m *memSuggestions) withName(ctx context.Context, row db.Suggestion) *db.Suggestion {
	if u, err := m.users.GetByID(ctx, row.SubmitterID); err == nil {
		row.SubmitterName = u.DisplayName
	}

	return &row
}

func (m *memSuggestions) status(id int64) db.SuggestionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.rows[id].Status
}

func (m *memSuggestions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.rows)
}

type memAdmins struct {
	ids []int64
}

func (m *memAdmins) IsAdmin(_ context.Context, id int64) (bool, error) {
	for _, a := range m.ids {
		if a == id {
			return true, nil
		}
	}

	return false, nil
}

func (m *memAdmins) GetAll(_ context.Context) ([]db.Admin, error) {
	out := make([]db.Admin, 0, len(m.ids))
	for _, id := range m.ids {
		out = append(out, db.Admin{ID: id})
	}

	return out, nil
}

type recorder struct {
	mu       sync.Mutex
	sent     []notify.Instruction
	failKind map[notify.Kind]bool
	failChat map[int64]bool
}

func (r *recorder) Dispatch(_ context.Context, in notify.Instruction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failKind[in.Kind] || r.failChat[in.ChatID] {
		return errors.New("telegram: Bad Request")
	}
	r.sent = append(r.sent, in)

	return nil
}

func (r *recorder) ofKind(k notify.Kind) []notify.Instruction {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []notify.Instruction
	for _, in := range r.sent {
		if in.Kind == k {
			out = append(out, in)
		}
	}

	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent = nil
}

var testPromo = moderation.Promo{
	Phrases: []string{"Лучшие арты недели", "Заходите в наш магазин"},
	URL:     "https://example.com/shop",
}

type fixture struct {
	svc         *moderation.Service
	users       *memUsers
	suggestions *memSuggestions
	out         *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := &memUsers{users: map[int64]db.User{}}
	suggestions := &memSuggestions{users: users, rows: map[int64]db.Suggestion{}}
	out := &recorder{failKind: map[notify.Kind]bool{}, failChat: map[int64]bool{}}

	svc := moderation.NewService(users, suggestions, &memAdmins{ids: []int64{adminID}}, out, moderation.Options{
		BotUsername:      "art_suggest_bot",
		Promo:            testPromo,
		BroadcastWorkers: 4,
		DispatchTimeout:  time.Second,
		Pick:             func(n int) int { return n - 1 },
	}, zerolog.Nop())

	return &fixture{svc: svc, users: users, suggestions: suggestions, out: out}
}

func (f *fixture) register(t *testing.T, id int64, name string) {
	t.Helper()

	if _, _, err := f.svc.Register(context.Background(), id, name); err != nil {
		t.Fatalf("register %d: %v", id, err)
	}
}
