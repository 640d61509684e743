package users

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campuslink/campuslink-admin/internal/shared"
	_ "github.com/campuslink/campuslink-admin/testing"
)

type fakeRepo struct {
	nextID   int64
	users    map[int64]*User
	byMail   map[string]int64
	lastHash string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{nextID: 1, users: map[int64]*User{}, byMail: map[string]int64{}}
}

func (f *fakeRepo) List(_ context.Context, req ListRequest) ([]User, int, error) {
	var out []User
	for id := int64(1); id < f.nextID; id++ {
		u, ok := f.users[id]
		if !ok {
			continue
		}
		if req.Search != "" && !strings.Contains(u.Email, strings.ToLower(req.Search)) {
			continue
		}
		if req.IsActive != nil && u.IsActive != *req.IsActive {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (*User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeRepo) Create(_ context.Context, email, displayName, passwordHash string) (*User, error) {
	if _, exists := f.byMail[email]; exists {
		return nil, shared.ErrDuplicate
	}
	u := &User{
		ID:          f.nextID,
		Email:       email,
		DisplayName: displayName,
		IsActive:    true,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	f.users[u.ID] = u
	f.byMail[email] = u.ID
	f.lastHash = passwordHash
	f.nextID++
	copied := *u
	return &copied, nil
}

func (f *fakeRepo) SetActive(_ context.Context, id int64, active bool) error {
	u, ok := f.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (f *fakeRepo) SetAdmin(_ context.Context, id int64, admin bool) error {
	u, ok := f.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.IsAdmin = admin
	return nil
}

func TestCreateHashesPasswordAndNormalizesEmail(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	user, err := svc.Create(context.Background(), "  Jamie.Lee@Campus.Edu ", " Jamie Lee ", "hunter2hunter2")
	require.NoError(t, err)

	assert.Equal(t, "jamie.lee@campus.edu", user.Email)
	assert.Equal(t, "Jamie Lee", user.DisplayName)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsAdmin)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.lastHash), []byte("hunter2hunter2")))
}

func TestCreateDuplicateEmail(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	_, err := svc.Create(context.Background(), "dup@campus.edu", "First", "password123")
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "dup@campus.edu", "Second", "password123")
	assert.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestSetActiveAndAdmin(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	user, err := svc.Create(context.Background(), "mod@campus.edu", "Mod", "password123")
	require.NoError(t, err)

	require.NoError(t, svc.SetAdmin(context.Background(), user.ID, true))
	require.NoError(t, svc.SetActive(context.Background(), user.ID, false))

	got, err := svc.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, svc.SetAdmin(context.Background(), 9999, true), shared.ErrNotFound)
}

func TestListFilters(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	for _, email := range []string{"ana@campus.edu", "ben@campus.edu", "cho@other.org"} {
		_, err := svc.Create(context.Background(), email, "Member", "password123")
		require.NoError(t, err)
	}
	require.NoError(t, svc.SetActive(context.Background(), 3, false))

	all, total, err := svc.List(context.Background(), ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 3)

	active := true
	onlyActive, _, err := svc.List(context.Background(), ListRequest{IsActive: &active})
	require.NoError(t, err)
	assert.Len(t, onlyActive, 2)

	matched, _, err := svc.List(context.Background(), ListRequest{Search: "campus.edu"})
	require.NoError(t, err)
	assert.Len(t, matched, 2)
}
