package invite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"larder/entity"
	"larder/internal/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerateCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z0-9]{6}$`)
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 190)
}

func TestToCreate(t *testing.T) {
	cases := []struct {
		name     string
		maxUsers int
		users    int
		unused   int
		want     int
	}{
		{"covers remaining seats", 20, 15, 3, 2},
		{"enough unused", 20, 15, 10, 0},
		{"over capacity", 20, 25, 0, 0},
		{"empty system", 20, 0, 0, 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ToCreate(tc.maxUsers, tc.users, tc.unused))
		})
	}
}

func seed(t *testing.T, store *memstore.MemStore, users, unused int) {
	t.Helper()
	ctx := t.Context()
	for i := 0; i < users; i++ {
		_, err := store.SignUp(ctx, "user"+string(rune('a'+i)), "", "pw")
		require.NoError(t, err)
	}
	for i := 0; i < unused; i++ {
		_, err := store.CreateInvite(ctx, "SEED0"+string(rune('A'+i)))
		require.NoError(t, err)
	}
}

func TestFill(t *testing.T) {
	store := memstore.New()
	seed(t, store, 15, 3)
	svc := New(store, 20, nil, newTestLogger())

	res, err := svc.Fill(t.Context(), 20)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ToCreate)
	assert.Len(t, res.Created, 2)

	unused, err := store.CountUsableInvites(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 5, unused)

	res, err = svc.Fill(t.Context(), 0)
	require.NoError(t, err)
	assert.Zero(t, res.ToCreate)
	assert.Empty(t, res.Created)
}

func TestFillNeverNegative(t *testing.T) {
	store := memstore.New()
	seed(t, store, 15, 10)
	svc := New(store, 20, nil, newTestLogger())

	res, err := svc.Fill(t.Context(), 20)
	require.NoError(t, err)
	assert.Zero(t, res.ToCreate)
	assert.NotNil(t, res.Created)
}

type failingCreate struct {
	*memstore.MemStore
	left int
}

func (f *failingCreate) CreateInvite(ctx context.Context, code string) (*entity.InviteCode, error) {
	if f.left == 0 {
		return nil, errors.New("store unavailable")
	}
	f.left--
	return f.MemStore.CreateInvite(ctx, code)
}

func TestFillReturnsPartialBatch(t *testing.T) {
	store := &failingCreate{MemStore: memstore.New(), left: 2}
	svc := New(store, 5, nil, newTestLogger())

	res, err := svc.Fill(t.Context(), 0)
	require.Error(t, err)
	assert.Equal(t, 5, res.ToCreate)
	assert.Len(t, res.Created, 2)
}

func TestInvalidateUsedInviteKeepsItUsed(t *testing.T) {
	store := memstore.New()
	svc := New(store, 20, nil, newTestLogger())
	ctx := t.Context()

	inv, err := svc.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, store.ClaimInvite(ctx, inv.ID, entity.InviteClaim{UserID: "u1"}))

	require.NoError(t, svc.Invalidate(ctx, inv.ID))
	require.NoError(t, svc.Invalidate(ctx, inv.ID))

	stored := store.Invite(inv.ID)
	assert.True(t, stored.Used)
	assert.True(t, stored.Invalidated)
}

func TestListAndDelete(t *testing.T) {
	store := memstore.New()
	svc := New(store, 20, nil, newTestLogger())
	ctx := t.Context()

	first, err := svc.Create(ctx)
	require.NoError(t, err)
	_, err = svc.Create(ctx)
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, svc.Delete(ctx, first.ID))
	assert.ErrorIs(t, svc.Delete(ctx, first.ID), entity.ErrNotFound)

	list, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStatus(t *testing.T) {
	store := memstore.New()
	seed(t, store, 15, 3)
	svc := New(store, 20, nil, newTestLogger())

	st, err := svc.Status(t.Context())
	require.NoError(t, err)
	assert.Equal(t, entity.CapacityStatus{Users: 15, MaxUsers: 20, UnusedInvites: 3, ToCreate: 2}, *st)
}
