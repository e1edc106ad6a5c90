// Package memstore keeps every record in process memory. It backs the
// "memory" store driver used for local runs and as the store fake in tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"larder/entity"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type MemStore struct {
	mu              sync.RWMutex
	users           map[string]*entity.User
	sessions        map[string]string
	invites         map[string]*entity.InviteCode
	reconciliations []*entity.Reconciliation
	quotas          map[string]*entity.OcrQuota
	orders          map[string]*entity.Order
	now             func() time.Time
}

func New() *MemStore {
	return &MemStore{
		users:    make(map[string]*entity.User),
		sessions: make(map[string]string),
		invites:  make(map[string]*entity.InviteCode),
		quotas:   make(map[string]*entity.OcrQuota),
		orders:   make(map[string]*entity.Order),
		now:      time.Now,
	}
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func quotaKey(userID, monthKey string) string {
	return userID + "/" + monthKey
}

func (m *MemStore) CountUsers(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

func (m *MemStore) SignUp(ctx context.Context, username, email, password string) (*entity.Session, error) {
	return m.AddUser(ctx, username, email, password, entity.RoleNone)
}

// AddUser creates a user with the given role and opens a session for it.
func (m *MemStore) AddUser(_ context.Context, username, email, password string, role entity.Role) (*entity.Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return nil, fmt.Errorf("username %q has already been taken", username)
		}
	}
	user := &entity.User{
		ID:           newID(),
		Username:     username,
		Email:        email,
		Role:         role,
		SessionToken: uuid.NewString(),
		PasswordHash: string(hash),
		CreatedAt:    m.now().UTC(),
	}
	m.users[user.ID] = user
	m.sessions[user.SessionToken] = user.ID
	return &entity.Session{UserID: user.ID, SessionToken: user.SessionToken}, nil
}

func (m *MemStore) UserBySession(_ context.Context, token string) (*entity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.sessions[token]
	if !ok || token == "" {
		return nil, entity.ErrSessionInvalid
	}
	user := *m.users[id]
	return &user, nil
}

func (m *MemStore) CreateInvite(_ context.Context, code string) (*entity.InviteCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv := &entity.InviteCode{ID: newID(), Code: code, CreatedAt: m.now().UTC()}
	m.invites[inv.ID] = inv
	c := *inv
	return &c, nil
}

func (m *MemStore) ListInvites(_ context.Context, limit int) ([]*entity.InviteCode, error) {
	m.mu.RLock()
	list := make([]*entity.InviteCode, 0, len(m.invites))
	for _, inv := range m.invites {
		c := *inv
		list = append(list, &c)
	}
	m.mu.RUnlock()

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MemStore) FindUsableInvite(_ context.Context, code string) (*entity.InviteCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inv := range m.invites {
		if inv.Code == code && inv.Usable() {
			c := *inv
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemStore) CountUsableInvites(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, inv := range m.invites {
		if inv.Usable() {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) ClaimInvite(_ context.Context, id string, claim entity.InviteClaim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[id]
	if !ok {
		return entity.ErrNotFound
	}
	if !inv.Usable() {
		return entity.ErrConflict
	}
	inv.Used = true
	inv.UsedBy = claim.UserID
	if !claim.Minimal {
		inv.UsedAt = claim.UsedAt
		inv.UsedUA = claim.UserAgent
		inv.UsedIP = claim.IP
	}
	return nil
}

func (m *MemStore) InvalidateInvite(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[id]
	if !ok {
		return entity.ErrNotFound
	}
	inv.Invalidated = true
	return nil
}

func (m *MemStore) DeleteInvite(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invites[id]; !ok {
		return entity.ErrNotFound
	}
	delete(m.invites, id)
	return nil
}

// Invite returns a copy of the stored invite, or nil.
func (m *MemStore) Invite(id string) *entity.InviteCode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invites[id]
	if !ok {
		return nil
	}
	c := *inv
	return &c
}

func (m *MemStore) SaveReconciliation(_ context.Context, rec *entity.Reconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = newID()
	rec.CreatedAt = m.now().UTC()
	c := *rec
	m.reconciliations = append(m.reconciliations, &c)
	return nil
}

func (m *MemStore) ListReconciliations(_ context.Context, limit int) ([]*entity.Reconciliation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*entity.Reconciliation, 0, len(m.reconciliations))
	for i := len(m.reconciliations) - 1; i >= 0; i-- {
		if limit > 0 && len(list) == limit {
			break
		}
		c := *m.reconciliations[i]
		list = append(list, &c)
	}
	return list, nil
}

func (m *MemStore) GetQuota(_ context.Context, userID, monthKey string) (*entity.OcrQuota, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotas[quotaKey(userID, monthKey)]
	if !ok {
		return nil, nil
	}
	c := *q
	return &c, nil
}

// CreateQuota keeps the first record for a (user, month) pair; a second
// create returns the existing record's numbers in quota.
func (m *MemStore) CreateQuota(_ context.Context, quota *entity.OcrQuota) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := quotaKey(quota.UserID, quota.MonthKey)
	if existing, ok := m.quotas[key]; ok {
		*quota = *existing
		return nil
	}
	quota.ID = newID()
	c := *quota
	m.quotas[key] = &c
	return nil
}

func (m *MemStore) IncrementQuota(_ context.Context, quota *entity.OcrQuota) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotas[quotaKey(quota.UserID, quota.MonthKey)]
	if !ok || q.ID != quota.ID {
		return entity.ErrNotFound
	}
	if q.Used >= q.Limit {
		quota.Used = q.Used
		return entity.ErrConflict
	}
	q.Used++
	quota.Used = q.Used
	return nil
}

// SetQuota overwrites a quota record; used to seed usage.
func (m *MemStore) SetQuota(quota entity.OcrQuota) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if quota.ID == "" {
		quota.ID = newID()
	}
	m.quotas[quotaKey(quota.UserID, quota.MonthKey)] = &quota
}

func (m *MemStore) CreateOrder(_ context.Context, order *entity.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order.ID = newID()
	order.CreatedAt = m.now().UTC()
	c := *order
	m.orders[order.ID] = &c
	return nil
}

func (m *MemStore) MarkOrderPaid(_ context.Context, id, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return entity.ErrNotFound
	}
	order.Status = entity.OrderStatusPaid
	order.PaymentID = paymentID
	return nil
}

func (m *MemStore) Orders() []*entity.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*entity.Order, 0, len(m.orders))
	for _, o := range m.orders {
		c := *o
		list = append(list, &c)
	}
	return list
}
