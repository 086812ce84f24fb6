package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/testimonioya/recovery-service/internal/domain"
)

// MemoryStore keeps every entity in process memory. It backs local runs
// without a database and the service tests. All reads return copies.
type MemoryStore struct {
	mu         sync.Mutex
	cases      map[string]*domain.RecoveryCase
	businesses map[string]domain.Business
	users      map[string]string
	nps        map[string]domain.NPSResponse
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:      make(map[string]*domain.RecoveryCase),
		businesses: make(map[string]domain.Business),
		users:      make(map[string]string),
		nps:        make(map[string]domain.NPSResponse),
	}
}

// PutBusiness seeds a business.
func (s *MemoryStore) PutBusiness(b domain.Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[b.ID] = b
}

// PutUser seeds a user email.
func (s *MemoryStore) PutUser(id, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = email
}

// NPSResponses returns the stored survey submissions.
func (s *MemoryStore) NPSResponses() []domain.NPSResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.NPSResponse, 0, len(s.nps))
	for _, r := range s.nps {
		out = append(out, r)
	}
	return out
}

// Cases exposes the store as a RecoveryCaseRepository.
func (s *MemoryStore) Cases() RecoveryCaseRepository { return memoryCases{s} }

// Businesses exposes the store as a BusinessRepository.
func (s *MemoryStore) Businesses() BusinessRepository { return memoryBusinesses{s} }

// Users exposes the store as a UserRepository.
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

// NPS exposes the store as an NPSResponseRepository.
func (s *MemoryStore) NPS() NPSResponseRepository { return memoryNPS{s} }

type memoryCases struct{ s *MemoryStore }

func (m memoryCases) Create(_ context.Context, c *domain.RecoveryCase) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c.Version = 1
	m.s.cases[c.ID] = c.Clone()
	return nil
}

func (m memoryCases) GetByID(_ context.Context, id string) (*domain.RecoveryCase, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (m memoryCases) ListByBusiness(_ context.Context, businessID string, limit, offset int) ([]domain.RecoveryCase, error) {
	limit, offset = normalizePage(limit, offset)
	m.s.mu.Lock()
	var all []domain.RecoveryCase
	for _, c := range m.s.cases {
		if c.BusinessID == businessID {
			all = append(all, *c.Clone())
		}
	}
	m.s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m memoryCases) Update(_ context.Context, c *domain.RecoveryCase, expectedVersion int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.cases[c.ID]
	if !ok || stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	next := c.Clone()
	next.Version = expectedVersion + 1
	m.s.cases[c.ID] = next
	c.Version = next.Version
	return nil
}

type memoryBusinesses struct{ s *MemoryStore }

func (m memoryBusinesses) GetByID(_ context.Context, id string) (*domain.Business, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	b, ok := m.s.businesses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) GetEmail(_ context.Context, userID string) (string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	email, ok := m.s.users[userID]
	if !ok || email == "" {
		return "", ErrNotFound
	}
	return email, nil
}

type memoryNPS struct{ s *MemoryStore }

func (m memoryNPS) Create(_ context.Context, r *domain.NPSResponse) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.nps[r.ID] = *r
	return nil
}
