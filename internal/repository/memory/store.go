package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/repository"
)

type Listings struct {
	mu   sync.Mutex
	byID map[string]models.Listing
}

func NewListings(seed ...models.Listing) *Listings {
	l := &Listings{byID: map[string]models.Listing{}}
	l.Seed(seed...)
	return l
}

// Seed inserts or replaces listings. The catalogue itself is managed elsewhere.
func (s *Listings) Seed(ls ...models.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range ls {
		if l.Status == "" {
			l.Status = models.ListingActive
		}
		s.byID[l.ID] = l
	}
}

func (s *Listings) GetByID(_ context.Context, id string) (models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byID[id]
	if !ok {
		return models.Listing{}, repository.ErrNotFound
	}
	return l, nil
}

func (s *Listings) MarkSold(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	l.Status = models.ListingSold
	l.UpdatedAt = time.Now().UTC()
	s.byID[id] = l
	return nil
}

type Users struct {
	mu      sync.Mutex
	byID    map[string]models.User
	byEmail map[string]string
}

func NewUsers() *Users {
	return &Users{byID: map[string]models.User{}, byEmail: map[string]string{}}
}

func (s *Users) Create(_ context.Context, u models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(u.Email)
	if _, ok := s.byEmail[email]; ok {
		return models.User{}, repository.ErrDuplicate
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = email
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	s.byID[u.ID] = u
	s.byEmail[email] = u.ID
	return u, nil
}

func (s *Users) GetByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (s *Users) GetByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return s.byID[id], nil
}

type AuditLogs struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func NewAuditLogs() *AuditLogs { return &AuditLogs{} }

func (s *AuditLogs) Create(_ context.Context, l models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, l)
	return nil
}

// Entries returns a snapshot of everything written so far.
func (s *AuditLogs) Entries() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditLog(nil), s.entries...)
}

// NewRepositories builds a process-local store, optionally seeded with
// listings.
func NewRepositories(listings ...models.Listing) repository.Repositories {
	return repository.Repositories{
		Users:        NewUsers(),
		Listings:     NewListings(listings...),
		Transactions: NewTransactions(),
		AuditLogs:    NewAuditLogs(),
		Close:        func() {},
	}
}
