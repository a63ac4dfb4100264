// Package memory is a process-local store backend. It backs STORE_DRIVER=memory
// and is the fixture for service and router tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/repository"
)

type Transactions struct {
	mu         sync.Mutex
	byID       map[string]*models.Transaction
	seq        map[string]int
	byMerchant map[string]string
	byCheckout map[string]string
	next       int
	now        func() time.Time
}

func NewTransactions() *Transactions {
	return &Transactions{
		byID:       map[string]*models.Transaction{},
		seq:        map[string]int{},
		byMerchant: map[string]string{},
		byCheckout: map[string]string{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for CreatedAt/UpdatedAt.
func (s *Transactions) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Transactions) Create(_ context.Context, tx models.Transaction) (models.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return models.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if _, ok := s.byID[tx.ID]; ok {
		return models.Transaction{}, repository.ErrDuplicate
	}
	tx.Status = models.TxnPending
	tx.MerchantRequestID, tx.CheckoutRequestID = nil, nil
	tx.CreatedAt = s.now()
	tx.UpdatedAt = tx.CreatedAt

	c := clone(tx)
	s.byID[tx.ID] = &c
	s.seq[tx.ID] = s.next
	s.next++
	return clone(c), nil
}

func (s *Transactions) GetByID(_ context.Context, id string) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return models.Transaction{}, repository.ErrNotFound
	}
	return clone(*t), nil
}

func (s *Transactions) ListByUser(_ context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page(func(t *models.Transaction) bool { return t.InvolvesUser(userID) }, limit, offset), nil
}

func (s *Transactions) List(_ context.Context, limit, offset int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page(func(*models.Transaction) bool { return true }, limit, offset), nil
}

// page returns matches newest first. Caller holds mu.
func (s *Transactions) page(keep func(*models.Transaction) bool, limit, offset int) []models.Transaction {
	var all []*models.Transaction
	for _, t := range s.byID {
		if keep(t) {
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return s.seq[all[i].ID] > s.seq[all[j].ID]
	})
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	out := make([]models.Transaction, 0, len(all))
	for _, t := range all {
		out = append(out, clone(*t))
	}
	return out
}

func (s *Transactions) FindByMerchantRequestID(_ context.Context, id string) (models.Transaction, error) {
	return s.findIndexed(s.byMerchant, id)
}

func (s *Transactions) FindByCheckoutRequestID(_ context.Context, id string) (models.Transaction, error) {
	return s.findIndexed(s.byCheckout, id)
}

func (s *Transactions) findIndexed(idx map[string]string, key string) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := idx[key]
	if !ok || key == "" {
		return models.Transaction{}, repository.ErrNotFound
	}
	return clone(*s.byID[id]), nil
}

func (s *Transactions) FindByPhoneAmountPending(_ context.Context, phone string, amount int64, since time.Time) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []*models.Transaction
	for _, t := range s.byID {
		if t.Status == models.TxnPending && t.PhoneNumber == phone && t.Amount == amount &&
			t.MerchantRequestID == nil && t.CheckoutRequestID == nil && !t.CreatedAt.Before(since) {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return models.Transaction{}, repository.ErrNotFound
	case 1:
		return clone(*found[0]), nil
	}
	return models.Transaction{}, repository.ErrAmbiguous
}

func (s *Transactions) UpdateStatus(_ context.Context, id string, status models.TransactionStatus, st models.Settlement) (models.Transaction, error) {
	if !models.CanTransition(models.TxnPending, status) {
		return models.Transaction{}, repository.ErrInvalidTransition
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return models.Transaction{}, repository.ErrNotFound
	}
	if !models.CanTransition(t.Status, status) {
		return clone(*t), repository.ErrConflict
	}
	t.Status = status
	st.Apply(t)
	t.UpdatedAt = s.now()
	return clone(*t), nil
}

func (s *Transactions) AttachGatewayIDs(_ context.Context, id, merchantID, checkoutID string) (models.Transaction, error) {
	if merchantID == "" || checkoutID == "" {
		return models.Transaction{}, repository.ErrConflict
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return models.Transaction{}, repository.ErrNotFound
	}
	if t.MerchantRequestID != nil || t.CheckoutRequestID != nil {
		if deref(t.MerchantRequestID) == merchantID && deref(t.CheckoutRequestID) == checkoutID {
			return clone(*t), nil
		}
		return clone(*t), repository.ErrConflict
	}
	if owner, ok := s.byMerchant[merchantID]; ok && owner != id {
		return models.Transaction{}, repository.ErrDuplicate
	}
	if owner, ok := s.byCheckout[checkoutID]; ok && owner != id {
		return models.Transaction{}, repository.ErrDuplicate
	}
	t.MerchantRequestID = &merchantID
	t.CheckoutRequestID = &checkoutID
	t.UpdatedAt = s.now()
	s.byMerchant[merchantID] = id
	s.byCheckout[checkoutID] = id
	return clone(*t), nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// clone copies pointer fields so callers cannot alias stored state.
func clone(t models.Transaction) models.Transaction {
	t.MerchantRequestID = ptr(t.MerchantRequestID)
	t.CheckoutRequestID = ptr(t.CheckoutRequestID)
	t.ResultCode = ptr(t.ResultCode)
	t.ResultDesc = ptr(t.ResultDesc)
	t.MpesaReceiptNumber = ptr(t.MpesaReceiptNumber)
	t.MpesaTransactionDate = ptr(t.MpesaTransactionDate)
	t.FailureReason = ptr(t.FailureReason)
	return t
}

func ptr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
