// Package memory holds mutex-guarded in-memory repositories used by the
// service and handler tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"perm_tracker/internal/domain/cases"
)

type CaseRepository struct {
	mu    sync.RWMutex
	items map[string]*cases.Case
}

func NewCaseRepository() *CaseRepository {
	return &CaseRepository{items: make(map[string]*cases.Case)}
}

func cloneCase(c *cases.Case) *cases.Case {
	out := *c
	out.RFIEntries = append(cases.RFIEntries(nil), c.RFIEntries...)
	out.RFEEntries = append(cases.RFEEntries(nil), c.RFEEntries...)
	if c.DeletedAt != nil {
		t := *c.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}

func (r *CaseRepository) Create(_ context.Context, c *cases.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[c.ID] = cloneCase(c)
	return nil
}

func (r *CaseRepository) Update(_ context.Context, c *cases.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[c.ID]; !ok {
		return cases.ErrNotFound
	}
	r.items[c.ID] = cloneCase(c)
	return nil
}

func (r *CaseRepository) GetByID(_ context.Context, id string) (*cases.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[id]
	if !ok {
		return nil, cases.ErrNotFound
	}
	return cloneCase(c), nil
}

func (r *CaseRepository) ListByUser(_ context.Context, userID string) ([]*cases.Case, error) {
	return r.filter(func(c *cases.Case) bool { return c.UserID == userID && !c.IsDeleted() }), nil
}

func (r *CaseRepository) ListReminderEligible(_ context.Context) ([]*cases.Case, error) {
	return r.filter(func(c *cases.Case) bool { return !c.IsDeleted() && !c.IsClosed() }), nil
}

func (r *CaseRepository) filter(keep func(*cases.Case) bool) []*cases.Case {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*cases.Case{}
	for _, c := range r.items {
		if keep(c) {
			out = append(out, cloneCase(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *CaseRepository) SoftDelete(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok || c.IsDeleted() {
		return cases.ErrNotFound
	}
	c.DeletedAt = &at
	c.UpdatedAt = at
	return nil
}

func (r *CaseRepository) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.items {
		if c.UserID == userID {
			delete(r.items, id)
			n++
		}
	}
	return n, nil
}
