package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"perm_tracker/internal/domain/user"
)

type UserRepository struct {
	mu       sync.RWMutex
	users    map[string]*user.User
	profiles map[string]*user.Profile
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:    make(map[string]*user.User),
		profiles: make(map[string]*user.Profile),
	}
}

// Put stores a user and, when p is non-nil, its profile.
func (r *UserRepository) Put(u *user.User, p *user.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cu := *u
	r.users[u.ID] = &cu
	if p != nil {
		cp := *p
		r.profiles[u.ID] = &cp
	}
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (r *UserRepository) SetDeletedAt(_ context.Context, id string, deletedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return user.ErrNotFound
	}
	if deletedAt == nil {
		u.DeletedAt = nil
		return nil
	}
	t := *deletedAt
	u.DeletedAt = &t
	return nil
}

func (r *UserRepository) ListExpiredDeletions(_ context.Context, now time.Time, limit int) ([]*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*user.User
	for _, u := range r.users {
		if u.DeletedAt != nil && !u.DeletedAt.After(now) {
			cu := *u
			out = append(out, &cu)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeletedAt.Before(*out[j].DeletedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *UserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

func (r *UserRepository) GetProfile(_ context.Context, userID string) (*user.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, user.ErrProfileNotFound
	}
	out := *p
	return &out, nil
}

func (r *UserRepository) DeleteProfile(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.profiles, userID)
	return nil
}

type PreferencesRepository struct {
	mu    sync.RWMutex
	users *UserRepository
	items map[string]*user.Preferences
}

// NewPreferencesRepository needs the user store to resolve digest recipients.
func NewPreferencesRepository(users *UserRepository) *PreferencesRepository {
	return &PreferencesRepository{users: users, items: make(map[string]*user.Preferences)}
}

func clonePreferences(p *user.Preferences) *user.Preferences {
	out := *p
	out.ReminderDaysBefore = append([]int(nil), p.ReminderDaysBefore...)
	return &out
}

func (r *PreferencesRepository) Get(_ context.Context, userID string) (*user.Preferences, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[userID]
	if !ok {
		return nil, user.ErrPreferencesNotFound
	}
	return clonePreferences(p), nil
}

func (r *PreferencesRepository) Upsert(_ context.Context, p *user.Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[p.UserID] = clonePreferences(p)
	return nil
}

func (r *PreferencesRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, userID)
	return nil
}

// ListDigestRecipients walks every active user. Users without stored
// preferences get the defaults, like the Postgres query.
func (r *PreferencesRepository) ListDigestRecipients(_ context.Context) ([]*user.Preferences, error) {
	r.users.mu.RLock()
	active := make([]string, 0, len(r.users.users))
	for id, u := range r.users.users {
		if u.DeletedAt == nil {
			active = append(active, id)
		}
	}
	r.users.mu.RUnlock()
	sort.Strings(active)

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*user.Preferences, 0, len(active))
	for _, id := range active {
		p := user.DefaultPreferences(id)
		if stored, ok := r.items[id]; ok {
			p = clonePreferences(stored)
		}
		if p.EmailNotificationsEnabled && p.EmailWeeklyDigest {
			out = append(out, p)
		}
	}
	return out, nil
}

// RateLimitRepository stores auth rate-limit hits as timestamps.
type RateLimitRepository struct {
	mu   sync.Mutex
	hits []time.Time
}

func NewRateLimitRepository() *RateLimitRepository {
	return &RateLimitRepository{}
}

// Record adds one rate-limit hit.
func (r *RateLimitRepository) Record(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, at)
}

// Len returns the number of stored hits.
func (r *RateLimitRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hits)
}

func (r *RateLimitRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.hits[:0]
	var deleted int64
	for _, t := range r.hits {
		if t.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, t)
	}
	r.hits = kept
	return deleted, nil
}
