package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"social-publisher/domain/model"
)

type credentialKey struct {
	userID   string
	platform model.Platform
}

// MemoryCredentialRepository keeps credentials in process. Used for simulated
// mode and tests. Values are cloned on the way in and out.
type MemoryCredentialRepository struct {
	mu    sync.RWMutex
	items map[credentialKey]*model.Credential
	locks sync.Map // credentialKey -> *sync.Mutex
	now   func() time.Time
}

func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{
		items: map[credentialKey]*model.Credential{},
		now:   time.Now,
	}
}

func (r *MemoryCredentialRepository) keyLock(k credentialKey) *sync.Mutex {
	l, _ := r.locks.LoadOrStore(k, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (r *MemoryCredentialRepository) Get(ctx context.Context, userID string, platform model.Platform) (*model.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[credentialKey{userID, platform}]
	if !ok || !c.IsActive {
		return nil, model.ErrCredentialNotFound
	}
	return c.Clone(), nil
}

func (r *MemoryCredentialRepository) Upsert(ctx context.Context, c *model.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := credentialKey{c.UserID, c.Platform}
	l := r.keyLock(k)
	l.Lock()
	defer l.Unlock()

	r.mu.RLock()
	existing := r.items[k]
	r.mu.RUnlock()
	if existing != nil {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	}
	prepareForUpsert(c, r.now())

	r.mu.Lock()
	r.items[k] = c.Clone()
	r.mu.Unlock()
	return nil
}

func (r *MemoryCredentialRepository) UpdateTokens(ctx context.Context, c *model.Credential, prevRefreshToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := credentialKey{c.UserID, c.Platform}
	l := r.keyLock(k)
	l.Lock()
	defer l.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[k]
	if !ok || !existing.IsActive || existing.RefreshToken != prevRefreshToken {
		return model.ErrCredentialNotFound
	}
	existing.AccessToken = c.AccessToken
	existing.RefreshToken = c.RefreshToken
	existing.ExpiresAt = nil
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		existing.ExpiresAt = &t
	}
	existing.UpdatedAt = r.now().UTC()
	c.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *MemoryCredentialRepository) Delete(ctx context.Context, userID string, platform model.Platform) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := credentialKey{userID, platform}
	l := r.keyLock(k)
	l.Lock()
	defer l.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[k]
	if !ok || !c.IsActive {
		return model.ErrCredentialNotFound
	}
	c.IsActive = false
	c.AccessToken = ""
	c.RefreshToken = ""
	c.UpdatedAt = r.now().UTC()
	return nil
}

func (r *MemoryCredentialRepository) ListActive(ctx context.Context, userID string) ([]*model.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Credential
	for k, c := range r.items {
		if k.userID == userID && c.IsActive {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}
