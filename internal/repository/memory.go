package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/storefront/storefront-go/internal/model"
)

// MemoryUserRepository is a process-local user store with the same
// semantics as UserRepository. It backs `serve --in-memory` and tests.
type MemoryUserRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*model.User
}

// NewMemoryUserRepository creates an empty MemoryUserRepository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[int64]*model.User)}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == user.Email {
			return ErrDuplicateEmail
		}
	}

	r.nextID++
	now := time.Now().UTC()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *MemoryUserRepository) VerifyEmail(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.VerificationTokenHash != nil && *u.VerificationTokenHash == tokenHash {
			u.EmailVerified = true
			u.VerificationTokenHash = nil
			u.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrTokenNotFound
}

func (r *MemoryUserRepository) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryUserRepository) SetResetToken(_ context.Context, id int64, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	expiry := expiresAt.UTC().Truncate(time.Second)
	u.PasswordResetTokenHash = &tokenHash
	u.PasswordResetExpiry = &expiry
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryUserRepository) GetByResetToken(_ context.Context, tokenHash string, now time.Time) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.PasswordResetTokenHash == nil || *u.PasswordResetTokenHash != tokenHash {
			continue
		}
		if u.PasswordResetExpiry == nil || u.PasswordResetExpiry.Before(now) {
			return nil, ErrTokenNotFound
		}
		return cloneUser(u), nil
	}
	return nil, ErrTokenNotFound
}

func (r *MemoryUserRepository) ResetPassword(_ context.Context, tokenHash, passwordHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.PasswordResetTokenHash == nil || *u.PasswordResetTokenHash != tokenHash {
			continue
		}
		if u.PasswordResetExpiry == nil || u.PasswordResetExpiry.Before(now) {
			return ErrTokenNotFound
		}
		u.PasswordHash = passwordHash
		u.PasswordResetTokenHash = nil
		u.PasswordResetExpiry = nil
		u.UpdatedAt = time.Now().UTC()
		return nil
	}
	return ErrTokenNotFound
}

func cloneUser(u *model.User) *model.User {
	c := *u
	if u.VerificationTokenHash != nil {
		v := *u.VerificationTokenHash
		c.VerificationTokenHash = &v
	}
	if u.PasswordResetTokenHash != nil {
		v := *u.PasswordResetTokenHash
		c.PasswordResetTokenHash = &v
	}
	if u.PasswordResetExpiry != nil {
		v := *u.PasswordResetExpiry
		c.PasswordResetExpiry = &v
	}
	return &c
}

// MemoryCategoryRepository is a process-local category store.
type MemoryCategoryRepository struct {
	mu         sync.Mutex
	nextID     int64
	categories map[int64]model.Category
}

// NewMemoryCategoryRepository creates an empty MemoryCategoryRepository.
func NewMemoryCategoryRepository() *MemoryCategoryRepository {
	return &MemoryCategoryRepository{categories: make(map[int64]model.Category)}
}

func (r *MemoryCategoryRepository) List(_ context.Context, includeInactive bool) ([]model.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []model.Category{}
	for _, c := range r.categories {
		if includeInactive || c.Status == model.CategoryActive {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b model.Category) int { return int(a.ID - b.ID) })
	return out, nil
}

func (r *MemoryCategoryRepository) GetByID(_ context.Context, id int64) (*model.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.categories[id]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	return &c, nil
}

func (r *MemoryCategoryRepository) Create(_ context.Context, c *model.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.conflict(c); err != nil {
		return err
	}

	r.nextID++
	now := time.Now().UTC()
	c.ID = r.nextID
	c.CreatedAt = now
	c.UpdatedAt = now
	r.categories[c.ID] = *c
	return nil
}

func (r *MemoryCategoryRepository) Update(_ context.Context, c *model.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.categories[c.ID]
	if !ok {
		return ErrCategoryNotFound
	}
	if err := r.conflict(c); err != nil {
		return err
	}

	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	r.categories[c.ID] = *c
	return nil
}

func (r *MemoryCategoryRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.categories[id]; !ok {
		return ErrCategoryNotFound
	}
	delete(r.categories, id)
	return nil
}

// conflict reports which unique column of c another category already uses.
// Names compare byte for byte, matching the utf8mb4_bin column.
func (r *MemoryCategoryRepository) conflict(c *model.Category) error {
	slugTaken := false
	for id, other := range r.categories {
		if id == c.ID {
			continue
		}
		if other.Name == c.Name {
			return ErrDuplicateCategory
		}
		if other.Slug == c.Slug {
			slugTaken = true
		}
	}
	if slugTaken {
		return ErrDuplicateSlug
	}
	return nil
}
