package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/storefront/storefront-go/internal/crypto"
	"github.com/storefront/storefront-go/internal/model"
	"github.com/storefront/storefront-go/internal/repository"
)

// DefaultCategories is the catalogue installed by Seeder.SeedCategories.
var DefaultCategories = []model.Category{
	{Name: "T-Shirt", Image: "assets/img/shop/category-thumb-1.jpg"},
	{Name: "Bags", Image: "assets/img/shop/category-thumb-2.jpg"},
	{Name: "Sandal", Image: "assets/img/shop/category-thumb-3.jpg"},
	{Name: "Scarf Cap", Image: "assets/img/shop/category-thumb-4.jpg"},
	{Name: "Shoes", Image: "assets/img/shop/category-thumb-5.jpg"},
	{Name: "Pillowcase", Image: "assets/img/shop/category-thumb-6.jpg"},
	{Name: "Jumpsuits", Image: "assets/img/shop/category-thumb-7.jpg"},
	{Name: "Hats", Image: "assets/img/shop/category-thumb-8.jpg"},
}

// Seeder installs the initial admin account and catalogue. Existing rows
// are never modified.
type Seeder struct {
	users      UserStore
	categories CategoryStore
}

// NewSeeder creates a new Seeder.
func NewSeeder(users UserStore, categories CategoryStore) *Seeder {
	return &Seeder{users: users, categories: categories}
}

// SeedAdmin creates a verified administrator unless the email is taken.
// It reports whether an account was created.
func (s *Seeder) SeedAdmin(ctx context.Context, email, password, firstName, lastName string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}

	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return false, err
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return false, err
	}

	admin := &model.User{
		Email:         email,
		FirstName:     firstName,
		LastName:      lastName,
		PasswordHash:  hash,
		IsAdmin:       true,
		EmailVerified: true,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return false, nil
		}
		return false, fmt.Errorf("creating admin: %w", err)
	}

	slog.Info("seeded admin user", "user_id", admin.ID, "email", admin.Email)
	return true, nil
}

// SeedCategories inserts every default category whose name is not yet
// present and returns how many were added.
func (s *Seeder) SeedCategories(ctx context.Context) (int, error) {
	existing, err := s.categories.List(ctx, true)
	if err != nil {
		return 0, err
	}

	names := make(map[string]bool, len(existing))
	for _, c := range existing {
		names[c.Name] = true
	}

	var added int
	for _, def := range DefaultCategories {
		if names[def.Name] {
			continue
		}

		c := def
		c.Slug = Slugify(c.Name)
		c.Status = model.CategoryActive
		err := saveWithFreeSlug(&c, func() error { return s.categories.Create(ctx, &c) })
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateCategory) {
				continue
			}
			return added, fmt.Errorf("creating category %q: %w", c.Name, err)
		}
		added++
	}

	slog.Info("seeded categories", "added", added)
	return added, nil
}
