package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/storefront/storefront-go/internal/model"
	"github.com/storefront/storefront-go/internal/repository"
)

var (
	ErrCategoryNotFound  = errors.New("category not found")
	ErrCategoryNameTaken = errors.New("category name already in use")
)

// maxSlugSuffix bounds the -2, -3, ... suffixes tried for a taken slug.
const maxSlugSuffix = 100

// CategoryStore persists categories. Create and Update report a taken name
// as repository.ErrDuplicateCategory and a taken slug as
// repository.ErrDuplicateSlug.
type CategoryStore interface {
	List(ctx context.Context, includeInactive bool) ([]model.Category, error)
	GetByID(ctx context.Context, id int64) (*model.Category, error)
	Create(ctx context.Context, c *model.Category) error
	Update(ctx context.Context, c *model.Category) error
	Delete(ctx context.Context, id int64) error
}

// CategoryService handles category business logic. Inactive categories are
// only visible to administrators.
type CategoryService struct {
	repo CategoryStore
}

// NewCategoryService creates a new CategoryService.
func NewCategoryService(repo CategoryStore) *CategoryService {
	return &CategoryService{repo: repo}
}

// List returns the categories visible to the caller.
func (s *CategoryService) List(ctx context.Context, isAdmin bool) ([]model.Category, error) {
	return s.repo.List(ctx, isAdmin)
}

// Get returns one category.
func (s *CategoryService) Get(ctx context.Context, id int64, isAdmin bool) (model.Category, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return model.Category{}, ErrCategoryNotFound
		}
		return model.Category{}, err
	}

	if c.Status != model.CategoryActive && !isAdmin {
		return model.Category{}, ErrCategoryNotFound
	}

	return *c, nil
}

// Create adds a category. Status defaults to ACTIVE.
func (s *CategoryService) Create(ctx context.Context, req model.CategoryRequest) (model.Category, error) {
	c := categoryFromRequest(req)

	err := saveWithFreeSlug(&c, func() error { return s.repo.Create(ctx, &c) })
	if err != nil {
		return model.Category{}, mapCategoryError(err)
	}

	return c, nil
}

// Update replaces every editable field of an existing category.
func (s *CategoryService) Update(ctx context.Context, id int64, req model.CategoryRequest) (model.Category, error) {
	c := categoryFromRequest(req)
	c.ID = id

	err := saveWithFreeSlug(&c, func() error { return s.repo.Update(ctx, &c) })
	if err != nil {
		return model.Category{}, mapCategoryError(err)
	}

	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return model.Category{}, mapCategoryError(err)
	}
	return *updated, nil
}

// Delete removes a category.
func (s *CategoryService) Delete(ctx context.Context, id int64) error {
	return mapCategoryError(s.repo.Delete(ctx, id))
}

func categoryFromRequest(req model.CategoryRequest) model.Category {
	name := strings.TrimSpace(req.Name)
	status := req.Status
	if status == "" {
		status = model.CategoryActive
	}

	return model.Category{
		Name:   name,
		Slug:   Slugify(name),
		Image:  strings.TrimSpace(req.Image),
		Status: status,
	}
}

// saveWithFreeSlug runs save, appending -2, -3, ... to c.Slug for as long as
// the store reports the slug as taken.
func saveWithFreeSlug(c *model.Category, save func() error) error {
	base := c.Slug
	for n := 2; ; n++ {
		err := save()
		if !errors.Is(err, repository.ErrDuplicateSlug) {
			return err
		}
		if n > maxSlugSuffix {
			return fmt.Errorf("no free slug for %q: %w", base, err)
		}
		c.Slug = base + "-" + strconv.Itoa(n)
	}
}

func mapCategoryError(err error) error {
	switch {
	case errors.Is(err, repository.ErrCategoryNotFound):
		return ErrCategoryNotFound
	case errors.Is(err, repository.ErrDuplicateCategory):
		return ErrCategoryNameTaken
	default:
		return err
	}
}

// Slugify turns a category name into its URL form: accents folded,
// lowercase ASCII letters and digits, words joined by single hyphens.
func Slugify(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}

	if b.Len() == 0 {
		return "category"
	}
	return b.String()
}
