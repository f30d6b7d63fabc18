package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/storefront/storefront-go/internal/model"
)

var (
	ErrCategoryNotFound  = errors.New("category not found")
	ErrDuplicateCategory = errors.New("category already exists")
	ErrDuplicateSlug     = errors.New("category slug already exists")
)

const (
	categoryColumns = `id, name, slug, image, status, created_at, updated_at`

	listCategoriesQuery       = `SELECT ` + categoryColumns + ` FROM categories ORDER BY id`
	listActiveCategoriesQuery = `SELECT ` + categoryColumns + ` FROM categories WHERE status = 'ACTIVE' ORDER BY id`
	selectCategoryQuery       = `SELECT ` + categoryColumns + ` FROM categories WHERE id = ?`

	insertCategoryQuery = `INSERT INTO categories (name, slug, image, status) VALUES (?, ?, ?, ?)`
	updateCategoryQuery = `UPDATE categories SET name = ?, slug = ?, image = ?, status = ? WHERE id = ?`
	deleteCategoryQuery = `DELETE FROM categories WHERE id = ?`

	slugUniqueKey = "uq_categories_slug"
)

// CategoryRepository handles category persistence operations.
type CategoryRepository struct {
	db *sql.DB
}

// NewCategoryRepository creates a new CategoryRepository.
func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// List returns categories ordered by ID. Inactive categories are only
// included when includeInactive is set.
func (r *CategoryRepository) List(ctx context.Context, includeInactive bool) ([]model.Category, error) {
	query := listActiveCategoriesQuery
	if includeInactive {
		query = listCategoriesQuery
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	categories := []model.Category{}
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Image, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}

// GetByID retrieves a category by its ID.
func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*model.Category, error) {
	var c model.Category
	err := r.db.QueryRowContext(ctx, selectCategoryQuery, id).Scan(
		&c.ID, &c.Name, &c.Slug, &c.Image, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("querying category: %w", err)
	}

	return &c, nil
}

// Create inserts a new category and sets the generated ID on it.
func (r *CategoryRepository) Create(ctx context.Context, c *model.Category) error {
	result, err := r.db.ExecContext(ctx, insertCategoryQuery, c.Name, c.Slug, c.Image, c.Status)
	if err != nil {
		if isDuplicateEntryError(err) {
			return duplicateCategoryError(err)
		}
		return fmt.Errorf("inserting category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading category id: %w", err)
	}

	now := time.Now().UTC()
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// Update overwrites the mutable fields of an existing category.
func (r *CategoryRepository) Update(ctx context.Context, c *model.Category) error {
	result, err := r.db.ExecContext(ctx, updateCategoryQuery, c.Name, c.Slug, c.Image, c.Status, c.ID)
	if err != nil {
		if isDuplicateEntryError(err) {
			return duplicateCategoryError(err)
		}
		return fmt.Errorf("updating category: %w", err)
	}

	return requireRow(result, ErrCategoryNotFound)
}

// Delete removes a category.
func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, deleteCategoryQuery, id)
	if err != nil {
		return fmt.Errorf("deleting category: %w", err)
	}

	return requireRow(result, ErrCategoryNotFound)
}

// duplicateCategoryError tells a taken slug apart from a taken name.
func duplicateCategoryError(err error) error {
	if isDuplicateKeyError(err, slugUniqueKey) {
		return ErrDuplicateSlug
	}
	return ErrDuplicateCategory
}

func requireRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
