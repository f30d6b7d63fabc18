package model

import "time"

// CategoryStatus controls public visibility of a category.
type CategoryStatus string

const (
	CategoryActive   CategoryStatus = "ACTIVE"
	CategoryInactive CategoryStatus = "INACTIVE"
)

// Category represents a product category in the database.
type Category struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	Image     string         `json:"image"`
	Status    CategoryStatus `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// CategoryRequest is the body of category create and update requests.
// An omitted status defaults to ACTIVE.
type CategoryRequest struct {
	Name   string         `json:"name" validate:"required,max=100"`
	Image  string         `json:"image" validate:"required,imageref,max=500"`
	Status CategoryStatus `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
}
