package repository

import (
	"context"
	"errors"
	"time"

	"filescdn/internal/model"
)

var (
	ErrNotFound   = errors.New("file record not found")
	ErrEmptyQuery = errors.New("query must select at least one field")
)

// FileRepository is the file record store. Persistence only, no business logic.
type FileRepository interface {
	// Insert stores a new record.
	Insert(ctx context.Context, rec *model.FileRecord) error

	// Update applies a partial update to the record with the given id.
	// Returns ErrNotFound if no row matched.
	Update(ctx context.Context, id string, patch FilePatch) error

	// Remove deletes every record matching the query and returns the number of rows removed.
	// An empty query is rejected with ErrEmptyQuery.
	Remove(ctx context.Context, q FileQuery) (int64, error)

	// FindOne returns the first record matching the query or ErrNotFound.
	FindOne(ctx context.Context, q FileQuery) (*model.FileRecord, error)

	// Find returns every record matching the query.
	Find(ctx context.Context, q FileQuery) ([]model.FileRecord, error)

	// List returns a paginated list of records matching the query and the total count.
	List(ctx context.Context, q FileQuery, pq PageQuery) (*PageResult[model.FileRecord], error)
}

// FileQuery selects records by equality on the set fields.
type FileQuery struct {
	ID         string
	Collection string
	UserID     string
}

func (q FileQuery) Empty() bool {
	return q.ID == "" && q.Collection == "" && q.UserID == ""
}

// FilePatch holds the fields to change. Nil fields are left untouched.
type FilePatch struct {
	Size       *int64
	IsComplete *bool
	Checksum   *string
	Meta       map[string]any
	Versions   map[string]model.Version
	UpdatedAt  time.Time
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
