package ports

import (
	"context"
	"time"

	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
)

// LinkStore defines storage operations for links.
//
// Adapters return domain.ErrConflict and domain.ErrNotFound as bare signals and
// pass any other driver error through unchanged.
type LinkStore interface {
	// InsertIfAbsent atomically inserts link unless its code is taken and fills link.ID.
	InsertIfAbsent(ctx context.Context, link *domain.Link) error
	FindByCode(ctx context.Context, code string) (*domain.Link, error)
	FindByID(ctx context.Context, id int64) (*domain.Link, error)
	// IncrementClicks issues clicks = clicks + 1 and returns the rows affected.
	IncrementClicks(ctx context.Context, code string, at time.Time) (int64, error)
	UpdateCode(ctx context.Context, oldCode, newCode string) (*domain.Link, error)
	DeleteByID(ctx context.Context, id int64) (bool, error)
	CountAll(ctx context.Context) (int64, error)
	SumClicks(ctx context.Context) (int64, error)
	List(ctx context.Context, limit, offset int) ([]domain.Link, error)
	Dump(ctx context.Context) ([]domain.Link, error) // For migration

	Ping(ctx context.Context) error
	Close() error
}

// LinkService defines the business logic operations
type LinkService interface {
	Shorten(ctx context.Context, longURL, customCode string) (*domain.Link, error)
	Resolve(ctx context.Context, code string) (string, error)
	Rename(ctx context.Context, code, newCode string) (*domain.Link, error)
	GetLink(ctx context.Context, code string) (*domain.Link, error)
	ListLinks(ctx context.Context, page, limit int) (*domain.LinkPage, error)
	DeleteLink(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*domain.Stats, error)
	Export(ctx context.Context) ([]domain.Link, error)
	Health(ctx context.Context) error
}
