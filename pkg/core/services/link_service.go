package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
	"github.com/wadjakorntonsri/tinylink/pkg/ports"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	// MaxPage keeps (page-1)*limit far from int overflow.
	MaxPage = 1 << 20
)

type LinkService struct {
	repo      ports.LinkStore
	allocator *CodeAllocator
	resolver  *RedirectResolver
	log       *slog.Logger
}

func NewLinkService(repo ports.LinkStore, log *slog.Logger) *LinkService {
	return NewLinkServiceWithGenerator(repo, nil, log)
}

// NewLinkServiceWithGenerator is NewLinkService with a custom code generator.
func NewLinkServiceWithGenerator(repo ports.LinkStore, gen CodeGenerator, log *slog.Logger) *LinkService {
	if log == nil {
		log = slog.Default()
	}
	return &LinkService{
		repo:      repo,
		allocator: NewCodeAllocator(repo, gen, log.With("component", "allocator")),
		resolver:  NewRedirectResolver(repo, log.With("component", "resolver")),
		log:       log,
	}
}

func (s *LinkService) Shorten(ctx context.Context, longURL, customCode string) (*domain.Link, error) {
	return s.allocator.Allocate(ctx, longURL, customCode)
}

func (s *LinkService) Resolve(ctx context.Context, code string) (string, error) {
	return s.resolver.ResolveAndTrack(ctx, code)
}

// Rename moves a link to newCode. ID, clicks and creation time are kept.
func (s *LinkService) Rename(ctx context.Context, code, newCode string) (*domain.Link, error) {
	newCode = strings.TrimSpace(newCode)
	if err := ValidateCode("new_code", newCode); err != nil {
		return nil, err
	}
	if ValidateCode("code", code) != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrNotFound, code)
	}

	link, err := s.repo.UpdateCode(ctx, code, newCode)
	switch {
	case err == nil:
		s.log.Info("link renamed", "id", link.ID, "from", code, "to", newCode)
		return link, nil
	case domain.IsConflict(err):
		s.log.Info("rename rejected", "from", code, "to", newCode, "error", err)
		return nil, fmt.Errorf("%w: %q", domain.ErrConflict, newCode)
	case domain.IsNotFound(err):
		return nil, fmt.Errorf("%w: %q", domain.ErrNotFound, code)
	default:
		s.log.Error("rename failed", "from", code, "to", newCode, "error", err)
		return nil, storeErr("updateCode", code, 0, err)
	}
}

func (s *LinkService) GetLink(ctx context.Context, code string) (*domain.Link, error) {
	if ValidateCode("code", code) != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrNotFound, code)
	}
	link, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %q", domain.ErrNotFound, code)
		}
		return nil, storeErr("findByCode", code, 0, err)
	}
	return link, nil
}

func (s *LinkService) ListLinks(ctx context.Context, page, limit int) (*domain.LinkPage, error) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := (page - 1) * limit

	links, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, storeErr("list", "", 0, err)
	}

	count, err := s.repo.CountAll(ctx)
	if err != nil {
		return nil, storeErr("countAll", "", 0, err)
	}

	return &domain.LinkPage{Links: links, Total: count, Page: page, Limit: limit}, nil
}

func (s *LinkService) DeleteLink(ctx context.Context, id int64) error {
	deleted, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		s.log.Error("delete failed", "id", id, "error", err)
		return storeErr("deleteById", "", id, err)
	}
	if !deleted {
		return fmt.Errorf("%w: id %d", domain.ErrNotFound, id)
	}
	s.log.Info("link deleted", "id", id)
	return nil
}

func (s *LinkService) Stats(ctx context.Context) (*domain.Stats, error) {
	links, err := s.repo.CountAll(ctx)
	if err != nil {
		return nil, storeErr("countAll", "", 0, err)
	}
	clicks, err := s.repo.SumClicks(ctx)
	if err != nil {
		return nil, storeErr("sumClicks", "", 0, err)
	}
	return &domain.Stats{TotalLinks: links, TotalClicks: clicks}, nil
}

func (s *LinkService) Export(ctx context.Context) ([]domain.Link, error) {
	links, err := s.repo.Dump(ctx)
	if err != nil {
		return nil, storeErr("dump", "", 0, err)
	}
	return links, nil
}

func (s *LinkService) Health(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return storeErr("ping", "", 0, err)
	}
	return nil
}

// Ensure interface compliance
var _ ports.LinkService = (*LinkService)(nil)
