package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
	"github.com/wadjakorntonsri/tinylink/pkg/ports"
)

// MaxAllocationAttempts bounds random code generation. With 62^6 codes, running
// out means the random source is broken, not that the table is full.
const MaxAllocationAttempts = 5

// CodeAllocator reserves a code for a new long URL.
type CodeAllocator struct {
	store       ports.LinkStore
	gen         CodeGenerator
	log         *slog.Logger
	now         func() time.Time
	maxAttempts int
}

func NewCodeAllocator(store ports.LinkStore, gen CodeGenerator, log *slog.Logger) *CodeAllocator {
	if gen == nil {
		gen = RandomGenerator{Length: GeneratedCodeLength}
	}
	if log == nil {
		log = slog.Default()
	}
	return &CodeAllocator{
		store:       store,
		gen:         gen,
		log:         log,
		now:         time.Now,
		maxAttempts: MaxAllocationAttempts,
	}
}

// Allocate validates longURL and stores it under requestedCode, or under a
// generated code when requestedCode is empty.
func (a *CodeAllocator) Allocate(ctx context.Context, longURL, requestedCode string) (*domain.Link, error) {
	dest, err := NormalizeURL(longURL)
	if err != nil {
		a.log.Info("allocation rejected", "reason", err.Error())
		return nil, err
	}

	requestedCode = strings.TrimSpace(requestedCode)
	if requestedCode != "" {
		if err := ValidateCode("custom_code", requestedCode); err != nil {
			a.log.Info("allocation rejected", "reason", err.Error())
			return nil, err
		}
		a.log.Debug("allocation attempt", "code", requestedCode, "custom", true)
		link, err := a.reserve(ctx, requestedCode, dest)
		if err != nil {
			if domain.IsConflict(err) {
				a.log.Info("allocation failed", "code", requestedCode, "error", err)
				return nil, fmt.Errorf("%w: %q", domain.ErrConflict, requestedCode)
			}
			a.log.Error("allocation failed", "code", requestedCode, "error", err)
			return nil, err
		}
		a.log.Info("allocation succeeded", "code", link.Code, "id", link.ID, "custom", true)
		return link, nil
	}

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		code, err := a.gen.NewCode()
		if err != nil {
			a.log.Error("code generation failed", "attempt", attempt, "error", err)
			return nil, fmt.Errorf("generate code: %w", err)
		}
		a.log.Debug("allocation attempt", "code", code, "attempt", attempt)

		link, err := a.reserve(ctx, code, dest)
		if err == nil {
			a.log.Info("allocation succeeded", "code", link.Code, "id", link.ID, "attempts", attempt)
			return link, nil
		}
		if !domain.IsConflict(err) {
			a.log.Error("allocation failed", "code", code, "error", err)
			return nil, err
		}
		a.log.Warn("code collision", "code", code, "attempt", attempt)
	}

	a.log.Error("allocation exhausted", "attempts", a.maxAttempts)
	return nil, fmt.Errorf("%w after %d attempts", domain.ErrAllocationExhausted, a.maxAttempts)
}

// reserve relies on the store's unique constraint; there is no existence pre-check.
func (a *CodeAllocator) reserve(ctx context.Context, code, dest string) (*domain.Link, error) {
	link := &domain.Link{
		Code:      code,
		LongURL:   dest,
		CreatedAt: a.now().UTC(),
	}
	if err := a.store.InsertIfAbsent(ctx, link); err != nil {
		return nil, storeErr("insertIfAbsent", code, 0, err)
	}
	return link, nil
}

// storeErr passes the store's conflict and not-found signals through and wraps
// everything else with the operation context.
func storeErr(op, code string, id int64, err error) error {
	if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	var se *domain.StoreError
	if errors.As(err, &se) {
		return err
	}
	return &domain.StoreError{Op: op, Code: code, ID: id, Err: err}
}
