package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
	"github.com/wadjakorntonsri/tinylink/pkg/ports"
)

// RedirectResolver turns a code into its destination and counts the visit.
type RedirectResolver struct {
	store ports.LinkStore
	log   *slog.Logger
	now   func() time.Time
}

func NewRedirectResolver(store ports.LinkStore, log *slog.Logger) *RedirectResolver {
	if log == nil {
		log = slog.Default()
	}
	return &RedirectResolver{store: store, log: log, now: time.Now}
}

// ResolveAndTrack looks the code up byte-for-byte, increments its counter in
// the store and returns the long URL read by the lookup.
func (r *RedirectResolver) ResolveAndTrack(ctx context.Context, code string) (string, error) {
	log := r.log.With("code", code)
	log.Debug("resolve attempt")

	// A malformed code can never have been stored.
	if ValidateCode("code", code) != nil {
		log.Info("resolve miss", "reason", "malformed code")
		return "", fmt.Errorf("%w: %q", domain.ErrNotFound, code)
	}

	link, err := r.store.FindByCode(ctx, code)
	if err != nil {
		if domain.IsNotFound(err) {
			log.Info("resolve miss")
			return "", fmt.Errorf("%w: %q", domain.ErrNotFound, code)
		}
		log.Error("resolve failed", "op", "findByCode", "error", err)
		return "", storeErr("findByCode", code, 0, err)
	}

	n, err := r.store.IncrementClicks(ctx, code, r.now().UTC())
	if err != nil {
		log.Error("resolve failed", "op", "incrementClicks", "error", err)
		return "", storeErr("incrementClicks", code, 0, err)
	}
	if n == 0 {
		// Renamed or deleted between lookup and increment.
		log.Warn("click increment affected no rows", "id", link.ID)
	}

	log.Debug("resolve succeeded", "id", link.ID)
	return link.LongURL, nil
}
