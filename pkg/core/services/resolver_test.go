package services_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wadjakorntonsri/tinylink/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
	"github.com/wadjakorntonsri/tinylink/pkg/core/services"
)

// renamingStore moves the link away between lookup and increment.
type renamingStore struct {
	*sqlite.SQLiteRepository
	to string
}

func (s *renamingStore) IncrementClicks(ctx context.Context, code string, at time.Time) (int64, error) {
	if _, err := s.UpdateCode(ctx, code, s.to); err != nil {
		return 0, err
	}
	return s.SQLiteRepository.IncrementClicks(ctx, code, at)
}

// brokenCounterStore fails every increment.
type brokenCounterStore struct {
	*sqlite.SQLiteRepository
}

func (brokenCounterStore) IncrementClicks(context.Context, string, time.Time) (int64, error) {
	return 0, errors.New("disk I/O error")
}

func TestResolveScenario(t *testing.T) {
	repo := newRepo(t)
	svc := services.NewLinkService(repo, quietLogger())
	ctx := context.Background()

	link, err := svc.Shorten(ctx, "https://example.com/page", "")
	if err != nil {
		t.Fatalf("Shorten: %v", err)
	}
	if len(link.Code) != 6 {
		t.Fatalf("expected a 6-character code, got %q", link.Code)
	}
	stored, err := repo.FindByCode(ctx, link.Code)
	if err != nil || stored.Clicks != 0 {
		t.Fatalf("expected stored row with 0 clicks, got %+v, %v", stored, err)
	}

	dest, err := svc.Resolve(ctx, link.Code)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dest != "https://example.com/page" {
		t.Errorf("unexpected destination %q", dest)
	}

	stored, err = repo.FindByCode(ctx, link.Code)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Clicks != 1 {
		t.Errorf("expected 1 click, got %d", stored.Clicks)
	}
	if stored.LastClickedAt == nil {
		t.Error("expected last_clicked_at to be set")
	}
}

func TestResolveNotFound(t *testing.T) {
	resolver := services.NewRedirectResolver(newRepo(t), quietLogger())

	for _, code := range []string{"absent", "abc", "has space", "toolongcode"} {
		if _, err := resolver.ResolveAndTrack(context.Background(), code); !domain.IsNotFound(err) {
			t.Errorf("ResolveAndTrack(%q): expected not found, got %v", code, err)
		}
	}
}

func TestResolveIsExactMatch(t *testing.T) {
	repo := newRepo(t)
	svc := services.NewLinkService(repo, quietLogger())
	ctx := context.Background()
	if _, err := svc.Shorten(ctx, "https://example.com", "CaseCode"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Resolve(ctx, "casecode"); !domain.IsNotFound(err) {
		t.Fatalf("expected lower-cased code to miss, got %v", err)
	}
	if _, err := svc.Resolve(ctx, "CaseCode"); err != nil {
		t.Fatalf("exact code should resolve: %v", err)
	}
}

func TestResolveConcurrentClicks(t *testing.T) {
	const n = 50
	repo := newRepo(t)
	svc := services.NewLinkService(repo, quietLogger())
	ctx := context.Background()

	link, err := svc.Shorten(ctx, "https://example.com/viral", "viral1")
	if err != nil {
		t.Fatal(err)
	}

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			dest, err := svc.Resolve(ctx, link.Code)
			if err != nil {
				return err
			}
			if dest != link.LongURL {
				return errors.New("wrong destination " + dest)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent resolve: %v", err)
	}

	stored, err := repo.FindByCode(ctx, link.Code)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Clicks != n {
		t.Errorf("expected %d clicks, got %d", n, stored.Clicks)
	}
}

func TestResolveToleratesRenameRace(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	seed := services.NewLinkService(repo, quietLogger())
	if _, err := seed.Shorten(ctx, "https://example.com/race", "racing"); err != nil {
		t.Fatal(err)
	}

	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))
	resolver := services.NewRedirectResolver(&renamingStore{SQLiteRepository: repo, to: "moved1"}, log)

	dest, err := resolver.ResolveAndTrack(ctx, "racing")
	if err != nil {
		t.Fatalf("redirect must not fail on the rename race: %v", err)
	}
	if dest != "https://example.com/race" {
		t.Errorf("unexpected destination %q", dest)
	}
	if !strings.Contains(logs.String(), "click increment affected no rows") {
		t.Errorf("expected a warning about the lost increment, logs: %s", logs.String())
	}

	moved, err := repo.FindByCode(ctx, "moved1")
	if err != nil {
		t.Fatal(err)
	}
	if moved.Clicks != 0 {
		t.Errorf("increment should have missed the renamed row, got %d clicks", moved.Clicks)
	}
}

func TestResolveSurfacesIncrementFaults(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	if _, err := services.NewLinkService(repo, quietLogger()).Shorten(ctx, "https://example.com", "broken"); err != nil {
		t.Fatal(err)
	}

	resolver := services.NewRedirectResolver(brokenCounterStore{repo}, quietLogger())
	_, err := resolver.ResolveAndTrack(ctx, "broken")

	var se *domain.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected a StoreError, got %v", err)
	}
	if se.Op != "incrementClicks" || se.Code != "broken" {
		t.Errorf("unexpected store error context: %+v", se)
	}
	if !strings.Contains(err.Error(), "disk I/O error") {
		t.Errorf("driver detail should be kept for operators: %v", err)
	}
}
