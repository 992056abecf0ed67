package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/wadjakorntonsri/tinylink/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
	"github.com/wadjakorntonsri/tinylink/pkg/core/services"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRepo(t *testing.T) *sqlite.SQLiteRepository {
	t.Helper()
	repo, err := sqlite.NewSQLiteRepository("file:" + filepath.Join(t.TempDir(), "links.db"))
	if err != nil {
		t.Fatalf("Failed to init db: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// scriptedGenerator hands out codes in order and then repeats the last one.
type scriptedGenerator struct {
	codes []string
	calls int
}

func (g *scriptedGenerator) NewCode() (string, error) {
	i := g.calls
	if i >= len(g.codes) {
		i = len(g.codes) - 1
	}
	g.calls++
	return g.codes[i], nil
}

type failingGenerator struct{}

func (failingGenerator) NewCode() (string, error) { return "", errors.New("entropy source unavailable") }

func TestAllocateGeneratesCode(t *testing.T) {
	repo := newRepo(t)
	allocator := services.NewCodeAllocator(repo, nil, quietLogger())
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		link, err := allocator.Allocate(ctx, "https://example.com/page", "")
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if len(link.Code) != services.GeneratedCodeLength {
			t.Fatalf("expected a 6-character code, got %q", link.Code)
		}
		for _, c := range link.Code {
			if !strings.ContainsRune(alphabet, c) {
				t.Fatalf("code %q contains %q outside the alphabet", link.Code, c)
			}
		}

		stored, err := repo.FindByCode(ctx, link.Code)
		if err != nil {
			t.Fatalf("FindByCode: %v", err)
		}
		if stored.Clicks != 0 || stored.ID != link.ID {
			t.Errorf("unexpected stored row: %+v", stored)
		}
	}
}

func TestAllocateValidation(t *testing.T) {
	allocator := services.NewCodeAllocator(newRepo(t), nil, quietLogger())

	tests := []struct {
		name    string
		longURL string
		code    string
	}{
		{name: "Empty URL", longURL: ""},
		{name: "Blank URL", longURL: "   "},
		{name: "Not a URL", longURL: "not-a-url"},
		{name: "Relative URL", longURL: "/just/a/path"},
		{name: "Unsupported scheme", longURL: "ftp://example.com/file"},
		{name: "Missing host", longURL: "https://"},
		{name: "Too long URL", longURL: "https://example.com/" + strings.Repeat("a", 2048)},
		{name: "Code too short", longURL: "https://example.com", code: "abc"},
		{name: "Code too long", longURL: "https://example.com", code: "abcdefghi"},
		{name: "Code with symbols", longURL: "https://example.com", code: "abc-123"},
		{name: "Code with unicode", longURL: "https://example.com", code: "abcdé1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := allocator.Allocate(context.Background(), tt.longURL, tt.code)
			if !domain.IsValidation(err) {
				t.Fatalf("expected a validation error, got %v", err)
			}
			var ve *domain.ValidationError
			if !errors.As(err, &ve) || ve.Reason == "" {
				t.Errorf("expected a descriptive ValidationError, got %#v", err)
			}
		})
	}
}

func TestAllocateCustomCode(t *testing.T) {
	repo := newRepo(t)
	allocator := services.NewCodeAllocator(repo, nil, quietLogger())
	ctx := context.Background()

	link, err := allocator.Allocate(ctx, "  https://example.com/custom  ", "MyCode8")
	if err != nil {
		t.Fatalf("first Allocate: %v", err)
	}
	if link.Code != "MyCode8" || link.LongURL != "https://example.com/custom" {
		t.Errorf("unexpected link: %+v", link)
	}

	_, err = allocator.Allocate(ctx, "https://example.com/other", "MyCode8")
	if !domain.IsConflict(err) {
		t.Fatalf("expected a conflict on the second allocation, got %v", err)
	}

	// Same letters, different case: a different code.
	if _, err := allocator.Allocate(ctx, "https://example.com/other", "mycode8"); err != nil {
		t.Fatalf("case-different code should be free: %v", err)
	}
}

func TestAllocateRetriesOnCollision(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	taken := services.NewCodeAllocator(repo, nil, quietLogger())
	if _, err := taken.Allocate(ctx, "https://example.com/a", "taken1"); err != nil {
		t.Fatal(err)
	}
	if _, err := taken.Allocate(ctx, "https://example.com/b", "taken2"); err != nil {
		t.Fatal(err)
	}

	gen := &scriptedGenerator{codes: []string{"taken1", "taken2", "free01"}}
	allocator := services.NewCodeAllocator(repo, gen, quietLogger())

	link, err := allocator.Allocate(ctx, "https://example.com/c", "")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if link.Code != "free01" {
		t.Errorf("expected free01, got %s", link.Code)
	}
	if gen.calls != 3 {
		t.Errorf("expected 3 generation attempts, got %d", gen.calls)
	}
}

func TestAllocateExhausted(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	seed := services.NewCodeAllocator(repo, nil, quietLogger())
	if _, err := seed.Allocate(ctx, "https://example.com/a", "stuck1"); err != nil {
		t.Fatal(err)
	}

	gen := &scriptedGenerator{codes: []string{"stuck1"}}
	allocator := services.NewCodeAllocator(repo, gen, quietLogger())

	_, err := allocator.Allocate(ctx, "https://example.com/b", "")
	if !domain.IsExhausted(err) {
		t.Fatalf("expected ErrAllocationExhausted, got %v", err)
	}
	if gen.calls != services.MaxAllocationAttempts {
		t.Errorf("expected %d attempts, got %d", services.MaxAllocationAttempts, gen.calls)
	}

	count, err := repo.CountAll(ctx)
	if err != nil || count != 1 {
		t.Errorf("exhausted allocation must not write rows: count=%d err=%v", count, err)
	}
}

func TestAllocateGeneratorFailure(t *testing.T) {
	allocator := services.NewCodeAllocator(newRepo(t), failingGenerator{}, quietLogger())
	_, err := allocator.Allocate(context.Background(), "https://example.com", "")
	if err == nil || domain.IsExhausted(err) {
		t.Fatalf("expected the generator error, got %v", err)
	}
}

func TestAllocateWrapsStoreFaults(t *testing.T) {
	repo := newRepo(t)
	allocator := services.NewCodeAllocator(repo, nil, quietLogger())
	_ = repo.Close()

	_, err := allocator.Allocate(context.Background(), "https://example.com", "closed1")
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected a StoreError, got %v", err)
	}
	var se *domain.StoreError
	if !errors.As(err, &se) || se.Op != "insertIfAbsent" || se.Code != "closed1" {
		t.Errorf("store error lacks context: %#v", err)
	}
}

func TestAllocateConcurrentSameCode(t *testing.T) {
	const n = 50
	repo := newRepo(t)
	allocator := services.NewCodeAllocator(repo, nil, quietLogger())
	ctx := context.Background()

	results := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := allocator.Allocate(ctx, "https://example.com/race", "race01")
			results[i] = err
			return nil
		})
	}
	_ = g.Wait()

	won, lost := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			won++
		case domain.IsConflict(err):
			lost++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != n-1 {
		t.Fatalf("expected exactly one winner and %d conflicts, got %d and %d", n-1, won, lost)
	}

	count, err := repo.CountAll(ctx)
	if err != nil || count != 1 {
		t.Errorf("CountAll = %d, %v; want 1", count, err)
	}
}
