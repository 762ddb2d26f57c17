package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/bdobrica/Eliza/internal/eliza/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "eliza-test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_AppliesMigrations(t *testing.T) {
	s := newTestStore(t)
	v, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 3 {
		t.Errorf("SchemaVersion: got %d, want 3", v)
	}
}

func TestNew_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eliza.db")
	s, err := store.New(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, _, err := s.SaveScript(context.Background(), "doctor", store.FormatText, "key: a", "test"); err != nil {
		t.Fatalf("SaveScript: %v", err)
	}
	s.Close()

	s, err = store.New(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s.Close()
	if _, err := s.LatestScript(context.Background(), "doctor"); err != nil {
		t.Errorf("data lost across reopen: %v", err)
	}
}

func TestSaveScript_Versions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v1, created, err := s.SaveScript(ctx, "doctor", store.FormatText, "initial: hi\n", "@alice:example.com")
	if err != nil {
		t.Fatalf("SaveScript v1: %v", err)
	}
	if !created || v1.Version != 1 {
		t.Errorf("v1: got version %d created %v", v1.Version, created)
	}
	if v1.Hash != store.HashSource("initial: hi\n") {
		t.Errorf("Hash: got %q", v1.Hash)
	}

	// Same content is not stored twice.
	same, created, err := s.SaveScript(ctx, "doctor", store.FormatText, "initial: hi\n", "@bob:example.com")
	if err != nil {
		t.Fatalf("SaveScript same: %v", err)
	}
	if created || same.Version != 1 {
		t.Errorf("unchanged source: got version %d created %v", same.Version, created)
	}

	v2, created, err := s.SaveScript(ctx, "doctor", store.FormatYAML, "initial: hello\nkeys: []\n", "@bob:example.com")
	if err != nil {
		t.Fatalf("SaveScript v2: %v", err)
	}
	if !created || v2.Version != 2 || v2.Format != store.FormatYAML {
		t.Errorf("v2: got %+v created %v", v2, created)
	}

	// Versions are per name.
	other, _, err := s.SaveScript(ctx, "other", store.FormatText, "initial: hi\n", "")
	if err != nil {
		t.Fatalf("SaveScript other: %v", err)
	}
	if other.Version != 1 {
		t.Errorf("other: got version %d, want 1", other.Version)
	}

	latest, err := s.LatestScript(ctx, "doctor")
	if err != nil {
		t.Fatalf("LatestScript: %v", err)
	}
	if latest.Version != 2 || latest.Source != "initial: hello\nkeys: []\n" || latest.CreatedBy != "@bob:example.com" {
		t.Errorf("LatestScript: got %+v", latest)
	}

	got, err := s.GetScript(ctx, "doctor", 1)
	if err != nil {
		t.Fatalf("GetScript: %v", err)
	}
	if got.Source != "initial: hi\n" {
		t.Errorf("GetScript source: got %q", got.Source)
	}

	names, err := s.ScriptNames(ctx)
	if err != nil {
		t.Fatalf("ScriptNames: %v", err)
	}
	if len(names) != 2 || names[0] != "doctor" || names[1] != "other" {
		t.Errorf("ScriptNames: got %v", names)
	}
}

func TestSaveScript_Invalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, _, err := s.SaveScript(ctx, "", store.FormatText, "x", ""); err == nil {
		t.Error("expected error for empty name")
	}
	if _, _, err := s.SaveScript(ctx, "doctor", "json", "x", ""); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestGetScript_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetScript(ctx, "doctor", 99); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetScript: got %v, want ErrNotFound", err)
	}
	if _, err := s.LatestScript(ctx, "doctor"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("LatestScript: got %v, want ErrNotFound", err)
	}
}

func TestListAndPruneScripts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, src := range []string{"a", "b", "c", "d"} {
		if _, _, err := s.SaveScript(ctx, "doctor", store.FormatText, src, ""); err != nil {
			t.Fatalf("SaveScript %q: %v", src, err)
		}
	}

	list, err := s.ListScripts(ctx, "doctor")
	if err != nil {
		t.Fatalf("ListScripts: %v", err)
	}
	if len(list) != 4 || list[0].Version != 4 || list[3].Version != 1 {
		t.Fatalf("ListScripts: expected versions 4..1, got %d entries", len(list))
	}

	n, err := s.PruneScripts(ctx, "doctor", 2)
	if err != nil {
		t.Fatalf("PruneScripts: %v", err)
	}
	if n != 2 {
		t.Errorf("PruneScripts removed %d, want 2", n)
	}
	list, _ = s.ListScripts(ctx, "doctor")
	if len(list) != 2 || list[0].Version != 4 || list[1].Version != 3 {
		t.Errorf("after prune: got %d entries", len(list))
	}

	if n, _ := s.PruneScripts(ctx, "doctor", 0); n != 0 {
		t.Errorf("PruneScripts(0) removed %d", n)
	}
}
