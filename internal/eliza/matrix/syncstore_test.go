package matrix_test

import (
	"context"
	"path/filepath"
	"testing"

	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Eliza/internal/eliza/matrix"
	"github.com/bdobrica/Eliza/internal/eliza/store"
)

func TestDBSyncStore(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "eliza.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	ss := matrix.NewDBSyncStore(st.DB())
	user := id.UserID("@eliza:example.com")

	if v, err := ss.LoadNextBatch(ctx, user); err != nil || v != "" {
		t.Fatalf("LoadNextBatch on empty store: got %q, %v", v, err)
	}

	if err := ss.SaveNextBatch(ctx, user, "s1"); err != nil {
		t.Fatalf("SaveNextBatch: %v", err)
	}
	if err := ss.SaveNextBatch(ctx, user, "s2"); err != nil {
		t.Fatalf("SaveNextBatch overwrite: %v", err)
	}
	if err := ss.SaveFilterID(ctx, user, "f1"); err != nil {
		t.Fatalf("SaveFilterID: %v", err)
	}

	if v, _ := ss.LoadNextBatch(ctx, user); v != "s2" {
		t.Errorf("LoadNextBatch: got %q, want s2", v)
	}
	if v, _ := ss.LoadFilterID(ctx, user); v != "f1" {
		t.Errorf("LoadFilterID: got %q, want f1", v)
	}
	if v, _ := ss.LoadNextBatch(ctx, id.UserID("@other:example.com")); v != "" {
		t.Errorf("other user: got %q", v)
	}
}
