package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/bdobrica/Eliza/internal/eliza/store"
)

func TestAudit_WriteAndRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []store.AuditEntry{
		{Timestamp: base, TraceID: "t1", Actor: "@alice:example.com", Action: "command.reset", Target: "matrix:!room:alice", Result: store.AuditSuccess},
		{Timestamp: base.Add(time.Second), TraceID: "t2", Actor: "watch", Action: "script.reload", Target: "doctor.txt",
			Payload: map[string]any{"keys": float64(3)}, Result: store.AuditError, Error: "doctor.txt:4: bad"},
		{Timestamp: base.Add(2 * time.Second), TraceID: "t1", Actor: "@alice:example.com", Action: "command.bye", Result: store.AuditSuccess},
	}
	for _, e := range entries {
		if err := s.WriteAudit(ctx, e); err != nil {
			t.Fatalf("WriteAudit(%s): %v", e.Action, err)
		}
	}

	recent, err := s.AuditLog(ctx, 2)
	if err != nil {
		t.Fatalf("AuditLog: %v", err)
	}
	var actions []string
	for _, e := range recent {
		actions = append(actions, e.Action)
	}
	if diff := cmp.Diff([]string{"command.bye", "script.reload"}, actions); diff != "" {
		t.Errorf("AuditLog order (-want +got):\n%s", diff)
	}

	reload := recent[1]
	want := entries[1]
	if diff := cmp.Diff(&want, reload,
		cmpopts.IgnoreFields(store.AuditEntry{}, "ID"),
		cmpopts.EquateApproxTime(time.Millisecond),
	); diff != "" {
		t.Errorf("reload entry (-want +got):\n%s", diff)
	}

	traced, err := s.AuditByTrace(ctx, "t1")
	if err != nil {
		t.Fatalf("AuditByTrace: %v", err)
	}
	if len(traced) != 2 || traced[0].Action != "command.reset" || traced[1].Action != "command.bye" {
		t.Errorf("AuditByTrace(t1): got %+v", traced)
	}
	if traced[0].Payload != nil {
		t.Errorf("Payload: got %v, want nil", traced[0].Payload)
	}
}

func TestAudit_RejectsUnknownResult(t *testing.T) {
	s := newTestStore(t)
	err := s.WriteAudit(context.Background(), store.AuditEntry{Actor: "cli", Action: "script.push", Result: "maybe"})
	if err == nil {
		t.Fatal("expected CHECK constraint failure")
	}
}
