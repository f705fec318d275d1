package devicesync_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aforo/aforo/pkg/devicesync"
	"github.com/aforo/aforo/pkg/events"
)

// ---------- Reconciler ----------

func changeEvent(entityID string, at time.Time, fields map[string]any) events.ChangeEvent {
	return events.ChangeEvent{
		EntityType:      events.EntityReservation,
		EntityID:        entityID,
		ServerTimestamp: at,
		Fields:          fields,
	}
}

func TestReconciler_RemoteSeedsUnknownFields(t *testing.T) {
	r := devicesync.NewReconciler(5 * time.Second)

	applied := r.ApplyRemote(changeEvent("res-1", time.Now(), map[string]any{
		"attendance_count": 3,
		"status":           "confirmed",
	}))
	if len(applied) != 2 {
		t.Fatalf("applied %d fields, want 2", len(applied))
	}
	if v, ok := r.Get("res-1", "attendance_count"); !ok || v != 3 {
		t.Errorf("attendance_count = %v, want 3", v)
	}
}

func TestReconciler_FreshLocalEditWins(t *testing.T) {
	r := devicesync.NewReconciler(5 * time.Second)

	r.SetLocal("res-1", "notes", "window table")

	// Event stamped now: not newer than edit+grace, so it loses.
	applied := r.ApplyRemote(changeEvent("res-1", time.Now(), map[string]any{
		"notes": "stale server value",
	}))
	if len(applied) != 0 {
		t.Fatalf("applied %v, want nothing", applied)
	}
	if v, _ := r.Get("res-1", "notes"); v != "window table" {
		t.Errorf("notes = %v, local edit should survive", v)
	}
}

func TestReconciler_SufficientlyNewerRemoteWins(t *testing.T) {
	r := devicesync.NewReconciler(5 * time.Second)

	r.SetLocal("res-1", "notes", "local edit")

	applied := r.ApplyRemote(changeEvent("res-1", time.Now().Add(10*time.Second), map[string]any{
		"notes": "newer server value",
	}))
	if len(applied) != 1 {
		t.Fatalf("applied %v, want the notes field", applied)
	}
	if v, _ := r.Get("res-1", "notes"); v != "newer server value" {
		t.Errorf("notes = %v, remote should have overwritten", v)
	}
}

func TestReconciler_MergeIsPerField(t *testing.T) {
	r := devicesync.NewReconciler(5 * time.Second)

	r.SetLocal("res-1", "notes", "local notes")

	// One event touches both a locally edited field and an untouched one;
	// only the untouched field applies.
	applied := r.ApplyRemote(changeEvent("res-1", time.Now(), map[string]any{
		"notes":            "server notes",
		"attendance_count": 5,
	}))
	if len(applied) != 1 || applied[0] != "attendance_count" {
		t.Fatalf("applied %v, want only attendance_count", applied)
	}
	if v, _ := r.Get("res-1", "notes"); v != "local notes" {
		t.Errorf("notes = %v, want local edit preserved", v)
	}
	if v, _ := r.Get("res-1", "attendance_count"); v != 5 {
		t.Errorf("attendance_count = %v, want 5", v)
	}
}

func TestReconciler_SeedDiscardsLocalEdits(t *testing.T) {
	r := devicesync.NewReconciler(5 * time.Second)

	r.SetLocal("res-1", "notes", "pending local edit")
	r.Seed("res-1", map[string]any{"notes": "server truth"})

	applied := r.ApplyRemote(changeEvent("res-1", time.Now(), map[string]any{
		"notes": "post-resync event",
	}))
	if len(applied) != 1 {
		t.Fatal("seeded fields carry no local-edit protection")
	}
}

// ---------- Optimistic ----------

func TestOptimistic_CommitKeepsServerValue(t *testing.T) {
	r := devicesync.NewReconciler(5 * time.Second)
	o := devicesync.NewOptimistic(r)

	r.Seed("res-1", map[string]any{"attendance_count": 2})

	o.Stage("key-1", "res-1", "attendance_count", 3)
	if v, _ := r.Get("res-1", "attendance_count"); v != 3 {
		t.Fatalf("staged value = %v, want 3", v)
	}

	if err := o.Commit("key-1", map[string]any{"attendance_count": 3}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if v, _ := r.Get("res-1", "attendance_count"); v != 3 {
		t.Errorf("committed value = %v, want 3", v)
	}
	if o.Pending("key-1") {
		t.Error("commit should clear pending state")
	}
}

func TestOptimistic_RevertRestoresPriorValue(t *testing.T) {
	r := devicesync.NewReconciler(5 * time.Second)
	o := devicesync.NewOptimistic(r)

	r.Seed("res-1", map[string]any{"attendance_count": 2})

	o.Stage("key-1", "res-1", "attendance_count", 3)
	if err := o.Revert("key-1"); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if v, _ := r.Get("res-1", "attendance_count"); v != 2 {
		t.Errorf("reverted value = %v, want 2", v)
	}
}

func TestOptimistic_UnknownKey(t *testing.T) {
	o := devicesync.NewOptimistic(devicesync.NewReconciler(time.Second))
	if err := o.Commit("nope", nil); err == nil {
		t.Error("committing an unstaged key must fail")
	}
	if err := o.Revert("nope"); err == nil {
		t.Error("reverting an unstaged key must fail")
	}
}

// ---------- Session ----------

func TestSession_HappyPath(t *testing.T) {
	s := devicesync.NewSession(nil)

	steps := []devicesync.SessionState{
		devicesync.StateScanning,
		devicesync.StateResolving,
		devicesync.StateConfirming,
		devicesync.StateApplying,
		devicesync.StateScanning,
	}
	for _, next := range steps {
		if err := s.To(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if s.State() != devicesync.StateScanning {
		t.Errorf("state = %s, want scanning", s.State())
	}
}

func TestSession_InvalidTransition(t *testing.T) {
	s := devicesync.NewSession(nil)
	if err := s.To(devicesync.StateApplying); err == nil {
		t.Fatal("idle -> applying must be rejected")
	}
	if s.State() != devicesync.StateIdle {
		t.Errorf("failed transition must not change state, got %s", s.State())
	}
}

func TestSession_ConfirmingPausesPoller(t *testing.T) {
	var ticks atomic.Int32
	p := devicesync.NewPoller(5*time.Millisecond, func(context.Context) {
		ticks.Add(1)
	})
	s := devicesync.NewSession(p)

	p.Start(context.Background())
	defer p.Stop()

	if err := s.To(devicesync.StateScanning); err != nil {
		t.Fatal(err)
	}
	time.Sleep(40 * time.Millisecond)
	if ticks.Load() == 0 {
		t.Fatal("poller should tick while scanning")
	}

	if err := s.To(devicesync.StateResolving); err != nil {
		t.Fatal(err)
	}
	if err := s.To(devicesync.StateConfirming); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	paused := ticks.Load()
	time.Sleep(40 * time.Millisecond)
	if ticks.Load() != paused {
		t.Error("poller must not tick while the confirmation dialog is open")
	}
}

// ---------- Poller ----------

func TestPoller_StopWaitsForLoop(t *testing.T) {
	var ticks atomic.Int32
	p := devicesync.NewPoller(time.Millisecond, func(context.Context) {
		ticks.Add(1)
	})

	p.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	p.Stop()

	after := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	if ticks.Load() != after {
		t.Error("poller ticked after Stop returned")
	}
}

func TestPoller_StartIsIdempotent(t *testing.T) {
	var ticks atomic.Int32
	p := devicesync.NewPoller(time.Millisecond, func(context.Context) {
		ticks.Add(1)
	})

	p.Start(context.Background())
	p.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	p.Stop()
}
