package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestRole_UnmarshalString(t *testing.T) {
	var r Role
	if err := json.Unmarshal([]byte(`"Admin"`), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Kind != RoleAdmin {
		t.Errorf("expected RoleAdmin, got %v", r.Kind)
	}
}

func TestRole_UnmarshalObject(t *testing.T) {
	var r Role
	if err := json.Unmarshal([]byte(`{"name":"trader","permissions":["x"]}`), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Kind != RoleTrader {
		t.Errorf("expected RoleTrader, got %v", r.Kind)
	}
}

func TestRole_UnmarshalRejectsNumbers(t *testing.T) {
	var r Role
	if err := json.Unmarshal([]byte(`42`), &r); err == nil {
		t.Error("expected error for numeric role")
	}
}

func TestRole_MarshalCanonical(t *testing.T) {
	out, err := json.Marshal(ParseRole(" MEMBER "))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `"member"` {
		t.Errorf("expected \"member\", got %s", out)
	}
}

func TestLifecycle_State(t *testing.T) {
	cases := []struct {
		lc   Lifecycle
		want State
	}{
		{Lifecycle{IsNew: true}, StatePending},
		{Lifecycle{IsOpen: true}, StateOpen},
		{Lifecycle{IsOpen: false, IsClosed: true}, StateClosed},
		{Lifecycle{IsCancelled: true}, StateCancelled},
	}
	for _, c := range cases {
		if got := c.lc.State(); got != c.want {
			t.Errorf("State() = %s, want %s", got, c.want)
		}
	}
}

func TestLifecycle_TargetHit(t *testing.T) {
	target := d(110)
	lc := Lifecycle{Events: []Event{
		{Kind: EventEntry, Price: d(100)},
		{Kind: EventTargetHit, Price: d(110.2), Target: &target},
	}}
	if !lc.TargetHit(d(110)) {
		t.Error("expected 110 to be recorded as hit")
	}
	if lc.TargetHit(d(120)) {
		t.Error("120 should not be recorded as hit")
	}
}

func TestSignal_CloneDoesNotAlias(t *testing.T) {
	entry := d(100)
	s := Signal{
		Targets: []decimal.Decimal{d(110)},
		Lifecycle: Lifecycle{
			Entry:  &entry,
			Events: []Event{{Kind: EventNew, Details: map[string]string{"k": "v"}}},
		},
	}
	c := s.Clone()
	c.Targets[0] = d(999)
	*c.Lifecycle.Entry = d(1)
	c.Lifecycle.Events[0].Details["k"] = "changed"

	if !s.Targets[0].Equal(d(110)) {
		t.Error("targets aliased")
	}
	if !s.Lifecycle.Entry.Equal(d(100)) {
		t.Error("entry aliased")
	}
	if s.Lifecycle.Events[0].Details["k"] != "v" {
		t.Error("event details aliased")
	}
}

func TestCommunity_Hires(t *testing.T) {
	c := Community{HiredTraders: []string{"t1", "t2"}}
	if !c.Hires("t2") || c.Hires("t3") {
		t.Error("Hires returned wrong result")
	}
}
