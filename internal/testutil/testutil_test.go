package testutil

import (
	"testing"
	"time"

	"github.com/AudienHealth/CarePipe/internal/models"
)

func TestNewTestServer(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	server, st := NewTestServer(now)
	if server == nil {
		t.Fatal("NewTestServer returned nil server")
	}
	if st == nil {
		t.Fatal("NewTestServer returned nil store")
	}
	if server.Handler() == nil {
		t.Error("Expected server handler to be available")
	}
}

func TestFixedClock(t *testing.T) {
	instant := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := FixedClock{Time: instant}
	if !clock.Now().Equal(instant) {
		t.Errorf("FixedClock.Now() = %v; want %v", clock.Now(), instant)
	}
	if !clock.Now().Equal(clock.Now()) {
		t.Error("FixedClock must return the same instant on every read")
	}
}

func TestNewFittedPatient(t *testing.T) {
	fitting := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewFittedPatient("p1", fitting)
	if p.ID != "p1" {
		t.Errorf("patient id = %q", p.ID)
	}
	if p.FittingDate == nil || !p.FittingDate.Equal(fitting) {
		t.Errorf("fitting date = %v; want %v", p.FittingDate, fitting)
	}
	if !p.ProactiveCheckInsEnabled {
		t.Error("fixture patient must have proactive check-ins enabled")
	}
	if !p.HasTag(models.TagNewFit) {
		t.Errorf("fixture patient missing %s tag", models.TagNewFit)
	}
}

func TestNewCallSequence(t *testing.T) {
	seq := NewCallSequence("seq-1", models.TagNewFit, 1, 7, 30)
	if len(seq.Steps) != 3 {
		t.Fatalf("got %d steps; want 3", len(seq.Steps))
	}
	if seq.Steps[1].Day != 7 || seq.Steps[1].Channel != models.ChannelCall {
		t.Errorf("unexpected step: %+v", seq.Steps[1])
	}
	if !seq.Active {
		t.Error("fixture sequence must be active")
	}
	if err := seq.Validate(); err != nil {
		t.Errorf("fixture sequence failed validation: %v", err)
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	req := CreateHTTPRequest(t, "POST", "/tasks", map[string]string{"patient_id": "p1"})
	if req.Method != "POST" {
		t.Errorf("method = %s", req.Method)
	}
	if req.URL.Path != "/tasks" {
		t.Errorf("path = %s", req.URL.Path)
	}

	get := CreateHTTPRequest(t, "GET", "/patients", nil)
	if get.Method != "GET" {
		t.Errorf("method = %s", get.Method)
	}
}

func TestMustMarshalAndUnmarshalJSON(t *testing.T) {
	data := MustMarshalJSON(t, map[string]int{"count": 3})
	var target map[string]int
	MustUnmarshalJSON(t, data, &target)
	if target["count"] != 3 {
		t.Errorf("round-trip count = %d; want 3", target["count"])
	}
}
