package slewlog

import (
	"testing"
	"time"

	"github.com/chrissnell/remotescope/internal/types"
)

func TestRecordAndRecent(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	base := time.Date(2024, 3, 21, 4, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := types.SlewRecord{
			SessionID:  string(rune('a' + i)),
			MountName:  "testmount",
			RAHours:    8.5,
			DECDegrees: 45,
			PierSide:   "east",
			Result:     "converged",
			Loops:      10 + i,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}
		if err := s.Record(rec); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := s.Recent(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].SessionID != "c" {
		t.Errorf("newest record = %q, want session c first", recs[0].SessionID)
	}
	if recs[0].Loops != 12 || recs[0].Result != "converged" {
		t.Errorf("record round trip mismatch: %+v", recs[0])
	}
}

func TestRecentEmpty(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	recs, err := s.Recent(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d records from empty log, want 0", len(recs))
	}
}
