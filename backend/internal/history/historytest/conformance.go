// Package historytest checks history.Gateway implementations against the same
// behavioural expectations.
package historytest

import (
	"context"
	"errors"
	"testing"

	"github.com/tringuyenminh209/mimamori/backend/internal/history"
	"github.com/tringuyenminh209/mimamori/backend/internal/telemetry"
)

func reading(status telemetry.Status, ts int64, temp float64) telemetry.Reading {
	return telemetry.Reading{Status: status, Temperature: temp, Humidity: 50, DiscomfortIndex: 70, Timestamp: ts}
}

func timestamps(entries []history.Entry) []int64 {
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Timestamp)
	}

	return out
}

func equal(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// Run exercises gw, which must start empty.
func Run(t *testing.T, gw history.Gateway) {
	t.Helper()

	ctx := context.Background()

	if err := gw.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	if _, err := gw.QueryLatest(ctx); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("QueryLatest() on empty store error = %v, want ErrNotFound", err)
	}

	all, err := gw.QueryAll(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("QueryAll() on empty store = %v, %v", all, err)
	}

	// Inserted out of timestamp order on purpose.
	seed := []telemetry.Reading{
		reading(telemetry.StatusSafe, 1_700_000_002_000, 22),
		reading(telemetry.StatusDanger, 1_700_000_004_000, 31),
		reading(telemetry.StatusSafe, 1_700_000_001_000, 21),
		reading(telemetry.StatusDanger, 1_700_000_003_000, 30),
		reading("ATSUI", 1_700_000_005_000, 35),
	}

	ids := make([]int64, 0, len(seed))

	for _, r := range seed {
		id, err := gw.InsertOrReplace(ctx, history.Entry{Reading: r})
		if err != nil {
			t.Fatalf("InsertOrReplace() error = %v", err)
		}

		if id == 0 {
			t.Fatal("InsertOrReplace() returned id 0")
		}

		ids = append(ids, id)
	}

	all, err = gw.QueryAll(ctx)
	if err != nil {
		t.Fatalf("QueryAll() error = %v", err)
	}

	want := []int64{1_700_000_005_000, 1_700_000_004_000, 1_700_000_003_000, 1_700_000_002_000, 1_700_000_001_000}
	if got := timestamps(all); !equal(got, want) {
		t.Errorf("QueryAll() timestamps = %v, want %v", got, want)
	}

	if all[0].Status != "ATSUI" {
		t.Errorf("QueryAll()[0].Status = %v, want unknown status preserved", all[0].Status)
	}

	danger, err := gw.QueryByStatus(ctx, telemetry.StatusDanger)
	if err != nil {
		t.Fatalf("QueryByStatus() error = %v", err)
	}

	if got := timestamps(danger); !equal(got, []int64{1_700_000_004_000, 1_700_000_003_000}) {
		t.Errorf("QueryByStatus(KIKEN) timestamps = %v", got)
	}

	recent, err := gw.QueryRecent(ctx, 2)
	if err != nil {
		t.Fatalf("QueryRecent() error = %v", err)
	}

	if got := timestamps(recent); !equal(got, want[:2]) {
		t.Errorf("QueryRecent(2) timestamps = %v, want %v", got, want[:2])
	}

	if none, err := gw.QueryRecent(ctx, 0); err != nil || len(none) != 0 {
		t.Errorf("QueryRecent(0) = %v, %v, want empty", none, err)
	}

	latest, err := gw.QueryLatest(ctx)
	if err != nil {
		t.Fatalf("QueryLatest() error = %v", err)
	}

	if latest.Timestamp != want[0] || latest.Temperature != 35 {
		t.Errorf("QueryLatest() = %+v", latest)
	}

	// Same timestamp: the later insert wins the tie.
	tieID, err := gw.InsertOrReplace(ctx, history.Entry{Reading: reading(telemetry.StatusCold, want[0], 5)})
	if err != nil {
		t.Fatalf("InsertOrReplace() error = %v", err)
	}

	if latest, _ := gw.QueryLatest(ctx); latest.ID != tieID {
		t.Errorf("QueryLatest().ID = %v, want %v on timestamp tie", latest.ID, tieID)
	}

	replaced := history.Entry{ID: ids[2], Reading: reading(telemetry.StatusCaution, 1_700_000_001_000, 25)}

	id, err := gw.InsertOrReplace(ctx, replaced)
	if err != nil {
		t.Fatalf("InsertOrReplace(existing) error = %v", err)
	}

	if id != ids[2] {
		t.Errorf("InsertOrReplace(existing) id = %v, want %v", id, ids[2])
	}

	caution, err := gw.QueryByStatus(ctx, telemetry.StatusCaution)
	if err != nil || len(caution) != 1 || caution[0].ID != ids[2] || caution[0].Temperature != 25 {
		t.Errorf("QueryByStatus(CHUI) = %+v, %v, want replaced row", caution, err)
	}

	deleted, err := gw.DeleteAll(ctx)
	if err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}

	if deleted != int64(len(seed)+1) {
		t.Errorf("DeleteAll() = %v, want %v", deleted, len(seed)+1)
	}

	if all, _ := gw.QueryAll(ctx); len(all) != 0 {
		t.Errorf("QueryAll() after DeleteAll() = %v", all)
	}
}
