package store

import (
	"testing"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/types"
)

func TestEffectiveWeekDefaultsToNow(t *testing.T) {
	now := time.Date(2025, time.March, 5, 12, 0, 0, 0, time.UTC)
	week := effectiveWeek(now, nil)
	wantYear, wantWeek := now.ISOWeek()
	if week.Year != wantYear || week.Week != wantWeek {
		t.Fatalf("effectiveWeek = %+v, want {%d %d}", week, wantYear, wantWeek)
	}
}

func TestEffectiveWeekOverride(t *testing.T) {
	now := time.Date(2025, time.March, 5, 12, 0, 0, 0, time.UTC)
	override := &types.WeekRef{Year: 2024, Week: 52}
	week := effectiveWeek(now, override)
	if week != *override {
		t.Fatalf("effectiveWeek = %+v, want %+v", week, *override)
	}
}

func TestFilterNew(t *testing.T) {
	records := []*types.ProductRecord{
		{ProductNo: "A1", CategoryID: "C1"},
		{ProductNo: "A2", CategoryID: "C1"},
		{ProductNo: "A1", CategoryID: "C2"}, // same product, other category
		{ProductNo: "A3", CategoryID: "C1"},
	}
	existing := map[[2]string]struct{}{
		{"A1", "C1"}: {},
		{"A3", "C1"}: {},
	}

	fresh := filterNew(records, existing)
	if len(fresh) != 2 {
		t.Fatalf("got %d fresh records, want 2", len(fresh))
	}
	if fresh[0].ProductNo != "A2" || fresh[1].ProductNo != "A1" || fresh[1].CategoryID != "C2" {
		t.Fatalf("unexpected survivors: %v %v", fresh[0], fresh[1])
	}
}

func TestFilterNewAllDuplicates(t *testing.T) {
	records := []*types.ProductRecord{
		{ProductNo: "A1", CategoryID: "C1"},
	}
	existing := map[[2]string]struct{}{{"A1", "C1"}: {}}

	if fresh := filterNew(records, existing); len(fresh) != 0 {
		t.Fatalf("expected no survivors, got %d", len(fresh))
	}
}
