package schema

import (
	"reflect"
	"testing"
	"time"
)

func TestReconcileNewTableUsesHintsAndInference(t *testing.T) {
	hints := map[string]Type{"clicks": TypeInteger}
	columns := []string{"date", "clicks", "cost"}
	sample := Row{"date": "2025-03-01", "clicks": 10, "cost": 5.5}

	fields := Reconcile(hints, columns, sample, nil)

	want := []Field{
		{Name: "date", Type: TypeString},
		{Name: "clicks", Type: TypeInteger},
		{Name: "cost", Type: TypeFloat},
	}
	if !reflect.DeepEqual(fields, want) {
		t.Fatalf("unexpected fields: %+v", fields)
	}
}

func TestReconcileNeverWidensExistingTable(t *testing.T) {
	columns := []string{"date", "clicks", "typo_column"}
	sample := Row{"date": "2025-03-01", "clicks": 10, "typo_column": "x"}
	existing := []string{"date", "clicks", "cost"}

	fields := Reconcile(nil, columns, sample, existing)

	for _, f := range fields {
		if f.Name == "typo_column" {
			t.Fatalf("reconcile introduced a column absent from the table: %+v", fields)
		}
	}
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %+v", fields)
	}
}

func TestReconcileExistingColumnsMissingFromBatchAreAccepted(t *testing.T) {
	// A batch missing columns the table already has is fine; the missing
	// columns are simply not populated.
	columns := []string{"date", "clicks"}
	sample := Row{"date": "2025-03-01", "clicks": 10}
	existing := []string{"date", "clicks", "cost"}

	fields := Reconcile(nil, columns, sample, existing)
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %+v", fields)
	}
}

func TestReconcileEmptyBatch(t *testing.T) {
	if fields := Reconcile(nil, nil, nil, nil); len(fields) != 0 {
		t.Fatalf("expected empty schema for empty batch, got %+v", fields)
	}
}

func TestInferType(t *testing.T) {
	cases := []struct {
		value any
		want  Type
	}{
		{int64(7), TypeInteger},
		{uint32(7), TypeInteger},
		{3.14, TypeFloat},
		{true, TypeBoolean},
		{"2025-03-01", TypeString},
		{time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), TypeDatetime},
		{nil, TypeString},
	}
	for _, tc := range cases {
		if got := inferType(tc.value); got != tc.want {
			t.Fatalf("inferType(%v) = %s, want %s", tc.value, got, tc.want)
		}
	}
}

func TestRegistryResolve(t *testing.T) {
	reg := DefaultRegistry()

	f, ok := reg.Resolve("NAVER_AD")
	if !ok || f.Name != "NAVER_AD" {
		t.Fatalf("exact resolve failed: %+v ok=%v", f, ok)
	}
	if f.Mode != ModePoint {
		t.Fatalf("NAVER_AD should be point mode, got %s", f.Mode)
	}

	f, ok = reg.Resolve("GA4_acme_landing")
	if !ok || f.Name != "GA4" {
		t.Fatalf("prefix resolve failed: %+v ok=%v", f, ok)
	}
	if f.Mode != ModeRange {
		t.Fatalf("GA4 should be range mode, got %s", f.Mode)
	}

	if _, ok := reg.Resolve("UNKNOWN_SOURCE"); ok {
		t.Fatalf("expected no family for unknown table")
	}
}

func TestRegistryLongestPrefixWins(t *testing.T) {
	reg := NewRegistry(
		&Family{Name: "GA4", Prefix: "GA4", Mode: ModeRange},
		&Family{Name: "GA4_SPECIAL", Prefix: "GA4_SPECIAL", Mode: ModePoint},
	)
	f, ok := reg.Resolve("GA4_SPECIAL_site")
	if !ok || f.Name != "GA4_SPECIAL" {
		t.Fatalf("expected longest prefix match, got %+v", f)
	}
}

func TestRegisterRejectsUnknownMode(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&Family{Name: "X", Mode: "upsert"}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
