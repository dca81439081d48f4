package mirror

import (
	"net/http/httptest"
	"testing"
)

func TestLedger(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	if l.Headers(0) != nil {
		t.Error("empty ledger should return nil")
	}

	for _, rng := range []string{"bytes=0-1", "bytes=2-3", "bytes=4-"} {
		r := httptest.NewRequest("GET", "/static/a", nil)
		r.Header.Set("Range", rng)
		r.Header.Add("Accept", "a")
		r.Header.Add("Accept", "b")
		rec := l.Record(r)
		if rec.ID == "" {
			t.Error("record without ID")
		}
	}

	all := l.Headers(0)
	if len(all) != 3 || l.Len() != 3 {
		t.Fatalf("len(Headers(0)) = %d, want 3", len(all))
	}
	if all[0]["Range"] != "bytes=0-1" || all[2]["Range"] != "bytes=4-" {
		t.Errorf("records out of order: %v", all)
	}
	if all[0]["Accept"] != "a, b" {
		t.Errorf(`Accept = %q, want "a, b"`, all[0]["Accept"])
	}
	if all[0]["Host"] != "example.com" {
		t.Errorf(`Host = %q, want "example.com"`, all[0]["Host"])
	}

	last := l.Headers(2)
	if len(last) != 2 || last[0]["Range"] != "bytes=2-3" {
		t.Errorf("Headers(2) = %v", last)
	}
	if len(l.Headers(10)) != 3 {
		t.Error("Headers(n) with n > Len() should return everything")
	}

	recs := l.Records()
	if recs[0].ID == recs[1].ID {
		t.Error("record IDs are not unique")
	}

	l.Clear()
	if l.Headers(0) != nil || l.Len() != 0 {
		t.Error("Clear() left records")
	}
}

func TestLedgerRequestID(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	r := httptest.NewRequest("GET", "/static/a", nil)
	r = r.WithContext(withRequestID(r.Context(), "req-1"))
	if rec := l.Record(r); rec.ID != "req-1" {
		t.Errorf("rec.ID = %q, want the request ID", rec.ID)
	}
}
