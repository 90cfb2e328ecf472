package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/seantiz/tsunami/internal/model"
)

func TestListLedgerIncludesFailedRuns(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		r := newLedgerRun(fmt.Sprintf("20240101_00000%d_chile2010_run", i), "chile2010")
		r.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := srv.store.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}
	// The newest run failed before producing a frame, so the directory listing hides it.
	if err := srv.store.UpdateRunState(ctx, "20240101_000002_chile2010_run", model.StateFailed); err != nil {
		t.Fatalf("UpdateRunState: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var page ledgerResponse
	if status := getJSON(t, ts.URL+"/api/ledger?limit=2", &page); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if page.Total != 3 || page.Limit != 2 || page.Offset != 0 || len(page.Runs) != 2 {
		t.Fatalf("page = total %d limit %d offset %d runs %d", page.Total, page.Limit, page.Offset, len(page.Runs))
	}
	if page.Runs[0].RunID != "20240101_000002_chile2010_run" || page.Runs[0].State != model.StateFailed {
		t.Errorf("runs[0] = %s %s, want newest failed run", page.Runs[0].RunID, page.Runs[0].State)
	}

	var rest ledgerResponse
	getJSON(t, ts.URL+"/api/ledger?limit=2&offset=2", &rest)
	if len(rest.Runs) != 1 || rest.Runs[0].RunID != "20240101_000000_chile2010_run" {
		t.Errorf("second page = %+v", rest.Runs)
	}
}

func TestListLedgerClampsPaging(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var page ledgerResponse
	getJSON(t, ts.URL+"/api/ledger?limit=1000&offset=-4", &page)
	if page.Limit != defaultLedgerLimit || page.Offset != 0 {
		t.Errorf("limit, offset = %d, %d; want %d, 0", page.Limit, page.Offset, defaultLedgerLimit)
	}
	if page.Runs == nil || len(page.Runs) != 0 {
		t.Errorf("runs = %v, want empty array", page.Runs)
	}
}
