package analytics

import (
	"context"
	"testing"
	"time"

	"fractionbot/internal/storage"
)

func TestReportCountsByAction(t *testing.T) {
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	now := time.Now()
	entries := []storage.AuditLog{
		{Action: "command", CreatedAt: now},
		{Action: "command", CreatedAt: now},
		{Action: "trade_accepted", CreatedAt: now},
		{Action: "command", CreatedAt: now.Add(-48 * time.Hour)},
	}
	for _, entry := range entries {
		if err := store.AddAuditLog(ctx, entry); err != nil {
			t.Fatalf("add audit log: %v", err)
		}
	}

	report, err := New(store).Report(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Total != 3 {
		t.Fatalf("expected 3 entries in window, got %d", report.Total)
	}
	if report.ByAction["command"] != 2 {
		t.Fatalf("expected 2 commands, got %d", report.ByAction["command"])
	}
	if report.ByAction["trade_accepted"] != 1 {
		t.Fatalf("expected 1 trade_accepted, got %d", report.ByAction["trade_accepted"])
	}
}
