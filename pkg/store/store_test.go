package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "keenbot.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJobHistoryRoundTripAndBound(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		j := JobRecord{
			ID:         string(rune('a' + i)),
			Key:        "opkg_upgrade",
			Status:     "succeeded",
			Output:     "done",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}
		if err := s.SaveJob(ctx, j, 3); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := s.RecentJobs(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("kept %d records, want 3", len(got))
	}
	if got[0].ID != "f" {
		t.Errorf("newest first: got %q", got[0].ID)
	}
}

func TestAnnouncementDedup(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	seen, err := s.Announced(ctx, "opkg-updates", "fp1")
	if err != nil || seen {
		t.Fatalf("fresh fingerprint: seen=%v err=%v", seen, err)
	}

	if err := s.MarkAnnounced(ctx, "opkg-updates", "fp1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	seen, err = s.Announced(ctx, "opkg-updates", "fp1")
	if err != nil || !seen {
		t.Fatalf("marked fingerprint: seen=%v err=%v", seen, err)
	}

	// a new fingerprint replaces the old one per category
	if err := s.MarkAnnounced(ctx, "opkg-updates", "fp2"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	seen, _ = s.Announced(ctx, "opkg-updates", "fp1")
	if seen {
		t.Error("old fingerprint should be replaced")
	}
}

func TestNotificationLog(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	at := time.Now()
	if err := s.SaveNotification(ctx, "disk", "low space", at, 100); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.RecentNotifications(ctx, 5)
	if err != nil || len(got) != 1 {
		t.Fatalf("recent: %v len=%d", err, len(got))
	}
	if got[0].Category != "disk" || got[0].Message != "low space" {
		t.Errorf("got %+v", got[0])
	}
}
