package domain_test

import (
	"testing"
	"time"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/domain"
)

func TestFormatDate_UsesLocation(t *testing.T) {
	t.Parallel()

	tokyo := time.FixedZone("JST", 9*60*60)
	// 2024-04-30 20:00 UTC is already May 1st in Tokyo.
	instant := time.Date(2024, 4, 30, 20, 0, 0, 0, time.UTC)

	if got := domain.FormatDate(instant); got != "2024-04-30" {
		t.Errorf("UTC date = %q, want 2024-04-30", got)
	}
	if got := domain.FormatDate(instant.In(tokyo)); got != "2024-05-01" {
		t.Errorf("JST date = %q, want 2024-05-01", got)
	}
}

func TestViewEvent_Key(t *testing.T) {
	t.Parallel()

	a := domain.ViewEvent{ItemID: "stmt-1", Date: "2024-05-01"}
	b := domain.ViewEvent{ItemID: "stmt-1", Date: "2024-05-02"}

	if a.Key() == b.Key() {
		t.Error("events on different days must have different keys")
	}
}
