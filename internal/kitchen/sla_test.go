package kitchen

import (
	"testing"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kitchenops/pkg/enums/kitchenstatus"
)

func TestComputeSLA(t *testing.T) {
	tests := []struct {
		name          string
		status        kitchenstatus.Ticket
		remaining     time.Duration
		wantLevel     AlertLevel
		wantRemaining int
	}{
		{name: "wellInsideWindow", status: kitchenstatus.TicketNew, remaining: 6 * time.Minute, wantLevel: AlertOnTrack, wantRemaining: 6},
		{name: "atWarningThreshold", status: kitchenstatus.TicketPreparing, remaining: 5 * time.Minute, wantLevel: AlertWarning, wantRemaining: 5},
		{name: "atTarget", status: kitchenstatus.TicketPreparing, remaining: 0, wantLevel: AlertOverdue, wantRemaining: 0},
		{name: "pastTarget", status: kitchenstatus.TicketNew, remaining: -3 * time.Minute, wantLevel: AlertOverdue, wantRemaining: -3},
		{name: "readyIsResolved", status: kitchenstatus.TicketReady, remaining: -3 * time.Minute, wantLevel: AlertResolved, wantRemaining: -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := Ticket{
				Status:        tt.status,
				Priority:      PriorityNormal,
				SLAMinutes:    20,
				FiredAt:       testNow.Add(tt.remaining - 20*time.Minute),
				TargetReadyAt: testNow.Add(tt.remaining),
			}

			got := ComputeSLA(tk, DefaultSLASettings(), testNow)

			if got.AlertLevel != tt.wantLevel {
				t.Errorf("AlertLevel = %s, want %s", got.AlertLevel, tt.wantLevel)
			}
			if got.RemainingMinutes != tt.wantRemaining {
				t.Errorf("RemainingMinutes = %d, want %d", got.RemainingMinutes, tt.wantRemaining)
			}
			if got.IsOverdue != (tt.wantLevel == AlertOverdue) {
				t.Errorf("IsOverdue = %v for level %s", got.IsOverdue, got.AlertLevel)
			}
		})
	}
}

func TestComputeSLADefaultsMissingFields(t *testing.T) {
	tk := Ticket{
		Status:    kitchenstatus.TicketNew,
		Priority:  PriorityRush,
		CreatedAt: testNow.Add(-4 * time.Minute),
	}

	got := ComputeSLA(tk, DefaultSLASettings(), testNow)

	if got.SLAMinutes != 12 {
		t.Errorf("SLAMinutes = %d, want 12", got.SLAMinutes)
	}
	if got.ElapsedMinutes != 4 {
		t.Errorf("ElapsedMinutes = %d, want 4", got.ElapsedMinutes)
	}
	if got.RemainingMinutes != 8 {
		t.Errorf("RemainingMinutes = %d, want 8", got.RemainingMinutes)
	}
}

func TestWarningThreshold(t *testing.T) {
	tests := []struct {
		sla  int
		want int
	}{
		{sla: 20, want: 5},
		{sla: 12, want: 3},
		{sla: 4, want: 2},
		{sla: 1, want: 2},
	}

	for _, tt := range tests {
		if got := warningThreshold(tt.sla); got != tt.want {
			t.Errorf("warningThreshold(%d) = %d, want %d", tt.sla, got, tt.want)
		}
	}
}

func TestKitchenSLABuckets(t *testing.T) {
	mk := func(status kitchenstatus.Ticket, remaining time.Duration) Ticket {
		return Ticket{
			Status:        status,
			SLAMinutes:    20,
			FiredAt:       testNow.Add(remaining - 20*time.Minute),
			TargetReadyAt: testNow.Add(remaining),
		}
	}

	tickets := []Ticket{
		mk(kitchenstatus.TicketNew, 10*time.Minute),
		mk(kitchenstatus.TicketPreparing, 2*time.Minute),
		mk(kitchenstatus.TicketPreparing, -1*time.Minute),
		mk(kitchenstatus.TicketNew, -30*time.Minute),
		mk(kitchenstatus.TicketReady, -30*time.Minute),
	}

	got := KitchenSLABuckets(tickets, DefaultSLASettings(), testNow)
	want := SLABuckets{OpenTickets: 4, OverdueCount: 2, WarningCount: 1, OnTrackCount: 1}

	if got != want {
		t.Errorf("KitchenSLABuckets() = %+v, want %+v", got, want)
	}
}

func TestSLASettingsFromConfig(t *testing.T) {
	if got := SLASettingsFromConfig(nil); got != DefaultSLASettings() {
		t.Errorf("SLASettingsFromConfig(nil) = %+v, want defaults", got)
	}
	if got := SLASettingsFromConfig(apt.NewConfig()); got != DefaultSLASettings() {
		t.Errorf("SLASettingsFromConfig(empty) = %+v, want defaults", got)
	}
}

func TestSLASettingsMinutesFor(t *testing.T) {
	s := SLASettings{NormalMinutes: 0, RushMinutes: 7}

	if got := s.MinutesFor(PriorityNormal); got != 1 {
		t.Errorf("MinutesFor(NORMAL) = %d, want 1", got)
	}
	if got := s.MinutesFor(PriorityRush); got != 7 {
		t.Errorf("MinutesFor(RUSH) = %d, want 7", got)
	}
}

func TestRound(t *testing.T) {
	if got := Round(12.3456, 2); got != 12.35 {
		t.Errorf("Round() = %v, want 12.35", got)
	}
	if got := Round(0.6666, 3); got != 0.667 {
		t.Errorf("Round() = %v, want 0.667", got)
	}
}
