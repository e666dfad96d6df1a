package kitchen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kitchenops/pkg/enums/kitchenstatus"
)

func TestNewTicketBoard(t *testing.T) {
	tests := []struct {
		name   string
		repo   TicketRepository
		logger apt.Logger
	}{
		{name: "withAllDependencies", repo: NewMockTicketRepository(), logger: apt.NewNoopLogger()},
		{name: "withNilRepo", repo: nil, logger: apt.NewNoopLogger()},
		{name: "withNilLogger", repo: NewMockTicketRepository(), logger: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewTicketBoard(tt.repo, tt.logger)
			if b == nil {
				t.Fatal("NewTicketBoard() returned nil")
			}
			if b.logger == nil {
				t.Error("NewTicketBoard() should set noop logger when nil")
			}
			if err := b.Warm(context.Background()); err != nil {
				t.Errorf("Warm() error = %v", err)
			}
		})
	}
}

func TestTicketBoardWarm(t *testing.T) {
	repo := NewMockTicketRepository()
	repo.Put(*newTestTicket(kitchenstatus.TicketNew, kitchenstatus.ItemNew))
	repo.Put(*newTestTicket(kitchenstatus.TicketExpoConfirmed, kitchenstatus.ItemReady))
	repo.Put(*newTestTicket(kitchenstatus.TicketServed, kitchenstatus.ItemReady))

	b := NewTicketBoard(repo, nil)
	if err := b.Warm(context.Background()); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if n := boardSize(b); n != 2 {
		t.Errorf("board size = %d, want 2", n)
	}
}

func TestTicketBoardWarmFailureStartsEmpty(t *testing.T) {
	repo := NewMockTicketRepository()
	repo.ListByStatusFunc = func(ctx context.Context, loc string, statuses []kitchenstatus.Ticket) ([]Ticket, error) {
		return nil, errors.New("database unavailable")
	}

	b := NewTicketBoard(repo, nil)
	if err := b.Warm(context.Background()); err != nil {
		t.Errorf("Warm() error = %v, want nil", err)
	}
	if n := boardSize(b); n != 0 {
		t.Errorf("board size = %d, want 0", n)
	}
}

func TestTicketBoardSetReindexes(t *testing.T) {
	b := NewTicketBoard(nil, nil)

	tk := newTestTicket(kitchenstatus.TicketNew, kitchenstatus.ItemNew)
	b.Set(tk)

	if got := b.ByStation(DefaultLocationID, "HOT_LINE"); len(got) != 1 {
		t.Fatalf("HOT_LINE tickets = %d, want 1", len(got))
	}

	tk.Items[0].StationCode = "BAR"
	b.Set(tk)

	if got := b.ByStation(DefaultLocationID, "HOT_LINE"); len(got) != 0 {
		t.Errorf("HOT_LINE tickets after move = %d, want 0", len(got))
	}
	if got := b.ByStation(DefaultLocationID, "BAR"); len(got) != 1 {
		t.Errorf("BAR tickets = %d, want 1", len(got))
	}
	if n := boardSize(b); n != 1 {
		t.Errorf("board size = %d, want 1", n)
	}

	tk.Status = kitchenstatus.TicketServed
	b.Set(tk)
	if n := boardSize(b); n != 0 {
		t.Errorf("board size after served = %d, want 0", n)
	}
	if _, ok := boardEntry(b, tk.ID); ok {
		t.Error("board kept a served ticket")
	}
}

func TestTicketBoardStoresCopies(t *testing.T) {
	b := NewTicketBoard(nil, nil)
	tk := newTestTicket(kitchenstatus.TicketNew, kitchenstatus.ItemNew)
	b.Set(tk)

	tk.Items[0].Status = kitchenstatus.ItemReady

	got, ok := boardEntry(b, tk.ID)
	if !ok {
		t.Fatal("board missed stored ticket")
	}
	if got.Items[0].Status != kitchenstatus.ItemNew {
		t.Error("board shares item slice with caller")
	}
}

func TestTicketBoardOrdering(t *testing.T) {
	b := NewTicketBoard(nil, nil)

	old := newTestTicket(kitchenstatus.TicketNew, kitchenstatus.ItemNew)
	old.FiredAt = testNow.Add(-30 * time.Minute)

	recent := newTestTicket(kitchenstatus.TicketNew, kitchenstatus.ItemNew)
	recent.FiredAt = testNow.Add(-5 * time.Minute)

	rush := newTestTicket(kitchenstatus.TicketNew, kitchenstatus.ItemNew)
	rush.FiredAt = testNow.Add(-1 * time.Minute)
	rush.Priority = PriorityRush

	b.Set(recent)
	b.Set(old)
	b.Set(rush)

	got := b.ByStation(DefaultLocationID, "HOT_LINE")
	if len(got) != 3 {
		t.Fatalf("tickets = %d, want 3", len(got))
	}
	want := []TicketID{rush.ID, old.ID, recent.ID}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestTicketBoardIgnoresCancelledItems(t *testing.T) {
	b := NewTicketBoard(nil, nil)
	tk := newTestTicket(kitchenstatus.TicketReady, kitchenstatus.ItemReady, kitchenstatus.ItemCancelled)
	tk.Items[1].StationCode = "BAR"
	b.Set(tk)

	if got := b.ByStation(DefaultLocationID, "BAR"); len(got) != 0 {
		t.Errorf("BAR tickets = %d, want 0 for cancelled item", len(got))
	}
}

func TestTicketBoardKeepsNewestVersion(t *testing.T) {
	tests := []struct {
		name        string
		first       int
		second      int
		wantVersion int
		wantStatus  kitchenstatus.Ticket
	}{
		{name: "olderVersionIgnored", first: 3, second: 2, wantVersion: 3, wantStatus: kitchenstatus.TicketPreparing},
		{name: "sameVersionReplaces", first: 3, second: 3, wantVersion: 3, wantStatus: kitchenstatus.TicketNew},
		{name: "newerVersionReplaces", first: 3, second: 4, wantVersion: 4, wantStatus: kitchenstatus.TicketNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewTicketBoard(nil, nil)

			current := newTestTicket(kitchenstatus.TicketPreparing, kitchenstatus.ItemPreparing)
			current.ModelVersion = tt.first
			b.Set(current)

			other := *current
			other.Items = cloneItems(current.Items)
			other.ModelVersion = tt.second
			other.Status = kitchenstatus.TicketNew
			other.Items[0].Status = kitchenstatus.ItemNew
			b.Set(&other)

			got, ok := boardEntry(b, current.ID)
			if !ok {
				t.Fatal("board missed stored ticket")
			}
			if got.ModelVersion != tt.wantVersion {
				t.Errorf("ModelVersion = %d, want %d", got.ModelVersion, tt.wantVersion)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", got.Status, tt.wantStatus)
			}
		})
	}
}

func TestTicketBoardIgnoresStaleTerminal(t *testing.T) {
	b := NewTicketBoard(nil, nil)

	live := newTestTicket(kitchenstatus.TicketReady, kitchenstatus.ItemReady)
	live.ModelVersion = 5
	b.Set(live)

	stale := *live
	stale.ModelVersion = 4
	stale.Status = kitchenstatus.TicketCancelled
	b.Set(&stale)

	if got := b.ByStation(DefaultLocationID, "HOT_LINE"); len(got) != 1 {
		t.Errorf("HOT_LINE tickets = %d, want 1", len(got))
	}
}

func boardSize(b *TicketBoard) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.tickets)
}

func boardEntry(b *TicketBoard, id TicketID) (Ticket, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tickets[id]
	if !ok {
		return Ticket{}, false
	}
	return *t, true
}
