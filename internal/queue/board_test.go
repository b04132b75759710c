package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"barberq/internal/estimate"
	"barberq/internal/models"
	"barberq/internal/store"

	"github.com/google/uuid"
)

func TestBoardShowsChairFirstAndRepairsStatus(t *testing.T) {
	s, st := newTestScheduler(t)
	views := NewViews(st, estimate.New(st, estimate.Config{}, nil), NewReconciler(st))
	tenantID := uuid.NewString()
	barber := seedBarber(t, st, tenantID, 30)

	enqueue(t, s, tenantID, barber.BarberID, "Ana", false)
	enqueue(t, s, tenantID, barber.BarberID, "Bruno", false)
	priority := enqueue(t, s, tenantID, barber.BarberID, "Carla", true)
	if _, ok, err := s.CallNext(context.Background(), tenantID, barber.BarberID); err != nil || !ok {
		t.Fatalf("call next: ok=%v err=%v", ok, err)
	}

	// Force drift: the scheduler set busy, pretend a bad write flipped it.
	if err := st.UpdateBarberStatus(context.Background(), tenantID, barber.BarberID, models.BarberAvailable); err != nil {
		t.Fatalf("set available: %v", err)
	}

	board, err := views.Board(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if len(board.Barbers) != 1 {
		t.Fatalf("expected 1 barber, got %d", len(board.Barbers))
	}

	bb := board.Barbers[0]
	if bb.Status != models.BarberBusy {
		t.Fatalf("expected repaired busy status, got %s", bb.Status)
	}
	if bb.StatusColor != "red" {
		t.Fatalf("expected red for busy, got %s", bb.StatusColor)
	}
	if bb.WaitingCount != 2 {
		t.Fatalf("expected 2 waiting, got %d", bb.WaitingCount)
	}
	if len(bb.Queue) != 3 {
		t.Fatalf("expected 3 queue rows, got %d", len(bb.Queue))
	}
	if bb.Queue[0].Status != models.StatusAttending {
		t.Fatalf("expected the chair first, got %s", bb.Queue[0].Status)
	}
	if bb.Queue[0].StatusColor != "green" {
		t.Fatalf("expected green for attending, got %s", bb.Queue[0].StatusColor)
	}
	if bb.Queue[0].EntryID != priority.EntryID {
		t.Fatalf("expected the priority client in the chair")
	}
	if bb.Queue[1].StatusColor != "yellow" {
		t.Fatalf("expected yellow for waiting, got %s", bb.Queue[1].StatusColor)
	}
	if bb.EstimatedWait <= 0 {
		t.Fatalf("expected positive backlog, got %d", bb.EstimatedWait)
	}
}

func TestTicketReportsQueuePosition(t *testing.T) {
	s, st := newTestScheduler(t)
	views := NewViews(st, estimate.New(st, estimate.Config{}, nil), NewReconciler(st))
	tenantID := uuid.NewString()
	barber := seedBarber(t, st, tenantID, 30)

	enqueue(t, s, tenantID, barber.BarberID, "Ana", false)
	second := enqueue(t, s, tenantID, barber.BarberID, "Bruno", false)
	late := enqueue(t, s, tenantID, barber.BarberID, "Carla", true)

	ticket, err := views.Ticket(context.Background(), tenantID, second.EntryID)
	if err != nil {
		t.Fatalf("ticket: %v", err)
	}
	// Carla's priority puts her ahead of Bruno despite the higher position.
	if ticket.QueuePosition != 3 {
		t.Fatalf("expected queue position 3, got %d", ticket.QueuePosition)
	}

	ticket, err = views.Ticket(context.Background(), tenantID, late.EntryID)
	if err != nil {
		t.Fatalf("ticket: %v", err)
	}
	if ticket.QueuePosition != 1 {
		t.Fatalf("expected priority ticket first in line, got %d", ticket.QueuePosition)
	}
	if ticket.BarberName == "" {
		t.Fatalf("expected barber name on ticket")
	}
}

func TestTicketUnknownEntry(t *testing.T) {
	_, st := newTestScheduler(t)
	views := NewViews(st, estimate.New(st, estimate.Config{}, nil), NewReconciler(st))

	_, err := views.Ticket(context.Background(), uuid.NewString(), uuid.NewString())
	if !errors.Is(err, store.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestBoardRenumbersStalePositions(t *testing.T) {
	s, st := newTestScheduler(t)
	views := NewViews(st, estimate.New(st, estimate.Config{}, nil), NewReconciler(st))
	tenantID := uuid.NewString()
	barber := seedBarber(t, st, tenantID, 30)

	ana := enqueue(t, s, tenantID, barber.BarberID, "Ana", false)
	bruno := enqueue(t, s, tenantID, barber.BarberID, "Bruno", false)

	// Corrupt the stored column the way a lost renumber would.
	_, err := st.Apply(context.Background(), store.Mutation{
		TenantID: tenantID,
		BarberID: barber.BarberID,
		Positions: []store.PositionUpdate{
			{EntryID: ana.EntryID, Position: 4},
			{EntryID: bruno.EntryID, Position: 7},
		},
	})
	if err != nil {
		t.Fatalf("apply stale positions: %v", err)
	}

	board, err := views.Board(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	queue := board.Barbers[0].Queue
	if len(queue) != 2 {
		t.Fatalf("expected 2 queue rows, got %d", len(queue))
	}
	for i, row := range queue {
		if row.Position != i+1 {
			t.Fatalf("expected display position %d, got %d", i+1, row.Position)
		}
	}
	if queue[0].EntryID != ana.EntryID || queue[1].EntryID != bruno.EntryID {
		t.Fatalf("expected service order Ana, Bruno")
	}
}

func TestStatsAveragesFinishedWindow(t *testing.T) {
	s, st := newTestScheduler(t)
	views := NewViews(st, estimate.New(st, estimate.Config{}, nil), NewReconciler(st))
	tenantID := uuid.NewString()
	barber := seedBarber(t, st, tenantID, 30)

	entry := enqueue(t, s, tenantID, barber.BarberID, "Ana", false)
	started := entry.CreatedAt.Add(10 * time.Minute)
	finished := started.Add(20 * time.Minute)
	_, err := st.Apply(context.Background(), store.Mutation{
		TenantID: tenantID,
		BarberID: barber.BarberID,
		Updates: []store.EntryUpdate{{
			EntryID:    entry.EntryID,
			Status:     models.StatusFinished,
			StartedAt:  &started,
			FinishedAt: &finished,
		}},
	})
	if err != nil {
		t.Fatalf("finish entry: %v", err)
	}

	stats, err := views.Stats(context.Background(), tenantID, barber.BarberID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.BarberName != barber.Name {
		t.Fatalf("expected barber name %q, got %q", barber.Name, stats.BarberName)
	}
	if stats.AvgServiceMinutes != 20 || stats.ServiceSamples != 1 {
		t.Fatalf("expected service avg 20 over 1 sample, got %d over %d", stats.AvgServiceMinutes, stats.ServiceSamples)
	}
	if stats.AvgWaitMinutes != 10 || stats.WaitSamples != 1 {
		t.Fatalf("expected wait avg 10 over 1 sample, got %d over %d", stats.AvgWaitMinutes, stats.WaitSamples)
	}
}
