package queue

import (
	"context"
	"errors"
	"testing"

	"barberq/internal/models"
	"barberq/internal/store"

	"github.com/google/uuid"
)

func TestPickLeastLoadedPrefersShortestBacklog(t *testing.T) {
	s, st := newTestScheduler(t)
	tenantID := uuid.NewString()
	loaded := seedBarber(t, st, tenantID, 30)
	idle := seedBarber(t, st, tenantID, 30)

	enqueue(t, s, tenantID, loaded.BarberID, "Ana", false)
	enqueue(t, s, tenantID, loaded.BarberID, "Bruno", false)

	picked, err := s.PickLeastLoaded(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if picked.BarberID != idle.BarberID {
		t.Fatalf("expected the idle barber, got %s", picked.BarberID)
	}
}

func TestPickLeastLoadedTieBreaksByID(t *testing.T) {
	s, st := newTestScheduler(t)
	tenantID := uuid.NewString()
	a := seedBarber(t, st, tenantID, 30)
	b := seedBarber(t, st, tenantID, 30)

	lowest := a.BarberID
	if b.BarberID < lowest {
		lowest = b.BarberID
	}

	picked, err := s.PickLeastLoaded(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if picked.BarberID != lowest {
		t.Fatalf("expected lowest barber id %s on a tie, got %s", lowest, picked.BarberID)
	}
}

func TestPickLeastLoadedSkipsInactive(t *testing.T) {
	s, st := newTestScheduler(t)
	tenantID := uuid.NewString()
	if _, err := st.CreateBarber(context.Background(), models.Barber{
		BarberID: uuid.NewString(),
		TenantID: tenantID,
		Name:     "Off duty",
		IsActive: false,
	}); err != nil {
		t.Fatalf("seed barber: %v", err)
	}

	_, err := s.PickLeastLoaded(context.Background(), tenantID)
	if !errors.Is(err, store.ErrNoBarberAvailable) {
		t.Fatalf("expected ErrNoBarberAvailable, got %v", err)
	}
}

func TestEnqueueWithoutBarberAutoAssigns(t *testing.T) {
	s, st := newTestScheduler(t)
	tenantID := uuid.NewString()
	loaded := seedBarber(t, st, tenantID, 30)
	idle := seedBarber(t, st, tenantID, 30)

	enqueue(t, s, tenantID, loaded.BarberID, "Ana", false)

	entry, err := s.Enqueue(context.Background(), EnqueueInput{
		TenantID:   tenantID,
		ClientName: "Bruno",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if entry.BarberID != idle.BarberID {
		t.Fatalf("expected assignment to the idle barber, got %s", entry.BarberID)
	}
	if entry.Position != 1 {
		t.Fatalf("expected position 1 on the idle barber, got %d", entry.Position)
	}
}
