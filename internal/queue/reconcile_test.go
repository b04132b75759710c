package queue

import (
	"context"
	"testing"
	"time"

	"barberq/internal/models"
	"barberq/internal/store"
	"barberq/internal/store/memory"

	"github.com/google/uuid"
)

func TestRepairBusyWithoutAttending(t *testing.T) {
	st := memory.NewStore()
	r := NewReconciler(st)
	tenantID := uuid.NewString()
	barber := seedBarber(t, st, tenantID, 30)
	if err := st.UpdateBarberStatus(context.Background(), tenantID, barber.BarberID, models.BarberBusy); err != nil {
		t.Fatalf("set busy: %v", err)
	}
	barber.Status = models.BarberBusy

	repaired := r.Repair(context.Background(), barber, nil)
	if repaired.Status != models.BarberAvailable {
		t.Fatalf("expected available after repair, got %s", repaired.Status)
	}

	stored, err := st.GetBarber(context.Background(), tenantID, barber.BarberID)
	if err != nil {
		t.Fatalf("get barber: %v", err)
	}
	if stored.Status != models.BarberAvailable {
		t.Fatalf("expected persisted repair, got %s", stored.Status)
	}

	events, err := st.ListOutboxEvents(context.Background(), tenantID, time.Time{}, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var repairs int
	for _, event := range events {
		if event.Type == store.EventBarberStatusFixed {
			repairs++
		}
	}
	if repairs != 1 {
		t.Fatalf("expected one status repair event, got %d", repairs)
	}
}

func TestRepairAvailableWithAttending(t *testing.T) {
	st := memory.NewStore()
	r := NewReconciler(st)
	tenantID := uuid.NewString()
	barber := seedBarber(t, st, tenantID, 30)

	active := []models.QueueEntry{{
		EntryID:  uuid.NewString(),
		TenantID: tenantID,
		BarberID: barber.BarberID,
		Status:   models.StatusAttending,
		Position: 1,
	}}
	repaired := r.Repair(context.Background(), barber, active)
	if repaired.Status != models.BarberBusy {
		t.Fatalf("expected busy after repair, got %s", repaired.Status)
	}
}

func TestRepairLeavesOfflineAlone(t *testing.T) {
	st := memory.NewStore()
	r := NewReconciler(st)
	tenantID := uuid.NewString()
	barber := seedBarber(t, st, tenantID, 30)
	if err := st.UpdateBarberStatus(context.Background(), tenantID, barber.BarberID, models.BarberOffline); err != nil {
		t.Fatalf("set offline: %v", err)
	}
	barber.Status = models.BarberOffline

	active := []models.QueueEntry{{
		EntryID:  uuid.NewString(),
		TenantID: tenantID,
		BarberID: barber.BarberID,
		Status:   models.StatusAttending,
		Position: 1,
	}}
	repaired := r.Repair(context.Background(), barber, active)
	if repaired.Status != models.BarberOffline {
		t.Fatalf("offline must not be repaired, got %s", repaired.Status)
	}
}

func TestSweepRepairsAllBarbers(t *testing.T) {
	st := memory.NewStore()
	r := NewReconciler(st)
	tenantID := uuid.NewString()
	stale := seedBarber(t, st, tenantID, 30)
	if err := st.UpdateBarberStatus(context.Background(), tenantID, stale.BarberID, models.BarberBusy); err != nil {
		t.Fatalf("set busy: %v", err)
	}
	healthy := seedBarber(t, st, tenantID, 30)

	if err := r.Sweep(context.Background(), tenantID); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	repaired, err := st.GetBarber(context.Background(), tenantID, stale.BarberID)
	if err != nil {
		t.Fatalf("get barber: %v", err)
	}
	if repaired.Status != models.BarberAvailable {
		t.Fatalf("expected stale barber repaired, got %s", repaired.Status)
	}
	untouched, err := st.GetBarber(context.Background(), tenantID, healthy.BarberID)
	if err != nil {
		t.Fatalf("get barber: %v", err)
	}
	if untouched.Status != models.BarberAvailable {
		t.Fatalf("expected healthy barber unchanged, got %s", untouched.Status)
	}
}
