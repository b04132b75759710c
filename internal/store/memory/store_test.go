package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"barberq/internal/models"
	"barberq/internal/store"

	"github.com/google/uuid"
)

func seedTestBarber(t *testing.T, st *Store, tenantID string) models.Barber {
	t.Helper()
	barber, err := st.CreateBarber(context.Background(), models.Barber{
		BarberID: uuid.NewString(),
		TenantID: tenantID,
		Name:     "Barber",
		Status:   models.BarberAvailable,
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("seed barber: %v", err)
	}
	return barber
}

func insertMutation(tenantID, barberID, clientID string, position int) store.Mutation {
	return store.Mutation{
		TenantID: tenantID,
		BarberID: barberID,
		Insert: &store.InsertEntry{
			EntryID:   uuid.NewString(),
			ClientID:  clientID,
			Position:  position,
			CreatedAt: time.Now().UTC(),
		},
	}
}

func TestApplyRejectsSecondActiveEntryForClient(t *testing.T) {
	st := NewStore()
	tenantID := uuid.NewString()
	first := seedTestBarber(t, st, tenantID)
	second := seedTestBarber(t, st, tenantID)
	clientID := uuid.NewString()

	if _, err := st.Apply(context.Background(), insertMutation(tenantID, first.BarberID, clientID, 1)); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	// The scheduler's pre-check holds one barber's lock; the store must
	// still refuse the same client landing at another barber.
	_, err := st.Apply(context.Background(), insertMutation(tenantID, second.BarberID, clientID, 1))
	if !errors.Is(err, store.ErrDuplicateActiveEntry) {
		t.Fatalf("expected ErrDuplicateActiveEntry, got %v", err)
	}
}

func TestApplyAllowsNewEntryAfterFinish(t *testing.T) {
	st := NewStore()
	tenantID := uuid.NewString()
	barber := seedTestBarber(t, st, tenantID)
	clientID := uuid.NewString()

	mutation := insertMutation(tenantID, barber.BarberID, clientID, 1)
	entry, err := st.Apply(context.Background(), mutation)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	now := time.Now().UTC()
	if _, err := st.Apply(context.Background(), store.Mutation{
		TenantID: tenantID,
		BarberID: barber.BarberID,
		Updates: []store.EntryUpdate{{
			EntryID:    entry.EntryID,
			Status:     models.StatusFinished,
			FinishedAt: &now,
		}},
	}); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if _, err := st.Apply(context.Background(), insertMutation(tenantID, barber.BarberID, clientID, 1)); err != nil {
		t.Fatalf("re-enqueue after finish: %v", err)
	}
}
