package queue

import (
	"context"
	"log"

	"barberq/internal/models"
	"barberq/internal/store"
)

// Reconciler repairs drift between a barber's busy/available flag and the
// actual presence of an attending entry. Repairs are best-effort and logged,
// never raised: a fix losing a race with a legitimate concurrent write is
// tolerated and heals again on the next pass.
type Reconciler struct {
	store store.Store
}

func NewReconciler(st store.Store) *Reconciler {
	return &Reconciler{store: st}
}

// Repair returns the status the barber should have given its active
// entries, persisting the correction when it differs. Offline barbers are
// left alone; offline is an operator choice, not queue state.
func (r *Reconciler) Repair(ctx context.Context, barber models.Barber, active []models.QueueEntry) models.Barber {
	attending := false
	for _, entry := range active {
		if entry.Status == models.StatusAttending {
			attending = true
			break
		}
	}

	var corrected string
	switch {
	case barber.Status == models.BarberBusy && !attending:
		corrected = models.BarberAvailable
	case barber.Status == models.BarberAvailable && attending:
		corrected = models.BarberBusy
	default:
		return barber
	}

	_, err := r.store.Apply(ctx, store.Mutation{
		TenantID:     barber.TenantID,
		BarberID:     barber.BarberID,
		BarberStatus: corrected,
		Events: []store.Event{{
			Type: store.EventBarberStatusFixed,
			Payload: map[string]interface{}{
				"barber_id":   barber.BarberID,
				"from_status": barber.Status,
				"to_status":   corrected,
			},
		}},
	})
	if err != nil {
		log.Printf("reconcile barber=%s status %s->%s: %v", barber.BarberID, barber.Status, corrected, err)
	} else {
		log.Printf("reconcile barber=%s status %s->%s", barber.BarberID, barber.Status, corrected)
	}
	barber.Status = corrected
	return barber
}

// Sweep runs the repair across every barber of a tenant. Used by the
// periodic background pass; read paths invoke Repair inline instead.
func (r *Reconciler) Sweep(ctx context.Context, tenantID string) error {
	barbers, err := r.store.ListBarbers(ctx, tenantID, false)
	if err != nil {
		return err
	}
	for _, barber := range barbers {
		active, err := r.store.ListActiveEntries(ctx, tenantID, barber.BarberID)
		if err != nil {
			return err
		}
		r.Repair(ctx, barber, active)
	}
	return nil
}
