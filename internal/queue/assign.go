package queue

import (
	"context"
	"sort"

	"barberq/internal/estimate"
	"barberq/internal/models"
	"barberq/internal/store"
)

// PickLeastLoaded returns the active barber with the smallest projected
// total wait over the current snapshot. Ties break by ascending barber id so
// the choice is deterministic.
func (s *Scheduler) PickLeastLoaded(ctx context.Context, tenantID string) (models.Barber, error) {
	barbers, err := s.store.ListBarbers(ctx, tenantID, true)
	if err != nil {
		return models.Barber{}, err
	}
	if len(barbers) == 0 {
		return models.Barber{}, store.ErrNoBarberAvailable
	}

	sort.Slice(barbers, func(i, j int) bool {
		return barbers[i].BarberID < barbers[j].BarberID
	})

	// One tenant-wide read instead of a query per barber.
	active, err := s.store.ListTenantActiveEntries(ctx, tenantID)
	if err != nil {
		return models.Barber{}, err
	}
	byBarber := make(map[string][]models.QueueEntry)
	for _, entry := range active {
		byBarber[entry.BarberID] = append(byBarber[entry.BarberID], entry)
	}

	now := s.now()
	best := barbers[0]
	bestWait := -1
	for _, barber := range barbers {
		avg := s.estimator.EffectiveAvg(ctx, barber)
		wait := estimate.ProjectedTotalWait(byBarber[barber.BarberID], avg, now)
		if bestWait < 0 || wait < bestWait {
			best = barber
			bestWait = wait
		}
	}
	return best, nil
}
