// Package queue implements the walk-in queue engine: the per-barber state
// machine, least-loaded barber assignment, and the busy/available
// consistency repair.
package queue

import (
	"context"
	"sort"
	"time"

	"barberq/internal/estimate"
	"barberq/internal/models"
	"barberq/internal/store"

	"github.com/google/uuid"
)

// Notifier is told after every committed mutation so live views can refresh.
type Notifier interface {
	QueueChanged(tenantID, barberID string)
}

type Scheduler struct {
	store     store.Store
	estimator *estimate.Engine
	locks     *barberLocks
	notifier  Notifier
	now       func() time.Time
}

func NewScheduler(st store.Store, estimator *estimate.Engine, notifier Notifier) *Scheduler {
	return &Scheduler{
		store:     st,
		estimator: estimator,
		locks:     newBarberLocks(),
		notifier:  notifier,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type EnqueueInput struct {
	TenantID    string
	BarberID    string
	ClientID    string
	ClientName  string
	ClientPhone string
	IsPriority  bool
}

// Enqueue appends a client to a barber's line. When no barber is requested
// the least-loaded active barber is picked first. The client may hold only
// one active entry per tenant.
func (s *Scheduler) Enqueue(ctx context.Context, input EnqueueInput) (models.QueueEntry, error) {
	if input.BarberID == "" {
		barber, err := s.PickLeastLoaded(ctx, input.TenantID)
		if err != nil {
			return models.QueueEntry{}, err
		}
		input.BarberID = barber.BarberID
	}

	unlock := s.locks.acquire(input.TenantID, input.BarberID)
	defer unlock()

	barber, err := s.store.GetBarber(ctx, input.TenantID, input.BarberID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if !barber.IsActive {
		return models.QueueEntry{}, store.ErrBarberInactive
	}

	clientID := input.ClientID
	if clientID == "" && input.ClientPhone != "" {
		client, err := s.store.FindOrCreateClient(ctx, input.TenantID, input.ClientName, input.ClientPhone)
		if err != nil {
			return models.QueueEntry{}, err
		}
		clientID = client.ClientID
	}

	if clientID != "" || input.ClientPhone != "" {
		_, found, err := s.store.FindActiveEntryByClient(ctx, input.TenantID, clientID, input.ClientPhone)
		if err != nil {
			return models.QueueEntry{}, err
		}
		if found {
			return models.QueueEntry{}, store.ErrDuplicateActiveEntry
		}
	}

	active, err := s.store.ListActiveEntries(ctx, input.TenantID, input.BarberID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	position := 0
	for _, entry := range active {
		if entry.Position > position {
			position = entry.Position
		}
	}
	position++

	avg := s.estimator.EffectiveAvg(ctx, barber)
	createdAt := s.now()
	insert := &store.InsertEntry{
		EntryID:          uuid.NewString(),
		ClientID:         clientID,
		ClientName:       input.ClientName,
		ClientPhone:      input.ClientPhone,
		IsPriority:       input.IsPriority,
		Position:         position,
		EstimatedMinutes: position * avg,
		CreatedAt:        createdAt,
	}

	entry, err := s.store.Apply(ctx, store.Mutation{
		TenantID: input.TenantID,
		BarberID: input.BarberID,
		Insert:   insert,
		Events: []store.Event{{
			Type: store.EventEntryCreated,
			Payload: map[string]interface{}{
				"entry_id":               insert.EntryID,
				"barber_id":              input.BarberID,
				"client_name":            input.ClientName,
				"position":               position,
				"is_priority":            input.IsPriority,
				"estimated_time_minutes": insert.EstimatedMinutes,
				"created_at":             createdAt,
			},
		}},
	})
	if err != nil {
		return models.QueueEntry{}, err
	}

	s.notify(input.TenantID, input.BarberID)
	return entry, nil
}

// CallNext finalizes any service still marked in progress, then moves the
// first waiting entry (priority class first, then lowest position) to
// attending. An empty queue is not an error: the barber is flipped to
// available and ok=false is returned.
func (s *Scheduler) CallNext(ctx context.Context, tenantID, barberID string) (models.QueueEntry, bool, error) {
	unlock := s.locks.acquire(tenantID, barberID)
	defer unlock()

	barber, err := s.store.GetBarber(ctx, tenantID, barberID)
	if err != nil {
		return models.QueueEntry{}, false, err
	}
	if !barber.IsActive {
		return models.QueueEntry{}, false, store.ErrBarberInactive
	}

	active, err := s.store.ListActiveEntries(ctx, tenantID, barberID)
	if err != nil {
		return models.QueueEntry{}, false, err
	}

	now := s.now()
	updates, events := s.finalizeAttending(active, now)
	departed := departedIDs(updates)

	waiting := estimate.OrderWaiting(active)
	if len(waiting) == 0 {
		if len(updates) > 0 || barber.Status != models.BarberAvailable {
			_, err = s.store.Apply(ctx, store.Mutation{
				TenantID:     tenantID,
				BarberID:     barberID,
				Updates:      updates,
				Positions:    renumberActive(active, departed, ""),
				BarberStatus: models.BarberAvailable,
				Events:       events,
			})
			if err != nil {
				return models.QueueEntry{}, false, err
			}
			s.notify(tenantID, barberID)
		}
		return models.QueueEntry{}, false, nil
	}

	next := waiting[0]
	updates = append(updates, store.EntryUpdate{
		EntryID:   next.EntryID,
		Status:    models.StatusAttending,
		StartedAt: &now,
	})
	events = append(events, store.Event{
		Type: store.EventEntryCalled,
		Payload: map[string]interface{}{
			"entry_id":    next.EntryID,
			"barber_id":   barberID,
			"client_name": next.ClientName,
			"position":    next.Position,
			"started_at":  now,
		},
	})

	entry, err := s.store.Apply(ctx, store.Mutation{
		TenantID:     tenantID,
		BarberID:     barberID,
		Updates:      updates,
		Positions:    renumberActive(active, departed, next.EntryID),
		BarberStatus: models.BarberBusy,
		Events:       events,
	})
	if err != nil {
		return models.QueueEntry{}, false, err
	}

	s.notify(tenantID, barberID)
	return entry, true, nil
}

// Start puts one specific waiting entry in the chair, out of order. Any
// other service in progress for the barber is finalized first.
func (s *Scheduler) Start(ctx context.Context, tenantID, entryID string) (models.QueueEntry, error) {
	target, err := s.store.GetEntry(ctx, tenantID, entryID)
	if err != nil {
		return models.QueueEntry{}, err
	}

	unlock := s.locks.acquire(tenantID, target.BarberID)
	defer unlock()

	target, err = s.store.GetEntry(ctx, tenantID, entryID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if target.Status == models.StatusAttending {
		return models.QueueEntry{}, store.ErrAlreadyAttending
	}
	if !store.ValidTransition("start", target.Status) {
		return models.QueueEntry{}, store.ErrNotWaiting
	}

	active, err := s.store.ListActiveEntries(ctx, tenantID, target.BarberID)
	if err != nil {
		return models.QueueEntry{}, err
	}

	now := s.now()
	updates, events := s.finalizeAttending(active, now)
	departed := departedIDs(updates)
	updates = append(updates, store.EntryUpdate{
		EntryID:   target.EntryID,
		Status:    models.StatusAttending,
		StartedAt: &now,
	})
	events = append(events, store.Event{
		Type: store.EventEntryStarted,
		Payload: map[string]interface{}{
			"entry_id":    target.EntryID,
			"barber_id":   target.BarberID,
			"client_name": target.ClientName,
			"started_at":  now,
		},
	})

	entry, err := s.store.Apply(ctx, store.Mutation{
		TenantID:     tenantID,
		BarberID:     target.BarberID,
		Updates:      updates,
		Positions:    renumberActive(active, departed, target.EntryID),
		BarberStatus: models.BarberBusy,
		Events:       events,
	})
	if err != nil {
		return models.QueueEntry{}, err
	}

	s.notify(tenantID, target.BarberID)
	return entry, nil
}

// Finish completes the service in progress and frees the barber. Finishing
// an entry that is already finished is a no-op success so duplicate taps and
// retries are harmless; the sale-eligible flag is only true on the finish
// that actually transitioned the entry.
func (s *Scheduler) Finish(ctx context.Context, tenantID, entryID string) (models.QueueEntry, bool, error) {
	target, err := s.store.GetEntry(ctx, tenantID, entryID)
	if err != nil {
		return models.QueueEntry{}, false, err
	}

	unlock := s.locks.acquire(tenantID, target.BarberID)
	defer unlock()

	target, err = s.store.GetEntry(ctx, tenantID, entryID)
	if err != nil {
		return models.QueueEntry{}, false, err
	}
	if target.Status == models.StatusFinished {
		return target, false, nil
	}
	if !store.ValidTransition("finish", target.Status) {
		return models.QueueEntry{}, false, store.ErrInvalidState
	}

	active, err := s.store.ListActiveEntries(ctx, tenantID, target.BarberID)
	if err != nil {
		return models.QueueEntry{}, false, err
	}

	now := s.now()
	entry, err := s.store.Apply(ctx, store.Mutation{
		TenantID: tenantID,
		BarberID: target.BarberID,
		Updates: []store.EntryUpdate{{
			EntryID:    target.EntryID,
			Status:     models.StatusFinished,
			FinishedAt: &now,
		}},
		Positions:    renumberActive(active, map[string]bool{target.EntryID: true}, ""),
		BarberStatus: models.BarberAvailable,
		Events: []store.Event{{
			Type: store.EventEntryFinished,
			Payload: map[string]interface{}{
				"entry_id":      target.EntryID,
				"barber_id":     target.BarberID,
				"client_name":   target.ClientName,
				"finished_at":   now,
				"sale_eligible": true,
			},
		}},
	})
	if err != nil {
		return models.QueueEntry{}, false, err
	}

	s.estimator.Invalidate(ctx, tenantID, target.BarberID)
	s.notify(tenantID, target.BarberID)
	return entry, true, nil
}

// Cancel removes a waiting or attending entry and renumbers the barber's
// remaining active entries in the same committed mutation, keeping positions
// contiguous from 1.
func (s *Scheduler) Cancel(ctx context.Context, tenantID, entryID string) (models.QueueEntry, error) {
	target, err := s.store.GetEntry(ctx, tenantID, entryID)
	if err != nil {
		return models.QueueEntry{}, err
	}

	unlock := s.locks.acquire(tenantID, target.BarberID)
	defer unlock()

	target, err = s.store.GetEntry(ctx, tenantID, entryID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if !store.ValidTransition("cancel", target.Status) {
		return models.QueueEntry{}, store.ErrInvalidState
	}

	active, err := s.store.ListActiveEntries(ctx, tenantID, target.BarberID)
	if err != nil {
		return models.QueueEntry{}, err
	}

	mutation := store.Mutation{
		TenantID: tenantID,
		BarberID: target.BarberID,
		Updates: []store.EntryUpdate{{
			EntryID: target.EntryID,
			Status:  models.StatusCancelled,
		}},
		Positions: renumberActive(active, map[string]bool{target.EntryID: true}, ""),
		Events: []store.Event{{
			Type: store.EventEntryCancelled,
			Payload: map[string]interface{}{
				"entry_id":    target.EntryID,
				"barber_id":   target.BarberID,
				"client_name": target.ClientName,
				"was_status":  target.Status,
			},
		}},
	}
	if target.Status == models.StatusAttending {
		mutation.BarberStatus = models.BarberAvailable
	}

	entry, err := s.store.Apply(ctx, mutation)
	if err != nil {
		return models.QueueEntry{}, err
	}

	s.notify(tenantID, target.BarberID)
	return entry, nil
}

// finalizeAttending closes out anything still marked attending. There should
// be at most one such entry; finalizing all of them keeps the single-chair
// invariant even if a bad write slipped in.
func (s *Scheduler) finalizeAttending(active []models.QueueEntry, now time.Time) ([]store.EntryUpdate, []store.Event) {
	var updates []store.EntryUpdate
	var events []store.Event
	for _, entry := range active {
		if entry.Status != models.StatusAttending {
			continue
		}
		finishedAt := now
		updates = append(updates, store.EntryUpdate{
			EntryID:    entry.EntryID,
			Status:     models.StatusFinished,
			FinishedAt: &finishedAt,
		})
		events = append(events, store.Event{
			Type: store.EventEntryFinished,
			Payload: map[string]interface{}{
				"entry_id":      entry.EntryID,
				"barber_id":     entry.BarberID,
				"client_name":   entry.ClientName,
				"finished_at":   finishedAt,
				"sale_eligible": true,
			},
		})
	}
	return updates, events
}

// renumberActive reassigns contiguous positions 1..k to the active entries
// that remain after a departure. Attending entries sort first so the client
// in the chair holds the lowest position; promotedID marks an entry whose
// move to the chair commits in the same mutation.
func renumberActive(active []models.QueueEntry, departed map[string]bool, promotedID string) []store.PositionUpdate {
	var remaining []models.QueueEntry
	for _, entry := range active {
		if departed[entry.EntryID] {
			continue
		}
		if entry.EntryID == promotedID {
			entry.Status = models.StatusAttending
		}
		remaining = append(remaining, entry)
	}
	sort.SliceStable(remaining, func(i, j int) bool {
		iAttending := remaining[i].Status == models.StatusAttending
		jAttending := remaining[j].Status == models.StatusAttending
		if iAttending != jAttending {
			return iAttending
		}
		return remaining[i].Position < remaining[j].Position
	})

	var updates []store.PositionUpdate
	for i, entry := range remaining {
		if entry.Position != i+1 {
			updates = append(updates, store.PositionUpdate{EntryID: entry.EntryID, Position: i + 1})
		}
	}
	return updates
}

func departedIDs(updates []store.EntryUpdate) map[string]bool {
	departed := make(map[string]bool, len(updates))
	for _, update := range updates {
		if update.Status == models.StatusFinished {
			departed[update.EntryID] = true
		}
	}
	return departed
}

func (s *Scheduler) notify(tenantID, barberID string) {
	if s.notifier != nil {
		s.notifier.QueueChanged(tenantID, barberID)
	}
}
