// Package memory is a map-backed Store used by tests and DSN-less local
// runs. It honors the same atomicity contract as the postgres store: a
// Mutation is applied under one lock, entirely or not at all.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"barberq/internal/models"
	"barberq/internal/store"

	"github.com/google/uuid"
)

type Store struct {
	mu       sync.RWMutex
	barbers  map[string]models.Barber
	entries  map[string]models.QueueEntry
	clients  map[string]models.Client
	sessions map[string]store.Session
	outbox   []store.OutboxEvent
	nextSeq  int64
	offsets  map[string]int64
}

func NewStore() *Store {
	return &Store{
		barbers:  make(map[string]models.Barber),
		entries:  make(map[string]models.QueueEntry),
		clients:  make(map[string]models.Client),
		sessions: make(map[string]store.Session),
		offsets:  make(map[string]int64),
	}
}

func (s *Store) ListTenants(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var tenants []string
	for _, barber := range s.barbers {
		if _, ok := seen[barber.TenantID]; ok {
			continue
		}
		seen[barber.TenantID] = struct{}{}
		tenants = append(tenants, barber.TenantID)
	}
	sort.Strings(tenants)
	return tenants, nil
}

func (s *Store) GetBarber(ctx context.Context, tenantID, barberID string) (models.Barber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	barber, ok := s.barbers[barberID]
	if !ok || barber.TenantID != tenantID {
		return models.Barber{}, store.ErrBarberNotFound
	}
	return barber, nil
}

func (s *Store) ListBarbers(ctx context.Context, tenantID string, activeOnly bool) ([]models.Barber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var barbers []models.Barber
	for _, barber := range s.barbers {
		if barber.TenantID != tenantID {
			continue
		}
		if activeOnly && !barber.IsActive {
			continue
		}
		barbers = append(barbers, barber)
	}
	sort.Slice(barbers, func(i, j int) bool {
		return barbers[i].BarberID < barbers[j].BarberID
	})
	return barbers, nil
}

func (s *Store) CreateBarber(ctx context.Context, barber models.Barber) (models.Barber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if barber.BarberID == "" {
		barber.BarberID = uuid.NewString()
	}
	if barber.Status == "" {
		barber.Status = models.BarberAvailable
	}
	s.barbers[barber.BarberID] = barber
	return barber, nil
}

func (s *Store) UpdateBarber(ctx context.Context, barber models.Barber) (models.Barber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.barbers[barber.BarberID]
	if !ok || existing.TenantID != barber.TenantID {
		return models.Barber{}, store.ErrBarberNotFound
	}
	s.barbers[barber.BarberID] = barber
	return barber, nil
}

func (s *Store) UpdateBarberStatus(ctx context.Context, tenantID, barberID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	barber, ok := s.barbers[barberID]
	if !ok || barber.TenantID != tenantID {
		return store.ErrBarberNotFound
	}
	barber.Status = status
	s.barbers[barberID] = barber
	return nil
}

func (s *Store) GetEntry(ctx context.Context, tenantID, entryID string) (models.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[entryID]
	if !ok || entry.TenantID != tenantID {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	return entry, nil
}

func (s *Store) ListActiveEntries(ctx context.Context, tenantID, barberID string) ([]models.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeEntriesLocked(tenantID, barberID), nil
}

func (s *Store) activeEntriesLocked(tenantID, barberID string) []models.QueueEntry {
	var entries []models.QueueEntry
	for _, entry := range s.entries {
		if entry.TenantID != tenantID || entry.BarberID != barberID || !entry.Active() {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Position < entries[j].Position
	})
	return entries
}

func (s *Store) ListTenantActiveEntries(ctx context.Context, tenantID string) ([]models.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []models.QueueEntry
	for _, entry := range s.entries {
		if entry.TenantID != tenantID || !entry.Active() {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].BarberID != entries[j].BarberID {
			return entries[i].BarberID < entries[j].BarberID
		}
		return entries[i].Position < entries[j].Position
	})
	return entries, nil
}

func (s *Store) FindActiveEntryByClient(ctx context.Context, tenantID, clientID, phone string) (models.QueueEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.entries {
		if entry.TenantID != tenantID || !entry.Active() {
			continue
		}
		if clientID != "" && entry.ClientID != nil && *entry.ClientID == clientID {
			return entry, true, nil
		}
		if phone != "" && entry.ClientPhone == phone {
			return entry, true, nil
		}
	}
	return models.QueueEntry{}, false, nil
}

func (s *Store) ListFinishedEntries(ctx context.Context, tenantID, barberID string, since time.Time, limit int) ([]models.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []models.QueueEntry
	for _, entry := range s.entries {
		if entry.TenantID != tenantID || entry.BarberID != barberID {
			continue
		}
		if entry.Status != models.StatusFinished || entry.FinishedAt == nil {
			continue
		}
		if entry.FinishedAt.Before(since) {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FinishedAt.After(*entries[j].FinishedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) Apply(ctx context.Context, mutation store.Mutation) (models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	barber, ok := s.barbers[mutation.BarberID]
	if !ok || barber.TenantID != mutation.TenantID {
		return models.QueueEntry{}, store.ErrBarberNotFound
	}

	var result models.QueueEntry

	if mutation.Insert != nil {
		in := mutation.Insert
		if in.ClientID != "" {
			for _, existing := range s.entries {
				if existing.TenantID == mutation.TenantID && existing.Active() &&
					existing.ClientID != nil && *existing.ClientID == in.ClientID {
					return models.QueueEntry{}, store.ErrDuplicateActiveEntry
				}
			}
		}
		entry := models.QueueEntry{
			EntryID:          in.EntryID,
			TenantID:         mutation.TenantID,
			BarberID:         mutation.BarberID,
			ClientName:       in.ClientName,
			ClientPhone:      in.ClientPhone,
			Status:           models.StatusWaiting,
			Position:         in.Position,
			IsPriority:       in.IsPriority,
			EstimatedMinutes: in.EstimatedMinutes,
			CreatedAt:        in.CreatedAt,
		}
		if in.ClientID != "" {
			clientID := in.ClientID
			entry.ClientID = &clientID
		}
		s.entries[entry.EntryID] = entry
		result = entry
	}

	for _, update := range mutation.Updates {
		entry, ok := s.entries[update.EntryID]
		if !ok || entry.TenantID != mutation.TenantID {
			return models.QueueEntry{}, store.ErrEntryNotFound
		}
		entry.Status = update.Status
		if update.StartedAt != nil {
			entry.StartedAt = update.StartedAt
		}
		if update.FinishedAt != nil {
			entry.FinishedAt = update.FinishedAt
		}
		s.entries[update.EntryID] = entry
		result = entry
	}

	for _, pos := range mutation.Positions {
		entry, ok := s.entries[pos.EntryID]
		if !ok || entry.TenantID != mutation.TenantID {
			return models.QueueEntry{}, store.ErrEntryNotFound
		}
		entry.Position = pos.Position
		s.entries[pos.EntryID] = entry
		if result.EntryID == pos.EntryID {
			result = entry
		}
	}

	if mutation.BarberStatus != "" {
		barber.Status = mutation.BarberStatus
		s.barbers[mutation.BarberID] = barber
	}

	for _, event := range mutation.Events {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return models.QueueEntry{}, err
		}
		s.nextSeq++
		s.outbox = append(s.outbox, store.OutboxEvent{
			Seq:       s.nextSeq,
			EventID:   uuid.NewString(),
			TenantID:  mutation.TenantID,
			Type:      event.Type,
			Payload:   payload,
			CreatedAt: time.Now().UTC(),
		})
	}

	if mutation.Insert != nil {
		return s.entries[mutation.Insert.EntryID], nil
	}
	return result, nil
}

func (s *Store) FindOrCreateClient(ctx context.Context, tenantID, name, phone string) (models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, client := range s.clients {
		if client.TenantID == tenantID && client.Phone == phone {
			return client, nil
		}
	}
	client := models.Client{
		ClientID: uuid.NewString(),
		TenantID: tenantID,
		Name:     strings.TrimSpace(name),
		Phone:    phone,
	}
	s.clients[client.ClientID] = client
	return client, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, tenantID string, after time.Time, limit int) ([]store.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	var events []store.OutboxEvent
	for _, event := range s.outbox {
		if tenantID != "" && event.TenantID != tenantID {
			continue
		}
		if !after.IsZero() && !event.CreatedAt.After(after) {
			continue
		}
		events = append(events, event)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *Store) ListOutboxBatch(ctx context.Context, afterSeq int64, limit int) ([]store.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	var events []store.OutboxEvent
	for _, event := range s.outbox {
		if event.Seq <= afterSeq {
			continue
		}
		events = append(events, event)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *Store) GetOutboxOffset(ctx context.Context, consumer string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offsets[consumer], nil
}

func (s *Store) UpdateOutboxOffset(ctx context.Context, consumer string, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[consumer] = seq
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok || session.ExpiresAt.Before(time.Now()) {
		return store.Session{}, store.ErrSessionNotFound
	}
	return session, nil
}

// PutSession seeds a session; used by tests and local runs.
func (s *Store) PutSession(session store.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session
}
