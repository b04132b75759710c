package store

import (
	"context"
	"encoding/json"
	"time"

	"barberq/internal/models"
)

type InsertEntry struct {
	EntryID          string
	ClientID         string
	ClientName       string
	ClientPhone      string
	IsPriority       bool
	Position         int
	EstimatedMinutes int
	CreatedAt        time.Time
}

type EntryUpdate struct {
	EntryID    string
	Status     string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

type PositionUpdate struct {
	EntryID  string
	Position int
}

type Event struct {
	Type    string
	Payload map[string]interface{}
}

// Mutation is one atomic write against a single barber's queue. The store
// commits every part or none of it; position updates in particular must not
// become visible half-applied.
type Mutation struct {
	TenantID     string
	BarberID     string
	Insert       *InsertEntry
	Updates      []EntryUpdate
	Positions    []PositionUpdate
	BarberStatus string
	Events       []Event
}

type Store interface {
	ListTenants(ctx context.Context) ([]string, error)

	GetBarber(ctx context.Context, tenantID, barberID string) (models.Barber, error)
	ListBarbers(ctx context.Context, tenantID string, activeOnly bool) ([]models.Barber, error)
	CreateBarber(ctx context.Context, barber models.Barber) (models.Barber, error)
	UpdateBarber(ctx context.Context, barber models.Barber) (models.Barber, error)
	UpdateBarberStatus(ctx context.Context, tenantID, barberID, status string) error

	GetEntry(ctx context.Context, tenantID, entryID string) (models.QueueEntry, error)
	ListActiveEntries(ctx context.Context, tenantID, barberID string) ([]models.QueueEntry, error)
	ListTenantActiveEntries(ctx context.Context, tenantID string) ([]models.QueueEntry, error)
	FindActiveEntryByClient(ctx context.Context, tenantID, clientID, phone string) (models.QueueEntry, bool, error)
	ListFinishedEntries(ctx context.Context, tenantID, barberID string, since time.Time, limit int) ([]models.QueueEntry, error)

	Apply(ctx context.Context, mutation Mutation) (models.QueueEntry, error)

	FindOrCreateClient(ctx context.Context, tenantID, name, phone string) (models.Client, error)

	ListOutboxEvents(ctx context.Context, tenantID string, after time.Time, limit int) ([]OutboxEvent, error)
	ListOutboxBatch(ctx context.Context, afterSeq int64, limit int) ([]OutboxEvent, error)
	GetOutboxOffset(ctx context.Context, consumer string) (int64, error)
	UpdateOutboxOffset(ctx context.Context, consumer string, seq int64) error

	GetSession(ctx context.Context, sessionID string) (Session, error)
}

type Session struct {
	SessionID string
	UserID    string
	TenantID  string
	Role      string
	ExpiresAt time.Time
}

type OutboxEvent struct {
	Seq       int64           `json:"seq"`
	EventID   string          `json:"event_id"`
	TenantID  string          `json:"tenant_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	EventEntryCreated      = "entry.created"
	EventEntryCalled       = "entry.called"
	EventEntryStarted      = "entry.started"
	EventEntryFinished     = "entry.finished"
	EventEntryCancelled    = "entry.cancelled"
	EventBarberStatusFixed = "barber.status_repaired"
)
