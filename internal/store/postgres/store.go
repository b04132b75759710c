package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"barberq/internal/models"
	"barberq/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const entryColumns = `
	entry_id, tenant_id, barber_id, client_id, client_name, client_phone,
	status, position, is_priority, estimated_time_minutes, created_at, started_at, finished_at
`

func scanEntry(row pgx.Row) (models.QueueEntry, error) {
	var entry models.QueueEntry
	var clientIDNull sql.NullString
	var phoneNull sql.NullString
	var startedAtNull sql.NullTime
	var finishedAtNull sql.NullTime
	if err := row.Scan(
		&entry.EntryID, &entry.TenantID, &entry.BarberID, &clientIDNull, &entry.ClientName, &phoneNull,
		&entry.Status, &entry.Position, &entry.IsPriority, &entry.EstimatedMinutes, &entry.CreatedAt, &startedAtNull, &finishedAtNull,
	); err != nil {
		return models.QueueEntry{}, err
	}
	if clientIDNull.Valid {
		clientID := clientIDNull.String
		entry.ClientID = &clientID
	}
	if phoneNull.Valid {
		entry.ClientPhone = phoneNull.String
	}
	if startedAtNull.Valid {
		startedAt := startedAtNull.Time
		entry.StartedAt = &startedAt
	}
	if finishedAtNull.Valid {
		finishedAt := finishedAtNull.Time
		entry.FinishedAt = &finishedAt
	}
	return entry, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT tenant_id FROM tenants ORDER BY tenant_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, err
		}
		tenants = append(tenants, tenantID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tenants, nil
}

func (s *Store) GetBarber(ctx context.Context, tenantID, barberID string) (models.Barber, error) {
	var barber models.Barber
	var photoNull sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT barber_id, tenant_id, name, photo_url, status, avg_time_minutes, is_active
		FROM barbers
		WHERE barber_id = $1 AND tenant_id = $2
	`, barberID, tenantID)
	if err := row.Scan(&barber.BarberID, &barber.TenantID, &barber.Name, &photoNull, &barber.Status, &barber.AvgMinutes, &barber.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Barber{}, store.ErrBarberNotFound
		}
		return models.Barber{}, err
	}
	if photoNull.Valid {
		barber.PhotoURL = photoNull.String
	}
	return barber, nil
}

func (s *Store) ListBarbers(ctx context.Context, tenantID string, activeOnly bool) ([]models.Barber, error) {
	query := `
		SELECT barber_id, tenant_id, name, photo_url, status, avg_time_minutes, is_active
		FROM barbers
		WHERE tenant_id = $1
	`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY barber_id ASC"

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var barbers []models.Barber
	for rows.Next() {
		var barber models.Barber
		var photoNull sql.NullString
		if err := rows.Scan(&barber.BarberID, &barber.TenantID, &barber.Name, &photoNull, &barber.Status, &barber.AvgMinutes, &barber.IsActive); err != nil {
			return nil, err
		}
		if photoNull.Valid {
			barber.PhotoURL = photoNull.String
		}
		barbers = append(barbers, barber)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return barbers, nil
}

func (s *Store) CreateBarber(ctx context.Context, barber models.Barber) (models.Barber, error) {
	if barber.BarberID == "" {
		barber.BarberID = uuid.NewString()
	}
	if barber.Status == "" {
		barber.Status = models.BarberAvailable
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO barbers (barber_id, tenant_id, name, photo_url, status, avg_time_minutes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, barber.BarberID, barber.TenantID, barber.Name, nullIfEmpty(barber.PhotoURL), barber.Status, barber.AvgMinutes, barber.IsActive)
	if err != nil {
		return models.Barber{}, err
	}
	return barber, nil
}

func (s *Store) UpdateBarber(ctx context.Context, barber models.Barber) (models.Barber, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE barbers
		SET name = $1, photo_url = $2, status = $3, avg_time_minutes = $4, is_active = $5
		WHERE barber_id = $6 AND tenant_id = $7
	`, barber.Name, nullIfEmpty(barber.PhotoURL), barber.Status, barber.AvgMinutes, barber.IsActive, barber.BarberID, barber.TenantID)
	if err != nil {
		return models.Barber{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.Barber{}, store.ErrBarberNotFound
	}
	return barber, nil
}

func (s *Store) UpdateBarberStatus(ctx context.Context, tenantID, barberID, status string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE barbers
		SET status = $1
		WHERE barber_id = $2 AND tenant_id = $3
	`, status, barberID, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrBarberNotFound
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, tenantID, entryID string) (models.QueueEntry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE entry_id = $1 AND tenant_id = $2
	`, entryID, tenantID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, store.ErrEntryNotFound
		}
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) ListActiveEntries(ctx context.Context, tenantID, barberID string) ([]models.QueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE tenant_id = $1 AND barber_id = $2 AND status IN ('waiting', 'attending')
		ORDER BY position ASC
	`, tenantID, barberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *Store) ListTenantActiveEntries(ctx context.Context, tenantID string) ([]models.QueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE tenant_id = $1 AND status IN ('waiting', 'attending')
		ORDER BY barber_id ASC, position ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *Store) FindActiveEntryByClient(ctx context.Context, tenantID, clientID, phone string) (models.QueueEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE tenant_id = $1 AND status IN ('waiting', 'attending')
			AND (($2 <> '' AND client_id = $2) OR ($3 <> '' AND client_phone = $3))
		LIMIT 1
	`, tenantID, clientID, phone)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, nil
		}
		return models.QueueEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) ListFinishedEntries(ctx context.Context, tenantID, barberID string, since time.Time, limit int) ([]models.QueueEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE tenant_id = $1 AND barber_id = $2 AND status = 'finished'
			AND finished_at IS NOT NULL AND finished_at >= $3
		ORDER BY finished_at DESC
		LIMIT $4
	`, tenantID, barberID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// Apply commits one barber-scoped mutation in a single transaction. The
// barber row is locked FOR UPDATE first, so concurrent mutations on the same
// barber serialize at the storage layer as well and a renumber can never
// commit separately from the cancellation that produced it.
func (s *Store) Apply(ctx context.Context, mutation store.Mutation) (models.QueueEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var barberID string
	row := tx.QueryRow(ctx, `
		SELECT barber_id
		FROM barbers
		WHERE barber_id = $1 AND tenant_id = $2
		FOR UPDATE
	`, mutation.BarberID, mutation.TenantID)
	if err = row.Scan(&barberID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrBarberNotFound
		}
		return models.QueueEntry{}, err
	}

	var result models.QueueEntry
	haveResult := false

	if mutation.Insert != nil {
		in := mutation.Insert
		row := tx.QueryRow(ctx, `
			INSERT INTO queue_entries (
				entry_id, tenant_id, barber_id, client_id, client_name, client_phone,
				status, position, is_priority, estimated_time_minutes, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			RETURNING `+entryColumns+`
		`, in.EntryID, mutation.TenantID, mutation.BarberID, nullIfEmpty(in.ClientID), in.ClientName, nullIfEmpty(in.ClientPhone),
			models.StatusWaiting, in.Position, in.IsPriority, in.EstimatedMinutes, in.CreatedAt)
		result, err = scanEntry(row)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "idx_queue_entries_active_client" {
				err = store.ErrDuplicateActiveEntry
			}
			return models.QueueEntry{}, err
		}
		haveResult = true
	}

	for _, update := range mutation.Updates {
		row := tx.QueryRow(ctx, `
			UPDATE queue_entries
			SET status = $1,
				started_at = COALESCE($2, started_at),
				finished_at = COALESCE($3, finished_at)
			WHERE entry_id = $4 AND tenant_id = $5
			RETURNING `+entryColumns+`
		`, update.Status, update.StartedAt, update.FinishedAt, update.EntryID, mutation.TenantID)
		var updated models.QueueEntry
		updated, err = scanEntry(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				err = store.ErrEntryNotFound
			}
			return models.QueueEntry{}, err
		}
		if !haveResult {
			result = updated
		}
	}

	for _, pos := range mutation.Positions {
		var tag pgconn.CommandTag
		tag, err = tx.Exec(ctx, `
			UPDATE queue_entries
			SET position = $1
			WHERE entry_id = $2 AND tenant_id = $3
		`, pos.Position, pos.EntryID, mutation.TenantID)
		if err != nil {
			return models.QueueEntry{}, err
		}
		if tag.RowsAffected() == 0 {
			err = store.ErrEntryNotFound
			return models.QueueEntry{}, err
		}
		if pos.EntryID == result.EntryID {
			result.Position = pos.Position
		}
	}

	if mutation.BarberStatus != "" {
		_, err = tx.Exec(ctx, `
			UPDATE barbers
			SET status = $1
			WHERE barber_id = $2 AND tenant_id = $3
		`, mutation.BarberStatus, mutation.BarberID, mutation.TenantID)
		if err != nil {
			return models.QueueEntry{}, err
		}
	}

	for _, event := range mutation.Events {
		var payload []byte
		payload, err = json.Marshal(event.Payload)
		if err != nil {
			return models.QueueEntry{}, err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO outbox_events (event_id, tenant_id, type, payload_json, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.NewString(), mutation.TenantID, event.Type, payload, time.Now().UTC())
		if err != nil {
			return models.QueueEntry{}, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return result, nil
}

func (s *Store) FindOrCreateClient(ctx context.Context, tenantID, name, phone string) (models.Client, error) {
	var client models.Client
	row := s.pool.QueryRow(ctx, `
		SELECT client_id, tenant_id, name, phone
		FROM clients
		WHERE tenant_id = $1 AND phone = $2
	`, tenantID, phone)
	err := row.Scan(&client.ClientID, &client.TenantID, &client.Name, &client.Phone)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Client{}, err
	}

	client = models.Client{
		ClientID: uuid.NewString(),
		TenantID: tenantID,
		Name:     name,
		Phone:    phone,
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO clients (client_id, tenant_id, name, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, phone) DO NOTHING
	`, client.ClientID, tenantID, name, phone)
	if err != nil {
		return models.Client{}, err
	}

	// Another enqueue may have inserted the same phone first; read back the
	// winning row.
	row = s.pool.QueryRow(ctx, `
		SELECT client_id, tenant_id, name, phone
		FROM clients
		WHERE tenant_id = $1 AND phone = $2
	`, tenantID, phone)
	if err := row.Scan(&client.ClientID, &client.TenantID, &client.Name, &client.Phone); err != nil {
		return models.Client{}, err
	}
	return client, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, tenantID string, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT seq, event_id, tenant_id, type, payload_json, created_at
		FROM outbox_events
		WHERE 1=1
	`
	args := []interface{}{}
	if tenantID != "" {
		args = append(args, tenantID)
		query += " AND tenant_id = $1"
	}
	if !after.IsZero() {
		args = append(args, after)
		query += " AND created_at > $" + strconv.Itoa(len(args))
	}
	args = append(args, limit)
	query += " ORDER BY seq ASC LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListOutboxBatch pages by sequence number so events sharing a created_at
// timestamp are never skipped between ticks.
func (s *Store) ListOutboxBatch(ctx context.Context, afterSeq int64, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT seq, event_id, tenant_id, type, payload_json, created_at
		FROM outbox_events
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2
	`, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *Store) GetOutboxOffset(ctx context.Context, consumer string) (int64, error) {
	var seq int64
	row := s.pool.QueryRow(ctx, `
		SELECT last_seq
		FROM outbox_offsets
		WHERE consumer = $1
	`, consumer)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return seq, nil
}

func (s *Store) UpdateOutboxOffset(ctx context.Context, consumer string, seq int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO outbox_offsets (consumer, last_seq)
		VALUES ($1, $2)
		ON CONFLICT (consumer) DO UPDATE SET last_seq = $2
	`, consumer, seq)
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, s.expires_at, u.tenant_id, r.name
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		JOIN roles r ON r.role_id = u.role_id
		WHERE s.session_id = $1 AND s.expires_at > NOW()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.ExpiresAt, &session.TenantID, &session.Role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	return session, nil
}

func collectEvents(rows pgx.Rows) ([]store.OutboxEvent, error) {
	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.Seq, &event.EventID, &event.TenantID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func collectEntries(rows pgx.Rows) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
