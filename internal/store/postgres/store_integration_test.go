package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"barberq/internal/models"
	"barberq/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestApplySerializesPerBarber(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	tenantID := uuid.NewString()
	barberID := uuid.NewString()
	seedBaseData(t, ctx, pool, tenantID, barberID)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(position int) {
			defer wg.Done()
			_, err := st.Apply(ctx, store.Mutation{
				TenantID: tenantID,
				BarberID: barberID,
				Insert: &store.InsertEntry{
					EntryID:          uuid.NewString(),
					ClientName:       "Client",
					Position:         position,
					EstimatedMinutes: position * 30,
					CreatedAt:        time.Now().UTC(),
				},
				Events: []store.Event{{
					Type:    store.EventEntryCreated,
					Payload: map[string]interface{}{"position": position},
				}},
			})
			errs <- err
		}(i + 1)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	entries, err := st.ListActiveEntries(ctx, tenantID, barberID)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(entries))
	}

	var count int
	row := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE tenant_id = $1`, tenantID)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	if count != 10 {
		t.Fatalf("expected 10 outbox events, got %d", count)
	}
}

func TestApplyCancelRenumberAtomic(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	tenantID := uuid.NewString()
	barberID := uuid.NewString()
	seedBaseData(t, ctx, pool, tenantID, barberID)

	ids := make([]string, 3)
	for i := range ids {
		ids[i] = uuid.NewString()
		if _, err := st.Apply(ctx, store.Mutation{
			TenantID: tenantID,
			BarberID: barberID,
			Insert: &store.InsertEntry{
				EntryID:    ids[i],
				ClientName: "Client",
				Position:   i + 1,
				CreatedAt:  time.Now().UTC(),
			},
		}); err != nil {
			t.Fatalf("insert entry: %v", err)
		}
	}

	entry, err := st.Apply(ctx, store.Mutation{
		TenantID: tenantID,
		BarberID: barberID,
		Updates: []store.EntryUpdate{{
			EntryID: ids[1],
			Status:  models.StatusCancelled,
		}},
		Positions: []store.PositionUpdate{{
			EntryID:  ids[2],
			Position: 2,
		}},
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if entry.Status != models.StatusCancelled {
		t.Fatalf("expected cancelled entry, got %s", entry.Status)
	}

	active, err := st.ListActiveEntries(ctx, tenantID, barberID)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active entries, got %d", len(active))
	}
	for i, got := range active {
		if got.Position != i+1 {
			t.Fatalf("expected position %d at index %d, got %d", i+1, i, got.Position)
		}
	}
}

func TestApplyRejectsDuplicateActiveClient(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	tenantID := uuid.NewString()
	barberID := uuid.NewString()
	seedBaseData(t, ctx, pool, tenantID, barberID)
	otherBarberID := uuid.NewString()
	if _, err := pool.Exec(ctx, `
		INSERT INTO barbers (barber_id, tenant_id, name, status, is_active)
		VALUES ($1, $2, 'Second', 'available', TRUE)
	`, otherBarberID, tenantID); err != nil {
		t.Fatalf("seed second barber: %v", err)
	}

	client, err := st.FindOrCreateClient(ctx, tenantID, "Maria", "+5511999990000")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	insert := func(barber string) error {
		_, err := st.Apply(ctx, store.Mutation{
			TenantID: tenantID,
			BarberID: barber,
			Insert: &store.InsertEntry{
				EntryID:    uuid.NewString(),
				ClientID:   client.ClientID,
				ClientName: "Maria",
				Position:   1,
				CreatedAt:  time.Now().UTC(),
			},
		})
		return err
	}

	if err := insert(barberID); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := insert(otherBarberID); !errors.Is(err, store.ErrDuplicateActiveEntry) {
		t.Fatalf("expected ErrDuplicateActiveEntry at the second barber, got %v", err)
	}
}

func TestFindOrCreateClientReusesPhone(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	tenantID := uuid.NewString()
	barberID := uuid.NewString()
	seedBaseData(t, ctx, pool, tenantID, barberID)

	first, err := st.FindOrCreateClient(ctx, tenantID, "Maria", "+5511999990000")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	second, err := st.FindOrCreateClient(ctx, tenantID, "Maria S.", "+5511999990000")
	if err != nil {
		t.Fatalf("find client: %v", err)
	}
	if first.ClientID != second.ClientID {
		t.Fatalf("expected same client for the same phone")
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return NewStore(pool), pool, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}

func seedBaseData(t *testing.T, ctx context.Context, pool *pgxpool.Pool, tenantID, barberID string) {
	t.Helper()
	if _, err := pool.Exec(ctx, `
		INSERT INTO tenants (tenant_id, name) VALUES ($1, 'Tenant')
	`, tenantID); err != nil {
		t.Fatalf("insert tenant: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO barbers (barber_id, tenant_id, name, status, avg_time_minutes, is_active)
		VALUES ($1, $2, 'Barber', 'available', 30, TRUE)
	`, barberID, tenantID); err != nil {
		t.Fatalf("insert barber: %v", err)
	}
}
