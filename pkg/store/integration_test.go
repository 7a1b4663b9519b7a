//go:build integration

package store

import (
	"context"
	"crypto/rand"
	stdsql "database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sailmerge/sailmerge/pkg/classify"
	"github.com/sailmerge/sailmerge/pkg/core"
	"github.com/sailmerge/sailmerge/pkg/review"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Shared testcontainer across every test in this package, started once
// (adapted from the teacher's test/util.SetupTestDatabase: CI uses an
// external Postgres via CI_DATABASE_URL, local dev starts one shared
// container). Each test then gets its own schema via search_path, migrated
// independently through golang-migrate rather than ent.Schema.Create.
var (
	sharedDSN     string
	containerOnce sync.Once
	containerErr  error
)

func baseDSN(t *testing.T) string {
	if ci := os.Getenv("CI_DATABASE_URL"); ci != "" {
		return ci
	}
	containerOnce.Do(func() {
		ctx := context.Background()
		pgContainer, err := tcpostgres.Run(ctx,
			"postgres:17-alpine",
			tcpostgres.WithDatabase("test"),
			tcpostgres.WithUsername("test"),
			tcpostgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		sharedDSN, containerErr = pgContainer.ConnectionString(ctx, "sslmode=disable")
	})
	require.NoError(t, containerErr)
	return sharedDSN
}

// newTestStore creates a fresh, uniquely-named schema, migrates it, and
// returns a Store scoped to it (via search_path), dropped on test cleanup.
func newTestStore(t *testing.T) *Store {
	ctx := context.Background()
	dsn := baseDSN(t)
	schema := schemaName(t)

	admin, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)
	admin.Close()

	scopedDSN := withSearchPath(dsn, schema)
	require.NoError(t, migrateSchema(scopedDSN, schema))

	pool, err := pgxpool.New(ctx, scopedDSN)
	require.NoError(t, err)

	t.Cleanup(func() {
		cleanup, err := pgxpool.New(context.Background(), dsn)
		if err == nil {
			_, _ = cleanup.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema))
			cleanup.Close()
		}
		pool.Close()
	})

	return NewFromPool(pool)
}

func withSearchPath(dsn, schema string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%ssearch_path=%s", dsn, sep, schema)
}

// migrateSchema runs the package's embedded migrations against dsn, which
// already carries the target schema in its search_path.
func migrateSchema(dsn, schema string) error {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, schema, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return sourceDriver.Close()
}

func schemaName(t *testing.T) string {
	name := strings.ToLower(t.Name())
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("test_%s_%s", name, hex.EncodeToString(b))
}

func TestStore_CreateSession_ConcurrentCallersGetDistinctSequentialIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 8
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			sess, err := s.CreateSession(ctx)
			require.NoError(t, err)
			results <- sess.ReferenceID
		}()
	}

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		ref := <-results
		require.False(t, seen[ref], "duplicate reference id %s", ref)
		seen[ref] = true
	}
	require.Len(t, seen, n)
}

func TestStore_PersistAnalysis_RoundTripsAndCompleteGatesOnPendingChanges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx)
	require.NoError(t, err)

	idx0 := 0
	result := AnalysisResult{
		Packages: []PackageInput{
			{Role: core.RoleBase, Filename: "base.zip"},
			{Role: core.RoleCustomized, Filename: "customized.zip"},
			{Role: core.RoleNewVendor, Filename: "new_vendor.zip"},
		},
		Changes: []review.OrderedChange{
			{Change: classify.Change{ObjectUUID: "u1", ObjectType: core.ObjectTypeConstant, ObjectName: "c1", Classification: core.ClassificationConflict}, OrderIndex: &idx0},
		},
	}
	require.NoError(t, s.PersistAnalysis(ctx, sess.ID, result))

	got, err := s.GetSessionByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, core.SessionStatusReady, got.Status)

	require.NoError(t, s.BeginReview(ctx, sess.ID))
	err = s.CompleteSession(ctx, sess.ID)
	require.ErrorIs(t, err, core.ErrPendingChanges)

	changes, err := s.ListChanges(ctx, sess.ID, ChangeFilter{})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.NoError(t, s.UpdateReviewStatus(ctx, sess.ID, changes[0].ID, core.ReviewStatusReviewed, ""))

	reviewed, skipped, err := s.RecomputeProgress(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 1, reviewed)
	require.Equal(t, 0, skipped)

	require.NoError(t, s.CompleteSession(ctx, sess.ID))
}
