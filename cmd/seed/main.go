package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/lib/pq"

	"github.com/glitchcodes/restroom-backend/internal/establishments"
)

// CLI flags
var (
	fixturePath = flag.String("fixture", "seeds/establishments.yaml", "Path to the establishments YAML fixture")
	dsn         = flag.String("dsn", "", "Postgres DSN (default: env DATABASE_URL)")
	dryRun      = flag.Bool("dry-run", false, "Parse + validate only; no DB writes")
	replace     = flag.Bool("replace", false, "Delete all restroom data before seeding (needs --confirm)")
	confirm     = flag.Bool("confirm", false, "Required together with --replace")
	advisoryKey = flag.Int64("advisory-lock", 0, "Optional Postgres advisory lock key. 0 = disabled")
)

type Counts struct {
	Establishments int64
	Submissions    int64
	Reports        int64
}

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()
	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_URL")
	}

	raw, err := os.ReadFile(*fixturePath)
	if err != nil {
		fatalf("read fixture: %v", err)
	}
	fixture, err := establishments.ParseFixture(raw)
	if err != nil {
		fatalf("fixture validation failed: %v", err)
	}
	if len(fixture.Establishments) == 0 {
		fatalf("fixture %s has no establishments", *fixturePath)
	}
	fmt.Printf("Loaded %d establishments from %s\n", len(fixture.Establishments), *fixturePath)

	if *dryRun {
		printPlan(fixture)
		fmt.Println("Dry run complete. No changes made.")
		return
	}
	if *replace && !*confirm {
		fatalf("Refusing to --replace without --confirm. Add --dry-run to preview.")
	}
	if *dsn == "" {
		fatalf("--dsn not provided and DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		fatalf("ping: %v", err)
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		fatalf("begin tx: %v", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if *advisoryKey != 0 {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, *advisoryKey); err != nil {
			fatalf("advisory lock: %v", err)
		}
	}

	before, err := countAll(ctx, tx)
	if err != nil {
		fatalf("pre-count (has the server run its migrations?): %v", err)
	}
	fmt.Printf("Before: establishments=%d submissions=%d reports=%d\n", before.Establishments, before.Submissions, before.Reports)

	if *replace {
		if err := wipeRestroomData(ctx, tx); err != nil {
			fatalf("wipe data: %v", err)
		}
	}

	inserted, err := seedAll(ctx, tx, fixture)
	if err != nil {
		fatalf("seed: %v", err)
	}

	after, err := countAll(ctx, tx)
	if err != nil {
		fatalf("post-count: %v", err)
	}
	fmt.Printf("After:  establishments=%d submissions=%d reports=%d (new submissions: %d)\n",
		after.Establishments, after.Submissions, after.Reports, inserted)

	if err := tx.Commit(); err != nil {
		fatalf("commit: %v", err)
	}
	fmt.Println("Seed complete")
}

func printPlan(f *establishments.Fixture) {
	subs := 0
	for _, fe := range f.Establishments {
		subs += len(fe.Submissions)
		fmt.Printf("  %s  %-30s (%.5f, %.5f) codes=%d\n", fe.StableID(), fe.Name, fe.Lat, fe.Lng, len(fe.Submissions))
	}
	fmt.Println("Plan preview:")
	fmt.Printf("  Establishments to upsert: %d\n", len(f.Establishments))
	fmt.Printf("  Submissions to insert (existing ids skipped): %d\n", subs)
	if *replace {
		fmt.Println("  Tables affected (destructive): restroom.code_reports, restroom.code_submissions, restroom.establishments")
	}
}

func countAll(ctx context.Context, tx *sql.Tx) (Counts, error) {
	var c Counts
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM restroom.establishments`).Scan(&c.Establishments); err != nil {
		return c, err
	}
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM restroom.code_submissions`).Scan(&c.Submissions); err != nil {
		return c, err
	}
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM restroom.code_reports`).Scan(&c.Reports); err != nil {
		return c, err
	}
	return c, nil
}

func wipeRestroomData(ctx context.Context, tx *sql.Tx) error {
	tables := []string{
		"restroom.code_reports",
		"restroom.code_submissions",
		"restroom.establishments",
	}
	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", t)); err != nil {
			return fmt.Errorf("delete %s: %w", t, err)
		}
	}
	return nil
}

// seedAll upserts every establishment by its stable id and inserts the
// submissions that are not there yet. Re-running it is a no-op.
func seedAll(ctx context.Context, tx *sql.Tx, f *establishments.Fixture) (int64, error) {
	estStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO restroom.establishments
			(id, external_id, name, address, lat, lng, restroom_available, place_types, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			restroom_available = COALESCE(EXCLUDED.restroom_available, restroom.establishments.restroom_available),
			place_types = EXCLUDED.place_types,
			updated_at = now()`)
	if err != nil {
		return 0, err
	}
	defer estStmt.Close()

	subStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO restroom.code_submissions (id, establishment_id, code, submitted_by, trust_tier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer subStmt.Close()

	var inserted int64
	for _, fe := range f.Establishments {
		e, subs := fe.Records()

		// A place the resolver already created keeps its id.
		if e.ExternalID != nil {
			var existing uuid.UUID
			err := tx.QueryRowContext(ctx, `SELECT id FROM restroom.establishments WHERE external_id = $1`, *e.ExternalID).Scan(&existing)
			switch {
			case err == nil && existing != e.ID:
				fmt.Printf("  %s already stored as %s, merging\n", *e.ExternalID, existing)
				e.ID = existing
				for i := range subs {
					subs[i].EstablishmentID = existing
				}
			case err != nil && !errors.Is(err, sql.ErrNoRows):
				return inserted, fmt.Errorf("lookup '%s': %w", *e.ExternalID, err)
			}
		}

		if _, err := estStmt.ExecContext(ctx, e.ID, e.ExternalID, e.Name, e.Address, e.Lat, e.Lng,
			e.RestroomAvailable, pq.Array([]string(e.PlaceTypes))); err != nil {
			return inserted, fmt.Errorf("upsert establishment '%s': %w", e.Name, err)
		}
		for _, s := range subs {
			createdAt := s.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now().UTC()
			}
			res, err := subStmt.ExecContext(ctx, s.ID, s.EstablishmentID, s.Code, s.SubmittedBy, string(s.TrustTier), createdAt)
			if err != nil {
				return inserted, fmt.Errorf("insert submission for '%s': %w", e.Name, err)
			}
			n, _ := res.RowsAffected()
			inserted += n
		}
	}
	return inserted, nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
