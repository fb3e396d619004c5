package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/glitchcodes/restroom-backend/internal/db"
	"github.com/glitchcodes/restroom-backend/internal/establishments"
	"github.com/glitchcodes/restroom-backend/internal/places"
	"github.com/glitchcodes/restroom-backend/internal/places/google"
)

// Plan lists the text searches to import. Every brand is searched in every
// location, in addition to the free-form queries.
//
//	brands: [Starbucks, Pret A Manger]
//	locations: ["Herald Square, New York"]
//	open_access_brands: [Starbucks]
//	queries:
//	  - query: "public library Midtown Manhattan"
//	    open_access: true
type Plan struct {
	Brands           []string    `yaml:"brands"`
	Locations        []string    `yaml:"locations"`
	OpenAccessBrands []string    `yaml:"open_access_brands"`
	Queries          []PlanQuery `yaml:"queries"`
}

type PlanQuery struct {
	Query      string `yaml:"query"`
	OpenAccess bool   `yaml:"open_access"`
}

func main() {
	var (
		planPath = flag.String("plan", "seeds/import_plan.yaml", "YAML file of text searches")
		dryRun   = flag.Bool("dry-run", false, "Search and print only; no database writes")
	)
	flag.Parse()
	_ = godotenv.Load(".env.local")

	plan, err := loadPlan(*planPath)
	if err != nil {
		log.Fatalf("plan: %v", err)
	}

	cfg := places.LoadFromEnv()
	if cfg.GoogleKey == "" {
		log.Fatal("GOOGLE_MAPS_API_KEY environment variable is required")
	}
	provider := google.NewProvider(google.NewClient(cfg.GoogleKey, cfg.QPS, cfg.Timeout))

	ctx := context.Background()
	if err := provider.HealthCheck(ctx); err != nil {
		log.Fatalf("Places API health check failed: %v", err)
	}
	fmt.Println("Places API: OK")

	var store establishments.Store
	if *dryRun {
		fmt.Println("Mode: DRY RUN (no database writes)")
	} else {
		fmt.Println("Mode: LIVE (will write to database)")
		db.Connect()
		establishments.Init()
		store = establishments.NewGormStore(db.DB)
	}
	fmt.Println()

	totalNew, totalSkipped := 0, 0
	for _, q := range plan.Queries {
		fmt.Printf("========================================\n")
		fmt.Printf("Query: %s\n", q.Query)
		fmt.Printf("========================================\n")

		qctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		results, err := provider.TextSearch(qctx, q.Query)
		cancel()
		if err != nil && len(results) == 0 {
			log.Printf("  ERROR searching %q: %v", q.Query, err)
			continue
		}
		if err != nil {
			log.Printf("  WARN partial results for %q: %v", q.Query, err)
		}

		cands := establishments.NormalizePlaces(results, nil)
		fmt.Printf("  Places returned %d results, %d usable\n\n", len(results), len(cands))

		for _, c := range cands {
			if c.ExternalID == "" {
				totalSkipped++
				continue
			}
			fmt.Printf("  %-40s %s\n", c.Name, c.Address)
			if store == nil {
				totalNew++
				continue
			}

			e, err := store.UpsertByExternalID(ctx, establishments.UpsertInput{
				ExternalID: c.ExternalID,
				Name:       c.Name,
				Address:    c.Address,
				Lat:        c.Lat,
				Lng:        c.Lng,
				Types:      c.Types,
			})
			if err != nil {
				log.Printf("    ERROR upserting %s: %v", c.Name, err)
				totalSkipped++
				continue
			}
			if q.OpenAccess {
				if err := store.SetRestroomAvailable(ctx, e.ID, true); err != nil && !errors.Is(err, establishments.ErrNotFound) {
					log.Printf("    ERROR marking %s open access: %v", c.Name, err)
				}
			}
			fmt.Printf("    -> %s\n", e.ID)
			totalNew++
		}
		fmt.Println()
	}

	fmt.Printf("========================================\n")
	fmt.Printf("Done! Imported: %d, Skipped: %d\n", totalNew, totalSkipped)
	if *dryRun {
		fmt.Println("(dry run, no changes written)")
	}
	fmt.Printf("========================================\n")
}

func loadPlan(path string) (*Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Plan
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	open := make(map[string]bool, len(p.OpenAccessBrands))
	for _, b := range p.OpenAccessBrands {
		open[strings.ToLower(strings.TrimSpace(b))] = true
	}
	for _, b := range p.Brands {
		for _, loc := range p.Locations {
			p.Queries = append(p.Queries, PlanQuery{
				Query:      fmt.Sprintf("%s near %s", strings.TrimSpace(b), strings.TrimSpace(loc)),
				OpenAccess: open[strings.ToLower(strings.TrimSpace(b))],
			})
		}
	}

	kept := p.Queries[:0]
	for _, q := range p.Queries {
		q.Query = strings.TrimSpace(q.Query)
		if q.Query != "" {
			kept = append(kept, q)
		}
	}
	p.Queries = kept
	if len(p.Queries) == 0 {
		return nil, fmt.Errorf("%s has no queries", path)
	}
	return &p, nil
}
