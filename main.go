package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/glitchcodes/restroom-backend/internal/auth"
	"github.com/glitchcodes/restroom-backend/internal/db"
	"github.com/glitchcodes/restroom-backend/internal/establishments"
	"github.com/glitchcodes/restroom-backend/internal/middleware"
	"github.com/glitchcodes/restroom-backend/internal/places"
	"github.com/glitchcodes/restroom-backend/internal/utils"

	// Register providers
	_ "github.com/glitchcodes/restroom-backend/internal/places/fixture"
	_ "github.com/glitchcodes/restroom-backend/internal/places/google"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

// noSessions rejects every session; used when no database is configured.
type noSessions struct{}

var errNoAuth = errors.New("accounts need DATABASE_URL")

func (noSessions) FindSessionByID(string) (utils.SessionData, error) { return utils.SessionData{}, errNoAuth }
func (noSessions) RoleForUser(string) (string, error)                { return "", errNoAuth }

func main() {
	_ = godotenv.Load(".env.local")

	port := os.Getenv("PORT")
	if port == "" {
		port = "5050"
	}

	cfg := establishments.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	provider := mustProvider()

	var (
		primary  establishments.Store
		sessions middleware.SessionFetcher = noSessions{}
		roles    middleware.RoleLookup     = noSessions{}
	)
	if db.Configured() {
		db.Connect()
		auth.Init()
		establishments.Init()
		primary = establishments.NewGormStore(db.DB)
		sessions, roles = auth.SessionInfo{}, auth.SessionInfo{}
	} else {
		log.Println("[main] DATABASE_URL not set, using in-memory store; sign-in routes are disabled")
		primary = establishments.NewMemStore()
	}

	store := primary
	if cfg.StoreFixturePath != "" {
		demo, err := establishments.LoadMemStore(cfg.StoreFixturePath)
		if err != nil {
			log.Fatal("Failed to load store fixture: ", err)
		}
		store, err = establishments.NewChainedStore(
			establishments.Tier{Name: "primary", Store: primary},
			establishments.Tier{Name: "fixture", Store: demo},
		)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("[main] read fallback: %s", cfg.StoreFixturePath)
	}

	svc := establishments.NewService(store, provider, cfg)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(middleware.AllowedOrigins()))

	r.Get("/", RootHandler)
	r.Get("/healthz", establishments.HealthHandler(svc))
	r.Mount("/api", establishments.SetupRoutes(svc, sessions, roles))
	if db.Configured() {
		r.Mount("/auth", auth.SetupRoutes())
	}

	log.Printf("Server listening on port :%s (places provider: %s)", port, provider.Name())
	if err := http.ListenAndServe("0.0.0.0:"+port, r); err != nil {
		log.Fatal(err)
	}
}

// mustProvider builds the configured places provider. A google setup
// without a key falls back to the fixture provider when one is configured.
func mustProvider() places.Provider {
	pcfg := places.LoadFromEnv()
	if err := pcfg.Validate(); err != nil {
		if errors.Is(err, places.ErrMissingGoogleKey) && pcfg.FixturePath != "" {
			log.Printf("[main] %v; using fixture places from %s", err, pcfg.FixturePath)
			pcfg.Provider = places.ProviderFixture
		} else {
			log.Fatal("Invalid places configuration: ", err)
		}
	}

	p, err := places.NewProvider(pcfg)
	if err != nil {
		log.Fatal("Failed to create places provider: ", err)
	}
	return p
}
