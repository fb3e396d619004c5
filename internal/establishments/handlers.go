package establishments

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/glitchcodes/restroom-backend/internal/geo"
	"github.com/glitchcodes/restroom-backend/internal/middleware"
	"github.com/glitchcodes/restroom-backend/internal/utils"
)

// NearestHandler serves GET /nearest?lat=&lng=&radius_km=
func NearestHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		origin, err := parseOrigin(q)
		if err == nil && origin == nil {
			err = fmt.Errorf("%w: lat and lng are required", ErrInvalidInput)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		radiusKm, err := parseOptionalFloat(q, "radius_km")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		start := time.Now()
		results, err := svc.Nearest(r.Context(), *origin, radiusKm)
		if err != nil {
			writeError(w, "nearest", err)
			return
		}
		addServerTiming(w, serverTiming{"nearest", time.Since(start)})
		writeJSON(w, http.StatusOK, results)
	}
}

// ResolveHandler serves GET /resolve?lat=&lng=&place_id=&radius=
// The radius is in meters. Every outcome, including error, is a 200 except
// for malformed input.
func ResolveHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		origin, err := parseOrigin(q)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorOutcome(err))
			return
		}
		radiusM, err := parseOptionalFloat(q, "radius")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorOutcome(err))
			return
		}

		start := time.Now()
		out := svc.Resolve(r.Context(), ResolveRequest{
			Origin:   origin,
			PlaceID:  strings.TrimSpace(q.Get("place_id")),
			RadiusKm: radiusM / 1000,
		})

		status := http.StatusOK
		if out.Status == StatusError && errors.Is(out.Err(), ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		addServerTiming(w, serverTiming{"resolve", time.Since(start)})
		writeJSON(w, status, out)
	}
}

// GetEstablishmentHandler serves GET /establishments/{id}
func GetEstablishmentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "Invalid establishment id", http.StatusBadRequest)
			return
		}

		view, err := svc.Get(r.Context(), id)
		if err != nil {
			writeError(w, "get", err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// SubmitHandler serves POST /submit. The trust tier comes from the caller's
// role, never from the body.
func SubmitHandler(svc *Service, roles middleware.RoleLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := submitterFrom(r, roles)
		if !ok {
			http.Error(w, "Unauthorized: missing user ID in context", http.StatusUnauthorized)
			return
		}

		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid Request Format", http.StatusBadRequest)
			return
		}

		receipt, err := svc.Submit(r.Context(), who, req)
		if err != nil {
			writeError(w, "submit", err)
			return
		}
		writeJSON(w, http.StatusCreated, receipt)
	}
}

// ReportHandler serves POST /report.
func ReportHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := utils.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized: missing user ID in context", http.StatusUnauthorized)
			return
		}

		var req ReportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid Request Format", http.StatusBadRequest)
			return
		}

		rep, err := svc.Report(r.Context(), Submitter{UserID: userID}, req)
		if err != nil {
			writeError(w, "report", err)
			return
		}
		writeJSON(w, http.StatusCreated, rep)
	}
}

// MarkUnavailableHandler serves POST /establishments/{id}/unavailable.
func MarkUnavailableHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "Invalid establishment id", http.StatusBadRequest)
			return
		}
		if err := svc.MarkUnavailable(r.Context(), id); err != nil {
			writeError(w, "mark unavailable", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HealthHandler reports provider reachability.
func HealthHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.HealthCheck(r.Context()); err != nil {
			log.Printf("[health] %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func submitterFrom(r *http.Request, roles middleware.RoleLookup) (Submitter, bool) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		return Submitter{}, false
	}
	who := Submitter{UserID: userID, Tier: TrustCrowd}
	if roles == nil {
		return who, true
	}
	role, err := roles.RoleForUser(userID)
	if err != nil {
		log.Printf("[submit] role lookup for %s failed, recording as crowd: %v", userID, err)
		return who, true
	}
	who.Tier = TierForRole(role)
	return who, true
}

// parseOrigin returns nil when neither lat nor lng is present.
func parseOrigin(q url.Values) (*geo.Point, error) {
	latStr, lngStr := strings.TrimSpace(q.Get("lat")), strings.TrimSpace(q.Get("lng"))
	if latStr == "" && lngStr == "" {
		return nil, nil
	}
	if latStr == "" || lngStr == "" {
		return nil, fmt.Errorf("%w: lat and lng must be given together", ErrInvalidInput)
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad lat", ErrInvalidInput)
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad lng", ErrInvalidInput)
	}
	p := geo.Point{Lat: lat, Lng: lng}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return &p, nil
}

// parseOptionalFloat returns NaN for a missing parameter.
func parseOptionalFloat(q url.Values, key string) (float64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s", ErrInvalidInput, key)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[establishments] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Establishment not found", http.StatusNotFound)
	case errors.Is(err, ErrReadOnly):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrProviderUnavailable):
		log.Printf("[establishments] %s: %v", op, err)
		http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		log.Printf("[establishments] %s: %v", op, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
