package establishments

import (
	"time"

	"github.com/google/uuid"
)

// Status is the single user-facing outcome of a resolve call.
type Status string

const (
	StatusCode       Status = "code"
	StatusNoCode     Status = "no_code"
	StatusNoRestroom Status = "no_restroom"
	StatusNotFound   Status = "not_found"
	StatusError      Status = "error"
)

// Outcome is the payload for a Status. Alternatives is never nil so clients
// can always render a picker.
type Outcome struct {
	Status         Status         `json:"status"`
	Establishment  *Establishment `json:"establishment,omitempty"`
	Code           string         `json:"code,omitempty"`
	CodeUpdatedAt  *time.Time     `json:"code_updated_at,omitempty"`
	TrustTier      TrustTier      `json:"trust_tier,omitempty"`
	CodeReports24h *int64         `json:"code_reports_24h,omitempty"`
	Alternatives   []Candidate    `json:"alternatives"`
	Error          string         `json:"error,omitempty"`

	err error
}

// Err returns the underlying error of an error outcome.
func (o Outcome) Err() error { return o.err }

// ErrorOutcome wraps err as an error state.
func ErrorOutcome(err error) Outcome {
	return Outcome{
		Status:       StatusError,
		Alternatives: []Candidate{},
		Error:        err.Error(),
		err:          err,
	}
}

// Derive maps a resolution and the establishment's submission history to
// exactly one status. It does no I/O.
//
// An establishment explicitly marked as having no restroom reports
// no_restroom even when an older code submission exists.
func Derive(res Resolution, subs []CodeSubmission) Outcome {
	alts := res.Alternatives
	if alts == nil {
		alts = []Candidate{}
	}

	switch res.Kind {
	case KindError:
		return ErrorOutcome(res.Err)
	case KindNotFound:
		return Outcome{Status: StatusNotFound, Alternatives: alts}
	}

	if res.Establishment == nil {
		return ErrorOutcome(errResolvedWithoutEstablishment)
	}
	est := *res.Establishment
	out := Outcome{Establishment: &est, Alternatives: alts}

	if est.RestroomAvailable != nil && !*est.RestroomAvailable {
		out.Status = StatusNoRestroom
		return out
	}

	if latest := LatestSubmission(subs, est.ID); latest != nil {
		at := latest.CreatedAt
		out.Status = StatusCode
		out.Code = latest.Code
		out.CodeUpdatedAt = &at
		out.TrustTier = latest.TrustTier
		return out
	}

	out.Status = StatusNoCode
	return out
}

// LatestSubmission picks the latest submission for establishmentID: newest
// created_at first, then staff over crowd, then lowest id. Submissions for
// other establishments are ignored.
func LatestSubmission(subs []CodeSubmission, establishmentID uuid.UUID) *CodeSubmission {
	var best *CodeSubmission
	for i := range subs {
		s := &subs[i]
		if s.EstablishmentID != establishmentID {
			continue
		}
		if best == nil || newer(s, best) {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// LatestByEstablishment applies LatestSubmission to every establishment in
// subs at once.
func LatestByEstablishment(subs []CodeSubmission) map[uuid.UUID]CodeSubmission {
	out := make(map[uuid.UUID]CodeSubmission)
	for i := range subs {
		s := subs[i]
		cur, ok := out[s.EstablishmentID]
		if !ok || newer(&s, &cur) {
			out[s.EstablishmentID] = s
		}
	}
	return out
}

func newer(a, b *CodeSubmission) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if a.TrustTier.Rank() != b.TrustTier.Rank() {
		return a.TrustTier.Rank() > b.TrustTier.Rank()
	}
	return a.ID.String() < b.ID.String()
}

func latestCodeOf(s *CodeSubmission) *LatestCode {
	if s == nil {
		return nil
	}
	return &LatestCode{Code: s.Code, UpdatedAt: s.CreatedAt, TrustTier: s.TrustTier}
}
