package establishments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glitchcodes/restroom-backend/internal/geo"
)

// ChainedStore composes stores in priority order. Only the first tier is
// written to; later tiers are read-only fallbacks.
//
// An establishment belongs to the first tier holding it by id or external
// id. A write against an establishment that only a later tier holds first
// copies it, with its submissions, into the first tier under the same id.
type ChainedStore struct {
	tiers []Store
	names []string

	promoteMu sync.Mutex
}

var _ Store = (*ChainedStore)(nil)

// Tier names a store for logging.
type Tier struct {
	Name  string
	Store Store
}

func NewChainedStore(tiers ...Tier) (*ChainedStore, error) {
	if len(tiers) == 0 {
		return nil, errors.New("chained store needs at least one tier")
	}
	c := &ChainedStore{}
	for _, t := range tiers {
		if t.Store == nil {
			return nil, fmt.Errorf("tier %q has no store", t.Name)
		}
		c.tiers = append(c.tiers, t.Store)
		c.names = append(c.names, t.Name)
	}
	return c, nil
}

func (c *ChainedStore) primary() Store { return c.tiers[0] }

// exhausted is the result once every tier has been tried without an answer:
// ErrNotFound, unless some tier failed outright.
func exhausted(lastErr error) error {
	if lastErr == nil {
		return ErrNotFound
	}
	if errors.Is(lastErr, ErrStoreUnavailable) {
		return lastErr
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, lastErr)
}

func canceled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, ctx.Err())
}

// readThrough runs fn against each tier. A tier answering ErrNotFound or a
// failure passes the call down; the first success wins.
func readThrough[T any](ctx context.Context, c *ChainedStore, op string, fn func(Store) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i, s := range c.tiers {
		v, err := fn(s)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, canceled(ctx)
		}
		if errors.Is(err, ErrNotFound) {
			continue
		}
		log.Printf("[store] %s on tier %s failed, falling through: %v", op, c.names[i], err)
		lastErr = err
	}
	return zero, exhausted(lastErr)
}

// mergeAll concatenates fn's results from every tier. An item is dropped
// when any of its keys was already seen in an earlier tier. Failing tiers
// are skipped; the call fails only when no tier answered.
func mergeAll[T any](ctx context.Context, c *ChainedStore, op string, fn func(Store) ([]T, error), keys func(T) []string) ([]T, error) {
	out := make([]T, 0)
	seen := make(map[string]bool)
	answered := false
	var lastErr error
	for i, s := range c.tiers {
		items, err := fn(s)
		if err != nil {
			if ctx.Err() != nil {
				return nil, canceled(ctx)
			}
			log.Printf("[store] %s on tier %s failed, skipping: %v", op, c.names[i], err)
			lastErr = err
			continue
		}
		answered = true

		for _, it := range items {
			ks := keys(it)
			dup := false
			for _, k := range ks {
				dup = dup || seen[k]
			}
			if dup {
				continue
			}
			for _, k := range ks {
				seen[k] = true
			}
			out = append(out, it)
		}
	}
	if !answered {
		return nil, exhausted(lastErr)
	}
	return out, nil
}

func establishmentKeys(e Establishment) []string {
	if e.ExternalID == nil {
		return []string{e.ID.String()}
	}
	return []string{e.ID.String(), "ext:" + *e.ExternalID}
}

// locate finds the tier owning id. A row in a later tier whose external id
// an earlier tier also holds is owned by that earlier tier.
func (c *ChainedStore) locate(ctx context.Context, id uuid.UUID) (Establishment, int, error) {
	var lastErr error
	for i, s := range c.tiers {
		e, err := s.GetByID(ctx, id)
		if err == nil {
			if i > 0 && e.ExternalID != nil {
				for j := 0; j < i; j++ {
					if held, err := c.tiers[j].GetByExternalID(ctx, *e.ExternalID); err == nil {
						return held, j, nil
					}
				}
			}
			return e, i, nil
		}
		if ctx.Err() != nil {
			return Establishment{}, 0, canceled(ctx)
		}
		if errors.Is(err, ErrNotFound) {
			continue
		}
		log.Printf("[store] get on tier %s failed, falling through: %v", c.names[i], err)
		lastErr = err
	}
	return Establishment{}, 0, exhausted(lastErr)
}

// writable returns the first-tier id of the establishment, copying it up
// from a later tier when needed.
func (c *ChainedStore) writable(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	e, tier, err := c.locate(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if tier == 0 {
		return e.ID, nil
	}
	return c.promote(ctx, e, tier)
}

// promote copies e and its submissions from tier from into the first tier,
// keeping ids. Rows without an external id cannot be copied.
func (c *ChainedStore) promote(ctx context.Context, e Establishment, from int) (uuid.UUID, error) {
	if e.ExternalID == nil {
		return uuid.Nil, fmt.Errorf("%w: %s exists only in tier %s", ErrReadOnly, e.ID, c.names[from])
	}

	c.promoteMu.Lock()
	defer c.promoteMu.Unlock()

	if held, err := c.primary().GetByExternalID(ctx, *e.ExternalID); err == nil {
		return held.ID, nil
	}

	subs, err := c.tiers[from].ListSubmissions(ctx, []uuid.UUID{e.ID})
	if err != nil {
		return uuid.Nil, fmt.Errorf("read submissions of %s from tier %s: %w", e.ID, c.names[from], err)
	}

	copied, err := c.primary().UpsertByExternalID(ctx, UpsertInput{
		ID:         e.ID,
		ExternalID: *e.ExternalID,
		Name:       e.Name,
		Address:    e.Address,
		Lat:        e.Lat,
		Lng:        e.Lng,
		Types:      e.PlaceTypes,
	})
	if err != nil {
		return uuid.Nil, err
	}
	for _, sub := range subs {
		sub.EstablishmentID = copied.ID
		// Another process may have copied the same rows first.
		if _, err := c.primary().AppendSubmission(ctx, sub); err != nil && !errors.Is(err, ErrConflict) {
			return uuid.Nil, err
		}
	}
	if e.RestroomAvailable != nil {
		if err := c.primary().SetRestroomAvailable(ctx, copied.ID, *e.RestroomAvailable); err != nil {
			return uuid.Nil, err
		}
	}

	log.Printf("[store] copied %s (%d submissions) from tier %s into %s", copied.ID, len(subs), c.names[from], c.names[0])
	return copied.ID, nil
}

// UpsertByExternalID writes to the first tier. A place a later tier already
// holds is copied up first so it keeps its id and codes.
func (c *ChainedStore) UpsertByExternalID(ctx context.Context, in UpsertInput) (Establishment, error) {
	if in.ExternalID != "" {
		if _, err := c.primary().GetByExternalID(ctx, in.ExternalID); errors.Is(err, ErrNotFound) {
			for i := 1; i < len(c.tiers); i++ {
				e, err := c.tiers[i].GetByExternalID(ctx, in.ExternalID)
				if err != nil {
					continue
				}
				if _, err := c.promote(ctx, e, i); err != nil {
					return Establishment{}, err
				}
				break
			}
		}
	}
	return c.primary().UpsertByExternalID(ctx, in)
}

func (c *ChainedStore) GetByID(ctx context.Context, id uuid.UUID) (Establishment, error) {
	e, _, err := c.locate(ctx, id)
	return e, err
}

func (c *ChainedStore) GetByExternalID(ctx context.Context, externalID string) (Establishment, error) {
	return readThrough(ctx, c, "get by external id", func(s Store) (Establishment, error) {
		return s.GetByExternalID(ctx, externalID)
	})
}

func (c *ChainedStore) ListEstablishments(ctx context.Context, box *geo.Box) ([]Establishment, error) {
	return mergeAll(ctx, c, "list", func(s Store) ([]Establishment, error) {
		return s.ListEstablishments(ctx, box)
	}, establishmentKeys)
}

func (c *ChainedStore) SetRestroomAvailable(ctx context.Context, id uuid.UUID, available bool) error {
	target, err := c.writable(ctx, id)
	if err != nil {
		return err
	}
	return c.primary().SetRestroomAvailable(ctx, target, available)
}

func (c *ChainedStore) AppendSubmission(ctx context.Context, sub CodeSubmission) (CodeSubmission, error) {
	target, err := c.writable(ctx, sub.EstablishmentID)
	if err != nil {
		return CodeSubmission{}, err
	}
	sub.EstablishmentID = target
	return c.primary().AppendSubmission(ctx, sub)
}

// ListSubmissions merges every tier's submissions, de-duplicated by id.
func (c *ChainedStore) ListSubmissions(ctx context.Context, establishmentIDs []uuid.UUID) ([]CodeSubmission, error) {
	return mergeAll(ctx, c, "list submissions", func(s Store) ([]CodeSubmission, error) {
		return s.ListSubmissions(ctx, establishmentIDs)
	}, func(sub CodeSubmission) []string {
		return []string{sub.ID.String()}
	})
}

func (c *ChainedStore) InsertReport(ctx context.Context, rep CodeReport) (CodeReport, error) {
	target, err := c.writable(ctx, rep.EstablishmentID)
	if err != nil {
		return CodeReport{}, err
	}
	rep.EstablishmentID = target
	return c.primary().InsertReport(ctx, rep)
}

// CountReportsSince sums the counts of every tier that answers.
func (c *ChainedStore) CountReportsSince(ctx context.Context, establishmentID uuid.UUID, since time.Time) (int64, error) {
	var total int64
	answered := false
	var lastErr error
	for i, s := range c.tiers {
		n, err := s.CountReportsSince(ctx, establishmentID, since)
		if err != nil {
			if ctx.Err() != nil {
				return 0, canceled(ctx)
			}
			if !errors.Is(err, ErrNotFound) {
				log.Printf("[store] count reports on tier %s failed, skipping: %v", c.names[i], err)
				lastErr = err
			}
			continue
		}
		answered = true
		total += n
	}
	if !answered {
		return 0, exhausted(lastErr)
	}
	return total, nil
}
