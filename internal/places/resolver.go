// Package places maps caller-supplied place descriptions onto canonical,
// deduplicated place rows.
package places

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"wayfare/api/internal/store"
	"wayfare/api/internal/util"
)

// ProximityEpsilon is the coordinate window, in degrees, within which two
// same-named places are considered the same real-world location. 0.001
// degrees is roughly 100m at the equator.
const ProximityEpsilon = 0.001

var ErrInvalidArgument = errors.New("invalid argument")

// Candidate describes a place as supplied by a client, usually copied
// from a search provider result.
type Candidate struct {
	Name       string
	Latitude   float64
	Longitude  float64
	Address    *string
	ExternalID *string
	Provider   *string
}

// Store is the persistence surface the resolver needs.
type Store interface {
	FindPlaceByExternal(ctx context.Context, externalID, provider string) (store.Place, error)
	FindPlacesNear(ctx context.Context, name string, latitude, longitude, epsilon float64) ([]store.Place, error)
	InsertPlace(ctx context.Context, place store.Place) error
}

// Resolver deduplicates places. Resolution order: exact
// (externalID, provider) match, then name + coordinate proximity, then
// create. Two concurrent Resolve calls for the same brand-new place can
// both miss and both insert; only the external-id path is backed by a
// unique constraint, so the proximity rule is best-effort by design.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the canonical place for the candidate, creating a row
// when no existing one matches.
func (r *Resolver) Resolve(ctx context.Context, candidate Candidate) (store.Place, error) {
	if err := validate(candidate); err != nil {
		return store.Place{}, err
	}

	// The external pair is authoritative: a hit short-circuits every
	// other check even when the candidate's name or coordinates drifted.
	if candidate.ExternalID != nil && candidate.Provider != nil {
		place, err := r.store.FindPlaceByExternal(ctx, *candidate.ExternalID, *candidate.Provider)
		if err == nil {
			return place, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return store.Place{}, err
		}
	}

	// Proximity match. The store returns candidates ordered by id, and
	// the smallest id wins: the window can legitimately hold several
	// rows, and a deterministic pick beats an arbitrary one.
	nearby, err := r.store.FindPlacesNear(ctx, candidate.Name, candidate.Latitude, candidate.Longitude, ProximityEpsilon)
	if err != nil {
		return store.Place{}, err
	}
	if len(nearby) > 0 {
		return nearby[0], nil
	}

	place := store.Place{
		ID:         util.NewID("plc"),
		Name:       candidate.Name,
		Latitude:   candidate.Latitude,
		Longitude:  candidate.Longitude,
		Address:    candidate.Address,
		ExternalID: candidate.ExternalID,
		Provider:   candidate.Provider,
	}
	if err := r.store.InsertPlace(ctx, place); err != nil {
		return store.Place{}, err
	}
	return place, nil
}

func validate(candidate Candidate) error {
	if strings.TrimSpace(candidate.Name) == "" {
		return fmt.Errorf("name is required: %w", ErrInvalidArgument)
	}
	if math.IsNaN(candidate.Latitude) || math.IsNaN(candidate.Longitude) {
		return fmt.Errorf("coordinates must not be NaN: %w", ErrInvalidArgument)
	}
	if candidate.Latitude < -90 || candidate.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %w", ErrInvalidArgument)
	}
	if candidate.Longitude < -180 || candidate.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %w", ErrInvalidArgument)
	}
	// Either both halves of the external pair or neither.
	if (candidate.ExternalID == nil) != (candidate.Provider == nil) {
		return fmt.Errorf("externalId and provider must be supplied together: %w", ErrInvalidArgument)
	}
	return nil
}
