// Package ordering assigns fractional ranks to activities within an
// itinerary bucket so an activity can be inserted, moved, or reassigned
// without renumbering its siblings.
package ordering

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wayfare/api/internal/store"
)

// Step is the gap left between appended activities. Appending to a bucket
// with max index m yields m + Step; an empty bucket starts at Step. The
// gap leaves room for many midpoint insertions before float64 precision
// runs out between two neighbors.
const Step = 1000.0

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Bucket identifies one ordering sequence: either a specific itinerary
// day of a travel, or the travel's itinerary-less wishlist.
type Bucket struct {
	travelID    string
	itineraryID *string
}

func Wishlist(travelID string) Bucket {
	return Bucket{travelID: travelID}
}

func Day(travelID, itineraryID string) Bucket {
	return Bucket{travelID: travelID, itineraryID: &itineraryID}
}

func (b Bucket) TravelID() string { return b.travelID }

// ItineraryID returns nil for the wishlist bucket.
func (b Bucket) ItineraryID() *string { return b.itineraryID }

func (b Bucket) IsWishlist() bool { return b.itineraryID == nil }

func (b Bucket) contains(activity store.Activity) bool {
	if activity.TravelID != b.travelID {
		return false
	}
	if b.itineraryID == nil {
		return activity.ItineraryID == nil
	}
	return activity.ItineraryID != nil && *activity.ItineraryID == *b.itineraryID
}

// Store is the persistence surface the engine needs. RenumberBucket must
// be atomic with respect to concurrent readers; everything else is a
// single-row read or write.
type Store interface {
	GetActivity(ctx context.Context, activityID string) (store.Activity, error)
	MaxOrderIndex(ctx context.Context, travelID string, itineraryID *string) (float64, bool, error)
	UpdateActivityOrder(ctx context.Context, activityID string, orderIndex float64) error
	UpdateActivityBucket(ctx context.Context, activityID string, itineraryID *string, orderIndex float64) error
	RenumberBucket(ctx context.Context, travelID string, itineraryID *string, step float64) error
}

// Engine computes and persists activity ranks. It is stateless; every
// call works from a snapshot read of the bucket. Concurrent reorders on
// the same bucket can interleave and land in a surprising (but still
// totally ordered) final arrangement; the engine does not serialize them.
type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Append returns the rank for a new activity placed at the end of the
// bucket. It does not persist anything; the caller inserts the activity
// row with the returned index.
func (e *Engine) Append(ctx context.Context, bucket Bucket) (float64, error) {
	max, ok, err := e.store.MaxOrderIndex(ctx, bucket.travelID, bucket.itineraryID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return Step, nil
	}
	return max + Step, nil
}

// Reorder computes a new rank placing the activity between the bounds and
// persists it. Bound ids must belong to the activity's current bucket.
// The engine trusts that the bounds flank the target position; it does
// not verify adjacency, so concurrent reorders with overlapping bounds
// can race (accepted behavior, surfaced in the API contract).
func (e *Engine) Reorder(ctx context.Context, activityID string, afterID, beforeID *string) (float64, error) {
	activity, err := e.getActivity(ctx, activityID)
	if err != nil {
		return 0, err
	}
	bucket := Bucket{travelID: activity.TravelID, itineraryID: activity.ItineraryID}

	index, err := e.placement(ctx, bucket, afterID, beforeID)
	if err != nil {
		return 0, err
	}
	if err := e.store.UpdateActivityOrder(ctx, activityID, index); err != nil {
		return 0, err
	}
	return index, nil
}

// ReassignBucket moves an activity to another bucket of the same travel,
// assigning a fresh rank there: appended, or positioned when bounds are
// given. The owning travel never changes.
func (e *Engine) ReassignBucket(ctx context.Context, activityID string, bucket Bucket, afterID, beforeID *string) (float64, error) {
	activity, err := e.getActivity(ctx, activityID)
	if err != nil {
		return 0, err
	}
	if activity.TravelID != bucket.travelID {
		return 0, fmt.Errorf("bucket belongs to travel %s: %w", bucket.travelID, ErrInvalidArgument)
	}

	index, err := e.placement(ctx, bucket, afterID, beforeID)
	if err != nil {
		return 0, err
	}
	if err := e.store.UpdateActivityBucket(ctx, activityID, bucket.itineraryID, index); err != nil {
		return 0, err
	}
	return index, nil
}

// placement computes the rank for a position in bucket described by the
// optional bounds. When repeated insertions have exhausted the float64
// gap between the bounds (the representable midpoint collides with an
// endpoint), the whole bucket is renumbered to fresh multiples of Step
// and the placement is computed once more.
func (e *Engine) placement(ctx context.Context, bucket Bucket, afterID, beforeID *string) (float64, error) {
	if afterID == nil && beforeID == nil {
		return e.Append(ctx, bucket)
	}

	for attempt := 0; ; attempt++ {
		index, ok, err := e.tryPlacement(ctx, bucket, afterID, beforeID)
		if err != nil {
			return 0, err
		}
		if ok {
			return index, nil
		}
		if attempt > 0 {
			return 0, fmt.Errorf("no representable rank between bounds after renumbering: %w", ErrInvalidArgument)
		}
		if err := e.store.RenumberBucket(ctx, bucket.travelID, bucket.itineraryID, Step); err != nil {
			return 0, err
		}
	}
}

// tryPlacement computes the rank from a snapshot of the bounds. The
// second return value is false when the midpoint degenerates.
func (e *Engine) tryPlacement(ctx context.Context, bucket Bucket, afterID, beforeID *string) (float64, bool, error) {
	var after, before *store.Activity
	if afterID != nil {
		bound, err := e.getBound(ctx, bucket, *afterID)
		if err != nil {
			return 0, false, err
		}
		after = &bound
	}
	if beforeID != nil {
		bound, err := e.getBound(ctx, bucket, *beforeID)
		if err != nil {
			return 0, false, err
		}
		before = &bound
	}

	switch {
	case after != nil && before != nil:
		mid := (after.OrderIndex + before.OrderIndex) / 2
		if mid == after.OrderIndex || mid == before.OrderIndex {
			return 0, false, nil
		}
		return mid, true, nil
	case after != nil:
		return after.OrderIndex + Step, true, nil
	default:
		index := before.OrderIndex - Step
		if index <= 0 {
			index = before.OrderIndex / 2
		}
		if index == before.OrderIndex || index == 0 {
			return 0, false, nil
		}
		return index, true, nil
	}
}

func (e *Engine) getActivity(ctx context.Context, activityID string) (store.Activity, error) {
	activity, err := e.store.GetActivity(ctx, activityID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Activity{}, fmt.Errorf("activity %s: %w", activityID, ErrNotFound)
	}
	if err != nil {
		return store.Activity{}, err
	}
	return activity, nil
}

func (e *Engine) getBound(ctx context.Context, bucket Bucket, boundID string) (store.Activity, error) {
	bound, err := e.getActivity(ctx, boundID)
	if err != nil {
		return store.Activity{}, err
	}
	if !bucket.contains(bound) {
		return store.Activity{}, fmt.Errorf("bound %s is not in the target bucket: %w", boundID, ErrInvalidArgument)
	}
	return bound, nil
}
