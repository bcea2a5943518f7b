package store

import (
	"context"
	"fmt"
	"time"
)

// Activity queries. The (travel_id, itinerary_id) pair identifies an
// ordering bucket; itinerary_id IS NULL selects the wishlist. Postgres
// treats NULL = NULL as unknown, so bucket predicates use
// IS NOT DISTINCT FROM throughout.

func (s *PostgresStore) InsertActivity(ctx context.Context, activity Activity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (id, travel_id, itinerary_id, place_id, title, notes, starts_at, order_index, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, activity.ID, activity.TravelID, activity.ItineraryID, activity.PlaceID, activity.Title, activity.Notes, activity.StartsAt, activity.OrderIndex, activity.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetActivity(ctx context.Context, activityID string) (Activity, error) {
	var item Activity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, travel_id, itinerary_id, place_id, title, notes, starts_at, order_index, created_by, created_at, updated_at
		FROM activities WHERE id=$1
	`, activityID).Scan(
		&item.ID,
		&item.TravelID,
		&item.ItineraryID,
		&item.PlaceID,
		&item.Title,
		&item.Notes,
		&item.StartsAt,
		&item.OrderIndex,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Activity{}, err
	}
	return item, nil
}

// MaxOrderIndex returns the highest order_index in a bucket. The second
// return value is false when the bucket is empty.
func (s *PostgresStore) MaxOrderIndex(ctx context.Context, travelID string, itineraryID *string) (float64, bool, error) {
	var max *float64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(order_index)
		FROM activities
		WHERE travel_id=$1 AND itinerary_id IS NOT DISTINCT FROM $2
	`, travelID, itineraryID).Scan(&max)
	if err != nil {
		return 0, false, fmt.Errorf("max order index: %w", err)
	}
	if max == nil {
		return 0, false, nil
	}
	return *max, true, nil
}

func (s *PostgresStore) ListBucketActivities(ctx context.Context, travelID string, itineraryID *string) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, travel_id, itinerary_id, place_id, title, notes, starts_at, order_index, created_by, created_at, updated_at
		FROM activities
		WHERE travel_id=$1 AND itinerary_id IS NOT DISTINCT FROM $2
		ORDER BY order_index ASC, id ASC
	`, travelID, itineraryID)
	if err != nil {
		return nil, fmt.Errorf("list bucket activities: %w", err)
	}
	defer rows.Close()

	items := make([]Activity, 0)
	for rows.Next() {
		var item Activity
		if err := rows.Scan(
			&item.ID,
			&item.TravelID,
			&item.ItineraryID,
			&item.PlaceID,
			&item.Title,
			&item.Notes,
			&item.StartsAt,
			&item.OrderIndex,
			&item.CreatedBy,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListTravelActivities(ctx context.Context, travelID string) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, travel_id, itinerary_id, place_id, title, notes, starts_at, order_index, created_by, created_at, updated_at
		FROM activities
		WHERE travel_id=$1
		ORDER BY itinerary_id ASC NULLS FIRST, order_index ASC, id ASC
	`, travelID)
	if err != nil {
		return nil, fmt.Errorf("list travel activities: %w", err)
	}
	defer rows.Close()

	items := make([]Activity, 0)
	for rows.Next() {
		var item Activity
		if err := rows.Scan(
			&item.ID,
			&item.TravelID,
			&item.ItineraryID,
			&item.PlaceID,
			&item.Title,
			&item.Notes,
			&item.StartsAt,
			&item.OrderIndex,
			&item.CreatedBy,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateActivity(ctx context.Context, activityID, title, notes string, startsAt *time.Time, placeID *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE activities
		SET title=$2, notes=$3, starts_at=$4, place_id=$5, updated_at=NOW()
		WHERE id=$1
	`, activityID, title, notes, startsAt, placeID)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	return nil
}

// UpdateActivityOrder mutates only the single row's rank.
func (s *PostgresStore) UpdateActivityOrder(ctx context.Context, activityID string, orderIndex float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE activities SET order_index=$2, updated_at=NOW() WHERE id=$1
	`, activityID, orderIndex)
	if err != nil {
		return fmt.Errorf("update activity order: %w", err)
	}
	return nil
}

// UpdateActivityBucket moves an activity to another itinerary bucket,
// assigning its rank in the destination in the same statement.
func (s *PostgresStore) UpdateActivityBucket(ctx context.Context, activityID string, itineraryID *string, orderIndex float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE activities SET itinerary_id=$2, order_index=$3, updated_at=NOW() WHERE id=$1
	`, activityID, itineraryID, orderIndex)
	if err != nil {
		return fmt.Errorf("update activity bucket: %w", err)
	}
	return nil
}

// RenumberBucket reassigns every activity in a bucket a fresh multiple of
// step in current sort order. A single UPDATE keeps the rewrite atomic, so
// concurrent readers never observe a partially renumbered bucket.
func (s *PostgresStore) RenumberBucket(ctx context.Context, travelID string, itineraryID *string, step float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE activities a
		SET order_index = ranked.rn * $3, updated_at = NOW()
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY order_index ASC, id ASC) AS rn
			FROM activities
			WHERE travel_id=$1 AND itinerary_id IS NOT DISTINCT FROM $2
		) ranked
		WHERE a.id = ranked.id
	`, travelID, itineraryID, step)
	if err != nil {
		return fmt.Errorf("renumber bucket: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteActivity(ctx context.Context, activityID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM activities WHERE id=$1`, activityID)
	if err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	return nil
}
