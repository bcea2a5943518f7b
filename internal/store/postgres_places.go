package store

import (
	"context"
	"fmt"
)

// --- places ---

func (s *PostgresStore) InsertPlace(ctx context.Context, place Place) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO places (id, name, latitude, longitude, address, external_id, provider)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, place.ID, place.Name, place.Latitude, place.Longitude, place.Address, place.ExternalID, place.Provider)
	if err != nil {
		return fmt.Errorf("insert place: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPlace(ctx context.Context, placeID string) (Place, error) {
	var item Place
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, latitude, longitude, address, external_id, provider, created_at
		FROM places WHERE id=$1
	`, placeID).Scan(&item.ID, &item.Name, &item.Latitude, &item.Longitude, &item.Address, &item.ExternalID, &item.Provider, &item.CreatedAt)
	if err != nil {
		return Place{}, err
	}
	return item, nil
}

// FindPlaceByExternal looks up the unique (external_id, provider) pair.
// sql.ErrNoRows propagates to the caller on a miss.
func (s *PostgresStore) FindPlaceByExternal(ctx context.Context, externalID, provider string) (Place, error) {
	var item Place
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, latitude, longitude, address, external_id, provider, created_at
		FROM places WHERE external_id=$1 AND provider=$2
	`, externalID, provider).Scan(&item.ID, &item.Name, &item.Latitude, &item.Longitude, &item.Address, &item.ExternalID, &item.Provider, &item.CreatedAt)
	if err != nil {
		return Place{}, err
	}
	return item, nil
}

// FindPlacesNear returns places with the exact name whose coordinates both
// fall within epsilon degrees of the given point, ordered by id so the
// caller's tie-break is deterministic.
func (s *PostgresStore) FindPlacesNear(ctx context.Context, name string, latitude, longitude, epsilon float64) ([]Place, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, latitude, longitude, address, external_id, provider, created_at
		FROM places
		WHERE name=$1
			AND latitude  BETWEEN $2 - $4 AND $2 + $4
			AND longitude BETWEEN $3 - $4 AND $3 + $4
		ORDER BY id ASC
	`, name, latitude, longitude, epsilon)
	if err != nil {
		return nil, fmt.Errorf("find places near: %w", err)
	}
	defer rows.Close()

	items := make([]Place, 0)
	for rows.Next() {
		var item Place
		if err := rows.Scan(&item.ID, &item.Name, &item.Latitude, &item.Longitude, &item.Address, &item.ExternalID, &item.Provider, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate places: %w", err)
	}
	return items, nil
}

// SearchPlacesByName is the Postgres fallback behind the search service.
func (s *PostgresStore) SearchPlacesByName(ctx context.Context, query string, limit int) ([]Place, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, latitude, longitude, address, external_id, provider, created_at
		FROM places
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY name ASC, id ASC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search places: %w", err)
	}
	defer rows.Close()

	items := make([]Place, 0)
	for rows.Next() {
		var item Place
		if err := rows.Scan(&item.ID, &item.Name, &item.Latitude, &item.Longitude, &item.Address, &item.ExternalID, &item.Provider, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate places: %w", err)
	}
	return items, nil
}

// --- check-ins ---

func (s *PostgresStore) InsertCheckIn(ctx context.Context, checkIn CheckIn) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkins (id, place_id, user_id, note)
		VALUES ($1, $2, $3, $4)
	`, checkIn.ID, checkIn.PlaceID, checkIn.UserID, checkIn.Note)
	if err != nil {
		return fmt.Errorf("insert checkin: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCheckIns(ctx context.Context, placeID string) ([]CheckIn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, place_id, user_id, note, created_at
		FROM checkins
		WHERE place_id=$1
		ORDER BY created_at DESC
	`, placeID)
	if err != nil {
		return nil, fmt.Errorf("list checkins: %w", err)
	}
	defer rows.Close()

	items := make([]CheckIn, 0)
	for rows.Next() {
		var item CheckIn
		if err := rows.Scan(&item.ID, &item.PlaceID, &item.UserID, &item.Note, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkin: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkins: %w", err)
	}
	return items, nil
}

// --- place reviews ---

func (s *PostgresStore) InsertPlaceReview(ctx context.Context, review PlaceReview) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO place_reviews (id, place_id, user_id, rating, body)
		VALUES ($1, $2, $3, $4, $5)
	`, review.ID, review.PlaceID, review.UserID, review.Rating, review.Body)
	if err != nil {
		return fmt.Errorf("insert place review: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPlaceReviews(ctx context.Context, placeID string) ([]PlaceReview, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, place_id, user_id, rating, body, created_at
		FROM place_reviews
		WHERE place_id=$1
		ORDER BY created_at DESC
	`, placeID)
	if err != nil {
		return nil, fmt.Errorf("list place reviews: %w", err)
	}
	defer rows.Close()

	items := make([]PlaceReview, 0)
	for rows.Next() {
		var item PlaceReview
		if err := rows.Scan(&item.ID, &item.PlaceID, &item.UserID, &item.Rating, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan place review: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate place reviews: %w", err)
	}
	return items, nil
}

// --- award counters ---

func (s *PostgresStore) AwardCountsForUser(ctx context.Context, userID string) (AwardCounts, error) {
	var counts AwardCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM travel_members WHERE user_id=$1),
			(SELECT COUNT(*) FROM checkins WHERE user_id=$1),
			(SELECT COUNT(*) FROM place_reviews WHERE user_id=$1),
			(SELECT COUNT(DISTINCT place_id) FROM checkins WHERE user_id=$1)
	`, userID).Scan(&counts.Travels, &counts.CheckIns, &counts.Reviews, &counts.Places)
	if err != nil {
		return AwardCounts{}, fmt.Errorf("award counts: %w", err)
	}
	return counts, nil
}
