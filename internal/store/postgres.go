package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash)
		VALUES ($1, $2, LOWER($3), $4)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at
		FROM users WHERE email=LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- refresh sessions / token revocation ---

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.display_name, u.email
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// --- travels ---

func (s *PostgresStore) InsertTravel(ctx context.Context, travel Travel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO travels (id, title, description, starts_on, ends_on, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, travel.ID, travel.Title, travel.Description, travel.StartsOn, travel.EndsOn, travel.OwnerID)
	if err != nil {
		return fmt.Errorf("insert travel: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO travel_members (travel_id, user_id, role)
		VALUES ($1, $2, 'owner')
		ON CONFLICT (travel_id, user_id) DO NOTHING
	`, travel.ID, travel.OwnerID); err != nil {
		return fmt.Errorf("insert owner membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTravel(ctx context.Context, travelID string) (Travel, error) {
	var item Travel
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, starts_on, ends_on, owner_id, created_at, updated_at
		FROM travels WHERE id=$1
	`, travelID).Scan(&item.ID, &item.Title, &item.Description, &item.StartsOn, &item.EndsOn, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Travel{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListTravelsForUser(ctx context.Context, userID string) ([]Travel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.title, t.description, t.starts_on, t.ends_on, t.owner_id, t.created_at, t.updated_at
		FROM travels t
		JOIN travel_members tm ON tm.travel_id = t.id
		WHERE tm.user_id = $1
		ORDER BY t.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list travels: %w", err)
	}
	defer rows.Close()

	items := make([]Travel, 0)
	for rows.Next() {
		var item Travel
		if err := rows.Scan(&item.ID, &item.Title, &item.Description, &item.StartsOn, &item.EndsOn, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan travel: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate travels: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateTravel(ctx context.Context, travelID, title, description string, startsOn, endsOn *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE travels
		SET title=$2, description=$3, starts_on=$4, ends_on=$5, updated_at=NOW()
		WHERE id=$1
	`, travelID, title, description, startsOn, endsOn)
	if err != nil {
		return fmt.Errorf("update travel: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTravel(ctx context.Context, travelID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM travels WHERE id=$1`, travelID)
	if err != nil {
		return fmt.Errorf("delete travel: %w", err)
	}
	return nil
}

// --- memberships ---

func (s *PostgresStore) GetMemberRole(ctx context.Context, travelID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM travel_members WHERE travel_id=$1 AND user_id=$2
	`, travelID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read member role: %w", err)
	}
	return role, nil
}

func (s *PostgresStore) UpsertMember(ctx context.Context, travelID, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO travel_members (travel_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (travel_id, user_id) DO UPDATE SET role=EXCLUDED.role
	`, travelID, userID, role)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, travelID string) ([]TravelMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT travel_id, user_id, role, joined_at
		FROM travel_members
		WHERE travel_id=$1
		ORDER BY joined_at ASC
	`, travelID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]TravelMember, 0)
	for rows.Next() {
		var item TravelMember
		if err := rows.Scan(&item.TravelID, &item.UserID, &item.Role, &item.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

// --- itineraries ---

func (s *PostgresStore) InsertItinerary(ctx context.Context, itinerary Itinerary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO itineraries (id, travel_id, title, date)
		VALUES ($1, $2, $3, $4)
	`, itinerary.ID, itinerary.TravelID, itinerary.Title, itinerary.Date)
	if err != nil {
		return fmt.Errorf("insert itinerary: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetItinerary(ctx context.Context, itineraryID string) (Itinerary, error) {
	var item Itinerary
	err := s.db.QueryRowContext(ctx, `
		SELECT id, travel_id, title, date, created_at
		FROM itineraries WHERE id=$1
	`, itineraryID).Scan(&item.ID, &item.TravelID, &item.Title, &item.Date, &item.CreatedAt)
	if err != nil {
		return Itinerary{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListItineraries(ctx context.Context, travelID string) ([]Itinerary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, travel_id, title, date, created_at
		FROM itineraries
		WHERE travel_id=$1
		ORDER BY date ASC NULLS LAST, created_at ASC
	`, travelID)
	if err != nil {
		return nil, fmt.Errorf("list itineraries: %w", err)
	}
	defer rows.Close()

	items := make([]Itinerary, 0)
	for rows.Next() {
		var item Itinerary
		if err := rows.Scan(&item.ID, &item.TravelID, &item.Title, &item.Date, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan itinerary: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate itineraries: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateItinerary(ctx context.Context, itineraryID, title string, date *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE itineraries SET title=$2, date=$3 WHERE id=$1
	`, itineraryID, title, date)
	if err != nil {
		return fmt.Errorf("update itinerary: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteItinerary(ctx context.Context, itineraryID string) error {
	// Activities fall back to the wishlist rather than being deleted with
	// their day; they get re-appended to the wishlist order.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete itinerary: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE activities a
		SET itinerary_id = NULL,
			order_index = sub.max_index + 1000.0 * sub.rn
		FROM (
			SELECT id,
				ROW_NUMBER() OVER (ORDER BY order_index ASC, id ASC) AS rn,
				COALESCE((
					SELECT MAX(order_index) FROM activities w
					WHERE w.travel_id = activities.travel_id AND w.itinerary_id IS NULL
				), 0) AS max_index
			FROM activities
			WHERE itinerary_id=$1
		) sub
		WHERE a.id = sub.id
	`, itineraryID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("detach itinerary activities: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM itineraries WHERE id=$1`, itineraryID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete itinerary: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete itinerary: %w", err)
	}
	return nil
}
