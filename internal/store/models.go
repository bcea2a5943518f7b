package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Travel struct {
	ID          string
	Title       string
	Description string
	StartsOn    *time.Time
	EndsOn      *time.Time
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TravelMember links a user to a travel with a role (owner, editor, viewer).
type TravelMember struct {
	TravelID string
	UserID   string
	Role     string
	JoinedAt time.Time
}

type Itinerary struct {
	ID        string
	TravelID  string
	Title     string
	Date      *time.Time
	CreatedAt time.Time
}

// Activity belongs to a travel and optionally to an itinerary day.
// A NULL itinerary_id means the activity sits in the travel's wishlist.
// OrderIndex defines display order among activities sharing the same
// itinerary bucket; it is a fractional rank, not a dense sequence.
type Activity struct {
	ID          string
	TravelID    string
	ItineraryID *string
	PlaceID     *string
	Title       string
	Notes       string
	StartsAt    *time.Time
	OrderIndex  float64
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Place is a canonical, deduplicated location. ExternalID and Provider
// identify the place in an upstream search provider's namespace; the
// pair is unique when both are present.
type Place struct {
	ID         string
	Name       string
	Latitude   float64
	Longitude  float64
	Address    *string
	ExternalID *string
	Provider   *string
	CreatedAt  time.Time
}

type Comment struct {
	ID         string
	ActivityID string
	AuthorID   string
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

type Todo struct {
	ID         string
	TravelID   string
	Title      string
	Done       bool
	AssigneeID *string
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Invite struct {
	ID         string
	TravelID   string
	TokenHash  string
	Role       string
	Email      string
	CreatedBy  string
	AcceptedBy *string
	AcceptedAt *time.Time
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

type CheckIn struct {
	ID        string
	PlaceID   string
	UserID    string
	Note      string
	CreatedAt time.Time
}

type PlaceReview struct {
	ID        string
	PlaceID   string
	UserID    string
	Rating    int
	Body      string
	CreatedAt time.Time
}

// AwardCounts holds the per-user totals the award thresholds are
// evaluated against.
type AwardCounts struct {
	Travels  int
	CheckIns int
	Reviews  int
	Places   int
}
