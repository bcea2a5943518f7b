package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"wayfare/api/internal/auth"
	"wayfare/api/internal/authpw"
	"wayfare/api/internal/awards"
	"wayfare/api/internal/companion"
	"wayfare/api/internal/config"
	"wayfare/api/internal/email"
	"wayfare/api/internal/export"
	"wayfare/api/internal/ordering"
	"wayfare/api/internal/places"
	"wayfare/api/internal/rbac"
	"wayfare/api/internal/search"
	"wayfare/api/internal/store"
	"wayfare/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type CreateTravelInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartsOn    *time.Time `json:"startsOn"`
	EndsOn      *time.Time `json:"endsOn"`
}

type PlaceInput struct {
	Name       string  `json:"name"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Address    *string `json:"address"`
	ExternalID *string `json:"externalId"`
	Provider   *string `json:"provider"`
}

type CreateActivityInput struct {
	Title       string      `json:"title"`
	Notes       string      `json:"notes"`
	StartsAt    *time.Time  `json:"startsAt"`
	ItineraryID *string     `json:"itineraryId"`
	Place       *PlaceInput `json:"place"`
}

type UpdateActivityInput struct {
	Title    string      `json:"title"`
	Notes    string      `json:"notes"`
	StartsAt *time.Time  `json:"startsAt"`
	Place    *PlaceInput `json:"place"`
}

type ReorderInput struct {
	AfterID  *string `json:"afterId"`
	BeforeID *string `json:"beforeId"`
}

type MoveActivityInput struct {
	ItineraryID *string `json:"itineraryId"`
	AfterID     *string `json:"afterId"`
	BeforeID    *string `json:"beforeId"`
}

var allowedMemberRoles = map[string]struct{}{
	"viewer": {},
	"editor": {},
	"owner":  {},
}

var allowedInviteRoles = map[string]struct{}{
	"viewer": {},
	"editor": {},
}

type dataStore interface {
	CreateUser(ctx context.Context, user store.User) error
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error

	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	InsertTravel(ctx context.Context, travel store.Travel) error
	GetTravel(ctx context.Context, travelID string) (store.Travel, error)
	ListTravelsForUser(ctx context.Context, userID string) ([]store.Travel, error)
	UpdateTravel(ctx context.Context, travelID, title, description string, startsOn, endsOn *time.Time) error
	DeleteTravel(ctx context.Context, travelID string) error
	GetMemberRole(ctx context.Context, travelID, userID string) (string, error)
	UpsertMember(ctx context.Context, travelID, userID, role string) error
	ListMembers(ctx context.Context, travelID string) ([]store.TravelMember, error)

	InsertItinerary(ctx context.Context, itinerary store.Itinerary) error
	GetItinerary(ctx context.Context, itineraryID string) (store.Itinerary, error)
	ListItineraries(ctx context.Context, travelID string) ([]store.Itinerary, error)
	UpdateItinerary(ctx context.Context, itineraryID, title string, date *time.Time) error
	DeleteItinerary(ctx context.Context, itineraryID string) error

	InsertActivity(ctx context.Context, activity store.Activity) error
	GetActivity(ctx context.Context, activityID string) (store.Activity, error)
	MaxOrderIndex(ctx context.Context, travelID string, itineraryID *string) (float64, bool, error)
	ListBucketActivities(ctx context.Context, travelID string, itineraryID *string) ([]store.Activity, error)
	ListTravelActivities(ctx context.Context, travelID string) ([]store.Activity, error)
	UpdateActivity(ctx context.Context, activityID, title, notes string, startsAt *time.Time, placeID *string) error
	UpdateActivityOrder(ctx context.Context, activityID string, orderIndex float64) error
	UpdateActivityBucket(ctx context.Context, activityID string, itineraryID *string, orderIndex float64) error
	RenumberBucket(ctx context.Context, travelID string, itineraryID *string, step float64) error
	DeleteActivity(ctx context.Context, activityID string) error

	InsertComment(ctx context.Context, comment store.Comment) error
	ListComments(ctx context.Context, activityID string) ([]store.Comment, error)
	GetComment(ctx context.Context, commentID string) (store.Comment, error)
	DeleteComment(ctx context.Context, commentID string) error

	InsertTodo(ctx context.Context, todo store.Todo) error
	GetTodo(ctx context.Context, todoID string) (store.Todo, error)
	ListTodos(ctx context.Context, travelID string) ([]store.Todo, error)
	UpdateTodo(ctx context.Context, todoID, title string, done bool, assigneeID *string) error
	DeleteTodo(ctx context.Context, todoID string) error

	InsertInvite(ctx context.Context, invite store.Invite) error
	LookupInvite(ctx context.Context, tokenHash string) (store.Invite, error)
	MarkInviteAccepted(ctx context.Context, inviteID, userID string, at time.Time) (bool, error)
	ListInvites(ctx context.Context, travelID string) ([]store.Invite, error)

	InsertPlace(ctx context.Context, place store.Place) error
	GetPlace(ctx context.Context, placeID string) (store.Place, error)
	FindPlaceByExternal(ctx context.Context, externalID, provider string) (store.Place, error)
	FindPlacesNear(ctx context.Context, name string, latitude, longitude, epsilon float64) ([]store.Place, error)

	InsertCheckIn(ctx context.Context, checkIn store.CheckIn) error
	ListCheckIns(ctx context.Context, placeID string) ([]store.CheckIn, error)
	InsertPlaceReview(ctx context.Context, review store.PlaceReview) error
	ListPlaceReviews(ctx context.Context, placeID string) ([]store.PlaceReview, error)
	AwardCountsForUser(ctx context.Context, userID string) (store.AwardCounts, error)

	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens. The Postgres store implements it;
// the Redis store replaces it when REDIS_URL is configured.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type placeSearch interface {
	Search(q search.Query) search.Response
	IndexPlace(place search.Result)
}

// Deps carries the optional collaborators. Nil fields disable the
// corresponding feature instead of failing startup.
type Deps struct {
	Sessions  sessionStore
	Search    placeSearch
	Mail      *email.Service
	Companion *companion.Client
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	passwords *authpw.Service
	orders    *ordering.Engine
	resolver  *places.Resolver
	awards    *awards.Service
	search    placeSearch
	mail      *email.Service
	companion *companion.Client
}

func New(cfg config.Config, st dataStore, deps Deps) *Service {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = st
	}
	return &Service{
		cfg:       cfg,
		store:     st,
		sessions:  sessions,
		passwords: authpw.NewService(st),
		orders:    ordering.NewEngine(st),
		resolver:  places.NewResolver(st),
		awards:    awards.NewService(st),
		search:    deps.Search,
		mail:      deps.Mail,
		companion: deps.Companion,
	}
}

// --- sessions ---

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.passwords.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	user, err := s.passwords.SignIn(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) ChangePassword(ctx context.Context, req authpw.ChangePasswordRequest) error {
	return s.passwords.ChangePassword(ctx, req)
}

// Refresh rotates the refresh token: the presented token is revoked and
// a new pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	if user.DisplayName == "" {
		// Redis session records carry only the user id.
		user, err = s.store.GetUserByID(ctx, user.ID)
		if err != nil {
			return Session{}, err
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.DisplayName, jti, expiresAt)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken(32)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Profile(ctx context.Context, userID string) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          user.ID,
		"displayName": user.DisplayName,
		"email":       user.Email,
		"createdAt":   user.CreatedAt,
	}, nil
}

// --- membership ---

// requireMember loads the caller's role on the travel and checks the
// action. Non-members get a 404 so travel ids stay unguessable.
func (s *Service) requireMember(ctx context.Context, travelID, userID string, action rbac.Action) (string, error) {
	role, err := s.store.GetMemberRole(ctx, travelID, userID)
	if err != nil {
		return "", fmt.Errorf("load member role: %w", err)
	}
	if role == "" {
		return "", domainError(http.StatusNotFound, "NOT_FOUND", "Travel not found", nil)
	}
	if !rbac.Can(rbac.Normalize(role), action) {
		return "", domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return role, nil
}

// --- travels ---

func (s *Service) CreateTravel(ctx context.Context, userID string, input CreateTravelInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	travel := store.Travel{
		ID:          util.NewID("trv"),
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		StartsOn:    input.StartsOn,
		EndsOn:      input.EndsOn,
		OwnerID:     userID,
	}
	if err := s.store.InsertTravel(ctx, travel); err != nil {
		return nil, fmt.Errorf("create travel: %w", err)
	}
	return travelPayload(travel, "owner"), nil
}

func (s *Service) ListTravels(ctx context.Context, userID string) ([]map[string]any, error) {
	travels, err := s.store.ListTravelsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list travels: %w", err)
	}
	items := make([]map[string]any, 0, len(travels))
	for _, travel := range travels {
		role, err := s.store.GetMemberRole(ctx, travel.ID, userID)
		if err != nil {
			return nil, err
		}
		items = append(items, travelPayload(travel, role))
	}
	return items, nil
}

// GetTravelOverview returns the travel with its days, activities grouped
// into buckets in rank order, members, and todos.
func (s *Service) GetTravelOverview(ctx context.Context, travelID, userID string) (map[string]any, error) {
	role, err := s.requireMember(ctx, travelID, userID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	travel, err := s.store.GetTravel(ctx, travelID)
	if err != nil {
		return nil, err
	}
	itineraries, err := s.store.ListItineraries(ctx, travelID)
	if err != nil {
		return nil, err
	}
	activities, err := s.store.ListTravelActivities(ctx, travelID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, travelID)
	if err != nil {
		return nil, err
	}
	todos, err := s.store.ListTodos(ctx, travelID)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string][]map[string]any)
	wishlist := []map[string]any{}
	for _, activity := range activities {
		payload := activityPayload(activity)
		if activity.ItineraryID == nil {
			wishlist = append(wishlist, payload)
			continue
		}
		byDay[*activity.ItineraryID] = append(byDay[*activity.ItineraryID], payload)
	}

	days := make([]map[string]any, 0, len(itineraries))
	for _, itinerary := range itineraries {
		payload := itineraryPayload(itinerary)
		activities := byDay[itinerary.ID]
		if activities == nil {
			activities = []map[string]any{}
		}
		payload["activities"] = activities
		days = append(days, payload)
	}

	memberItems := make([]map[string]any, 0, len(members))
	for _, member := range members {
		memberItems = append(memberItems, map[string]any{
			"userId":   member.UserID,
			"role":     member.Role,
			"joinedAt": member.JoinedAt,
		})
	}
	todoItems := make([]map[string]any, 0, len(todos))
	for _, todo := range todos {
		todoItems = append(todoItems, todoPayload(todo))
	}

	payload := travelPayload(travel, role)
	payload["days"] = days
	payload["wishlist"] = wishlist
	payload["members"] = memberItems
	payload["todos"] = todoItems
	return payload, nil
}

func (s *Service) UpdateTravel(ctx context.Context, travelID, userID string, input CreateTravelInput) (map[string]any, error) {
	role, err := s.requireMember(ctx, travelID, userID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if err := s.store.UpdateTravel(ctx, travelID, title, strings.TrimSpace(input.Description), input.StartsOn, input.EndsOn); err != nil {
		return nil, fmt.Errorf("update travel: %w", err)
	}
	travel, err := s.store.GetTravel(ctx, travelID)
	if err != nil {
		return nil, err
	}
	return travelPayload(travel, role), nil
}

func (s *Service) DeleteTravel(ctx context.Context, travelID, userID string) error {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionManage); err != nil {
		return err
	}
	return s.store.DeleteTravel(ctx, travelID)
}

func (s *Service) ListTravelMembers(ctx context.Context, travelID, userID string) ([]map[string]any, error) {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, travelID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(members))
	for _, member := range members {
		items = append(items, map[string]any{
			"userId":   member.UserID,
			"role":     member.Role,
			"joinedAt": member.JoinedAt,
		})
	}
	return items, nil
}

func (s *Service) SetMemberRole(ctx context.Context, travelID, userID, memberID, role string) error {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionManage); err != nil {
		return err
	}
	if _, ok := allowedMemberRoles[role]; !ok {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "role must be viewer, editor, or owner", nil)
	}
	travel, err := s.store.GetTravel(ctx, travelID)
	if err != nil {
		return err
	}
	if memberID == travel.OwnerID && role != "owner" {
		return domainError(http.StatusConflict, "OWNER_LOCKED", "The travel owner's role cannot be changed", nil)
	}
	return s.store.UpsertMember(ctx, travelID, memberID, role)
}

// --- itineraries ---

func (s *Service) CreateItinerary(ctx context.Context, travelID, userID, title string, date *time.Time) (map[string]any, error) {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	itinerary := store.Itinerary{
		ID:       util.NewID("itn"),
		TravelID: travelID,
		Title:    strings.TrimSpace(title),
		Date:     date,
	}
	if err := s.store.InsertItinerary(ctx, itinerary); err != nil {
		return nil, fmt.Errorf("create itinerary: %w", err)
	}
	return itineraryPayload(itinerary), nil
}

func (s *Service) UpdateItinerary(ctx context.Context, travelID, itineraryID, userID, title string, date *time.Time) (map[string]any, error) {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	if _, err := s.itineraryInTravel(ctx, travelID, itineraryID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateItinerary(ctx, itineraryID, strings.TrimSpace(title), date); err != nil {
		return nil, fmt.Errorf("update itinerary: %w", err)
	}
	itinerary, err := s.store.GetItinerary(ctx, itineraryID)
	if err != nil {
		return nil, err
	}
	return itineraryPayload(itinerary), nil
}

// DeleteItinerary removes the day; its activities move to the end of the
// wishlist in their previous order.
func (s *Service) DeleteItinerary(ctx context.Context, travelID, itineraryID, userID string) error {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionWrite); err != nil {
		return err
	}
	if _, err := s.itineraryInTravel(ctx, travelID, itineraryID); err != nil {
		return err
	}
	return s.store.DeleteItinerary(ctx, itineraryID)
}

func (s *Service) itineraryInTravel(ctx context.Context, travelID, itineraryID string) (store.Itinerary, error) {
	itinerary, err := s.store.GetItinerary(ctx, itineraryID)
	if err != nil {
		return store.Itinerary{}, err
	}
	if itinerary.TravelID != travelID {
		return store.Itinerary{}, domainError(http.StatusNotFound, "NOT_FOUND", "Itinerary not found", nil)
	}
	return itinerary, nil
}

// --- activities ---

func (s *Service) CreateActivity(ctx context.Context, travelID, userID string, input CreateActivityInput) (map[string]any, error) {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	bucket := ordering.Wishlist(travelID)
	if input.ItineraryID != nil {
		if _, err := s.itineraryInTravel(ctx, travelID, *input.ItineraryID); err != nil {
			return nil, err
		}
		bucket = ordering.Day(travelID, *input.ItineraryID)
	}

	var placeID *string
	if input.Place != nil {
		place, err := s.resolvePlace(ctx, *input.Place)
		if err != nil {
			return nil, err
		}
		placeID = &place.ID
	}

	orderIndex, err := s.orders.Append(ctx, bucket)
	if err != nil {
		return nil, err
	}

	activity := store.Activity{
		ID:          util.NewID("act"),
		TravelID:    travelID,
		ItineraryID: input.ItineraryID,
		PlaceID:     placeID,
		Title:       title,
		Notes:       input.Notes,
		StartsAt:    input.StartsAt,
		OrderIndex:  orderIndex,
		CreatedBy:   userID,
	}
	if err := s.store.InsertActivity(ctx, activity); err != nil {
		return nil, fmt.Errorf("create activity: %w", err)
	}
	return activityPayload(activity), nil
}

func (s *Service) UpdateActivity(ctx context.Context, travelID, activityID, userID string, input UpdateActivityInput) (map[string]any, error) {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	activity, err := s.activityInTravel(ctx, travelID, activityID)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	placeID := activity.PlaceID
	if input.Place != nil {
		place, err := s.resolvePlace(ctx, *input.Place)
		if err != nil {
			return nil, err
		}
		placeID = &place.ID
	}
	if err := s.store.UpdateActivity(ctx, activityID, title, input.Notes, input.StartsAt, placeID); err != nil {
		return nil, fmt.Errorf("update activity: %w", err)
	}
	updated, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	return activityPayload(updated), nil
}

func (s *Service) DeleteActivity(ctx context.Context, travelID, activityID, userID string) error {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionWrite); err != nil {
		return err
	}
	if _, err := s.activityInTravel(ctx, travelID, activityID); err != nil {
		return err
	}
	return s.store.DeleteActivity(ctx, activityID)
}

// ReorderActivity moves the activity between its neighbours within its
// current bucket.
func (s *Service) ReorderActivity(ctx context.Context, travelID, activityID, userID string, input ReorderInput) (map[string]any, error) {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	if _, err := s.activityInTravel(ctx, travelID, activityID); err != nil {
		return nil, err
	}
	if _, err := s.orders.Reorder(ctx, activityID, input.AfterID, input.BeforeID); err != nil {
		return nil, err
	}
	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	return activityPayload(activity), nil
}

// MoveActivity reassigns the activity to another day (or back to the
// wishlist), optionally at a position between two activities there.
func (s *Service) MoveActivity(ctx context.Context, travelID, activityID, userID string, input MoveActivityInput) (map[string]any, error) {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	if _, err := s.activityInTravel(ctx, travelID, activityID); err != nil {
		return nil, err
	}

	bucket := ordering.Wishlist(travelID)
	if input.ItineraryID != nil {
		if _, err := s.itineraryInTravel(ctx, travelID, *input.ItineraryID); err != nil {
			return nil, err
		}
		bucket = ordering.Day(travelID, *input.ItineraryID)
	}
	if _, err := s.orders.ReassignBucket(ctx, activityID, bucket, input.AfterID, input.BeforeID); err != nil {
		return nil, err
	}
	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	return activityPayload(activity), nil
}

func (s *Service) activityInTravel(ctx context.Context, travelID, activityID string) (store.Activity, error) {
	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return store.Activity{}, err
	}
	if activity.TravelID != travelID {
		return store.Activity{}, domainError(http.StatusNotFound, "NOT_FOUND", "Activity not found", nil)
	}
	return activity, nil
}

// --- places ---

func (s *Service) resolvePlace(ctx context.Context, input PlaceInput) (store.Place, error) {
	place, err := s.resolver.Resolve(ctx, places.Candidate{
		Name:       input.Name,
		Latitude:   input.Latitude,
		Longitude:  input.Longitude,
		Address:    input.Address,
		ExternalID: input.ExternalID,
		Provider:   input.Provider,
	})
	if err != nil {
		return store.Place{}, err
	}
	if s.search != nil {
		s.search.IndexPlace(placeSearchResult(place))
	}
	return place, nil
}

// ResolvePlace deduplicates the submitted candidate into a canonical
// place record.
func (s *Service) ResolvePlace(ctx context.Context, input PlaceInput) (map[string]any, error) {
	place, err := s.resolvePlace(ctx, input)
	if err != nil {
		return nil, err
	}
	return placePayload(place), nil
}

func (s *Service) GetPlace(ctx context.Context, placeID string) (map[string]any, error) {
	place, err := s.store.GetPlace(ctx, placeID)
	if err != nil {
		return nil, err
	}
	reviews, err := s.store.ListPlaceReviews(ctx, placeID)
	if err != nil {
		return nil, err
	}
	payload := placePayload(place)
	reviewItems := make([]map[string]any, 0, len(reviews))
	total := 0
	for _, review := range reviews {
		total += review.Rating
		reviewItems = append(reviewItems, reviewPayload(review))
	}
	payload["reviews"] = reviewItems
	if len(reviews) > 0 {
		payload["averageRating"] = float64(total) / float64(len(reviews))
	}
	return payload, nil
}

func (s *Service) SearchPlaces(ctx context.Context, query string, limit int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: query}, nil
	}
	return s.search.Search(search.Query{Text: query, Limit: limit}), nil
}

// --- comments ---

func (s *Service) AddComment(ctx context.Context, travelID, activityID, userID, body string) (map[string]any, error) {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	if _, err := s.activityInTravel(ctx, travelID, activityID); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "body is required", nil)
	}
	comment := store.Comment{
		ID:         util.NewID("cmt"),
		ActivityID: activityID,
		AuthorID:   userID,
		Body:       body,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	saved, err := s.store.GetComment(ctx, comment.ID)
	if err != nil {
		return nil, err
	}
	return commentPayload(saved), nil
}

func (s *Service) ListComments(ctx context.Context, travelID, activityID, userID string) ([]map[string]any, error) {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	if _, err := s.activityInTravel(ctx, travelID, activityID); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, activityID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		items = append(items, commentPayload(comment))
	}
	return items, nil
}

// DeleteComment allows the author or anyone with manage rights.
func (s *Service) DeleteComment(ctx context.Context, travelID, activityID, commentID, userID string) error {
	role, err := s.requireMember(ctx, travelID, userID, rbac.ActionRead)
	if err != nil {
		return err
	}
	if _, err := s.activityInTravel(ctx, travelID, activityID); err != nil {
		return err
	}
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.ActivityID != activityID {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Comment not found", nil)
	}
	if comment.AuthorID != userID && !rbac.Can(rbac.Normalize(role), rbac.ActionManage) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return s.store.DeleteComment(ctx, commentID)
}

// --- todos ---

func (s *Service) CreateTodo(ctx context.Context, travelID, userID, title string, assigneeID *string) (map[string]any, error) {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	todo := store.Todo{
		ID:         util.NewID("tdo"),
		TravelID:   travelID,
		Title:      title,
		AssigneeID: assigneeID,
		CreatedBy:  userID,
	}
	if err := s.store.InsertTodo(ctx, todo); err != nil {
		return nil, fmt.Errorf("create todo: %w", err)
	}
	return todoPayload(todo), nil
}

func (s *Service) ListTodos(ctx context.Context, travelID, userID string) ([]map[string]any, error) {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	todos, err := s.store.ListTodos(ctx, travelID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(todos))
	for _, todo := range todos {
		items = append(items, todoPayload(todo))
	}
	return items, nil
}

func (s *Service) UpdateTodo(ctx context.Context, travelID, todoID, userID, title string, done bool, assigneeID *string) (map[string]any, error) {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	todo, err := s.store.GetTodo(ctx, todoID)
	if err != nil {
		return nil, err
	}
	if todo.TravelID != travelID {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Todo not found", nil)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = todo.Title
	}
	if err := s.store.UpdateTodo(ctx, todoID, title, done, assigneeID); err != nil {
		return nil, fmt.Errorf("update todo: %w", err)
	}
	updated, err := s.store.GetTodo(ctx, todoID)
	if err != nil {
		return nil, err
	}
	return todoPayload(updated), nil
}

func (s *Service) DeleteTodo(ctx context.Context, travelID, todoID, userID string) error {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionWrite); err != nil {
		return err
	}
	todo, err := s.store.GetTodo(ctx, todoID)
	if err != nil {
		return err
	}
	if todo.TravelID != travelID {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Todo not found", nil)
	}
	return s.store.DeleteTodo(ctx, todoID)
}

// --- invites ---

// CreateInvite issues a role-scoped, single-use invite token. The raw
// token is returned once; only its hash is stored.
func (s *Service) CreateInvite(ctx context.Context, travelID, userID, inviteEmail, role string) (map[string]any, error) {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionInvite); err != nil {
		return nil, err
	}
	if _, ok := allowedInviteRoles[role]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "role must be viewer or editor", nil)
	}

	token := util.NewToken(32)
	invite := store.Invite{
		ID:        util.NewID("inv"),
		TravelID:  travelID,
		TokenHash: auth.HashToken(token),
		Role:      role,
		Email:     strings.ToLower(strings.TrimSpace(inviteEmail)),
		CreatedBy: userID,
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	if err := s.store.InsertInvite(ctx, invite); err != nil {
		return nil, fmt.Errorf("create invite: %w", err)
	}

	if invite.Email != "" && s.mail != nil && s.mail.IsConfigured() {
		travel, err := s.store.GetTravel(ctx, travelID)
		if err == nil {
			inviter, _ := s.store.GetUserByID(ctx, userID)
			inviteURL := fmt.Sprintf("%s/invites/accept?token=%s", strings.TrimRight(s.cfg.CORSOrigin, "/"), token)
			if err := s.mail.SendInviteEmail(invite.Email, inviter.DisplayName, travel.Title, role, inviteURL); err != nil {
				log.Printf("invite email to %s failed: %v", invite.Email, err)
			}
		}
	}

	return map[string]any{
		"id":        invite.ID,
		"travelId":  invite.TravelID,
		"role":      invite.Role,
		"email":     invite.Email,
		"token":     token,
		"expiresAt": invite.ExpiresAt,
	}, nil
}

// AcceptInvite redeems a token and adds the caller as a member with the
// invite's role. Existing members keep their current (possibly higher)
// role.
func (s *Service) AcceptInvite(ctx context.Context, userID, token string) (map[string]any, error) {
	invite, err := s.store.LookupInvite(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "INVITE_INVALID", "Invite is invalid or expired", nil)
		}
		return nil, err
	}

	existing, err := s.store.GetMemberRole(ctx, invite.TravelID, userID)
	if err != nil {
		return nil, err
	}
	accepted, err := s.store.MarkInviteAccepted(ctx, invite.ID, userID, time.Now())
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, domainError(http.StatusConflict, "INVITE_USED", "Invite has already been used", nil)
	}
	if existing == "" {
		if err := s.store.UpsertMember(ctx, invite.TravelID, userID, invite.Role); err != nil {
			return nil, err
		}
	}

	travel, err := s.store.GetTravel(ctx, invite.TravelID)
	if err != nil {
		return nil, err
	}
	role := existing
	if role == "" {
		role = invite.Role
	}
	return travelPayload(travel, role), nil
}

func (s *Service) ListInvites(ctx context.Context, travelID, userID string) ([]map[string]any, error) {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionInvite); err != nil {
		return nil, err
	}
	invites, err := s.store.ListInvites(ctx, travelID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(invites))
	for _, invite := range invites {
		items = append(items, map[string]any{
			"id":         invite.ID,
			"role":       invite.Role,
			"email":      invite.Email,
			"acceptedBy": invite.AcceptedBy,
			"expiresAt":  invite.ExpiresAt,
			"createdAt":  invite.CreatedAt,
		})
	}
	return items, nil
}

// --- check-ins and reviews ---

func (s *Service) CheckIn(ctx context.Context, userID, placeID, note string) (map[string]any, error) {
	if _, err := s.store.GetPlace(ctx, placeID); err != nil {
		return nil, err
	}
	checkIn := store.CheckIn{
		ID:      util.NewID("chk"),
		PlaceID: placeID,
		UserID:  userID,
		Note:    strings.TrimSpace(note),
	}
	if err := s.store.InsertCheckIn(ctx, checkIn); err != nil {
		return nil, fmt.Errorf("check in: %w", err)
	}
	return map[string]any{
		"id":      checkIn.ID,
		"placeId": checkIn.PlaceID,
		"userId":  checkIn.UserID,
		"note":    checkIn.Note,
	}, nil
}

func (s *Service) ListCheckIns(ctx context.Context, placeID string) ([]map[string]any, error) {
	if _, err := s.store.GetPlace(ctx, placeID); err != nil {
		return nil, err
	}
	checkIns, err := s.store.ListCheckIns(ctx, placeID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(checkIns))
	for _, checkIn := range checkIns {
		items = append(items, map[string]any{
			"id":        checkIn.ID,
			"userId":    checkIn.UserID,
			"note":      checkIn.Note,
			"createdAt": checkIn.CreatedAt,
		})
	}
	return items, nil
}

func (s *Service) AddPlaceReview(ctx context.Context, userID, placeID string, rating int, body string) (map[string]any, error) {
	if rating < 1 || rating > 5 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "rating must be between 1 and 5", nil)
	}
	if _, err := s.store.GetPlace(ctx, placeID); err != nil {
		return nil, err
	}
	review := store.PlaceReview{
		ID:      util.NewID("rev"),
		PlaceID: placeID,
		UserID:  userID,
		Rating:  rating,
		Body:    strings.TrimSpace(body),
	}
	if err := s.store.InsertPlaceReview(ctx, review); err != nil {
		return nil, fmt.Errorf("add review: %w", err)
	}
	return reviewPayload(review), nil
}

func (s *Service) AwardsForUser(ctx context.Context, userID string) ([]awards.Award, error) {
	return s.awards.ForUser(ctx, userID)
}

// --- companion chat ---

func (s *Service) CompanionChat(ctx context.Context, travelID, userID string, conversation []companion.Message) (map[string]any, error) {
	if !s.companion.Configured() {
		return nil, domainError(http.StatusServiceUnavailable, "COMPANION_UNAVAILABLE", "Companion chat is not configured", nil)
	}
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	travel, err := s.store.GetTravel(ctx, travelID)
	if err != nil {
		return nil, err
	}
	activities, err := s.store.ListTravelActivities(ctx, travelID)
	if err != nil {
		return nil, err
	}
	reply, err := s.companion.Ask(ctx, travel, activities, conversation)
	if err != nil {
		return nil, fmt.Errorf("companion chat: %w", err)
	}
	return map[string]any{"reply": reply}, nil
}

// --- export ---

// ExportTravelPDF renders the travel's schedule as a PDF document.
func (s *Service) ExportTravelPDF(ctx context.Context, travelID, userID string) ([]byte, string, error) {
	if _, err := s.requireMember(ctx, travelID, userID, rbac.ActionRead); err != nil {
		return nil, "", err
	}
	travel, err := s.store.GetTravel(ctx, travelID)
	if err != nil {
		return nil, "", err
	}
	itineraries, err := s.store.ListItineraries(ctx, travelID)
	if err != nil {
		return nil, "", err
	}
	activities, err := s.store.ListTravelActivities(ctx, travelID)
	if err != nil {
		return nil, "", err
	}

	placeMap := make(map[string]store.Place)
	for _, activity := range activities {
		if activity.PlaceID == nil {
			continue
		}
		if _, ok := placeMap[*activity.PlaceID]; ok {
			continue
		}
		place, err := s.store.GetPlace(ctx, *activity.PlaceID)
		if err != nil {
			continue
		}
		placeMap[place.ID] = place
	}

	summary := export.BuildSummary(travel, itineraries, activities, placeMap)
	data, err := export.PDF(summary)
	if err != nil {
		return nil, "", err
	}
	return data, fmt.Sprintf("%s.pdf", travel.ID), nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- payloads ---

func travelPayload(travel store.Travel, role string) map[string]any {
	return map[string]any{
		"id":          travel.ID,
		"title":       travel.Title,
		"description": travel.Description,
		"startsOn":    travel.StartsOn,
		"endsOn":      travel.EndsOn,
		"ownerId":     travel.OwnerID,
		"role":        role,
		"createdAt":   travel.CreatedAt,
	}
}

func itineraryPayload(itinerary store.Itinerary) map[string]any {
	return map[string]any{
		"id":       itinerary.ID,
		"travelId": itinerary.TravelID,
		"title":    itinerary.Title,
		"date":     itinerary.Date,
	}
}

func activityPayload(activity store.Activity) map[string]any {
	return map[string]any{
		"id":          activity.ID,
		"travelId":    activity.TravelID,
		"itineraryId": activity.ItineraryID,
		"placeId":     activity.PlaceID,
		"title":       activity.Title,
		"notes":       activity.Notes,
		"startsAt":    activity.StartsAt,
		"orderIndex":  activity.OrderIndex,
		"createdBy":   activity.CreatedBy,
	}
}

func placePayload(place store.Place) map[string]any {
	return map[string]any{
		"id":         place.ID,
		"name":       place.Name,
		"latitude":   place.Latitude,
		"longitude":  place.Longitude,
		"address":    place.Address,
		"externalId": place.ExternalID,
		"provider":   place.Provider,
	}
}

func placeSearchResult(place store.Place) search.Result {
	result := search.Result{
		ID:        place.ID,
		Name:      place.Name,
		Latitude:  place.Latitude,
		Longitude: place.Longitude,
	}
	if place.Address != nil {
		result.Address = *place.Address
	}
	if place.Provider != nil {
		result.Provider = *place.Provider
	}
	if place.ExternalID != nil {
		result.ExternalID = *place.ExternalID
	}
	return result
}

func commentPayload(comment store.Comment) map[string]any {
	return map[string]any{
		"id":         comment.ID,
		"activityId": comment.ActivityID,
		"authorId":   comment.AuthorID,
		"authorName": comment.AuthorName,
		"body":       comment.Body,
		"createdAt":  comment.CreatedAt,
	}
}

func todoPayload(todo store.Todo) map[string]any {
	return map[string]any{
		"id":         todo.ID,
		"travelId":   todo.TravelID,
		"title":      todo.Title,
		"done":       todo.Done,
		"assigneeId": todo.AssigneeID,
		"createdBy":  todo.CreatedBy,
	}
}

func reviewPayload(review store.PlaceReview) map[string]any {
	return map[string]any{
		"id":        review.ID,
		"placeId":   review.PlaceID,
		"userId":    review.UserID,
		"rating":    review.Rating,
		"body":      review.Body,
		"createdAt": review.CreatedAt,
	}
}
