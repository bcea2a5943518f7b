package app

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"wayfare/api/internal/authpw"
	"wayfare/api/internal/config"
	"wayfare/api/internal/store"
)

// memStore is an in-memory dataStore for service and handler tests.
type memStore struct {
	users      map[string]store.User
	sessions   map[string]refreshRecord
	revoked    map[string]bool
	travels    map[string]store.Travel
	members    map[string]map[string]string // travelID -> userID -> role
	itins      map[string]store.Itinerary
	activities map[string]store.Activity
	comments   map[string]store.Comment
	todos      map[string]store.Todo
	invites    map[string]store.Invite
	places     map[string]store.Place
	checkIns   map[string]store.CheckIn
	reviews    map[string]store.PlaceReview
}

type refreshRecord struct {
	userID    string
	expiresAt time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:      make(map[string]store.User),
		sessions:   make(map[string]refreshRecord),
		revoked:    make(map[string]bool),
		travels:    make(map[string]store.Travel),
		members:    make(map[string]map[string]string),
		itins:      make(map[string]store.Itinerary),
		activities: make(map[string]store.Activity),
		comments:   make(map[string]store.Comment),
		todos:      make(map[string]store.Todo),
		invites:    make(map[string]store.Invite),
		places:     make(map[string]store.Place),
		checkIns:   make(map[string]store.CheckIn),
		reviews:    make(map[string]store.PlaceReview),
	}
}

func (m *memStore) CreateUser(_ context.Context, user store.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	if user, ok := m.users[userID]; ok {
		return user, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) UpdateUserPassword(_ context.Context, userID, hash string) error {
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = hash
	m.users[userID] = user
	return nil
}

func (m *memStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	m.sessions[tokenHash] = refreshRecord{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	record, ok := m.sessions[tokenHash]
	if !ok || time.Now().After(record.expiresAt) {
		return store.User{}, sql.ErrNoRows
	}
	return m.users[record.userID], nil
}

func (m *memStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	delete(m.sessions, tokenHash)
	return nil
}

func (m *memStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	m.revoked[jti] = true
	return nil
}

func (m *memStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	return m.revoked[jti], nil
}

func (m *memStore) InsertTravel(_ context.Context, travel store.Travel) error {
	m.travels[travel.ID] = travel
	m.members[travel.ID] = map[string]string{travel.OwnerID: "owner"}
	return nil
}

func (m *memStore) GetTravel(_ context.Context, travelID string) (store.Travel, error) {
	if travel, ok := m.travels[travelID]; ok {
		return travel, nil
	}
	return store.Travel{}, sql.ErrNoRows
}

func (m *memStore) ListTravelsForUser(_ context.Context, userID string) ([]store.Travel, error) {
	var travels []store.Travel
	for travelID, roles := range m.members {
		if _, ok := roles[userID]; ok {
			travels = append(travels, m.travels[travelID])
		}
	}
	sort.Slice(travels, func(i, j int) bool { return travels[i].ID < travels[j].ID })
	return travels, nil
}

func (m *memStore) UpdateTravel(_ context.Context, travelID, title, description string, startsOn, endsOn *time.Time) error {
	travel, ok := m.travels[travelID]
	if !ok {
		return sql.ErrNoRows
	}
	travel.Title, travel.Description, travel.StartsOn, travel.EndsOn = title, description, startsOn, endsOn
	m.travels[travelID] = travel
	return nil
}

func (m *memStore) DeleteTravel(_ context.Context, travelID string) error {
	delete(m.travels, travelID)
	delete(m.members, travelID)
	return nil
}

func (m *memStore) GetMemberRole(_ context.Context, travelID, userID string) (string, error) {
	return m.members[travelID][userID], nil
}

func (m *memStore) UpsertMember(_ context.Context, travelID, userID, role string) error {
	if m.members[travelID] == nil {
		m.members[travelID] = make(map[string]string)
	}
	m.members[travelID][userID] = role
	return nil
}

func (m *memStore) ListMembers(_ context.Context, travelID string) ([]store.TravelMember, error) {
	var members []store.TravelMember
	for userID, role := range m.members[travelID] {
		members = append(members, store.TravelMember{TravelID: travelID, UserID: userID, Role: role})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

func (m *memStore) InsertItinerary(_ context.Context, itinerary store.Itinerary) error {
	m.itins[itinerary.ID] = itinerary
	return nil
}

func (m *memStore) GetItinerary(_ context.Context, itineraryID string) (store.Itinerary, error) {
	if itinerary, ok := m.itins[itineraryID]; ok {
		return itinerary, nil
	}
	return store.Itinerary{}, sql.ErrNoRows
}

func (m *memStore) ListItineraries(_ context.Context, travelID string) ([]store.Itinerary, error) {
	var itineraries []store.Itinerary
	for _, itinerary := range m.itins {
		if itinerary.TravelID == travelID {
			itineraries = append(itineraries, itinerary)
		}
	}
	sort.Slice(itineraries, func(i, j int) bool { return itineraries[i].ID < itineraries[j].ID })
	return itineraries, nil
}

func (m *memStore) UpdateItinerary(_ context.Context, itineraryID, title string, date *time.Time) error {
	itinerary, ok := m.itins[itineraryID]
	if !ok {
		return sql.ErrNoRows
	}
	itinerary.Title, itinerary.Date = title, date
	m.itins[itineraryID] = itinerary
	return nil
}

func (m *memStore) DeleteItinerary(_ context.Context, itineraryID string) error {
	itinerary, ok := m.itins[itineraryID]
	if !ok {
		return sql.ErrNoRows
	}
	// match the SQL behaviour: day activities re-append to the wishlist
	max, _, _ := m.MaxOrderIndex(context.Background(), itinerary.TravelID, nil)
	moved, _ := m.ListBucketActivities(context.Background(), itinerary.TravelID, &itineraryID)
	for i, activity := range moved {
		activity.ItineraryID = nil
		activity.OrderIndex = max + float64(i+1)*1000
		m.activities[activity.ID] = activity
	}
	delete(m.itins, itineraryID)
	return nil
}

func (m *memStore) InsertActivity(_ context.Context, activity store.Activity) error {
	m.activities[activity.ID] = activity
	return nil
}

func (m *memStore) GetActivity(_ context.Context, activityID string) (store.Activity, error) {
	if activity, ok := m.activities[activityID]; ok {
		return activity, nil
	}
	return store.Activity{}, sql.ErrNoRows
}

func sameBucket(activity store.Activity, travelID string, itineraryID *string) bool {
	if activity.TravelID != travelID {
		return false
	}
	if activity.ItineraryID == nil || itineraryID == nil {
		return activity.ItineraryID == nil && itineraryID == nil
	}
	return *activity.ItineraryID == *itineraryID
}

func (m *memStore) MaxOrderIndex(_ context.Context, travelID string, itineraryID *string) (float64, bool, error) {
	max, found := 0.0, false
	for _, activity := range m.activities {
		if sameBucket(activity, travelID, itineraryID) && (!found || activity.OrderIndex > max) {
			max, found = activity.OrderIndex, true
		}
	}
	return max, found, nil
}

func (m *memStore) ListBucketActivities(_ context.Context, travelID string, itineraryID *string) ([]store.Activity, error) {
	var activities []store.Activity
	for _, activity := range m.activities {
		if sameBucket(activity, travelID, itineraryID) {
			activities = append(activities, activity)
		}
	}
	sort.Slice(activities, func(i, j int) bool {
		if activities[i].OrderIndex != activities[j].OrderIndex {
			return activities[i].OrderIndex < activities[j].OrderIndex
		}
		return activities[i].ID < activities[j].ID
	})
	return activities, nil
}

func (m *memStore) ListTravelActivities(_ context.Context, travelID string) ([]store.Activity, error) {
	var activities []store.Activity
	for _, activity := range m.activities {
		if activity.TravelID == travelID {
			activities = append(activities, activity)
		}
	}
	sort.Slice(activities, func(i, j int) bool { return activities[i].ID < activities[j].ID })
	return activities, nil
}

func (m *memStore) UpdateActivity(_ context.Context, activityID, title, notes string, startsAt *time.Time, placeID *string) error {
	activity, ok := m.activities[activityID]
	if !ok {
		return sql.ErrNoRows
	}
	activity.Title, activity.Notes, activity.StartsAt, activity.PlaceID = title, notes, startsAt, placeID
	m.activities[activityID] = activity
	return nil
}

func (m *memStore) UpdateActivityOrder(_ context.Context, activityID string, orderIndex float64) error {
	activity, ok := m.activities[activityID]
	if !ok {
		return sql.ErrNoRows
	}
	activity.OrderIndex = orderIndex
	m.activities[activityID] = activity
	return nil
}

func (m *memStore) UpdateActivityBucket(_ context.Context, activityID string, itineraryID *string, orderIndex float64) error {
	activity, ok := m.activities[activityID]
	if !ok {
		return sql.ErrNoRows
	}
	activity.ItineraryID, activity.OrderIndex = itineraryID, orderIndex
	m.activities[activityID] = activity
	return nil
}

func (m *memStore) RenumberBucket(ctx context.Context, travelID string, itineraryID *string, step float64) error {
	activities, _ := m.ListBucketActivities(ctx, travelID, itineraryID)
	for i, activity := range activities {
		activity.OrderIndex = float64(i+1) * step
		m.activities[activity.ID] = activity
	}
	return nil
}

func (m *memStore) DeleteActivity(_ context.Context, activityID string) error {
	delete(m.activities, activityID)
	return nil
}

func (m *memStore) InsertComment(_ context.Context, comment store.Comment) error {
	if author, ok := m.users[comment.AuthorID]; ok {
		comment.AuthorName = author.DisplayName
	}
	m.comments[comment.ID] = comment
	return nil
}

func (m *memStore) ListComments(_ context.Context, activityID string) ([]store.Comment, error) {
	var comments []store.Comment
	for _, comment := range m.comments {
		if comment.ActivityID == activityID {
			comments = append(comments, comment)
		}
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].ID < comments[j].ID })
	return comments, nil
}

func (m *memStore) GetComment(_ context.Context, commentID string) (store.Comment, error) {
	if comment, ok := m.comments[commentID]; ok {
		return comment, nil
	}
	return store.Comment{}, sql.ErrNoRows
}

func (m *memStore) DeleteComment(_ context.Context, commentID string) error {
	delete(m.comments, commentID)
	return nil
}

func (m *memStore) InsertTodo(_ context.Context, todo store.Todo) error {
	m.todos[todo.ID] = todo
	return nil
}

func (m *memStore) GetTodo(_ context.Context, todoID string) (store.Todo, error) {
	if todo, ok := m.todos[todoID]; ok {
		return todo, nil
	}
	return store.Todo{}, sql.ErrNoRows
}

func (m *memStore) ListTodos(_ context.Context, travelID string) ([]store.Todo, error) {
	var todos []store.Todo
	for _, todo := range m.todos {
		if todo.TravelID == travelID {
			todos = append(todos, todo)
		}
	}
	sort.Slice(todos, func(i, j int) bool { return todos[i].ID < todos[j].ID })
	return todos, nil
}

func (m *memStore) UpdateTodo(_ context.Context, todoID, title string, done bool, assigneeID *string) error {
	todo, ok := m.todos[todoID]
	if !ok {
		return sql.ErrNoRows
	}
	todo.Title, todo.Done, todo.AssigneeID = title, done, assigneeID
	m.todos[todoID] = todo
	return nil
}

func (m *memStore) DeleteTodo(_ context.Context, todoID string) error {
	delete(m.todos, todoID)
	return nil
}

func (m *memStore) InsertInvite(_ context.Context, invite store.Invite) error {
	m.invites[invite.ID] = invite
	return nil
}

func (m *memStore) LookupInvite(_ context.Context, tokenHash string) (store.Invite, error) {
	for _, invite := range m.invites {
		if invite.TokenHash == tokenHash && invite.AcceptedBy == nil && time.Now().Before(invite.ExpiresAt) {
			return invite, nil
		}
	}
	return store.Invite{}, sql.ErrNoRows
}

func (m *memStore) MarkInviteAccepted(_ context.Context, inviteID, userID string, at time.Time) (bool, error) {
	invite, ok := m.invites[inviteID]
	if !ok || invite.AcceptedBy != nil {
		return false, nil
	}
	invite.AcceptedBy, invite.AcceptedAt = &userID, &at
	m.invites[inviteID] = invite
	return true, nil
}

func (m *memStore) ListInvites(_ context.Context, travelID string) ([]store.Invite, error) {
	var invites []store.Invite
	for _, invite := range m.invites {
		if invite.TravelID == travelID {
			invites = append(invites, invite)
		}
	}
	sort.Slice(invites, func(i, j int) bool { return invites[i].ID < invites[j].ID })
	return invites, nil
}

func (m *memStore) InsertPlace(_ context.Context, place store.Place) error {
	m.places[place.ID] = place
	return nil
}

func (m *memStore) GetPlace(_ context.Context, placeID string) (store.Place, error) {
	if place, ok := m.places[placeID]; ok {
		return place, nil
	}
	return store.Place{}, sql.ErrNoRows
}

func (m *memStore) FindPlaceByExternal(_ context.Context, externalID, provider string) (store.Place, error) {
	for _, place := range m.places {
		if place.ExternalID != nil && place.Provider != nil && *place.ExternalID == externalID && *place.Provider == provider {
			return place, nil
		}
	}
	return store.Place{}, sql.ErrNoRows
}

func (m *memStore) FindPlacesNear(_ context.Context, name string, latitude, longitude, epsilon float64) ([]store.Place, error) {
	var nearby []store.Place
	for _, place := range m.places {
		if place.Name != name {
			continue
		}
		if abs(place.Latitude-latitude) < epsilon && abs(place.Longitude-longitude) < epsilon {
			nearby = append(nearby, place)
		}
	}
	sort.Slice(nearby, func(i, j int) bool { return nearby[i].ID < nearby[j].ID })
	return nearby, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (m *memStore) InsertCheckIn(_ context.Context, checkIn store.CheckIn) error {
	m.checkIns[checkIn.ID] = checkIn
	return nil
}

func (m *memStore) ListCheckIns(_ context.Context, placeID string) ([]store.CheckIn, error) {
	var checkIns []store.CheckIn
	for _, checkIn := range m.checkIns {
		if checkIn.PlaceID == placeID {
			checkIns = append(checkIns, checkIn)
		}
	}
	sort.Slice(checkIns, func(i, j int) bool { return checkIns[i].ID < checkIns[j].ID })
	return checkIns, nil
}

func (m *memStore) InsertPlaceReview(_ context.Context, review store.PlaceReview) error {
	m.reviews[review.ID] = review
	return nil
}

func (m *memStore) ListPlaceReviews(_ context.Context, placeID string) ([]store.PlaceReview, error) {
	var reviews []store.PlaceReview
	for _, review := range m.reviews {
		if review.PlaceID == placeID {
			reviews = append(reviews, review)
		}
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].ID < reviews[j].ID })
	return reviews, nil
}

func (m *memStore) AwardCountsForUser(_ context.Context, userID string) (store.AwardCounts, error) {
	counts := store.AwardCounts{}
	distinctPlaces := make(map[string]struct{})
	for _, checkIn := range m.checkIns {
		if checkIn.UserID == userID {
			counts.CheckIns++
			distinctPlaces[checkIn.PlaceID] = struct{}{}
		}
	}
	counts.Places = len(distinctPlaces)
	for _, roles := range m.members {
		if _, ok := roles[userID]; ok {
			counts.Travels++
		}
	}
	for _, review := range m.reviews {
		if review.UserID == userID {
			counts.Reviews++
		}
	}
	return counts, nil
}

func (m *memStore) Ping(_ context.Context) error { return nil }

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		CORSOrigin: "http://localhost:5173",
	}
}

func newTestService(st *memStore) *Service {
	return New(testConfig(), st, Deps{})
}

func signUpUser(t *testing.T, svc *Service, email, name string) Session {
	t.Helper()
	session, err := svc.SignUp(context.Background(), authpw.SignUpRequest{
		Email: email, Password: "longenough", DisplayName: name,
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	return session
}

func TestSessionLifecycle(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()

	session := signUpUser(t, svc, "ada@example.com", "Ada")
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatal("signup should issue token pair")
	}

	parsed, err := svc.SessionFromToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	if parsed.UserID != session.UserID || parsed.UserName != "Ada" {
		t.Errorf("unexpected session %+v", parsed)
	}

	rotated, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Error("refresh token should rotate")
	}
	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Error("old refresh token should be revoked")
	}

	if err := svc.Logout(ctx, rotated, rotated.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := svc.SessionFromToken(ctx, rotated.Token); err == nil {
		t.Error("access token should be revoked after logout")
	}
	if _, err := svc.Refresh(ctx, rotated.RefreshToken); err == nil {
		t.Error("refresh token should be revoked after logout")
	}
}

func TestTravelRoles(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st)
	ctx := context.Background()

	owner := signUpUser(t, svc, "owner@example.com", "Owner")
	viewer := signUpUser(t, svc, "viewer@example.com", "Viewer")
	stranger := signUpUser(t, svc, "stranger@example.com", "Stranger")

	travel, err := svc.CreateTravel(ctx, owner.UserID, CreateTravelInput{Title: "Kyoto"})
	if err != nil {
		t.Fatalf("CreateTravel failed: %v", err)
	}
	travelID := travel["id"].(string)

	if err := st.UpsertMember(ctx, travelID, viewer.UserID, "viewer"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.GetTravelOverview(ctx, travelID, viewer.UserID); err != nil {
		t.Errorf("viewer should read the travel: %v", err)
	}
	if _, err := svc.CreateActivity(ctx, travelID, viewer.UserID, CreateActivityInput{Title: "X"}); err == nil {
		t.Error("viewer must not create activities")
	}

	// non-members see a 404, not a 403
	_, err = svc.GetTravelOverview(ctx, travelID, stranger.UserID)
	var domainErr *DomainError
	if !asDomainError(err, &domainErr) || domainErr.Status != 404 {
		t.Errorf("non-member should get 404, got %v", err)
	}

	if err := svc.DeleteTravel(ctx, travelID, viewer.UserID); err == nil {
		t.Error("viewer must not delete the travel")
	}
	if err := svc.DeleteTravel(ctx, travelID, owner.UserID); err != nil {
		t.Errorf("owner delete failed: %v", err)
	}
}

func asDomainError(err error, target **DomainError) bool {
	if err == nil {
		return false
	}
	de, ok := err.(*DomainError)
	if ok {
		*target = de
	}
	return ok
}

func TestActivityOrderingFlow(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st)
	ctx := context.Background()

	owner := signUpUser(t, svc, "owner@example.com", "Owner")
	travel, err := svc.CreateTravel(ctx, owner.UserID, CreateTravelInput{Title: "Kyoto"})
	if err != nil {
		t.Fatal(err)
	}
	travelID := travel["id"].(string)

	first, err := svc.CreateActivity(ctx, travelID, owner.UserID, CreateActivityInput{Title: "Temple"})
	if err != nil {
		t.Fatalf("CreateActivity failed: %v", err)
	}
	second, err := svc.CreateActivity(ctx, travelID, owner.UserID, CreateActivityInput{Title: "Market"})
	if err != nil {
		t.Fatal(err)
	}
	third, err := svc.CreateActivity(ctx, travelID, owner.UserID, CreateActivityInput{Title: "Garden"})
	if err != nil {
		t.Fatal(err)
	}

	if first["orderIndex"].(float64) != 1000 || second["orderIndex"].(float64) != 2000 || third["orderIndex"].(float64) != 3000 {
		t.Fatalf("appends should step by 1000: %v %v %v",
			first["orderIndex"], second["orderIndex"], third["orderIndex"])
	}

	// move Garden between Temple and Market
	firstID := first["id"].(string)
	secondID := second["id"].(string)
	thirdID := third["id"].(string)
	moved, err := svc.ReorderActivity(ctx, travelID, thirdID, owner.UserID, ReorderInput{AfterID: &firstID, BeforeID: &secondID})
	if err != nil {
		t.Fatalf("ReorderActivity failed: %v", err)
	}
	if moved["orderIndex"].(float64) != 1500 {
		t.Errorf("expected midpoint 1500, got %v", moved["orderIndex"])
	}

	// schedule Temple onto a day
	day, err := svc.CreateItinerary(ctx, travelID, owner.UserID, "Day 1", nil)
	if err != nil {
		t.Fatal(err)
	}
	dayID := day["id"].(string)
	scheduled, err := svc.MoveActivity(ctx, travelID, firstID, owner.UserID, MoveActivityInput{ItineraryID: &dayID})
	if err != nil {
		t.Fatalf("MoveActivity failed: %v", err)
	}
	if scheduled["itineraryId"].(*string) == nil || *scheduled["itineraryId"].(*string) != dayID {
		t.Errorf("activity should move to the day: %+v", scheduled)
	}
	if scheduled["orderIndex"].(float64) != 1000 {
		t.Errorf("first activity on a day should rank 1000, got %v", scheduled["orderIndex"])
	}

	// deleting the day sends Temple back to the end of the wishlist
	if err := svc.DeleteItinerary(ctx, travelID, dayID, owner.UserID); err != nil {
		t.Fatalf("DeleteItinerary failed: %v", err)
	}
	back, err := st.GetActivity(ctx, firstID)
	if err != nil {
		t.Fatal(err)
	}
	if back.ItineraryID != nil {
		t.Error("activity should be back on the wishlist")
	}
	wishlist, _ := st.ListBucketActivities(ctx, travelID, nil)
	if wishlist[len(wishlist)-1].ID != firstID {
		t.Errorf("returned activity should land at the end of the wishlist")
	}
}

func TestCreateActivityResolvesPlace(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st)
	ctx := context.Background()

	owner := signUpUser(t, svc, "owner@example.com", "Owner")
	travel, err := svc.CreateTravel(ctx, owner.UserID, CreateTravelInput{Title: "Kyoto"})
	if err != nil {
		t.Fatal(err)
	}
	travelID := travel["id"].(string)

	place := PlaceInput{Name: "Fushimi Inari", Latitude: 34.9671, Longitude: 135.7727}
	first, err := svc.CreateActivity(ctx, travelID, owner.UserID, CreateActivityInput{Title: "Shrine", Place: &place})
	if err != nil {
		t.Fatalf("CreateActivity failed: %v", err)
	}
	second, err := svc.CreateActivity(ctx, travelID, owner.UserID, CreateActivityInput{Title: "Shrine again", Place: &place})
	if err != nil {
		t.Fatal(err)
	}

	firstPlace := first["placeId"].(*string)
	secondPlace := second["placeId"].(*string)
	if firstPlace == nil || secondPlace == nil || *firstPlace != *secondPlace {
		t.Errorf("identical place payloads should resolve to one place: %v vs %v", firstPlace, secondPlace)
	}
	if len(st.places) != 1 {
		t.Errorf("expected one stored place, got %d", len(st.places))
	}
}

func TestInviteFlow(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st)
	ctx := context.Background()

	owner := signUpUser(t, svc, "owner@example.com", "Owner")
	guest := signUpUser(t, svc, "guest@example.com", "Guest")

	travel, err := svc.CreateTravel(ctx, owner.UserID, CreateTravelInput{Title: "Kyoto"})
	if err != nil {
		t.Fatal(err)
	}
	travelID := travel["id"].(string)

	invite, err := svc.CreateInvite(ctx, travelID, owner.UserID, "guest@example.com", "editor")
	if err != nil {
		t.Fatalf("CreateInvite failed: %v", err)
	}
	token := invite["token"].(string)
	if token == "" {
		t.Fatal("invite should return the raw token once")
	}

	if _, err := svc.CreateInvite(ctx, travelID, owner.UserID, "", "owner"); err == nil {
		t.Error("owner role must not be invitable")
	}

	accepted, err := svc.AcceptInvite(ctx, guest.UserID, token)
	if err != nil {
		t.Fatalf("AcceptInvite failed: %v", err)
	}
	if accepted["role"].(string) != "editor" {
		t.Errorf("guest should join as editor, got %v", accepted["role"])
	}
	role, _ := st.GetMemberRole(ctx, travelID, guest.UserID)
	if role != "editor" {
		t.Errorf("membership not recorded, role=%q", role)
	}

	// single use
	if _, err := svc.AcceptInvite(ctx, guest.UserID, token); err == nil {
		t.Error("invite token must be single-use")
	}
	if _, err := svc.AcceptInvite(ctx, guest.UserID, "bogus"); err == nil {
		t.Error("unknown token must be rejected")
	}
}

func TestCheckInsReviewsAndAwards(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st)
	ctx := context.Background()

	user := signUpUser(t, svc, "ada@example.com", "Ada")

	place, err := svc.ResolvePlace(ctx, PlaceInput{Name: "Fushimi Inari", Latitude: 34.9671, Longitude: 135.7727})
	if err != nil {
		t.Fatal(err)
	}
	placeID := place["id"].(string)

	if _, err := svc.CheckIn(ctx, user.UserID, placeID, "made it"); err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	if _, err := svc.CheckIn(ctx, user.UserID, "plc_missing", ""); err == nil {
		t.Error("check-in against unknown place should fail")
	}

	if _, err := svc.AddPlaceReview(ctx, user.UserID, placeID, 6, "too good"); err == nil {
		t.Error("rating above 5 should be rejected")
	}
	if _, err := svc.AddPlaceReview(ctx, user.UserID, placeID, 5, "stunning"); err != nil {
		t.Fatalf("AddPlaceReview failed: %v", err)
	}

	items, err := svc.AwardsForUser(ctx, user.UserID)
	if err != nil {
		t.Fatal(err)
	}
	var earned []string
	for _, award := range items {
		if award.Earned {
			earned = append(earned, award.Code)
		}
	}
	if len(earned) != 2 { // first check-in + first review
		t.Errorf("expected 2 earned awards, got %v", earned)
	}

	placeView, err := svc.GetPlace(ctx, placeID)
	if err != nil {
		t.Fatal(err)
	}
	if placeView["averageRating"].(float64) != 5 {
		t.Errorf("average rating should be 5, got %v", placeView["averageRating"])
	}
}

func TestExportTravelPDF(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st)
	ctx := context.Background()

	owner := signUpUser(t, svc, "owner@example.com", "Owner")
	travel, err := svc.CreateTravel(ctx, owner.UserID, CreateTravelInput{Title: "Kyoto"})
	if err != nil {
		t.Fatal(err)
	}
	travelID := travel["id"].(string)
	if _, err := svc.CreateActivity(ctx, travelID, owner.UserID, CreateActivityInput{Title: "Temple"}); err != nil {
		t.Fatal(err)
	}

	data, filename, err := svc.ExportTravelPDF(ctx, travelID, owner.UserID)
	if err != nil {
		t.Fatalf("ExportTravelPDF failed: %v", err)
	}
	if len(data) == 0 || filename != travelID+".pdf" {
		t.Errorf("unexpected export output (%d bytes, %q)", len(data), filename)
	}
}
