package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()
	st := newMemStore()
	svc := newTestService(st)
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)
	return server, st
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	payload := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func signUpHTTP(t *testing.T, server *httptest.Server, email, name string) (string, string) {
	t.Helper()
	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/signup", "", map[string]string{
		"email": email, "password": "longenough", "displayName": name,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup returned %d: %v", resp.StatusCode, payload)
	}
	return payload["token"].(string), payload["userId"].(string)
}

func TestHealthEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/health", "", nil)
	if resp.StatusCode != http.StatusOK || payload["ok"] != true {
		t.Errorf("health returned %d %v", resp.StatusCode, payload)
	}

	resp, payload = doJSON(t, http.MethodGet, server.URL+"/api/ready", "", nil)
	if resp.StatusCode != http.StatusOK || payload["status"] != "ready" {
		t.Errorf("ready returned %d %v", resp.StatusCode, payload)
	}
}

func TestRequestsWithoutSession(t *testing.T) {
	server, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/travels", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d %v", resp.StatusCode, payload)
	}

	resp, payload = doJSON(t, http.MethodGet, server.URL+"/api/session", "", nil)
	if resp.StatusCode != http.StatusOK || payload["authenticated"] != false {
		t.Errorf("anonymous session probe should be 200/false, got %d %v", resp.StatusCode, payload)
	}
}

func TestSignUpConflict(t *testing.T) {
	server, _ := newTestServer(t)
	signUpHTTP(t, server, "ada@example.com", "Ada")

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/signup", "", map[string]string{
		"email": "ada@example.com", "password": "longenough", "displayName": "Ada",
	})
	if resp.StatusCode != http.StatusConflict || payload["code"] != "EMAIL_EXISTS" {
		t.Errorf("duplicate signup should 409, got %d %v", resp.StatusCode, payload)
	}
}

func TestTravelPlanningOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	token, _ := signUpHTTP(t, server, "ada@example.com", "Ada")

	resp, travel := doJSON(t, http.MethodPost, server.URL+"/api/travels", token, map[string]any{
		"title": "Kyoto in Autumn",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create travel returned %d: %v", resp.StatusCode, travel)
	}
	travelID := travel["id"].(string)

	resp, first := doJSON(t, http.MethodPost, server.URL+"/api/travels/"+travelID+"/activities", token, map[string]any{
		"title": "Temple",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create activity returned %d: %v", resp.StatusCode, first)
	}
	resp, second := doJSON(t, http.MethodPost, server.URL+"/api/travels/"+travelID+"/activities", token, map[string]any{
		"title": "Market",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatal("second activity create failed")
	}

	// move Market before Temple
	resp, moved := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/travels/%s/activities/%s/reorder", server.URL, travelID, second["id"]), token,
		map[string]any{"beforeId": first["id"]})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reorder returned %d: %v", resp.StatusCode, moved)
	}
	if moved["orderIndex"].(float64) >= first["orderIndex"].(float64) {
		t.Errorf("moved activity should rank before the first: %v vs %v",
			moved["orderIndex"], first["orderIndex"])
	}

	// unknown bound id maps to 404
	resp, payload := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/travels/%s/activities/%s/reorder", server.URL, travelID, second["id"]), token,
		map[string]any{"afterId": "act_missing"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown bound should 404, got %d %v", resp.StatusCode, payload)
	}

	resp, overview := doJSON(t, http.MethodGet, server.URL+"/api/travels/"+travelID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("overview returned %d", resp.StatusCode)
	}
	wishlist := overview["wishlist"].([]any)
	if len(wishlist) != 2 {
		t.Fatalf("expected 2 wishlist activities, got %d", len(wishlist))
	}
}

func TestExportOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	token, _ := signUpHTTP(t, server, "ada@example.com", "Ada")

	_, travel := doJSON(t, http.MethodPost, server.URL+"/api/travels", token, map[string]any{"title": "Kyoto"})
	travelID := travel["id"].(string)

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/travels/"+travelID+"/export.pdf", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export returned %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/pdf") {
		t.Errorf("expected pdf content type, got %q", ct)
	}
}

func TestPlaceResolveAndReviewOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	token, _ := signUpHTTP(t, server, "ada@example.com", "Ada")

	resp, place := doJSON(t, http.MethodPost, server.URL+"/api/places/resolve", token, map[string]any{
		"name": "Fushimi Inari", "latitude": 34.9671, "longitude": 135.7727,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve returned %d: %v", resp.StatusCode, place)
	}
	placeID := place["id"].(string)

	// resolving the same candidate again returns the same id
	_, again := doJSON(t, http.MethodPost, server.URL+"/api/places/resolve", token, map[string]any{
		"name": "Fushimi Inari", "latitude": 34.9675, "longitude": 135.7725,
	})
	if again["id"].(string) != placeID {
		t.Errorf("nearby same-name candidate should dedupe to %s, got %v", placeID, again["id"])
	}

	// invalid latitude maps to 422
	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/places/resolve", token, map[string]any{
		"name": "Nowhere", "latitude": 123.0, "longitude": 0.0,
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("invalid coordinates should 422, got %d %v", resp.StatusCode, payload)
	}

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/places/"+placeID+"/reviews", token, map[string]any{
		"rating": 4, "body": "great walk",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("review returned %d", resp.StatusCode)
	}
	resp, checkIn := doJSON(t, http.MethodPost, server.URL+"/api/places/"+placeID+"/checkins", token, map[string]any{
		"note": "made it",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("check-in returned %d: %v", resp.StatusCode, checkIn)
	}

	resp, awardsPayload := doJSON(t, http.MethodGet, server.URL+"/api/me/awards", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("awards returned %d", resp.StatusCode)
	}
	if _, ok := awardsPayload["awards"].([]any); !ok {
		t.Errorf("awards payload missing: %v", awardsPayload)
	}
}
