package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"parley/internal/app"
	"parley/internal/store"
	"parley/pkg/domain"
)

func newTestServer(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()
	core, err := app.New(app.Config{
		Store:    store.NewMemoryStore(),
		Sessions: store.NewMemorySessionStore(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv := httptest.NewServer(New(Config{App: core}).Router())
	t.Cleanup(srv.Close)

	jar := newCookieJar(t)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return srv, client
}

func newCookieJar(t *testing.T) http.CookieJar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("new cookie jar: %v", err)
	}
	return jar
}

func postJSON(t *testing.T, client *http.Client, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func registerUser(t *testing.T, client *http.Client, baseURL, email, name string) domain.User {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/register", map[string]string{
		"email":    email,
		"name":     name,
		"password": "long enough password",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d", email, resp.StatusCode)
	}
	var out struct {
		User domain.User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return out.User
}

func createRoom(t *testing.T, client *http.Client, baseURL, topic, name, description string) domain.Room {
	t.Helper()
	resp := postJSON(t, client, baseURL+"/room/create", map[string]string{
		"topic":       topic,
		"name":        name,
		"description": description,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create room: status %d", resp.StatusCode)
	}
	var room domain.Room
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		t.Fatalf("decode room: %v", err)
	}
	return room
}

func TestAnonymousCreateRoomRedirectsToLogin(t *testing.T) {
	srv, client := newTestServer(t)

	resp := postJSON(t, client, srv.URL+"/room/create", map[string]string{
		"topic": "Games",
		"name":  "Chess Club",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/login" {
		t.Fatalf("redirect to %q, want /login", loc)
	}

	// Nothing was created.
	resp, err := client.Get(srv.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	defer resp.Body.Close()
	var rooms []domain.Room
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if len(rooms) != 0 {
		t.Fatalf("anonymous request created %d rooms", len(rooms))
	}
}

func TestRegisterLoginAndPostMessage(t *testing.T) {
	srv, client := newTestServer(t)
	registerUser(t, client, srv.URL, "a@x.com", "Alice")
	room := createRoom(t, client, srv.URL, "Games", "Chess Club", "weekly")

	resp := postJSON(t, client, srv.URL+"/room/"+room.ID, map[string]string{"body": "hi all"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("post message: status %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/room/"+room.ID {
		t.Fatalf("redirect to %q, want room view", loc)
	}

	resp, err := client.Get(srv.URL + "/room/" + room.ID)
	if err != nil {
		t.Fatalf("room view: %v", err)
	}
	defer resp.Body.Close()
	var view app.RoomView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode room view: %v", err)
	}
	if len(view.Messages) != 1 || view.Messages[0].Body != "hi all" {
		t.Fatalf("messages = %+v, want one 'hi all'", view.Messages)
	}
	if len(view.Participants) != 1 {
		t.Fatalf("participants = %d, want 1", len(view.Participants))
	}
}

func TestNonHostUpdateIsForbidden(t *testing.T) {
	srv, alice := newTestServer(t)
	registerUser(t, alice, srv.URL, "a@x.com", "Alice")
	room := createRoom(t, alice, srv.URL, "Games", "Chess Club", "original")

	bob := &http.Client{
		Jar: newCookieJar(t),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	registerUser(t, bob, srv.URL, "b@x.com", "Bob")

	resp := postJSON(t, bob, srv.URL+"/room/update/"+room.ID, map[string]string{
		"topic": "Hijack",
		"name":  "Bob's Room",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}

	resp, err := alice.Get(srv.URL + "/api/rooms/" + room.ID)
	if err != nil {
		t.Fatalf("fetch room: %v", err)
	}
	defer resp.Body.Close()
	var got domain.Room
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode room: %v", err)
	}
	if got.Name != "Chess Club" || got.Description != "original" {
		t.Fatalf("room mutated by non-host: %+v", got)
	}
}

func TestDeleteRoomConfirmFlow(t *testing.T) {
	srv, client := newTestServer(t)
	registerUser(t, client, srv.URL, "a@x.com", "Alice")
	room := createRoom(t, client, srv.URL, "Games", "Chess Club", "")

	// Step one: the confirmation context.
	resp, err := client.Get(srv.URL + "/room/delete/" + room.ID)
	if err != nil {
		t.Fatalf("confirm page: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm page status = %d", resp.StatusCode)
	}

	// Step two: the actual delete.
	resp = postJSON(t, client, srv.URL+"/room/delete/"+room.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("delete status = %d, want 302", resp.StatusCode)
	}

	resp, err = client.Get(srv.URL + "/api/rooms/" + room.ID)
	if err != nil {
		t.Fatalf("fetch deleted room: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted room lookup status = %d, want 404", resp.StatusCode)
	}
}

func TestAPIRoomNotFound(t *testing.T) {
	srv, client := newTestServer(t)

	resp, err := client.Get(srv.URL + "/api/rooms/no-such-room")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload["error"] == "" {
		t.Fatal("expected a structured error payload")
	}
}

func TestAPIRouteIndex(t *testing.T) {
	srv, client := newTestServer(t)

	resp, err := client.Get(srv.URL + "/api/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var routes []string
	if err := json.NewDecoder(resp.Body).Decode(&routes); err != nil {
		t.Fatalf("decode routes: %v", err)
	}
	if len(routes) != 3 {
		t.Fatalf("routes = %v, want 3 entries", routes)
	}
}

func TestHomeFilterOverHTTP(t *testing.T) {
	srv, client := newTestServer(t)
	registerUser(t, client, srv.URL, "a@x.com", "Alice")
	createRoom(t, client, srv.URL, "Games", "Chess Club", "")
	createRoom(t, client, srv.URL, "Cooking", "Sourdough", "")

	var feed app.HomeFeed
	resp, err := client.Get(srv.URL + "/?q=games")
	if err != nil {
		t.Fatalf("home: %v", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if feed.RoomCount != 1 || feed.Rooms[0].Name != "Chess Club" {
		t.Fatalf("filter returned %+v, want only Chess Club", feed.Rooms)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	srv, client := newTestServer(t)
	registerUser(t, client, srv.URL, "a@x.com", "Alice")

	resp, err := client.Get(srv.URL + "/logout")
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("logout status = %d, want 302", resp.StatusCode)
	}

	// Session is gone, so a gated endpoint redirects to login again.
	resp, err = client.Get(srv.URL + "/room/create")
	if err != nil {
		t.Fatalf("room create form: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302 to login", resp.StatusCode)
	}
}
