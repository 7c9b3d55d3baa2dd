package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"parley/internal/app"
	"parley/internal/util"
	"parley/pkg/auth"
	"parley/pkg/domain"
)

const defaultCookieName = "parley_session"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	CookieName     string
	CookieSecure   bool
	TrustedProxies *util.TrustedProxies
}

// Server exposes the forum's HTTP endpoints.
type Server struct {
	app          *app.App
	mux          *http.ServeMux
	cookieName   string
	cookieSecure bool
	trusted      *util.TrustedProxies
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = defaultCookieName
	}
	s := &Server{
		app:          cfg.App,
		mux:          http.NewServeMux(),
		cookieName:   cookieName,
		cookieSecure: cfg.CookieSecure,
		trusted:      cfg.TrustedProxies,
	}
	s.routes()
	return s
}

// Router returns the configured handler with middleware applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(s.trusted, util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// pages
	s.mux.HandleFunc("/", s.handleHome)
	s.mux.HandleFunc("/login", s.handleLogin)
	s.mux.HandleFunc("/logout", s.handleLogout)
	s.mux.HandleFunc("/register", s.handleRegister)
	s.mux.HandleFunc("/room/", s.handleRoom)
	s.mux.HandleFunc("/profile/", s.handleProfile)
	s.mux.HandleFunc("/topics", s.handleTopics)
	s.mux.HandleFunc("/activity", s.handleActivity)

	// gated mutations
	s.mux.Handle("/room/create", s.authenticated(s.handleCreateRoom))
	s.mux.Handle("/room/update/", s.authenticated(s.handleUpdateRoom))
	s.mux.Handle("/room/delete/", s.authenticated(s.handleDeleteRoom))
	s.mux.Handle("/message/delete/", s.authenticated(s.handleDeleteMessage))
	s.mux.Handle("/profile/update", s.authenticated(s.handleUpdateProfile))

	// read API
	s.mux.HandleFunc("/api/", s.handleAPIRoutes)
	s.mux.HandleFunc("/api/rooms", s.handleAPIRooms)
	s.mux.HandleFunc("/api/rooms/", s.handleAPIRoomByID)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// identity resolves the acting identity from the session cookie or a
// bearer token. It never fails; a request without a valid session is
// simply anonymous.
func (s *Server) identity(r *http.Request) domain.Identity {
	if cookie, err := r.Cookie(s.cookieName); err == nil && cookie.Value != "" {
		if id := s.app.IdentityFromToken(cookie.Value); id.Authenticated {
			return id
		}
	}
	if token, ok := bearerToken(r); ok {
		return s.app.IdentityFromToken(token)
	}
	return domain.Anonymous
}

type authHandler func(http.ResponseWriter, *http.Request, domain.Identity)

// authenticated gates a handler on a logged-in identity. Anonymous
// requests are redirected to the login page without touching anything.
func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := s.identity(r)
		if !actor.Authenticated {
			s.audit(r, "authorize", "fail")
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next(w, r, actor)
	})
}

// home page: filtered room listing

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	feed, err := s.app.Home(r.URL.Query().Get("q"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

// auth lifecycle

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.identity(r).Authenticated {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"page": "login"})
	case http.MethodPost:
		var req credentialsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		user, token, err := s.app.Login(req.Email, req.Password)
		if err != nil {
			s.audit(r, "login", "fail", "reason", err.Error())
			writeAppError(w, err)
			return
		}
		s.audit(r, "login", "success", "user_id", user.ID)
		s.setSessionCookie(w, token)
		writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: user})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if cookie, err := r.Cookie(s.cookieName); err == nil {
		_ = s.app.Logout(cookie.Value)
	} else if token, ok := bearerToken(r); ok {
		_ = s.app.Logout(token)
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.identity(r).Authenticated {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"page": "register"})
	case http.MethodPost:
		var req registerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		user, token, err := s.app.Register(req.Email, req.Name, req.Password)
		if err != nil {
			s.audit(r, "register", "fail", "reason", err.Error())
			writeAppError(w, err)
			return
		}
		s.audit(r, "register", "success", "user_id", user.ID)
		s.setSessionCookie(w, token)
		writeJSON(w, http.StatusCreated, sessionResponse{Token: token, User: user})
	default:
		methodNotAllowed(w)
	}
}

// room pages

// handleRoom serves /room/{id}: GET shows the room, POST appends a
// message. Posting requires a logged-in identity.
func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/room/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		view, err := s.app.Room(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPost:
		actor := s.identity(r)
		if !actor.Authenticated {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		var req messageRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if _, err := s.app.PostMessage(actor, id, req.Body); err != nil {
			s.audit(r, "message.post", "fail", "room_id", id, "reason", err.Error())
			writeAppError(w, err)
			return
		}
		s.audit(r, "message.post", "success", "room_id", id, "user_id", actor.User.ID)
		http.Redirect(w, r, "/room/"+id, http.StatusFound)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request, actor domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		// Form context: the existing topics for the topic picker.
		topics, err := s.app.ListTopics()
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
	case http.MethodPost:
		var req roomRequest
		if !decodeBody(w, r, &req) {
			return
		}
		room, err := s.app.CreateRoom(actor, req.Topic, req.Name, req.Description)
		if err != nil {
			s.audit(r, "room.create", "fail", "reason", err.Error())
			writeAppError(w, err)
			return
		}
		s.audit(r, "room.create", "success", "room_id", room.ID, "user_id", actor.User.ID)
		writeJSON(w, http.StatusCreated, room)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpdateRoom(w http.ResponseWriter, r *http.Request, actor domain.Identity) {
	id := strings.TrimPrefix(r.URL.Path, "/room/update/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		view, err := s.app.Room(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if view.Room.HostID != actor.User.ID {
			writeAppError(w, app.ErrForbidden)
			return
		}
		topics, err := s.app.ListTopics()
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"room": view.Room, "topics": topics})
	case http.MethodPost:
		var req roomRequest
		if !decodeBody(w, r, &req) {
			return
		}
		room, err := s.app.UpdateRoom(actor, id, req.Topic, req.Name, req.Description)
		if err != nil {
			s.audit(r, "room.update", "fail", "room_id", id, "reason", err.Error())
			writeAppError(w, err)
			return
		}
		s.audit(r, "room.update", "success", "room_id", id, "user_id", actor.User.ID)
		writeJSON(w, http.StatusOK, room)
	default:
		methodNotAllowed(w)
	}
}

// handleDeleteRoom serves the two-step delete: GET returns the object
// to confirm, POST performs the deletion.
func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request, actor domain.Identity) {
	id := strings.TrimPrefix(r.URL.Path, "/room/delete/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		room, err := s.app.GetRoom(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if room.HostID != actor.User.ID {
			writeAppError(w, app.ErrForbidden)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"object": room})
	case http.MethodPost:
		if err := s.app.DeleteRoom(actor, id); err != nil {
			s.audit(r, "room.delete", "fail", "room_id", id, "reason", err.Error())
			writeAppError(w, err)
			return
		}
		s.audit(r, "room.delete", "success", "room_id", id, "user_id", actor.User.ID)
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request, actor domain.Identity) {
	id := strings.TrimPrefix(r.URL.Path, "/message/delete/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		msg, err := s.app.GetMessage(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if msg.UserID != actor.User.ID {
			writeAppError(w, app.ErrForbidden)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"object": msg})
	case http.MethodPost:
		if err := s.app.DeleteMessage(actor, id); err != nil {
			s.audit(r, "message.delete", "fail", "message_id", id, "reason", err.Error())
			writeAppError(w, err)
			return
		}
		s.audit(r, "message.delete", "success", "message_id", id, "user_id", actor.User.ID)
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		methodNotAllowed(w)
	}
}

// profile pages

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/profile/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	profile, err := s.app.Profile(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, actor domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		// Form context: the actor's current profile.
		writeJSON(w, http.StatusOK, actor.User)
	case http.MethodPost:
		var req profileRequest
		if !decodeBody(w, r, &req) {
			return
		}
		user, err := s.app.UpdateProfile(actor, req.Name, req.Email, req.Avatar, req.Bio)
		if err != nil {
			s.audit(r, "profile.update", "fail", "reason", err.Error())
			writeAppError(w, err)
			return
		}
		s.audit(r, "profile.update", "success", "user_id", user.ID)
		http.Redirect(w, r, "/profile/"+user.ID, http.StatusFound)
	default:
		methodNotAllowed(w)
	}
}

// listing pages

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	topics, err := s.app.SearchTopics(r.URL.Query().Get("q"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	messages, err := s.app.Activity()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roomMessages": messages})
}

// read API

var apiRoutes = []string{
	"GET /api",
	"GET /api/rooms",
	"GET /api/rooms/:id",
}

func (s *Server) handleAPIRoutes(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/" && r.URL.Path != "/api" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, apiRoutes)
}

func (s *Server) handleAPIRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rooms, err := s.app.ListRooms()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) handleAPIRoomByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	room, err := s.app.GetRoom(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// request/response shapes

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type roomRequest struct {
	Topic       string `json:"topic"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type messageRequest struct {
	Body string `json:"body"`
}

type profileRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
	Bio    string `json:"bio"`
}

// helpers

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, kv ...any) {
	logger := util.LoggerFromContext(r.Context())
	args := append([]any{"event", event, "outcome", outcome, "path", r.URL.Path}, kv...)
	logger.Info("audit", args...)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps app sentinels to HTTP statuses. Ownership failures
// surface as 403 rather than the legacy plain-text 200 body.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials),
		errors.Is(err, app.ErrEmailAlreadyExists),
		errors.Is(err, app.ErrRegistrationInvalid),
		errors.Is(err, auth.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
