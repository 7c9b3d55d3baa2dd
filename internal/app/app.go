package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"parley/internal/store"
	"parley/pkg/auth"
	"parley/pkg/domain"
)

// Number of topics shown on the home feed.
const homeTopicCount = 5

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	SessionTTL      time.Duration
	SessionSecret   string
	SessionStrategy string
	Store           store.Store
	Sessions        store.SessionStore
}

// App is the core application service wiring storage, sessions, and the
// forum's access rules together. Every operation takes the acting
// identity explicitly; there is no ambient request state.
type App struct {
	store    store.Store
	sessions store.SessionStore
}

// New constructs the application with database storage and session management.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		switch cfg.SessionStrategy {
		case "jwt":
			var err error
			sessionStore, err = store.NewJWTSessionStore(cfg.SessionSecret, cfg.SessionTTL)
			if err != nil {
				return nil, fmt.Errorf("init jwt session store: %w", err)
			}
		default:
			if strings.TrimSpace(cfg.RedisAddr) == "" {
				return nil, fmt.Errorf("redisAddr is required for redis session strategy")
			}
			sessionStore = store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionTTL)
		}
	}

	return &App{
		store:    dataStore,
		sessions: sessionStore,
	}, nil
}

// Register creates a user and issues a session token.
func (a *App) Register(email, name, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	name = strings.TrimSpace(name)
	if email == "" || name == "" || password == "" {
		return domain.User{}, "", ErrRegistrationInvalid
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and issues a session token. An unknown
// email short-circuits with the same error as a wrong password.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Logout invalidates a session token.
func (a *App) Logout(token string) error {
	if token == "" {
		return nil
	}
	return a.sessions.DeleteSession(token)
}

// IdentityFromToken resolves a session token to an identity. Any
// failure along the way yields the anonymous identity.
func (a *App) IdentityFromToken(token string) domain.Identity {
	if token == "" {
		return domain.Anonymous
	}
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.Anonymous
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found {
		return domain.Anonymous
	}
	return domain.Identity{User: user, Authenticated: true}
}

// HomeFeed is the payload of the home page listing.
type HomeFeed struct {
	Rooms        []domain.Room    `json:"rooms"`
	RoomCount    int              `json:"roomCount"`
	Topics       []domain.Topic   `json:"topics"`
	RoomMessages []domain.Message `json:"roomMessages"`
}

// Home composes the filtered room listing: rooms matching q across
// topic name, room name, and description; the filtered count; the
// first five topics; and messages of rooms whose topic name matches q.
// An empty q matches everything.
func (a *App) Home(q string) (HomeFeed, error) {
	rooms, err := a.store.SearchRooms(q)
	if err != nil {
		return HomeFeed{}, fmt.Errorf("search rooms: %w", err)
	}
	topics, err := a.store.ListTopics(homeTopicCount)
	if err != nil {
		return HomeFeed{}, fmt.Errorf("list topics: %w", err)
	}
	messages, err := a.store.SearchMessagesByTopic(q)
	if err != nil {
		return HomeFeed{}, fmt.Errorf("search messages: %w", err)
	}
	return HomeFeed{
		Rooms:        rooms,
		RoomCount:    len(rooms),
		Topics:       topics,
		RoomMessages: messages,
	}, nil
}

// SearchTopics returns topics whose name contains q.
func (a *App) SearchTopics(q string) ([]domain.Topic, error) {
	return a.store.SearchTopics(q)
}

// Activity returns every message, newest first.
func (a *App) Activity() ([]domain.Message, error) {
	return a.store.ListMessages()
}

// RoomView aggregates everything the room page shows.
type RoomView struct {
	Room         domain.Room      `json:"room"`
	Host         domain.User      `json:"host"`
	Topic        domain.Topic     `json:"topic"`
	Messages     []domain.Message `json:"messages"`
	Participants []domain.User    `json:"participants"`
}

// Room returns the room detail aggregation.
func (a *App) Room(roomID string) (RoomView, error) {
	room, ok, err := a.store.GetRoom(roomID)
	if err != nil {
		return RoomView{}, fmt.Errorf("fetch room: %w", err)
	}
	if !ok {
		return RoomView{}, ErrNotFound
	}
	host, _, err := a.store.GetUserByID(room.HostID)
	if err != nil {
		return RoomView{}, fmt.Errorf("fetch host: %w", err)
	}
	topic, _, err := a.store.GetTopicByID(room.TopicID)
	if err != nil {
		return RoomView{}, fmt.Errorf("fetch topic: %w", err)
	}
	messages, err := a.store.ListRoomMessages(roomID)
	if err != nil {
		return RoomView{}, fmt.Errorf("list messages: %w", err)
	}
	participants, err := a.store.GetUsersByIDs(room.Participants)
	if err != nil {
		return RoomView{}, fmt.Errorf("fetch participants: %w", err)
	}
	return RoomView{
		Room:         room,
		Host:         host,
		Topic:        topic,
		Messages:     messages,
		Participants: participants,
	}, nil
}

// GetRoom returns a single room for the read API.
func (a *App) GetRoom(roomID string) (domain.Room, error) {
	room, ok, err := a.store.GetRoom(roomID)
	if err != nil {
		return domain.Room{}, fmt.Errorf("fetch room: %w", err)
	}
	if !ok {
		return domain.Room{}, ErrNotFound
	}
	return room, nil
}

// ListRooms returns every room for the read API.
func (a *App) ListRooms() ([]domain.Room, error) {
	return a.store.SearchRooms("")
}

// ListTopics returns every topic, for room forms.
func (a *App) ListTopics() ([]domain.Topic, error) {
	return a.store.ListTopics(0)
}

// CreateRoom makes a new room owned by the actor, resolving the topic
// by get-or-create on its exact name.
func (a *App) CreateRoom(actor domain.Identity, topicName, name, description string) (domain.Room, error) {
	if !actor.Authenticated {
		return domain.Room{}, ErrUnauthorized
	}
	topic, err := a.store.UpsertTopic(topicName)
	if err != nil {
		return domain.Room{}, err
	}
	now := time.Now().UTC()
	room := domain.Room{
		ID:          uuid.NewString(),
		HostID:      actor.User.ID,
		TopicID:     topic.ID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.SaveRoom(room); err != nil {
		return domain.Room{}, fmt.Errorf("save room: %w", err)
	}
	return room, nil
}

// UpdateRoom mutates name, topic, and description of a room the actor
// hosts. Host and participants are untouched.
func (a *App) UpdateRoom(actor domain.Identity, roomID, topicName, name, description string) (domain.Room, error) {
	if !actor.Authenticated {
		return domain.Room{}, ErrUnauthorized
	}
	room, ok, err := a.store.GetRoom(roomID)
	if err != nil {
		return domain.Room{}, fmt.Errorf("fetch room: %w", err)
	}
	if !ok {
		return domain.Room{}, ErrNotFound
	}
	if room.HostID != actor.User.ID {
		return domain.Room{}, ErrForbidden
	}
	topic, err := a.store.UpsertTopic(topicName)
	if err != nil {
		return domain.Room{}, err
	}
	room.TopicID = topic.ID
	room.Name = name
	room.Description = description
	room.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveRoom(room); err != nil {
		return domain.Room{}, fmt.Errorf("save room: %w", err)
	}
	return room, nil
}

// DeleteRoom removes a room the actor hosts, cascading to its messages.
func (a *App) DeleteRoom(actor domain.Identity, roomID string) error {
	if !actor.Authenticated {
		return ErrUnauthorized
	}
	room, ok, err := a.store.GetRoom(roomID)
	if err != nil {
		return fmt.Errorf("fetch room: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if room.HostID != actor.User.ID {
		return ErrForbidden
	}
	return a.store.DeleteRoom(roomID)
}

// PostMessage appends a message to a room and adds the author to the
// room's participant set. Anonymous posting is rejected.
func (a *App) PostMessage(actor domain.Identity, roomID, body string) (domain.Message, error) {
	if !actor.Authenticated {
		return domain.Message{}, ErrUnauthorized
	}
	if _, ok, err := a.store.GetRoom(roomID); err != nil {
		return domain.Message{}, fmt.Errorf("fetch room: %w", err)
	} else if !ok {
		return domain.Message{}, ErrNotFound
	}
	msg := domain.Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		UserID:    actor.User.ID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.SaveMessage(msg); err != nil {
		return domain.Message{}, fmt.Errorf("save message: %w", err)
	}
	if err := a.store.AddParticipant(roomID, actor.User.ID); err != nil {
		return domain.Message{}, fmt.Errorf("add participant: %w", err)
	}
	return msg, nil
}

// DeleteMessage removes a message the actor authored.
func (a *App) DeleteMessage(actor domain.Identity, messageID string) error {
	if !actor.Authenticated {
		return ErrUnauthorized
	}
	msg, ok, err := a.store.GetMessage(messageID)
	if err != nil {
		return fmt.Errorf("fetch message: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if msg.UserID != actor.User.ID {
		return ErrForbidden
	}
	return a.store.DeleteMessage(messageID)
}

// GetMessage returns one message, for delete confirmation pages.
func (a *App) GetMessage(messageID string) (domain.Message, error) {
	msg, ok, err := a.store.GetMessage(messageID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("fetch message: %w", err)
	}
	if !ok {
		return domain.Message{}, ErrNotFound
	}
	return msg, nil
}

// ProfileView aggregates a user's page: hosted rooms, authored
// messages, and the global topic list.
type ProfileView struct {
	User     domain.User      `json:"user"`
	Rooms    []domain.Room    `json:"rooms"`
	Messages []domain.Message `json:"messages"`
	Topics   []domain.Topic   `json:"topics"`
}

// Profile returns the profile aggregation for any user.
func (a *App) Profile(userID string) (ProfileView, error) {
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return ProfileView{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return ProfileView{}, ErrNotFound
	}
	rooms, err := a.store.ListRoomsByHost(userID)
	if err != nil {
		return ProfileView{}, fmt.Errorf("list rooms: %w", err)
	}
	messages, err := a.store.ListMessagesByAuthor(userID)
	if err != nil {
		return ProfileView{}, fmt.Errorf("list messages: %w", err)
	}
	topics, err := a.store.ListTopics(0)
	if err != nil {
		return ProfileView{}, fmt.Errorf("list topics: %w", err)
	}
	return ProfileView{
		User:     user,
		Rooms:    rooms,
		Messages: messages,
		Topics:   topics,
	}, nil
}

// UpdateProfile lets the actor edit their own name, email, avatar, and
// bio. The target is always the actor, so no ownership check is needed
// beyond authentication.
func (a *App) UpdateProfile(actor domain.Identity, name, email, avatar, bio string) (domain.User, error) {
	if !actor.Authenticated {
		return domain.User{}, ErrUnauthorized
	}
	user := actor.User
	email = strings.TrimSpace(strings.ToLower(email))
	if email != "" && email != user.Email {
		existing, ok, err := a.store.GetUserByEmail(email)
		if err != nil {
			return domain.User{}, fmt.Errorf("check email: %w", err)
		}
		if ok && existing.ID != user.ID {
			return domain.User{}, ErrEmailAlreadyExists
		}
		user.Email = email
	}
	if name = strings.TrimSpace(name); name != "" {
		user.Name = name
	}
	user.Avatar = avatar
	user.Bio = bio
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}
