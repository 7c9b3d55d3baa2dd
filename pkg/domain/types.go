package domain

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar,omitempty"`
	Bio          string    `json:"bio,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Topic is a deduplicated category label attached to rooms.
// Topics are created lazily the first time a room names them.
type Topic struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Room is a topic-tagged conversation space with one host and zero or
// more participants. Participants holds user IDs; a user becomes a
// participant by posting at least one message in the room and is never
// removed.
type Room struct {
	ID           string    `json:"id"`
	HostID       string    `json:"hostId"`
	TopicID      string    `json:"topicId"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Identity is the acting user context for a request. The zero value is
// the anonymous identity; handlers and app operations receive it
// explicitly instead of reading ambient request state.
type Identity struct {
	User          User
	Authenticated bool
}

// Anonymous is the identity of an unauthenticated request.
var Anonymous = Identity{}
