package store

import "parley/pkg/domain"

// Store defines persistence operations for users, topics, rooms, and
// messages. Lookups return (zero, false, nil) when the record does not
// exist so callers can distinguish "not found" from store failures.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	GetUsersByIDs(ids []string) ([]domain.User, error)
	HasUserEmail(email string) (bool, error)

	// topics
	// UpsertTopic gets or creates a topic by exact name. Two concurrent
	// upserts of the same new name must resolve to one row; the unique
	// index on name, not application locking, enforces that.
	UpsertTopic(name string) (domain.Topic, error)
	GetTopicByID(id string) (domain.Topic, bool, error)
	ListTopics(limit int) ([]domain.Topic, error)
	SearchTopics(q string) ([]domain.Topic, error)

	// rooms
	SaveRoom(domain.Room) error
	GetRoom(id string) (domain.Room, bool, error)
	SearchRooms(q string) ([]domain.Room, error)
	ListRoomsByHost(hostID string) ([]domain.Room, error)
	DeleteRoom(id string) error
	// AddParticipant is idempotent: adding an existing participant is a no-op.
	AddParticipant(roomID, userID string) error

	// messages
	SaveMessage(domain.Message) error
	GetMessage(id string) (domain.Message, bool, error)
	ListRoomMessages(roomID string) ([]domain.Message, error)
	ListMessagesByAuthor(userID string) ([]domain.Message, error)
	SearchMessagesByTopic(q string) ([]domain.Message, error)
	ListMessages() ([]domain.Message, error)
	DeleteMessage(id string) error
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
