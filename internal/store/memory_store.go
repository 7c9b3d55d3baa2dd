package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"parley/internal/util"
	"parley/pkg/domain"
)

// MemoryStore keeps all records in-process. It mirrors GormStore's
// filtering and ordering so tests exercise the same query semantics.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[string]domain.User
	email        map[string]string // email -> user ID
	topics       map[string]domain.Topic
	topicOrder   []string // topic IDs in creation order
	rooms        map[string]domain.Room
	participants map[string][]string // room ID -> user IDs in join order
	messages     map[string]domain.Message
	messageOrder []string // message IDs in creation order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]domain.User),
		email:        make(map[string]string),
		topics:       make(map[string]domain.Topic),
		rooms:        make(map[string]domain.Room),
		participants: make(map[string][]string),
		messages:     make(map[string]domain.Message),
	}
}

// SaveUser registers or replaces a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.users[u.ID]; ok && prev.Email != u.Email {
		delete(m.email, prev.Email)
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUsersByIDs returns users matching the IDs, oldest first.
func (m *MemoryStore) GetUsersByIDs(ids []string) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			res = append(res, u)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// UpsertTopic gets or creates a topic by exact name.
func (m *MemoryStore) UpsertTopic(name string) (domain.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.topicOrder {
		if t := m.topics[id]; t.Name == name {
			return t, nil
		}
	}
	topic := domain.Topic{
		ID:        util.NewID(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	m.topics[topic.ID] = topic
	m.topicOrder = append(m.topicOrder, topic.ID)
	return topic, nil
}

// GetTopicByID returns a topic by ID.
func (m *MemoryStore) GetTopicByID(id string) (domain.Topic, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.topics[id]
	return t, ok, nil
}

// ListTopics returns topics in creation order; limit <= 0 means all.
func (m *MemoryStore) ListTopics(limit int) ([]domain.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Topic, 0, len(m.topicOrder))
	for _, id := range m.topicOrder {
		if limit > 0 && len(res) == limit {
			break
		}
		res = append(res, m.topics[id])
	}
	return res, nil
}

// SearchTopics returns topics whose name contains q, case-insensitively.
func (m *MemoryStore) SearchTopics(q string) ([]domain.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Topic, 0, len(m.topicOrder))
	for _, id := range m.topicOrder {
		t := m.topics[id]
		if containsFold(t.Name, q) {
			res = append(res, t)
		}
	}
	return res, nil
}

// SaveRoom stores a new room or updates name/topic/description of an
// existing one, leaving host and participants untouched.
func (m *MemoryStore) SaveRoom(r domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.rooms[r.ID]; ok {
		prev.TopicID = r.TopicID
		prev.Name = r.Name
		prev.Description = r.Description
		prev.UpdatedAt = r.UpdatedAt
		m.rooms[r.ID] = prev
		return nil
	}
	r.Participants = nil
	m.rooms[r.ID] = r
	return nil
}

// GetRoom retrieves a room with its participant set.
func (m *MemoryStore) GetRoom(id string) (domain.Room, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return domain.Room{}, false, nil
	}
	r.Participants = append([]string(nil), m.participants[id]...)
	return r, true, nil
}

// SearchRooms filters rooms by topic name, room name, or description.
func (m *MemoryStore) SearchRooms(q string) ([]domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Room, 0, len(m.rooms))
	for id, r := range m.rooms {
		topicName := m.topics[r.TopicID].Name
		if containsFold(topicName, q) || containsFold(r.Name, q) || containsFold(r.Description, q) {
			r.Participants = append([]string(nil), m.participants[id]...)
			res = append(res, r)
		}
	}
	sortRoomsByUpdated(res)
	return res, nil
}

// ListRoomsByHost returns rooms hosted by the given user.
func (m *MemoryStore) ListRoomsByHost(hostID string) ([]domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Room, 0)
	for id, r := range m.rooms {
		if r.HostID == hostID {
			r.Participants = append([]string(nil), m.participants[id]...)
			res = append(res, r)
		}
	}
	sortRoomsByUpdated(res)
	return res, nil
}

// DeleteRoom removes the room, its messages, and its participant set.
func (m *MemoryStore) DeleteRoom(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, id)
	delete(m.participants, id)
	filtered := m.messageOrder[:0]
	for _, msgID := range m.messageOrder {
		if m.messages[msgID].RoomID == id {
			delete(m.messages, msgID)
			continue
		}
		filtered = append(filtered, msgID)
	}
	m.messageOrder = filtered
	return nil
}

// AddParticipant records membership; re-adding is a no-op.
func (m *MemoryStore) AddParticipant(roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.participants[roomID] {
		if existing == userID {
			return nil
		}
	}
	m.participants[roomID] = append(m.participants[roomID], userID)
	return nil
}

// SaveMessage records a message and tracks creation order.
func (m *MemoryStore) SaveMessage(msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.messages[msg.ID]; !exists {
		m.messageOrder = append(m.messageOrder, msg.ID)
	}
	m.messages[msg.ID] = msg
	return nil
}

// GetMessage retrieves a message by ID.
func (m *MemoryStore) GetMessage(id string) (domain.Message, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	return msg, ok, nil
}

// ListRoomMessages returns a room's messages in conversation order.
func (m *MemoryStore) ListRoomMessages(roomID string) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Message, 0)
	for _, id := range m.messageOrder {
		if msg := m.messages[id]; msg.RoomID == roomID {
			res = append(res, msg)
		}
	}
	return res, nil
}

// ListMessagesByAuthor returns the user's messages, newest first.
func (m *MemoryStore) ListMessagesByAuthor(userID string) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Message, 0)
	for i := len(m.messageOrder) - 1; i >= 0; i-- {
		if msg := m.messages[m.messageOrder[i]]; msg.UserID == userID {
			res = append(res, msg)
		}
	}
	return res, nil
}

// SearchMessagesByTopic filters messages by their room's topic name only.
func (m *MemoryStore) SearchMessagesByTopic(q string) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Message, 0)
	for i := len(m.messageOrder) - 1; i >= 0; i-- {
		msg := m.messages[m.messageOrder[i]]
		room, ok := m.rooms[msg.RoomID]
		if !ok {
			continue
		}
		if containsFold(m.topics[room.TopicID].Name, q) {
			res = append(res, msg)
		}
	}
	return res, nil
}

// ListMessages returns all messages, newest first.
func (m *MemoryStore) ListMessages() ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Message, 0, len(m.messageOrder))
	for i := len(m.messageOrder) - 1; i >= 0; i-- {
		res = append(res, m.messages[m.messageOrder[i]])
	}
	return res, nil
}

// DeleteMessage removes one message.
func (m *MemoryStore) DeleteMessage(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, id)
	filtered := m.messageOrder[:0]
	for _, msgID := range m.messageOrder {
		if msgID != id {
			filtered = append(filtered, msgID)
		}
	}
	m.messageOrder = filtered
	return nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func sortRoomsByUpdated(rooms []domain.Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
}

// MemorySessionStore keeps session tokens in-process, for tests and
// single-node development runs.
type MemorySessionStore struct {
	mu   sync.RWMutex
	sess map[string]string // token -> user ID
}

// NewMemorySessionStore initializes an empty session map.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sess: make(map[string]string)}
}

// NewSession creates an opaque token bound to the user ID.
func (m *MemorySessionStore) NewSession(userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := util.NewID()
	m.sess[token] = userID
	return token, nil
}

// GetUserIDByToken resolves a token to its user ID.
func (m *MemorySessionStore) GetUserIDByToken(token string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uid, ok := m.sess[token]
	return uid, ok, nil
}

// DeleteSession removes a token.
func (m *MemorySessionStore) DeleteSession(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sess, token)
	return nil
}
