package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"parley/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &TopicModel{}, &RoomModel{}, &RoomParticipantModel{}, &MessageModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "avatar", "bio", "password_hash", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUsersByIDs returns the users matching the given IDs, oldest first.
func (s *GormStore) GetUsersByIDs(ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []UserModel
	if err := s.db.Where("id IN ?", ids).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpsertTopic gets or creates a topic by exact name. The unique index on
// name makes the insert a no-op when the topic already exists; the row
// is then read back so concurrent creators all see the same topic.
func (s *GormStore) UpsertTopic(name string) (domain.Topic, error) {
	model := TopicModel{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&model).Error; err != nil {
		return domain.Topic{}, fmt.Errorf("upsert topic: %w", err)
	}
	var out TopicModel
	if err := s.db.First(&out, "name = ?", name).Error; err != nil {
		return domain.Topic{}, fmt.Errorf("read topic back: %w", err)
	}
	return topicFromModel(out), nil
}

// GetTopicByID returns a topic by ID.
func (s *GormStore) GetTopicByID(id string) (domain.Topic, bool, error) {
	var model TopicModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Topic{}, false, nil
		}
		return domain.Topic{}, false, err
	}
	return topicFromModel(model), true, nil
}

// ListTopics returns topics in creation order; limit <= 0 means all.
func (s *GormStore) ListTopics(limit int) ([]domain.Topic, error) {
	tx := s.db.Order("created_at ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var models []TopicModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	return topicsFromModels(models), nil
}

// SearchTopics returns topics whose name contains q, case-insensitively.
// Empty q matches every topic.
func (s *GormStore) SearchTopics(q string) ([]domain.Topic, error) {
	var models []TopicModel
	if err := s.db.
		Where("LOWER(name) LIKE ?", containsPattern(q)).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return topicsFromModels(models), nil
}

// SaveRoom stores or updates a room. Updates touch name, topic, and
// description only; host and participants are never overwritten here.
func (s *GormStore) SaveRoom(r domain.Room) error {
	model := roomToModel(r)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"topic_id", "name", "description", "updated_at"}),
	}).Create(&model).Error
}

// GetRoom retrieves a room with its participant set.
func (s *GormStore) GetRoom(id string) (domain.Room, bool, error) {
	var model RoomModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Room{}, false, nil
		}
		return domain.Room{}, false, err
	}
	participants, err := s.participantsForRooms([]string{id})
	if err != nil {
		return domain.Room{}, false, err
	}
	room := roomFromModel(model)
	room.Participants = participants[id]
	return room, true, nil
}

// SearchRooms returns rooms where q is a case-insensitive substring of
// the topic name, the room name, or the description, most recently
// updated first. Empty q matches every room.
func (s *GormStore) SearchRooms(q string) ([]domain.Room, error) {
	like := containsPattern(q)
	var models []RoomModel
	if err := s.db.
		Joins("JOIN topic_models ON topic_models.id = room_models.topic_id").
		Where("LOWER(topic_models.name) LIKE ? OR LOWER(room_models.name) LIKE ? OR LOWER(room_models.description) LIKE ?", like, like, like).
		Order("room_models.updated_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return s.roomsWithParticipants(models)
}

// ListRoomsByHost returns rooms hosted by the given user.
func (s *GormStore) ListRoomsByHost(hostID string) ([]domain.Room, error) {
	var models []RoomModel
	if err := s.db.
		Where("host_id = ?", hostID).
		Order("updated_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return s.roomsWithParticipants(models)
}

// DeleteRoom removes the room, its messages, and its participant rows.
func (s *GormStore) DeleteRoom(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&MessageModel{}, "room_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&RoomParticipantModel{}, "room_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&RoomModel{}, "id = ?", id).Error
	})
}

// AddParticipant records room membership; re-adding is a no-op.
func (s *GormStore) AddParticipant(roomID, userID string) error {
	row := RoomParticipantModel{
		RoomID:    roomID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// SaveMessage records a message.
func (s *GormStore) SaveMessage(m domain.Message) error {
	model := messageToModel(m)
	return s.db.Create(&model).Error
}

// GetMessage retrieves a message by ID.
func (s *GormStore) GetMessage(id string) (domain.Message, bool, error) {
	var model MessageModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Message{}, false, nil
		}
		return domain.Message{}, false, err
	}
	return messageFromModel(model), true, nil
}

// ListRoomMessages returns a room's messages in conversation order.
func (s *GormStore) ListRoomMessages(roomID string) ([]domain.Message, error) {
	return s.listMessages("created_at ASC", "room_id = ?", roomID)
}

// ListMessagesByAuthor returns messages written by the user, newest first.
func (s *GormStore) ListMessagesByAuthor(userID string) ([]domain.Message, error) {
	return s.listMessages("created_at DESC", "user_id = ?", userID)
}

// SearchMessagesByTopic returns messages from rooms whose topic name
// contains q, case-insensitively. The filter inspects the topic name
// only, never the message body.
func (s *GormStore) SearchMessagesByTopic(q string) ([]domain.Message, error) {
	var models []MessageModel
	if err := s.db.
		Joins("JOIN room_models ON room_models.id = message_models.room_id").
		Joins("JOIN topic_models ON topic_models.id = room_models.topic_id").
		Where("LOWER(topic_models.name) LIKE ?", containsPattern(q)).
		Order("message_models.created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return messagesFromModels(models), nil
}

// ListMessages returns all messages, newest first.
func (s *GormStore) ListMessages() ([]domain.Message, error) {
	return s.listMessages("created_at DESC")
}

// DeleteMessage removes one message.
func (s *GormStore) DeleteMessage(id string) error {
	return s.db.Delete(&MessageModel{}, "id = ?", id).Error
}

func (s *GormStore) listMessages(order string, conds ...any) ([]domain.Message, error) {
	var models []MessageModel
	tx := s.db.Order(order)
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	return messagesFromModels(models), nil
}

func (s *GormStore) roomsWithParticipants(models []RoomModel) ([]domain.Room, error) {
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	participants, err := s.participantsForRooms(ids)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Room, 0, len(models))
	for _, m := range models {
		room := roomFromModel(m)
		room.Participants = participants[m.ID]
		res = append(res, room)
	}
	return res, nil
}

func (s *GormStore) participantsForRooms(roomIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(roomIDs))
	if len(roomIDs) == 0 {
		return out, nil
	}
	var rows []RoomParticipantModel
	if err := s.db.
		Where("room_id IN ?", roomIDs).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.RoomID] = append(out[row.RoomID], row.UserID)
	}
	return out, nil
}

// containsPattern builds a lowercased LIKE pattern that matches rows
// containing q anywhere. Empty q yields "%%", which matches everything.
func containsPattern(q string) string {
	return "%" + strings.ToLower(q) + "%"
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Avatar:       u.Avatar,
		Bio:          u.Bio,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		Avatar:       m.Avatar,
		Bio:          m.Bio,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func topicFromModel(m TopicModel) domain.Topic {
	return domain.Topic{
		ID:        m.ID,
		Name:      m.Name,
		CreatedAt: m.CreatedAt,
	}
}

func topicsFromModels(models []TopicModel) []domain.Topic {
	res := make([]domain.Topic, 0, len(models))
	for _, m := range models {
		res = append(res, topicFromModel(m))
	}
	return res
}

func roomToModel(r domain.Room) RoomModel {
	return RoomModel{
		ID:          r.ID,
		HostID:      r.HostID,
		TopicID:     r.TopicID,
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func roomFromModel(m RoomModel) domain.Room {
	return domain.Room{
		ID:          m.ID,
		HostID:      m.HostID,
		TopicID:     m.TopicID,
		Name:        m.Name,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func messageToModel(m domain.Message) MessageModel {
	return MessageModel{
		ID:        m.ID,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:        m.ID,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}

func messagesFromModels(models []MessageModel) []domain.Message {
	res := make([]domain.Message, 0, len(models))
	for _, m := range models {
		res = append(res, messageFromModel(m))
	}
	return res
}
