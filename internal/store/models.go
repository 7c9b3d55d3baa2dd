package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string `gorm:"not null"`
	Avatar       string
	Bio          string
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type TopicModel struct {
	ID        string    `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type RoomModel struct {
	ID          string `gorm:"primaryKey"`
	HostID      string `gorm:"not null;index"`
	TopicID     string `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Description string
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null;index"`
}

// RoomParticipantModel is the room<->user membership join row. The
// composite primary key makes concurrent duplicate adds collapse to a
// single row.
type RoomParticipantModel struct {
	RoomID    string    `gorm:"primaryKey"`
	UserID    string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

type MessageModel struct {
	ID        string    `gorm:"primaryKey"`
	RoomID    string    `gorm:"not null;index"`
	UserID    string    `gorm:"not null;index"`
	Body      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}
