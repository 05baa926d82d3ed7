package models

import (
	"time"
)

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
)

type Message struct {
	Seq       uint64      `gorm:"primaryKey;autoIncrement"`
	ChannelID ID          `gorm:"type:varchar(24);index;not null"`
	SenderID  ID          `gorm:"type:varchar(24);not null"`
	Content   string      `gorm:"not null"`
	Kind      MessageKind `gorm:"default:'text'"`
	CreatedAt time.Time
}
