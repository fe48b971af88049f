// Package domain contains persistence models for chat transcripts.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Role identifies a transcript turn's author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Transcript is a named, ordered chat history owned by one user.
type Transcript struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OwnerID   snowflake.ID `gorm:"not null;index"`
	Title     string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null"`
	UpdatedAt time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (Transcript) TableName() string { return "transcripts" }

// Message is one turn in a transcript. Position is the append order.
type Message struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	TranscriptID snowflake.ID `gorm:"not null;index"`
	Role         Role         `gorm:"type:text;not null"`
	Content      string       `gorm:"type:text;not null"`
	Position     int          `gorm:"not null"`
	CreatedAt    time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (Message) TableName() string { return "transcript_messages" }

// Turn is an unsaved message value.
type Turn struct {
	Role    Role
	Content string
}

// ErrNotFound covers both a missing transcript and an ownership miss; callers
// cannot distinguish the two, so transcripts never leak across users.
var ErrNotFound = errors.New("transcript not found")

// TitleMaxLen bounds titles derived from a prompt prefix.
const TitleMaxLen = 30

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, transcript *Transcript) error
	FindOwned(ctx context.Context, db *gorm.DB, id, ownerID snowflake.ID) (*Transcript, error)
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]Transcript, error)
	DeleteOwned(ctx context.Context, db *gorm.DB, id, ownerID snowflake.ID) (bool, error)
	AppendMessages(ctx context.Context, db *gorm.DB, transcriptID snowflake.ID, msgs []Message) error
	ListMessages(ctx context.Context, db *gorm.DB, transcriptID snowflake.ID) ([]Message, error)
	NextPosition(ctx context.Context, db *gorm.DB, transcriptID snowflake.ID) (int, error)
}

type Service interface {
	Create(ctx context.Context, ownerID snowflake.ID, title string) (*Transcript, error)
	Append(ctx context.Context, db *gorm.DB, id, ownerID snowflake.ID, turns ...Turn) error
	Get(ctx context.Context, id, ownerID snowflake.ID) (*Transcript, []Message, error)
	List(ctx context.Context, ownerID snowflake.ID) ([]Transcript, error)
	Delete(ctx context.Context, id, ownerID snowflake.ID) error
}

// TitleFromPrompt derives a transcript title from the first characters of a
// prompt, cutting on runes so multibyte input stays valid.
func TitleFromPrompt(prompt string) string {
	title := []rune(prompt)
	if len(title) > TitleMaxLen {
		title = title[:TitleMaxLen]
	}
	out := string(title)
	if out == "" {
		out = "New conversation"
	}
	return out
}
