package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	transcriptdomain "github.com/inkwise/inkwise/internal/transcript/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  transcriptdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  transcriptdomain.Repository
}

func NewService(p Params) transcriptdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("transcript.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, ownerID snowflake.ID, title string) (*transcriptdomain.Transcript, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New conversation"
	}

	now := time.Now().UTC()
	transcript := &transcriptdomain.Transcript{
		ID:        s.genID.Generate(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, transcript); err != nil {
		return nil, err
	}
	return transcript, nil
}

// Append adds turns to an owned transcript in order, after all prior turns.
// The db handle is explicit so finalization can append on its own scope.
func (s *Service) Append(ctx context.Context, db *gorm.DB, id, ownerID snowflake.ID, turns ...transcriptdomain.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	transcript, err := s.repo.FindOwned(ctx, db, id, ownerID)
	if err != nil {
		return err
	}
	if transcript == nil {
		return transcriptdomain.ErrNotFound
	}

	position, err := s.repo.NextPosition(ctx, db, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	msgs := make([]transcriptdomain.Message, 0, len(turns))
	for i, turn := range turns {
		msgs = append(msgs, transcriptdomain.Message{
			ID:           s.genID.Generate(),
			TranscriptID: id,
			Role:         turn.Role,
			Content:      turn.Content,
			Position:     position + i,
			CreatedAt:    now,
		})
	}
	return s.repo.AppendMessages(ctx, db, id, msgs)
}

func (s *Service) Get(ctx context.Context, id, ownerID snowflake.ID) (*transcriptdomain.Transcript, []transcriptdomain.Message, error) {
	transcript, err := s.repo.FindOwned(ctx, s.db, id, ownerID)
	if err != nil {
		return nil, nil, err
	}
	if transcript == nil {
		return nil, nil, transcriptdomain.ErrNotFound
	}

	msgs, err := s.repo.ListMessages(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	return transcript, msgs, nil
}

func (s *Service) List(ctx context.Context, ownerID snowflake.ID) ([]transcriptdomain.Transcript, error) {
	return s.repo.ListByOwner(ctx, s.db, ownerID)
}

func (s *Service) Delete(ctx context.Context, id, ownerID snowflake.ID) error {
	deleted, err := s.repo.DeleteOwned(ctx, s.db, id, ownerID)
	if err != nil {
		return err
	}
	if !deleted {
		return transcriptdomain.ErrNotFound
	}
	return nil
}
