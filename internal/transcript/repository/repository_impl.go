package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bwmarrin/snowflake"
	transcriptdomain "github.com/inkwise/inkwise/internal/transcript/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() transcriptdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, transcript *transcriptdomain.Transcript) error {
	return db.WithContext(ctx).Create(transcript).Error
}

func (r *repo) FindOwned(ctx context.Context, db *gorm.DB, id, ownerID snowflake.ID) (*transcriptdomain.Transcript, error) {
	var transcript transcriptdomain.Transcript
	err := db.WithContext(ctx).First(&transcript, "id = ? AND owner_id = ?", id, ownerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transcript, nil
}

func (r *repo) ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]transcriptdomain.Transcript, error) {
	var transcripts []transcriptdomain.Transcript
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&transcripts).Error
	return transcripts, err
}

func (r *repo) DeleteOwned(ctx context.Context, db *gorm.DB, id, ownerID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM transcripts WHERE id = ? AND owner_id = ?`, id, ownerID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	err := db.WithContext(ctx).Exec(
		`DELETE FROM transcript_messages WHERE transcript_id = ?`, id,
	).Error
	return true, err
}

func (r *repo) AppendMessages(ctx context.Context, db *gorm.DB, transcriptID snowflake.ID, msgs []transcriptdomain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&msgs).Error
}

func (r *repo) ListMessages(ctx context.Context, db *gorm.DB, transcriptID snowflake.ID) ([]transcriptdomain.Message, error) {
	var msgs []transcriptdomain.Message
	err := db.WithContext(ctx).
		Where("transcript_id = ?", transcriptID).
		Order("position ASC").
		Find(&msgs).Error
	return msgs, err
}

func (r *repo) NextPosition(ctx context.Context, db *gorm.DB, transcriptID snowflake.ID) (int, error) {
	var max sql.NullInt64
	err := db.WithContext(ctx).Raw(
		`SELECT MAX(position) FROM transcript_messages WHERE transcript_id = ?`, transcriptID,
	).Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}
