package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/inkwise/inkwise/internal/auth/password"
	"github.com/inkwise/inkwise/internal/config"
	userdomain "github.com/inkwise/inkwise/internal/user/domain"
	"github.com/inkwise/inkwise/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    userdomain.Repository
	Catalog *config.PlanCatalogHolder
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    userdomain.Repository
	catalog *config.PlanCatalogHolder
}

func NewService(p ServiceParam) userdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("user.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		catalog: p.Catalog,
	}
}

// Register creates a free-tier account seeded with the catalog's starting balance.
func (s *Service) Register(ctx context.Context, email, pass string) (*userdomain.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(pass) == "" {
		return nil, userdomain.ErrInvalidCredentials
	}

	hash, err := password.Hash(pass)
	if err != nil {
		return nil, err
	}

	allotment := int64(10)
	if plan, ok := s.catalog.FindByTier(string(userdomain.TierFree)); ok {
		allotment = plan.Allotment
	}

	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		PasswordHash: hash,
		PlanTier:     userdomain.TierFree,
		Credits:      allotment,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Insert(ctx, s.db, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, userdomain.ErrEmailTaken
		}
		return nil, err
	}

	s.log.Info("user registered", zap.String("user_id", user.ID.String()))
	return user, nil
}

func (s *Service) Authenticate(ctx context.Context, email, pass string) (*userdomain.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, userdomain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !password.Verify(pass, user.PasswordHash) {
		return nil, userdomain.ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*userdomain.User, error) {
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrNotFound
	}
	return user, nil
}

// UpdateProfile changes email and, when non-empty, the password.
func (s *Service) UpdateProfile(ctx context.Context, id snowflake.ID, email, pass string) (*userdomain.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	email, err = normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	if email != user.Email {
		existing, err := s.repo.FindByEmail(ctx, s.db, email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, userdomain.ErrEmailTaken
		}
		user.Email = email
	}

	if strings.TrimSpace(pass) != "" {
		hash, err := password.Hash(pass)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	user.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, userdomain.ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", userdomain.ErrInvalidCredentials
	}
	return email, nil
}
