package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	commissiondomain "github.com/coachkit/settled/internal/commission/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  commissiondomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  commissiondomain.Repository
}

func NewService(p ServiceParam) commissiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("commission.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// CreateProfile implements domain.Service.
func (s *Service) CreateProfile(ctx context.Context, req commissiondomain.CreateProfileRequest) (*commissiondomain.CommissionProfile, error) {
	if err := req.First.Validate(); err != nil {
		return nil, err
	}
	if err := req.Second.Validate(); err != nil {
		return nil, err
	}
	// Mismatched units across tiers are allowed but worth a second look.
	if req.First.TimeUnit != req.Second.TimeUnit {
		s.log.Warn("commission tiers use different time units",
			zap.String("salesperson_id", req.SalespersonID.String()),
			zap.String("first_unit", string(req.First.TimeUnit)),
			zap.String("second_unit", string(req.Second.TimeUnit)),
		)
	}

	profile := &commissiondomain.CommissionProfile{
		ID:                 s.genID.Generate(),
		SalespersonID:      req.SalespersonID,
		Identifier:         strings.TrimSpace(req.Identifier),
		RecipientAccountID: strings.TrimSpace(req.RecipientAccountID),
		FirstPercentage:    req.First.Percentage,
		FirstAmount:        req.First.Amount,
		FirstTime:          req.First.Time,
		FirstTimeUnit:      req.First.TimeUnit,
		SecondPercentage:   req.Second.Percentage,
		SecondAmount:       req.Second.Amount,
		SecondTime:         req.Second.Time,
		SecondTimeUnit:     req.Second.TimeUnit,
		Active:             true,
	}
	if err := s.repo.Insert(ctx, s.db, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// GetByIdentifier implements domain.Service.
func (s *Service) GetByIdentifier(ctx context.Context, identifier string) (*commissiondomain.CommissionProfile, error) {
	profile, err := s.repo.FindByIdentifier(ctx, s.db, strings.TrimSpace(identifier))
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, commissiondomain.ErrProfileNotFound
	}
	return profile, nil
}

// DeactivateProfile implements domain.Service.
func (s *Service) DeactivateProfile(ctx context.Context, id snowflake.ID) error {
	profile, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if profile == nil {
		return commissiondomain.ErrProfileNotFound
	}
	return s.repo.Deactivate(ctx, s.db, id)
}
