package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	splitpaydomain "github.com/coachkit/settled/internal/splitpay/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  splitpaydomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  splitpaydomain.Repository
}

func NewService(p ServiceParam) splitpaydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("splitpay.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// Create implements domain.Service. The sum check and the insert run in one
// transaction so concurrent creates cannot push a merchant past 100.
func (s *Service) Create(ctx context.Context, req splitpaydomain.CreateSplitRequest) (*splitpaydomain.SplitPayment, error) {
	if req.Split.LessThanOrEqual(decimal.Zero) || req.Split.GreaterThan(hundred) {
		return nil, splitpaydomain.ErrSplitOutOfRange
	}

	split := &splitpaydomain.SplitPayment{
		ID:                 s.genID.Generate(),
		MerchantID:         req.MerchantID,
		RecipientAccountID: strings.TrimSpace(req.RecipientAccountID),
		Email:              strings.TrimSpace(req.Email),
		Split:              req.Split,
		CommissionID:       req.CommissionID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.ListByMerchant(ctx, tx, req.MerchantID)
		if err != nil {
			return err
		}
		total := req.Split
		for _, e := range existing {
			total = total.Add(e.Split)
		}
		if total.GreaterThan(hundred) {
			return splitpaydomain.ErrSplitSumExceeds
		}
		return s.repo.Insert(ctx, tx, split)
	})
	if err != nil {
		return nil, err
	}
	return split, nil
}

// ListByMerchant implements domain.Service.
func (s *Service) ListByMerchant(ctx context.Context, merchantID snowflake.ID) ([]splitpaydomain.SplitPayment, error) {
	return s.repo.ListByMerchant(ctx, s.db, merchantID)
}

// Delete implements domain.Service.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	split, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if split == nil {
		return splitpaydomain.ErrSplitNotFound
	}
	return s.repo.SoftDelete(ctx, s.db, id)
}
