package intent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	xerrors "IntentWise-Chain/internal/errors"
	"IntentWise-Chain/pkg/logger"
)

// CreateRequest 描述通过 API 直接创建意图的载荷。
type CreateRequest struct {
	ID            string    `json:"id,omitempty"`
	WalletAddress string    `json:"wallet_address"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Action        Action    `json:"action"`
	Token         string    `json:"token"`
	Amount        string    `json:"amount,omitempty"`
	Frequency     Frequency `json:"frequency,omitempty"`
	Condition     Condition `json:"condition,omitempty"`
	TargetChain   string    `json:"target_chain,omitempty"`
}

// Service 负责意图的创建、查询与维护。执行逻辑在编排器内。
type Service struct {
	store Store
}

// NewService 构造意图服务。
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create 校验并保存一条新意图。
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*Intent, error) {
	if s == nil || s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "意图服务未初始化")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "缺少用户标识")
	}

	it := &Intent{
		ID:            strings.TrimSpace(req.ID),
		UserID:        userID,
		WalletAddress: strings.TrimSpace(req.WalletAddress),
		Title:         strings.TrimSpace(req.Title),
		Description:   strings.TrimSpace(req.Description),
		Action:        Action(strings.ToUpper(strings.TrimSpace(string(req.Action)))),
		Token:         strings.ToUpper(strings.TrimSpace(req.Token)),
		Frequency:     Frequency(strings.ToUpper(strings.TrimSpace(string(req.Frequency)))),
		Condition:     req.Condition,
		TargetChain:   req.TargetChain,
		IsActive:      true,
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if amount := strings.TrimSpace(req.Amount); amount != "" {
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, xerrors.New(CodeIntentValidation, "金额不是合法的十进制数: "+amount)
		}
		it.Amount = decimal.NewNullDecimal(value)
	}
	if err := it.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.CreateIntent(ctx, it); err != nil {
		return nil, err
	}
	logger.Audit().Info("意图已创建",
		slog.String("intent_id", it.ID),
		slog.String("user_id", it.UserID),
		slog.String("action", string(it.Action)),
		slog.String("token", it.Token),
		slog.String("frequency", string(it.Frequency)),
	)
	return s.store.GetIntent(ctx, it.ID)
}

// Get 返回意图。
func (s *Service) Get(ctx context.Context, id string) (*Intent, error) {
	if s == nil || s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "意图存储未初始化")
	}
	return s.store.GetIntent(ctx, id)
}

// List 返回符合过滤条件的意图列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Intent, error) {
	if s == nil || s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "意图存储未初始化")
	}
	return s.store.ListIntents(ctx, BuildListOptions(opts))
}

// Update 应用部分更新。
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Intent, error) {
	if s == nil || s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "意图存储未初始化")
	}
	updated, err := s.store.UpdateIntent(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if patch.IsActive != nil {
		logger.Audit().Info("意图启停状态变更",
			slog.String("intent_id", id),
			slog.Bool("is_active", *patch.IsActive),
		)
	}
	return updated, nil
}

// Delete 删除意图。
func (s *Service) Delete(ctx context.Context, id string) error {
	if s == nil || s.store == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "意图存储未初始化")
	}
	if err := s.store.DeleteIntent(ctx, id); err != nil {
		return err
	}
	logger.Audit().Info("意图已删除", slog.String("intent_id", id))
	return nil
}

// Records 返回意图的执行记录。
func (s *Service) Records(ctx context.Context, intentID string) ([]*ExecutionRecord, error) {
	if s == nil || s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "意图存储未初始化")
	}
	if _, err := s.store.GetIntent(ctx, intentID); err != nil {
		return nil, err
	}
	return s.store.ListRecords(ctx, intentID)
}

// Receipts 返回用户累积的执行凭证。
func (s *Service) Receipts(ctx context.Context, userID string) ([]*Receipt, error) {
	if s == nil || s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "意图存储未初始化")
	}
	return s.store.ListReceipts(ctx, userID)
}

// Stats 返回用户的仪表盘统计。
func (s *Service) Stats(ctx context.Context, userID string) (DashboardStats, error) {
	if s == nil || s.store == nil {
		return DashboardStats{}, xerrors.New(xerrors.CodeInitializationFailure, "意图存储未初始化")
	}
	return s.store.Stats(ctx, userID)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s != nil && s.store != nil {
		return s.store.Close()
	}
	return nil
}
