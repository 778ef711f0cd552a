package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"keyring/internal/sessions/events"
	"keyring/internal/sessions/repository"
	"keyring/internal/sessions/validator"
	toolsservice "keyring/internal/tools/service"
	"keyring/pkg/clock"
	"keyring/pkg/config"
	apperrors "keyring/pkg/errors"
	"keyring/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// SessionService owns the seat ledger: checkout, return, live
// availability, and overdue expiry.
type SessionService interface {
	Checkout(ctx context.Context, req *model.CheckoutRequest) (*model.CheckoutResponse, error)
	Return(ctx context.Context, req *model.ReturnRequest) (int64, error)
	ActiveCount(ctx context.Context, toolID string) (int64, error)
	MergedToolView(ctx context.Context, caller string, limit int, offset int64) ([]*model.ToolView, int64, error)
	ExpireOverdue(ctx context.Context, batchLimit int) (int64, error)
}

type sessionService struct {
	repo      repository.SessionRepository
	lockRepo  repository.CheckoutLockRepository
	tools     toolsservice.ToolService
	validator *validator.SessionValidator
	publisher events.Publisher
	clock     clock.Clock
	cfg       *config.Config
}

func NewSessionService(
	repo repository.SessionRepository,
	lockRepo repository.CheckoutLockRepository,
	tools toolsservice.ToolService,
	sessionValidator *validator.SessionValidator,
	publisher events.Publisher,
	clk clock.Clock,
	cfg *config.Config,
) SessionService {
	return &sessionService{
		repo:      repo,
		lockRepo:  lockRepo,
		tools:     tools,
		validator: sessionValidator,
		publisher: publisher,
		clock:     clk,
		cfg:       cfg,
	}
}

// Checkout allocates one seat on a tool. The capacity check and the
// session insert run inside a transaction, under an advisory per-tool
// lock, so two concurrent checkouts of the last seat cannot both win.
func (s *sessionService) Checkout(ctx context.Context, req *model.CheckoutRequest) (*model.CheckoutResponse, error) {
	if req.DurationMinutes <= 0 {
		return nil, apperrors.InvalidInput("Checkout duration must be positive")
	}
	if req.DurationMinutes > s.cfg.MaxCheckoutDurationMin {
		return nil, apperrors.InvalidInput(fmt.Sprintf(
			"Checkout duration cannot exceed %d minutes", s.cfg.MaxCheckoutDurationMin))
	}
	if err := s.validator.ValidateCheckout(req); err != nil {
		s.cfg.Log.Warn("Checkout validation failed", "error", err)
		return nil, apperrors.InvalidInput(fmt.Sprintf("Invalid checkout request: %v", err))
	}

	tool, err := s.tools.GetByID(ctx, req.ToolID)
	if err != nil {
		return nil, err
	}

	lockID, err := s.acquireToolLock(ctx, tool.ID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := s.releaseToolLock(ctx, lockID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release checkout lock", "lock_id", lockID, "error", releaseErr)
		}
	}()

	now := s.clock.Now()
	session := &model.Session{
		ToolID:          tool.ID,
		Holder:          req.Holder,
		Status:          model.SessionStatusActive,
		StartTime:       now,
		ExpectedEndTime: now.Add(time.Duration(req.DurationMinutes) * time.Minute),
	}

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		held, err := s.repo.CountActiveByToolAndHolder(sessCtx, tool.ID, req.Holder)
		if err != nil {
			return apperrors.Internal("Failed to check existing sessions", err)
		}
		if held > 0 {
			return apperrors.Rejected("You already hold an active session on this tool")
		}

		active, err := s.repo.CountActiveByTool(sessCtx, tool.ID)
		if err != nil {
			return apperrors.Internal("Failed to count active sessions", err)
		}
		if active >= int64(tool.Capacity) {
			return apperrors.Rejected("No seats available for this tool")
		}

		if err := s.repo.Create(sessCtx, session); err != nil {
			return apperrors.Internal("Failed to create session", err)
		}
		return nil
	})
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeRejected) {
			s.cfg.Log.Info("Checkout rejected",
				"tool_id", tool.ID,
				"holder", req.Holder,
				"reason", err.Error(),
			)
		} else {
			s.cfg.Log.Error("Failed to check out tool", "tool_id", tool.ID, "error", err)
		}
		return nil, err
	}

	creds, err := s.tools.OpenCredentials(tool)
	if err != nil {
		return nil, err
	}

	s.publisher.SessionCheckedOut(ctx, session)
	s.cfg.Log.Info("Tool checked out",
		"session_id", session.ID,
		"tool_id", tool.ID,
		"holder", req.Holder,
		"expected_end_time", session.ExpectedEndTime,
	)

	return &model.CheckoutResponse{
		Session:     session,
		Credentials: creds,
		LoginURL:    tool.LoginURL,
	}, nil
}

// Return completes every active session the holder has on the tool.
// Returning with no active session, or against an unknown tool,
// succeeds and completes nothing.
func (s *sessionService) Return(ctx context.Context, req *model.ReturnRequest) (int64, error) {
	if err := s.validator.ValidateReturn(req); err != nil {
		s.cfg.Log.Warn("Return validation failed", "error", err)
		return 0, apperrors.InvalidInput(fmt.Sprintf("Invalid return request: %v", err))
	}

	completedAt := s.clock.Now()
	var count int64
	err := s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		var txErr error
		count, txErr = s.repo.CompleteActive(sessCtx, req.ToolID, req.Holder, completedAt)
		if txErr != nil {
			return apperrors.Internal("Failed to return tool", txErr)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to return tool", "tool_id", req.ToolID, "error", err)
		return 0, err
	}

	if count > 0 {
		s.publisher.SessionReturned(ctx, req.ToolID, req.Holder, count, completedAt)
	}
	s.cfg.Log.Info("Tool returned",
		"tool_id", req.ToolID,
		"holder", req.Holder,
		"completed_sessions", count,
	)

	return count, nil
}

func (s *sessionService) ActiveCount(ctx context.Context, toolID string) (int64, error) {
	if _, err := s.tools.GetByID(ctx, toolID); err != nil {
		return 0, err
	}

	count, err := s.repo.CountActiveByTool(ctx, toolID)
	if err != nil {
		return 0, apperrors.Internal("Failed to count active sessions", err)
	}
	return count, nil
}

// MergedToolView joins the catalog page with live seat usage and the
// caller's own holdings. Anonymous callers get the listing with
// i_have_key false throughout. Available seats are clamped at zero so
// a tool whose capacity was lowered below its active count never
// reports a negative number.
func (s *sessionService) MergedToolView(ctx context.Context, caller string, limit int, offset int64) ([]*model.ToolView, int64, error) {
	var tools []*model.Tool
	var total int64
	var counts map[string]int64
	var held map[string]bool
	var errTools, errCounts, errHeld error
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		tools, total, errTools = s.tools.GetAll(ctx, limit, offset)
	}()

	go func() {
		defer wg.Done()
		counts, errCounts = s.repo.ActiveCountsByTool(ctx)
		if errCounts != nil {
			s.cfg.Log.Error("Failed to aggregate active sessions", "error", errCounts)
			errCounts = apperrors.Internal("Failed to load seat usage", errCounts)
		}
	}()

	go func() {
		defer wg.Done()
		if caller == "" {
			held = map[string]bool{}
			return
		}
		held, errHeld = s.repo.ActiveToolIDsByHolder(ctx, caller)
		if errHeld != nil {
			s.cfg.Log.Error("Failed to load caller sessions", "caller", caller, "error", errHeld)
			errHeld = apperrors.Internal("Failed to load caller sessions", errHeld)
		}
	}()

	wg.Wait()
	if errTools != nil {
		return nil, 0, errTools
	}
	if errCounts != nil {
		return nil, 0, errCounts
	}
	if errHeld != nil {
		return nil, 0, errHeld
	}

	views := make([]*model.ToolView, 0, len(tools))
	for _, tool := range tools {
		active := int(counts[tool.ID])
		views = append(views, &model.ToolView{
			ID:             tool.ID,
			Name:           tool.Name,
			Capacity:       tool.Capacity,
			LoginURL:       tool.LoginURL,
			IconURL:        tool.IconURL,
			ActiveSessions: active,
			AvailableSeats: max(tool.Capacity-active, 0),
			IHaveKey:       held[tool.ID],
		})
	}

	return views, total, nil
}

// ExpireOverdue completes active sessions whose expected end time has
// passed. It runs from the sweeper on an interval.
func (s *sessionService) ExpireOverdue(ctx context.Context, batchLimit int) (int64, error) {
	if batchLimit <= 0 {
		batchLimit = 100
	}

	now := s.clock.Now()
	var expired []*model.Session
	var count int64
	err := s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		var txErr error
		expired, txErr = s.repo.FindExpiredActive(sessCtx, now, batchLimit)
		if txErr != nil {
			return apperrors.Internal("Failed to find expired sessions", txErr)
		}
		if len(expired) == 0 {
			return nil
		}

		ids := make([]string, 0, len(expired))
		for _, session := range expired {
			ids = append(ids, session.ID)
		}

		count, txErr = s.repo.CompleteByIDs(sessCtx, ids, now)
		if txErr != nil {
			return apperrors.Internal("Failed to expire sessions", txErr)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to expire sessions", "error", err)
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	for _, session := range expired {
		s.publisher.SessionExpired(ctx, session, now)
	}
	s.cfg.Log.Info("Expired overdue sessions", "count", count)

	return count, nil
}

// acquireToolLock creates an advisory lock serializing checkouts of one
// tool. Returns a conflict error if another checkout holds the lock.
func (s *sessionService) acquireToolLock(ctx context.Context, toolID string) (string, error) {
	lockID := fmt.Sprintf("checkout_lock_%s", toolID)

	now := s.clock.Now()
	lock := &model.CheckoutLock{
		ID:        lockID,
		ToolID:    toolID,
		ExpiresAt: now.Add(s.cfg.CheckoutLockTTL),
		CreatedAt: now,
	}

	_, err := s.lockRepo.Create(ctx, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", apperrors.Conflict("This tool is currently being checked out by another request. Please try again.")
		}
		return "", apperrors.Internal("Failed to acquire checkout lock", err)
	}

	return lockID, nil
}

func (s *sessionService) releaseToolLock(ctx context.Context, lockID string) error {
	return s.lockRepo.Delete(ctx, lockID)
}
