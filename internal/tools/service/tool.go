package service

import (
	"context"
	"errors"
	"sync"

	toolserrors "keyring/internal/tools/errors"
	"keyring/internal/tools/repository"
	"keyring/internal/tools/validator"
	"keyring/pkg/config"
	apperrors "keyring/pkg/errors"
	"keyring/pkg/model"
	"keyring/pkg/sanitizer"
	"keyring/pkg/sealer"
)

// ToolService is the catalog: tool definitions, capacity, sealed
// credentials. The session ledger reads through it; only the admin
// path writes.
type ToolService interface {
	Create(ctx context.Context, tool *model.Tool, creds *model.Credentials) (*model.Tool, error)
	GetByID(ctx context.Context, id string) (*model.Tool, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Tool, int64, error)
	OpenCredentials(tool *model.Tool) (*model.Credentials, error)
}

type toolService struct {
	repo      repository.ToolRepository
	validator *validator.ToolValidator
	sealer    *sealer.Sealer
	cfg       *config.Config
}

func NewToolService(
	repo repository.ToolRepository,
	toolValidator *validator.ToolValidator,
	credSealer *sealer.Sealer,
	cfg *config.Config,
) ToolService {
	return &toolService{
		repo:      repo,
		validator: toolValidator,
		sealer:    credSealer,
		cfg:       cfg,
	}
}

func (s *toolService) Create(ctx context.Context, tool *model.Tool, creds *model.Credentials) (*model.Tool, error) {
	s.sanitize(tool)

	if err := s.validator.Validate(tool); err != nil {
		s.cfg.Log.Warn("Tool validation failed", "error", err)
		return nil, apperrors.Validation("Tool validation failed", map[string]any{"error": err.Error()})
	}
	if creds == nil {
		return nil, apperrors.InvalidInput("Credentials are required")
	}
	if err := s.validator.ValidateCredentials(creds); err != nil {
		s.cfg.Log.Warn("Credential validation failed", "error", err)
		return nil, apperrors.Validation("Credential validation failed", map[string]any{"error": err.Error()})
	}

	sealed, err := s.sealer.SealCredentials(creds.Username, creds.Password)
	if err != nil {
		return nil, apperrors.Internal("Failed to seal credentials", err)
	}
	tool.SealedCredentials = sealed

	if err := s.repo.Create(ctx, tool); err != nil {
		s.cfg.Log.Error("Failed to create tool", "error", err)
		return nil, apperrors.Internal("Failed to create tool", err)
	}

	s.cfg.Log.Info("Tool created successfully",
		"id", tool.ID,
		"name", tool.Name,
		"capacity", tool.Capacity,
	)
	return tool, nil
}

func (s *toolService) GetByID(ctx context.Context, id string) (*model.Tool, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Tool ID cannot be empty")
	}

	tool, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, toolserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Tool", id)
		}
		if errors.Is(err, toolserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid tool ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve tool", err)
	}

	return tool, nil
}

func (s *toolService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Tool, int64, error) {
	var count int64
	var tools []*model.Tool
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count tools", "error", errCount)
			errCount = apperrors.Internal("Failed to count tools", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		tools, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list tools", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve tools", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return tools, count, nil
}

// OpenCredentials unseals a tool's stored credentials. Only the
// checkout path may call this; listings never carry credentials.
func (s *toolService) OpenCredentials(tool *model.Tool) (*model.Credentials, error) {
	username, password, err := s.sealer.OpenCredentials(tool.SealedCredentials)
	if err != nil {
		s.cfg.Log.Error("Failed to unseal tool credentials", "tool_id", tool.ID, "error", err)
		return nil, apperrors.Internal("Failed to unseal tool credentials", err)
	}

	return &model.Credentials{Username: username, Password: password}, nil
}

func (s *toolService) sanitize(tool *model.Tool) {
	tool.Name = sanitizer.SanitizeToolName(tool.Name)
	tool.LoginURL = sanitizer.SanitizeURL(tool.LoginURL)
	tool.IconURL = sanitizer.SanitizeURL(tool.IconURL)
}
