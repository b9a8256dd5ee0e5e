package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	toolrepo "github.com/getnvoi/aven-sub001/internal/data/repos/tools"
	types "github.com/getnvoi/aven-sub001/internal/domain"
	tooldomain "github.com/getnvoi/aven-sub001/internal/domain/tools"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	apperr "github.com/getnvoi/aven-sub001/internal/pkg/errors"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

// ImplementationCatalog reports which implementation names can be built.
type ImplementationCatalog interface {
	Has(name string) bool
	Names() []string
}

type ToolInput struct {
	// WorkspaceID nil creates a global record.
	WorkspaceID    *uuid.UUID
	Name           string
	Implementation string
	Description    *string
	Parameters     []tooldomain.Parameter
	Enabled        *bool
}

type ToolPatch struct {
	Description *string
	Parameters  *[]tooldomain.Parameter
	Enabled     *bool
}

type ToolService interface {
	Create(dbc dbctx.Context, in ToolInput) (*types.Tool, error)
	Update(dbc dbctx.Context, workspaceID, toolID uuid.UUID, patch ToolPatch) (*types.Tool, error)
	ListVisible(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.Tool, error)
	Implementations() []string
}

type toolService struct {
	log     *logger.Logger
	repo    toolrepo.ToolRepo
	catalog ImplementationCatalog
}

func NewToolService(baseLog *logger.Logger, repo toolrepo.ToolRepo, catalog ImplementationCatalog) ToolService {
	return &toolService{log: baseLog.With("service", "ToolService"), repo: repo, catalog: catalog}
}

func validateParams(params []tooldomain.Parameter) error {
	seen := map[string]bool{}
	for _, p := range params {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("%w: parameter name required", apperr.ErrInvalidArgument)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate parameter %q", apperr.ErrInvalidArgument, name)
		}
		seen[name] = true
		switch p.Type {
		case tooldomain.ParamString, tooldomain.ParamInteger, tooldomain.ParamFloat,
			tooldomain.ParamBoolean, tooldomain.ParamArray, tooldomain.ParamObject:
		default:
			return fmt.Errorf("%w: parameter %q has unknown type %q", apperr.ErrInvalidArgument, name, p.Type)
		}
	}
	return nil
}

func (s *toolService) Create(dbc dbctx.Context, in ToolInput) (*types.Tool, error) {
	name := strings.TrimSpace(in.Name)
	if !tooldomain.ValidName(name) {
		return nil, apperr.NewError(apperr.CodeValidation, "tool.create", "tool name "+strconv.Quote(name)+" must match [a-zA-Z0-9_-]{1,64}", apperr.ErrInvalidArgument)
	}
	impl := strings.TrimSpace(in.Implementation)
	if s.catalog != nil && !s.catalog.Has(impl) {
		return nil, apperr.NewError(apperr.CodeValidation, "tool.create", "unregistered implementation "+impl, apperr.ErrInvalidArgument)
	}
	if err := validateParams(in.Parameters); err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, "tool.create", err)
	}
	rec := &types.Tool{
		WorkspaceID:    in.WorkspaceID,
		Name:           name,
		Implementation: impl,
		Description:    in.Description,
		Enabled:        true,
	}
	if in.Enabled != nil {
		rec.Enabled = *in.Enabled
	}
	rec.SetParams(in.Parameters)
	created, err := s.repo.Create(dbc, rec)
	if err != nil {
		return nil, err
	}
	s.log.Info("tool created", "tool_id", created.ID, "name", created.Name, "implementation", impl)
	return created, nil
}

// Update edits a workspace-owned record. Global records are read-only here.
func (s *toolService) Update(dbc dbctx.Context, workspaceID, toolID uuid.UUID, patch ToolPatch) (*types.Tool, error) {
	rec, err := s.repo.GetByID(dbc, toolID)
	if err != nil {
		return nil, err
	}
	if rec.WorkspaceID == nil || *rec.WorkspaceID != workspaceID {
		return nil, apperr.NewError(apperr.CodeNotFound, "tool.update", "tool "+toolID.String()+" not found", apperr.ErrNotFound)
	}
	updates := map[string]interface{}{}
	if patch.Description != nil {
		updates["description"] = strings.TrimSpace(*patch.Description)
	}
	if patch.Enabled != nil {
		updates["enabled"] = *patch.Enabled
	}
	if patch.Parameters != nil {
		if err := validateParams(*patch.Parameters); err != nil {
			return nil, apperr.Wrap(apperr.CodeValidation, "tool.update", err)
		}
		tmp := &types.Tool{}
		tmp.SetParams(*patch.Parameters)
		updates["parameters"] = tmp.Parameters
	}
	if len(updates) == 0 {
		return rec, nil
	}
	if err := s.repo.UpdateFields(dbc, toolID, updates); err != nil {
		return nil, err
	}
	return s.repo.GetByID(dbc, toolID)
}

func (s *toolService) ListVisible(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.Tool, error) {
	return s.repo.ListVisible(dbc, workspaceID)
}

func (s *toolService) Implementations() []string {
	if s.catalog == nil {
		return nil
	}
	return s.catalog.Names()
}
