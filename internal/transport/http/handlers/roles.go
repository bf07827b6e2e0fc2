package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/repository"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

// RoleHandler administers the role hierarchy and per-user assignments.
// Every mutation invalidates the hierarchy cache.
type RoleHandler struct {
	roles     port.RoleRepository
	hierarchy *usecase.RoleHierarchyService
}

// NewRoleHandler constructs RoleHandler.
func NewRoleHandler(roles port.RoleRepository, hierarchy *usecase.RoleHierarchyService) *RoleHandler {
	return &RoleHandler{roles: roles, hierarchy: hierarchy}
}

// RegisterRoutes binds role administration routes. Callers must guard the
// group with authentication and an admin role requirement.
func (h *RoleHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
	r.POST("", h.create)
	r.PATCH("/:name", h.reparent)
	r.DELETE("/:name", h.delete)
	r.POST("/assignments", h.assign)
	r.DELETE("/assignments", h.unassign)
}

func (h *RoleHandler) list(c *gin.Context) {
	roles, err := h.roles.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list roles"))
		return
	}

	byID := make(map[string]domain.RoleName, len(roles))
	for _, role := range roles {
		byID[role.ID] = role.Name
	}

	payload := make([]RolePayload, 0, len(roles))
	for _, role := range roles {
		item := RolePayload{ID: role.ID, Name: role.Name.String()}
		if role.ParentID != nil {
			if parentName, ok := byID[*role.ParentID]; ok {
				name := parentName.String()
				item.ParentName = &name
			}
		}
		payload = append(payload, item)
	}

	c.JSON(http.StatusOK, RoleListResponse{Roles: payload})
}

func (h *RoleHandler) create(c *gin.Context) {
	var req RoleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	name, err := domain.ParseRoleName(strings.TrimSpace(req.Name))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role name"))
		return
	}

	ctx := c.Request.Context()

	role := domain.Role{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	if req.ParentName != nil {
		parent, _ := h.lookupRole(c, *req.ParentName)
		if parent == nil {
			return
		}
		role.ParentID = &parent.ID
	}

	if err := h.roles.Create(ctx, role); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: domain.ErrConflict, Status: http.StatusConflict, Message: "role already exists"},
		}, http.StatusInternalServerError, "failed to create role")
		return
	}

	h.hierarchy.Invalidate()
	c.JSON(http.StatusCreated, RolePayload{ID: role.ID, Name: role.Name.String(), ParentName: req.ParentName})
}

func (h *RoleHandler) reparent(c *gin.Context) {
	var req RoleReparentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reparent payload"))
		return
	}

	role, _ := h.lookupRole(c, c.Param("name"))
	if role == nil {
		return
	}

	var parentID *string
	if req.ParentName != nil {
		parent, _ := h.lookupRole(c, *req.ParentName)
		if parent == nil {
			return
		}
		if parent.ID == role.ID {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "role cannot be its own parent"))
			return
		}
		parentID = &parent.ID
	}

	if err := h.roles.Reparent(c.Request.Context(), role.ID, parentID); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to reparent role"))
		return
	}

	h.hierarchy.Invalidate()
	c.JSON(http.StatusOK, MessageResponse{Message: "role reparented"})
}

func (h *RoleHandler) delete(c *gin.Context) {
	role, _ := h.lookupRole(c, c.Param("name"))
	if role == nil {
		return
	}

	if err := h.roles.Delete(c.Request.Context(), role.ID); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to delete role"))
		return
	}

	h.hierarchy.Invalidate()
	c.JSON(http.StatusOK, MessageResponse{Message: "role deleted"})
}

func (h *RoleHandler) assign(c *gin.Context) {
	var req RoleAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid assignment payload"))
		return
	}

	name, err := domain.ParseRoleName(strings.TrimSpace(req.Role))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role name"))
		return
	}

	assignment := domain.RoleAssignment{
		UserID:     strings.TrimSpace(req.UserID),
		RoleName:   name,
		OrgID:      req.OrgID,
		AssignedAt: time.Now().UTC(),
	}

	if err := h.roles.Assign(c.Request.Context(), assignment); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "role not found"},
		}, http.StatusInternalServerError, "failed to assign role")
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{Message: "role assigned"})
}

func (h *RoleHandler) unassign(c *gin.Context) {
	var req RoleAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid assignment payload"))
		return
	}

	name, err := domain.ParseRoleName(strings.TrimSpace(req.Role))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role name"))
		return
	}

	if err := h.roles.Unassign(c.Request.Context(), strings.TrimSpace(req.UserID), name, req.OrgID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "assignment not found"},
		}, http.StatusInternalServerError, "failed to remove assignment")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "role unassigned"})
}

// lookupRole resolves a role by name, writing the error response itself
// when the name is invalid or unknown.
func (h *RoleHandler) lookupRole(c *gin.Context, rawName string) (*domain.Role, error) {
	name, err := domain.ParseRoleName(strings.TrimSpace(rawName))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role name"))
		return nil, err
	}

	role, err := h.roles.GetByName(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "role not found"))
		} else {
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to load role"))
		}
		return nil, err
	}

	return role, nil
}
