package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nandha3d/ecommerce-template-sub002/api/middleware"
	"github.com/nandha3d/ecommerce-template-sub002/api/responses"
	"github.com/nandha3d/ecommerce-template-sub002/api/validators"
	"github.com/nandha3d/ecommerce-template-sub002/internal/blocklist"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/logger"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/pagination"
)

type BlocklistService interface {
	Block(ctx context.Context, input blocklist.BlockInput) (*models.BlockedEntity, error)
	Unblock(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*models.BlockedEntity, error)
	List(ctx context.Context, entityType *enums.BlockedEntityType, activeOnly bool, page pagination.Params) (pagination.Page[models.BlockedEntity], error)
}

// AdminListBlocklist supports ?type= and ?active=false filters.
func AdminListBlocklist(svc BlocklistService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var entityType *enums.BlockedEntityType
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			parsed, err := enums.ParseBlockedEntityType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown entity type"))
				return
			}
			entityType = &parsed
		}
		activeOnly := true
		if raw := strings.TrimSpace(r.URL.Query().Get("active")); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "active must be a boolean"))
				return
			}
			activeOnly = parsed
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), entityType, activeOnly, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(page, newBlockedEntityResponse))
	}
}

type blockRequest struct {
	Type      string     `json:"type" validate:"required"`
	Value     string     `json:"value" validate:"required,max=512"`
	Reason    string     `json:"reason" validate:"required,max=500"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func AdminBlock(svc BlocklistService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload blockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entityType, err := enums.ParseBlockedEntityType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown entity type"))
			return
		}

		entity, err := svc.Block(r.Context(), blocklist.BlockInput{
			Type:      entityType,
			Value:     payload.Value,
			Reason:    validators.SanitizeString(payload.Reason, 500),
			ActorID:   middleware.ActorID(r.Context()),
			ExpiresAt: payload.ExpiresAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newBlockedEntityResponse(*entity))
	}
}

func AdminUnblock(svc BlocklistService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entity, err := svc.Unblock(r.Context(), id, middleware.ActorID(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBlockedEntityResponse(*entity))
	}
}
