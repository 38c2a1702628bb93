package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nandha3d/ecommerce-template-sub002/api/middleware"
	"github.com/nandha3d/ecommerce-template-sub002/api/responses"
	"github.com/nandha3d/ecommerce-template-sub002/api/validators"
	"github.com/nandha3d/ecommerce-template-sub002/internal/inventory"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/logger"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/pagination"
)

type InventoryService interface {
	Status(ctx context.Context, variantID uuid.UUID) (*inventory.Availability, error)
	AdjustStock(ctx context.Context, input inventory.AdjustInput) (*models.InventoryLedgerEntry, error)
	LedgerHistory(ctx context.Context, variantID uuid.UUID, params pagination.Params) (pagination.Page[models.InventoryLedgerEntry], error)
}

// VariantAvailability reports stock, active reservations and what is left.
func VariantAvailability(svc InventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		availability, err := svc.Status(r.Context(), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availability)
	}
}

type adjustStockRequest struct {
	Delta  int    `json:"delta" validate:"ne=0"`
	Reason string `json:"reason" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

func AdminAdjustStock(svc InventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload adjustStockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason, err := enums.ParseLedgerReason(payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown ledger reason"))
			return
		}

		entry, err := svc.AdjustStock(r.Context(), inventory.AdjustInput{
			VariantID: variantID,
			Delta:     payload.Delta,
			Reason:    reason,
			ActorID:   middleware.ActorID(r.Context()),
			Note:      validators.SanitizeString(payload.Note, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newLedgerEntryResponse(*entry))
	}
}

func AdminLedgerHistory(svc InventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variantID, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.LedgerHistory(r.Context(), variantID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(page, newLedgerEntryResponse))
	}
}
