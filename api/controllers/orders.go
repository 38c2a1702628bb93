package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/google/uuid"

	"github.com/nandha3d/ecommerce-template-sub002/api/middleware"
	"github.com/nandha3d/ecommerce-template-sub002/api/responses"
	"github.com/nandha3d/ecommerce-template-sub002/api/validators"
	"github.com/nandha3d/ecommerce-template-sub002/internal/orders"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/logger"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/outbox"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/pagination"
)

type OrderService interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error)
	UpdateItem(ctx context.Context, input orders.ItemUpdate) error
	DeleteItem(ctx context.Context, orderID, itemID uuid.UUID, actorID *uuid.UUID) error
	TransitionStatus(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus, actor *outbox.ActorRef) (*models.Order, error)
}

func ListMyOrders(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.ActorID(r.Context())
		if userID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListForUser(r.Context(), *userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, mapPage(page, func(o models.Order) *orderResponse { return newOrderResponse(&o) }))
	}
}

// GetMyOrder returns an order owned by the caller. Admins may read any order.
func GetMyOrder(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		isAdmin := middleware.RoleFromContext(r.Context()) == string(enums.ActorRoleAdmin)
		if !isAdmin && (order.UserID == nil || !canAccess(r.Context(), order.UserID)) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// AdminUpdateOrderItem accepts any JSON object; every attempted change to a
// placed order item is refused and audited by the order service.
func AdminUpdateOrderItem(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, itemID, err := orderItemPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var changes map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
			return
		}
		fields := make([]string, 0, len(changes))
		for field := range changes {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		err = svc.UpdateItem(r.Context(), orders.ItemUpdate{
			OrderID: orderID,
			ItemID:  itemID,
			Fields:  fields,
			ActorID: middleware.ActorID(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func AdminDeleteOrderItem(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, itemID, err := orderItemPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteItem(r.Context(), orderID, itemID, middleware.ActorID(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type orderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func AdminTransitionOrder(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload orderStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown order status"))
			return
		}

		order, err := svc.TransitionStatus(r.Context(), id, to, &outbox.ActorRef{
			UserID: middleware.ActorID(r.Context()),
			Role:   middleware.RoleFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func orderItemPath(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	orderID, err := validators.PathUUID(r, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	itemID, err := validators.PathUUID(r, "itemID")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return orderID, itemID, nil
}
