package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nandha3d/ecommerce-template-sub002/api/middleware"
	"github.com/nandha3d/ecommerce-template-sub002/api/responses"
	"github.com/nandha3d/ecommerce-template-sub002/api/validators"
	checkoutsvc "github.com/nandha3d/ecommerce-template-sub002/internal/checkout"
	"github.com/nandha3d/ecommerce-template-sub002/internal/fraud"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/logger"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/types"
)

const deviceFingerprintHeader = "X-Device-Fingerprint"

// CheckoutService is the checkout surface the HTTP layer drives.
type CheckoutService interface {
	StartSession(ctx context.Context, input checkoutsvc.StartInput) (*models.CheckoutSession, error)
	Get(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error)
	Reservations(ctx context.Context, id uuid.UUID) ([]models.InventoryReservation, error)
	Advance(ctx context.Context, id uuid.UUID, step enums.CheckoutStep, payload checkoutsvc.AdvancePayload) (*models.CheckoutSession, error)
	InitiatePayment(ctx context.Context, id uuid.UUID, input checkoutsvc.PaymentInput) (*checkoutsvc.PaymentResult, error)
	ConfirmPayment(ctx context.Context, id uuid.UUID, result checkoutsvc.GatewayResult) (*models.Order, error)
	Cancel(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*models.CheckoutSession, error)
}

type startCheckoutRequest struct {
	CartID uuid.UUID `json:"cart_id" validate:"required"`
}

// StartCheckout opens a session for a cart and reserves its stock.
func StartCheckout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload startCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.StartSession(r.Context(), checkoutsvc.StartInput{
			CartID: payload.CartID,
			UserID: middleware.ActorID(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservations, err := svc.Reservations(r.Context(), session.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newSessionResponse(session, reservations))
	}
}

func GetCheckout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := authorizedSession(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservations, err := svc.Reservations(r.Context(), session.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionResponse(session, reservations))
	}
}

type advanceCheckoutRequest struct {
	Address          *types.Address `json:"address,omitempty"`
	ShippingMethodID *uuid.UUID     `json:"shipping_method_id,omitempty"`
}

// AdvanceCheckout applies the address or shipping step named in the path.
func AdvanceCheckout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := authorizedSession(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		step, err := enums.ParseCheckoutStep(strings.TrimSpace(chi.URLParam(r, "step")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown checkout step"))
			return
		}

		var payload advanceCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.Advance(r.Context(), session.ID, step, checkoutsvc.AdvancePayload{
			Address:          payload.Address,
			ShippingMethodID: payload.ShippingMethodID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionResponse(updated, nil))
	}
}

type initiatePaymentRequest struct {
	Method            string  `json:"method" validate:"required"`
	SourceToken       string  `json:"source_token" validate:"max=512"`
	Email             string  `json:"email" validate:"required,email"`
	DeviceFingerprint string  `json:"device_fingerprint" validate:"max=256"`
	CardToken         *string `json:"card_token,omitempty" validate:"omitempty,max=512"`
}

type paymentResponse struct {
	Session          *sessionResponse  `json:"session"`
	GatewayReference string            `json:"gateway_reference,omitempty"`
	GatewayStatus    string            `json:"gateway_status,omitempty"`
	FraudVerdict     string            `json:"fraud_verdict,omitempty"`
	Snapshot         *snapshotResponse `json:"price_snapshot,omitempty"`
	Order            *orderResponse    `json:"order,omitempty"`
}

// InitiatePayment runs fraud screening, locks pricing and submits the charge.
func InitiatePayment(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := authorizedSession(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload initiatePaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(payload.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment method"))
			return
		}

		device := strings.TrimSpace(payload.DeviceFingerprint)
		if device == "" {
			device = strings.TrimSpace(r.Header.Get(deviceFingerprintHeader))
		}

		result, err := svc.InitiatePayment(r.Context(), session.ID, checkoutsvc.PaymentInput{
			Method:      method,
			SourceToken: payload.SourceToken,
			Identity: fraud.Identity{
				UserID:            middleware.ActorID(r.Context()),
				Email:             validators.SanitizeString(payload.Email, 320),
				IP:                middleware.ClientIP(r),
				DeviceFingerprint: device,
				CardToken:         payload.CardToken,
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := paymentResponse{
			Session:          newSessionResponse(result.Session, nil),
			GatewayReference: result.GatewayReference,
			GatewayStatus:    string(result.GatewayStatus),
			Snapshot:         newSnapshotResponse(result.Snapshot),
			Order:            newOrderResponse(result.Order),
		}
		if result.FraudCheck != nil {
			resp.FraudVerdict = string(result.FraudCheck.Result)
		}
		status := http.StatusAccepted
		if result.Order != nil {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, resp)
	}
}

type confirmPaymentRequest struct {
	Reference     string `json:"gateway_reference" validate:"required,max=255"`
	Success       bool   `json:"success"`
	FailureReason string `json:"failure_reason" validate:"max=255"`
}

// ConfirmPayment applies the gateway's final answer for a pending payment.
func ConfirmPayment(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload confirmPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.ConfirmPayment(r.Context(), id, checkoutsvc.GatewayResult{
			Reference:     strings.TrimSpace(payload.Reference),
			Success:       payload.Success,
			FailureReason: payload.FailureReason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func CancelCheckout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := authorizedSession(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		canceled, err := svc.Cancel(r.Context(), session.ID, middleware.ActorID(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSessionResponse(canceled, nil))
	}
}

// authorizedSession loads the session in the path. A session owned by a user
// is hidden from everyone except that user and admins.
func authorizedSession(r *http.Request, svc CheckoutService) (*models.CheckoutSession, error) {
	id, err := validators.PathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	session, err := svc.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !canAccess(r.Context(), session.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	return session, nil
}

func canAccess(ctx context.Context, owner *uuid.UUID) bool {
	if owner == nil {
		return true
	}
	if middleware.RoleFromContext(ctx) == string(enums.ActorRoleAdmin) {
		return true
	}
	actor := middleware.ActorID(ctx)
	return actor != nil && *actor == *owner
}
