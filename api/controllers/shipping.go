package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nandha3d/ecommerce-template-sub002/api/responses"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/logger"
)

type ShippingCatalog interface {
	ListShippingMethods(ctx context.Context) ([]models.ShippingMethod, error)
}

type shippingMethodResponse struct {
	ID            uuid.UUID `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	PriceCents    int64     `json:"price_cents"`
	FreeOverCents *int64    `json:"free_over_cents,omitempty"`
}

// ListShippingMethods returns the active methods, cheapest first.
func ListShippingMethods(catalog ShippingCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		methods, err := catalog.ListShippingMethods(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]shippingMethodResponse, 0, len(methods))
		for _, m := range methods {
			out = append(out, shippingMethodResponse{
				ID:            m.ID,
				Code:          m.Code,
				Name:          m.Name,
				PriceCents:    m.PriceCents,
				FreeOverCents: m.FreeOverCents,
			})
		}
		responses.WriteSuccess(w, out)
	}
}
