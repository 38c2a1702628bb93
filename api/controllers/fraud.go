package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/nandha3d/ecommerce-template-sub002/api/responses"
	"github.com/nandha3d/ecommerce-template-sub002/api/validators"
	"github.com/nandha3d/ecommerce-template-sub002/internal/fraud"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/logger"
)

const defaultReportWindow = 7 * 24 * time.Hour

type FraudReporter interface {
	Report(ctx context.Context, since time.Time, topN int) (*fraud.Report, error)
}

// AdminFraudReport aggregates fraud checks since ?since= (default seven days).
func AdminFraudReport(svc FraudReporter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since, err := validators.ParseQueryTime(r, "since", time.Now().UTC().Add(-defaultReportWindow))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		top, err := validators.ParseQueryInt(r, "top", 10, 1, 50)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Report(r.Context(), since, top)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
