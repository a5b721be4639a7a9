package controllers

import (
	"net/http"

	"github.com/angelmondragon/scentmarket-backend/api/middleware"
	"github.com/angelmondragon/scentmarket-backend/api/responses"
	"github.com/angelmondragon/scentmarket-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/scentmarket-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/scentmarket-backend/pkg/errors"
	"github.com/angelmondragon/scentmarket-backend/pkg/logger"
)

type checkoutRequest struct {
	ShippingAddress string  `json:"shipping_address" validate:"required,max=1000"`
	PaymentIntentID *string `json:"payment_intent_id,omitempty" validate:"omitempty,max=255"`
}

// Checkout converts the caller's cart into an order.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Execute(r.Context(), checkoutsvc.Input{
			UserID:          userID,
			ShippingAddress: payload.ShippingAddress,
			PaymentIntentID: payload.PaymentIntentID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result.Order)
	}
}
