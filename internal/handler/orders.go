package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dkurilov/checkout/internal/entities"
	"github.com/dkurilov/checkout/internal/models"
	"github.com/dkurilov/checkout/internal/reconciler"
	"github.com/dkurilov/checkout/internal/storage"
	"go.uber.org/zap"
)

func (h *Handler) CreateOrder(res http.ResponseWriter, req *http.Request) {
	userID := h.getUserIDFromReqContext(req)
	if userID == "" {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	var requestModel models.CreateOrderRequest

	jsonDecoder := json.NewDecoder(req.Body)
	if err := jsonDecoder.Decode(&requestModel); err != nil {
		zap.L().Info("cannot decode create order request", zap.Error(err))

		res.WriteHeader(http.StatusBadRequest)
		return
	}

	if requestModel.CardAmount != 0 && requestModel.CardAmount != requestModel.TotalAmount-requestModel.PointsUsed {
		zap.L().Info(
			"create order amount invariant violated",
			zap.Int64("totalAmount", requestModel.TotalAmount),
			zap.Int64("pointsUsed", requestModel.PointsUsed),
			zap.Int64("cardAmount", requestModel.CardAmount),
		)

		res.WriteHeader(http.StatusUnprocessableEntity)
		return
	}

	order, err := h.engine.CreateOrder(req.Context(), userID, requestModel.TotalAmount, requestModel.PointsUsed)
	if err != nil {
		switch {
		case errors.Is(err, reconciler.ErrInvalidAmounts):
			res.WriteHeader(http.StatusUnprocessableEntity)
		case errors.Is(err, storage.ErrNotEnoughPoints):
			res.WriteHeader(http.StatusPaymentRequired)
		default:
			zap.L().Info("error create order", zap.Error(err))

			res.WriteHeader(http.StatusInternalServerError)
		}

		return
	}

	paymentMethod := entities.PaymentTypeCard
	if order.CardAmount == 0 {
		paymentMethod = entities.PaymentTypePoint
	}

	responseModel := models.CreateOrderResponse{
		OrderNo:          order.Number,
		Status:           order.Status,
		PaymentCompleted: order.Status == entities.OrderStatusCompleted,
		PaymentMethod:    paymentMethod,
	}

	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(http.StatusOK)

	jsonEncoder := json.NewEncoder(res)
	if err := jsonEncoder.Encode(responseModel); err != nil {
		zap.L().Info("cannot encode response JSON body", zap.Error(err))
	}
}
