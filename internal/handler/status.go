package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dkurilov/checkout/internal/entities"
	"github.com/dkurilov/checkout/internal/models"
	"github.com/dkurilov/checkout/internal/report"
	"github.com/dkurilov/checkout/internal/storage"
	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

func (h *Handler) Status(res http.ResponseWriter, req *http.Request) {
	orderNo := chi.URLParam(req, "orderNo")
	if orderNo == "" {
		res.WriteHeader(http.StatusBadRequest)
		return
	}

	order, err := h.storage.GetOrderByNumber(req.Context(), orderNo)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			res.WriteHeader(http.StatusNotFound)
			return
		}

		zap.L().Info("error get order", zap.Error(err))

		res.WriteHeader(http.StatusInternalServerError)
		return
	}

	responseModel, err := h.orderView(req, order)
	if err != nil {
		zap.L().Info("error build order view", zap.Error(err))

		res.WriteHeader(http.StatusInternalServerError)
		return
	}

	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(http.StatusOK)

	jsonEncoder := json.NewEncoder(res)
	if err := jsonEncoder.Encode(responseModel); err != nil {
		zap.L().Info("cannot encode response JSON body", zap.Error(err))
	}
}

func (h *Handler) History(res http.ResponseWriter, req *http.Request) {
	userID := h.getUserIDFromReqContext(req)
	if userID == "" {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	orders, err := h.storage.GetUserOrders(req.Context(), userID)
	if err != nil {
		zap.L().Info("error get user orders from database", zap.Error(err))

		res.WriteHeader(http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		res.WriteHeader(http.StatusNoContent)
		return
	}

	responseOrders := make(models.GetHistoryResponse, 0, len(orders))

	for _, order := range orders {
		view, err := h.orderView(req, order)
		if err != nil {
			zap.L().Info("error build order view", zap.Error(err))

			res.WriteHeader(http.StatusInternalServerError)
			return
		}

		responseOrders = append(responseOrders, view)
	}

	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(http.StatusOK)

	jsonEncoder := json.NewEncoder(res)
	if err := jsonEncoder.Encode(responseOrders); err != nil {
		zap.L().Info("cannot encode response JSON body", zap.Error(err))
	}
}

func (h *Handler) orderView(req *http.Request, order entities.Order) (models.OrderStatusResponse, error) {
	payments, err := h.storage.ListPayments(req.Context(), order.Number)
	if err != nil {
		return models.OrderStatusResponse{}, err
	}

	entries := report.Display(payments)

	responseModel := models.OrderStatusResponse{
		OrderNo:     order.Number,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		PointsUsed:  order.PointsUsed,
		CardAmount:  order.CardAmount,
		CreatedAt:   order.CreatedAt.Format(time.RFC3339),
		Payments:    make([]models.PaymentEntryResponse, 0, len(entries)),
	}

	for _, entry := range entries {
		payment := models.PaymentEntryResponse{
			Type:        entry.Payment.Type,
			Status:      entry.Payment.Status,
			Amount:      entry.Payment.Amount,
			ResultCode:  entry.Payment.ResultCode,
			ResultMsg:   entry.Payment.ResultMsg,
			Refundable:  entry.Refundable,
			PaymentDate: entry.Payment.PaymentDate.Format(time.RFC3339),
		}

		if entry.Payment.TID.Valid {
			payment.TID = entry.Payment.TID.String
		}

		responseModel.Payments = append(responseModel.Payments, payment)
	}

	return responseModel, nil
}
