package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/dkurilov/checkout/internal/models"
	"github.com/dkurilov/checkout/internal/reconciler"
	"github.com/dkurilov/checkout/internal/storage"
	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

func (h *Handler) Refund(res http.ResponseWriter, req *http.Request) {
	userID := h.getUserIDFromReqContext(req)
	if userID == "" {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	var requestModel models.RefundRequest

	jsonDecoder := json.NewDecoder(req.Body)
	if err := jsonDecoder.Decode(&requestModel); err != nil {
		zap.L().Info("cannot decode refund request", zap.Error(err))

		res.WriteHeader(http.StatusBadRequest)
		return
	}

	if requestModel.TID == "" && requestModel.OrderNo == "" {
		res.WriteHeader(http.StatusBadRequest)
		return
	}

	clientIP := requestIP(req)

	var (
		outcome reconciler.Outcome
		err     error
	)

	if requestModel.TID != "" {
		outcome, err = h.engine.RefundByTID(req.Context(), requestModel.TID, requestModel.Reason, clientIP)
	} else {
		outcome, err = h.engine.RefundByOrderNumber(req.Context(), requestModel.OrderNo, requestModel.Reason, clientIP)
	}

	if err != nil {
		h.writeRefundError(res, err)
		return
	}

	h.writeRefundResponse(res, outcome)
}

func (h *Handler) RefundPoints(res http.ResponseWriter, req *http.Request) {
	userID := h.getUserIDFromReqContext(req)
	if userID == "" {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	orderNo := chi.URLParam(req, "orderNo")
	if orderNo == "" {
		res.WriteHeader(http.StatusBadRequest)
		return
	}

	var requestModel models.PointsRefundRequest

	jsonDecoder := json.NewDecoder(req.Body)
	if err := jsonDecoder.Decode(&requestModel); err != nil {
		zap.L().Info("cannot decode points refund request", zap.Error(err))

		res.WriteHeader(http.StatusBadRequest)
		return
	}

	outcome, err := h.engine.RefundPoints(req.Context(), orderNo, requestModel.Reason)
	if err != nil {
		h.writeRefundError(res, err)
		return
	}

	responseModel := models.PointsRefundResponse{
		Success:        outcome.Success,
		OrderNo:        outcome.OrderNumber,
		RefundedPoints: outcome.Amount,
	}

	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(http.StatusOK)

	jsonEncoder := json.NewEncoder(res)
	if err := jsonEncoder.Encode(responseModel); err != nil {
		zap.L().Info("cannot encode response JSON body", zap.Error(err))
	}
}

func (h *Handler) writeRefundError(res http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reconciler.ErrUnknownOrder), errors.Is(err, storage.ErrNothingToRefund):
		res.WriteHeader(http.StatusNotFound)
	case errors.Is(err, storage.ErrAlreadyRefunded):
		res.WriteHeader(http.StatusConflict)
	default:
		zap.L().Info("error refund", zap.Error(err))

		res.WriteHeader(http.StatusInternalServerError)
	}
}

func (h *Handler) writeRefundResponse(res http.ResponseWriter, outcome reconciler.Outcome) {
	responseModel := models.RefundResponse{
		Success:     outcome.Success,
		OrderNo:     outcome.OrderNumber,
		Amount:      outcome.Amount,
		ResultCode:  outcome.ResultCode,
		ResultMsg:   outcome.ResultMessage,
		IsDuplicate: outcome.Duplicate,
	}

	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(http.StatusOK)

	jsonEncoder := json.NewEncoder(res)
	if err := jsonEncoder.Encode(responseModel); err != nil {
		zap.L().Info("cannot encode response JSON body", zap.Error(err))
	}
}

func requestIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}

	return host
}
