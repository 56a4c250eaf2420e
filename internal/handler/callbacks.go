package handler

import (
	"encoding/json"
	"net/http"

	"github.com/dkurilov/checkout/internal/entities"
	"github.com/dkurilov/checkout/internal/gateway"
	"github.com/dkurilov/checkout/internal/models"
	"go.uber.org/zap"
)

// Notify receives the provider's server-to-server settlement signal. The
// plain-text OK/FAIL answer is the provider's retry contract: anything
// but OK makes it deliver the notification again.
func (h *Handler) Notify(res http.ResponseWriter, req *http.Request) {
	provider, params := callbackParams(req)

	h.logCallback(req, "PAYMENT_NOTIFY", provider, params)

	outcome, err := h.engine.HandleNotify(req.Context(), provider, params)
	if err != nil {
		zap.L().Info("error handle notify", zap.String("provider", provider), zap.Error(err))

		res.Header().Set("Content-Type", "text/plain")
		res.WriteHeader(http.StatusOK)
		res.Write([]byte("FAIL"))
		return
	}

	answer := "FAIL"
	if outcome.Success {
		answer = "OK"
	}

	res.Header().Set("Content-Type", "text/plain")
	res.WriteHeader(http.StatusOK)
	res.Write([]byte(answer))
}

// Response receives the browser-return callback, runs the approve
// handshake when the payload carries one, and answers JSON for the
// storefront to render.
func (h *Handler) Response(res http.ResponseWriter, req *http.Request) {
	provider, params := callbackParams(req)

	h.logCallback(req, "PAYMENT_RESPONSE", provider, params)

	outcome, err := h.engine.HandleResponse(req.Context(), provider, params)
	if err != nil {
		zap.L().Info("error handle response", zap.String("provider", provider), zap.Error(err))

		res.WriteHeader(http.StatusBadRequest)
		return
	}

	responseModel := models.CallbackResponse{
		Success:     outcome.Success,
		OrderNo:     outcome.OrderNumber,
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

func callbackParams(req *http.Request) (string, map[string]string) {
	if err := req.ParseForm(); err != nil {
		zap.L().Info("cannot parse callback form", zap.Error(err))
	}

	params := make(map[string]string, len(req.Form))
	for key, values := range req.Form {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	provider := params["provider"]
	if provider == "" {
		provider = gateway.ProviderInipay
	}

	return provider, params
}

func (h *Handler) logCallback(req *http.Request, requestType, provider string, params map[string]string) {
	encoded, err := json.Marshal(params)
	if err != nil {
		encoded = []byte("{}")
	}

	log := entities.GatewayLog{
		OrderNumber: firstNonEmpty(params["orderNumber"], params["oid"], params["Moid"], params["P_OID"]),
		RequestType: requestType,
		Provider:    provider,
		RequestURL:  req.URL.Path,
		RequestData: string(encoded),
		Success:     true,
	}

	if err := h.storage.SaveGatewayCall(req.Context(), log); err != nil {
		zap.L().Info("error saving callback log", zap.Error(err))
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}
