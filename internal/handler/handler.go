package handler

import (
	"net/http"

	"github.com/dkurilov/checkout/internal/middleware"
	"github.com/dkurilov/checkout/internal/reconciler"
	"github.com/dkurilov/checkout/internal/storage"
)

type Handler struct {
	storage storage.Storage
	engine  *reconciler.Engine
}

func NewHandler(storage storage.Storage, engine *reconciler.Engine) *Handler {
	return &Handler{
		storage: storage,
		engine:  engine,
	}
}

func (h *Handler) getUserIDFromReqContext(req *http.Request) string {
	userID, ok := req.Context().Value(middleware.UserIDKey{}).(string)
	if !ok {
		return ""
	}

	return userID
}
