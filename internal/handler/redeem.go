package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
)

// Redeemer is implemented by service.RedemptionService.
type Redeemer interface {
	Redeem(ctx context.Context, req service.RedeemRequest) (*service.Verdict, error)
	CheckStatus(ctx context.Context, key, hardwareID string) (bool, error)
}

// RedeemHandler serves the client-facing redeem and status endpoints.
type RedeemHandler struct {
	svc    Redeemer
	logger *slog.Logger
}

// NewRedeemHandler creates a new RedeemHandler.
func NewRedeemHandler(svc Redeemer, logger *slog.Logger) *RedeemHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedeemHandler{svc: svc, logger: logger}
}

// Redeem validates a key and records its first use.
// POST /redeem
func (h *RedeemHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	p := readKeyParams(w, r)

	client := r.Header.Get("User-Agent")
	_, err := h.svc.Redeem(r.Context(), service.RedeemRequest{
		Key:              p.Key,
		OriginAddress:    originAddress(r),
		ClientDescriptor: client,
		HardwareID:       p.HardwareID,
	})
	if err != nil {
		status, msg := redeemErrorStatus(err)
		writeJSON(w, status, model.RedeemResponse{Status: "error", Message: msg})
		return
	}
	writeJSON(w, http.StatusOK, model.RedeemResponse{Status: "success", Message: service.MsgGranted})
}

// Status reports whether a key would currently be accepted. It never
// records anything.
// GET|POST /status
func (h *RedeemHandler) Status(w http.ResponseWriter, r *http.Request) {
	p := readKeyParams(w, r)

	valid, err := h.svc.CheckStatus(r.Context(), p.Key, p.HardwareID)
	if err != nil {
		status, msg := redeemErrorStatus(err)
		writeJSON(w, status, model.RedeemResponse{Status: "error", Message: msg})
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	writeJSON(w, http.StatusOK, model.StatusResponse{Status: result})
}

func redeemErrorStatus(err error) (int, string) {
	var (
		verr *service.ValidationError
		aerr *service.AuthorizationError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Message
	case errors.As(err, &aerr):
		return http.StatusForbidden, aerr.Error()
	default:
		return http.StatusInternalServerError, service.MsgFault
	}
}
