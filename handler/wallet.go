package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/payops/apsgw/aps"
	"github.com/payops/apsgw/infra/response"
)

// WalletSessionRequest asks for an Apple Pay merchant validation handshake.
type WalletSessionRequest struct {
	ValidationURL string `json:"validationUrl" validate:"required,url"`
}

// WalletSession performs the merchant validation call and relays the opaque
// session object back to the payment sheet.
func (h *PaymentHandler) WalletSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req WalletSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	session, err := h.service.ValidateWalletSession(ctx, req.ValidationURL)
	if err != nil {
		response.Error(w, http.StatusBadGateway, "Merchant validation failed", err)
		return
	}

	// The session object is opaque and must reach the payment sheet
	// untouched.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(session)
}

// WalletPayRequest charges an order with the authorized Apple Pay token.
type WalletPayRequest struct {
	OrderID string                `json:"orderId" validate:"required"`
	Token   aps.WalletPaymentData `json:"token" validate:"required"`
}

// WalletPay settles an Apple Pay payment.
func (h *PaymentHandler) WalletPay(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req WalletPayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	result, err := h.service.InitWalletPayment(ctx, req.OrderID, req.Token, clientIP(r))
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Wallet payment failed", err)
		return
	}
	if !result.Success {
		response.Error(w, http.StatusUnprocessableEntity, result.Message, nil)
		return
	}
	response.Success(w, http.StatusOK, result.Message, result)
}
