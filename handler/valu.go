package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/payops/apsgw/infra/response"
)

// The multi-step BNPL flow is keyed by a shopper session token the frontend
// generates once and replays on every step.
const sessionHeader = "X-Session-Id"

func shopperSession(r *http.Request) string {
	return r.Header.Get(sessionHeader)
}

// ValuVerifyRequest starts the BNPL flow with the shopper mobile number.
type ValuVerifyRequest struct {
	MobileNumber string `json:"mobileNumber" validate:"required,numeric"`
}

// ValuVerifyCustomer checks whether the mobile number belongs to an eligible
// BNPL customer.
func (h *PaymentHandler) ValuVerifyCustomer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	sessionID := shopperSession(r)
	if sessionID == "" {
		response.Error(w, http.StatusBadRequest, "Session token is required", nil)
		return
	}

	var req ValuVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	result, err := h.service.ValuVerifyCustomer(ctx, sessionID, req.MobileNumber)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Customer verification failed", err)
		return
	}
	if !result.Verified {
		response.Error(w, http.StatusUnprocessableEntity, result.Message, nil)
		return
	}
	response.Success(w, http.StatusOK, result.Message, result)
}

// ValuOTPRequest asks for a one-time password for the given order.
type ValuOTPRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

// ValuGenerateOTP sends the one-time password to the verified customer.
func (h *PaymentHandler) ValuGenerateOTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	sessionID := shopperSession(r)
	if sessionID == "" {
		response.Error(w, http.StatusBadRequest, "Session token is required", nil)
		return
	}

	var req ValuOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	result, err := h.service.ValuGenerateOTP(ctx, sessionID, req.OrderID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "OTP generation failed", err)
		return
	}
	if !result.Generated {
		response.Error(w, http.StatusUnprocessableEntity, result.Message, nil)
		return
	}
	response.Success(w, http.StatusOK, result.Message, result)
}

// ValuVerifyOTPRequest carries the password the shopper typed.
type ValuVerifyOTPRequest struct {
	OrderID string `json:"orderId"`
	OTP     string `json:"otp" validate:"required"`
}

// ValuVerifyOTP checks the one-time password and returns the installment
// plans offered for this purchase.
func (h *PaymentHandler) ValuVerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	sessionID := shopperSession(r)
	if sessionID == "" {
		response.Error(w, http.StatusBadRequest, "Session token is required", nil)
		return
	}

	var req ValuVerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	result, err := h.service.ValuVerifyOTP(ctx, sessionID, req.OrderID, req.OTP)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "OTP verification failed", err)
		return
	}
	if !result.Verified {
		response.Error(w, http.StatusUnprocessableEntity, result.Message, nil)
		return
	}
	response.Success(w, http.StatusOK, result.Message, result)
}

// ValuPurchaseRequest completes the BNPL sale with the picked plan.
type ValuPurchaseRequest struct {
	OrderID      string `json:"orderId"`
	ActiveTenure string `json:"activeTenure" validate:"required"`
}

// ValuPurchase executes the BNPL purchase with the selected installment plan.
func (h *PaymentHandler) ValuPurchase(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	sessionID := shopperSession(r)
	if sessionID == "" {
		response.Error(w, http.StatusBadRequest, "Session token is required", nil)
		return
	}

	var req ValuPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	result, err := h.service.ValuExecutePurchase(ctx, sessionID, req.OrderID, req.ActiveTenure)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Purchase failed", err)
		return
	}
	if !result.Success {
		response.Error(w, http.StatusUnprocessableEntity, result.Message, nil)
		return
	}
	response.Success(w, http.StatusOK, result.Message, result)
}
