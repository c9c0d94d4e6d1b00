package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/payops/apsgw/aps"
	"github.com/payops/apsgw/infra/config"
	"github.com/payops/apsgw/infra/response"
)

// GatewayService defines the payment operations the handlers drive.
type GatewayService interface {
	BuildPaymentForm(ctx context.Context, paymentMethod, integrationType, paymentOption string, extras aps.CheckoutExtras) (*aps.RequestForm, error)
	HandleResponse(ctx context.Context, raw map[string]string, mode aps.Mode, integrationType, clientIP string) aps.DispatchResult
	ProcessSubscriptionPayment(ctx context.Context, renewalOrderID string, recurringAmount float64) (bool, error)
	DeleteToken(ctx context.Context, tokenName string) error
	CheckStatus(ctx context.Context, orderID string) (aps.Response, error)
	MerchantPageCancel(ctx context.Context, orderID string) error
	ValuVerifyCustomer(ctx context.Context, sessionID, mobileNumber string) (aps.ValuVerifyResult, error)
	ValuGenerateOTP(ctx context.Context, sessionID, orderID string) (aps.ValuOTPResult, error)
	ValuVerifyOTP(ctx context.Context, sessionID, orderID, otp string) (aps.ValuTenureResult, error)
	ValuExecutePurchase(ctx context.Context, sessionID, orderID, activeTenure string) (aps.ValuPurchaseResult, error)
	InitWalletPayment(ctx context.Context, orderID string, token aps.WalletPaymentData, clientIP string) (aps.WalletPaymentResult, error)
	ValidateWalletSession(ctx context.Context, validationURL string) ([]byte, error)
}

// OrderRegistry covers the store operations the handlers call directly.
type OrderRegistry interface {
	SaveOrder(ctx context.Context, order *aps.Order) error
	DeactivateToken(ctx context.Context, tokenName string) error
}

// PaymentHandler handles payment related HTTP requests
type PaymentHandler struct {
	service  GatewayService
	registry OrderRegistry
	cfg      *config.APSConfig
	validate *validator.Validate
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(service GatewayService, registry OrderRegistry, cfg *config.APSConfig, validate *validator.Validate) *PaymentHandler {
	return &PaymentHandler{
		service:  service,
		registry: registry,
		cfg:      cfg,
		validate: validate,
	}
}

// CheckoutRequest is the inbound checkout payload.
type CheckoutRequest struct {
	OrderID         string     `json:"orderId" validate:"required"`
	Amount          float64    `json:"amount" validate:"required,gt=0"`
	Currency        string     `json:"currency" validate:"required,len=3"`
	CurrencyRate    float64    `json:"currencyRate"`
	Email           string     `json:"email" validate:"required,email"`
	CustomerName    string     `json:"customerName"`
	UserID          string     `json:"userId"`
	Items           []aps.Item `json:"items"`
	PaymentMethod   string     `json:"paymentMethod" validate:"required"`
	IntegrationType string     `json:"integrationType"`
	PaymentOption   string     `json:"paymentOption"`
	PaymentToken    string     `json:"paymentToken"`
	CardCVV         string     `json:"cardCvv"`
	CardBin         string     `json:"cardBin"`
	PlanCode        string     `json:"planCode"`
	IssuerCode      string     `json:"issuerCode"`
}

// Checkout registers the order and returns the signed parameter set the
// shopper's browser posts to the processor.
func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	rate := req.CurrencyRate
	if rate == 0 {
		rate = 1
	}
	order := &aps.Order{
		ID:            req.OrderID,
		Total:         req.Amount,
		Currency:      strings.ToUpper(req.Currency),
		CurrencyRate:  rate,
		Email:         req.Email,
		CustomerName:  req.CustomerName,
		PaymentMethod: req.PaymentMethod,
		UserID:        req.UserID,
		Items:         req.Items,
		PlanCode:      req.PlanCode,
		IssuerCode:    req.IssuerCode,
	}
	if err := h.registry.SaveOrder(ctx, order); err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to register order", err)
		return
	}

	integrationType := req.IntegrationType
	if integrationType == "" {
		integrationType = aps.IntegrationRedirection
	}
	form, err := h.service.BuildPaymentForm(ctx, req.PaymentMethod, integrationType, req.PaymentOption, aps.CheckoutExtras{
		OrderID:      req.OrderID,
		PaymentToken: req.PaymentToken,
		PaymentCVV:   req.CardCVV,
		CardBin:      req.CardBin,
		ClientIP:     clientIP(r),
	})
	if err != nil {
		response.Error(w, http.StatusUnprocessableEntity, "Checkout failed", err)
		return
	}
	response.Success(w, http.StatusOK, "Checkout prepared", form)
}

// Callback receives the shopper's browser return from the processor and
// redirects to the configured result page.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	params := formParams(r)
	integrationType := r.URL.Query().Get("integration_type")
	if integrationType == "" {
		integrationType = aps.IntegrationRedirection
	}

	result := h.service.HandleResponse(ctx, params, aps.ModeOnline, integrationType, clientIP(r))

	if result.RedirectURL != "" {
		http.Redirect(w, r, result.RedirectURL, http.StatusFound)
		return
	}
	target := h.cfg.CheckoutFailureURL
	if result.Accepted {
		target = h.cfg.CheckoutSuccessURL
	}
	if target != "" {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	if !result.Accepted {
		response.Error(w, http.StatusUnprocessableEntity, result.Message, nil)
		return
	}
	response.Success(w, http.StatusOK, result.Message, result)
}

// Webhook receives the processor's server-to-server notification. A 200
// acknowledges the delivery and stops retries.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	params := formParams(r)
	result := h.service.HandleResponse(ctx, params, aps.ModeWebhook, aps.IntegrationRedirection, clientIP(r))
	if !result.Accepted {
		response.Error(w, http.StatusUnprocessableEntity, result.Message, nil)
		return
	}
	response.Success(w, http.StatusOK, "Webhook processed", result)
}

// SubscriptionChargeRequest is the renewal charge payload.
type SubscriptionChargeRequest struct {
	OrderID string  `json:"orderId" validate:"required"`
	Amount  float64 `json:"amount" validate:"required,gt=0"`
}

// SubscriptionCharge charges a renewal with the stored card token.
func (h *PaymentHandler) SubscriptionCharge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req SubscriptionChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	paid, err := h.service.ProcessSubscriptionPayment(ctx, req.OrderID, req.Amount)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Subscription charge failed", err)
		return
	}
	if !paid {
		response.Error(w, http.StatusUnprocessableEntity, "Subscription charge declined", nil)
		return
	}
	response.Success(w, http.StatusOK, "Subscription charged", map[string]bool{"paid": true})
}

// DeleteToken deactivates a saved card token with the processor and locally.
func (h *PaymentHandler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	tokenName := chi.URLParam(r, "tokenName")
	if tokenName == "" {
		response.Error(w, http.StatusBadRequest, "Token name is required", nil)
		return
	}

	if err := h.service.DeleteToken(ctx, tokenName); err != nil {
		response.Error(w, http.StatusInternalServerError, "Token deletion failed", err)
		return
	}
	if err := h.registry.DeactivateToken(ctx, tokenName); err != nil {
		response.Error(w, http.StatusInternalServerError, "Token deactivation failed", err)
		return
	}
	response.Success(w, http.StatusOK, "Token deleted", nil)
}

// Status queries the processor for the current state of an order.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	orderID := chi.URLParam(r, "orderID")
	result, err := h.service.CheckStatus(ctx, orderID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Status check failed", err)
		return
	}
	if result == nil {
		response.Error(w, http.StatusBadGateway, "No gateway response", nil)
		return
	}
	response.Success(w, http.StatusOK, "Status retrieved", result)
}

// CancelRequest is the hosted page abandonment payload.
type CancelRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

// Cancel records the shopper abandoning the hosted payment page.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	if err := h.service.MerchantPageCancel(ctx, req.OrderID); err != nil {
		response.Error(w, http.StatusInternalServerError, "Cancel failed", err)
		return
	}
	response.Success(w, http.StatusOK, "Transaction Cancelled", nil)
}

// formParams flattens an inbound processor delivery into a parameter map.
// Redirects arrive urlencoded; webhooks may arrive as JSON.
func formParams(r *http.Request) map[string]string {
	params := map[string]string{}
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			for k, v := range body {
				if s, ok := v.(string); ok {
					params[k] = s
					continue
				}
				data, _ := json.Marshal(v)
				params[k] = string(data)
			}
		}
		return params
	}
	if err := r.ParseForm(); err != nil {
		return params
	}
	for k, values := range r.Form {
		if len(values) > 0 {
			params[k] = values[0]
		}
	}
	return params
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.Index(ip, ","); idx >= 0 {
			return strings.TrimSpace(ip[:idx])
		}
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return host
}
