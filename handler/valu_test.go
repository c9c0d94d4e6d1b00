package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/payops/apsgw/aps"
)

func valuRequest(t *testing.T, target string, payload any, sessionID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, jsonBody(t, payload))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	return req
}

func TestValuHandlers_RequireSession(t *testing.T) {
	h := newTestHandler(nil, nil)

	tests := []struct {
		name    string
		handler http.HandlerFunc
		payload any
	}{
		{"verify customer", h.ValuVerifyCustomer, ValuVerifyRequest{MobileNumber: "01012345678"}},
		{"generate otp", h.ValuGenerateOTP, ValuOTPRequest{OrderID: "ORD-1"}},
		{"verify otp", h.ValuVerifyOTP, ValuVerifyOTPRequest{OTP: "1234"}},
		{"purchase", h.ValuPurchase, ValuPurchaseRequest{ActiveTenure: "6"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.handler(w, valuRequest(t, "/v1/valu", tt.payload, ""))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestValuVerifyCustomerHandler(t *testing.T) {
	gotSession := ""
	gotMobile := ""
	service := &mockGatewayService{
		valuVerifyCustomerFunc: func(ctx context.Context, sessionID, mobileNumber string) (aps.ValuVerifyResult, error) {
			gotSession = sessionID
			gotMobile = mobileNumber
			return aps.ValuVerifyResult{Verified: true, Message: "Customer verified"}, nil
		},
	}
	h := newTestHandler(service, nil)

	w := httptest.NewRecorder()
	h.ValuVerifyCustomer(w, valuRequest(t, "/v1/valu/verify-customer", ValuVerifyRequest{MobileNumber: "01012345678"}, "sess-1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sess-1", gotSession)
	assert.Equal(t, "01012345678", gotMobile)
}

func TestValuVerifyCustomerHandler_RejectsNonNumericMobile(t *testing.T) {
	h := newTestHandler(nil, nil)

	w := httptest.NewRecorder()
	h.ValuVerifyCustomer(w, valuRequest(t, "/v1/valu/verify-customer", ValuVerifyRequest{MobileNumber: "not-a-number"}, "sess-1"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValuVerifyCustomerHandler_NotEligible(t *testing.T) {
	service := &mockGatewayService{
		valuVerifyCustomerFunc: func(ctx context.Context, sessionID, mobileNumber string) (aps.ValuVerifyResult, error) {
			return aps.ValuVerifyResult{Message: "Customer does not exist."}, nil
		},
	}
	h := newTestHandler(service, nil)

	w := httptest.NewRecorder()
	h.ValuVerifyCustomer(w, valuRequest(t, "/v1/valu/verify-customer", ValuVerifyRequest{MobileNumber: "01012345678"}, "sess-1"))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Customer does not exist.")
}

func TestValuGenerateOTPHandler(t *testing.T) {
	h := newTestHandler(nil, nil)

	w := httptest.NewRecorder()
	h.ValuGenerateOTP(w, valuRequest(t, "/v1/valu/generate-otp", ValuOTPRequest{OrderID: "ORD-1"}, "sess-1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "+201012345678")
}

func TestValuVerifyOTPHandler(t *testing.T) {
	service := &mockGatewayService{
		valuVerifyOTPFunc: func(ctx context.Context, sessionID, orderID, otp string) (aps.ValuTenureResult, error) {
			return aps.ValuTenureResult{
				Verified: true,
				Message:  "OTP Verified successfully",
				Tenures:  []aps.TenureOption{{Months: "6", EMI: "350", InterestRate: "1.5"}},
			}, nil
		},
	}
	h := newTestHandler(service, nil)

	w := httptest.NewRecorder()
	h.ValuVerifyOTP(w, valuRequest(t, "/v1/valu/verify-otp", ValuVerifyOTPRequest{OTP: "1234"}, "sess-1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tenure":"6"`)
}

func TestValuPurchaseHandler_Declined(t *testing.T) {
	service := &mockGatewayService{
		valuExecutePurchaseFunc: func(ctx context.Context, sessionID, orderID, activeTenure string) (aps.ValuPurchaseResult, error) {
			return aps.ValuPurchaseResult{Message: "Purchase rejected"}, nil
		},
	}
	h := newTestHandler(service, nil)

	w := httptest.NewRecorder()
	h.ValuPurchase(w, valuRequest(t, "/v1/valu/purchase", ValuPurchaseRequest{OrderID: "ORD-1", ActiveTenure: "6"}, "sess-1"))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Purchase rejected")
}
