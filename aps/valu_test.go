package aps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValuVerifyCustomer_Eligible(t *testing.T) {
	server, received := captureServer(t, map[string]any{
		"status":           "04",
		"response_code":    CodeCustomerVerifySuccess,
		"response_message": "Success",
	})
	defer server.Close()

	cfg := testConfig()
	cfg.APIEndpoint = server.URL
	sessions := newMemSessionStore()
	s := newTestService(cfg, newMockOrderStore(), nil, sessions)

	result, err := s.ValuVerifyCustomer(context.Background(), "sess-1", "01012345678")
	require.NoError(t, err)

	assert.True(t, result.Verified)
	assert.Equal(t, CommandCustomerVerify, (*received)["service_command"])
	assert.Equal(t, PaymentOptionValu, (*received)["payment_option"])
	assert.Equal(t, "01012345678", (*received)["phone_number"])

	session := sessions.sessions["sess-1"]
	require.NotNil(t, session)
	assert.Equal(t, "01012345678", session.MobileNumber)
	assert.NotEmpty(t, session.ReferenceID)
	assert.Equal(t, (*received)["merchant_reference"], session.ReferenceID)
}

func TestValuVerifyCustomer_NotFound(t *testing.T) {
	server, _ := captureServer(t, map[string]any{
		"response_code":    CodeCustomerVerifyFailed,
		"response_message": "Customer not found",
	})
	defer server.Close()

	cfg := testConfig()
	cfg.APIEndpoint = server.URL
	sessions := newMemSessionStore()
	sessions.sessions["sess-1"] = &PaymentSession{ReferenceID: "stale"}
	s := newTestService(cfg, newMockOrderStore(), nil, sessions)

	result, err := s.ValuVerifyCustomer(context.Background(), "sess-1", "01012345678")
	require.NoError(t, err)

	assert.False(t, result.Verified)
	assert.Equal(t, "Customer does not exist.", result.Message)
	assert.Nil(t, sessions.sessions["sess-1"])
}

func TestValuVerifyCustomer_MissingStatusField(t *testing.T) {
	// A verify code without the status marker is not trusted.
	server, _ := captureServer(t, map[string]any{
		"response_code":    CodeCustomerVerifySuccess,
		"response_message": "Success",
	})
	defer server.Close()

	cfg := testConfig()
	cfg.APIEndpoint = server.URL
	s := newTestService(cfg, newMockOrderStore(), nil, nil)

	result, err := s.ValuVerifyCustomer(context.Background(), "sess-1", "01012345678")
	require.NoError(t, err)
	assert.False(t, result.Verified)
}

func TestValuVerifyCustomer_GatewayDown(t *testing.T) {
	cfg := testConfig()
	cfg.APIEndpoint = "http://127.0.0.1:1"
	s := newTestService(cfg, newMockOrderStore(), nil, nil)

	result, err := s.ValuVerifyCustomer(context.Background(), "sess-1", "01012345678")
	require.NoError(t, err)

	assert.False(t, result.Verified)
	assert.Equal(t, "VALU API failed. Please try again later", result.Message)
}

func TestValuGenerateOTP(t *testing.T) {
	server, received := captureServer(t, map[string]any{
		"response_code":    CodeOTPGenerateSuccess,
		"response_message": "Success",
		"transaction_id":   "TX-9",
	})
	defer server.Close()

	cfg := testConfig()
	cfg.APIEndpoint = server.URL
	sessions := newMemSessionStore()
	sessions.sessions["sess-1"] = &PaymentSession{ReferenceID: "ref123", MobileNumber: "01012345678"}
	orders := newMockOrderStore(testOrder("ORD-1"))
	s := newTestService(cfg, orders, nil, sessions)

	result, err := s.ValuGenerateOTP(context.Background(), "sess-1", "ORD-1")
	require.NoError(t, err)

	assert.True(t, result.Generated)
	assert.Equal(t, "+201012345678", result.DisplayNumber)

	assert.Equal(t, CommandOTPGenerate, (*received)["service_command"])
	assert.Equal(t, "ref123", (*received)["merchant_reference"])
	assert.Equal(t, "ORD-1", (*received)["merchant_order_id"])
	products, ok := (*received)["products"].([]any)
	require.True(t, ok)
	require.Len(t, products, 1)
	entry := products[0].(map[string]any)
	assert.Equal(t, "Blue Shirt", entry["product_name"])
	assert.Equal(t, "Apparel", entry["product_category"])

	session := sessions.sessions["sess-1"]
	assert.Equal(t, "ORD-1", session.OrderID)
	assert.Equal(t, "TX-9", session.TransactionID)
}

func TestValuGenerateOTP_MultipleItemsCollapse(t *testing.T) {
	server, received := captureServer(t, map[string]any{
		"response_code":  CodeOTPGenerateSuccess,
		"transaction_id": "TX-9",
	})
	defer server.Close()

	cfg := testConfig()
	cfg.APIEndpoint = server.URL
	order := testOrder("ORD-1")
	order.Items = append(order.Items, Item{Name: "Red Hat", Category: "Apparel", Price: 20, Quantity: 1})
	sessions := newMemSessionStore()
	sessions.sessions["sess-1"] = &PaymentSession{ReferenceID: "ref123", MobileNumber: "01012345678"}
	s := newTestService(cfg, newMockOrderStore(order), nil, sessions)

	_, err := s.ValuGenerateOTP(context.Background(), "sess-1", "ORD-1")
	require.NoError(t, err)

	products := (*received)["products"].([]any)
	entry := products[0].(map[string]any)
	assert.Equal(t, "MutipleProducts", entry["product_name"])
}

func TestValuGenerateOTP_NoSession(t *testing.T) {
	s := newTestService(testConfig(), newMockOrderStore(testOrder("ORD-1")), nil, nil)

	result, err := s.ValuGenerateOTP(context.Background(), "sess-1", "ORD-1")
	require.NoError(t, err)

	assert.False(t, result.Generated)
	assert.Equal(t, "VALU API failed. Please try again later", result.Message)
}

func TestValuGenerateOTP_FailureClosesSession(t *testing.T) {
	server, _ := captureServer(t, map[string]any{
		"response_code":    "63000",
		"response_message": "OTP generation failed",
	})
	defer server.Close()

	cfg := testConfig()
	cfg.APIEndpoint = server.URL
	sessions := newMemSessionStore()
	sessions.sessions["sess-1"] = &PaymentSession{ReferenceID: "ref123", MobileNumber: "01012345678"}
	s := newTestService(cfg, newMockOrderStore(testOrder("ORD-1")), nil, sessions)

	result, err := s.ValuGenerateOTP(context.Background(), "sess-1", "ORD-1")
	require.NoError(t, err)

	assert.False(t, result.Generated)
	assert.Equal(t, "OTP generation failed", result.Message)
	assert.Nil(t, sessions.sessions["sess-1"])
}

func TestValuVerifyOTP(t *testing.T) {
	server, received := captureServer(t, map[string]any{
		"response_code":    CodeOTPVerifySuccess,
		"response_message": "Success",
		"tenure": map[string]any{
			"TENURE_VM": []any{
				map[string]any{"TENURE": 6, "EMI": "350", "InterestRate": 1.5},
				map[string]any{"TENURE": 12, "EMI": "180", "InterestRate": 2.25},
			},
		},
	})
	defer server.Close()

	cfg := testConfig()
	cfg.APIEndpoint = server.URL
	sessions := newMemSessionStore()
	sessions.sessions["sess-1"] = &PaymentSession{ReferenceID: "ref123", MobileNumber: "01012345678", OrderID: "ORD-1"}
	s := newTestService(cfg, newMockOrderStore(testOrder("ORD-1")), nil, sessions)

	// Empty order id falls back to the one bound at OTP generation.
	result, err := s.ValuVerifyOTP(context.Background(), "sess-1", "", "1234")
	require.NoError(t, err)

	assert.True(t, result.Verified)
	require.Len(t, result.Tenures, 2)
	assert.Equal(t, TenureOption{Months: "6", EMI: "350", InterestRate: "1.5"}, result.Tenures[0])
	assert.Equal(t, TenureOption{Months: "12", EMI: "180", InterestRate: "2.25"}, result.Tenures[1])

	assert.Equal(t, CommandOTPVerify, (*received)["service_command"])
	assert.Equal(t, "1234", (*received)["otp"])
	assert.Equal(t, "ORD-1", (*received)["merchant_order_id"])
	assert.Equal(t, float64(0), (*received)["total_downpayment"])

	assert.Equal(t, "1234", sessions.sessions["sess-1"].OTP)
}

func TestValuVerifyOTP_WrongCode(t *testing.T) {
	server, _ := captureServer(t, map[string]any{
		"response_code":    "65000",
		"response_message": "Invalid OTP",
	})
	defer server.Close()

	cfg := testConfig()
	cfg.APIEndpoint = server.URL
	sessions := newMemSessionStore()
	sessions.sessions["sess-1"] = &PaymentSession{ReferenceID: "ref123", MobileNumber: "01012345678", OrderID: "ORD-1"}
	s := newTestService(cfg, newMockOrderStore(testOrder("ORD-1")), nil, sessions)

	result, err := s.ValuVerifyOTP(context.Background(), "sess-1", "ORD-1", "9999")
	require.NoError(t, err)

	assert.False(t, result.Verified)
	assert.Equal(t, "Invalid OTP", result.Message)
	assert.Empty(t, result.Tenures)
}

func TestValuExecutePurchase(t *testing.T) {
	server, received := captureServer(t, map[string]any{
		"response_code":    CodePurchaseSuccess,
		"response_message": "Success",
		"payment_option":   PaymentOptionValu,
	})
	defer server.Close()

	cfg := testConfig()
	cfg.APIEndpoint = server.URL
	sessions := newMemSessionStore()
	sessions.sessions["sess-1"] = &PaymentSession{
		ReferenceID:   "ref123",
		MobileNumber:  "01012345678",
		OrderID:       "ORD-1",
		TransactionID: "TX-9",
		OTP:           "1234",
	}
	orders := newMockOrderStore(testOrder("ORD-1"))
	s := newTestService(cfg, orders, nil, sessions)

	result, err := s.ValuExecutePurchase(context.Background(), "sess-1", "", "6")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"ORD-1"}, orders.successCalls)
	assert.Equal(t, ModeOnline, orders.successMode)
	assert.Nil(t, sessions.sessions["sess-1"])

	assert.Equal(t, CommandPurchase, (*received)["command"])
	assert.Equal(t, "ref123", (*received)["merchant_reference"])
	assert.Equal(t, "OrderORD-1", (*received)["purchase_description"])
	assert.Equal(t, "01012345678", (*received)["customer_code"])
	assert.Equal(t, "6", (*received)["tenure"])
	assert.Equal(t, "TX-9", (*received)["transaction_id"])
	assert.Equal(t, float64(0), (*received)["total_down_payment"])
	assert.Equal(t, "APSGW", (*received)["app_plugin"])
}

func TestValuExecutePurchase_Declined(t *testing.T) {
	server, _ := captureServer(t, map[string]any{
		"response_code":    "00027",
		"response_message": "Purchase rejected",
	})
	defer server.Close()

	cfg := testConfig()
	cfg.APIEndpoint = server.URL
	sessions := newMemSessionStore()
	sessions.sessions["sess-1"] = &PaymentSession{ReferenceID: "ref123", MobileNumber: "01012345678", OrderID: "ORD-1"}
	orders := newMockOrderStore(testOrder("ORD-1"))
	s := newTestService(cfg, orders, nil, sessions)

	result, err := s.ValuExecutePurchase(context.Background(), "sess-1", "ORD-1", "6")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "Purchase rejected", result.Message)
	assert.Equal(t, []string{"ORD-1"}, orders.declinedCalls)
}

func TestValuExecutePurchase_NoSession(t *testing.T) {
	s := newTestService(testConfig(), newMockOrderStore(testOrder("ORD-1")), nil, nil)

	result, err := s.ValuExecutePurchase(context.Background(), "sess-1", "ORD-1", "6")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "VALU API failed. Please try again later", result.Message)
}
