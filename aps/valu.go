package aps

import (
	"context"
	"fmt"
	"strings"
)

// ValuCountryCode prefixes the shopper mobile number for display. The BNPL
// provider only operates in Egypt.
const ValuCountryCode = "+2"

const valuUnavailable = "VALU API failed. Please try again later"

// ValuVerifyResult is the answer of the customer eligibility step.
type ValuVerifyResult struct {
	Verified bool
	Message  string
}

// ValuOTPResult reports the one-time-password delivery. DisplayNumber is the
// internationally prefixed mobile number for the confirmation screen.
type ValuOTPResult struct {
	Generated     bool
	Message       string
	DisplayNumber string
}

// TenureOption is one installment plan offered after OTP verification.
type TenureOption struct {
	Months       string `json:"tenure"`
	EMI          string `json:"emi"`
	InterestRate string `json:"interest_rate"`
}

// ValuTenureResult carries the plans the shopper picks from.
type ValuTenureResult struct {
	Verified bool
	Message  string
	Tenures  []TenureOption
}

// ValuPurchaseResult is the terminal answer of the BNPL flow.
type ValuPurchaseResult struct {
	Success bool
	Message string
}

// ValuVerifyCustomer asks the provider whether the mobile number belongs to
// an eligible customer and opens a payment session when it does.
func (s *Service) ValuVerifyCustomer(ctx context.Context, sessionID, mobileNumber string) (ValuVerifyResult, error) {
	reference := generateReference()
	params := GatewayParams{
		"service_command":     CommandCustomerVerify,
		"merchant_identifier": s.cfg.MerchantIdentifier,
		"access_code":         s.cfg.AccessCode,
		"merchant_reference":  reference,
		"language":            s.cfg.Language,
		"payment_option":      PaymentOptionValu,
		"phone_number":        mobileNumber,
	}
	signature, err := s.signer.Sign(params, SignRequest, FlavorStandard)
	if err != nil {
		return ValuVerifyResult{}, err
	}
	params["signature"] = signature

	result := s.client.PostJSON(ctx, params, s.cfg.APIURL())
	s.logPayload("Valu verify customer", result, false)

	switch {
	case result.Has("status") && result.Code() == CodeCustomerVerifySuccess:
		session := &PaymentSession{ReferenceID: reference, MobileNumber: mobileNumber}
		if err := s.sessions.Put(ctx, sessionID, session); err != nil {
			return ValuVerifyResult{}, err
		}
		return ValuVerifyResult{Verified: true, Message: "Customer verified"}, nil

	case result.Code() == CodeCustomerVerifyFailed:
		_ = s.sessions.Delete(ctx, sessionID)
		message := valuUnavailable
		if result.Message() != "" {
			message = "Customer does not exist."
		}
		return ValuVerifyResult{Message: message}, nil

	default:
		_ = s.sessions.Delete(ctx, sessionID)
		message := result.Message()
		if message == "" {
			message = valuUnavailable
		}
		return ValuVerifyResult{Message: message}, nil
	}
}

// valuProducts summarizes the order lines for the provider. Multiple items
// collapse to one sentinel entry priced at the order total; the sentinel
// spelling is fixed on the processor side.
func (s *Service) valuProducts(order *Order) ProductList {
	name := ""
	category := ""
	if len(order.Items) > 0 {
		name = CleanString(order.Items[0].Name)
		category = CleanString(order.Items[0].Category)
	}
	if len(order.Items) > 1 {
		name = "MutipleProducts"
	}
	return ProductList{{
		Name:     name,
		Price:    s.orderAmount(order, order.Currency),
		Category: category,
	}}
}

// ValuGenerateOTP requests a one-time password for the verified customer and
// binds the order and provider transaction id to the session.
func (s *Service) ValuGenerateOTP(ctx context.Context, sessionID, orderID string) (ValuOTPResult, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return ValuOTPResult{}, err
	}
	if session == nil || session.ReferenceID == "" {
		return ValuOTPResult{Message: valuUnavailable}, nil
	}
	order, err := s.orders.Load(ctx, orderID)
	if err != nil {
		return ValuOTPResult{}, err
	}

	currency := order.Currency
	params := GatewayParams{
		"service_command":     CommandOTPGenerate,
		"access_code":         s.cfg.AccessCode,
		"merchant_identifier": s.cfg.MerchantIdentifier,
		"merchant_reference":  session.ReferenceID,
		"language":            s.cfg.Language,
		"payment_option":      PaymentOptionValu,
		"merchant_order_id":   orderID,
		"phone_number":        session.MobileNumber,
		"amount":              s.orderAmount(order, currency),
		"currency":            currency,
		"products":            s.valuProducts(order),
	}
	signature, err := s.signer.Sign(params, SignRequest, FlavorStandard)
	if err != nil {
		return ValuOTPResult{}, err
	}
	params["signature"] = signature

	result := s.client.PostJSON(ctx, params, s.cfg.APIURL())
	s.logPayload("Valu generate otp", result, false)

	if result.Code() != CodeOTPGenerateSuccess {
		_ = s.sessions.Delete(ctx, sessionID)
		message := result.Message()
		if message == "" {
			message = valuUnavailable
		}
		return ValuOTPResult{Message: message}, nil
	}

	session.OrderID = orderID
	session.TransactionID = result.Str("transaction_id")
	if err := s.sessions.Put(ctx, sessionID, session); err != nil {
		return ValuOTPResult{}, err
	}
	return ValuOTPResult{
		Generated:     true,
		Message:       "OTP Generated",
		DisplayNumber: ValuCountryCode + session.MobileNumber,
	}, nil
}

// ValuVerifyOTP checks the password the shopper typed and returns the
// installment plans the provider offers for this purchase.
func (s *Service) ValuVerifyOTP(ctx context.Context, sessionID, orderID, otp string) (ValuTenureResult, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return ValuTenureResult{}, err
	}
	if session == nil || session.ReferenceID == "" {
		return ValuTenureResult{Message: valuUnavailable}, nil
	}
	if orderID == "" {
		orderID = session.OrderID
	}
	order, err := s.orders.Load(ctx, orderID)
	if err != nil {
		return ValuTenureResult{}, err
	}

	currency := order.Currency
	params := GatewayParams{
		"service_command":     CommandOTPVerify,
		"merchant_identifier": s.cfg.MerchantIdentifier,
		"access_code":         s.cfg.AccessCode,
		"merchant_reference":  session.ReferenceID,
		"language":            s.cfg.Language,
		"payment_option":      PaymentOptionValu,
		"phone_number":        session.MobileNumber,
		"amount":              s.orderAmount(order, currency),
		"merchant_order_id":   orderID,
		"currency":            currency,
		"otp":                 otp,
		"total_downpayment":   0,
	}
	signature, err := s.signer.Sign(params, SignRequest, FlavorStandard)
	if err != nil {
		return ValuTenureResult{}, err
	}
	params["signature"] = signature

	result := s.client.PostJSON(ctx, params, s.cfg.APIURL())
	s.logPayload("Valu verify otp", result, false)

	if result.Code() != CodeOTPVerifySuccess {
		message := result.Message()
		if message == "" {
			message = valuUnavailable
		}
		return ValuTenureResult{Message: message}, nil
	}

	session.OTP = otp
	if err := s.sessions.Put(ctx, sessionID, session); err != nil {
		return ValuTenureResult{}, err
	}
	return ValuTenureResult{
		Verified: true,
		Message:  "OTP Verified successfully",
		Tenures:  parseTenures(result),
	}, nil
}

// parseTenures extracts the installment plan list from an OTP verification
// answer. The provider nests the list under tenure.TENURE_VM.
func parseTenures(result Response) []TenureOption {
	tenure, ok := result["tenure"].(map[string]any)
	if !ok {
		return nil
	}
	entries, ok := tenure["TENURE_VM"].([]any)
	if !ok {
		return nil
	}
	options := make([]TenureOption, 0, len(entries))
	for _, entry := range entries {
		fields, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		options = append(options, TenureOption{
			Months:       anyString(fields["TENURE"]),
			EMI:          anyString(fields["EMI"]),
			InterestRate: anyString(fields["InterestRate"]),
		})
	}
	return options
}

func anyString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// ValuExecutePurchase completes the BNPL sale with the plan the shopper
// picked and closes the payment session.
func (s *Service) ValuExecutePurchase(ctx context.Context, sessionID, orderID, activeTenure string) (ValuPurchaseResult, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return ValuPurchaseResult{}, err
	}
	if session == nil || session.ReferenceID == "" {
		return ValuPurchaseResult{Message: valuUnavailable}, nil
	}
	if orderID == "" {
		orderID = session.OrderID
	}
	order, err := s.orders.Load(ctx, orderID)
	if err != nil {
		return ValuPurchaseResult{}, err
	}

	currency := order.Currency
	params := GatewayParams{
		"command":              CommandPurchase,
		"merchant_identifier":  s.cfg.MerchantIdentifier,
		"access_code":          s.cfg.AccessCode,
		"merchant_reference":   session.ReferenceID,
		"language":             s.cfg.Language,
		"payment_option":       PaymentOptionValu,
		"phone_number":         session.MobileNumber,
		"amount":               s.orderAmount(order, currency),
		"merchant_order_id":    orderID,
		"currency":             strings.ToUpper(currency),
		"otp":                  session.OTP,
		"tenure":               activeTenure,
		"total_down_payment":   0,
		"customer_code":        session.MobileNumber,
		"customer_email":       order.Email,
		"purchase_description": "Order" + orderID,
		"transaction_id":       session.TransactionID,
	}
	params.Merge(s.cfg.PluginParams())
	signature, err := s.signer.Sign(params, SignRequest, FlavorStandard)
	if err != nil {
		return ValuPurchaseResult{}, err
	}
	params["signature"] = signature

	result := s.client.PostJSON(ctx, params, s.cfg.APIURL())
	s.logPayload("Valu execute purchase", result, false)

	if result.Code() == CodePurchaseSuccess {
		if err := s.orders.MarkSuccess(ctx, orderID, stringMap(result), ModeOnline); err != nil {
			return ValuPurchaseResult{}, err
		}
		_ = s.sessions.Delete(ctx, sessionID)
		return ValuPurchaseResult{Success: true, Message: "Transaction Verified successfully"}, nil
	}

	message := result.Message()
	if message == "" {
		message = valuUnavailable
	}
	if _, err := s.orders.MarkDeclined(ctx, orderID, stringMap(result), message); err != nil {
		return ValuPurchaseResult{}, err
	}
	return ValuPurchaseResult{Message: message}, nil
}
