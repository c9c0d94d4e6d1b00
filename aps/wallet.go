package aps

import (
	"context"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// WalletPaymentData is the Apple Pay token handed over by the browser after
// the shopper authorizes the payment sheet.
type WalletPaymentData struct {
	Data          string            `json:"data" validate:"required"`
	Signature     string            `json:"signature" validate:"required"`
	Header        map[string]string `json:"header" validate:"required"`
	PaymentMethod map[string]string `json:"paymentMethod" validate:"required"`
}

// WalletPaymentResult is the settled outcome of an Apple Pay purchase.
type WalletPaymentResult struct {
	Success bool
	Message string
}

// InitWalletPayment charges an order with the Apple Pay token. The wallet
// channel has its own access code and signing phrases; its nested token
// blocks are prefixed before signing.
func (s *Service) InitWalletPayment(ctx context.Context, orderID string, token WalletPaymentData, clientIP string) (WalletPaymentResult, error) {
	order, err := s.orders.Load(ctx, orderID)
	if err != nil {
		return WalletPaymentResult{}, err
	}

	currency := s.gatewayCurrency(order)
	params := GatewayParams{
		"digital_wallet":      WalletApplePay,
		"command":             s.commandFor(MethodApplePay, "", ""),
		"merchant_identifier": s.cfg.MerchantIdentifier,
		"access_code":         s.cfg.WalletAccessCode,
		"merchant_reference":  orderID,
		"language":            s.cfg.Language,
		"amount":              s.orderAmount(order, currency),
		"currency":            strings.ToUpper(currency),
		"customer_email":      order.Email,
		"apple_data":          token.Data,
		"apple_signature":     token.Signature,
		"customer_ip":         clientIP,
	}
	header := NestedBlock{}
	for key, value := range token.Header {
		header["apple_"+key] = value
	}
	params["apple_header"] = header
	method := NestedBlock{}
	for key, value := range token.PaymentMethod {
		method["apple_"+key] = value
	}
	params["apple_paymentMethod"] = method

	signature, err := s.signer.Sign(params, SignRequest, FlavorWallet)
	if err != nil {
		return WalletPaymentResult{}, err
	}
	params["signature"] = signature

	s.logPayload("Apple payment request", params, false)
	response := s.client.PostJSON(ctx, params, s.cfg.APIURL())
	s.logPayload("Apple payment response", response, false)

	code := response.Code()
	message := response.Message()

	switch {
	case code == CodePurchaseSuccess || code == CodeAuthorizationSuccess:
		if err := s.orders.MarkSuccess(ctx, orderID, stringMap(response), ModeOnline); err != nil {
			return WalletPaymentResult{}, err
		}
		return WalletPaymentResult{Success: true, Message: message}, nil

	case OutcomeForCode(code) == OutcomeOnHold:
		if err := s.orders.MarkOnHold(ctx, orderID, message); err != nil {
			return WalletPaymentResult{}, err
		}
		s.logPayload("APS apple pay on hold stage", response, false)
		return WalletPaymentResult{Success: true, Message: message}, nil

	default:
		if _, err := s.orders.MarkDeclined(ctx, orderID, stringMap(response), message); err != nil {
			return WalletPaymentResult{}, err
		}
		return WalletPaymentResult{Message: message}, nil
	}
}

// ValidateWalletSession performs the Apple Pay merchant validation handshake
// against the validation URL supplied by the payment sheet. The merchant
// identifier is read from the merchant certificate itself.
func (s *Service) ValidateWalletSession(ctx context.Context, validationURL string) ([]byte, error) {
	merchantID, err := walletMerchantID(s.cfg.WalletCertificatePath)
	if err != nil {
		return nil, err
	}
	payload := map[string]string{
		"merchantIdentifier": merchantID,
		"domainName":         s.cfg.WalletDomainName,
		"displayName":        s.cfg.WalletDisplayName,
	}
	session, err := s.client.PostWalletSession(ctx, payload, validationURL)
	if err != nil {
		s.log.Error("Apple pay merchant validation failed", err)
		return nil, err
	}
	return session, nil
}

// oidUID is the X.500 userID attribute, where Apple stores the merchant
// identifier in the certificate subject.
var oidUID = asn1.ObjectIdentifier{0, 9, 2342, 19200300, 100, 1, 1}

func walletMerchantID(certificatePath string) (string, error) {
	raw, err := os.ReadFile(certificatePath)
	if err != nil {
		return "", fmt.Errorf("aps: failed to read wallet certificate: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return "", fmt.Errorf("aps: wallet certificate %s is not PEM encoded", certificatePath)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("aps: failed to parse wallet certificate: %w", err)
	}
	for _, name := range cert.Subject.Names {
		if name.Type.Equal(oidUID) {
			if uid, ok := name.Value.(string); ok {
				return uid, nil
			}
		}
	}
	return "", fmt.Errorf("aps: wallet certificate %s carries no merchant identifier", certificatePath)
}
