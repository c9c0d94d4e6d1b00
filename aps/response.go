package aps

import (
	"context"
	"strings"
)

// excludedResponseParams are transport and tracking fields stripped from an
// inbound payload before its signature is recomputed: the signature itself,
// routing markers added by the callback URLs, and locale markers.
var excludedResponseParams = map[string]struct{}{
	"signature":        {},
	"route":            {},
	"integration_type": {},
	"aps_route":        {},
	"app_launch":       {},
	"app_mobile_site":  {},
	"app_demo":         {},
	"lang":             {},
}

// DispatchResult is the outcome of handling one inbound gateway response.
// Accepted tells the caller whether to acknowledge the delivery; it is
// deliberately decoupled from payment success so webhook retries stop even
// when verification fails. RedirectURL, when set, must be followed by the
// shopper's browser to continue 3-D Secure.
type DispatchResult struct {
	Accepted    bool
	RedirectURL string
	Message     string
}

func rejected(message string) DispatchResult {
	return DispatchResult{Accepted: false, Message: message}
}

// HandleResponse validates an inbound redirect or webhook payload and drives
// the matching order transition.
func (s *Service) HandleResponse(ctx context.Context, raw map[string]string, mode Mode, integrationType, clientIP string) DispatchResult {
	const invalidParams = "Invalid gateway parameters"

	if len(raw) == 0 || raw["merchant_reference"] == "" {
		s.logPayload("APS handler ERROR", raw, false)
		return rejected(invalidParams)
	}

	orderID := raw["merchant_reference"]
	order, _ := s.orders.Load(ctx, orderID)

	// Refund webhooks for BNPL orders can arrive before the local order is
	// linked; they carry the purchase reference id instead of the order id.
	resolvedOrderID := ""
	if order == nil && raw["command"] == CommandRefund {
		s.log.Record("APS refund webhook lookup by reference "+orderID, false)
		if found, err := s.orders.FindByReference(ctx, orderID); err == nil && found != "" {
			resolvedOrderID = found
		}
	}

	stripped := GatewayParams{}
	for k, v := range raw {
		if _, excluded := excludedResponseParams[k]; excluded {
			continue
		}
		stripped[k] = v
	}

	flavor := FlavorStandard
	if raw["digital_wallet"] == WalletApplePay {
		flavor = FlavorWallet
	}
	// Asynchronous refund/capture/void webhooks do not carry the wallet
	// marker; the wallet access code identifies the channel instead.
	switch raw["command"] {
	case CommandRefund, CommandCapture, CommandVoid:
		if raw["access_code"] != "" && raw["access_code"] == s.cfg.WalletAccessCode {
			flavor = FlavorWallet
		}
	}

	expected, err := s.signer.Sign(stripped, SignResponse, flavor)
	if err != nil {
		s.log.Error("APS response signing failed", err)
		return rejected(invalidParams)
	}

	if resolvedOrderID != "" && order == nil {
		orderID = resolvedOrderID
		order, _ = s.orders.Load(ctx, orderID)
		raw["merchant_reference"] = orderID
		s.log.Record("APS refund order resolved from reference: "+orderID, false)
	}

	// The BNPL provider does not sign its responses consistently, so its
	// payment option bypasses verification. Do not remove without the
	// processor confirming current behavior.
	if !strings.EqualFold(expected, raw["signature"]) && raw["payment_option"] != PaymentOptionValu {
		if err := s.orders.MarkOnHold(ctx, orderID, "Invalid Signature."); err != nil {
			s.log.Error("APS on-hold transition failed", err)
		}
		s.logPayload("APS response invalid signature ERROR", raw, false)
		return DispatchResult{Accepted: true, Message: "Invalid Signature"}
	}

	statusMessage := raw["response_message"]

	switch OutcomeForCode(raw["response_code"]) {
	case OutcomeCancelled:
		alreadyFailed, err := s.orders.MarkDeclined(ctx, orderID, raw, "Transaction Cancelled")
		if err != nil {
			return rejected(err.Error())
		}
		s.logPayload("APS handler ERROR", raw, false)
		if alreadyFailed {
			return rejected("Transaction Cancelled")
		}
		return rejected(statusMessage)

	case OutcomeSuccess, OutcomeAuthorizationSuccess:
		if err := s.orders.MarkSuccess(ctx, orderID, raw, mode); err != nil {
			return rejected(err.Error())
		}
		return DispatchResult{Accepted: true, Message: statusMessage}

	case OutcomeOnHold:
		if err := s.orders.MarkOnHold(ctx, orderID, statusMessage); err != nil {
			return rejected(err.Error())
		}
		s.logPayload("APS handler ERROR", raw, false)
		return DispatchResult{Accepted: true, Message: statusMessage}

	case OutcomeCaptureSuccess:
		if err := s.orders.MarkCaptured(ctx, orderID, raw, mode); err != nil {
			return rejected(err.Error())
		}
		return DispatchResult{Accepted: true, Message: statusMessage}

	case OutcomeRefundSuccess:
		if err := s.orders.MarkRefunded(ctx, orderID, raw, mode); err != nil {
			return rejected(err.Error())
		}
		return DispatchResult{Accepted: true, Message: statusMessage}

	case OutcomeVoidSuccess:
		if err := s.orders.MarkVoided(ctx, orderID, raw, mode); err != nil {
			return rejected(err.Error())
		}
		return DispatchResult{Accepted: true, Message: statusMessage}

	case OutcomeTokenizationSuccess:
		return s.settleTokenization(ctx, raw, order, orderID, mode, integrationType, clientIP)

	default:
		// Unknown codes decline, as do the BNPL and 3-D Secure
		// intermediate codes, which never arrive through this entry.
		if _, err := s.orders.MarkDeclined(ctx, orderID, raw, statusMessage); err != nil {
			return rejected(err.Error())
		}
		s.logPayload("APS handler ERROR", raw, false)
		return rejected(statusMessage)
	}
}

// settleTokenization records the new token and immediately attempts the
// purchase with it. An intermediate 3-D Secure answer surfaces as a redirect
// for the shopper; everything else resolves the order here.
func (s *Service) settleTokenization(ctx context.Context, raw map[string]string, order *Order, orderID string, mode Mode, integrationType, clientIP string) DispatchResult {
	if err := s.orders.SaveTokenizationStatus(ctx, orderID); err != nil {
		return rejected(err.Error())
	}
	if order == nil {
		return rejected(ErrOrderNotFound.Error())
	}

	// The token is persisted before the purchase attempt so command
	// selection can use the classified card type, here and on any retry.
	if tokenName := raw["token_name"]; tokenName != "" {
		bin := raw["card_bin"]
		if bin == "" {
			bin = raw["card_number"]
			if len(bin) > 6 {
				bin = bin[:6]
			}
		}
		record := &TokenRecord{
			TokenName:  tokenName,
			MaskedCard: raw["card_number"],
			UserID:     order.UserID,
			CardType:   CardType(bin, s.cfg.MadaBins, s.cfg.MeezaBins),
		}
		if err := s.tokens.SaveToken(ctx, record); err != nil {
			s.log.Error("APS token save failed", err)
		}
	}

	notify := s.Notify(ctx, raw, order, integrationType, clientIP)
	notifyCode := notify.Code()
	notifyMessage := notify.Message()

	switch {
	case notifyCode == CodeIntermediate3DS || notifyCode == CodePurchaseSuccess:
		if notify.Has("3ds_url") {
			return DispatchResult{Accepted: true, RedirectURL: notify.Str("3ds_url")}
		}
		if err := s.orders.MarkSuccess(ctx, orderID, stringMap(notify), mode); err != nil {
			return rejected(err.Error())
		}
		return DispatchResult{Accepted: true, Message: notifyMessage}

	case OutcomeForCode(notifyCode) == OutcomeOnHold:
		if err := s.orders.MarkOnHold(ctx, orderID, notifyMessage); err != nil {
			return rejected(err.Error())
		}
		s.logPayload("APS handler ERROR", notify, false)
		return DispatchResult{Accepted: true, Message: notifyMessage}

	default:
		if _, err := s.orders.MarkDeclined(ctx, orderID, stringMap(notify), notifyMessage); err != nil {
			return rejected(err.Error())
		}
		s.logPayload("APS handler ERROR", notify, false)
		return rejected(notifyMessage)
	}
}
