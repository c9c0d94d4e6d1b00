package aps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/payops/apsgw/infra/config"
	"github.com/payops/apsgw/infra/logger"
)

// Service orchestrates gateway requests and response dispatch for one
// merchant. All collaborators are injected; the service itself holds no
// mutable state.
type Service struct {
	cfg      *config.APSConfig
	orders   OrderStore
	tokens   TokenStore
	sessions SessionStore
	signer   *Signer
	client   *Client
	log      *logger.Logger
}

// NewService wires a payment service from its collaborators.
func NewService(cfg *config.APSConfig, orders OrderStore, tokens TokenStore, sessions SessionStore, signer *Signer, client *Client, log *logger.Logger) *Service {
	return &Service{
		cfg:      cfg,
		orders:   orders,
		tokens:   tokens,
		sessions: sessions,
		signer:   signer,
		client:   client,
		log:      log,
	}
}

// RequestForm is a prepared gateway request: the endpoint to POST to and the
// signed parameters. For tokenized flows that were settled inline,
// RedirectURL carries where to send the shopper instead.
type RequestForm struct {
	URL                  string        `json:"url"`
	Params               GatewayParams `json:"params"`
	IsHostedTokenization bool          `json:"is_hosted_tokenization"`
	RedirectURL          string        `json:"redirect_url,omitempty"`
	Declined             bool          `json:"declined,omitempty"`
	Message              string        `json:"message,omitempty"`
}

// CheckoutExtras carries optional checkout inputs: a saved token and its
// verification fields, and an explicit order id when the shopper session
// does not supply one.
type CheckoutExtras struct {
	OrderID      string
	PaymentToken string
	PaymentCVV   string
	CardBin      string
	ClientIP     string
}

// chargeFront reports whether amounts are converted to the shopper currency.
func (s *Service) chargeFront() bool {
	return s.cfg.GatewayCurrency == "front"
}

// gatewayCurrency picks the currency code sent to the processor.
func (s *Service) gatewayCurrency(order *Order) string {
	if s.chargeFront() {
		return order.Currency
	}
	return s.cfg.BaseCurrency
}

// orderAmount converts the order total for transport.
func (s *Service) orderAmount(order *Order, currency string) string {
	return ToMinorUnits(order.Total, order.CurrencyRate, currency, s.chargeFront())
}

// generateReference creates a unique merchant reference for requests that
// are not tied to an existing order id.
func generateReference() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// commandFor selects the processor command for a payment method. Domestic
// scheme cards settle immediately, so they force PURCHASE regardless of the
// configured payment action.
func (s *Service) commandFor(paymentMethod, cardBin, cardType string) string {
	command := CommandPurchase
	switch paymentMethod {
	case MethodCard, MethodApplePay:
		command = strings.ToUpper(s.cfg.PaymentAction)
	}
	if cardBin != "" {
		switch CardType(cardBin, s.cfg.MadaBins, s.cfg.MeezaBins) {
		case CardMada, CardMeeza:
			return CommandPurchase
		}
	}
	if cardType != "" && (strings.EqualFold(cardType, CardMada) || strings.EqualFold(cardType, CardMeeza)) {
		return CommandPurchase
	}
	return command
}

// BuildPaymentForm assembles the signed parameter set for a checkout. For
// redirection flows the result is posted by the shopper's browser to the
// payment page; for hosted/standard checkout it targets the tokenization
// service, and a supplied saved token settles the payment inline.
func (s *Service) BuildPaymentForm(ctx context.Context, paymentMethod, integrationType, paymentOption string, extras CheckoutExtras) (*RequestForm, error) {
	order, err := s.orders.Load(ctx, extras.OrderID)
	if err != nil {
		return nil, fmt.Errorf("aps: load order %s: %w", extras.OrderID, err)
	}

	form := &RequestForm{URL: s.cfg.GatewayURL()}
	params := GatewayParams{
		"merchant_identifier": s.cfg.MerchantIdentifier,
		"access_code":         s.cfg.AccessCode,
		"merchant_reference":  order.ID,
		"language":            s.cfg.Language,
	}

	if integrationType == IntegrationRedirection {
		currency := s.gatewayCurrency(order)
		params["currency"] = strings.ToUpper(currency)
		params["amount"] = s.orderAmount(order, currency)
		params["customer_email"] = order.Email
		params["command"] = s.commandFor(paymentMethod, "", "")
		params["order_description"] = "Order#" + order.ID
		if extras.PaymentToken != "" {
			params["token_name"] = extras.PaymentToken
		}
		params["return_url"] = s.cfg.ReturnURL("/v1/callback")
		switch {
		case paymentOption != "":
			params["payment_option"] = paymentOption
		case paymentMethod == MethodInstallment:
			params["installments"] = CommandStandalone
			params["command"] = CommandPurchase
		case paymentMethod == MethodVisaCheckout:
			params["digital_wallet"] = CommandVisaWallet
		}
		params.Merge(s.cfg.PluginParams())
	} else {
		params["service_command"] = CommandTokenization
		params["return_url"] = s.cfg.ReturnURL("/v1/callback/merchant")
		if paymentMethod == MethodInstallment && integrationType == IntegrationStandardCheckout {
			currency := s.gatewayCurrency(order)
			params["currency"] = strings.ToUpper(currency)
			params["installments"] = CommandStandalone
			params["amount"] = s.orderAmount(order, currency)
		}
		if extras.PaymentToken != "" {
			params["token_name"] = extras.PaymentToken
			if extras.PaymentCVV != "" {
				params["card_security_code"] = extras.PaymentCVV
			}
			if extras.CardBin != "" {
				params["card_bin"] = extras.CardBin
			}
			if err := s.settleTokenCheckout(ctx, params, order, integrationType, extras, form); err != nil {
				return nil, err
			}
		}
	}

	signature, err := s.signer.Sign(params, SignRequest, FlavorStandard)
	if err != nil {
		return nil, err
	}
	params["signature"] = signature
	// Subscriptions require a stored token; remember_me rides along after
	// signing, the processor excludes it from verification.
	if integrationType == IntegrationHostedCheckout && s.cfg.Subscriptions {
		params["remember_me"] = "YES"
	}

	form.Params = params
	s.logPayload("APS payment form built for method "+paymentMethod, form, false)
	return form, nil
}

// settleTokenCheckout runs the inline notify pivot: a saved token plus CVV
// turns the tokenization request into an immediate purchase whose outcome
// decides where the shopper goes next.
func (s *Service) settleTokenCheckout(ctx context.Context, params GatewayParams, order *Order, integrationType string, extras CheckoutExtras, form *RequestForm) error {
	src := map[string]string{
		"token_name":         extras.PaymentToken,
		"card_security_code": extras.PaymentCVV,
		"card_bin":           extras.CardBin,
	}
	notify := s.Notify(ctx, src, order, integrationType, extras.ClientIP)
	notifyCode := notify.Code()
	notifyMessage := notify.Message()

	if integrationType == IntegrationHostedCheckout {
		form.IsHostedTokenization = true
	}

	switch {
	case notifyCode == CodePurchaseSuccess:
		if err := s.orders.MarkSuccess(ctx, order.ID, stringMap(notify), ModeOnline); err != nil {
			return err
		}
		form.RedirectURL = s.cfg.CheckoutSuccessURL
	case notifyCode == CodeIntermediate3DS && notify.Has("3ds_url"):
		form.RedirectURL = notify.Str("3ds_url")
	case OutcomeForCode(notifyCode) == OutcomeOnHold:
		if err := s.orders.MarkOnHold(ctx, order.ID, notifyMessage); err != nil {
			return err
		}
		s.logPayload("APS handler ERROR", notify, false)
		form.RedirectURL = s.cfg.CheckoutSuccessURL
	default:
		s.logPayload("APS handler ERROR", notify, false)
		if _, err := s.orders.MarkDeclined(ctx, order.ID, stringMap(notify), notifyMessage); err != nil {
			return err
		}
		form.Declined = true
		form.Message = notifyMessage
		form.RedirectURL = s.cfg.CheckoutFailureURL
	}
	return nil
}

// Notify requests a purchase against the order using freshly tokenized or
// saved card data. It is the synchronous sub-call behind tokenization
// callbacks and inline token checkouts.
func (s *Service) Notify(ctx context.Context, src map[string]string, order *Order, integrationType, clientIP string) Response {
	currency := s.gatewayCurrency(order)
	paymentMethod := order.PaymentMethod

	command := CommandPurchase
	switch {
	case s.cfg.Subscriptions:
		command = CommandPurchase
	case src["card_bin"] != "":
		command = s.commandFor(paymentMethod, src["card_bin"], "")
	case src["card_number"] != "":
		bin := src["card_number"]
		if len(bin) > 6 {
			bin = bin[:6]
		}
		command = s.commandFor(paymentMethod, bin, "")
	default:
		command = s.commandFor(paymentMethod, "", "")
	}

	if tokenName := src["token_name"]; tokenName != "" {
		if token, err := s.tokens.FindByName(ctx, tokenName, order.UserID); err == nil && token != nil && token.CardType != "" {
			command = s.commandFor(paymentMethod, "", strings.ToUpper(token.CardType))
		}
	}

	params := GatewayParams{
		"merchant_identifier": s.cfg.MerchantIdentifier,
		"access_code":         s.cfg.AccessCode,
		"merchant_reference":  order.ID,
		"language":            s.cfg.Language,
		"command":             command,
		"customer_ip":         clientIP,
		"amount":              s.orderAmount(order, currency),
		"currency":            strings.ToUpper(currency),
		"customer_email":      order.Email,
		"return_url":          s.cfg.ReturnURL("/v1/callback"),
	}

	if paymentMethod == MethodVisaCheckout {
		params["call_id"] = src["visa_checkout_call_id"]
		params["digital_wallet"] = CommandVisaWallet
	} else {
		params["token_name"] = src["token_name"]
		if cvv := src["card_security_code"]; cvv != "" {
			params["card_security_code"] = cvv
		}
	}

	switch {
	case paymentMethod == MethodInstallment && integrationType == IntegrationStandardCheckout:
		params["installments"] = "YES"
		params["plan_code"] = src["plan_code"]
		params["issuer_code"] = src["issuer_code"]
		params["command"] = CommandPurchase
	case paymentMethod == MethodInstallment && integrationType == IntegrationHostedCheckout:
		params["installments"] = "HOSTED"
		params["plan_code"] = order.PlanCode
		params["issuer_code"] = order.IssuerCode
		params["command"] = CommandPurchase
	case order.PlanCode != "":
		params["installments"] = "HOSTED"
		params["plan_code"] = order.PlanCode
		params["issuer_code"] = order.IssuerCode
		params["command"] = CommandPurchase
	}

	if order.CustomerName != "" {
		params["customer_name"] = order.CustomerName
	}
	params["eci"] = eciEcommerce
	if rememberMe, ok := src["remember_me"]; ok && src["card_security_code"] == "" && paymentMethod != MethodVisaCheckout {
		params["remember_me"] = rememberMe
	}
	params.Merge(s.cfg.PluginParams())

	signature, err := s.signer.Sign(params, SignRequest, FlavorStandard)
	if err != nil {
		s.log.Error("APS notify signing failed", err)
		return nil
	}
	params["signature"] = signature

	s.logPayload("APS notify request", params, false)
	response := s.client.PostJSON(ctx, params, s.cfg.APIURL())
	s.logPayload("APS notify response", response, false)
	return response
}

// ProcessSubscriptionPayment charges a subscription renewal with the token
// stored from the original order's gateway response. No shopper interaction.
func (s *Service) ProcessSubscriptionPayment(ctx context.Context, renewalOrderID string, recurringAmount float64) (bool, error) {
	order, err := s.orders.Load(ctx, renewalOrderID)
	if err != nil {
		return false, fmt.Errorf("aps: load renewal order %s: %w", renewalOrderID, err)
	}
	stored := order.GatewayResponse
	if stored == nil || stored["token_name"] == "" {
		return false, fmt.Errorf("aps: renewal order %s has no stored token", renewalOrderID)
	}
	currency := stored["currency"]
	language := stored["language"]

	params := GatewayParams{
		"merchant_identifier": s.cfg.MerchantIdentifier,
		"access_code":         s.cfg.AccessCode,
		"merchant_reference":  order.ID,
		"language":            language,
		"command":             CommandPurchase,
		"amount":              ToMinorUnits(recurringAmount, 1, currency, s.chargeFront()),
		"currency":            strings.ToUpper(currency),
		"customer_email":      order.Email,
		"eci":                 eciRecurring,
		"token_name":          stored["token_name"],
		"return_url":          s.cfg.ReturnURL("/v1/callback"),
	}
	if order.CustomerName != "" {
		params["customer_name"] = order.CustomerName
	}

	signature, err := s.signer.Sign(params, SignRequest, FlavorStandard)
	if err != nil {
		return false, err
	}
	params["signature"] = signature

	s.logPayload("APS recurring request", params, false)
	response := s.client.PostJSON(ctx, params, s.cfg.APIURL())
	s.logPayload("APS recurring response", response, false)

	if response.Code() == CodePurchaseSuccess {
		if err := s.orders.MarkSuccess(ctx, order.ID, stringMap(response), ModeOnline); err != nil {
			return false, err
		}
		return true, nil
	}
	if _, err := s.orders.MarkDeclined(ctx, order.ID, stringMap(response), response.Message()); err != nil {
		return false, err
	}
	return false, nil
}

// DeleteToken deactivates a saved card token at the processor.
func (s *Service) DeleteToken(ctx context.Context, tokenName string) error {
	params := GatewayParams{
		"service_command":     CommandUpdateToken,
		"merchant_identifier": s.cfg.MerchantIdentifier,
		"access_code":         s.cfg.AccessCode,
		"merchant_reference":  generateReference(),
		"language":            s.cfg.Language,
		"token_name":          tokenName,
		"token_status":        "INACTIVE",
	}
	signature, err := s.signer.Sign(params, SignRequest, FlavorStandard)
	if err != nil {
		return err
	}
	params["signature"] = signature

	response := s.client.PostJSON(ctx, params, s.cfg.APIURL())
	s.logPayload("APS delete token", response, false)
	if response == nil {
		return fmt.Errorf("aps: token deactivation for %s got no gateway response", tokenName)
	}
	return nil
}

// CheckStatus queries the processor for the current transaction state of an
// order. Wallet orders sign with the wallet profile; BNPL orders query by
// their linked reference id.
func (s *Service) CheckStatus(ctx context.Context, orderID string) (Response, error) {
	order, err := s.orders.Load(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("aps: load order %s: %w", orderID, err)
	}

	flavor := FlavorStandard
	accessCode := s.cfg.AccessCode
	if order.PaymentMethod == MethodApplePay {
		flavor = FlavorWallet
		accessCode = s.cfg.WalletAccessCode
	}

	reference := order.ID
	if order.PaymentMethod == MethodValu && order.ValuReferenceID != "" {
		s.log.Record("APS check status order "+order.ID+" via reference "+order.ValuReferenceID, false)
		reference = order.ValuReferenceID
	}

	params := GatewayParams{
		"merchant_identifier": s.cfg.MerchantIdentifier,
		"access_code":         accessCode,
		"merchant_reference":  reference,
		"language":            s.cfg.Language,
		"query_command":       CommandCheckStatus,
	}
	signature, err := s.signer.Sign(params, SignRequest, flavor)
	if err != nil {
		return nil, err
	}
	params["signature"] = signature

	s.logPayload("APS check status request", params, false)
	response := s.client.PostJSON(ctx, params, s.cfg.APIURL())
	s.logPayload("APS check status response", response, false)
	return response, nil
}

// MerchantPageCancel records the shopper abandoning the hosted payment page.
func (s *Service) MerchantPageCancel(ctx context.Context, orderID string) error {
	if orderID == "" {
		return nil
	}
	return s.orders.MarkCancelled(ctx, orderID)
}

// stringMap flattens a gateway response into the string payload the order
// store persists.
func stringMap(r Response) map[string]string {
	out := make(map[string]string, len(r))
	for k := range r {
		out[k] = r.Str(k)
	}
	return out
}

// logPayload records a message with its JSON-rendered payload.
func (s *Service) logPayload(message string, payload any, force bool) {
	rendered, err := json.Marshal(payload)
	if err != nil {
		s.log.Record(message, force)
		return
	}
	s.log.Payload(message, string(rendered), force)
}
