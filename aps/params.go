package aps

import (
	"fmt"
	"sort"
	"strings"
)

// Payment methods offered at checkout.
const (
	MethodCard         = "cc"
	MethodInstallment  = "installment"
	MethodVisaCheckout = "visa_checkout"
	MethodApplePay     = "apple_pay"
	MethodValu         = "valu"
)

// Integration types, selecting how the shopper reaches the processor.
const (
	IntegrationRedirection      = "redirection"
	IntegrationStandardCheckout = "standard_checkout"
	IntegrationHostedCheckout   = "hosted_checkout"
)

// Processor commands and service commands.
const (
	CommandPurchase       = "PURCHASE"
	CommandAuthorization  = "AUTHORIZATION"
	CommandTokenization   = "TOKENIZATION"
	CommandCheckStatus    = "CHECK_STATUS"
	CommandUpdateToken    = "UPDATE_TOKEN"
	CommandStandalone     = "STANDALONE"
	CommandVisaWallet     = "VISA_CHECKOUT"
	CommandRefund         = "REFUND"
	CommandCapture        = "CAPTURE"
	CommandVoid           = "VOID_AUTHORIZATION"
	CommandCustomerVerify = "CUSTOMER_VERIFY"
	CommandOTPGenerate    = "OTP_GENERATE"
	CommandOTPVerify      = "OTP_VERIFY"
	eciEcommerce          = "ECOMMERCE"
	eciRecurring          = "RECURRING"
)

// WalletApplePay is the digital_wallet marker the processor uses for the
// Apple Pay channel on both requests and webhook payloads.
const WalletApplePay = "APPLE_PAY"

// PaymentOptionValu marks the BNPL installment provider on request and
// response payloads.
const PaymentOptionValu = "VALU"

// NestedBlock is a parameter whose value is a sub-mapping, serialized for
// signing as key={k=v, k2=v2} with inner keys sorted.
type NestedBlock map[string]string

// Product is one line-item entry of the BNPL products parameter.
type Product struct {
	Name     string `json:"product_name"`
	Price    string `json:"product_price"`
	Category string `json:"product_category"`
}

// ProductList is the products parameter. On the wire it is a JSON array; in
// the canonical signing string it collapses to a single descriptor entry.
type ProductList []Product

// GatewayParams is the parameter mapping sent to or received from the
// processor. Scalar values are strings; the wallet header/payment-method
// blocks and the BNPL products list carry their own types so the signature
// engine can apply their special canonical forms.
type GatewayParams map[string]any

// Merge copies the given fields into the mapping.
func (p GatewayParams) Merge(fields map[string]string) {
	for k, v := range fields {
		p[k] = v
	}
}

// sortedKeys returns the parameter keys in ordinal byte order.
func (p GatewayParams) sortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// canonical renders the mapping into the deterministic string the processor
// hashes. Values are emitted exactly as provided, never reformatted.
func (p GatewayParams) canonical() string {
	var sb strings.Builder
	for _, k := range p.sortedKeys() {
		switch v := p[k].(type) {
		case NestedBlock:
			sb.WriteString(k)
			sb.WriteString("={")
			inner := make([]string, 0, len(v))
			for ik := range v {
				inner = append(inner, ik)
			}
			sort.Strings(inner)
			for i, ik := range inner {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(ik)
				sb.WriteString("=")
				sb.WriteString(v[ik])
			}
			sb.WriteString("}")
		case ProductList:
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(v.descriptor())
		default:
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(fmt.Sprintf("%v", v))
		}
	}
	return sb.String()
}

// descriptor renders the products list in the single-entry form the processor
// signs. The list is always built with exactly one entry.
func (l ProductList) descriptor() string {
	var p Product
	if len(l) > 0 {
		p = l[0]
	}
	return fmt.Sprintf("[{product_name=%s, product_price=%s, product_category=%s}]", p.Name, p.Price, p.Category)
}
