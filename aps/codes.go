package aps

// Processor response codes: a two-digit transaction status followed by a
// three-digit message code.
const (
	CodePurchaseSuccess       = "14000"
	CodeAuthorizationSuccess  = "02000"
	CodeCaptureSuccess        = "04000"
	CodeRefundSuccess         = "06000"
	CodeVoidSuccess           = "08000"
	CodeTokenizationSuccess   = "18000"
	CodeTokenUpdateSuccess    = "58000"
	CodeSafeTokenizationOK    = "24000"
	CodeCancelled             = "13072"
	CodeIntermediate3DS       = "20064"
	CodeCustomerVerifySuccess = "60000"
	CodeCustomerVerifyFailed  = "61000"
	CodeOTPGenerateSuccess    = "62000"
	CodeOTPVerifySuccess      = "64000"
	CodeUncertainTransaction  = "15000"
	CodeTransactionPending    = "19000"
)

// Outcome is the classification the dispatcher acts on.
type Outcome int

const (
	OutcomeDeclined Outcome = iota
	OutcomeSuccess
	OutcomeAuthorizationSuccess
	OutcomeCaptureSuccess
	OutcomeRefundSuccess
	OutcomeVoidSuccess
	OutcomeTokenizationSuccess
	OutcomeOnHold
	OutcomeCancelled
	OutcomeIntermediateSuccess
	OutcomeCustomerVerifySuccess
	OutcomeCustomerVerifyFailed
	OutcomeOTPGenerateSuccess
	OutcomeOTPVerifySuccess
)

// outcomeByCode maps each known response code to exactly one outcome.
// Authorization success (02000) also appears in the processor's capture and
// void documentation tables, but the handler has always resolved it in favor
// of payment success; keep that resolution order.
var outcomeByCode = map[string]Outcome{
	CodePurchaseSuccess:       OutcomeSuccess,
	CodeAuthorizationSuccess:  OutcomeAuthorizationSuccess,
	CodeCaptureSuccess:        OutcomeCaptureSuccess,
	CodeRefundSuccess:         OutcomeRefundSuccess,
	CodeVoidSuccess:           OutcomeVoidSuccess,
	CodeTokenizationSuccess:   OutcomeTokenizationSuccess,
	CodeTokenUpdateSuccess:    OutcomeTokenizationSuccess,
	CodeSafeTokenizationOK:    OutcomeTokenizationSuccess,
	CodeCancelled:             OutcomeCancelled,
	CodeIntermediate3DS:       OutcomeIntermediateSuccess,
	CodeCustomerVerifySuccess: OutcomeCustomerVerifySuccess,
	CodeCustomerVerifyFailed:  OutcomeCustomerVerifyFailed,
	CodeOTPGenerateSuccess:    OutcomeOTPGenerateSuccess,
	CodeOTPVerifySuccess:      OutcomeOTPVerifySuccess,
	CodeUncertainTransaction:  OutcomeOnHold,
	CodeTransactionPending:    OutcomeOnHold,
}

// OutcomeForCode classifies a response code. Unknown codes are declines.
func OutcomeForCode(code string) Outcome {
	if outcome, ok := outcomeByCode[code]; ok {
		return outcome
	}
	return OutcomeDeclined
}

// String returns the outcome name for logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeAuthorizationSuccess:
		return "authorization_success"
	case OutcomeCaptureSuccess:
		return "capture_success"
	case OutcomeRefundSuccess:
		return "refund_success"
	case OutcomeVoidSuccess:
		return "void_success"
	case OutcomeTokenizationSuccess:
		return "tokenization_success"
	case OutcomeOnHold:
		return "on_hold"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeIntermediateSuccess:
		return "intermediate_success"
	case OutcomeCustomerVerifySuccess:
		return "customer_verify_success"
	case OutcomeCustomerVerifyFailed:
		return "customer_verify_failed"
	case OutcomeOTPGenerateSuccess:
		return "otp_generate_success"
	case OutcomeOTPVerifySuccess:
		return "otp_verify_success"
	default:
		return "declined"
	}
}
