package router

import (
	"github.com/go-chi/chi/v5"

	"github.com/payops/apsgw/handler"
)

// Routes registers all API routes
func Routes(r chi.Router, paymentHandler *handler.PaymentHandler) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/checkout", paymentHandler.Checkout)

		// Processor return and notification routes. The merchant route
		// receives hosted tokenization returns; both feed the same
		// dispatcher.
		r.HandleFunc("/callback", paymentHandler.Callback)
		r.HandleFunc("/callback/merchant", paymentHandler.Callback)
		r.Post("/webhook", paymentHandler.Webhook)

		r.Post("/cancel", paymentHandler.Cancel)
		r.Get("/status/{orderID}", paymentHandler.Status)
		r.Delete("/token/{tokenName}", paymentHandler.DeleteToken)
		r.Post("/subscription/charge", paymentHandler.SubscriptionCharge)

		// BNPL multi-step flow
		r.Route("/valu", func(r chi.Router) {
			r.Post("/verify-customer", paymentHandler.ValuVerifyCustomer)
			r.Post("/generate-otp", paymentHandler.ValuGenerateOTP)
			r.Post("/verify-otp", paymentHandler.ValuVerifyOTP)
			r.Post("/purchase", paymentHandler.ValuPurchase)
		})

		// Apple Pay
		r.Route("/wallet", func(r chi.Router) {
			r.Post("/session", paymentHandler.WalletSession)
			r.Post("/pay", paymentHandler.WalletPay)
		})
	})
}
