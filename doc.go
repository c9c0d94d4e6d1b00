// Package apsgw is a payment service fronting Amazon Payment Services (the
// processor formerly known as PayFort). It builds the signed parameter sets
// the shopper's browser posts to the hosted payment page, verifies and
// dispatches the processor's redirect returns and webhooks, and drives the
// order lifecycle that results.
//
// # Overview
//
// APS authenticates every request and response with a SHA/HMAC signature
// computed over the sorted parameter set wrapped in a merchant passphrase.
// apsgw owns that signing contract on both directions, plus the flows built
// on top of it: card checkout (redirection and hosted tokenization),
// saved-token charges, subscription renewals, Apple Pay, and the multi-step
// VALU buy-now-pay-later flow.
//
// # Architecture
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│   Storefront    │◄──►│     apsgw       │◄──►│      APS        │
//	│   (your shop)   │    │   (this repo)   │    │  (processor)    │
//	│                 │    │                 │    │                 │
//	└─────────────────┘    └─────────────────┘    └─────────────────┘
//
// The shop registers an order and asks for a payment form; apsgw returns the
// signed parameters and tells the shop where to post them. The processor
// calls back to apsgw directly, both through the shopper's browser and
// server-to-server; apsgw verifies the signature, resolves the outcome from
// the response code, transitions the order, and tells the shop (or the
// shopper's browser) where to go next.
//
// # Packages
//
//   - aps: signing engine, amount codec, request builders, response
//     dispatcher, BNPL and wallet flows
//   - handler, router: the HTTP surface under /v1
//   - infra/storage: SQLite persistence for orders, tokens and sessions
//   - infra/config, infra/logger, infra/opensearch: configuration and the
//     gateway diagnostics sink
//
// # Quick Start
//
//	store, _ := storage.NewSQLiteStore("./data/apsgw.db")
//	cfg := config.LoadAPSConfig()
//	service := aps.NewService(cfg, store, store, store,
//		aps.SignerFromConfig(cfg), aps.NewClient(nil), logger.New(nil, cfg.DebugMode))
//
//	form, err := service.BuildPaymentForm(ctx, aps.MethodCard,
//		aps.IntegrationRedirection, "", aps.CheckoutExtras{OrderID: "ORD-1"})
//
// See cmd/main.go for the full service wiring.
package apsgw
