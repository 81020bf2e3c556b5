// Package server is the HTTP surface of the transaction platform: one POST
// endpoint per command kind, GET endpoints for the read facade, and the
// standard health and info endpoints. Handlers stay thin: bind JSON, build
// the command, call the dispatcher, map the AppError to a status code.
//
// Built-in middleware (server/middleware): recovery, request logging,
// request-ID propagation, CORS, body-size limits, and keyed rate limiting
// backed by the resilience package.
package server
