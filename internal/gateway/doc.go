// Package gateway orchestrates the sensei-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the server. It opens the
// credential store, builds the auth and analysis services, and owns the HTTP
// server, the optional gRPC health server and the optional tailscale node.
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled
//
// # HTTP API
//
// Endpoints are registered in api.go:
//
//   - POST /users/register - Create an account (201)
//   - POST /users/login - Exchange credentials for a bearer token
//   - GET /users/me - Current account (auth)
//   - PUT /users/change-password - Replace the password (auth)
//   - DELETE /users/delete - Deactivate the account (auth)
//   - POST /users/logout - Acknowledge logout (auth, 204)
//   - POST /agent/get-hints - Hints for the submitted code
//   - POST /agent/analyze-complexity - Time and space complexity analysis
//   - GET / - Welcome message
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (database and session store)
//
// Errors are returned as {"detail": "..."} with the status chosen by the
// apperr kind. Bodies are limited to 1 MiB.
//
// # Middleware
//
// Requests pass, outermost first, through panic recovery, request ID,
// access log, CORS and identity extraction. The /agent endpoints accept
// anonymous callers, who must then send user_id in the body.
//
// # Lifecycle
//
// Run starts every server in one errgroup. When the context is canceled or
// any server fails, Shutdown runs with a 5 second budget: the health service
// flips to NOT_SERVING, servers drain, and the session store and database
// are closed.
//
// # Tailscale
//
// With tailscale.enabled the gateway joins a tailnet through tsnet and
// serves HTTP on :80, on :443 with tailnet certificates (https), or publicly
// through Funnel. The gRPC health service, when enabled, listens on :50051.
package gateway
