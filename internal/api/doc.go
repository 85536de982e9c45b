// Package api is a thin HTTP and WebSocket surface over the home service.
//
// Routes:
//
//	GET  /health                      liveness plus adapter summary
//	GET  /metrics                     Prometheus exposition
//	GET  /api/devices                 list, filtered by query parameters
//	GET  /api/devices/{id}            one device
//	POST /api/devices/{id}/commands   evaluate and run a device command
//	GET  /api/scenes                  list scenes
//	POST /api/scenes/{id}/execute     evaluate and run a scene
//	GET  /api/areas                   list areas
//	GET  /api/adapters                adapter status
//	GET  /api/audit                   audit trail page
//	GET  /api/ws                      adapter event stream
//
// When a JWT secret is configured every /api route requires an HS256 bearer
// token. The event stream also accepts the token as a query parameter
// because browsers cannot set headers on WebSocket requests.
package api
