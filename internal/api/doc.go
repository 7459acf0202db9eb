// Package api provides the HTTP REST API and the WebSocket transports for
// Cellgate Core.
//
// Two WebSocket endpoints feed the hub:
//
//   - /api/v1/device/ws carries the device protocol. Devices authenticate
//     in-band with their connect token, so the route sits outside the
//     dashboard auth middleware.
//   - /api/v1/ws carries dashboard requests and the live event stream.
//
// The REST routes expose the same commands plus the stored history
// (devices, messages, calls, codes, inbound messages and contacts).
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
