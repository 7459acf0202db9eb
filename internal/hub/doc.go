// Package hub is the connection core of the gateway.
//
// Devices authenticate over a persistent connection and are tracked in a
// Registry that holds at most one live connection per device id. Client
// requests are turned into pending commands by the Router, which sends them
// to the resolved device and returns the command id without waiting for a
// result. Results, inbound messages and presence changes arrive on a
// DeviceSession, are persisted through the Store port and then fanned out
// to every ClientSession by the Bus.
//
// Transport is not part of this package. A transport supplies a Conn for
// each device connection, feeds frames to DeviceSession.HandleFrame, closes
// the connection when that returns ErrAuthFailed or ErrSessionClosed, and
// calls DeviceSession.Close once the connection is gone.
package hub
