// Package server exposes discovered airRohr nodes over HTTP.
//
// # Endpoints
//
//	GET  /api/devices                  all devices, sorted by name
//	GET  /api/devices/{name}           one device
//	POST /api/devices/{name}/resolve   re-trigger resolution (202)
//	POST /api/devices/{name}/refresh   fetch fresh readings (202)
//	GET  /ws                           stream of snapshots as JSON messages
//	GET  /metrics                      Prometheus metrics
//
// Errors are returned as {"message": ..., "status": ...}. Unknown devices
// give 404 and refreshing a device without an address gives 409.
//
// # WebSocket
//
// Each message has type "snapshot" and carries the full device list. A
// client that reads slowly skips intermediate snapshots rather than
// building a backlog. The server pings every 54 seconds and drops clients
// that do not answer within 60.
package server
