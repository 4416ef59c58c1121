// Package api implements the bridge's HTTP API.
//
// Endpoints, all under /api/v1:
//
//	GET  /health                    liveness plus dependency checks
//	GET  /metrics                   runtime and bridge counters
//	GET  /entities                  registered entities (?category=)
//	GET  /entities/{id}             one entity
//	POST /entities/{id}/command     run a command on an entity
//	GET  /discovery                 coordinator stats and known ids
//	GET  /discovery/attempts        recent attempts (?device_id=, ?outcome=, ?limit=)
//	POST /discovery/{id}            trigger discovery for a device id
//
// Every response carries an X-Request-ID header. Handler panics are
// recovered and answered with 500.
package api
