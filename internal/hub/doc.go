// Package hub is the client for the IKEA Dirigera hub's local API.
//
// The hub serves a REST API and an event websocket on the same port
// (8443 by default), both authenticated with a bearer token:
//
//	https://{host}:8443/v1/devices/{id}     device records
//	https://{host}:8443/v1/scenes/{id}      scenes
//	wss://{host}:8443/v1                    event stream
//
// The hub presents a self-signed certificate, so TLS verification is off
// unless hub.verify_tls is set.
//
// Client covers the REST surface; EventListener consumes the event stream
// and keeps reconnecting until its context ends.
package hub
