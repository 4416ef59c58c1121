// Package dirigera runs the bridge between a Dirigera hub and Gray Logic.
//
//	┌─────────────────┐          ┌─────────────────┐  REST + websocket
//	│   Gray Logic    │   MQTT   │ Dirigera Bridge │◄─────────────────► Dirigera hub
//	│      Core       │◄────────►│   (this pkg)    │
//	└─────────────────┘          └─────────────────┘
//
// On Start the bridge lists every device on the hub, builds the entities
// it supports and registers them with their platforms, one batch per
// category. It then follows the hub's event stream:
//
//   - events for known devices update the entity's state
//   - events for unknown devices start a discovery attempt
//   - deviceRemoved marks the entity unavailable
//
// A HealthReporter publishes the bridge's status to graylogic/health/dirigera.
package dirigera
