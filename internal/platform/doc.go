// Package platform holds the registered entities, one Platform per host
// category.
//
// A Platform's AddEntities method is the callback the discovery
// coordinator invokes. Adding an entity persists it to the entities table,
// keeps it in memory and announces it over MQTT:
//
//	graylogic/discovery/dirigera/{id}  retained announcement
//	graylogic/state/dirigera/{id}      retained state
//	graylogic/command/dirigera/{id}    inbound commands
//
// A Set groups the platforms of one bridge. It routes hub state events to
// the owning entity and MQTT commands to entities that accept them.
package platform
