package mqtt

import "fmt"

// TopicPrefix is the root of every topic the bridge publishes or consumes.
//
// Entity topics use the flat scheme graylogic/{kind}/{protocol}/{id}, so
// subscribers can filter by kind or protocol with a single wildcard.
const TopicPrefix = "graylogic"

// Topics provides builders for the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.EntityState("dirigera", "a1b2c3_1")
//	// "graylogic/state/dirigera/a1b2c3_1"
type Topics struct{}

// EntityDiscovery returns the retained announcement topic for an entity.
func (Topics) EntityDiscovery(protocol, id string) string {
	return fmt.Sprintf("%s/discovery/%s/%s", TopicPrefix, protocol, id)
}

// EntityState returns the retained state topic for an entity.
func (Topics) EntityState(protocol, id string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, id)
}

// EntityCommand returns the command topic an entity listens on.
func (Topics) EntityCommand(protocol, id string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocol, id)
}

// BridgeHealth returns the health topic for a protocol bridge.
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocol)
}

// SystemStatus returns the online/offline status topic (also the LWT topic).
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllEntityCommands returns a wildcard matching every command for a protocol.
func (Topics) AllEntityCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, protocol)
}

// EntityIDFromTopic returns the trailing id segment of an entity topic, or
// "" if the topic has no id segment.
func (Topics) EntityIDFromTopic(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return ""
}
