// Package mqtt provides the broker connection for the Dirigera bridge.
//
// The bridge publishes entity announcements, entity state and its own
// health onto the Gray Logic bus and listens for entity commands:
//
//	Dirigera hub ↔ graylogic-dirigera ↔ MQTT broker ↔ Gray Logic Core
//
// The client reconnects on its own, restores subscriptions after a
// reconnect and registers a Last Will on graylogic/system/status so
// consumers can tell a crash from a clean shutdown.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//	err = client.Subscribe(topics.AllEntityCommands("dirigera"), 1,
//	    func(topic string, payload []byte) error {
//	        return router.HandleCommand(topics.EntityIDFromTopic(topic), payload)
//	    })
package mqtt
