// Package mqtt connects platformd to the broker that carries the
// remote-object tree and the daemon's own platform values.
//
// Client delivers messages one at a time in arrival order, because the
// tree must see an object's value updates before its removal.
// Subscriptions are replayed after every reconnect. The retained document
// on Topics.SystemStatus reads "online" while the daemon is connected,
// "offline" after a clean Close and "lost" (the broker-published will)
// otherwise.
//
// Topics names every topic in one namespace rooted at the configured
// prefix.
package mqtt
