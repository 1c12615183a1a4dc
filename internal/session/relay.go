package session

import (
	"context"
	"log/slog"

	"github.com/ashureev/hudong/internal/store"
)

// Relay forwards slot changes made by other processes onto bus until ctx is
// done. Versions written by stores in this process are skipped; stores
// ignore any that slip through because they already hold that version.
func Relay(ctx context.Context, w store.Watcher, key string, bus *LocalBroadcaster) error {
	if key == "" {
		key = store.DefaultKey
	}
	slog.Info("Slot relay started", "key", key)
	defer slog.Info("Slot relay stopped", "key", key)

	return w.Watch(ctx, key, func(doc []byte, version int64) {
		if bus.WroteVersion(key, version) {
			return
		}
		slog.Debug("Relaying external slot change", "key", key, "version", version, "bytes", len(doc))
		bus.Publish(Envelope{Key: key, Doc: doc, Version: version})
	})
}
