package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
)

const embeddedLogPrefix = "commsutil:embedded"

// EmbeddedReadyTimeout bounds how long StartEmbedded waits for the broker.
const EmbeddedReadyTimeout = 10 * time.Second

// StartEmbedded runs an in-process COMMS broker on host:port. Port -1 picks a
// random free port; use ClientURL on the returned server to connect.
func StartEmbedded(host string, port int) (*commsserver.Server, error) {
	if host == "" {
		host = "127.0.0.1"
	}
	ns, err := commsserver.NewServer(&commsserver.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create server: %w", embeddedLogPrefix, err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(EmbeddedReadyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("%s - server not ready after %s", embeddedLogPrefix, EmbeddedReadyTimeout)
	}

	slog.Info(fmt.Sprintf("%s - Embedded COMMS listening at %s", embeddedLogPrefix, ns.ClientURL()))
	return ns, nil
}

// StopEmbedded shuts the broker down and waits for it to finish.
func StopEmbedded(ns *commsserver.Server) {
	if ns == nil {
		return
	}
	ns.Shutdown()
	ns.WaitForShutdown()
}
