package ssdpdisco

import (
	"context"
	"net"
	"os"

	log "github.com/sirupsen/logrus"
)

// ServeListeners accepts connections on a Unix domain socket at sockPath and
// registers each as a Coordinator listener. It removes any stale socket
// file left behind by a previous run before binding, and unlinks the
// socket path on shutdown.
func ServeListeners(ctx context.Context, coordinator *Coordinator, sockPath string) error {
	os.Remove(sockPath)

	l, err := net.Listen("unix", sockPath)
	if err != nil {
		return err
	}
	defer os.Remove(sockPath)

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	log.Infof("✅ listener socket ready at %s", sockPath)
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		coordinator.AddListener(ctx, NewListener(conn))
	}
}
