package ssdpdisco

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"gargoton.petite-maison-orange.fr/eric/pmossdp/ssdp"
)

// Listener is one connected IPC consumer of the discovery fan-out. It
// writes the DEVICE/SUBDEVICE/META/ICON frame protocol described for the
// listener socket and self-removes from its coordinator on write failure.
type Listener struct {
	conn net.Conn

	// mu serializes Notify calls so one device's frame set is never
	// interleaved with another's on the same stream.
	mu sync.Mutex
	w  *bufio.Writer
}

// NewListener wraps a freshly accepted IPC connection.
func NewListener(conn net.Conn) *Listener {
	return &Listener{conn: conn, w: bufio.NewWriter(conn)}
}

// Close closes the underlying connection.
func (l *Listener) Close() error {
	return l.conn.Close()
}

// Notify writes the frame set for d (and recursively its subdevices) to
// l's stream, fetching metadata and icon through coordinator's caches. Any
// write error removes l from coordinator's listener set; the error itself
// is not propagated further.
func (l *Listener) Notify(d *ssdp.Device, coordinator *Coordinator) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writeDevice(d, coordinator, false); err != nil {
		log.Debugf("listener disconnected: %v", err)
		coordinator.removeListener(l)
		return
	}
	if err := l.w.Flush(); err != nil {
		coordinator.removeListener(l)
	}
}

func (l *Listener) writeDevice(d *ssdp.Device, coordinator *Coordinator, subdevice bool) error {
	tag := "DEVICE"
	if subdevice {
		tag = "SUBDEVICE"
	}
	if _, err := fmt.Fprintf(l.w, "%s %s\n", tag, d.USN); err != nil {
		return err
	}

	if d.Location != "" {
		md := coordinator.FetchMetadata(d.Location)
		if md == nil {
			return nil
		}

		if _, err := fmt.Fprintf(l.w, "META %s\n", d.USN); err != nil {
			return err
		}
		for key, value := range md.Properties {
			if _, err := fmt.Fprintf(l.w, "%s:%s\n", key, value); err != nil {
				return err
			}
		}

		if icon, ok := coordinator.Icon(d.Location); ok && len(icon) > 0 {
			if _, err := fmt.Fprintf(l.w, "ICON %s\n", d.USN); err != nil {
				return err
			}
			encoded := base64.StdEncoding.EncodeToString(icon)
			if _, err := fmt.Fprintf(l.w, "%s\n", encoded); err != nil {
				return err
			}
		}
	}

	for _, sub := range d.Subdevices {
		if err := l.writeDevice(sub, coordinator, true); err != nil {
			return err
		}
	}
	return nil
}
