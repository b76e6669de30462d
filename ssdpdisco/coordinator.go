// Package ssdpdisco implements the control-point side of device discovery:
// deduplicating sighted devices, coalescing per-location metadata and icon
// fetches, and fanning parsed records out to connected listeners.
package ssdpdisco

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	gossdp "github.com/koron/go-ssdp"
	log "github.com/sirupsen/logrus"

	"gargoton.petite-maison-orange.fr/eric/pmossdp/scpd"
	"gargoton.petite-maison-orange.fr/eric/pmossdp/ssdp"
)

const defaultDiscoverWait = 6 * time.Second

// descEntry is the single-fire in-flight marker for one location's metadata
// fetch: the first caller to see a location creates the entry and owns the
// fetch; every other caller blocks on done and then rereads metadata.
type descEntry struct {
	done     chan struct{}
	metadata *scpd.Metadata
}

// Coordinator owns the three caches and listener set described for
// control-point operation. Every exported method is safe for concurrent
// use; a single mutex pins the state the way a cooperative single-threaded
// event loop would implicitly serialize it.
type Coordinator struct {
	engine *ssdp.Engine
	filter string

	mu            sync.Mutex
	remoteDevices map[string]*ssdp.Device
	descCache     map[string]*descEntry
	iconCache     map[string][]byte
	listeners     []*Listener
}

// NewCoordinator builds a Coordinator with its own engine, identified as
// identity on the wire and filtered to filter (empty accepts everything).
func NewCoordinator(identity, filter string) *Coordinator {
	c := &Coordinator{
		filter:        filter,
		remoteDevices: make(map[string]*ssdp.Device),
		descCache:     make(map[string]*descEntry),
		iconCache:     make(map[string][]byte),
	}
	c.engine = ssdp.New(identity, c.HandleSighting)
	c.engine.SetFilter(filter)
	return c
}

// Engine returns the coordinator's long-lived engine, for announcing local
// devices. Its socket is opened by RunDaemon: a device announced before that
// is registered for M-SEARCH replies, but no NOTIFY is sent and Announce
// returns an error.
func (c *Coordinator) Engine() *ssdp.Engine {
	return c.engine
}

// HandleSighting is the engine's device callback: it deduplicates by base
// USN, attaches subdevices, and on a fresh parent or subdevice kicks off
// metadata propagation to every listener.
func (c *Coordinator) HandleSighting(d *ssdp.Device) {
	parent, fresh := c.addRemoteDevice(d)
	if parent == nil {
		return
	}
	c.mu.Lock()
	listeners := append([]*Listener(nil), c.listeners...)
	c.mu.Unlock()

	if !fresh {
		return
	}
	for _, l := range listeners {
		l.Notify(parent, c)
	}
}

// addRemoteDevice deduplicates sightings, keyed by base USN. A sighting carrying a "::" subdevice suffix is
// attached to its parent, synthesising the parent record from the child's
// base USN if it doesn't exist yet (the subdevice is still recorded in that
// case). It returns the device that should be propagated to listeners (the
// parent record) and whether this sighting was new.
func (c *Coordinator) addRemoteDevice(d *ssdp.Device) (*ssdp.Device, bool) {
	base := ssdp.BaseUSN(d.USN)

	c.mu.Lock()
	defer c.mu.Unlock()

	parent, exists := c.remoteDevices[base]
	if !exists {
		if base == d.USN {
			c.remoteDevices[base] = d
			return d, true
		}
		parent = ssdp.NewDevice(base, d.Location)
		c.remoteDevices[base] = parent
		parent.AddSubdevice(d)
		return parent, true
	}

	if base == d.USN {
		return nil, false
	}
	before := len(parent.Subdevices)
	parent.AddSubdevice(d)
	return parent, len(parent.Subdevices) != before
}

// FetchMetadata returns the parsed root description for location, fetching
// it at most once no matter how many callers race for the same location.
// A failed fetch is cached as a nil *scpd.Metadata so the location is not
// retried on every listener connect.
func (c *Coordinator) FetchMetadata(location string) *scpd.Metadata {
	c.mu.Lock()
	entry, inFlight := c.descCache[location]
	if !inFlight {
		entry = &descEntry{done: make(chan struct{})}
		c.descCache[location] = entry
		c.mu.Unlock()

		entry.metadata = c.doFetchMetadata(location)
		close(entry.done)
		return entry.metadata
	}
	c.mu.Unlock()

	<-entry.done
	return entry.metadata
}

func (c *Coordinator) doFetchMetadata(location string) *scpd.Metadata {
	client, err := scpd.NewClient(location)
	if err != nil {
		log.Warnf("❌ invalid metadata location %s: %v", location, err)
		return nil
	}
	md, err := client.FetchMetadata()
	if err != nil || md == nil {
		log.Debugf("metadata fetch failed for %s: %v", location, err)
		return nil
	}

	if url, ok := md.Icon["url"]; ok && url != "" {
		c.fetchAndCacheIcon(location, url)
	}
	return md
}

func (c *Coordinator) fetchAndCacheIcon(location, iconURL string) {
	client, err := scpd.NewClient(iconURL)
	if err != nil {
		log.Warnf("❌ invalid icon location %s: %v", iconURL, err)
		return
	}
	data, err := client.FetchIcon()
	if err != nil || data == nil {
		log.Debugf("icon fetch failed for %s: %v", iconURL, err)
		return
	}
	c.mu.Lock()
	c.iconCache[location] = data
	c.mu.Unlock()
}

// Icon returns the cached icon bytes for location, if one has been fetched.
func (c *Coordinator) Icon(location string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.iconCache[location]
	return data, ok
}

// AddListener registers a new IPC listener, replays the current remote
// device set to it, and schedules a fresh discovery search so devices not
// yet sighted become visible promptly.
func (c *Coordinator) AddListener(ctx context.Context, l *Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	devices := make([]*ssdp.Device, 0, len(c.remoteDevices))
	for _, d := range c.remoteDevices {
		devices = append(devices, d)
	}
	c.mu.Unlock()

	for _, d := range devices {
		l.Notify(d, c)
	}

	go func() {
		if err := c.Discover(ctx, defaultDiscoverWait); err != nil {
			log.Warnf("❌ discovery search on listener connect failed: %v", err)
		}
	}()
}

// removeListener drops l from the listener set; called once l's stream
// fails.
func (c *Coordinator) removeListener(l *Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.listeners {
		if existing == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Discover issues one M-SEARCH from a transient endpoint and feeds every
// response collected during wait through HandleSighting. go-ssdp opens and
// closes its own socket per call; the daemon's long-lived socket is
// untouched, so both can run concurrently. It is the on-demand counterpart
// to RunDaemon.
func (c *Coordinator) Discover(ctx context.Context, wait time.Duration) error {
	target := c.filter
	if target == "" {
		target = gossdp.All
	}
	waitSec := int(wait / time.Second)
	if waitSec <= 0 {
		waitSec = 1
	}

	services, err := gossdp.Search(target, waitSec, "")
	if err != nil {
		return err
	}
	for _, srv := range services {
		d := ssdp.NewDevice(srv.USN, srv.Location)
		d.Extra = extraFromHeader(srv.Header())
		if c.filter == "" || d.Matches(c.filter) {
			c.HandleSighting(d)
		}
	}
	return nil
}

// extraFromHeader copies any "x-…" search-response header into an Extra
// map, keyed by the lowercased name with the prefix stripped.
func extraFromHeader(h http.Header) map[string]string {
	extra := make(map[string]string)
	for name, values := range h {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-") && len(lower) > 2 && len(values) > 0 {
			extra[lower[2:]] = values[0]
		}
	}
	return extra
}

// RunDaemon joins the multicast group and serves both roles at once: it
// receives unsolicited NOTIFYs (forwarded to HandleSighting) and answers
// M-SEARCH queries on behalf of any devices announced on c.engine. It
// blocks until ctx is done or the socket fails.
func (c *Coordinator) RunDaemon(ctx context.Context) error {
	if err := c.engine.Join(); err != nil {
		return err
	}
	defer c.engine.Close()
	return c.engine.Run(ctx)
}
