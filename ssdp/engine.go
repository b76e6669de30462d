// Package ssdp implements the SSDP multicast message engine: parsing and
// formatting of NOTIFY/M-SEARCH/response datagrams, and the socket that
// sends and dispatches them.
package ssdp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	log "github.com/sirupsen/logrus"
)

const (
	MulticastAddr = "239.255.255.250"
	MulticastPort = 1900

	readBufferSize  = 8192
	multicastTTL    = 2
	socketReadPoll  = time.Second
	defaultSearchMX = 2
)

// DeviceCallback receives devices built from an inbound NOTIFY or 200 OK
// datagram.
type DeviceCallback func(*Device)

// Engine owns a UDP socket used to send NOTIFY/M-SEARCH/response traffic
// and dispatch inbound datagrams. One Engine plays either role (or both):
// the set of local devices registered via Announce answers M-SEARCH
// queries; the device callback handles sightings of remote devices.
type Engine struct {
	mu           sync.Mutex
	conn         *net.UDPConn
	localDevices []*Device
	filter       string
	identity     string
	onDevice     DeviceCallback
}

// New creates an unopened Engine. identity is used as the SERVER header
// value on outbound NOTIFY and search-response datagrams. onDevice may be
// nil if this Engine never needs to report sightings (pure announce mode).
func New(identity string, onDevice DeviceCallback) *Engine {
	if onDevice == nil {
		onDevice = func(*Device) {}
	}
	return &Engine{identity: identity, onDevice: onDevice}
}

// SetFilter configures the search-target filter used both to gate reported
// sightings and to decide which M-SEARCH queries are answered. An empty
// filter accepts everything.
func (e *Engine) SetFilter(filter string) {
	e.mu.Lock()
	e.filter = filter
	e.mu.Unlock()
}

// SetDeviceCallback replaces the callback invoked for sighted devices.
func (e *Engine) SetDeviceCallback(cb DeviceCallback) {
	if cb == nil {
		cb = func(*Device) {}
	}
	e.mu.Lock()
	e.onDevice = cb
	e.mu.Unlock()
}

// Identity returns the SERVER header value this engine advertises.
func (e *Engine) Identity() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identity
}

// Join binds the engine's socket to the well-known SSDP port on all
// interfaces, joins the multicast group, and enables the socket options
// required for a device and control point to co-exist on one host:
// SO_REUSEADDR, IP_MULTICAST_LOOP, and IP_MULTICAST_TTL=2. Use this for the
// long-lived daemon role.
func (e *Engine) Join() error {
	conn, err := listenReusable(fmt.Sprintf(":%d", MulticastPort))
	if err != nil {
		return fmt.Errorf("ssdp: join: %w", err)
	}

	if err := conn.SetReadBuffer(readBufferSize); err != nil {
		log.Warnf("❌ failed to set SSDP read buffer: %v", err)
	}

	pconn := ipv4.NewPacketConn(conn)
	group := &net.UDPAddr{IP: net.ParseIP(MulticastAddr)}
	if err := pconn.JoinGroup(nil, group); err != nil {
		conn.Close()
		return fmt.Errorf("ssdp: join multicast group: %w", err)
	}
	if err := pconn.SetMulticastLoopback(true); err != nil {
		log.Warnf("❌ failed to enable multicast loopback: %v", err)
	}
	if err := pconn.SetMulticastTTL(multicastTTL); err != nil {
		log.Warnf("❌ failed to set multicast TTL: %v", err)
	}

	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()
	log.Infof("✅ SSDP engine joined %s:%d", MulticastAddr, MulticastPort)
	return nil
}

// OpenTransient binds an ephemeral, non-multicast-member socket suitable
// for a one-shot M-SEARCH: it can send to the multicast group and receive
// the unicast replies, but does not receive unsolicited NOTIFYs. Use this
// for a one-shot discovery pass.
func (e *Engine) OpenTransient() error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return fmt.Errorf("ssdp: open transient socket: %w", err)
	}
	if err := conn.SetReadBuffer(readBufferSize); err != nil {
		log.Warnf("❌ failed to set SSDP read buffer: %v", err)
	}

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.SetMulticastLoopback(true); err != nil {
		log.Warnf("❌ failed to enable multicast loopback: %v", err)
	}
	if err := pconn.SetMulticastTTL(multicastTTL); err != nil {
		log.Warnf("❌ failed to set multicast TTL: %v", err)
	}

	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()
	return nil
}

// Close releases the engine's socket.
func (e *Engine) Close() error {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (e *Engine) multicastAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(MulticastAddr), Port: MulticastPort}
}

// Announce registers a local device and immediately emits one NOTIFY
// ssdp:alive for it. Re-announcement on a timer is out of scope; Announce
// sends exactly once per call.
func (e *Engine) Announce(d *Device) error {
	e.mu.Lock()
	e.localDevices = append(e.localDevices, d)
	conn := e.conn
	identity := e.identity
	e.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("ssdp: engine socket not open")
	}

	msg := FormatNotify(d.Location, d.Target(), d.USN, identity)
	if _, err := conn.WriteToUDP([]byte(msg), e.multicastAddr()); err != nil {
		log.Warnf("❌ failed to send NOTIFY for %s: %v", d.USN, err)
		return err
	}
	log.Infof("✅ NOTIFY sent for %s", d.USN)
	return nil
}

// Search emits one M-SEARCH to the multicast group.
func (e *Engine) Search(target string, maxDelay int) error {
	if target == "" {
		target = "ssdp:all"
	}
	if maxDelay <= 0 {
		maxDelay = defaultSearchMX
	}

	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("ssdp: engine socket not open")
	}

	msg := FormatSearch(target, maxDelay)
	if _, err := conn.WriteToUDP([]byte(msg), e.multicastAddr()); err != nil {
		log.Warnf("❌ failed to send M-SEARCH: %v", err)
		return err
	}
	return nil
}

// Run reads datagrams until ctx is done or a non-transient socket error
// occurs. Transient errors (read timeouts, used here only to poll ctx)
// are swallowed; any other read error is fatal and returned to the caller.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("ssdp: engine socket not open")
	}

	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(socketReadPoll)); err != nil {
			return fmt.Errorf("ssdp: fatal: %w", err)
		}
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			log.Warnf("❌ SSDP read error: %v", err)
			return fmt.Errorf("ssdp: fatal read error: %w", err)
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		e.handleDatagram(datagram, src)
	}
}

func (e *Engine) handleDatagram(data []byte, src *net.UDPAddr) {
	msg := ParseMessage(data)
	if msg == nil {
		return
	}
	switch msg.Kind {
	case KindNotify, KindResponse:
		e.handleAdvertisement(msg)
	case KindSearch:
		e.handleSearch(msg, src)
	}
}

func (e *Engine) handleAdvertisement(msg *Message) {
	usn := msg.Header("usn")
	location := msg.Header("location")
	device := NewDevice(usn, location)
	device.Extra = extractXHeaders(msg.Headers)

	e.mu.Lock()
	filter := e.filter
	callback := e.onDevice
	e.mu.Unlock()

	if filter == "" || device.Matches(filter) {
		callback(device)
	}
}

func extractXHeaders(headers map[string]string) map[string]string {
	extra := make(map[string]string)
	for name, value := range headers {
		if len(name) > 2 && name[:2] == "x-" {
			extra[name[2:]] = value
		}
	}
	return extra
}

// handleSearch answers an M-SEARCH. When no filter is configured, every
// local device replies unconditionally. When a filter is configured, the filter
// itself stands in for the search target: only the local device(s) whose
// own Target() matches the filter reply, regardless of the query's ST.
func (e *Engine) handleSearch(msg *Message, src *net.UDPAddr) {
	e.mu.Lock()
	filter := e.filter
	identity := e.identity
	devices := append([]*Device(nil), e.localDevices...)
	conn := e.conn
	e.mu.Unlock()

	if conn == nil {
		return
	}

	for _, reply := range searchReplies(filter, msg.Header("st"), devices) {
		e.sendSearchResponse(conn, reply.device, src, reply.searchTarget, identity)
	}
}

type searchReply struct {
	device       *Device
	searchTarget string
}

// searchReplies decides which local devices answer an M-SEARCH and with
// which ST header. With no filter, every device answers unconditionally,
// echoing the query's ST (or "ssdp:all" if it had none). With a filter
// configured, the filter itself stands in for the search target: only the
// device(s) whose own Target() matches the filter answer, regardless of
// what the query actually asked for.
func searchReplies(filter, queryST string, devices []*Device) []searchReply {
	replies := make([]searchReply, 0, len(devices))
	if filter == "" {
		responseST := queryST
		if responseST == "" {
			responseST = "ssdp:all"
		}
		for _, d := range devices {
			replies = append(replies, searchReply{device: d, searchTarget: responseST})
		}
		return replies
	}

	for _, d := range devices {
		if d.Matches(filter) {
			replies = append(replies, searchReply{device: d, searchTarget: filter})
		}
	}
	return replies
}

func (e *Engine) sendSearchResponse(conn *net.UDPConn, d *Device, dst *net.UDPAddr, searchTarget, identity string) {
	msg := FormatResponse(d.Location, searchTarget, d.USN, identity)
	if _, err := conn.WriteToUDP([]byte(msg), dst); err != nil {
		log.Warnf("❌ failed to send M-SEARCH response to %v: %v", dst, err)
		return
	}
	log.Infof("📡 responded to M-SEARCH from %v with ST=%s USN=%s", dst, searchTarget, d.USN)
}

// listenReusable binds a UDP socket with SO_REUSEADDR set, so a host can
// run a device and a control point (or several control points) at once,
// each joining the SSDP multicast group independently.
func listenReusable(addr string) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, rc syscall.RawConn) error {
			var sockErr error
			err := rc.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}
