package scpd

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	log "github.com/sirupsen/logrus"
)

const (
	iconWidth  = 32
	iconHeight = 32
	iconDepth  = 24
)

// Server is a minimal HTTP/1.1 responder bound to one announced device's
// host:port. It understands exactly two request lines and answers anything
// else with 400. It does not read past the request line, support
// keep-alive, or honour Range requests.
type Server struct {
	addr string

	rootDesc []byte
	icon     []byte

	listener net.Listener
}

// NewServer precomputes the root description document for one device and
// returns a Server ready to Start. icon may be nil if the device has none;
// in that case GET /icon.png also answers 400.
func NewServer(host string, port int, deviceType, friendlyName, uuid string, icon []byte) *Server {
	return &Server{
		addr:     fmt.Sprintf("%s:%d", host, port),
		rootDesc: []byte(RootDescriptionXML(host, port, deviceType, friendlyName, uuid, len(icon) > 0)),
		icon:     icon,
	}
}

// RootDescriptionXML renders the root description document for a device at
// host:port. withIcon controls whether the iconList child is populated;
// when false the list is left empty.
func RootDescriptionXML(host string, port int, deviceType, friendlyName, uuid string, withIcon bool) string {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	root := doc.CreateElement("root")
	root.CreateAttr("xmlns", deviceNamespace)

	spec := root.CreateElement("specVersion")
	spec.CreateElement("major").SetText("1")
	spec.CreateElement("minor").SetText("0")

	root.CreateElement("URLBase").SetText(fmt.Sprintf("http://%s:%d", host, port))

	device := root.CreateElement("device")
	device.CreateElement("deviceType").SetText(deviceType)
	device.CreateElement("friendlyName").SetText(friendlyName)
	device.CreateElement("UDN").SetText("uuid:" + uuid)
	device.CreateElement("UPC")

	iconList := device.CreateElement("iconList")
	if withIcon {
		icon := iconList.CreateElement("icon")
		icon.CreateElement("mimetype").SetText("image/png")
		icon.CreateElement("width").SetText(strconv.Itoa(iconWidth))
		icon.CreateElement("height").SetText(strconv.Itoa(iconHeight))
		icon.CreateElement("depth").SetText(strconv.Itoa(iconDepth))
		icon.CreateElement("url").SetText(fmt.Sprintf("http://%s:%d%s", host, port, IconPath))
	}

	device.CreateElement("serviceList")

	doc.Indent(2)
	out, err := doc.WriteToString()
	if err != nil {
		return ""
	}
	return out
}

// Start binds the listening socket and begins accepting connections in the
// background. Call Stop, or cancel ctx, to shut it down.
func (s *Server) Start(ctx context.Context) error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("scpd: listen: %w", err)
	}
	s.listener = l
	log.Infof("✅ metadata server listening on %s", l.Addr())

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	go s.acceptLoop()
	return nil
}

// Stop closes the listening socket.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		log.Warnf("❌ metadata server: failed to read request line: %v", err)
		return
	}
	line = strings.TrimRight(line, "\r\n")
	log.Infof("📡 metadata request: %s", line)

	switch line {
	case "GET " + RootDescPath + " HTTP/1.1":
		s.sendRootDesc(conn)
	case "GET " + IconPath + " HTTP/1.1":
		if len(s.icon) == 0 {
			s.sendNotFound(conn)
			return
		}
		s.sendIcon(conn)
	default:
		s.sendNotFound(conn)
	}
}

func (s *Server) sendRootDesc(w net.Conn) {
	header := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\n"+
			"Content-Type: application/xml; charset=utf8\r\n"+
			"Content-Length: %d\r\n"+
			"\r\n",
		len(s.rootDesc),
	)
	w.Write([]byte(header))
	w.Write(s.rootDesc)
}

func (s *Server) sendIcon(w net.Conn) {
	header := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\n"+
			"Content-Type: image/png\r\n"+
			"Content-Length: %d\r\n"+
			"\r\n",
		len(s.icon),
	)
	w.Write([]byte(header))
	w.Write(s.icon)
}

func (s *Server) sendNotFound(w net.Conn) {
	body := []byte("<html><body>Not found.</body></html>")
	header := fmt.Sprintf(
		"HTTP/1.1 400 Not Found\r\n"+
			"Content-Type: text/html; charset=utf8\r\n"+
			"Content-Length: %d\r\n"+
			"\r\n",
		len(body),
	)
	w.Write([]byte(header))
	w.Write(body)
}
