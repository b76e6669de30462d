package scpd

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	return conn
}

func startTestServer(t *testing.T, icon []byte) *Server {
	t.Helper()
	s := NewServer("127.0.0.1", 0, "urn:schemas-upnp-org:device:TestDevice:1", "Test Device", "abc-123", icon)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.listener = l

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()
	go s.acceptLoop()

	return s
}

func TestServerServesRootDesc(t *testing.T) {
	s := startTestServer(t, nil)
	conn := dial(t, s.listener.Addr().String())
	defer conn.Close()

	conn.Write([]byte("GET " + RootDescPath + " HTTP/1.1\r\n\r\n"))

	reader := bufio.NewReader(conn)
	status, _ := reader.ReadString('\n')
	if strings.TrimSpace(status) != "HTTP/1.1 200 OK" {
		t.Fatalf("status = %q", status)
	}

	var contentLength string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("reading headers: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(line), "content-length:") {
			contentLength = strings.TrimSpace(strings.SplitN(line, ":", 2)[1])
		}
	}
	if contentLength == "" {
		t.Fatal("missing Content-Length header")
	}
}

func TestServerMissingIconReturns400(t *testing.T) {
	s := startTestServer(t, nil)
	conn := dial(t, s.listener.Addr().String())
	defer conn.Close()

	conn.Write([]byte("GET " + IconPath + " HTTP/1.1\r\n\r\n"))

	reader := bufio.NewReader(conn)
	status, _ := reader.ReadString('\n')
	if strings.TrimSpace(status) != "HTTP/1.1 400 Not Found" {
		t.Fatalf("status = %q, want 400 when no icon configured", status)
	}
}

func TestServerServesIconWhenPresent(t *testing.T) {
	iconBytes := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	s := startTestServer(t, iconBytes)
	conn := dial(t, s.listener.Addr().String())
	defer conn.Close()

	conn.Write([]byte("GET " + IconPath + " HTTP/1.1\r\n\r\n"))

	reader := bufio.NewReader(conn)
	status, _ := reader.ReadString('\n')
	if strings.TrimSpace(status) != "HTTP/1.1 200 OK" {
		t.Fatalf("status = %q", status)
	}
}

func TestServerUnknownRequestLineReturns400(t *testing.T) {
	s := startTestServer(t, nil)
	conn := dial(t, s.listener.Addr().String())
	defer conn.Close()

	conn.Write([]byte("GET /nonsense HTTP/1.1\r\n\r\n"))

	reader := bufio.NewReader(conn)
	status, _ := reader.ReadString('\n')
	if strings.TrimSpace(status) != "HTTP/1.1 400 Not Found" {
		t.Fatalf("status = %q", status)
	}
}

func TestRootDescriptionXMLContainsExpectedShape(t *testing.T) {
	xml := RootDescriptionXML("127.0.0.1", 9, "urn:schemas-upnp-org:device:TestDevice:1", "Test Device", "abc-123", true)

	for _, want := range []string{
		`xmlns="urn:schemas-upnp-org:device-1-0"`,
		"<deviceType>urn:schemas-upnp-org:device:TestDevice:1</deviceType>",
		"<friendlyName>Test Device</friendlyName>",
		"<UDN>uuid:abc-123</UDN>",
		"<URLBase>http://127.0.0.1:9</URLBase>",
		"<url>http://127.0.0.1:9" + IconPath + "</url>",
	} {
		if !strings.Contains(xml, want) {
			t.Errorf("root description missing %q\n%s", want, xml)
		}
	}
}

func TestRootDescriptionXMLWithoutIconOmitsIconElement(t *testing.T) {
	xml := RootDescriptionXML("127.0.0.1", 9, "urn:schemas-upnp-org:device:TestDevice:1", "Test Device", "abc-123", false)
	if strings.Contains(xml, "<icon>") {
		t.Errorf("expected no <icon> element without an icon, got:\n%s", xml)
	}
}
