package scpd

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	log "github.com/sirupsen/logrus"
)

const rootCloseTag = "</root>"

// Client fetches a root description or icon from one device's metadata
// server. A Client is single-shot: one TCP connection per Fetch call.
type Client struct {
	host string
	port int
	path string
}

// NewClient parses location (an absolute HTTP URL as published in a
// Device's Location field) into a Client. It fails if the URL is missing a
// host, port, or path.
func NewClient(location string) (*Client, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("scpd: invalid location %q: %w", location, err)
	}
	if u.Hostname() == "" || u.Port() == "" || u.Path == "" {
		return nil, fmt.Errorf("scpd: location %q missing host, port, or path", location)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return nil, fmt.Errorf("scpd: invalid port in %q: %w", location, err)
	}
	return &Client{host: u.Hostname(), port: port, path: u.Path}, nil
}

// FetchMetadata opens a connection, requests c.path, and parses the
// response as a root description. It returns nil, nil (not an error) for
// any deviation from the happy path: non-200 status, malformed header
// block, or XML that does not contain a recognisable device element.
func (c *Client) FetchMetadata() (*Metadata, error) {
	conn, err := net.Dial("tcp", c.addr())
	if err != nil {
		return nil, nil
	}
	defer conn.Close()

	if err := c.writeRequest(conn); err != nil {
		return nil, nil
	}

	reader := bufio.NewReader(conn)
	status, err := readLine(reader)
	if err != nil || status != "HTTP/1.1 200 OK" {
		log.Debugf("scpd: unexpected status fetching %s: %q", c.path, status)
		return nil, nil
	}
	if err := skipHeaders(reader); err != nil {
		return nil, nil
	}

	body, err := readUntilMarker(reader, rootCloseTag)
	if err != nil {
		return nil, nil
	}

	return parseRootDescription(body)
}

// FetchIcon opens a connection, requests c.path, and returns the body bytes
// exactly as announced by Content-Length. It returns nil, nil for any
// deviation from the happy path.
func (c *Client) FetchIcon() ([]byte, error) {
	conn, err := net.Dial("tcp", c.addr())
	if err != nil {
		return nil, nil
	}
	defer conn.Close()

	if err := c.writeRequest(conn); err != nil {
		return nil, nil
	}

	reader := bufio.NewReader(conn)
	status, err := readLine(reader)
	if err != nil || status != "HTTP/1.1 200 OK" {
		log.Debugf("scpd: unexpected status fetching %s: %q", c.path, status)
		return nil, nil
	}

	headers, err := readHeaders(reader)
	if err != nil {
		return nil, nil
	}
	lengthStr, ok := headers["content-length"]
	if !ok {
		log.Debugf("scpd: missing content-length fetching %s", c.path)
		return nil, nil
	}
	length, err := strconv.Atoi(lengthStr)
	if err != nil {
		return nil, nil
	}

	data := make([]byte, length)
	if _, err := readFull(reader, data); err != nil {
		return nil, nil
	}
	return data, nil
}

func (c *Client) addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

func (c *Client) writeRequest(conn net.Conn) error {
	req := fmt.Sprintf("GET %s HTTP/1.1\r\nHOST: %s:%d\r\n\r\n", c.path, c.host, c.port)
	_, err := conn.Write([]byte(req))
	return err
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// skipHeaders consumes lines up to and including the blank line terminating
// a header block, discarding their content.
func skipHeaders(r *bufio.Reader) error {
	_, err := readHeaders(r)
	return err
}

// readHeaders parses "Name: Value" lines up to the blank line, lowercasing
// names. It fails on any line that is neither blank nor a well-formed
// header.
func readHeaders(r *bufio.Reader) (map[string]string, error) {
	headers := make(map[string]string)
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return headers, nil
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, fmt.Errorf("scpd: malformed header %q", line)
		}
		name := strings.ToLower(strings.TrimSpace(line[:idx]))
		headers[name] = strings.TrimSpace(line[idx+1:])
	}
}

// readUntilMarker reads bytes until the literal marker has been seen,
// returning everything read including the marker.
func readUntilMarker(r *bufio.Reader, marker string) ([]byte, error) {
	var buf bytes.Buffer
	m := []byte(marker)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf.WriteByte(b)
		if buf.Len() >= len(m) && bytes.Equal(buf.Bytes()[buf.Len()-len(m):], m) {
			return buf.Bytes(), nil
		}
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// parseRootDescription parses a root description document and builds the
// flat Metadata mapping: leaf elements under <device> become properties;
// the <iconList>'s first <icon> element's leaf children become the nested
// Icon mapping.
func parseRootDescription(body []byte) (*Metadata, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, nil
	}

	device := doc.FindElement("//device")
	if device == nil {
		return nil, nil
	}

	md := &Metadata{Properties: make(map[string]string)}
	for _, child := range device.ChildElements() {
		if len(child.ChildElements()) == 0 {
			md.Properties[child.Tag] = child.Text()
			continue
		}
		if strings.HasSuffix(child.Tag, "iconList") {
			icons := child.ChildElements()
			if len(icons) == 0 {
				continue
			}
			icon := make(map[string]string)
			for _, prop := range icons[0].ChildElements() {
				icon[prop.Tag] = prop.Text()
			}
			md.Icon = icon
		}
	}
	return md, nil
}
