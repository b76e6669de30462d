package ssdpdisco

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gargoton.petite-maison-orange.fr/eric/pmossdp/ssdp"
)

func TestServeListenersStreamsExistingDevices(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "pmossdp.sock")

	addr, _ := fakeMetadataServer(t, `<?xml version="1.0" encoding="utf-8"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
<device><deviceType>T</deviceType><friendlyName>X</friendlyName><UDN>uuid:abc</UDN></device>
</root>`)

	c := NewCoordinator("test/1.0", "")
	c.HandleSighting(ssdp.NewDevice("uuid:abc", "http://"+addr+"/root_desc.xml"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go ServeListeners(ctx, c, sockPath)

	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", sockPath)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial unix socket: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)
	line1, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read DEVICE line: %v", err)
	}
	if strings.TrimSpace(line1) != "DEVICE uuid:abc" {
		t.Fatalf("line = %q, want DEVICE uuid:abc", line1)
	}

	line2, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read META line: %v", err)
	}
	if strings.TrimSpace(line2) != "META uuid:abc" {
		t.Fatalf("line = %q, want META uuid:abc", line2)
	}
}

func TestServeListenersRemovesStaleSocket(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "pmossdp.sock")
	if err := os.WriteFile(sockPath, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed stale file: %v", err)
	}

	c := NewCoordinator("test/1.0", "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- ServeListeners(ctx, c, sockPath) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("ServeListeners returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeListeners did not return after cancellation")
	}

	if _, err := os.Stat(sockPath); !os.IsNotExist(err) {
		t.Fatalf("expected socket file to be removed, stat err = %v", err)
	}
}
