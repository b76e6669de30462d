package ssdp

import "testing"

func TestParseMessageNotify(t *testing.T) {
	raw := "NOTIFY * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"USN: uuid:abc::upnp:rootdevice\r\n" +
		"LOCATION: http://127.0.0.1:9/root_desc.xml\r\n" +
		"X-Custom: hello\r\n" +
		"malformed-header-no-colon\r\n" +
		"\r\n"

	msg := ParseMessage([]byte(raw))
	if msg == nil {
		t.Fatal("expected a parsed message")
	}
	if msg.Kind != KindNotify {
		t.Fatalf("Kind = %v, want KindNotify", msg.Kind)
	}
	if got := msg.Header("usn"); got != "uuid:abc::upnp:rootdevice" {
		t.Errorf("usn header = %q", got)
	}
	if got := msg.Header("x-custom"); got != "hello" {
		t.Errorf("x-custom header = %q", got)
	}
}

func TestParseMessageUnknownStartLineDropped(t *testing.T) {
	raw := "FOO * HTTP/1.1\r\n\r\n"
	if msg := ParseMessage([]byte(raw)); msg != nil {
		t.Fatalf("expected nil for unrecognised start line, got %+v", msg)
	}
}

func TestParseMessageSearch(t *testing.T) {
	raw := "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"ST: ssdp:all\r\n" +
		"MX: 2\r\n" +
		"\r\n"

	msg := ParseMessage([]byte(raw))
	if msg == nil || msg.Kind != KindSearch {
		t.Fatalf("expected KindSearch, got %+v", msg)
	}
	if got := msg.Header("st"); got != "ssdp:all" {
		t.Errorf("st header = %q", got)
	}
}

func TestParseMessageResponse(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"USN: uuid:abc\r\n" +
		"\r\n"

	msg := ParseMessage([]byte(raw))
	if msg == nil || msg.Kind != KindResponse {
		t.Fatalf("expected KindResponse, got %+v", msg)
	}
}

func TestNotifyRoundTrip(t *testing.T) {
	d := NewDevice("uuid:abc::upnp:rootdevice", "http://127.0.0.1:9/root_desc.xml")
	raw := FormatNotify(d.Location, d.Target(), d.USN, "test/1.0 UPnP/1.0 pmossdp/1.0")

	msg := ParseMessage([]byte(raw))
	if msg == nil || msg.Kind != KindNotify {
		t.Fatalf("expected KindNotify, got %+v", msg)
	}

	got := NewDevice(msg.Header("usn"), msg.Header("location"))
	if got.USN != d.USN {
		t.Errorf("round-tripped USN = %q, want %q", got.USN, d.USN)
	}
	if got.Location != d.Location {
		t.Errorf("round-tripped Location = %q, want %q", got.Location, d.Location)
	}
	if got.Target() != d.Target() {
		t.Errorf("round-tripped Target() = %q, want %q", got.Target(), d.Target())
	}
}
