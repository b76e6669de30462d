package ssdp

import "testing"

func TestDeviceUUIDAndTarget(t *testing.T) {
	d := NewDevice("uuid:abc-123::upnp:rootdevice", "http://127.0.0.1:9/root_desc.xml")

	if got := d.UUID(); got != "abc-123" {
		t.Fatalf("UUID() = %q, want %q", got, "abc-123")
	}
	if got := d.Target(); got != "upnp:rootdevice" {
		t.Fatalf("Target() = %q, want %q", got, "upnp:rootdevice")
	}
}

func TestDeviceUUIDAndTargetWithoutSuffix(t *testing.T) {
	d := NewDevice("uuid:abc-123", "")

	if got := d.UUID(); got != "abc-123" {
		t.Fatalf("UUID() = %q, want %q", got, "abc-123")
	}
	if got := d.Target(); got != d.USN {
		t.Fatalf("Target() = %q, want whole USN %q", got, d.USN)
	}
}

func TestDeviceUUIDWithoutColon(t *testing.T) {
	d := NewDevice("opaque-identifier", "")
	if got := d.UUID(); got != d.USN {
		t.Fatalf("UUID() = %q, want whole USN %q", got, d.USN)
	}
}

func TestDeviceMatches(t *testing.T) {
	d := NewDevice("uuid:abc::upnp:rootdevice", "")

	if !d.Matches("ssdp:all") {
		t.Fatal("expected ssdp:all to match any device")
	}
	if !d.Matches("upnp:rootdevice") {
		t.Fatal("expected exact target match")
	}
	if d.Matches("urn:schemas-upnp-org:device:MediaServer:1") {
		t.Fatal("expected mismatched target not to match")
	}
}

func TestBaseUSN(t *testing.T) {
	cases := map[string]string{
		"uuid:abc::upnp:rootdevice": "uuid:abc",
		"uuid:abc":                  "uuid:abc",
	}
	for usn, want := range cases {
		if got := BaseUSN(usn); got != want {
			t.Errorf("BaseUSN(%q) = %q, want %q", usn, got, want)
		}
	}
}

func TestAddSubdeviceDeduplicates(t *testing.T) {
	parent := NewDevice("uuid:abc", "")
	sub := NewDevice("uuid:abc::urn:schemas-upnp-org:device:MediaServer:1", "")

	parent.AddSubdevice(sub)
	parent.AddSubdevice(sub)

	if len(parent.Subdevices) != 1 {
		t.Fatalf("expected exactly one subdevice, got %d", len(parent.Subdevices))
	}
}
