package ssdp

import "strings"

// Device is a sighted or locally-announced SSDP device identified by its
// USN (unique service name). A parent device's USN never contains "::"; a
// subdevice's USN is the parent's USN followed by "::" and a service or
// device type.
type Device struct {
	USN      string
	Location string

	// Extra holds the value of any "x-…" NOTIFY header, keyed by the header
	// name with the "x-" prefix stripped.
	Extra map[string]string

	// Subdevices holds devices whose USN shares this device's base USN,
	// in sighting order. Never holds two entries with the same USN.
	Subdevices []*Device
}

// NewDevice builds a Device with empty Extra and Subdevices.
func NewDevice(usn, location string) *Device {
	return &Device{USN: usn, Location: location}
}

// BaseUSN returns the portion of usn before "::", or usn unchanged if it
// carries no subdevice suffix.
func BaseUSN(usn string) string {
	if i := strings.Index(usn, "::"); i >= 0 {
		return usn[:i]
	}
	return usn
}

// UUID returns the substring between the first ":" and the first "::" in
// the USN, or the whole USN if it has no ":".
func (d *Device) UUID() string {
	base := BaseUSN(d.USN)
	if i := strings.Index(base, ":"); i >= 0 {
		return base[i+1:]
	}
	return d.USN
}

// Target returns the substring after the first "::", or the whole USN if
// it carries no "::" suffix.
func (d *Device) Target() string {
	parts := strings.SplitN(d.USN, "::", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return d.USN
}

// Matches reports whether searchTarget is the wildcard "ssdp:all" or equals
// this device's Target().
func (d *Device) Matches(searchTarget string) bool {
	return searchTarget == "ssdp:all" || searchTarget == d.Target()
}

// AddSubdevice appends sub to d.Subdevices unless a subdevice with the same
// full USN is already present.
func (d *Device) AddSubdevice(sub *Device) {
	for _, existing := range d.Subdevices {
		if existing.USN == sub.USN {
			return
		}
	}
	d.Subdevices = append(d.Subdevices, sub)
}
