package ssdpdisco

import (
	"fmt"

	"gargoton.petite-maison-orange.fr/eric/pmossdp/scpd"
	"gargoton.petite-maison-orange.fr/eric/pmossdp/ssdp"
)

// LocalDevice is the announcement-side description of the device this
// process exposes on the network: one location, one root description, and
// an optional icon shared by three SSDP advertisements.
type LocalDevice struct {
	Host string
	Port int
	UUID string
	Type string
	Name string
	Icon []byte
}

// Location is the absolute URL at which this device's root description is
// served.
func (d *LocalDevice) Location() string {
	return fmt.Sprintf("http://%s:%d%s", d.Host, d.Port, scpd.RootDescPath)
}

// ToSSDPDevices expands the local device into the three USNs a UPnP device
// must advertise: the root device, the bare UUID, and the specific device
// type.
func (d *LocalDevice) ToSSDPDevices() []*ssdp.Device {
	location := d.Location()
	return []*ssdp.Device{
		ssdp.NewDevice(fmt.Sprintf("uuid:%s::upnp:rootdevice", d.UUID), location),
		ssdp.NewDevice(fmt.Sprintf("uuid:%s", d.UUID), location),
		ssdp.NewDevice(fmt.Sprintf("uuid:%s::%s", d.UUID, d.Type), location),
	}
}

// RootDescriptionXML renders the XML document this device serves at
// scpd.RootDescPath.
func (d *LocalDevice) RootDescriptionXML() string {
	return scpd.RootDescriptionXML(d.Host, d.Port, d.Type, d.Name, d.UUID, len(d.Icon) > 0)
}
