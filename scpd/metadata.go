// Package scpd implements the hand-rolled HTTP/1.1 exchange used to serve
// and fetch a UPnP root description and its icon: one request line in, one
// status line and body out, nothing resembling a full HTTP stack.
package scpd

// RootDescPath and IconPath are the only two request paths the server
// recognises.
const (
	RootDescPath = "/root_desc.xml"
	IconPath     = "/icon.png"
)

const deviceNamespace = "urn:schemas-upnp-org:device-1-0"

// Metadata is the parsed form of a fetched root description: the flat
// device properties (deviceType, friendlyName, UDN, ...) plus the icon's
// own property set, if the device advertises one.
type Metadata struct {
	Properties map[string]string
	Icon       map[string]string
}
