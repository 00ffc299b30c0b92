package session

import (
	"strings"

	"github.com/mssola/useragent"
)

// DeviceClass is a coarse device category.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
	DeviceBot     DeviceClass = "bot"
	DeviceUnknown DeviceClass = "unknown"
)

const maxUserAgentBytes = 512

// Device is the fingerprint stored with a session.
type Device struct {
	Browser   string
	OS        string
	Class     DeviceClass
	UserAgent string
}

// ParseDevice classifies a raw User-Agent header.
func ParseDevice(raw string) Device {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxUserAgentBytes {
		raw = raw[:maxUserAgentBytes]
	}
	if raw == "" {
		return Device{Class: DeviceUnknown}
	}

	ua := useragent.New(raw)
	name, version := ua.Browser()
	browser := strings.TrimSpace(name + " " + majorVersion(version))

	d := Device{
		Browser:   browser,
		OS:        ua.OSInfo().Name,
		UserAgent: raw,
	}

	switch {
	case ua.Bot():
		d.Class = DeviceBot
	case strings.Contains(raw, "iPad") || (strings.Contains(raw, "Android") && !strings.Contains(raw, "Mobile")):
		d.Class = DeviceTablet
	case ua.Mobile():
		d.Class = DeviceMobile
	case d.OS != "":
		d.Class = DeviceDesktop
	default:
		d.Class = DeviceUnknown
	}
	return d
}

func majorVersion(v string) string {
	if i := strings.IndexByte(v, '.'); i > 0 {
		return v[:i]
	}
	return v
}
