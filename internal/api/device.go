package api

import (
	"net"
	"net/http"
	"strings"

	"github.com/avct/uasurfer"

	"github.com/patrickwarner/adtarget/internal/geoip"
)

// resolveDeviceType maps the request User-Agent to a coarse device class.
func resolveDeviceType(r *http.Request) string {
	ua := r.Header.Get("User-Agent")
	if ua == "" {
		return ""
	}
	u := uasurfer.Parse(ua)
	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		return "desktop"
	case uasurfer.DevicePhone:
		return "mobile"
	case uasurfer.DeviceTablet:
		return "tablet"
	default:
		return "other"
	}
}

// clientIP extracts the originating IP from X-Forwarded-For or RemoteAddr.
func clientIP(r *http.Request) net.IP {
	ipStr := r.Header.Get("X-Forwarded-For")
	if ipStr != "" {
		// X-Forwarded-For can be comma-separated, take the first hop
		if idx := strings.Index(ipStr, ","); idx != -1 {
			ipStr = ipStr[:idx]
		}
		ipStr = strings.TrimSpace(ipStr)
	} else {
		ipStr = r.RemoteAddr
		if host, _, err := net.SplitHostPort(ipStr); err == nil {
			ipStr = host
		}
	}
	return net.ParseIP(ipStr)
}

// resolveCountry maps the request IP to an ISO country code.
func resolveCountry(r *http.Request, g *geoip.GeoIP) string {
	if g == nil {
		return ""
	}
	ip := clientIP(r)
	if ip == nil {
		return ""
	}
	return g.Country(ip)
}
