package fetch

import (
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// BaseURL adds a scheme to a bare host. Loopback, private-range and
// localhost hosts get http; everything else gets https. A raw value that
// already carries a scheme is kept as given.
func BaseURL(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if IsLocal(raw) {
		return "http://" + raw
	}
	return "https://" + raw
}

// IsLocal reports whether the host part of raw is localhost or a loopback or
// private address.
func IsLocal(raw string) bool {
	host := hostOf(raw)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return addr.IsLoopback() || addr.IsPrivate()
}

func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := u.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.Trim(host, "[]")
}

// TracksURL is the solver endpoint serving both system tracks and
// ellipsoids: {base}/api?{query}.
func TracksURL(base, query string) string {
	u := BaseURL(base) + "/api"
	if q := strings.TrimPrefix(strings.TrimSpace(query), "?"); q != "" {
		u += "?" + q
	}
	return u
}

// RadarConfigURL is a radar node's configuration endpoint.
func RadarConfigURL(host string) string {
	return BaseURL(host) + "/api/config"
}

// AircraftURL is a tar1090 feed's aircraft list.
func AircraftURL(host string) string {
	return BaseURL(host) + "/data/aircraft.json"
}
