// Package hostutil validates host addresses supplied at registration time.
package hostutil

import "net"

// IsValidAddress reports whether addr is a publicly routable IPv4/IPv6 address
// or a hostname that resolves to one. Private, loopback and link-local
// addresses are rejected so the prober never targets the local network.
func IsValidAddress(addr string) bool {
	if ip := net.ParseIP(addr); ip != nil {
		return isPublic(ip)
	}
	return resolvesToPublic(addr)
}

func resolvesToPublic(hostname string) bool {
	ips, err := net.LookupIP(hostname)
	if err != nil || len(ips) == 0 {
		return false
	}
	return isPublic(ips[0])
}

func isPublic(ip net.IP) bool {
	return !(ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified())
}
