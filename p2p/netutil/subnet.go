// Package netutil derives the subnet keys the connection pool uses to cap
// how many peers it accepts from the same IPv4 /N or IPv6 /M block (spec
// §4.I Model, §6 IPV4_SUBNET_MASK/IPV6_SUBNET_MASK). This is plain IP-address
// bit masking; the standard library's net.IP.Mask already does exactly
// that, so there is no third-party library from the pack with anything to
// add here (see DESIGN.md).
package netutil

import "net"

// SubnetKey returns the string key identifying the subnet addr belongs to:
// the first ipv4Bits of an IPv4 address, or the first ipv6Bits of an IPv6
// address, masked and rendered back as an address string so two IPs in the
// same subnet always produce an identical key.
func SubnetKey(addr net.IP, ipv4Bits, ipv6Bits int) string {
	if v4 := addr.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(ipv4Bits, 32)).String()
	}
	return addr.Mask(net.CIDRMask(ipv6Bits, 128)).String()
}

// ExactKey returns the key identifying addr itself, with no masking, used
// for the per-IP (rather than per-subnet) index.
func ExactKey(addr net.IP) string {
	return addr.String()
}
