//go:build linux
// +build linux

package firewall

import (
	"fmt"
	"net/netip"

	"github.com/vishvananda/netlink"
)

// SubnetResolver lists the subnets directly attached to this host.
type SubnetResolver interface {
	LocalSubnets() ([]netip.Prefix, error)
}

// NetlinkSubnetResolver reads interface addresses over netlink.
// Loopback and link-local addresses are skipped.
type NetlinkSubnetResolver struct{}

func (NetlinkSubnetResolver) LocalSubnets() ([]netip.Prefix, error) {
	addrs, err := netlink.AddrList(nil, netlink.FAMILY_ALL)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}

	seen := make(map[netip.Prefix]bool)
	var out []netip.Prefix
	for _, a := range addrs {
		if a.IPNet == nil {
			continue
		}
		ip, ok := netip.AddrFromSlice(a.IP)
		if !ok {
			continue
		}
		ip = ip.Unmap()
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		ones, _ := a.Mask.Size()
		p := netip.PrefixFrom(ip, ones).Masked()
		if !p.IsValid() || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// StaticSubnets is a fixed SubnetResolver.
type StaticSubnets []netip.Prefix

func (s StaticSubnets) LocalSubnets() ([]netip.Prefix, error) {
	return s, nil
}
