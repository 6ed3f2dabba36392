package telemetry

import (
	"net"
	"net/netip"
)

// broadcastTargets computes the directed broadcast address of every up,
// non-loopback IPv4 interface on the host. When none can be determined the
// limited broadcast address is the only target.
func broadcastTargets(port uint16) []netip.AddrPort {
	var out []netip.AddrPort

	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}
			for _, a := range addrs {
				ipnet, ok := a.(*net.IPNet)
				if !ok {
					continue
				}
				if bcast, ok := directedBroadcast(ipnet); ok {
					out = append(out, netip.AddrPortFrom(bcast, port))
				}
			}
		}
	}

	if len(out) == 0 {
		out = append(out, netip.AddrPortFrom(netip.AddrFrom4([4]byte{255, 255, 255, 255}), port))
	}
	return out
}

// directedBroadcast returns addr|^mask for an IPv4 network. Point-to-point
// style /32 networks have no usable broadcast address and report ok=false.
func directedBroadcast(ipnet *net.IPNet) (netip.Addr, bool) {
	ip4 := ipnet.IP.To4()
	if ip4 == nil {
		return netip.Addr{}, false
	}
	mask := ipnet.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return netip.Addr{}, false
	}
	if ones, bits := mask.Size(); ones == bits {
		return netip.Addr{}, false
	}

	var b [4]byte
	for i := range b {
		b[i] = ip4[i] | ^mask[i]
	}
	return netip.AddrFrom4(b), true
}
