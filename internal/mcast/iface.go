package mcast

import (
	"errors"
	"fmt"
	"net"
)

// ResolveInterface returns the named interface, or if name is empty, the
// first non-loopback, up, IPv4-addressed interface on the host. This backs
// the MCAST_IFACE environment variable contract: explicit name wins,
// otherwise auto-detect.
func ResolveInterface(name string) (*net.Interface, error) {
	if name != "" {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("interface %q not found: %w", name, err)
		}
		return iface, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if ok && ipNet.IP.To4() != nil {
				return &iface, nil
			}
		}
	}

	return nil, errors.New("no usable outbound ipv4 interface found")
}
