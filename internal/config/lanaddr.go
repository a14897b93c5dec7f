package config

import (
	"net"
	"strings"

	psnet "github.com/shirou/gopsutil/v4/net"
)

// AutoHost in server.host is replaced by LocalIP at startup.
const AutoHost = "auto"

const loopbackIP = "127.0.0.1"

// Wired and wireless NIC name prefixes, tried in this order before any
// other interface.
var interfacePriority = []string{"eth", "enp", "wlan", "wlp", "eno", "ens"}

// Interface is the part of a network interface LocalIP looks at.
type Interface struct {
	Name  string
	Addrs []string // CIDR or bare addresses
}

// LocalIP returns the first non-loopback IPv4 address of this host,
// preferring Ethernet and WLAN interfaces, or 127.0.0.1 if there is none.
func LocalIP() string {
	stats, err := psnet.Interfaces()
	if err != nil {
		return loopbackIP
	}
	ifaces := make([]Interface, 0, len(stats))
	for _, st := range stats {
		iface := Interface{Name: st.Name}
		for _, a := range st.Addrs {
			iface.Addrs = append(iface.Addrs, a.Addr)
		}
		ifaces = append(ifaces, iface)
	}
	return pickLANAddr(ifaces)
}

// ResolveHost replaces AutoHost with the LAN address.
func (c *Config) ResolveHost() {
	if c.Server.Host == AutoHost {
		c.Server.Host = LocalIP()
	}
}

func pickLANAddr(ifaces []Interface) string {
	for _, prefix := range interfacePriority {
		for _, iface := range ifaces {
			if !strings.HasPrefix(iface.Name, prefix) {
				continue
			}
			if ip := firstIPv4(iface.Addrs); ip != "" {
				return ip
			}
		}
	}
	for _, iface := range ifaces {
		if iface.Name == "lo" {
			continue
		}
		if ip := firstIPv4(iface.Addrs); ip != "" {
			return ip
		}
	}
	return loopbackIP
}

func firstIPv4(addrs []string) string {
	for _, a := range addrs {
		var ip net.IP
		if strings.Contains(a, "/") {
			ip, _, _ = net.ParseCIDR(a)
		} else {
			ip = net.ParseIP(a)
		}
		if ip = ip.To4(); ip == nil || ip.IsLoopback() {
			continue
		}
		return ip.String()
	}
	return ""
}
