/*
Copyright 2025 Paradrop Labs
*/

package update

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/leilei1881/Paradrop/pkg/chute"
	"github.com/leilei1881/Paradrop/pkg/uci"
)

// generateTrafficPlans synthesizes the firewall sections for the chute:
// a masquerading zone per chute network so chute traffic can reach the
// uplink, and a DNAT redirect per requested port binding.
func generateTrafficPlans(u *Update) error {
	if u.New == nil || len(u.New.Net) == 0 {
		return nil
	}
	u.Plans.Add(PlanTraffic, "synthesize firewall config",
		synthesizeFirewallConfig, nil)
	return nil
}

func synthesizeFirewallConfig(u *Update) error {
	var sections []*uci.Section

	for _, iface := range u.New.Interfaces() {
		zone, err := uci.NewSection("zone", iface.ExternalIntf)
		if err != nil {
			return err
		}
		zone.Set("name", iface.ExternalIntf)
		zone.Set("network", iface.ExternalIntf)
		zone.Set("input", "ACCEPT")
		zone.Set("output", "ACCEPT")
		zone.Set("forward", "ACCEPT")
		zone.Set("masq", "1")
		sections = append(sections, zone)
	}

	if u.New.HostConfig != nil && len(u.New.HostConfig.PortBindings) > 0 {
		ifaces := u.New.Interfaces()
		keys := make([]string, 0, len(u.New.HostConfig.PortBindings))
		for k := range u.New.HostConfig.PortBindings {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for i, key := range keys {
			if len(ifaces) == 0 {
				break
			}
			hostPort := u.New.HostConfig.PortBindings[key]
			port, proto := key, "tcpudp"
			if j := strings.IndexByte(key, '/'); j >= 0 {
				port, proto = key[:j], key[j+1:]
			}

			redirect, err := uci.NewSection("redirect",
				fmt.Sprintf("%s-port%d", u.Name, i))
			if err != nil {
				return err
			}
			redirect.Set("src", ifaces[0].ExternalIntf)
			redirect.Set("src_port", strconv.Itoa(hostPort))
			redirect.Set("proto", proto)
			redirect.Set("dest_ip", ifaces[0].InternalIpaddr)
			redirect.Set("dest_port", port)
			redirect.Set("target", "DNAT")
			sections = append(sections, redirect)
		}
	}

	u.New.SetCache(chute.CacheOSFirewallConfig, sections)
	return nil
}
