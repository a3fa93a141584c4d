/*
Copyright 2025 Paradrop Labs
*/

package update

import (
	"fmt"
	"net"
	"sort"

	"github.com/pkg/errors"

	"github.com/leilei1881/Paradrop/pkg/chute"
	"github.com/leilei1881/Paradrop/pkg/ipam"
	"github.com/leilei1881/Paradrop/pkg/uci"
)

// Host-side interface names are limited to 15 characters; the chute name
// prefix is truncated to fit. Declared names leave room for the veth
// prefix used elsewhere, hence the tighter limit.
const (
	maxInterfaceNameLen      = 15
	maxChuteInterfaceNameLen = 10
)

// generateResourcePlans schedules the dynamic network allocation for the
// new chute snapshot and the release of the old one's leases on delete.
func generateResourcePlans(u *Update) error {
	if u.New != nil && len(u.New.Net) > 0 {
		u.Plans.Add(PlanResourceAlloc, "allocate chute networks",
			allocateNetworks, releaseNewNetworks)
		u.Plans.Add(PlanNetworkWrite, "synthesize network config",
			synthesizeNetworkConfig, nil)
	}

	// Delete and update both retire the old snapshot's leases; on update
	// the release waits until the new allocation is committed.
	if (u.Type == TypeDelete || u.Type == TypeUpdate) && u.Old != nil {
		u.Plans.Add(PlanRelease, "release old chute networks", func(u *Update) error {
			releaseInterfaces(u, u.Old.Interfaces())
			return nil
		}, nil)
	}
	return nil
}

// allocateNetworks fills the networkInterfaces cache: for every declared
// interface, a host-side name, a leased subnet, and the address split
// between host (.1) and chute (.2).
func allocateNetworks(u *Update) error {
	settings := u.agent.Settings

	devices := map[string][]string{"wifi": settings.WifiDevices}
	u.New.SetCache(chute.CacheNetworkDevices, devices)
	nextRadio := 0

	// Map iteration order is not stable; sort so repeated updates assign
	// the same subnets to the same interfaces.
	names := make([]string, 0, len(u.New.Net))
	for name := range u.New.Net {
		names = append(names, name)
	}
	sort.Strings(names)

	var ifaces []*chute.Interface
	seen := make(map[string]bool)

	for _, name := range names {
		spec := u.New.Net[name]

		if len(name) > maxChuteInterfaceNameLen {
			releaseInterfaces(u, ifaces)
			return errors.Errorf("network interface name %q cannot be longer than %d characters",
				name, maxChuteInterfaceNameLen)
		}
		if spec.IntfName == "" || spec.Type == "" {
			releaseInterfaces(u, ifaces)
			return errors.Errorf("network interface %q must declare intfName and type", name)
		}

		subnet, err := u.agent.Pool.Next()
		if err != nil {
			releaseInterfaces(u, ifaces)
			return err
		}
		// Give back everything on failure, earliest lease first, so an
		// aborted allocation leaves the pool exactly as it found it.
		fail := func(err error) error {
			releaseInterfaces(u, ifaces)
			u.agent.Pool.Release(subnet)
			return err
		}

		hosts := ipam.Hosts(subnet, 2)
		prefixLen, _ := subnet.Mask.Size()

		// The host-side name combines the chute name and the interface
		// name; the chute name is truncated to honor the kernel limit.
		prefix := maxInterfaceNameLen - len(spec.IntfName) - 1
		if prefix > len(u.Name) {
			prefix = len(u.Name)
		}
		externalIntf := fmt.Sprintf("%s.%s", u.Name[:prefix], spec.IntfName)
		if seen[externalIntf] {
			return fail(errors.Errorf("interface name collision on %q", externalIntf))
		}
		seen[externalIntf] = true

		iface := &chute.Interface{
			Name:             name,
			NetType:          spec.Type,
			ExternalIntf:     externalIntf,
			InternalIntf:     spec.IntfName,
			Netmask:          net.IP(subnet.Mask).String(),
			ExternalIpaddr:   hosts[0].String(),
			InternalIpaddr:   hosts[1].String(),
			IpaddrWithPrefix: fmt.Sprintf("%s/%d", hosts[1], prefixLen),
			Subnet:           fmt.Sprintf("%s/%d", subnet.IP, prefixLen),
			DHCP:             spec.DHCP,
		}

		if spec.Type == chute.NetTypeWifi {
			radios := devices["wifi"]
			if len(radios) == 0 {
				return fail(errors.New("request for WiFi device cannot be fulfilled"))
			}
			iface.Device = radios[nextRadio%len(radios)]
			nextRadio++

			if spec.SSID == "" {
				return fail(errors.Errorf("wifi interface %q requires an ssid", name))
			}
			iface.SSID = spec.SSID
			iface.Encryption = spec.Encryption
			iface.Key = spec.Key
		}

		ifaces = append(ifaces, iface)
	}

	u.New.SetCache(chute.CacheNetworkInterfaces, ifaces)
	u.Progress(fmt.Sprintf("Allocated %d network interface(s)", len(ifaces)))
	return nil
}

func releaseNewNetworks(u *Update) error {
	releaseInterfaces(u, u.New.Interfaces())
	return nil
}

func releaseInterfaces(u *Update, ifaces []*chute.Interface) {
	for _, iface := range ifaces {
		if _, subnet, err := net.ParseCIDR(iface.Subnet); err == nil {
			u.agent.Pool.Release(*subnet)
		}
	}
}

// synthesizeNetworkConfig projects the interface records into declarative
// network sections: one bridge interface with static addressing per
// record.
func synthesizeNetworkConfig(u *Update) error {
	var sections []*uci.Section
	for _, iface := range u.New.Interfaces() {
		s, err := uci.NewSection("interface", iface.ExternalIntf)
		if err != nil {
			return err
		}
		s.Set("type", "bridge")
		s.Set("proto", "static")
		s.Set("ipaddr", iface.ExternalIpaddr)
		s.Set("netmask", iface.Netmask)
		s.Append("ifname", iface.ExternalIntf)
		sections = append(sections, s)
	}
	u.New.SetCache(chute.CacheOSNetworkConfig, sections)
	return nil
}
