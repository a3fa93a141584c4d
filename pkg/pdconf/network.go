/*
Copyright 2025 Paradrop Labs
*/

package pdconf

import (
	"fmt"
	"net"

	"github.com/pkg/errors"

	"github.com/leilei1881/Paradrop/pkg/uci"
)

// ifaceDevice returns the host device a network interface section manages:
// br-<name> for bridges, otherwise the first declared ifname.
func ifaceDevice(s *uci.Section) (string, error) {
	if s.Get("type") == "bridge" {
		return "br-" + s.Name, nil
	}
	ifnames := s.GetList("ifname")
	if len(ifnames) == 0 {
		return "", errors.Errorf("interface %s declares no ifname", s.Name)
	}
	return ifnames[0], nil
}

// cidrFor combines the section's ipaddr and netmask into CIDR notation.
func cidrFor(s *uci.Section) (string, error) {
	ip := net.ParseIP(s.Get("ipaddr"))
	if ip == nil {
		return "", errors.Errorf("interface %s: bad ipaddr %q", s.Name, s.Get("ipaddr"))
	}
	mask := net.IPMask(net.ParseIP(s.Get("netmask")).To4())
	if mask == nil {
		return "", errors.Errorf("interface %s: bad netmask %q", s.Name, s.Get("netmask"))
	}
	prefix, _ := mask.Size()
	return fmt.Sprintf("%s/%d", ip, prefix), nil
}

func interfaceApply(hc *handlerContext, s *uci.Section) ([]*Command, error) {
	var cmds []*Command

	device, err := ifaceDevice(s)
	if err != nil {
		return nil, err
	}

	bridge := s.Get("type") == "bridge"
	if bridge {
		cmds = append(cmds, NewCommand(PrioCreateIface, s,
			"ip", "link", "add", "name", device, "type", "bridge"))
	}

	switch s.Get("proto") {
	case "static":
		cidr, err := cidrFor(s)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds,
			NewCommand(PrioConfigIface, s, "ip", "addr", "flush", "dev", device),
			NewCommand(PrioConfigIface, s, "ip", "addr", "add", cidr, "dev", device),
			NewCommand(PrioConfigIface, s, "ip", "link", "set", "dev", device, "up"))
		if gw := s.Get("gateway"); gw != "" {
			cmds = append(cmds, NewCommand(PrioConfigIface, s,
				"ip", "route", "add", "default", "via", gw, "dev", device))
		}
	case "dhcp":
		// The host does not run a DHCP client for declared interfaces;
		// addressing is left to whatever already manages the device.
	default:
		return nil, errors.Errorf("interface %s: unsupported proto %q",
			s.Name, s.Get("proto"))
	}

	if bridge {
		for _, slave := range s.GetList("ifname") {
			cmds = append(cmds,
				NewCommand(PrioAddLink, s, "ip", "addr", "flush", "dev", slave),
				NewCommand(PrioAddLink, s, "ip", "link", "set", "dev", slave, "up"),
				NewCommand(PrioAddLink, s, "ip", "link", "set", "dev", slave, "master", device))
		}
	}

	return cmds, nil
}

func interfaceRevert(hc *handlerContext, s *uci.Section) ([]*Command, error) {
	var cmds []*Command

	device, err := ifaceDevice(s)
	if err != nil {
		return nil, err
	}
	bridge := s.Get("type") == "bridge"

	if bridge {
		for _, slave := range s.GetList("ifname") {
			cmds = append(cmds,
				NewCommand(-PrioAddLink, s, "ip", "link", "set", "dev", slave, "nomaster"),
				NewCommand(-PrioAddLink, s, "ip", "addr", "flush", "dev", slave),
				NewCommand(-PrioAddLink, s, "ip", "link", "set", "dev", slave, "down"))
		}
	}

	if s.Get("proto") == "static" {
		cmds = append(cmds, NewCommand(-PrioConfigIface, s,
			"ip", "addr", "flush", "dev", device))
		if !bridge {
			cmds = append(cmds, NewCommand(-PrioConfigIface, s,
				"ip", "link", "set", "dev", device, "down"))
		}
	}

	if bridge {
		cmds = append(cmds, NewCommand(-PrioCreateIface, s,
			"ip", "link", "delete", device))
	}

	return cmds, nil
}
