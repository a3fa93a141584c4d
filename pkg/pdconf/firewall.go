/*
Copyright 2025 Paradrop Labs
*/

package pdconf

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/leilei1881/Paradrop/pkg/uci"
)

// zoneDevice resolves the host device a firewall zone filters on, via the
// zone's network interface section.
func zoneDevice(hc *handlerContext, network string) (string, error) {
	iface, err := hc.configs.Lookup("network", "interface", network)
	if err != nil {
		return "", errors.Wrapf(err, "zone network %q", network)
	}
	return ifaceDevice(iface)
}

func zoneApply(hc *handlerContext, s *uci.Section) ([]*Command, error) {
	device, err := zoneDevice(hc, s.Get("network"))
	if err != nil {
		return nil, err
	}

	cmds := []*Command{
		NewCommand(PrioAddLink, s, "iptables", "--append", "FORWARD",
			"--out-interface", device, "--jump", s.Get("forward")),
	}
	if s.GetBool("masq") {
		cmds = append(cmds, NewCommand(PrioAddLink, s,
			"iptables", "--table", "nat", "--append", "POSTROUTING",
			"--out-interface", device, "--jump", "MASQUERADE"))
	}
	return cmds, nil
}

func zoneRevert(hc *handlerContext, s *uci.Section) ([]*Command, error) {
	device, err := zoneDevice(hc, s.Get("network"))
	if err != nil {
		return nil, err
	}

	cmds := []*Command{
		NewCommand(-PrioAddLink, s, "iptables", "--delete", "FORWARD",
			"--out-interface", device, "--jump", s.Get("forward")),
	}
	if s.GetBool("masq") {
		cmds = append(cmds, NewCommand(-PrioAddLink, s,
			"iptables", "--table", "nat", "--delete", "POSTROUTING",
			"--out-interface", device, "--jump", "MASQUERADE"))
	}
	return cmds, nil
}

// redirectRules renders the DNAT rule bodies for a redirect section, one
// per protocol. proto=any elides the protocol match (and with it any port
// match); proto=tcpudp expands to both. SNAT targets are declared in the
// grammar but produce no rules; the section is skipped with a warning.
func redirectRules(hc *handlerContext, s *uci.Section) ([][]string, error) {
	if s.Get("target") == "SNAT" {
		hc.manager.log.Warn("SNAT redirects are not supported, skipping",
			zap.String("section", s.String()))
		return nil, nil
	}

	device, err := zoneDevice(hc, s.Get("src"))
	if err != nil {
		return nil, errors.Wrapf(err, "redirect %s", s.Name)
	}

	var protos []string
	switch s.Get("proto") {
	case "any":
		protos = []string{""}
	case "tcpudp":
		protos = []string{"tcp", "udp"}
	default:
		protos = []string{s.Get("proto")}
	}

	dest := s.Get("dest_ip")
	if dest == "" {
		return nil, errors.Errorf("redirect %s: dest_ip is required", s.Name)
	}
	if port := s.Get("dest_port"); port != "" {
		dest += ":" + port
	}

	var rules [][]string
	for _, proto := range protos {
		rule := []string{"--table", "nat"}
		rule = append(rule, "PREROUTING", "--in-interface", device)
		if proto != "" {
			rule = append(rule, "--proto", proto)
			if port := s.Get("src_port"); port != "" {
				rule = append(rule, "--dport", port)
			}
		}
		if src := s.Get("src_ip"); src != "" {
			rule = append(rule, "--source", src)
		}
		rule = append(rule, "--jump", "DNAT", "--to-destination", dest)
		rules = append(rules, rule)
	}
	return rules, nil
}

func redirectCommands(hc *handlerContext, s *uci.Section, action string, prio Priority) ([]*Command, error) {
	rules, err := redirectRules(hc, s)
	if err != nil {
		return nil, err
	}
	var cmds []*Command
	for _, rule := range rules {
		args := []string{"iptables", rule[0], rule[1], action}
		args = append(args, rule[2:]...)
		cmds = append(cmds, NewCommand(prio, s, args...))
	}
	return cmds, nil
}

func redirectApply(hc *handlerContext, s *uci.Section) ([]*Command, error) {
	return redirectCommands(hc, s, "--append", PrioAddLink)
}

func redirectRevert(hc *handlerContext, s *uci.Section) ([]*Command, error) {
	return redirectCommands(hc, s, "--delete", -PrioAddLink)
}
