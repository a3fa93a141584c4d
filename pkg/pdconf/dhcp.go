/*
Copyright 2025 Paradrop Labs
*/

package pdconf

import (
	"fmt"
	"net"
	"path/filepath"
	"text/template"

	"github.com/pkg/errors"

	"github.com/leilei1881/Paradrop/internal/files"
	"github.com/leilei1881/Paradrop/pkg/ipam"
	"github.com/leilei1881/Paradrop/pkg/uci"
)

// dnsmasqConfTemplate renders the per-interface dnsmasq instance config.
// bind-interfaces keeps multiple instances from fighting over the wildcard
// socket.
var dnsmasqConfTemplate = template.Must(template.New("dnsmasq").Parse(
	`# dnsmasq configuration generated by pdconf
# Source: {{.Source}}
# Section: config dhcp {{.Name}}
interface={{.Device}}
dhcp-range={{.First}},{{.Last}},{{.Leasetime}}
dhcp-leasefile={{.LeaseFile}}
{{- range .Options}}
dhcp-option={{.}}
{{- end}}
{{- if .NoResolv}}
no-resolv
{{- end}}
{{- range .Servers}}
server={{.}}
{{- end}}
except-interface=lo
bind-interfaces
`))

type dnsmasqConf struct {
	Source    string
	Name      string
	Device    string
	First     string
	Last      string
	Leasetime string
	LeaseFile string
	Options   []string
	NoResolv  bool
	Servers   []string
}

func dhcpPidFile(writeDir string, s *uci.Section) string {
	return filepath.Join(writeDir, fmt.Sprintf("dnsmasq-%s.pid", s.Get("interface")))
}

// dhcpRange computes the lease range from the linked interface: the first
// address is the interface network address plus start, the last is first
// plus limit.
func dhcpRange(iface *uci.Section, start, limit int) (first, last net.IP, err error) {
	addr := net.ParseIP(iface.Get("ipaddr"))
	mask := net.IPMask(net.ParseIP(iface.Get("netmask")).To4())
	if addr == nil || mask == nil {
		return nil, nil, errors.Errorf("interface %s: bad ipaddr/netmask", iface.Name)
	}
	network := ipam.Network(addr, mask)
	first = ipam.Add(network, start)
	last = ipam.Add(first, limit)
	return first, last, nil
}

func dhcpApply(hc *handlerContext, s *uci.Section) ([]*Command, error) {
	name := s.Get("interface")

	iface, err := hc.configs.Lookup("network", "interface", name)
	if err != nil {
		return nil, errors.Wrapf(err, "dhcp %s", s.Name)
	}
	// Always resolves: a default dnsmasq section is registered.
	dnsmasq, err := hc.configs.LookupDefault("dhcp", "dnsmasq", name)
	if err != nil {
		return nil, errors.Wrapf(err, "dhcp %s", s.Name)
	}

	device, err := ifaceDevice(iface)
	if err != nil {
		return nil, err
	}
	first, last, err := dhcpRange(iface, s.GetInt("start"), s.GetInt("limit"))
	if err != nil {
		return nil, errors.Wrapf(err, "dhcp %s", s.Name)
	}

	writeDir := hc.manager.writeDir
	confFile := filepath.Join(writeDir, fmt.Sprintf("dnsmasq-%s.conf", name))
	leaseFile := filepath.Join(writeDir, fmt.Sprintf("dnsmasq-%s.leases", name))
	pidFile := dhcpPidFile(writeDir, s)

	conf := dnsmasqConf{
		Source:    s.Source,
		Name:      s.Name,
		Device:    device,
		First:     first.String(),
		Last:      last.String(),
		Leasetime: s.Get("leasetime"),
		LeaseFile: leaseFile,
		Options:   s.GetList("dhcp_option"),
		NoResolv:  dnsmasq.GetBool("noresolv"),
		Servers:   dnsmasq.GetList("server"),
	}
	if err := files.WriteTemplate(confFile, dnsmasqConfTemplate, conf); err != nil {
		return nil, errors.Wrapf(err, "write %s", confFile)
	}

	cmd := NewCommand(PrioStartDaemon, s, "dnsmasq",
		"--conf-file="+confFile, "--pid-file="+pidFile)
	return []*Command{cmd}, nil
}

func dhcpRevert(hc *handlerContext, s *uci.Section) ([]*Command, error) {
	pidFile := dhcpPidFile(hc.manager.writeDir, s)
	return []*Command{NewKillCommand(-PrioStartDaemon, s, pidFile)}, nil
}
