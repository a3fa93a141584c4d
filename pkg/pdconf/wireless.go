/*
Copyright 2025 Paradrop Labs
*/

package pdconf

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/leilei1881/Paradrop/pkg/uci"
)

// ErrNotImplemented marks wifi features declared in the grammar but not
// supported by this agent.
var ErrNotImplemented = errors.New("not implemented")

// wifiState is the resolved shape of a wifi-iface section: which physical
// radio it runs on, the AP interface name, and whether that interface is a
// virtual one we create.
type wifiState struct {
	radio   *uci.Section
	iface   *uci.Section
	phy     string
	ifname  string
	virtual bool
}

// resolveWifiIface resolves a wifi-iface section against the collection
// and decides physical vs virtual. The interface is physical when its
// resolved ifname equals the radio's device name; anything else requires
// creating a VIF on the radio.
func resolveWifiIface(hc *handlerContext, s *uci.Section) (*wifiState, error) {
	switch s.Get("mode") {
	case "ap":
	case "sta":
		return nil, errors.Wrap(ErrNotImplemented, "WiFi sta mode")
	default:
		return nil, errors.Errorf("unsupported mode %q in %s", s.Get("mode"), s)
	}

	radio, err := hc.configs.Lookup("wireless", "wifi-device", s.Get("device"))
	if err != nil {
		return nil, errors.Wrapf(err, "wifi-iface %s", s.Name)
	}
	iface, err := hc.configs.Lookup("network", "interface", s.Get("network"))
	if err != nil {
		return nil, errors.Wrapf(err, "wifi-iface %s", s.Name)
	}

	phy := radio.Get("ifname")
	if phy == "" {
		phy = radio.Name
	}

	ifname := s.Get("ifname")
	if ifname == "" {
		// No declared name: take the interface the AP is attached to.
		ifname, err = ifaceDevice(iface)
		if err != nil {
			return nil, errors.Wrapf(err, "wifi-iface %s", s.Name)
		}
	}

	return &wifiState{
		radio:   radio,
		iface:   iface,
		phy:     phy,
		ifname:  ifname,
		virtual: ifname != phy,
	}, nil
}

func hostapdPidFile(writeDir string, s *uci.Section) string {
	return filepath.Join(writeDir, fmt.Sprintf("hostapd-%s.pid", s.Name))
}

func wifiIfaceApply(hc *handlerContext, s *uci.Section) ([]*Command, error) {
	state, err := resolveWifiIface(hc, s)
	if err != nil {
		return nil, err
	}

	var cmds []*Command
	if state.virtual {
		cmds = append(cmds,
			NewCommand(PrioCreateIface, s, "iw", "dev", state.phy,
				"interface", "add", state.ifname, "type", "__ap"),
			// A locally administered MAC avoids colliding with other
			// interfaces sharing the radio.
			NewCommand(PrioCreateIface, s, "ip", "link", "set", "dev",
				state.ifname, "address", randomMAC()))
	} else {
		cmds = append(cmds,
			NewCommand(PrioConfigIface, s, "iw", "dev", state.phy,
				"set", "type", "__ap"),
			NewCommand(PrioConfigIface, s, "ip", "link", "set", "dev",
				state.phy, "up"))
	}

	confFile := filepath.Join(hc.manager.writeDir,
		fmt.Sprintf("hostapd-%s.conf", s.Name))
	if err := writeHostapdConf(confFile, s, state); err != nil {
		return nil, err
	}

	pidFile := hostapdPidFile(hc.manager.writeDir, s)
	cmds = append(cmds, NewCommand(PrioStartDaemon, s,
		"hostapd", "-P", pidFile, "-B", confFile))
	return cmds, nil
}

func wifiIfaceRevert(hc *handlerContext, s *uci.Section) ([]*Command, error) {
	state, err := resolveWifiIface(hc, s)
	if err != nil {
		return nil, err
	}

	cmds := []*Command{
		NewKillCommand(-PrioStartDaemon, s, hostapdPidFile(hc.manager.writeDir, s)),
	}
	if state.virtual {
		cmds = append(cmds, NewCommand(-PrioCreateIface, s,
			"iw", "dev", state.ifname, "del"))
	}
	return cmds, nil
}

// wifiIfaceUpdateApply restarts hostapd with a freshly rendered config
// when only AP-level options changed. A change to the mode, radio, or
// network requires a full reload of the section.
func wifiIfaceUpdateApply(hc *handlerContext, old, new *uci.Section) ([]*Command, error) {
	if wifiMajorChange(old, new) {
		return wifiIfaceApply(hc, new)
	}

	state, err := resolveWifiIface(hc, new)
	if err != nil {
		return nil, err
	}
	confFile := filepath.Join(hc.manager.writeDir,
		fmt.Sprintf("hostapd-%s.conf", new.Name))
	if err := writeHostapdConf(confFile, new, state); err != nil {
		return nil, err
	}
	pidFile := hostapdPidFile(hc.manager.writeDir, new)
	return []*Command{NewCommand(PrioStartDaemon, new,
		"hostapd", "-P", pidFile, "-B", confFile)}, nil
}

func wifiIfaceUpdateRevert(hc *handlerContext, old, new *uci.Section) ([]*Command, error) {
	if wifiMajorChange(old, new) {
		return wifiIfaceRevert(hc, old)
	}
	return []*Command{
		NewKillCommand(-PrioStartDaemon, old, hostapdPidFile(hc.manager.writeDir, old)),
	}, nil
}

func wifiMajorChange(old, new *uci.Section) bool {
	return old.Get("mode") != new.Get("mode") ||
		old.Get("device") != new.Get("device") ||
		old.Get("network") != new.Get("network")
}

// randomMAC returns a random locally administered MAC address
// ("02:xx:xx:xx:xx:xx").
func randomMAC() string {
	addr := "02"
	for i := 0; i < 5; i++ {
		addr += fmt.Sprintf(":%02x", rand.Intn(256))
	}
	return addr
}
