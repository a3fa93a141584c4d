/*
Copyright 2025 Paradrop Labs
*/

package update

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/leilei1881/Paradrop/pkg/chute"
	"github.com/leilei1881/Paradrop/pkg/uci"
)

// chuteConfigPath is the declared-config file the chute contributes to
// the confd search directory.
func chuteConfigPath(u *Update) string {
	return filepath.Join(u.agent.Settings.ConfigDir, "chute-"+u.Name)
}

// generateFilePlans schedules writing the chute's declared host
// configuration (network, firewall, wireless, DHCP sections) and the
// reconverge that follows. Nothing reloads when the projection did not
// change.
func generateFilePlans(u *Update) error {
	switch u.Type {
	case TypeCreate, TypeUpdate:
		if len(u.New.Net) > 0 {
			u.Plans.Add(PlanConfigWrite, "write chute host config",
				writeChuteConfig, restoreChuteConfig)
		}
	case TypeDelete:
		u.Plans.Add(PlanConfigWrite, "remove chute host config",
			removeChuteConfig, nil)
	}
	return nil
}

// writeChuteConfig collects the synthesized sections, writes the chute's
// config file, and reconverges the host when the contents changed.
func writeChuteConfig(u *Update) error {
	collection := uci.NewCollection()
	for _, key := range []string{
		chute.CacheOSNetworkConfig,
		chute.CacheOSFirewallConfig,
		chute.CacheOSWirelessConfig,
	} {
		if sections, ok := u.New.GetCache(key).([]*uci.Section); ok {
			for _, s := range sections {
				collection.Add(s)
			}
		}
	}

	path := chuteConfigPath(u)
	var rendered bytes.Buffer
	if err := uci.Format(&rendered, collection); err != nil {
		return err
	}

	previous, err := os.ReadFile(path)
	if err == nil && bytes.Equal(previous, rendered.Bytes()) {
		u.Progress("Host configuration unchanged")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create config dir")
	}
	if err := os.WriteFile(path, rendered.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	u.Progress("Reloading host network configuration")
	return u.agent.ConfD.LoadConfig(u.agent.Settings.ConfigDir, true)
}

// restoreChuteConfig puts back the old chute's config file during abort.
func restoreChuteConfig(u *Update) error {
	path := chuteConfigPath(u)
	if u.Old == nil {
		os.Remove(path)
	} else {
		collection := uci.NewCollection()
		for _, iface := range u.Old.Interfaces() {
			s, err := uci.NewSection("interface", iface.ExternalIntf)
			if err != nil {
				continue
			}
			s.Set("type", "bridge")
			s.Set("proto", "static")
			s.Set("ipaddr", iface.ExternalIpaddr)
			s.Set("netmask", iface.Netmask)
			s.Append("ifname", iface.ExternalIntf)
			collection.Add(s)
		}
		if err := uci.WriteFile(path, collection); err != nil {
			return err
		}
	}
	return u.agent.ConfD.LoadConfig(u.agent.Settings.ConfigDir, true)
}

func removeChuteConfig(u *Update) error {
	path := chuteConfigPath(u)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "remove %s", path)
	}
	return u.agent.ConfD.LoadConfig(u.agent.Settings.ConfigDir, true)
}
