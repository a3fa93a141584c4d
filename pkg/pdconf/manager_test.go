/*
Copyright 2025 Paradrop Labs
*/

package pdconf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

const dnsmasqConfig = `
config interface lan
    option ifname 'eth0'
    option proto 'static'
    option ipaddr '192.168.33.66'
    option netmask '255.255.255.0'

config dnsmasq lan
    option noresolv '1'
    list server '8.8.8.8'

config dhcp lan
    option interface 'lan'
    option start '100'
    option limit '100'
    option leasetime '12h'
    list dhcp_option 'option:router,192.168.33.66'
`

const firewallZoneConfig = `
config interface wan
    option ifname 'eth0'
    option proto 'dhcp'

config zone
    option network 'wan'
    option masq '1'
    option output 'ACCEPT'
    option forward 'REJECT'
    option input 'ACCEPT'
    option name 'wan'
`

const firewallRedirectConfig = `
config interface wan
    option ifname 'eth0'
    option proto 'dhcp'

config zone
    option network 'wan'
    option masq '0'
    option output 'ACCEPT'
    option forward 'REJECT'
    option input 'ACCEPT'
    option name 'wan'

config redirect
    option src 'wan'
    option src_port '6000'
    option proto 'any'
    option dest_ip '192.168.33.66'
    option dest_port '60'

config redirect
    option src 'wan'
    option src_port '7000'
    option proto 'tcp'
    option dest_ip '192.168.33.66'
    option dest_port '70'

config redirect
    option src 'wan'
    option src_ip '1.2.3.4'
    option proto 'tcpudp'
    option dest_ip '192.168.33.66'

config redirect
    option dest 'wan'
    option src_dip '1.2.3.4'
    option proto 'any'
    option target 'SNAT'
`

const networkWanConfig = `
config interface eth0
    option ifname 'eth0'
    option proto 'static'
    option ipaddr '192.168.33.66'
    option netmask '255.255.255.0'
    option gateway '192.168.33.1'
`

const networkBridgeConfig = `
config interface lan
    list ifname 'eth1'
    list ifname 'eth2'
    option type 'bridge'
    option proto 'static'
    option ipaddr '192.168.33.66'
    option netmask '255.255.255.0'
`

const wirelessApConfig = `
config interface wifi
    option ifname 'wlan0'
    option proto 'dhcp'

config wifi-device radio
    option type 'auto'
    option ifname 'wlan0'
    option channel '1'

config wifi-iface ap1
    option device 'radio'
    option mode 'ap'
    option ssid 'Paradrop1'
    option network 'wifi'
    option ifname 'wlan0-ap1'
    option encryption 'psk2'
    option key 'password'

config wifi-iface ap2
    option device 'radio'
    option mode 'ap'
    option ssid 'Paradrop2'
    option network 'wifi'
    option ifname 'wlan0-ap2'
    option encryption 'psk2'
    option key '0000111122223333444455556666777788889999aaaabbbbccccddddeeeeffff'

config wifi-iface ap3
    option device 'radio'
    option mode 'ap'
    option ssid 'Paradrop3'
    option network 'wifi'
    option encryption 'none'
`

const wirelessStaConfig = `
config interface wifi
    option ifname 'wlan0'
    option proto 'dhcp'

config wifi-device radio
    option type 'auto'
    option ifname 'wlan0'
    option channel '1'

config wifi-iface sta1
    option device 'radio'
    option mode 'sta'
    option ssid 'Paradrop1'
    option network 'wifi'
    option encryption 'psk2'
    option key 'password'
`

type ManagerTestSuite struct {
	suite.Suite

	writeDir   string
	configFile string
	manager    *Manager
}

func (suite *ManagerTestSuite) SetupTest() {
	suite.writeDir = suite.T().TempDir()
	suite.configFile = filepath.Join(suite.T().TempDir(), "config")
	suite.manager = NewManager(suite.writeDir, zap.NewNop())
}

func (suite *ManagerTestSuite) load(config string) {
	suite.Require().NoError(os.WriteFile(suite.configFile, []byte(config), 0o644))
	suite.Require().NoError(suite.manager.LoadConfig(suite.configFile, false))
}

func (suite *ManagerTestSuite) commandStrings() []string {
	out := make([]string, len(suite.manager.PreviousCommands))
	for i, c := range suite.manager.PreviousCommands {
		out[i] = c.String()
	}
	return out
}

func (suite *ManagerTestSuite) inCommands(substr string) bool {
	for _, c := range suite.commandStrings() {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

// writePidFile plants a fake PID file so kill commands resolve.
func (suite *ManagerTestSuite) writePidFile(name, pid string) {
	path := filepath.Join(suite.writeDir, name)
	suite.Require().NoError(os.WriteFile(path, []byte(pid), 0o644))
}

func (suite *ManagerTestSuite) TestDnsmasq() {
	suite.load(dnsmasqConfig)
	suite.NotEmpty(suite.manager.PreviousCommands)

	// Should have generated a dnsmasq config file.
	conf, err := os.ReadFile(filepath.Join(suite.writeDir, "dnsmasq-lan.conf"))
	suite.Require().NoError(err)

	content := string(conf)
	suite.Contains(content, "interface=eth0")
	suite.Contains(content, "dhcp-range=192.168.33.100,192.168.33.200,12h")
	suite.Contains(content, "dhcp-option=option:router,192.168.33.66")
	suite.Contains(content, "no-resolv")
	suite.Contains(content, "server=8.8.8.8")
	suite.Contains(content, "bind-interfaces")

	suite.writePidFile("dnsmasq-lan.pid", "12345")
	suite.Require().NoError(suite.manager.Unload(false))
	suite.True(suite.inCommands("kill 12345"))
}

func (suite *ManagerTestSuite) TestFirewallZone() {
	suite.load(firewallZoneConfig)
	suite.Len(suite.manager.PreviousCommands, 2)
	suite.True(suite.inCommands("MASQUERADE"))

	suite.Require().NoError(suite.manager.Unload(false))
	suite.Len(suite.manager.PreviousCommands, 2)
}

func (suite *ManagerTestSuite) TestFirewallRedirect() {
	suite.load(firewallRedirectConfig)
	suite.Len(suite.manager.PreviousCommands, 5)
	suite.True(suite.inCommands("DNAT"))
	suite.False(suite.inCommands("SNAT"))

	suite.Require().NoError(suite.manager.Unload(false))
	suite.Len(suite.manager.PreviousCommands, 5)
}

func (suite *ManagerTestSuite) TestNetworkWan() {
	suite.load(networkWanConfig)
	suite.Len(suite.manager.PreviousCommands, 4)
	suite.True(suite.inCommands("192.168.33.66"))
	suite.True(suite.inCommands("default via 192.168.33.1"))

	suite.Require().NoError(suite.manager.Unload(false))
	suite.Len(suite.manager.PreviousCommands, 2)
}

func (suite *ManagerTestSuite) TestNetworkBridge() {
	suite.load(networkBridgeConfig)
	suite.Len(suite.manager.PreviousCommands, 10)
	suite.True(suite.inCommands("ip link add name br-lan type bridge"))
	suite.True(suite.inCommands("ip link set dev eth1 master br-lan"))
	suite.True(suite.inCommands("ip link set dev eth2 master br-lan"))

	suite.Require().NoError(suite.manager.Unload(false))
	suite.Len(suite.manager.PreviousCommands, 8)
	suite.True(suite.inCommands("ip link delete br-lan"))
}

func (suite *ManagerTestSuite) TestWirelessAp() {
	suite.load(wirelessApConfig)
	suite.Len(suite.manager.PreviousCommands, 9)

	// One AP uses a created virtual interface, another uses the radio
	// directly.
	suite.True(suite.inCommands("iw dev wlan0 interface add wlan0-ap1 type __ap"))
	suite.True(suite.inCommands("iw dev wlan0 set type __ap"))
	suite.True(suite.inCommands("hostapd"))

	_, err := os.Stat(filepath.Join(suite.writeDir, "hostapd-ap1.conf"))
	suite.Require().NoError(err)

	suite.writePidFile("hostapd-ap1.pid", "12345")
	suite.Require().NoError(suite.manager.Unload(false))
	suite.Len(suite.manager.PreviousCommands, 5)
	suite.True(suite.inCommands("kill 12345"))
	suite.True(suite.inCommands("iw dev wlan0-ap1 del"))
}

func (suite *ManagerTestSuite) TestWirelessSta() {
	suite.Require().NoError(os.WriteFile(suite.configFile, []byte(wirelessStaConfig), 0o644))
	err := suite.manager.LoadConfig(suite.configFile, false)
	suite.Require().Error(err)
	suite.Contains(err.Error(), "sta mode")
}

func (suite *ManagerTestSuite) TestCommandPriorityOrdering() {
	suite.load(wirelessApConfig)
	cmds := suite.manager.PreviousCommands
	for i := 1; i < len(cmds); i++ {
		suite.LessOrEqual(cmds[i-1].Priority, cmds[i].Priority)
	}
}

func (suite *ManagerTestSuite) TestDiffSymmetry() {
	suite.load(networkWanConfig)
	applyPrios := make(map[Priority]bool)
	for _, c := range suite.manager.PreviousCommands {
		suite.Greater(int(c.Priority), 0)
		applyPrios[c.Priority] = true
	}

	suite.Require().NoError(suite.manager.Unload(false))
	for _, c := range suite.manager.PreviousCommands {
		suite.Less(int(c.Priority), 0)
		suite.True(applyPrios[-c.Priority],
			"revert priority %d has no apply counterpart", c.Priority)
	}
}

func (suite *ManagerTestSuite) TestUnchangedSectionSkipped() {
	suite.load(networkWanConfig)
	suite.Len(suite.manager.PreviousCommands, 4)

	// Reloading the identical config emits nothing.
	suite.load(networkWanConfig)
	suite.Empty(suite.manager.PreviousCommands)
}

func (suite *ManagerTestSuite) TestChangedSectionReplaced() {
	suite.load(networkWanConfig)

	changed := strings.Replace(networkWanConfig,
		"option ipaddr '192.168.33.66'", "option ipaddr '192.168.33.77'", 1)
	suite.load(changed)

	// Full revert of the old section followed by apply of the new.
	suite.Len(suite.manager.PreviousCommands, 6)
	suite.True(suite.inCommands("192.168.33.77"))
}

func (suite *ManagerTestSuite) TestWirelessUpdateRestartsDaemonOnly() {
	suite.load(wirelessApConfig)
	suite.writePidFile("hostapd-ap1.pid", "4242")

	changed := strings.Replace(wirelessApConfig, "Paradrop1", "Renamed1", 1)
	suite.load(changed)

	// Only ap1 changed: kill the old daemon and start a new one; the
	// virtual interface survives.
	suite.Len(suite.manager.PreviousCommands, 2)
	suite.True(suite.inCommands("kill 4242"))
	suite.True(suite.inCommands("hostapd"))
	suite.False(suite.inCommands("interface add"))
}

func (suite *ManagerTestSuite) TestRollbackOnFailure() {
	exec := &recordingExecutor{failOn: "ip route add"}
	suite.manager.SetExecutor(exec)

	suite.Require().NoError(os.WriteFile(suite.configFile, []byte(networkWanConfig), 0o644))
	err := suite.manager.LoadConfig(suite.configFile, true)
	suite.Require().Error(err)

	// The failed apply triggered symmetric revert commands.
	var reverts int
	for _, c := range exec.ran {
		if strings.Contains(c, "ip addr flush") {
			reverts++
		}
	}
	suite.GreaterOrEqual(reverts, 2)

	// A second identical load still sees the section as new.
	suite.manager.SetExecutor(&recordingExecutor{})
	suite.Require().NoError(suite.manager.LoadConfig(suite.configFile, false))
	suite.Len(suite.manager.PreviousCommands, 4)
}

type recordingExecutor struct {
	ran    []string
	failOn string
}

func (e *recordingExecutor) Run(cmd *Command) error {
	s := cmd.String()
	e.ran = append(e.ran, s)
	if e.failOn != "" && strings.Contains(s, e.failOn) {
		return ErrCommandFailed
	}
	return nil
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}
