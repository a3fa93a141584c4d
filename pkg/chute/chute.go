/*
Copyright 2025 Paradrop Labs
*/

// Package chute models the deployable workloads managed by the agent and
// the per-version state cached while an update is in flight.
package chute

import (
	"fmt"
)

// Cache keys. The cache carries state computed by one update stage for
// consumption by later stages.
const (
	CacheNetworkDevices    = "networkDevices"
	CacheNetworkInterfaces = "networkInterfaces"
	CacheOSNetworkConfig   = "osNetworkConfig"
	CacheVirtNetworkConfig = "virtNetworkConfig"
	CacheOSWirelessConfig  = "osWirelessConfig"
	CacheOSFirewallConfig  = "osFirewallConfig"
	CacheVolumes           = "volumes"
	CacheInternalDataDir   = "internalDataDir"
	CacheInternalSystemDir = "internalSystemDir"
)

// NetType classifies a chute network interface.
type NetType string

const (
	NetTypeWan  NetType = "wan"
	NetTypeLan  NetType = "lan"
	NetTypeWifi NetType = "wifi"
)

// HostConfig carries the container host settings a chute may request.
type HostConfig struct {
	// PortBindings maps container ports ("80" or "53/udp") to host ports.
	PortBindings map[string]int `yaml:"port_bindings,omitempty" mapstructure:"port_bindings"`
	DNS          []string       `yaml:"dns,omitempty" mapstructure:"dns"`
	// Volumes maps host paths to bind targets inside the container.
	Volumes map[string]string `yaml:"volumes,omitempty" mapstructure:"volumes"`
}

// NetworkSpec is a chute's declaration of one network interface it wants.
type NetworkSpec struct {
	IntfName   string            `yaml:"intfName" mapstructure:"intfName"`
	Type       NetType           `yaml:"type" mapstructure:"type"`
	SSID       string            `yaml:"ssid,omitempty" mapstructure:"ssid"`
	Encryption string            `yaml:"encryption,omitempty" mapstructure:"encryption"`
	Key        string            `yaml:"key,omitempty" mapstructure:"key"`
	DHCP       *DHCPSpec         `yaml:"dhcp,omitempty" mapstructure:"dhcp"`
	Options    map[string]string `yaml:"options,omitempty" mapstructure:"options"`
}

// DHCPSpec configures the DHCP pool served on a chute network.
type DHCPSpec struct {
	Start     int      `yaml:"start" mapstructure:"start"`
	Limit     int      `yaml:"limit" mapstructure:"limit"`
	Leasetime string   `yaml:"leasetime" mapstructure:"leasetime"`
	Options   []string `yaml:"options,omitempty" mapstructure:"options"`
}

// Interface is the fully resolved record for one chute network interface:
// the host-side device, the in-container device, and the addressing drawn
// from the dynamic pool.
type Interface struct {
	Name    string  `yaml:"name"`
	NetType NetType `yaml:"netType"`

	// ExternalIntf is the host-side veth or bridge name (15 char limit).
	ExternalIntf string `yaml:"externalIntf"`
	// InternalIntf is the name inside the chute.
	InternalIntf string `yaml:"internalIntf"`

	Netmask          string `yaml:"netmask"`
	ExternalIpaddr   string `yaml:"externalIpaddr"`
	InternalIpaddr   string `yaml:"internalIpaddr"`
	IpaddrWithPrefix string `yaml:"ipaddrWithPrefix"`

	// Subnet is the leased subnet in CIDR form, kept for release.
	Subnet string `yaml:"subnet"`

	// Device is the physical radio backing a wifi interface.
	Device     string    `yaml:"device,omitempty"`
	SSID       string    `yaml:"ssid,omitempty"`
	Encryption string    `yaml:"encryption,omitempty"`
	Key        string    `yaml:"key,omitempty"`
	DHCP       *DHCPSpec `yaml:"dhcp,omitempty"`
}

// Chute is an immutable per-version snapshot of a workload, plus a mutable
// cache scoped to the update that is operating on it.
type Chute struct {
	Name          string                 `yaml:"name"`
	Version       string                 `yaml:"version,omitempty"`
	ExternalImage string                 `yaml:"external_image,omitempty"`
	Environment   map[string]string      `yaml:"environment,omitempty"`
	HostConfig    *HostConfig            `yaml:"host_config,omitempty"`
	Net           map[string]NetworkSpec `yaml:"net,omitempty"`

	// NetworkInterfaces persists the resolved interface records so a
	// restarted agent can release leases and rebuild host config.
	NetworkInterfaces []*Interface `yaml:"networkInterfaces,omitempty"`

	cache map[string]interface{}
}

// ImageName returns the image reference for the chute: the external image
// when one is declared, otherwise name:version.
func (c *Chute) ImageName() string {
	if c.ExternalImage != "" {
		return c.ExternalImage
	}
	if c.Version != "" {
		return fmt.Sprintf("%s:%s", c.Name, c.Version)
	}
	return c.Name + ":latest"
}

// SetCache stores a value under the given key. Interface records are
// mirrored into the persisted snapshot.
func (c *Chute) SetCache(key string, value interface{}) {
	if c.cache == nil {
		c.cache = make(map[string]interface{})
	}
	c.cache[key] = value
	if key == CacheNetworkInterfaces {
		if ifaces, ok := value.([]*Interface); ok {
			c.NetworkInterfaces = ifaces
		}
	}
}

// GetCache returns the cached value for the key, or nil.
func (c *Chute) GetCache(key string) interface{} {
	return c.cache[key]
}

// Interfaces returns the resolved network interface records, or nil when
// the network stage has not run and no records were persisted.
func (c *Chute) Interfaces() []*Interface {
	if v, ok := c.GetCache(CacheNetworkInterfaces).([]*Interface); ok {
		return v
	}
	return c.NetworkInterfaces
}

func (c *Chute) String() string {
	if c.Version != "" {
		return fmt.Sprintf("%s@%s", c.Name, c.Version)
	}
	return c.Name
}
