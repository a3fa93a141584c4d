/*
Copyright 2025 Paradrop Labs
*/

// Package settings holds the agent configuration, loaded through viper
// from flags, config file, and environment.
package settings

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Settings is the agent-wide configuration. There is one instance,
// created at startup and passed explicitly into constructors.
type Settings struct {
	// DynamicNetworkPool is the supernet chute subnets are leased from.
	DynamicNetworkPool string `mapstructure:"dynamic_network_pool"`
	// SubnetPrefixLen is the size of each leased chute subnet.
	SubnetPrefixLen int `mapstructure:"subnet_prefix_len"`

	// WriteDir receives derived daemon configs and PID files.
	WriteDir string `mapstructure:"write_dir"`
	// ConfigDir holds the declared host configuration the confd manager
	// converges on; the agent writes per-chute files here.
	ConfigDir string `mapstructure:"config_dir"`
	// DataDir is the host directory chute data dirs are created under.
	DataDir string `mapstructure:"data_dir"`
	// SystemDir is the host directory of per-chute system files.
	SystemDir string `mapstructure:"system_dir"`
	// ChuteStoreDir persists installed chute definitions.
	ChuteStoreDir string `mapstructure:"chute_store_dir"`

	// InternalDataDir and InternalSystemDir are the mount points inside
	// chute containers.
	InternalDataDir   string `mapstructure:"internal_data_dir"`
	InternalSystemDir string `mapstructure:"internal_system_dir"`

	RegistryUsername string `mapstructure:"registry_username"`
	RegistryPassword string `mapstructure:"registry_password"`

	// RouterID identifies this device to chutes.
	RouterID string `mapstructure:"router_id"`

	// WifiDevices lists the physical radios available for chute APs.
	WifiDevices []string `mapstructure:"wifi_devices"`

	// GlueTool is the external helper that links host interfaces into
	// containers.
	GlueTool string `mapstructure:"glue_tool"`

	Debug bool `mapstructure:"debug"`
}

// SetDefaults registers the default values on a viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("dynamic_network_pool", "192.168.128.0/17")
	v.SetDefault("subnet_prefix_len", 24)
	v.SetDefault("write_dir", "/var/run/paradrop")
	v.SetDefault("config_dir", "/var/lib/paradrop/config")
	v.SetDefault("data_dir", "/var/lib/paradrop/chutes")
	v.SetDefault("system_dir", "/var/lib/paradrop/system")
	v.SetDefault("chute_store_dir", "/var/lib/paradrop/store")
	v.SetDefault("internal_data_dir", "/data")
	v.SetDefault("internal_system_dir", "/paradrop")
	v.SetDefault("glue_tool", "/usr/bin/pipework")
}

// FromViper decodes the settings from a viper instance.
func FromViper(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(err, "decode settings")
	}
	return &s, nil
}
