/*
Copyright 2025 Paradrop Labs
*/

// Package uci implements the section-based configuration grammar used by the
// agent: a stream of "config <type> [<name>]" blocks carrying "option" and
// "list" assignments. Section schemas are data, so parsing, validation, and
// diffing are a single implementation regardless of section kind.
package uci

// Kind is the value kind of a section option.
type Kind int

const (
	String Kind = iota
	Int
	Bool
	List
)

// OptionSpec declares a single option accepted by a section type.
type OptionSpec struct {
	Name     string
	Kind     Kind
	Required bool
	Default  string
	// DefaultList is used instead of Default when Kind is List.
	DefaultList []string
}

// Schema describes one section type within a package.
type Schema struct {
	Package string
	Type    string
	Options []OptionSpec
}

func (s Schema) option(name string) (OptionSpec, bool) {
	for _, opt := range s.Options {
		if opt.Name == name {
			return opt, true
		}
	}
	return OptionSpec{}, false
}

// Schemas for every recognized section type. Each type belongs to exactly
// one package, so input files do not need to declare packages.
var schemas = []Schema{
	{
		Package: "network",
		Type:    "interface",
		Options: []OptionSpec{
			{Name: "type", Kind: String},
			{Name: "proto", Kind: String, Required: true},
			{Name: "ifname", Kind: List},
			{Name: "ipaddr", Kind: String},
			{Name: "netmask", Kind: String},
			{Name: "gateway", Kind: String},
		},
	},
	{
		Package: "firewall",
		Type:    "zone",
		Options: []OptionSpec{
			{Name: "name", Kind: String},
			{Name: "network", Kind: String, Required: true},
			{Name: "input", Kind: String, Default: "ACCEPT"},
			{Name: "output", Kind: String, Default: "ACCEPT"},
			{Name: "forward", Kind: String, Default: "REJECT"},
			{Name: "masq", Kind: Bool, Default: "0"},
		},
	},
	{
		Package: "firewall",
		Type:    "redirect",
		Options: []OptionSpec{
			{Name: "src", Kind: String},
			{Name: "src_ip", Kind: String},
			{Name: "src_dip", Kind: String},
			{Name: "src_port", Kind: String},
			{Name: "proto", Kind: String, Default: "tcpudp"},
			{Name: "dest", Kind: String},
			{Name: "dest_ip", Kind: String},
			{Name: "dest_port", Kind: String},
			{Name: "target", Kind: String, Default: "DNAT"},
		},
	},
	{
		Package: "dhcp",
		Type:    "dnsmasq",
		Options: []OptionSpec{
			{Name: "interface", Kind: List},
			{Name: "noresolv", Kind: Bool, Default: "0"},
			{Name: "server", Kind: List},
		},
	},
	{
		Package: "dhcp",
		Type:    "dhcp",
		Options: []OptionSpec{
			{Name: "interface", Kind: String, Required: true},
			{Name: "leasetime", Kind: String, Required: true, Default: "12h"},
			{Name: "limit", Kind: Int, Required: true, Default: "150"},
			{Name: "start", Kind: Int, Required: true, Default: "100"},
			{Name: "dhcp_option", Kind: List},
		},
	},
	{
		Package: "wireless",
		Type:    "wifi-device",
		Options: []OptionSpec{
			{Name: "type", Kind: String},
			{Name: "ifname", Kind: String},
			{Name: "channel", Kind: Int, Required: true},
			{Name: "hwmode", Kind: String},
			{Name: "htmode", Kind: String},
			{Name: "txpower", Kind: Int},
			{Name: "country", Kind: String},
			{Name: "require_mode", Kind: String},
			{Name: "beacon_int", Kind: Int},
			{Name: "frag", Kind: Int},
			{Name: "rts", Kind: Int},

			// 802.11n capabilities
			{Name: "short_gi_20", Kind: Bool, Default: "0"},
			{Name: "short_gi_40", Kind: Bool, Default: "0"},
			{Name: "tx_stbc", Kind: Int, Default: "0"},
			{Name: "rx_stbc", Kind: Int, Default: "0"},
			{Name: "dsss_cck_40", Kind: Bool, Default: "0"},

			// 802.11ac capabilities
			{Name: "short_gi_80", Kind: Bool, Default: "0"},
			{Name: "short_gi_160", Kind: Bool, Default: "0"},
			{Name: "tx_stbc_2by1", Kind: Bool, Default: "0"},
		},
	},
	{
		Package: "wireless",
		Type:    "wifi-iface",
		Options: []OptionSpec{
			{Name: "device", Kind: String, Required: true},
			{Name: "mode", Kind: String, Required: true},
			{Name: "ssid", Kind: String, Required: true},
			{Name: "network", Kind: String, Required: true},
			{Name: "encryption", Kind: String},
			{Name: "key", Kind: String},
			{Name: "hidden", Kind: Bool, Default: "0"},
			{Name: "wmm", Kind: Bool, Default: "1"},
			{Name: "maxassoc", Kind: Int},
			{Name: "ifname", Kind: String},
		},
	},
}

// SchemaFor returns the schema for a section type, along with its owning
// package.
func SchemaFor(sectionType string) (Schema, bool) {
	for _, s := range schemas {
		if s.Type == sectionType {
			return s, true
		}
	}
	return Schema{}, false
}
