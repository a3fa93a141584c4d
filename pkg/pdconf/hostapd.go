/*
Copyright 2025 Paradrop Labs
*/

package pdconf

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/leilei1881/Paradrop/internal/files"
	"github.com/leilei1881/Paradrop/pkg/uci"
)

// ErrUnsupportedEncryption is returned for encryption modes other than
// none and psk2.
var ErrUnsupportedEncryption = errors.New("Encryption type not supported")

// hostapdHwmode maps hardware mode strings from the config grammar to
// hostapd.conf hw_mode values.
var hostapdHwmode = map[string]string{
	"11b": "b",
	"11g": "g",
	"11a": "a",
}

// Channels whose 40 MHz pair sits above (lower set) or below (upper set)
// the primary channel.
var (
	ht40LowerChannels = intSet(36, 44, 52, 60, 100, 108, 116, 124, 132, 140, 149, 157)
	ht40UpperChannels = intSet(40, 48, 56, 64, 104, 112, 120, 128, 136, 144, 153, 161)
)

// Center segment index tables: 20 MHz channel to the index of the wider
// channel that contains it.
var vht40CenterIndex = map[int]int{
	36: 38, 40: 38, 44: 46, 48: 46,
	52: 54, 56: 54, 60: 62, 64: 62,
	100: 102, 104: 102, 108: 110, 112: 110,
	116: 118, 120: 118, 124: 126, 128: 126,
	132: 134, 136: 134, 140: 142, 144: 142,
	149: 151, 153: 151, 157: 159, 161: 159,
}

var vht80CenterIndex = map[int]int{
	36: 42, 40: 42, 44: 42, 48: 42,
	52: 58, 56: 58, 60: 58, 64: 58,
	100: 106, 104: 106, 108: 106, 112: 106,
	116: 122, 120: 122, 124: 122, 128: 122,
	132: 138, 136: 138, 140: 138, 144: 138,
	149: 155, 153: 155, 157: 155, 161: 155,
}

var vht160CenterIndex = map[int]int{
	36: 50, 40: 50, 44: 50, 48: 50,
	52: 50, 56: 50, 60: 50, 64: 50,
	100: 114, 104: 114, 108: 114, 112: 114,
	116: 114, 120: 114, 124: 114, 128: 114,
}

func intSet(vals ...int) map[int]bool {
	s := make(map[int]bool, len(vals))
	for _, v := range vals {
		s[v] = true
	}
	return s
}

// validHtmodes enumerates the representable channel width modes. 80+80
// operation has no encoding here, so it cannot be requested.
var validHtmodes = map[string]bool{
	"HT20": true, "HT40": true, "HT40+": true, "HT40-": true,
	"VHT20": true, "VHT40": true, "VHT80": true, "VHT160": true,
}

type hostapdOption struct {
	key   string
	value interface{}
}

// hostapdGenerator renders the hostapd.conf for a wifi-iface section:
// main options, optional 802.11n and 802.11ac blocks, and security.
type hostapdGenerator struct {
	ap    *uci.Section
	radio *uci.Section
	state *wifiState

	enable11n  bool
	enable11ac bool
}

func writeHostapdConf(path string, ap *uci.Section, state *wifiState) error {
	gen := &hostapdGenerator{ap: ap, radio: state.radio, state: state}

	htmode := state.radio.Get("htmode")
	if htmode != "" {
		if !validHtmodes[htmode] {
			return errors.Errorf("wifi-device %s: unsupported htmode %q",
				state.radio.Name, htmode)
		}
		gen.enable11n = true
		gen.enable11ac = strings.HasPrefix(htmode, "VHT")
	}

	return files.WriteConfig(gen.encode, path, nil)
}

func (g *hostapdGenerator) encode(w io.Writer, _ interface{}) error {
	fmt.Fprintf(w, "# hostapd configuration generated by pdconf\n")
	fmt.Fprintf(w, "# Source: %s\n", g.ap.Source)
	fmt.Fprintf(w, "# Section: %s\n", g.ap)

	sections := []struct {
		title string
		opts  func() ([]hostapdOption, error)
	}{
		{"", g.mainOptions},
		{"802.11n", g.options11n},
		{"802.11ac", g.options11ac},
		{"Security", g.securityOptions},
	}
	for _, sec := range sections {
		if sec.title == "802.11n" && !g.enable11n {
			continue
		}
		if sec.title == "802.11ac" && !g.enable11ac {
			continue
		}
		opts, err := sec.opts()
		if err != nil {
			return err
		}
		fmt.Fprintln(w)
		if sec.title != "" {
			fmt.Fprintf(w, "##### %s #####\n", sec.title)
		}
		for _, opt := range opts {
			fmt.Fprintf(w, "%s=%v\n", opt.key, opt.value)
		}
	}
	return nil
}

func (g *hostapdGenerator) mainOptions() ([]hostapdOption, error) {
	opts := []hostapdOption{{"interface", g.state.ifname}}

	if g.state.iface.Get("type") == "bridge" {
		device, err := ifaceDevice(g.state.iface)
		if err != nil {
			return nil, err
		}
		opts = append(opts, hostapdOption{"bridge", device})
	}

	opts = append(opts, hostapdOption{"ssid", g.ap.Get("ssid")})

	if country := g.radio.Get("country"); country != "" {
		opts = append(opts,
			hostapdOption{"country_code", country},
			hostapdOption{"ieee80211d", 1})
	}

	if hwmode := g.radio.Get("hwmode"); hwmode != "" {
		mode, ok := hostapdHwmode[hwmode]
		if !ok {
			return nil, errors.Errorf("unrecognized hardware mode: %s", hwmode)
		}
		opts = append(opts, hostapdOption{"hw_mode", mode})
	}

	opts = append(opts, hostapdOption{"channel", g.radio.GetInt("channel")})

	if g.radio.Has("beacon_int") {
		opts = append(opts, hostapdOption{"beacon_int", g.radio.GetInt("beacon_int")})
	}
	if g.ap.Has("maxassoc") {
		opts = append(opts, hostapdOption{"max_num_sta", g.ap.GetInt("maxassoc")})
	}
	if g.radio.Has("rts") {
		opts = append(opts, hostapdOption{"rts_threshold", g.radio.GetInt("rts")})
	}
	if g.radio.Has("frag") {
		opts = append(opts, hostapdOption{"fragm_threshold", g.radio.GetInt("frag")})
	}

	wmm := 0
	if g.ap.GetBool("wmm") {
		wmm = 1
	}
	opts = append(opts, hostapdOption{"wmm_enabled", wmm})

	return opts, nil
}

func (g *hostapdGenerator) options11n() ([]hostapdOption, error) {
	opts := []hostapdOption{{"ieee80211n", 1}}

	htmode := g.radio.Get("htmode")
	channel := g.radio.GetInt("channel")

	capab := ""
	if strings.HasPrefix(htmode, "HT40") {
		capab += "[" + htmode + "]"
	} else if htmode == "VHT40" || htmode == "VHT80" || htmode == "VHT160" {
		if ht40LowerChannels[channel] {
			capab += "[HT40+]"
		} else if ht40UpperChannels[channel] {
			capab += "[HT40-]"
		}
	}

	if g.radio.GetBool("short_gi_20") {
		capab += "[SHORT-GI-20]"
	}
	if g.radio.GetBool("short_gi_40") {
		capab += "[SHORT-GI-40]"
	}
	if g.radio.GetInt("tx_stbc") > 0 {
		capab += "[TX-STBC]"
	}
	switch rx := g.radio.GetInt("rx_stbc"); {
	case rx == 1:
		capab += "[RX-STBC1]"
	case rx == 2:
		capab += "[RX-STBC12]"
	case rx >= 3:
		capab += "[RX-STBC123]"
	}
	if g.radio.GetBool("dsss_cck_40") {
		capab += "[DSSS_CCK-40]"
	}

	if capab != "" {
		opts = append(opts, hostapdOption{"ht_capab", capab})
	}
	if g.radio.Get("require_mode") == "n" {
		opts = append(opts, hostapdOption{"require_ht", 1})
	}
	return opts, nil
}

func (g *hostapdGenerator) options11ac() ([]hostapdOption, error) {
	opts := []hostapdOption{{"ieee80211ac", 1}}

	if g.radio.Get("require_mode") == "ac" {
		opts = append(opts, hostapdOption{"require_vht", 1})
	}

	channel := g.radio.GetInt("channel")

	// chwidth 0 covers 20 and 40 MHz operation.
	chwidth := 0
	seg0 := channel
	var ok bool
	switch g.radio.Get("htmode") {
	case "VHT40":
		seg0, ok = vht40CenterIndex[channel]
	case "VHT80":
		chwidth = 1
		seg0, ok = vht80CenterIndex[channel]
	case "VHT160":
		chwidth = 2
		seg0, ok = vht160CenterIndex[channel]
	default:
		ok = true
	}
	if !ok {
		return nil, errors.Errorf("channel %d cannot carry %s operation",
			channel, g.radio.Get("htmode"))
	}

	capab := ""
	if g.radio.GetBool("short_gi_80") {
		capab += "[SHORT-GI-80]"
	}
	if g.radio.GetBool("short_gi_160") {
		capab += "[SHORT-GI-160]"
	}
	if g.radio.GetBool("tx_stbc_2by1") {
		capab += "[TX-STBC-2BY1]"
	}
	switch rx := g.radio.GetInt("rx_stbc"); {
	case rx == 1:
		capab += "[RX-STBC-1]"
	case rx == 2:
		capab += "[RX-STBC-12]"
	case rx == 3:
		capab += "[RX-STBC-123]"
	case rx >= 4:
		capab += "[RX-STBC-1234]"
	}
	if capab != "" {
		opts = append(opts, hostapdOption{"vht_capab", capab})
	}

	opts = append(opts,
		hostapdOption{"vht_oper_chwidth", chwidth},
		hostapdOption{"vht_oper_centr_freq_seg0_idx", seg0})
	return opts, nil
}

func (g *hostapdGenerator) securityOptions() ([]hostapdOption, error) {
	switch g.ap.Get("encryption") {
	case "", "none":
		return []hostapdOption{{"wpa", 0}}, nil

	case "psk2":
		key := g.ap.Get("key")
		if key == "" {
			return nil, errors.Errorf("wifi-iface %s: psk2 requires a key", g.ap.Name)
		}
		opts := []hostapdOption{{"wpa", 1}}
		// A 64 character hex string is the PSK itself; anything else is
		// a passphrase.
		if len(key) == 64 && isHexString(key) {
			opts = append(opts, hostapdOption{"wpa_psk", key})
		} else {
			opts = append(opts, hostapdOption{"wpa_passphrase", key})
		}
		opts = append(opts,
			hostapdOption{"wpa_pairwise", "TKIP CCMP"},
			hostapdOption{"rsn_pairwise", "CCMP"})
		return opts, nil
	}

	return nil, errors.Wrapf(ErrUnsupportedEncryption,
		"%q (supported: none|psk2)", g.ap.Get("encryption"))
}

// isHexString reports whether the string contains only hex digits.
func isHexString(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
