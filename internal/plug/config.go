package plug

/*------------------------------------------------------------------
 *
 * Purpose:	Read the INI-like configuration file: a "master" section
 *		plus one section per device, named by its colon-hex MAC.
 *
 * Description:	Line-oriented scanner in the manner of the teacher's
 *		config.go (bufio.Scanner, '#' comments, "key = value"),
 *		decoding into a plain struct instead of cgo C types.
 *
 *---------------------------------------------------------------*/

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// DeviceConfig is one device section's recognised keys.
type DeviceConfig struct {
	MAC      MAC
	Alias    string
	Interval time.Duration
	Profile  string
}

// MasterConfig is the "master" section's recognised keys.
type MasterConfig struct {
	Interface      string
	MAC            MAC
	UID            *int
	GID            *int
	Datalog        string
	DNSSDName      string
	ControlSocket  string
	AlwaysRewrite  bool
}

// Config is a fully parsed configuration document.
type Config struct {
	Master  MasterConfig
	Devices []DeviceConfig
}

// ParseConfig reads an INI-like document from r.
//
// Recognised sections: "master" (interface, mac, uid, gid, datalog,
// dns-sd-name, control-socket, always-rewrite-pib) and one section per
// device, whose name is the device's colon-hex MAC (interval, alias,
// profile). Absent keys leave the corresponding field at its zero
// value, which callers read as "clear this".
func ParseConfig(r io.Reader) (*Config, error) {
	cfg := &Config{}
	byMAC := map[MAC]*DeviceConfig{}
	var order []MAC

	var section string

	scanner := bufio.NewScanner(r)

	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])

			if section != "master" {
				mac, err := ParseMAC(section)
				if err != nil {
					return nil, fmt.Errorf("plug: config line %d: bad section name %q: %w", lineNum, section, err)
				}

				if _, ok := byMAC[mac]; !ok {
					dc := &DeviceConfig{MAC: mac}
					byMAC[mac] = dc
					order = append(order, mac)
				}
			}

			continue
		}

		key, value, ok := splitKV(line)
		if !ok {
			return nil, fmt.Errorf("plug: config line %d: expected key = value, got %q", lineNum, line)
		}

		if section == "" {
			return nil, fmt.Errorf("plug: config line %d: key outside any section", lineNum)
		}

		if section == "master" {
			if err := applyMasterKey(&cfg.Master, key, value); err != nil {
				return nil, fmt.Errorf("plug: config line %d: %w", lineNum, err)
			}

			continue
		}

		mac, err := ParseMAC(section)
		if err != nil {
			return nil, fmt.Errorf("plug: config line %d: bad section name %q: %w", lineNum, section, err)
		}

		if err := applyDeviceKey(byMAC[mac], key, value); err != nil {
			return nil, fmt.Errorf("plug: config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("plug: reading config: %w", err)
	}

	for _, mac := range order {
		cfg.Devices = append(cfg.Devices, *byMAC[mac])
	}

	return cfg, nil
}

func splitKV(line string) (key, value string, ok bool) {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "", "", false
	}

	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

func applyMasterKey(m *MasterConfig, key, value string) error {
	switch key {
	case "interface":
		m.Interface = value
	case "mac":
		mac, err := ParseMAC(value)
		if err != nil {
			return err
		}

		m.MAC = mac
	case "uid":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("bad uid %q: %w", value, err)
		}

		m.UID = &v
	case "gid":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("bad gid %q: %w", value, err)
		}

		m.GID = &v
	case "datalog":
		m.Datalog = value
	case "dns-sd-name":
		m.DNSSDName = value
	case "control-socket":
		m.ControlSocket = value
	case "always-rewrite-pib":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("bad always-rewrite-pib %q: %w", value, err)
		}

		m.AlwaysRewrite = v
	default:
		return fmt.Errorf("unknown master key %q", key)
	}

	return nil
}

func applyDeviceKey(dc *DeviceConfig, key, value string) error {
	switch key {
	case "interval":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("bad interval %q: %w", value, err)
		}

		dc.Interval = time.Duration(v) * time.Second
	case "alias":
		dc.Alias = value
	case "profile":
		dc.Profile = value
	default:
		return fmt.Errorf("unknown device key %q", key)
	}

	return nil
}
