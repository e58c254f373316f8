package plug

/*------------------------------------------------------------------
 *
 * Purpose:	Resolve a wire device_type byte to a human vendor/model
 *		name, for presentation only.
 *
 * Description:	Modeled directly on the teacher's deviceid.go, which
 *		loads a YAML table (tocalls.yaml) once at startup and
 *		looks entries up by a short wire code. Here the table is
 *		embedded in the binary with go:embed rather than read
 *		from a runtime path, since it ships as part of the
 *		module and isn't meant to be user-editable like
 *		tocalls.yaml is.
 *
 *---------------------------------------------------------------*/

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var embeddedProfiles []byte

// Profile names a device's vendor/model for display.
type Profile struct {
	Type   string `yaml:"type"`
	Name   string `yaml:"name"`
	Vendor string `yaml:"vendor"`
	Model  string `yaml:"model"`
}

// ProfileTable maps a wire device_type byte to its Profile.
type ProfileTable struct {
	byType map[string]Profile
}

// LoadProfileTable decodes the embedded profiles.yaml.
func LoadProfileTable() (*ProfileTable, error) {
	var profiles []Profile

	if err := yaml.Unmarshal(embeddedProfiles, &profiles); err != nil {
		return nil, fmt.Errorf("plug: decode device profiles: %w", err)
	}

	t := &ProfileTable{byType: make(map[string]Profile, len(profiles))}

	for _, p := range profiles {
		t.byType[p.Type] = p
	}

	return t, nil
}

// Lookup returns the profile for a device_type byte ("2" or "3") and
// whether one was found.
func (t *ProfileTable) Lookup(deviceType string) (Profile, bool) {
	p, ok := t.byType[deviceType]

	return p, ok
}
