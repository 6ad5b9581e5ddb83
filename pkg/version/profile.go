package version

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var profileFS embed.FS

// Profile describes the characteristics a protocol version exposes.
type Profile struct {
	Version         string    `yaml:"version"`
	Description     string    `yaml:"description"`
	Characteristics []CharDef `yaml:"characteristics"`
}

// CharDef is one characteristic in a profile.
type CharDef struct {
	ID      uint8    `yaml:"id"`
	Name    string   `yaml:"name"`
	Access  []string `yaml:"access"`
	MaxSize int      `yaml:"max_size"`
	Gated   bool     `yaml:"gated"`
}

// Can reports whether the characteristic allows op ("read", "write" or
// "notify").
func (c CharDef) Can(op string) bool {
	for _, a := range c.Access {
		if a == op {
			return true
		}
	}
	return false
}

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*Profile)
)

// LoadProfile loads the profile for a version string such as "1.0".
func LoadProfile(ver string) (*Profile, error) {
	cacheMu.RLock()
	if p, ok := cache[ver]; ok {
		cacheMu.RUnlock()
		return p, nil
	}
	cacheMu.RUnlock()

	data, err := profileFS.ReadFile("profiles/" + ver + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("profile %q not found: %w", ver, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %q: %w", ver, err)
	}

	cacheMu.Lock()
	cache[ver] = &p
	cacheMu.Unlock()
	return &p, nil
}

// LoadCurrentProfile loads the profile for Current.
func LoadCurrentProfile() (*Profile, error) {
	return LoadProfile(Current)
}

// AvailableProfiles returns the embedded profile versions, sorted.
func AvailableProfiles() ([]string, error) {
	entries, err := profileFS.ReadDir("profiles")
	if err != nil {
		return nil, fmt.Errorf("reading profiles: %w", err)
	}
	var versions []string
	for _, e := range entries {
		if name := e.Name(); strings.HasSuffix(name, ".yaml") {
			versions = append(versions, strings.TrimSuffix(name, ".yaml"))
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// Lookup finds a characteristic by name.
func (p *Profile) Lookup(name string) (CharDef, bool) {
	for _, c := range p.Characteristics {
		if c.Name == name {
			return c, true
		}
	}
	return CharDef{}, false
}

// ValidationResult holds the outcome of Validate.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validate checks an implementation's characteristic table against the
// profile: every profiled characteristic must be present with the same id
// and gating, and nothing extra may be exposed.
func (p *Profile) Validate(impl []CharDef) ValidationResult {
	var res ValidationResult

	byName := make(map[string]CharDef, len(impl))
	for _, c := range impl {
		byName[c.Name] = c
	}

	for _, want := range p.Characteristics {
		got, ok := byName[want.Name]
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("characteristic %s missing", want.Name))
			continue
		}
		delete(byName, want.Name)
		if got.ID != want.ID {
			res.Errors = append(res.Errors, fmt.Sprintf("characteristic %s id 0x%02x, profile expects 0x%02x", want.Name, got.ID, want.ID))
		}
		if got.Gated != want.Gated {
			res.Errors = append(res.Errors, fmt.Sprintf("characteristic %s gated=%t, profile expects %t", want.Name, got.Gated, want.Gated))
		}
	}

	extra := make([]string, 0, len(byName))
	for name := range byName {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		res.Errors = append(res.Errors, fmt.Sprintf("characteristic %s not in profile", name))
	}

	res.Valid = len(res.Errors) == 0
	return res
}
