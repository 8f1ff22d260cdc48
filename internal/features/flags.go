// Package features holds the switches operators flip without a rebuild.
package features

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Flag represents a feature flag with metadata
type Flag struct {
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	// FlagSessionSync reads each gateway's session state at startup.
	FlagSessionSync = "session_sync"
	// FlagMediaReachability sends a HEAD request for every media link.
	FlagMediaReachability = "media_reachability_check"
	FlagRateLimiting      = "rate_limiting"
	// FlagAvatarJobs publishes profile picture refresh jobs.
	FlagAvatarJobs = "avatar_jobs"
)

// FlagDefinition contains metadata about a flag
type FlagDefinition struct {
	Name         string
	Description  string
	DefaultValue bool
}

var DefaultFlags = []FlagDefinition{
	{FlagSessionSync, "Read gateway session state on startup", true},
	{FlagMediaReachability, "Check media links with a HEAD request before storing them", false},
	{FlagRateLimiting, "Limit webhook requests per client address", true},
	{FlagAvatarJobs, "Publish avatar refresh jobs", true},
}

const envPrefix = "WAINGEST_FEATURE_"

// FlagManager manages feature flags with thread-safe operations
type FlagManager struct {
	flags map[string]*Flag
	mu    sync.RWMutex
}

// NewFlagManager returns a manager holding DefaultFlags.
func NewFlagManager() *FlagManager {
	fm := &FlagManager{flags: make(map[string]*Flag, len(DefaultFlags))}
	now := time.Now()
	for _, def := range DefaultFlags {
		fm.flags[def.Name] = &Flag{
			Name:        def.Name,
			Enabled:     def.DefaultValue,
			Description: def.Description,
			UpdatedAt:   now,
		}
	}
	return fm
}

// LoadFromConfig applies the features section of the configuration.
func (fm *FlagManager) LoadFromConfig(values map[string]bool) error {
	if err := Validate(values); err != nil {
		return err
	}
	for name, enabled := range values {
		fm.set(name, enabled)
	}
	return nil
}

// LoadFromEnvironment applies WAINGEST_FEATURE_<NAME>=true|false. Values
// that do not parse are returned as an error and leave the flag unchanged.
func (fm *FlagManager) LoadFromEnvironment() error {
	var bad []string
	for _, def := range DefaultFlags {
		key := envPrefix + strings.ToUpper(def.Name)
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			bad = append(bad, key)
			continue
		}
		fm.set(def.Name, enabled)
	}
	if len(bad) > 0 {
		return fmt.Errorf("invalid feature values: %s", strings.Join(bad, ", "))
	}
	return nil
}

func (fm *FlagManager) set(name string, enabled bool) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if flag, ok := fm.flags[name]; ok && flag.Enabled != enabled {
		flag.Enabled = enabled
		flag.UpdatedAt = time.Now()
	}
}

// IsEnabled reports a flag's state. Unknown flags are off. A nil manager
// reports defaults.
func (fm *FlagManager) IsEnabled(flagName string) bool {
	if fm == nil {
		for _, def := range DefaultFlags {
			if def.Name == flagName {
				return def.DefaultValue
			}
		}
		return false
	}

	fm.mu.RLock()
	defer fm.mu.RUnlock()

	flag, exists := fm.flags[flagName]
	return exists && flag.Enabled
}

func (fm *FlagManager) Enable(flagName string) error  { return fm.toggle(flagName, true) }
func (fm *FlagManager) Disable(flagName string) error { return fm.toggle(flagName, false) }

func (fm *FlagManager) toggle(flagName string, enabled bool) error {
	fm.mu.RLock()
	_, ok := fm.flags[flagName]
	fm.mu.RUnlock()
	if !ok {
		return ErrFlagNotFound{Name: flagName}
	}
	fm.set(flagName, enabled)
	return nil
}

// ListFlags returns copies of every flag ordered by name.
func (fm *FlagManager) ListFlags() []Flag {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	out := make([]Flag, 0, len(fm.flags))
	for _, f := range fm.flags {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate rejects names that are not defined flags.
func Validate(values map[string]bool) error {
	for name := range values {
		if !known(name) {
			return ErrFlagNotFound{Name: name}
		}
	}
	return nil
}

func known(name string) bool {
	for _, def := range DefaultFlags {
		if def.Name == name {
			return true
		}
	}
	return false
}

type ErrFlagNotFound struct {
	Name string
}

func (e ErrFlagNotFound) Error() string {
	return fmt.Sprintf("feature flag '%s' not found", e.Name)
}
