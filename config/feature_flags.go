package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags toggles optional parts of the learning flow at runtime.
// Flags are loaded from FEATURE_<NAME> environment variables and can be
// overridden per learner profile.
type FeatureFlags struct {
	mu sync.RWMutex

	features         map[string]*Feature
	profileOverrides map[string]map[string]bool
}

// Feature is a single toggle.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// Predefined feature flag names.
const (
	// === Gamification ===
	FeatureStudyStreaks  = "gamification.streaks"       // Daily study streak counter
	FeatureSpecialBadges = "gamification.special_badges" // speed-runner, perfectionist, early-adopter
	FeatureModuleBadges  = "gamification.module_badges"  // Badge for finishing every lesson of a module

	// === Content ===
	FeatureLocalMirror  = "content.local_mirror"  // Try the bundled mirror before the remote origin
	FeatureRemoteOrigin = "content.remote_origin" // Fall back to raw.githubusercontent.com
	FeatureCacheOnStart = "content.clean_on_start" // Run cleanOldCache when the app starts
)

// LoadFeatureFlags returns the defaults with environment overrides applied.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature),
		profileOverrides: make(map[string]map[string]bool),
	}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	defaults := []Feature{
		{Name: FeatureStudyStreaks, Description: "Count consecutive calendar days with a completed lesson", Enabled: true},
		{Name: FeatureSpecialBadges, Description: "Evaluate speed-runner, perfectionist and early-adopter badges", Enabled: true},
		{Name: FeatureModuleBadges, Description: "Award a module badge once all its lessons are complete", Enabled: true},
		{Name: FeatureLocalMirror, Description: "Read lessons from the local static mirror first", Enabled: true},
		{Name: FeatureRemoteOrigin, Description: "Fall back to the remote raw-content origin", Enabled: true},
		{Name: FeatureCacheOnStart, Description: "Evict stale cached lessons at startup", Enabled: true},
	}
	for i := range defaults {
		f := defaults[i]
		ff.features[f.Name] = &f
	}
}

// loadFromEnvironment applies FEATURE_<NAME>=true|false overrides.
// Example: FEATURE_CONTENT_REMOTE_ORIGIN=false
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
		}
	}
}

// "content.remote_origin" -> "FEATURE_CONTENT_REMOTE_ORIGIN"
func featureNameToEnvKey(name string) string {
	return "FEATURE_" + strings.ReplaceAll(strings.ToUpper(name), ".", "_")
}

// IsEnabled reports whether a feature is on for profile. An empty profile
// skips override lookup. Unknown features are off.
func (ff *FeatureFlags) IsEnabled(featureName, profile string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if profile != "" {
		if overrides, ok := ff.profileOverrides[profile]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	return ok && feature.Enabled
}

// SetProfileOverride forces a feature on or off for one profile.
func (ff *FeatureFlags) SetProfileOverride(profile, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.profileOverrides[profile]; !ok {
		ff.profileOverrides[profile] = make(map[string]bool)
	}
	ff.profileOverrides[profile][featureName] = enabled
}

// ClearProfileOverrides removes all overrides for a profile.
func (ff *FeatureFlags) ClearProfileOverrides(profile string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.profileOverrides, profile)
}

// EnableFeature turns a feature on globally.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.setEnabled(featureName, true)
}

// DisableFeature turns a feature off globally.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.setEnabled(featureName, false)
}

func (ff *FeatureFlags) setEnabled(featureName string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return &FeatureFlagError{Feature: featureName, Message: "unknown feature"}
	}
	feature.Enabled = enabled
	return nil
}

// GetAllFeatures returns copies of all features sorted by name.
func (ff *FeatureFlags) GetAllFeatures() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FeatureFlagError reports an operation on an unknown feature.
type FeatureFlagError struct {
	Feature string
	Message string
}

func (e *FeatureFlagError) Error() string {
	return "feature flag " + e.Feature + ": " + e.Message
}
