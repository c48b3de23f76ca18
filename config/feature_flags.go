package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages toggles for optional host behaviour. The workflow
// rules themselves are never behind a flag.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Per-subject overrides (for testing/debugging)
	overrides map[string]map[string]bool // subjectID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100). Subjects are bucketed by a hash of their ID.
	RolloutPercent int

	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	SubjectID string // student or staff ID
	IsStaff   bool
}

// Predefined feature flag names.
const (
	FeatureNotifyDatabase = "notify.database" // in-app inbox rows
	FeatureNotifyWebhook  = "notify.webhook"  // POST to NOTIFY_WEBHOOK_URL

	FeaturePayrollAutoGenerate = "payroll.auto_generate" // semi-monthly cron payroll
	FeatureAuditHashChain      = "audit.hash_chain"      // chain audit rows with blake2b

	FeatureRecommendations  = "eligibility.recommendations" // /students/{id}/recommendations
	FeatureScholarshipCache = "cache.scholarships"          // Redis read-through cache
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:  make(map[string]*Feature),
		overrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	defaults := []Feature{
		{Name: FeatureNotifyDatabase, Description: "Store notifications in the in-app inbox", Enabled: true, RolloutPercent: 100},
		{Name: FeatureNotifyWebhook, Description: "Forward notifications to the configured webhook", Enabled: false, RolloutPercent: 0},
		{Name: FeaturePayrollAutoGenerate, Description: "Generate assistantship payments every semi-monthly period", Enabled: true, RolloutPercent: 100},
		{Name: FeatureAuditHashChain, Description: "Chain audit records with a blake2b digest", Enabled: true, RolloutPercent: 100},
		{Name: FeatureRecommendations, Description: "Scholarship recommendations for students", Enabled: true, RolloutPercent: 100},
		{Name: FeatureScholarshipCache, Description: "Cache scholarship definitions in Redis", Enabled: true, RolloutPercent: 100},
	}
	for i := range defaults {
		f := defaults[i]
		ff.features[f.Name] = &f
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_NOTIFY_WEBHOOK=true
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// "notify.webhook" -> "FEATURE_NOTIFY_WEBHOOK"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if ctx != nil && ctx.SubjectID != "" {
		if subject, ok := ff.overrides[ctx.SubjectID]; ok {
			if enabled, ok := subject[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	if ctx != nil && ctx.IsStaff {
		return true
	}

	if feature.RolloutPercent < 100 && ctx != nil && ctx.SubjectID != "" {
		return inRollout(ctx.SubjectID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// Enabled is IsEnabled without a subject.
func (ff *FeatureFlags) Enabled(featureName string) bool {
	return ff.IsEnabled(featureName, nil)
}

func inRollout(subjectID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(subjectID))
	return int(h.Sum32()%100) < percent
}

// SetOverride sets a feature override for a specific subject.
func (ff *FeatureFlags) SetOverride(subjectID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.overrides[subjectID]; !ok {
		ff.overrides[subjectID] = make(map[string]bool)
	}
	ff.overrides[subjectID][featureName] = enabled
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]Feature, len(ff.features))
	for k, v := range ff.features {
		result[k] = *v
	}
	return result
}

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
