package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// MetricWeights assigns the relative weight of each normalized sub-score in
// the composite bombing score. Weights must sum to ~1.0.
type MetricWeights struct {
	OnesZScore         float64 `json:"ones_zscore"`
	SpikeAnomaly       float64 `json:"spike_anomaly"`
	DistributionEffect float64 `json:"distribution_effect"`
	EntropyDeficit     float64 `json:"entropy_deficit"`
	Bimodality         float64 `json:"bimodality"`
}

// Sum returns the total weight mass.
func (w MetricWeights) Sum() float64 {
	return w.OnesZScore + w.SpikeAnomaly + w.DistributionEffect + w.EntropyDeficit + w.Bimodality
}

// SuspicionThresholds are the bombing-score bands for classification.
type SuspicionThresholds struct {
	Critical float64 `json:"critical"`
	High     float64 `json:"high"`
	Medium   float64 `json:"medium"`
}

// StatisticalThresholds gate the anomaly flags on individual metrics.
type StatisticalThresholds struct {
	OnesZExtreme        float64 `json:"ones_z_extreme"`
	OnesZSignificant    float64 `json:"ones_z_significant"`
	SpikeExtreme        float64 `json:"spike_extreme"`
	SpikeElevated       float64 `json:"spike_elevated"`
	BimodalityConfirmed float64 `json:"bimodality_confirmed"`
	BimodalityPossible  float64 `json:"bimodality_possible"`
	EffectLarge         float64 `json:"effect_large"`
	EffectMedium        float64 `json:"effect_medium"`
	EntropyWarning      float64 `json:"entropy_warning"`
}

// FormatAdjustments are multiplicative discounts by content format. Movies,
// OVAs and specials attract naturally skewed voting from smaller audiences,
// so their scores are discounted.
type FormatAdjustments struct {
	Movie   float64 `json:"movie"`
	OVA     float64 `json:"ova"`
	Special float64 `json:"special"`
	Sequel  float64 `json:"sequel"`
	Default float64 `json:"default"`
}

// Config is the full calibration for the analysis core. It is constructed
// once and injected; nothing in this package reads global state.
type Config struct {
	MinVotesThreshold int `json:"min_votes_threshold"`

	ExpectedEntropy     float64 `json:"expected_entropy"`
	BimodalityThreshold float64 `json:"bimodality_threshold"`

	ExpectedOnesByRating map[RatingCategory]ExpectedOnes `json:"expected_ones_by_rating"`

	Weights     MetricWeights         `json:"metric_weights"`
	Suspicion   SuspicionThresholds   `json:"suspicion_thresholds"`
	Statistical StatisticalThresholds `json:"statistical_thresholds"`
	Format      FormatAdjustments     `json:"format_adjustments"`

	AgeOldThresholdYears float64 `json:"age_old_threshold_years"`
	AgeOldFactor         float64 `json:"age_old_factor"`

	// Damping of low-magnitude anomalies. Below MinOnesToConsider the spike
	// sub-score is zeroed; between the two bounds it ramps linearly.
	MinOnesToConsider    float64 `json:"min_ones_to_consider"`
	MinOnesForFullWeight float64 `json:"min_ones_for_full_weight"`

	// Classification gates. High bands require a minimum 1-vote share or the
	// level cascades downward.
	MinOnesForCritical float64 `json:"min_ones_for_critical"`
	MinOnesForHigh     float64 `json:"min_ones_for_high"`

	// Effect-size discount for top-heavy distributions with few 1s.
	TensDiscountThreshold float64 `json:"tens_discount_threshold"`
	OnesDiscountThreshold float64 `json:"ones_discount_threshold"`
	EffectDiscountFactor  float64 `json:"effect_discount_factor"`

	SeverityPValueCutoff float64 `json:"severity_pvalue_cutoff"`
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		MinVotesThreshold:   1000,
		ExpectedEntropy:     0.68,
		BimodalityThreshold: 0.555,
		ExpectedOnesByRating: map[RatingCategory]ExpectedOnes{
			CategoryElite:     {Mean: 0.4, Std: 0.25, MaxNatural: 1.2},
			CategoryExcellent: {Mean: 0.7, Std: 0.35, MaxNatural: 1.8},
			CategoryGreat:     {Mean: 1.2, Std: 0.5, MaxNatural: 2.8},
			CategoryGood:      {Mean: 2.0, Std: 0.8, MaxNatural: 4.5},
			CategoryAverage:   {Mean: 3.5, Std: 1.2, MaxNatural: 7.0},
		},
		Weights: MetricWeights{
			OnesZScore:         0.35,
			SpikeAnomaly:       0.20,
			DistributionEffect: 0.20,
			EntropyDeficit:     0.10,
			Bimodality:         0.15,
		},
		Suspicion: SuspicionThresholds{
			Critical: 75,
			High:     55,
			Medium:   35,
		},
		Statistical: StatisticalThresholds{
			OnesZExtreme:        3.0,
			OnesZSignificant:    2.0,
			SpikeExtreme:        4.0,
			SpikeElevated:       2.5,
			BimodalityConfirmed: 0.4,
			BimodalityPossible:  0.3,
			EffectLarge:         1.0,
			EffectMedium:        0.5,
			EntropyWarning:      0.15,
		},
		Format: FormatAdjustments{
			Movie:   0.90,
			OVA:     0.90,
			Special: 0.90,
			Sequel:  0.85,
			Default: 1.0,
		},
		AgeOldThresholdYears:  15,
		AgeOldFactor:          0.95,
		MinOnesToConsider:     0.5,
		MinOnesForFullWeight:  2.0,
		MinOnesForCritical:    2.0,
		MinOnesForHigh:        1.5,
		TensDiscountThreshold: 45.0,
		OnesDiscountThreshold: 1.5,
		EffectDiscountFactor:  0.5,
		SeverityPValueCutoff:  0.05,
	}
}

// Validate checks the config invariants that would silently corrupt scores
// if violated.
func (c Config) Validate() error {
	if sum := c.Weights.Sum(); math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("metric weights must sum to 1.0, got %.4f", sum)
	}
	if c.MinVotesThreshold < 0 {
		return fmt.Errorf("min_votes_threshold must be non-negative, got %d", c.MinVotesThreshold)
	}
	if c.Suspicion.Critical <= c.Suspicion.High || c.Suspicion.High <= c.Suspicion.Medium {
		return fmt.Errorf("suspicion thresholds must be strictly descending: %.1f/%.1f/%.1f",
			c.Suspicion.Critical, c.Suspicion.High, c.Suspicion.Medium)
	}
	if len(c.ExpectedOnesByRating) == 0 {
		return fmt.Errorf("expected_ones_by_rating must not be empty")
	}
	for cat, e := range c.ExpectedOnesByRating {
		if e.Std < 0 {
			return fmt.Errorf("expected ones std for %s must be non-negative, got %.3f", cat, e.Std)
		}
	}
	return nil
}

// CalibrationStore manages named calibration profiles as JSON files on disk.
type CalibrationStore struct {
	dataDir string
}

// NewCalibrationStore creates a calibration store rooted at dataDir.
func NewCalibrationStore(dataDir string) *CalibrationStore {
	return &CalibrationStore{dataDir: dataDir}
}

// LoadConfig loads the calibration profile, falling back to defaults when no
// profile file exists. Loaded profiles are validated before use.
func (c *CalibrationStore) LoadConfig(profile string) (Config, error) {
	filePath := filepath.Join(c.dataDir, fmt.Sprintf("%s.json", profile))

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open calibration file: %w", err)
	}
	defer file.Close()

	cfg := DefaultConfig()
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode calibration profile %s: %w", profile, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("calibration profile %s is invalid: %w", profile, err)
	}

	return cfg, nil
}

// SaveConfig persists a calibration profile.
func (c *CalibrationStore) SaveConfig(profile string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(c.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create calibration directory: %w", err)
	}

	filePath := filepath.Join(c.dataDir, fmt.Sprintf("%s.json", profile))
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create calibration file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode calibration profile %s: %w", profile, err)
	}

	return nil
}
