package calculator

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// PresetTable maps each audience to its pricing defaults.
type PresetTable map[Audience]Preset

// DefaultPresets returns the built-in pricing defaults.
func DefaultPresets() PresetTable {
	return PresetTable{
		AudienceHome:       {PricePerKW: 55000, SubsidyAmount: 78000},
		AudienceCommercial: {PricePerKW: 45000, SubsidyAmount: 0},
	}
}

// Apply returns the preset for a, falling back to the built-in defaults for
// audiences missing from the table.
func (t PresetTable) Apply(a Audience) Preset {
	if p, ok := t[a]; ok {
		return p
	}
	if p, ok := DefaultPresets()[a]; ok {
		return p
	}
	return DefaultPresets()[AudienceHome]
}

// ApplyAudiencePreset returns the built-in preset for a.
func ApplyAudiencePreset(a Audience) Preset {
	return DefaultPresets().Apply(a)
}

// DefaultInput is the form state a fresh calculator starts from.
func (t PresetTable) DefaultInput(a Audience) Input {
	p := t.Apply(a)
	return Input{
		Audience:            a,
		MonthlyBill:         5000,
		TariffPerUnit:       9,
		CoverageGoalPercent: 80,
		PricePerKW:          p.PricePerKW,
		SubsidyAmount:       p.SubsidyAmount,
	}
}

type presetFile struct {
	AnnualYieldPerKW float64           `yaml:"annual_yield_per_kw"`
	Audiences        map[string]Preset `yaml:"audiences"`
}

// LoadPresets reads a YAML presets file. Audiences missing from the file keep
// their built-in defaults.
func LoadPresets(path string) (PresetTable, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	return ParsePresets(blob)
}

func ParsePresets(blob []byte) (PresetTable, error) {
	var pf presetFile
	if err := yaml.Unmarshal(blob, &pf); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	if pf.AnnualYieldPerKW != 0 && pf.AnnualYieldPerKW != AnnualYieldPerKW {
		return nil, fmt.Errorf("annual_yield_per_kw is fixed at %.0f, got %.0f", AnnualYieldPerKW, pf.AnnualYieldPerKW)
	}
	table := DefaultPresets()
	var errs []error
	for name, p := range pf.Audiences {
		a, err := ParseAudience(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if p.PricePerKW < 0 || p.SubsidyAmount < 0 {
			errs = append(errs, fmt.Errorf("%s: price_per_kw and subsidy_amount must be non-negative", a))
			continue
		}
		table[a] = p
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return table, nil
}

// EncodePresets writes t in the presets file format accepted by ParsePresets.
func EncodePresets(t PresetTable) ([]byte, error) {
	pf := presetFile{AnnualYieldPerKW: AnnualYieldPerKW, Audiences: make(map[string]Preset, len(t))}
	for a, p := range t {
		pf.Audiences[string(a)] = p
	}
	return yaml.Marshal(pf)
}

// PresetRegistry holds the preset table currently in effect.
type PresetRegistry struct {
	mu    sync.RWMutex
	table PresetTable
	path  string
}

func NewPresetRegistry(table PresetTable) *PresetRegistry {
	if table == nil {
		table = DefaultPresets()
	}
	return &PresetRegistry{table: table}
}

// NewPresetRegistryFromFile loads path, or uses the defaults when path is empty.
func NewPresetRegistryFromFile(path string) (*PresetRegistry, error) {
	if path == "" {
		return NewPresetRegistry(nil), nil
	}
	table, err := LoadPresets(path)
	if err != nil {
		return nil, err
	}
	r := NewPresetRegistry(table)
	r.path = path
	return r, nil
}

// Table returns a copy of the current table.
func (r *PresetRegistry) Table() PresetTable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(PresetTable, len(r.table))
	for k, v := range r.table {
		out[k] = v
	}
	return out
}

func (r *PresetRegistry) Apply(a Audience) Preset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.Apply(a)
}

func (r *PresetRegistry) Path() string {
	return r.path
}

// Reload re-reads the backing file. On failure the previous table is kept.
func (r *PresetRegistry) Reload() error {
	if r.path == "" {
		return nil
	}
	table, err := LoadPresets(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.table = table
	r.mu.Unlock()
	return nil
}
