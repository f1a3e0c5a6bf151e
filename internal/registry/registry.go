// SPDX-License-Identifier: MIT
// Package registry persists the patch registry: the ordered set of patch
// sets applied on top of the vendor tree and their run history.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/skaphos/forksmith/internal/sortutil"
)

// FormatVersion is the registry document version written by this package.
const FormatVersion = 1

var (
	// ErrNotFound is returned when no patch set has the requested id.
	ErrNotFound = errors.New("patch set not found")
	// ErrDuplicateID is returned when two patch sets share an id.
	ErrDuplicateID = errors.New("duplicate patch set id")
)

// PatchSet is one named, enableable bundle of rule files and the engine
// that applies them, plus the outcome of its most recent run.
type PatchSet struct {
	ID               string     `json:"id" yaml:"id"`
	Description      string     `json:"description" yaml:"description"`
	Engine           EngineKind `json:"engine" yaml:"engine"`
	Enabled          bool       `json:"enabled" yaml:"enabled"`
	Rules            []string   `json:"rules" yaml:"rules"`
	Tags             []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	EngineConfidence *float64   `json:"engine_confidence,omitempty" yaml:"engine_confidence,omitempty"`

	LastAppliedCommit string     `json:"last_applied_commit,omitempty" yaml:"last_applied_commit,omitempty"`
	LastMatchCount    *int       `json:"last_match_count,omitempty" yaml:"last_match_count,omitempty"`
	LastStatus        string     `json:"last_status,omitempty" yaml:"last_status,omitempty"`
	LastRunTS         *time.Time `json:"last_run_ts,omitempty" yaml:"last_run_ts,omitempty"`

	// Extra holds fields this version does not know about. They are written
	// back unchanged on save.
	Extra map[string]json.RawMessage `json:"-" yaml:"-"`
}

// HasTag reports whether the patch set carries tag.
func (p PatchSet) HasTag(tag string) bool {
	return slices.Contains(p.Tags, tag)
}

// Registry is the persisted patch registry document.
type Registry struct {
	Version     int        `json:"version" yaml:"version"`
	GeneratedBy string     `json:"generated_by" yaml:"generated_by"`
	PatchSets   []PatchSet `json:"patch_sets" yaml:"patch_sets"`

	Extra map[string]json.RawMessage `json:"-" yaml:"-"`
}

type patchSetFields PatchSet

type registryFields Registry

var patchSetKnown = []string{
	"id", "description", "engine", "enabled", "rules", "tags", "engine_confidence",
	"last_applied_commit", "last_match_count", "last_status", "last_run_ts",
}

var registryKnown = []string{"version", "generated_by", "patch_sets"}

// MarshalJSON writes known fields in declaration order followed by any
// preserved unknown fields in key order.
func (p PatchSet) MarshalJSON() ([]byte, error) {
	fields := patchSetFields(p)
	if fields.Rules == nil {
		fields.Rules = []string{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return appendExtra(data, p.Extra, patchSetKnown)
}

// UnmarshalJSON decodes known fields and keeps the rest in Extra.
func (p *PatchSet) UnmarshalJSON(data []byte) error {
	var fields patchSetFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	extra, err := collectExtra(data, patchSetKnown)
	if err != nil {
		return err
	}
	*p = PatchSet(fields)
	p.Extra = extra
	return nil
}

func (r Registry) MarshalJSON() ([]byte, error) {
	fields := registryFields(r)
	if fields.PatchSets == nil {
		fields.PatchSets = []PatchSet{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return appendExtra(data, r.Extra, registryKnown)
}

func (r *Registry) UnmarshalJSON(data []byte) error {
	var fields registryFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	extra, err := collectExtra(data, registryKnown)
	if err != nil {
		return err
	}
	*r = Registry(fields)
	r.Extra = extra
	return nil
}

func collectExtra(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	extra := lo.OmitByKeys(all, known)
	if len(extra) == 0 {
		return nil, nil
	}
	for key, raw := range extra {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, err
		}
		extra[key] = buf.Bytes()
	}
	return extra, nil
}

func appendExtra(data []byte, extra map[string]json.RawMessage, known []string) ([]byte, error) {
	keys := lo.Without(lo.Keys(extra), known...)
	if len(keys) == 0 {
		return data, nil
	}
	slices.Sort(keys)
	var buf bytes.Buffer
	buf.Write(bytes.TrimSuffix(bytes.TrimSpace(data), []byte("}")))
	for _, key := range keys {
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(extra[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// New returns an empty registry stamped with generatedBy.
func New(generatedBy string) *Registry {
	return &Registry{
		Version:     FormatVersion,
		GeneratedBy: generatedBy,
		PatchSets:   []PatchSet{},
	}
}

// Load reads and validates a registry file. Patch sets are returned in id
// order.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}
	if reg.PatchSets == nil {
		reg.PatchSets = []PatchSet{}
	}
	sortutil.SortByID(reg.PatchSets, patchSetID)
	return &reg, nil
}

// LoadOrInit loads the registry at path, or returns an empty one when the
// file does not exist. Any other read or parse failure is returned.
func LoadOrInit(path, generatedBy string) (*Registry, error) {
	reg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(generatedBy), nil
	}
	return reg, err
}

// Save writes the full registry to path as indented JSON.
func Save(reg *Registry, path string) error {
	if reg == nil {
		return errors.New("registry is nil")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the version, ids and engine kinds.
func (r *Registry) Validate() error {
	if r.Version < 1 || r.Version > FormatVersion {
		return fmt.Errorf("unsupported registry version %d (expected %d)", r.Version, FormatVersion)
	}
	seen := make(map[string]struct{}, len(r.PatchSets))
	for _, ps := range r.PatchSets {
		if err := validatePatchSet(ps); err != nil {
			return err
		}
		if _, dup := seen[ps.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateID, ps.ID)
		}
		seen[ps.ID] = struct{}{}
	}
	return nil
}

func validatePatchSet(ps PatchSet) error {
	if strings.TrimSpace(ps.ID) == "" {
		return errors.New("patch set with empty id")
	}
	if !ps.Engine.Valid() {
		return fmt.Errorf("patch set %q: unknown engine %q", ps.ID, ps.Engine)
	}
	return nil
}

func patchSetID(ps PatchSet) string { return ps.ID }

// Find returns the patch set with id, or nil.
func (r *Registry) Find(id string) *PatchSet {
	for i := range r.PatchSets {
		if r.PatchSets[i].ID == id {
			return &r.PatchSets[i]
		}
	}
	return nil
}

// Add inserts a new patch set, keeping id order.
func (r *Registry) Add(ps PatchSet) error {
	if err := validatePatchSet(ps); err != nil {
		return err
	}
	if r.Find(ps.ID) != nil {
		return fmt.Errorf("%w: %q", ErrDuplicateID, ps.ID)
	}
	r.PatchSets = append(r.PatchSets, ps)
	sortutil.SortByID(r.PatchSets, patchSetID)
	return nil
}

// SetEnabled toggles a patch set. Run history is left untouched.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	ps := r.Find(id)
	if ps == nil {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	ps.Enabled = enabled
	return nil
}

// Enabled returns the enabled patch sets in id order.
func (r *Registry) Enabled() []PatchSet {
	return lo.Filter(r.PatchSets, func(ps PatchSet, _ int) bool { return ps.Enabled })
}

// FilterByTags returns patch sets carrying any of tags. No tags means all.
func (r *Registry) FilterByTags(tags []string) []PatchSet {
	if len(tags) == 0 {
		return slices.Clone(r.PatchSets)
	}
	return lo.Filter(r.PatchSets, func(ps PatchSet, _ int) bool {
		return lo.SomeBy(tags, ps.HasTag)
	})
}

// UpdateAfterRun records the result of applying a patch set and returns the
// derived status. A nil matches clears the previous count.
func (r *Registry) UpdateAfterRun(id, commit string, matches *int, outcome string, now time.Time) (string, error) {
	ps := r.Find(id)
	if ps == nil {
		return "", fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	status := DeriveStatus(ps.LastMatchCount, matches, outcome)
	if commit != "" {
		ps.LastAppliedCommit = commit
	}
	if matches != nil {
		count := *matches
		ps.LastMatchCount = &count
	} else {
		ps.LastMatchCount = nil
	}
	ps.LastStatus = status
	ts := now.UTC().Truncate(time.Second)
	ps.LastRunTS = &ts
	return status, nil
}

// RecordSkipped stamps a status on a patch set that was not run, keeping
// its commit and match history.
func (r *Registry) RecordSkipped(id, status string, now time.Time) error {
	ps := r.Find(id)
	if ps == nil {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	ps.LastStatus = status
	ts := now.UTC().Truncate(time.Second)
	ps.LastRunTS = &ts
	return nil
}
