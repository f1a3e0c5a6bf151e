package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/skaphos/forksmith/internal/discovery"
	"github.com/skaphos/forksmith/internal/remotemismatch"
)

// ToolCheck records whether an external program is on PATH.
type ToolCheck struct {
	Name   string `json:"name" yaml:"name"`
	Binary string `json:"binary" yaml:"binary"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	Found  bool   `json:"found" yaml:"found"`
	// Required tools block updates; optional ones only skip patch sets.
	Required bool `json:"required" yaml:"required"`
}

// DoctorReport summarizes workspace health.
type DoctorReport struct {
	Workspace        string                   `json:"workspace" yaml:"workspace"`
	VendorDir        string                   `json:"vendor_dir" yaml:"vendor_dir"`
	VendorExists     bool                     `json:"vendor_exists" yaml:"vendor_exists"`
	VendorIsRepo     bool                     `json:"vendor_is_repo" yaml:"vendor_is_repo"`
	RegistryPath     string                   `json:"registry_path" yaml:"registry_path"`
	RegistryExists   bool                     `json:"registry_exists" yaml:"registry_exists"`
	PatchSets        int                      `json:"patch_sets_registered" yaml:"patch_sets_registered"`
	EnabledPatchSets int                      `json:"patch_sets_enabled" yaml:"patch_sets_enabled"`
	Tools            []ToolCheck              `json:"tools" yaml:"tools"`
	Remotes          []remotemismatch.Finding `json:"remote_findings" yaml:"remote_findings"`
	Problems         []string                 `json:"problems" yaml:"problems"`
}

// Healthy reports whether nothing needs fixing before an update.
func (r *DoctorReport) Healthy() bool { return len(r.Problems) == 0 }

// Doctor inspects the workspace without modifying it. A registry that fails
// to parse is reported as a problem rather than returned as an error.
func (e *Engine) Doctor(ctx context.Context) (*DoctorReport, error) {
	report := &DoctorReport{
		Workspace:    e.workspace,
		VendorDir:    e.VendorDir(),
		RegistryPath: e.RegistryPath(),
		Tools:        []ToolCheck{},
		Remotes:      []remotemismatch.Finding{},
		Problems:     []string{},
	}
	report.VendorExists = discovery.DirExists(report.VendorDir)
	report.RegistryExists = fileExists(report.RegistryPath)

	if !report.VendorExists {
		report.Problems = append(report.Problems, fmt.Sprintf("vendor directory %s does not exist", report.VendorDir))
	} else {
		ok, err := e.adapter.IsRepo(ctx, report.VendorDir)
		if err != nil {
			return nil, err
		}
		report.VendorIsRepo = ok
		if !ok {
			report.Problems = append(report.Problems, fmt.Sprintf("%s is not a %s repository", report.VendorDir, e.adapter.Name()))
		} else {
			remotes, err := e.adapter.Remotes(ctx, report.VendorDir)
			if err != nil {
				return nil, err
			}
			report.Remotes = remotemismatch.Check(e.cfg.Fork, remotes)
			for _, f := range report.Remotes {
				report.Problems = append(report.Problems, f.Message)
			}
		}
	}

	reg, err := e.LoadRegistry()
	if err != nil {
		report.Problems = append(report.Problems, err.Error())
	} else {
		report.PatchSets = len(reg.PatchSets)
		report.EnabledPatchSets = len(reg.Enabled())
	}

	buildBin := ""
	if args, err := e.builder.Args(); err != nil {
		report.Problems = append(report.Problems, err.Error())
	} else {
		buildBin = args[0]
	}
	checks := []ToolCheck{
		{Name: "git", Binary: "git", Required: true},
		{Name: "ast-grep", Binary: e.cfg.Engines.AstGrep.Binary},
		{Name: "coccinelle", Binary: e.cfg.Engines.Coccinelle.Binary},
	}
	if buildBin != "" {
		checks = append(checks, ToolCheck{Name: "build", Binary: buildBin})
	}
	for _, check := range checks {
		if check.Binary == "" {
			continue
		}
		if path, err := e.runner.LookPath(check.Binary); err == nil {
			check.Path = path
			check.Found = true
		} else if check.Required {
			report.Problems = append(report.Problems, fmt.Sprintf("%s not found on PATH", check.Binary))
		}
		report.Tools = append(report.Tools, check)
	}
	e.logger.Debug("doctor finished", zap.Int("problems", len(report.Problems)))
	return report, nil
}
