package forksmith

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/skaphos/forksmith/internal/config"
	"github.com/skaphos/forksmith/internal/engine"
)

// workspace is the loaded configuration and the root its relative paths
// resolve against.
type workspace struct {
	cfg     *config.Config
	cfgPath string
	root    string
}

func configOverride(_ *cobra.Command) string {
	return flagConfig
}

func loadWorkspace(cmd *cobra.Command) (*workspace, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfgPath, err := config.ResolveConfigPath(configOverride(cmd), cwd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	debugf(cmd, "using config %s", cfgPath)
	return &workspace{cfg: cfg, cfgPath: cfgPath, root: config.WorkspaceRoot(cfgPath)}, nil
}

func newEngine(cmd *cobra.Command, ws *workspace) *engine.Engine {
	return engine.New(engine.Options{
		Config:      ws.cfg,
		Workspace:   ws.root,
		Logger:      newLogger(cmd),
		GeneratedBy: "forksmith " + Version,
	})
}
