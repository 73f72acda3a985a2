package main

import (
	"context"
	"epoccore/internal/blob"
	"epoccore/internal/config"
	"epoccore/internal/core"
	"epoccore/internal/ctxlog"
	"io"

	"github.com/spf13/cobra"
)

type app struct {
	stdout, stderr io.Writer

	configPath string
	logLevel   string
	logFormat  string

	cfg config.Config
	svc *core.Service
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "epoc",
		Short:         "Manage EPOC universes, templates and archives",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.svc == nil {
				return nil
			}
			return a.svc.Close()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to an HCL config file (default $EPOC_CONFIG)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newListCmd(a),
		newTemplatesCmd(a),
		newValidateCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newSchemaCmd(a),
	)
	return root
}

// setup resolves the configuration and installs the logger. Storage is
// opened lazily by service.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	a.cfg = cfg
	logger := ctxlog.New(cfg.Log.Level, cfg.Log.Format, a.stderr)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(ctxlog.WithLogger(ctx, logger))
	return nil
}

func (a *app) service(ctx context.Context) (*core.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	st, err := core.OpenStorage(ctx, a.cfg.Storage)
	if err != nil {
		return nil, err
	}
	blobs, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	a.svc = core.NewService(st,
		core.WithBlobStore(blobs),
		core.WithEngineConfig(a.cfg.Engine),
		core.WithMetrics(core.NewExpvarMetricsRecorder("")),
	)
	return a.svc, nil
}
