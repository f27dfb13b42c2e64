package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/glowdan/framework/pkg/framework/config"
)

// globalState is everything a command touches outside its own flags.
// Tests swap the filesystem and writers.
type globalState struct {
	ctx    context.Context
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger

	flags globalFlags
}

type globalFlags struct {
	configPath string
	verbose    bool
}

func newGlobalState(ctx context.Context, fs afero.Fs, stdout, stderr io.Writer) *globalState {
	return &globalState{
		ctx:    ctx,
		fs:     fs,
		stdout: stdout,
		stderr: stderr,
	}
}

// settings loads the --config file through the state's filesystem, or the
// defaults when no file was given.
func (gs *globalState) settings() (config.Settings, error) {
	if gs.flags.configPath == "" {
		return config.DefaultSettings(), nil
	}
	data, err := afero.ReadFile(gs.fs, gs.flags.configPath)
	if err != nil {
		return config.Settings{}, fmt.Errorf("read config file: %w", err)
	}
	c, err := config.Parse(filepath.Ext(gs.flags.configPath), data)
	if err != nil {
		return config.Settings{}, err
	}
	s := c.Settings()
	if err := s.Validate(); err != nil {
		return config.Settings{}, err
	}
	return s, nil
}

func rootFlagSet(flags *globalFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet("", pflag.ContinueOnError)
	fs.SortFlags = false
	fs.StringVarP(&flags.configPath, "config", "c", "", "settings file (.yaml, .yml or .json)")
	fs.BoolVarP(&flags.verbose, "verbose", "v", false, "log debug output to stderr")
	return fs
}

func newRootCommand(gs *globalState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "eventctl",
		Short:         "Inspect and produce events in wire form",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			level := slog.LevelWarn
			if gs.flags.verbose {
				level = slog.LevelDebug
			}
			gs.logger = slog.New(slog.NewTextHandler(gs.stderr, &slog.HandlerOptions{Level: level}))
			return nil
		},
	}
	cmd.SetOut(gs.stdout)
	cmd.SetErr(gs.stderr)
	cmd.PersistentFlags().AddFlagSet(rootFlagSet(&gs.flags))

	cmd.AddCommand(
		getCmdCheckName(gs),
		getCmdEncode(gs),
		getCmdDecode(gs),
		getCmdPublish(gs),
		getCmdJournal(gs),
	)
	return cmd
}
