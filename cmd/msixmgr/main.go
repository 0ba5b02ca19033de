package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/peitaosu/msix-packaging/pkg/config"
	"github.com/peitaosu/msix-packaging/pkg/container"
	"github.com/peitaosu/msix-packaging/pkg/manifest"
	"github.com/peitaosu/msix-packaging/pkg/pipeline"
	"github.com/peitaosu/msix-packaging/pkg/pipeline/handlers"
	"github.com/peitaosu/msix-packaging/pkg/platform"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the settings shared by every subcommand.
type cli struct {
	configFile string
	output     string
	flags      map[string]*string
	cfg        *config.Config
}

func rootCmd() *cobra.Command {
	c := &cli{flags: make(map[string]*string)}
	root := &cobra.Command{
		Use:   "msixmgr",
		Short: "msixmgr: install and remove MSIX packages",
		Long: `msixmgr installs MSIX packages on hosts without native MSIX support.

An install walks a fixed table of handlers (extraction, shortcuts, uninstall
entry, protocol, COM and file type registrations, startup tasks). A failing
step hands over to a rollback handler; a remove undoes every step best effort.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.load,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configFile, "config", "", "path to a YAML config file")
	pf.StringVar(&c.output, "output", "", "write the operation response as JSON to this file")
	for _, f := range []struct{ key, name, usage string }{
		{config.KeyRoot, "root", "directory standing in for the host install locations"},
		{config.KeyValidation, "validation", "package validation: full, skip-signature or allow-unknown-origin"},
		{config.KeyLogLevel, "log-level", "log level: debug, info, warn or error"},
		{config.KeyLogFormat, "log-format", "log format: text or json"},
		{config.KeyLogFile, "log-file", "also write logs to this rotated file"},
	} {
		c.flags[f.key] = pf.String(f.name, "", f.usage)
	}

	root.AddCommand(c.addCmd())
	root.AddCommand(c.removeCmd())
	root.AddCommand(c.findCmd())
	root.AddCommand(c.listCmd())
	root.AddCommand(lintCmd(c))
	root.AddCommand(graphCmd())
	return root
}

// load resolves the configuration and installs the process logger.
func (c *cli) load(_ *cobra.Command, _ []string) error {
	overrides := make(map[string]any)
	for key, v := range c.flags {
		if *v != "" {
			overrides[key] = *v
		}
	}
	cfg, err := config.Load(c.configFile, overrides)
	if err != nil {
		return err
	}
	c.cfg = cfg

	var sinks []io.Writer
	if cfg.Log.File != "" {
		sinks = append(sinks, &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})
	}
	return initLogger(cfg.Log.Level, cfg.Log.Format, sinks...)
}

// ─── add / remove ────────────────────────────────────────────────────────────

func (c *cli) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <package.msix>",
		Short: "Install a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.mutate(cmd.Context(), pipeline.Options{
				Operation:       pipeline.OperationAdd,
				PackageFilePath: args[0],
				Validation:      c.cfg.ValidationPolicy(),
			})
			if resp != nil && err == nil {
				printStatus(cmd.OutOrStdout(), true, "installed %s", resp.GetString(pipeline.KeyPackageFullName))
			}
			return err
		},
	}
}

func (c *cli) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <package-full-name>",
		Short: "Remove an installed package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.mutate(cmd.Context(), pipeline.Options{
				Operation:       pipeline.OperationRemove,
				PackageFullName: args[0],
			})
			if err != nil {
				return err
			}
			warnings := 0
			for _, s := range resp.Steps {
				if s.Outcome == pipeline.OutcomeWarning {
					warnings++
					printStatus(cmd.OutOrStdout(), false, "%s: %s", s.Handler, s.Error)
				}
			}
			if warnings > 0 {
				printStatus(cmd.OutOrStdout(), false, "removed %s with %d warning(s)", args[0], warnings)
			} else {
				printStatus(cmd.OutOrStdout(), true, "removed %s", args[0])
			}
			return nil
		},
	}
}

// mutate runs an add or remove under the operation lock.
func (c *cli) mutate(ctx context.Context, opts pipeline.Options) (*pipeline.Response, error) {
	ctx, stop := signalContext(ctx)
	defer stop()

	paths, err := c.cfg.Paths()
	if err != nil {
		return nil, err
	}
	if err := paths.Ensure(); err != nil {
		return nil, err
	}
	lock, err := platform.AcquireLock(ctx, paths.LockFile(), c.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("release operation lock", "error", err)
		}
	}()
	return c.run(ctx, paths, opts)
}

// ─── find / list ─────────────────────────────────────────────────────────────

func (c *cli) findCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <package-full-name>",
		Short: "Show an installed package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.query(cmd.Context(), pipeline.Options{
				Operation:       pipeline.OperationFindPackage,
				PackageFullName: args[0],
			})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if !resp.GetBool(pipeline.KeyFound) {
				fmt.Fprintln(w, "Package not found")
				return nil
			}
			fmt.Fprintf(w, "FullName:    %s\n", resp.GetString(pipeline.KeyPackageFullName))
			fmt.Fprintf(w, "DisplayName: %s\n", resp.GetString(pipeline.KeyDisplayName))
			fmt.Fprintf(w, "Directory:   %s\n", resp.GetString(pipeline.KeyDirectory))
			return nil
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := c.query(cmd.Context(), pipeline.Options{Operation: pipeline.OperationFindAllPackages})
			if err != nil {
				return err
			}
			v, _ := resp.Get(pipeline.KeyPackages)
			names, _ := v.([]string)
			w := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintln(w, name)
			}
			fmt.Fprintf(w, "%d Package(s) found\n", len(names))
			return nil
		},
	}
}

func (c *cli) query(ctx context.Context, opts pipeline.Options) (*pipeline.Response, error) {
	paths, err := c.cfg.Paths()
	if err != nil {
		return nil, err
	}
	return c.run(ctx, paths, opts)
}

func (c *cli) run(ctx context.Context, paths platform.Paths, opts pipeline.Options) (*pipeline.Response, error) {
	eng, err := handlers.NewEngine(paths)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	req, err := eng.NewRequest(opts)
	if err != nil {
		return nil, err
	}
	resp, runErr := eng.Run(ctx, req)
	if err := writeOutputContext(c.output, resp); err != nil {
		slog.Error("write response", "path", c.output, "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	return resp, runErr
}

// ─── lint ─────────────────────────────────────────────────────────────────────

func lintCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "lint [package.msix]",
		Short: "Validate the handler tables and, optionally, a package",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			for _, t := range []*pipeline.Table{handlers.AddTable(), handlers.RemoveTable()} {
				if err := pipeline.ValidateErr(t.Family(), t.Start(), tableEntries(t)); err != nil {
					return err
				}
				fmt.Fprintf(w, "OK: %s table is valid (%d handlers)\n", t.Family(), t.Len())
			}
			if len(args) == 0 {
				return nil
			}

			pkg, err := container.OpenPackage(args[0], c.cfg.ValidationPolicy())
			if err != nil {
				return err
			}
			defer pkg.Close()
			m, err := manifest.FromStorage(pkg)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "OK: package %s is valid (%d entries, %d extensions)\n",
				m.Identity.FullName(), len(pkg.Names()), len(m.Extensions))
			return nil
		},
	}
}

// tableEntries rebuilds the rows of t for validation.
func tableEntries(t *pipeline.Table) []pipeline.Entry {
	names := t.Names()
	entries := make([]pipeline.Entry, 0, len(names))
	for _, n := range names {
		r, _ := t.Route(n)
		entries = append(entries, pipeline.Entry{Name: n, Route: r})
	}
	return entries
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// initLogger installs the default slog logger. Records go to stderr and to
// every extra sink.
func initLogger(level, format string, sinks ...io.Writer) error {
	lvl, err := (config.LogConfig{Level: level}).SlogLevel()
	if err != nil {
		return err
	}
	var w io.Writer = os.Stderr
	if len(sinks) > 0 {
		w = io.MultiWriter(append([]io.Writer{os.Stderr}, sinks...)...)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "text", "":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("unknown log format %q: use text or json", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// writeOutputContext persists the response as JSON. An empty path is a
// no-op.
func writeOutputContext(path string, resp *pipeline.Response) error {
	if path == "" || resp == nil {
		return nil
	}
	return resp.WriteJSON(path)
}

// printStatus writes a coloured status line.
func printStatus(w io.Writer, ok bool, format string, args ...any) {
	c := color.New(color.FgGreen)
	mark := "✓"
	if !ok {
		c = color.New(color.FgYellow)
		mark = "!"
	}
	c.Fprintf(w, "%s %s\n", mark, fmt.Sprintf(format, args...))
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		select {
		case <-ch:
			fmt.Fprintln(os.Stderr, "\n[msixmgr] interrupted")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
