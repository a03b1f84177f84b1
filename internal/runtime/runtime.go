// Package runtime wires a percy invocation together.
//
// For every invocation the runtime:
//
//  1. Parses the PERCY_* environment and the global flags, and sets the log
//     level
//  2. Locates and loads the config file
//  3. Resolves the config: flag defaults, schema defaults, the migrated file,
//     environment and explicit flags, validated against the combined schema
//  4. Creates the Percy process controller for commands that need one
//  5. Runs the command workflow on the workflow engine
//  6. Maps the outcome to an exit code
//
// # Global Flags
//
//	--verbose, -v    Log everything
//	--quiet, -q      Log errors and warnings only
//	--silent         Log nothing
//	--config, -c     Config file path
//	--dry-run, -d    Log jobs instead of submitting them
//
// Errors are logged once, here, with an "Error: " prefix. Early exits
// requested by a workflow are logged by the engine and only mapped to their
// exit code.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/CliForge/percy/internal/command"
	"github.com/CliForge/percy/pkg/config"
	"github.com/CliForge/percy/pkg/logger"
	"github.com/CliForge/percy/pkg/percy"
	"github.com/CliForge/percy/pkg/progress"
	"github.com/CliForge/percy/pkg/workflow"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
)

// Options configures a Runtime.
type Options struct {
	Version string

	Stdout io.Writer
	Stderr io.Writer

	// Environ replaces the process environment when set.
	Environ map[string]string

	// WorkDir is where config files are searched. Defaults to the current
	// directory.
	WorkDir string

	// NewCollaborator creates the Percy process client for a base URL.
	// Defaults to the HTTP client.
	NewCollaborator func(baseURL string) percy.Collaborator

	// StartTimeout bounds the wait for the Percy process to become ready.
	StartTimeout time.Duration
}

// Runtime runs percy invocations against a command registry.
type Runtime struct {
	registry *command.Registry
	opts     Options
}

// NewRegistry creates a command registry holding the core config schema and
// specs.
func NewRegistry(specs ...*command.Spec) (*command.Registry, error) {
	cfg := config.NewRegistry()
	if err := cfg.Add("core", config.Core()); err != nil {
		return nil, err
	}

	registry := command.NewRegistry(cfg)
	for _, s := range specs {
		if err := registry.Register(s); err != nil {
			return nil, fmt.Errorf("failed to register command %s: %w", s.Name, err)
		}
	}
	return registry, nil
}

// New creates a runtime.
func New(registry *command.Registry, opts Options) *Runtime {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.WorkDir == "" {
		if wd, err := os.Getwd(); err == nil {
			opts.WorkDir = wd
		}
	}
	if opts.NewCollaborator == nil {
		opts.NewCollaborator = func(baseURL string) percy.Collaborator {
			return percy.NewClient(baseURL, nil)
		}
	}
	return &Runtime{registry: registry, opts: opts}
}

// Execute runs one invocation and returns its exit code.
func (rt *Runtime) Execute(ctx context.Context, args []string) int {
	log := logger.New(rt.opts.Stdout, rt.opts.Stderr)

	root := rt.rootCommand(log)
	root.SetArgs(args)
	root.SetOut(rt.opts.Stdout)
	root.SetErr(rt.opts.Stderr)

	return report(log, root.ExecuteContext(ctx))
}

func (rt *Runtime) rootCommand(log *logger.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "percy",
		Short:         "Percy CLI",
		Version:       rt.opts.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pf := root.PersistentFlags()
	pf.BoolP(command.GlobalVerbose, "v", false, "Log everything")
	pf.BoolP(command.GlobalQuiet, "q", false, "Log errors and warnings only")
	pf.Bool(command.GlobalSilent, false, "Log nothing")
	pf.StringP(command.GlobalConfig, "c", "", "Config file path")
	pf.BoolP(command.GlobalDryRun, "d", false, "Log jobs instead of submitting them")

	rt.registry.Build(root, func(cmd *cobra.Command, spec *command.Spec, path string, args []string) error {
		return rt.run(cmd, spec, path, args, log)
	})
	return root
}

type globals struct {
	verbose bool
	quiet   bool
	silent  bool
	config  string
	dryRun  bool
}

func readGlobals(cmd *cobra.Command) globals {
	fs := cmd.Flags()
	var g globals
	g.verbose, _ = fs.GetBool(command.GlobalVerbose)
	g.quiet, _ = fs.GetBool(command.GlobalQuiet)
	g.silent, _ = fs.GetBool(command.GlobalSilent)
	g.config, _ = fs.GetString(command.GlobalConfig)
	g.dryRun, _ = fs.GetBool(command.GlobalDryRun)
	return g
}

func (rt *Runtime) run(cmd *cobra.Command, spec *command.Spec, path string, args []string, log *logger.Logger) error {
	g := readGlobals(cmd)

	env, err := config.LoadEnv(rt.opts.Environ)
	if err != nil {
		return err
	}
	if err := configureLogger(log, env, g, rt.opts.Stderr); err != nil {
		return err
	}
	log.Debug("Running %q", path)

	flags, err := command.FlagValues(cmd.Flags(), spec)
	if err != nil {
		return err
	}
	parsed, err := command.ParseArgs(spec, args)
	if err != nil {
		return err
	}

	schema := rt.registry.Config()
	loader := config.NewLoader(rt.opts.WorkDir, env.ConfigPath)
	rc := &workflow.RunContext{
		Command: path,
		Args:    parsed,
		Flags:   flags.Values,
		Env:     env,
		Schema:  schema,
		Loader:  loader,
		Log:     log,
	}
	rc.Flags[command.GlobalConfig] = g.config
	rc.Flags[command.GlobalDryRun] = g.dryRun

	if spec.SkipConfig {
		rc.Config = schema.GetDefaults(config.Merge(flags.Defaults, flags.Config))
	} else {
		rc.Config, rc.ConfigPath, err = resolveConfig(log, schema, loader, g.config, env, flags)
		if err != nil {
			return err
		}
	}

	if spec.Percy != nil && env.Enable {
		metrics := prometheus.NewRegistry()
		defer logMetrics(log.Namespace("metrics"), metrics)

		baseURL := percy.BaseURL(rc.Config.String("percy.host"), rc.Config.Int("percy.port"), env.ServerAddress)
		rc.Client = rt.opts.NewCollaborator(baseURL)
		rc.Percy = percy.NewController(percy.Options{
			Collaborator: rc.Client,
			Logger:       log,
			StartOptions: percy.StartOptions{
				DeferUploads:  spec.Percy.DeferUploads,
				DelayUploads:  spec.Percy.DelayUploads,
				SkipDiscovery: spec.Percy.SkipDiscovery,
				Config:        rc.Config,
			},
			StartTimeout: rt.opts.StartTimeout,
			Concurrency:  rc.Config.Int("discovery.concurrency"),
			DryRun:       g.dryRun,
			Registerer:   metrics,
			Indicator:    progress.NewSpinner(progress.Detect(rt.opts.Stderr, g.quiet || g.silent)),
		})
		log.Debug("Percy process at %s", baseURL)
	}

	return workflow.NewEngine(log).Run(cmd.Context(), rc, spec.Run)
}

func resolveConfig(log *logger.Logger, schema *config.Registry, loader *config.Loader, explicit string, env *config.Env, flags *command.Flags) (config.Object, string, error) {
	file, path, err := loader.Load(explicit)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		log.Namespace("config").Debug("Found config file: %s", path)
	} else {
		log.Namespace("config").Debug("Config file not found")
	}

	for _, p := range schema.Unknown(file) {
		log.Namespace("config").Debug("Unknown config option: %s", p)
	}

	obj, err := config.Resolve(schema, config.Sources{
		Defaults: flags.Defaults,
		File:     file,
		Env:      env.Overrides(),
		Flags:    flags.Config,
	})
	if err != nil {
		return nil, path, err
	}
	return obj, path, nil
}

func configureLogger(log *logger.Logger, env *config.Env, g globals, stderr io.Writer) error {
	log.SetColor(env.NoColor == "" && progress.IsTerminal(stderr))

	if env.LogLevel != "" {
		level, err := logger.ParseLevel(env.LogLevel)
		if err != nil {
			return err
		}
		log.SetLevel(level)
	}

	switch {
	case g.silent:
		log.SetLevel(logger.LevelSilent)
	case g.quiet:
		log.SetLevel(logger.LevelWarn)
	case g.verbose:
		log.SetLevel(logger.LevelDebug)
	}
	return nil
}

// report logs err and returns the exit code of the invocation.
func report(log *logger.Logger, err error) int {
	if err == nil {
		return 0
	}

	var exit *workflow.ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}

	log.Error("Error: %v", err)

	var startup *percy.StartupError
	if errors.As(err, &startup) {
		if guidance := startup.Guidance(); guidance != "" {
			log.Error("%s", guidance)
		}
	}
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		log.Debug("Caused by %T: %v", cause, cause)
	}
	return workflow.ExitCode(err)
}

// logMetrics writes the controller counters at debug level.
func logMetrics(log *logger.Logger, g prometheus.Gatherer) {
	if !log.Enabled(logger.LevelDebug) {
		return
	}
	families, err := g.Gather()
	if err != nil {
		log.Debug("Failed to gather metrics: %v", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			log.Debug("%s%s %v", mf.GetName(), labels(m.GetLabel()), m.GetCounter().GetValue())
		}
	}
}

func labels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", p.GetName(), p.GetValue()))
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}
