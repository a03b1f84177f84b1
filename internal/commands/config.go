package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CliForge/percy/internal/command"
	"github.com/CliForge/percy/pkg/config"
	"github.com/CliForge/percy/pkg/workflow"
)

// Config groups the config commands.
func Config() *command.Spec {
	return &command.Spec{
		Name:        "config",
		Description: "Manage Percy config files",
		LazyCommands: func() []*command.Spec {
			return []*command.Spec{ConfigValidate(), ConfigMigrate(), ConfigPrint()}
		},
	}
}

// ConfigValidate validates a config file.
func ConfigValidate() *command.Spec {
	return &command.Spec{
		Name:        "validate",
		Description: "Validate a Percy config file",
		Args: []*command.Arg{{
			Name:        "filepath",
			Description: "Config filepath, detected by default",
		}},
		Examples: []string{
			"$0",
			"$0 ./config/percy.yml",
		},
		SkipConfig: true,
		Run:        configValidate,
	}
}

// ConfigMigrate migrates a config file to the latest version.
func ConfigMigrate() *command.Spec {
	return &command.Spec{
		Name:        "migrate",
		Description: "Migrate a Percy config file to the latest version",
		Args: []*command.Arg{{
			Name:        "filepath",
			Description: "Current config filepath, detected by default",
		}, {
			Name:        "output",
			Description: "New config filepath to write to, defaults to 'filepath'",
		}},
		Examples: []string{
			"$0",
			"$0 --dry-run",
			"$0 ./config/percy.yml",
			"$0 .percy.yml .percy.yaml",
		},
		SkipConfig: true,
		Run:        configMigrate,
	}
}

// ConfigPrint prints the resolved config.
func ConfigPrint() *command.Spec {
	return &command.Spec{
		Name:        "print",
		Description: "Print the resolved Percy config",
		Flags: []*command.Flag{{
			Name:        "format",
			Description: "Output format, yaml or json",
			Type:        command.FlagString,
			Default:     "yaml",
		}},
		Run: configPrint,
	}
}

type loadedConfig struct {
	obj  config.Object
	path string
}

// loadConfigStep loads the config file named by the filepath argument, the
// --config flag, or found by the loader.
func loadConfigStep(rc *workflow.RunContext) *workflow.Step {
	explicit := rc.Arg("filepath")
	if explicit == "" {
		explicit, _ = rc.Flag(command.GlobalConfig).(string)
	}
	return workflow.Info("config:load", func(ctx context.Context) (any, error) {
		obj, path, err := rc.Loader.Load(explicit)
		if err != nil {
			return nil, err
		}
		return &loadedConfig{obj: obj, path: path}, nil
	})
}

func configValidate(rc *workflow.RunContext, yield workflow.Yield) error {
	loaded, err := workflow.Await[*loadedConfig](yield, loadConfigStep(rc))
	if err != nil {
		return err
	}
	if loaded.path == "" {
		return rc.Exit(1, "Config file not found")
	}
	rc.Log.Info("Found config file: %s", loaded.path)

	for _, path := range rc.Schema.Unknown(loaded.obj) {
		rc.Log.Warn("Unknown config option: %s", path)
	}

	if _, err := config.Resolve(rc.Schema, config.Sources{File: loaded.obj}); err != nil {
		return err
	}
	rc.Log.Info("Config file is valid")
	return nil
}

func configMigrate(rc *workflow.RunContext, yield workflow.Yield) error {
	loaded, err := workflow.Await[*loadedConfig](yield, loadConfigStep(rc))
	if err != nil {
		return err
	}
	if loaded.path == "" {
		return rc.Exit(1, "Config file not found")
	}
	rc.Log.Info("Found config file: %s", loaded.path)

	if !loaded.obj.Has("version") || loaded.obj.Int("version") == config.CurrentVersion {
		rc.Log.Info("Config is already the latest version")
		return nil
	}

	migrated, err := rc.Schema.Migrate(loaded.obj)
	if err != nil {
		return err
	}

	output := rc.Arg("output")
	if output == "" {
		output = loaded.path
	}
	text, err := config.Stringify(formatOf(output), migrated)
	if err != nil {
		return err
	}

	if dryRun, _ := rc.Flag(command.GlobalDryRun).(bool); dryRun {
		_, err := fmt.Fprint(rc.Log.Stdout(), text)
		return err
	}

	if output == loaded.path {
		backup := loaded.path + ".old"
		if err := os.Rename(loaded.path, backup); err != nil {
			return fmt.Errorf("failed to back up config file: %w", err)
		}
	}
	if err := os.WriteFile(output, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	rc.Log.Info("Config file migrated!")
	return nil
}

func configPrint(rc *workflow.RunContext, yield workflow.Yield) error {
	format, _ := rc.Flag("format").(string)
	text, err := config.Stringify(format, rc.Config)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(rc.Log.Stdout(), text)
	return err
}

func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "json"
	}
	return "yaml"
}

