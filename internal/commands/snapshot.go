package commands

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/CliForge/percy/internal/command"
	"github.com/CliForge/percy/pkg/config"
	"github.com/CliForge/percy/pkg/workflow"
	"gopkg.in/yaml.v3"
)

var urlPattern = regexp.MustCompile(`^https?://`)

// Snapshot snapshots a static directory, a snapshots file or a sitemap.
func Snapshot() *command.Spec {
	return &command.Spec{
		Name:        "snapshot",
		Description: "Snapshot a static directory, snapshots file, or sitemap URL",
		Args: []*command.Arg{{
			Name:        "dir|file|sitemap",
			Description: "Static directory, snapshots file, or sitemap url",
			Required:    true,
			Attribute:   snapshotTarget,
		}},
		Flags: []*command.Flag{{
			Name:        "base-url",
			Short:       "b",
			Description: "The base url pages are hosted at when snapshotting",
			Type:        command.FlagString,
		}, {
			Name:        "include",
			Description: "One or more globs/patterns matching snapshots to include",
			Type:        command.FlagPattern,
			Multiple:    true,
		}, {
			Name:        "exclude",
			Description: "One or more globs/patterns matching snapshots to exclude",
			Type:        command.FlagPattern,
			Multiple:    true,
		}, {
			Name:        "clean-urls",
			Description: "Rewrite static index and filepath URLs to be clean",
			Type:        command.FlagBool,
			Config:      "static.clean-urls",
		}, command.PortFlag},
		Examples: []string{
			"$0 ./public",
			"$0 snapshots.yml",
			"$0 https://percy.io/sitemap.xml",
		},
		Percy:  &command.PercyOptions{DelayUploads: true},
		Config: SnapshotConfig(),
		Run:    snapshot,
	}
}

// SnapshotConfig is the config contribution of the snapshot command.
func SnapshotConfig() config.Contribution {
	return config.Contribution{
		Schema: config.Schema{
			"static": {
				Type:        config.TypeObject,
				Description: "Options for snapshotting static directories",
			},
			"static.base-url": {
				Type:    config.TypeString,
				Default: "/",
			},
			"static.clean-urls": {
				Type:    config.TypeBool,
				Default: false,
			},
			"static.include":  {Type: config.TypeAny},
			"static.exclude":  {Type: config.TypeAny},
			"static.rewrites": {Type: config.TypeObject},
			"sitemap": {
				Type:        config.TypeObject,
				Description: "Options for snapshotting sitemaps",
			},
			"sitemap.include": {Type: config.TypeAny},
			"sitemap.exclude": {Type: config.TypeAny},
		},
		Migrations: []config.Migration{{
			Name:  "snapshot",
			From:  "< 2",
			To:    2,
			Apply: migrateStaticSnapshots,
		}},
	}
}

// migrateStaticSnapshots moves the v1 static-snapshots section to static.
func migrateStaticSnapshots(obj config.Object) config.Object {
	config.Move(obj, "static-snapshots.base-url", "static.base-url")
	config.Move(obj, "static-snapshots.snapshot-files", "static.include")
	config.Move(obj, "static-snapshots.ignore-files", "static.exclude")
	obj.Delete("static-snapshots")
	return obj
}

// snapshotTarget classifies the snapshot argument.
func snapshotTarget(value string) (string, error) {
	if urlPattern.MatchString(value) {
		return "sitemap", nil
	}
	info, err := os.Stat(value)
	if err != nil {
		return "", fmt.Errorf("Not found: %s", value)
	}
	if info.IsDir() {
		return "serve", nil
	}
	return "file", nil
}

func snapshot(rc *workflow.RunContext, yield workflow.Yield) error {
	file, serve, sitemap := rc.Arg("file"), rc.Arg("serve"), rc.Arg("sitemap")
	include, exclude := rc.Flag("include"), rc.Flag("exclude")

	baseURL := rc.Flag("base-url")
	if raw, ok := baseURL.(string); ok && (file != "" || serve != "") {
		parsed, err := parseBaseURL(raw, serve != "")
		if err != nil {
			return err
		}
		baseURL = parsed
	}

	if rc.Percy == nil {
		return rc.Exit(0, msgDisabled)
	}

	var options map[string]any
	switch {
	case file != "":
		doc, err := workflow.Await[any](yield, workflow.Info("snapshot:load-file", func(ctx context.Context) (any, error) {
			return loadSnapshotFile(file)
		}))
		if err != nil {
			return err
		}
		snapshots, err := snapshotOptions(doc)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		options = config.Overlay(snapshots, map[string]any{
			"baseUrl": baseURL,
			"include": include,
			"exclude": exclude,
		})
	case serve != "":
		options = config.Overlay(camelKeys(rc.Config.Section("static")), map[string]any{
			"serve":     serve,
			"cleanUrls": rc.Flag("clean-urls"),
			"baseUrl":   baseURL,
			"include":   include,
			"exclude":   exclude,
		})
	default:
		options = config.Overlay(camelKeys(rc.Config.Section("sitemap")), map[string]any{
			"sitemap": sitemap,
			"include": include,
			"exclude": exclude,
		})
	}

	if err := workflow.Do(yield, workflow.StartStep(rc.Percy)); err != nil {
		return err
	}
	if err := workflow.Do(yield, workflow.SnapshotStep(rc.Percy, options)); err != nil {
		return err
	}
	return workflow.Do(yield, workflow.StopStep(rc.Percy, false))
}

// parseBaseURL validates --base-url. Static directories take a path, or a
// URL whose path is used; snapshot files take an absolute URL.
func parseBaseURL(raw string, pathOnly bool) (string, error) {
	target := raw
	if pathOnly && strings.HasPrefix(raw, "/") {
		target = "http://localhost" + raw
	}

	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		if pathOnly {
			return "", errors.New("The '--base-url' flag must start with a forward slash (/) when providing a static directory")
		}
		return "", errors.New("The '--base-url' flag must include a protocol and hostname when providing a list of snapshots")
	}

	if !pathOnly {
		return u.String(), nil
	}
	if u.Path == "" {
		return "/", nil
	}
	return u.Path, nil
}

// loadSnapshotFile reads a YAML or JSON snapshots file.
func loadSnapshotFile(file string) (any, error) {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yml", ".yaml", ".json":
	default:
		return nil, fmt.Errorf("Unsupported filetype: %s", file)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", file, err)
	}
	return doc, nil
}

// snapshotOptions accepts a list of snapshots or an options object, whose
// references are dropped.
func snapshotOptions(doc any) (map[string]any, error) {
	switch v := doc.(type) {
	case []any:
		return map[string]any{"snapshots": v}, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if k != "references" {
				out[k] = val
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of snapshots or an object, got %T", doc)
	}
}

// camelKeys converts the kebab-case keys of a config section to the
// camelCase keys the Percy process expects.
func camelKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[camelCase(k)] = v
	}
	return out
}

func camelCase(s string) string {
	parts := strings.Split(s, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
