package commands

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/CliForge/percy/internal/command"
	"github.com/CliForge/percy/pkg/config"
	"github.com/CliForge/percy/pkg/workflow"
	"github.com/bmatcuk/doublestar/v4"
)

var allowedFileTypes = regexp.MustCompile(`(?i)\.(png|jpg|jpeg)$`)

// DefaultUploadFiles matches every supported image.
const DefaultUploadFiles = "**/*.{png,jpg,jpeg}"

// Image dimensions are clamped to what the Percy API accepts.
const (
	minImageSize = 10
	maxImageSize = 2000
)

// Upload uploads a directory of images as snapshots.
func Upload() *command.Spec {
	return &command.Spec{
		Name:        "upload",
		Description: "Upload a directory of images to Percy",
		Args: []*command.Arg{{
			Name:        "dirname",
			Description: "Directory of images to upload",
			Required:    true,
			Validate:    isDir,
		}},
		Flags: []*command.Flag{{
			Name:        "files",
			Short:       "f",
			Description: "One or more globs matching image file paths to upload",
			Type:        command.FlagPattern,
			Multiple:    true,
			Default:     []string{DefaultUploadFiles},
			Config:      "upload.files",
		}, {
			Name:        "ignore",
			Short:       "i",
			Description: "One or more globs matching image file paths to ignore",
			Type:        command.FlagPattern,
			Multiple:    true,
			Config:      "upload.ignore",
		}, {
			Name:        "strip-extensions",
			Short:       "e",
			Description: "Strips file extensions from snapshot names",
			Type:        command.FlagBool,
			Config:      "upload.strip-extensions",
		}, command.PortFlag},
		Examples: []string{"$0 ./images"},
		Percy: &command.PercyOptions{
			DeferUploads:  true,
			SkipDiscovery: true,
		},
		Config: UploadConfig(),
		Run:    upload,
	}
}

// UploadConfig is the config contribution of the upload command.
func UploadConfig() config.Contribution {
	return config.Contribution{
		Schema: config.Schema{
			"upload": {
				Type:        config.TypeObject,
				Description: "Options for uploading images",
			},
			"upload.files": {
				Type:    config.TypeArray,
				Default: []any{DefaultUploadFiles},
			},
			"upload.ignore": {
				Type: config.TypeArray,
			},
			"upload.strip-extensions": {
				Type:    config.TypeBool,
				Default: false,
			},
			"upload.concurrency": {
				Type: config.TypeInt,
				Min:  config.Ptr(1),
			},
		},
		Migrations: []config.Migration{{
			Name:  "upload",
			From:  "< 2",
			To:    2,
			Apply: migrateImageSnapshots,
		}},
	}
}

// migrateImageSnapshots moves the v1 image-snapshots section to upload.
func migrateImageSnapshots(obj config.Object) config.Object {
	config.Move(obj, "image-snapshots.files", "upload.files")
	config.Move(obj, "image-snapshots.ignore", "upload.ignore")
	obj.Delete("image-snapshots")
	return obj
}

func isDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("Not found: %s", dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("Not a directory: %s", dir)
	}
	return nil
}

func upload(rc *workflow.RunContext, yield workflow.Yield) error {
	if rc.Percy == nil {
		return rc.Exit(0, msgDisabled)
	}
	dir := rc.Arg("dirname")
	files := rc.Config.Strings("upload.files")
	ignore := rc.Config.Strings("upload.ignore")
	strip := rc.Config.Bool("upload.strip-extensions")

	pathnames, err := workflow.Await[[]string](yield, workflow.Info("upload:glob", func(ctx context.Context) (any, error) {
		return matchFiles(dir, files, ignore)
	}))
	if err != nil {
		return err
	}
	if len(pathnames) == 0 {
		return rc.Exit(1, fmt.Sprintf("No matching files found in '%s'", dir))
	}

	if n := rc.Config.Int("upload.concurrency"); n > 0 {
		if err := rc.Percy.SetConcurrency(n); err != nil {
			return err
		}
	}
	if err := workflow.Do(yield, workflow.StartStep(rc.Percy)); err != nil {
		return err
	}

	for _, rel := range pathnames {
		if !allowedFileTypes.MatchString(rel) {
			rc.Log.Info("Skipping unsupported file type: %s", rel)
			continue
		}

		payload, err := workflow.Await[map[string]any](yield, workflow.Info("upload:read-image", func(ctx context.Context) (any, error) {
			return imagePayload(dir, rel, strip)
		}))
		if err != nil {
			return err
		}
		if err := workflow.Do(yield, workflow.UploadStep(rc.Percy, payload)); err != nil {
			return err
		}
	}

	return workflow.Do(yield, workflow.StopStep(rc.Percy, false))
}

// matchFiles returns the files under dir matching any of files and none of
// ignore, as sorted slash-separated relative paths.
func matchFiles(dir string, files, ignore []string) ([]string, error) {
	fsys := os.DirFS(dir)
	seen := make(map[string]bool)
	var out []string

	for _, pattern := range files {
		matches, err := doublestar.Glob(fsys, strings.TrimPrefix(pattern, "./"), doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] || ignored(m, ignore) {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}

	sort.Strings(out)
	return out, nil
}

func ignored(name string, ignore []string) bool {
	for _, pattern := range ignore {
		if ok, _ := doublestar.Match(strings.TrimPrefix(pattern, "./"), name); ok {
			return true
		}
	}
	return false
}

// imagePayload builds the upload job of one image.
func imagePayload(dir, rel string, stripExtension bool) (map[string]any, error) {
	abs, err := filepath.Abs(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", rel, err)
	}

	ext := path.Ext(rel)
	typ := "jpeg"
	if strings.EqualFold(ext, ".png") {
		typ = "png"
	}

	name := rel
	if stripExtension {
		name = strings.TrimSuffix(rel, ext)
	}

	return map[string]any{
		"name":         name,
		"widths":       []int{clamp(img.Width)},
		"minHeight":    clamp(img.Height),
		"type":         typ,
		"relativePath": rel,
		"absolutePath": abs,
	}, nil
}

func clamp(n int) int {
	return max(minImageSize, min(n, maxImageSize))
}
