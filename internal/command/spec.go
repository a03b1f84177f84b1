// Package command declares percy commands and builds them into a cobra
// command tree.
//
// A command is described by a Spec: its arguments, flags, config
// contribution, whether it needs the Percy process, and the workflow body
// that implements it. Specs are checked once, when they are added to a
// Registry, so that a malformed command fails at startup rather than when a
// user happens to run it.
package command

import (
	"github.com/CliForge/percy/pkg/config"
	"github.com/CliForge/percy/pkg/workflow"
)

// FlagType is the value type of a flag.
type FlagType string

// Supported flag types.
const (
	FlagString FlagType = "string"
	FlagBool   FlagType = "bool"
	FlagInt    FlagType = "int"
	// FlagPattern is a glob pattern, checked when the flag is parsed.
	FlagPattern FlagType = "pattern"
)

// Arg is a positional argument.
type Arg struct {
	Name        string
	Description string
	Required    bool

	// Attribute classifies the value and returns the name it is stored
	// under, for arguments that accept several kinds of input, e.g. a
	// directory or a file.
	Attribute func(value string) (string, error)

	// Validate rejects invalid values.
	Validate func(value string) error
}

// Flag is a command flag.
type Flag struct {
	Name        string
	Short       string
	Description string
	Type        FlagType
	Default     any
	Multiple    bool
	Hidden      bool

	// Config is the dotted config path the flag sets, e.g. "upload.files".
	Config string
}

// PercyOptions declares that a command needs the Percy process, and how the
// process should behave for it.
type PercyOptions struct {
	DeferUploads  bool
	DelayUploads  bool
	SkipDiscovery bool
}

// Spec describes a command.
type Spec struct {
	Name        string
	Description string
	Args        []*Arg
	Flags       []*Flag
	Examples    []string

	// Commands are the sub-commands. LazyCommands, when set, is called once
	// at registration and its result appended.
	Commands     []*Spec
	LazyCommands func() []*Spec

	// Config is the schema fragment and migrations the command adds to the
	// combined configuration.
	Config config.Contribution

	// Percy is nil for commands that do not need the Percy process.
	Percy *PercyOptions

	// SkipConfig runs the command with schema defaults only, for commands
	// that read config files themselves.
	SkipConfig bool

	// Run is the workflow body. Commands without one only group
	// sub-commands.
	Run workflow.Func
}

// PortFlag is the --port flag shared by commands talking to a local Percy
// process.
var PortFlag = &Flag{
	Name:        "port",
	Short:       "P",
	Description: "Local CLI server port",
	Type:        FlagInt,
	Default:     config.DefaultPort,
	Config:      "percy.port",
}

// Global flag names. They are added to the root command and may not be
// redeclared by a spec.
const (
	GlobalVerbose = "verbose"
	GlobalQuiet   = "quiet"
	GlobalSilent  = "silent"
	GlobalConfig  = "config"
	GlobalDryRun  = "dry-run"
)

// reserved maps reserved flag names to their shorthand.
var reserved = map[string]string{
	GlobalVerbose: "v",
	GlobalQuiet:   "q",
	GlobalSilent:  "",
	GlobalConfig:  "c",
	GlobalDryRun:  "d",
	"help":        "h",
	"version":     "",
}

func (f *Flag) name() string {
	if f.Short != "" {
		return "-" + f.Short + ", --" + f.Name
	}
	return "--" + f.Name
}
