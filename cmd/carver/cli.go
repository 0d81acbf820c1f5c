package main

import (
	"fmt"
	"time"

	"github.com/alecthomas/kong"
)

// CLI is searchlight's top-level command tree.
var CLI struct {
	Debug      bool          `help:"Enable debug mode." short:"d" env:"SEARCHLIGHT_DEBUG"`
	Version    VersionCmd    `cmd:"" help:"Print version information."`
	Help       HelpCmd       `cmd:"" hidden:"" default:"1"`
	List       ListCmd       `cmd:"" help:"List registered validators and file types."`
	Carve      CarveCmd      `cmd:"" help:"Carve files out of a raw image or device."`
	Completion CompletionCmd `cmd:"" help:"Generate shell completion scripts."`
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (v *VersionCmd) Run() error {
	printVersion()
	return nil
}

// HelpCmd prints help.
type HelpCmd struct{}

func (h *HelpCmd) Run(ctx *kong.Context) error {
	// Print top-level help (application help), not help for the implicit Help command.
	//
	// Note: Kong's Model.Help is the *description* (set via kong.Description),
	// not the rendered help text. Use PrintUsage to render full help.
	appCtx := *ctx
	if len(appCtx.Path) > 1 {
		appCtx.Path = appCtx.Path[:1]
	}
	return appCtx.PrintUsage(false)
}

// ListCmd lists registered validators and file types.
type ListCmd struct {
	ConfigFile string `help:"YAML config file path." type:"existingfile" name:"config-file"`
}

func (l *ListCmd) Run() error {
	wires, err := fileTypeWiresFromConfig(l.ConfigFile)
	if err != nil {
		return err
	}
	return listCapabilities(wires)
}

// CarveCmd carves files out of a raw image according to the registered
// file types.
type CarveCmd struct {
	Image string `arg:"" help:"Path to the raw disk image or file to carve." type:"existingfile"`

	ConfigFile string `help:"YAML config file path." type:"existingfile" name:"config-file"`
	Profile    string `help:"Named profile to apply from the config file." name:"profile"`

	Output string `help:"Output directory for carved files." short:"o" name:"output" default:"./carved"`
	Format string `help:"Summary output format." enum:"table,json,jsonl" default:"table" short:"f"`

	Types string `help:"Comma-separated file-type name glob patterns to restrict carving to (e.g. 'png,jpeg' or '*')." name:"types"`

	BlockSize             int64  `help:"Bytes read per streaming block." name:"block-size"`
	ClusterSize           int64  `help:"Filesystem cluster size, used for bi-fragment reconstruction." name:"cluster-size"`
	IOStrategy            string `help:"Streaming reader backend (buffered, mmap, direct, async-queue)." name:"io-strategy"`
	UseGPU                bool   `help:"Use the GPU PFAC match engine instead of CPU Aho-Corasick." name:"use-gpu"`
	MaxMatchesPerDispatch int    `help:"GPU dispatch match-buffer capacity." name:"max-matches-per-dispatch"`

	Concurrency  int           `help:"Max concurrent candidate validations." env:"SEARCHLIGHT_CONCURRENCY"`
	Timeout      time.Duration `help:"Overall carve timeout."`
	RetryCount   int           `help:"Retries per candidate validation error." name:"retry-count"`
	Verbose      bool          `help:"Verbose output." short:"v"`
}

func (c *CarveCmd) Run() error {
	return c.execute()
}

// printVersion prints the version string.
func printVersion() {
	fmt.Printf("searchlight %s\n", version)
}

// CompletionCmd generates shell completion scripts.
type CompletionCmd struct {
	Shell string `arg:"" enum:"bash,zsh,fish" help:"Shell type (bash, zsh, fish)."`
}

func (c *CompletionCmd) Run() error {
	switch c.Shell {
	case "bash":
		fmt.Println("# Bash completion for searchlight")
		fmt.Println("# Add to ~/.bashrc:")
		fmt.Println("# eval \"$(searchlight completion bash)\"")
	case "zsh":
		fmt.Println("# Zsh completion for searchlight")
		fmt.Println("# Add to ~/.zshrc:")
		fmt.Println("# eval \"$(searchlight completion zsh)\"")
	case "fish":
		fmt.Println("# Fish completion for searchlight")
		fmt.Println("# Run: searchlight completion fish | source")
	}
	return nil
}
