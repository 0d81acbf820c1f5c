package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/Will-Banksy/searchlight/pkg/errs"
	"github.com/Will-Banksy/searchlight/pkg/logging"
)

func main() {
	// Kong itself exits on a usage/parse error before ctx.Run() is ever
	// reached; fold that into exit code 1 (invalid config, this) rather
	// than Kong's own default.
	ctx := kong.Parse(&CLI,
		kong.Name("searchlight"),
		kong.Description("searchlight - forensic file carving engine"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Exit(func(code int) {
			if code != 0 {
				os.Exit(1)
			}
			os.Exit(0)
		}),
	)

	level := slog.LevelInfo
	if CLI.Debug {
		level = slog.LevelDebug
	}
	logging.Configure(level, "text", nil)

	err := ctx.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeForError(err))
	}

	os.Exit(lastExitCode)
}

// exitCodeForError maps the error taxonomy in pkg/errs to the exit-code
// contract this names: 1 invalid config, 2 I/O failure, 3 compute
// backend unavailable. Anything uncategorized (e.g. a candidate-validation
// bug surfacing as a bare error) falls back to 1.
func exitCodeForError(err error) int {
	var cfgErr *errs.ConfigError
	var ioErr *errs.IOError
	var computeErr *errs.ComputeError

	switch {
	case errors.As(err, &ioErr):
		return 2
	case errors.As(err, &computeErr):
		return 3
	case errors.As(err, &cfgErr):
		return 1
	default:
		return 1
	}
}
