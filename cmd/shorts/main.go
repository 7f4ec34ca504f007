// Shorts turns a topic into a YouTube Shorts production package. It runs a
// scriptwriter, a visualizer and a formatter agent in sequence against the
// configured model provider and prints the formatted package.
//
// Usage:
//
//	shorts [run] [flags]   run the pipeline
//	shorts check [flags]   report configuration and probe the provider
//	shorts serve [flags]   serve the pipeline as an MCP tool over stdio
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

const version = "0.1.0"

// commonFlags are shared by every subcommand.
type commonFlags struct {
	configPath string
	promptsDir string
	envFile    string
	verbose    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "path to pipeline file (default: embedded youtube_shorts pipeline)")
	fs.StringVar(&c.promptsDir, "prompts", "", "directory with instruction files overriding the embedded ones")
	fs.StringVar(&c.envFile, "env", ".env", "path to .env file (ignored if missing)")
	fs.BoolVar(&c.verbose, "verbose", false, "log debug output to stderr")
}

func main() {
	cmd, args := "run", os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "run", "check", "serve":
			cmd, args = args[0], args[1:]
		case "version":
			fmt.Println("shorts", version)
			return
		}
	}

	var err error
	switch cmd {
	case "check":
		err = runCheck(args)
	case "serve":
		err = runServe(args)
	default:
		err = runPipeline(args)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage(fs *flag.FlagSet, line, about string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage: %s\n\n%s\n\nFlags:\n", line, about)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n  run      Run the pipeline (default)\n  check    Report configuration and probe the provider\n  serve    Serve the pipeline over MCP stdio\n  version  Print the version\n")
	}
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// newLogger returns a text logger on w at Info, or Debug when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
