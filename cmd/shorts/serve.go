package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/germanamz/shorts/pkg/prompts"
	"github.com/germanamz/shorts/pkg/tools/mcpserver"
)

// instructionsFile holds the MCP server instructions shown to clients.
const instructionsFile = "youtube_shorts_agent.txt"

func runServe(args []string) error {
	var f commonFlags
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.Usage = usage(fs, "shorts serve [flags]", "Serve the pipeline as the generate_short MCP tool over stdin/stdout.")
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := loadDotEnv(f.envFile); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// stdout carries the protocol; logs go to stderr.
	log := newLogger(os.Stderr, f.verbose)

	eng, err := buildEngine(ctx, f, log, nil)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	instructions, err := prompts.NewLoader(f.promptsDir).Load(instructionsFile)
	if err != nil {
		return err
	}

	srv := mcpserver.New("shorts", version, mcpserver.Options{Instructions: instructions.Content})
	if err := srv.Register(mcpserver.GenerateShortTool(eng)); err != nil {
		return err
	}

	log.Info("serving over stdio", "tool", mcpserver.GenerateShortName, "pipeline", eng.Pipeline().Name())

	return srv.ServeStdio(ctx)
}
