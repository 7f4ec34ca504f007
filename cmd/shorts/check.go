package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/germanamz/shorts/pkg/engine"
)

const sampleWidth = 100

func runCheck(args []string) error {
	var f commonFlags
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	fs.Usage = usage(fs, "shorts check [flags]", "Report the configuration, probe the provider and request a sample generation.")
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := loadDotEnv(f.envFile); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	env, err := engine.FromEnv()
	if err != nil {
		return err
	}

	out := os.Stdout
	writeConfiguration(out, env)
	writeVariables(out, env.Variables(os.Getenv))

	eng, err := buildEngine(ctx, f, newLogger(os.Stderr, f.verbose), nil)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	conn := eng.CheckConnectivity(ctx)
	writeConnectivity(out, conn)
	writeDescription(out, eng.Describe())
	writeTopics(out)

	if !conn.Connected {
		return fmt.Errorf("%s provider is not reachable", conn.Provider)
	}
	return nil
}

func writeConfiguration(w io.Writer, env engine.EnvConfig) {
	fmt.Fprintln(w, headingStyle.Render("Current configuration"))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Model provider:"), env.Provider)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Model name:"), env.ModelName)

	if orc := env.OpenRouter; orc != nil {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("OpenRouter model:"), orc.Model)
		fmt.Fprintf(w, "%s %d\n", labelStyle.Render("Max tokens:"), orc.MaxTokens)
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Temperature:"), strconv.FormatFloat(orc.Temperature, 'f', -1, 64))
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("API key:"), setMark(orc.APIKey != ""))
	}
	fmt.Fprintln(w)
}

func writeVariables(w io.Writer, vars []engine.Variable) {
	fmt.Fprintln(w, headingStyle.Render("Required environment variables"))

	width := 0
	for _, v := range vars {
		width = max(width, len(v.Name))
	}
	for _, v := range vars {
		fmt.Fprintf(w, "%s %s %s\n", padRight(v.Name+":", width+1), setMark(v.Set), dimStyle.Render(v.Description))
	}
	fmt.Fprintln(w)
}

func setMark(ok bool) string {
	if ok {
		return okStyle.Render(markOK + " Set")
	}
	return failStyle.Render(markFail + " Missing")
}

func writeConnectivity(w io.Writer, c engine.Connectivity) {
	fmt.Fprintln(w, headingStyle.Render("Connectivity"))

	if !c.Connected {
		fmt.Fprintf(w, "%s %s connection failed\n", failStyle.Render(markFail), c.Provider)
		if c.Err != nil {
			fmt.Fprintln(w, errorBlockStyle.Render(c.Err.Error()))
		}
		fmt.Fprintln(w)
		return
	}

	fmt.Fprintf(w, "%s %s connected (%s)\n", okStyle.Render(markOK), c.Provider, fmtDuration(c.Duration))
	fmt.Fprintf(w, "   Model: %s\n", c.Model)
	if c.BaseURL != "" {
		fmt.Fprintf(w, "   Base URL: %s\n", c.BaseURL)
	}

	if c.Err != nil {
		fmt.Fprintf(w, "   %s sample generation failed: %v\n", warnStyle.Render(markFail), c.Err)
	} else {
		fmt.Fprintf(w, "   Test response: %s\n", truncate(c.Sample, sampleWidth))
	}
	fmt.Fprintln(w)
}

func writeDescription(w io.Writer, d engine.Description) {
	fmt.Fprintln(w, headingStyle.Render("Pipeline "+d.Pipeline))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Default model:"), d.Model)
	if d.Fallback {
		fmt.Fprintf(w, "%s %s\n", markInfo, dimStyle.Render("Gemini backs OpenRouter agents as a fallback"))
	}

	for i, a := range d.Agents {
		key := a.OutputKey
		if key == "" {
			key = "None"
		}
		fmt.Fprintf(w, "  %d. %s -> output_key: %s\n", i+1, stageNameStyle.Render(a.Name), key)
		if len(a.Tools) > 0 {
			fmt.Fprintf(w, "     %s\n", dimStyle.Render(fmt.Sprintf("Tools: %v", a.Tools)))
		}
	}

	if len(d.MCPServers) > 0 {
		fmt.Fprintf(w, "%s %v\n", labelStyle.Render("MCP servers:"), d.MCPServers)
	}
	fmt.Fprintln(w)
}

func writeTopics(w io.Writer) {
	fmt.Fprintln(w, headingStyle.Render("Suggested topics"))
	for i, t := range sampleTopics {
		fmt.Fprintf(w, "  %d. %s\n", i+1, t)
	}
}
