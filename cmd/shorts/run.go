package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/germanamz/shorts/pkg/engine"
	"github.com/germanamz/shorts/pkg/pipeline"
	"github.com/germanamz/shorts/pkg/prompts"
)

// sampleTopics seed the topic prompt and the check report.
var sampleTopics = []string{
	"Latest developments in AI coding assistants",
	"New React 19 features developers need to know",
	"Why developers are switching to Rust",
	"The most viral programming memes this week",
	"The future of open source AI models",
}

type runFlags struct {
	commonFlags
	topic  string
	output string
	plain  bool
}

func runPipeline(args []string) error {
	var f runFlags
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.Usage = usage(fs, "shorts [run] [flags]", "Write a YouTube Shorts production package for a topic.")
	f.register(fs)
	fs.StringVar(&f.topic, "topic", "", "topic of the short (asked for interactively when empty)")
	fs.StringVar(&f.output, "output", "", "also write the final package to this file")
	fs.BoolVar(&f.plain, "plain", false, "disable the progress view and markdown rendering")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if f.topic == "" && fs.NArg() > 0 {
		f.topic = strings.Join(fs.Args(), " ")
	}

	if err := loadDotEnv(f.envFile); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	interactive := !f.plain && !f.verbose && isTerminal(os.Stdin) && isTerminal(os.Stdout)
	dark := interactive && hasDarkBackground()

	topic := strings.TrimSpace(f.topic)
	if topic == "" {
		if !isTerminal(os.Stdin) {
			return errors.New("a topic is required, pass -topic")
		}
		var err error
		if topic, err = askTopic(ctx); err != nil {
			return err
		}
	}

	// The progress view owns the terminal; keep the log quiet under it.
	logOut := io.Writer(os.Stderr)
	if interactive {
		logOut = io.Discard
	}
	log := newLogger(logOut, f.verbose)

	bus := pipeline.NewEventBus()
	eng, err := buildEngine(ctx, f.commonFlags, log, bus)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	var res pipeline.Result
	if interactive {
		res, err = runInteractive(ctx, eng, bus, topic)
	} else {
		res, err = runPlain(ctx, eng, bus, topic, os.Stderr)
	}
	if err != nil {
		return err
	}

	if f.output != "" {
		if err := os.WriteFile(f.output, []byte(res.Final+"\n"), 0o644); err != nil { //nolint:gosec // output is meant to be readable
			return fmt.Errorf("write output: %w", err)
		}
	}

	if interactive {
		fmt.Println(renderMarkdown(res.Final, termWidth(os.Stdout), dark))
	} else {
		fmt.Println(res.Final)
	}

	writeSummary(os.Stderr, res, eng.Usage())

	return nil
}

// writeSummary reports the run id, duration and token spend.
func writeSummary(w io.Writer, res pipeline.Result, spend []engine.BackendUsage) {
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("run %s finished in %s", res.RunID, fmtDuration(res.Duration))))
	for _, u := range spend {
		if u.Calls == 0 {
			continue
		}
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%s: %d calls, %s tokens", u.Backend, u.Calls, u.Tokens)))
	}
}

// buildEngine loads the environment, the pipeline file and the prompts and
// assembles the engine.
func buildEngine(ctx context.Context, f commonFlags, log *slog.Logger, bus *pipeline.EventBus) (*engine.Engine, error) {
	env, err := engine.FromEnv()
	if err != nil {
		return nil, err
	}

	cfg, err := engine.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}

	return engine.New(ctx, engine.Options{
		Env:     env,
		Config:  cfg,
		Prompts: prompts.NewLoader(f.promptsDir),
		Events:  bus,
		Logger:  log,
	})
}

func askTopic(ctx context.Context) (string, error) {
	var topic string

	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("What should the short be about?").
			Placeholder(sampleTopics[0]).
			Value(&topic).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("topic is required")
				}
				return nil
			}),
	))

	if err := form.RunWithContext(ctx); err != nil {
		return "", err
	}

	return strings.TrimSpace(topic), nil
}

func stageNames(eng *engine.Engine) []string {
	stages := eng.Pipeline().Stages()
	names := make([]string, len(stages))
	for i, a := range stages {
		names[i] = a.Name()
	}
	return names
}

// runInteractive runs the pipeline under the progress view.
func runInteractive(ctx context.Context, eng *engine.Engine, bus *pipeline.EventBus, topic string) (pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := bus.Subscribe(64)
	defer bus.Unsubscribe(sub)

	p := tea.NewProgram(newProgressModel(topic, stageNames(eng), cancel))

	go func() {
		for e := range sub.C {
			p.Send(eventMsg(e))
		}
	}()
	go func() {
		res, err := eng.Run(ctx, topic)
		p.Send(runDoneMsg{result: res, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return pipeline.Result{}, err
	}

	m, ok := final.(progressModel)
	if !ok || !m.done {
		return pipeline.Result{}, context.Canceled
	}

	return m.result, m.err
}

// runPlain runs the pipeline and reports stages as lines on w.
func runPlain(ctx context.Context, eng *engine.Engine, bus *pipeline.EventBus, topic string, w io.Writer) (pipeline.Result, error) {
	sub := bus.Subscribe(64)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range sub.C {
			writeEvent(w, e, len(eng.Pipeline().Stages()))
		}
	}()

	res, err := eng.Run(ctx, topic)

	bus.Unsubscribe(sub)
	<-done

	return res, err
}

func writeEvent(w io.Writer, e pipeline.Event, total int) {
	switch e.Kind {
	case pipeline.EventStageStart:
		fmt.Fprintf(w, "[%d/%d] %s...\n", e.Stage+1, total, e.Agent)
	case pipeline.EventStageEnd:
		note := ""
		if e.Output != nil {
			note = " (" + fmtDuration(e.Output.Duration)
			if e.Output.Fallback {
				note += ", fallback"
			}
			note += ")"
		}
		fmt.Fprintf(w, "[%d/%d] %s %s%s\n", e.Stage+1, total, markOK, e.Agent, note)
	case pipeline.EventStageError:
		fmt.Fprintf(w, "[%d/%d] %s %s: %v\n", e.Stage+1, total, markFail, e.Agent, e.Err)
	}
}
