package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/kaa08/KTB-Hackathon-11/internal/config"
	"github.com/kaa08/KTB-Hackathon-11/internal/repository"
	"github.com/kaa08/KTB-Hackathon-11/internal/services"
	"github.com/kaa08/KTB-Hackathon-11/internal/sse"
)

// The CLI keeps one client scope in the state directory.
const cliScope = "cli"

type command struct {
	usage string
	run   func(ctx context.Context, app *app, args []string) error
}

var commands = map[string]command{
	"analyze": {"analyze <url>            start an analysis and wait for the recipe", runAnalyze},
	"restore": {"restore                  show the last analysed recipe", runRestore},
	"status":  {"status <job-id>          poll a job's status once", runStatus},
	"preview": {"preview <url>            show video metadata for a link", runPreview},
	"export":  {"export [-format f] [-o p] download the recipe as markdown or pdf", runExport},
	"save":    {"save                     save the last recipe to your account", runSave},
	"recipes": {"recipes                  list saved recipes", runRecipes},
	"chat":    {"chat                     cook along with the assistant", runChat},
	"login":   {"login -email e -password p", runLogin},
	"signup":  {"signup -email e -password p -confirm p -agree [-nickname n]", runSignup},
	"logout":  {"logout", runLogout},
	"me":      {"me                       show the logged in user", runMe},
}

var commandOrder = []string{"analyze", "restore", "status", "preview", "export", "save", "recipes", "chat", "login", "signup", "logout", "me"}

// app wires the shared core for one CLI invocation.
type app struct {
	cfg      *config.Config
	out      io.Writer
	backend  *services.BackendClient
	repo     *repository.StateRepo
	auth     *services.AuthService
	analyzer *services.Analyzer
	export   *services.ExportService
}

func newApp(ctx context.Context, cfg *config.Config, out io.Writer) (*app, error) {
	store, err := repository.NewFileStore(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	repo := repository.NewStateRepo(store, cliScope, cfg.SessionCacheTTL)

	backend := services.NewBackendClient(cfg.MustAPIBase(), cfg.HTTPTimeout)
	auth := services.NewAuthService(backend, repo)
	backend.SetIdentity(auth)
	if err := auth.Load(ctx); err != nil {
		return nil, fmt.Errorf("load login: %w", err)
	}

	notify := services.NotifierFunc(func(msg string) { fmt.Fprintf(os.Stderr, "! %s\n", msg) })
	channel := sse.NewClient(cfg.APIBaseURL, backend.DecorateHeaders)

	return &app{
		cfg:      cfg,
		out:      out,
		backend:  backend,
		repo:     repo,
		auth:     auth,
		analyzer: services.NewAnalyzer(backend, channel, repo, notify),
		export:   services.NewExportService(backend),
	}, nil
}

func (a *app) Close() {
	a.analyzer.Close()
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: recipectl <command> [args]")
	fmt.Fprintln(os.Stderr, "")
	for _, name := range commandOrder {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("recipectl: ")

	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	// Library logging is noise on a terminal unless asked for.
	if os.Getenv("RECIPECTL_DEBUG") == "" {
		log.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, config.Load(), os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := cmd.run(ctx, a, flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", describe(err))
		os.Exit(1)
	}
}

// describe turns service errors into one line for the terminal.
func describe(err error) string {
	var validation *services.ValidationError
	if errors.As(err, &validation) {
		fields := make([]string, 0, len(validation.Fields))
		for field := range validation.Fields {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		msg := "invalid input:"
		for _, field := range fields {
			msg += fmt.Sprintf(" %s: %s;", field, validation.Fields[field])
		}
		return msg
	}
	switch {
	case errors.Is(err, services.ErrNoResult):
		return "no analysed recipe yet, run `recipectl analyze <url>` first"
	case errors.Is(err, services.ErrNoVideoID):
		return "could not find a video id in that link"
	}
	return err.Error()
}
