package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"campuscal/internal/api"
	"campuscal/internal/calendar"
	"campuscal/internal/config"
	"campuscal/internal/ics"
	appLog "campuscal/internal/log"
	"campuscal/internal/scheduler"
	"campuscal/internal/store"
	"campuscal/internal/web"
)

const usage = `usage: campuscal [-config path] [-ephemeral] <command> [args]

commands:
  serve               run the HTTP API (default)
  list                print upcoming campus events
  week                print the remembered calendar as a week
  link <url>          remember an ICS link
  upload <file>       upload and remember an ICS file
  forget              forget the remembered calendar
  export -o <file> [-ids a,b]
                      export events from the list view as ICS
`

type flagConfig struct {
	configPath string
	listen     string
	ephemeral  bool
}

type app struct {
	cfg     *config.Config
	service *calendar.Service
	stdout  io.Writer
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if lvl, err := appLog.ParseLevel(conf.LogLevel); err == nil {
		appLog.SetLevel(lvl)
	} else {
		appLog.Warn("unknown log level; keeping info", "log_level", conf.LogLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(conf, flags.ephemeral, os.Stdout)
	if err != nil {
		appLog.Error("failed to initialise", err)
		os.Exit(1)
	}

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	if err := a.run(ctx, cmd, args); err != nil {
		fmt.Fprintln(os.Stderr, "campuscal:", err)
		os.Exit(1)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./campuscal.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.ephemeral, "ephemeral", false, "Keep the remembered calendar in memory only")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }

	flag.Parse()

	return cfg
}

func newApp(conf *config.Config, ephemeral bool, stdout io.Writer) (*app, error) {
	loc, err := conf.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "timezone", conf.Timezone)
	}

	var st store.Store
	if ephemeral {
		st = store.NewMemoryStore()
	} else {
		fs, err := store.NewFileStore(conf.StatePath)
		if err != nil {
			return nil, err
		}
		st = fs
	}

	client := api.NewClient(conf.APIBaseURL, conf.RequestTimeout())
	svc := calendar.NewService(client, store.NewSources(st), calendar.Options{
		Location:    loc,
		HorizonDays: conf.HorizonDays,
		Fetcher:     ics.NewFetcher(conf.CacheDir, conf.RequestTimeout()),
	})

	appLog.Info("effective config",
		"listen", conf.Listen,
		"api", api.RedactURL(conf.APIBaseURL),
		"timezone", loc.String(),
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"ephemeral", ephemeral,
	)
	return &app{cfg: conf, service: svc, stdout: stdout}, nil
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "serve":
		return a.serve(ctx)
	case "list":
		return a.list(ctx)
	case "week":
		return a.week(ctx)
	case "link":
		if len(args) != 1 {
			return errors.New("link needs exactly one URL")
		}
		res, err := a.service.LinkURL(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, res.Status)
		return nil
	case "upload":
		if len(args) != 1 {
			return errors.New("upload needs exactly one file")
		}
		return a.upload(ctx, args[0])
	case "forget":
		if err := a.service.Forget(); err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, "Calendar forgotten")
		return nil
	case "export":
		return a.export(ctx, args)
	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

func (a *app) serve(ctx context.Context) error {
	srv := web.NewServer(a.cfg, a.service, nil)
	sched, err := scheduler.New(a.cfg.RefreshCron, a.service.Location(), srv, a.cfg.RequestTimeout()*2)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(ctx) })
	g.Go(func() error { return sched.Run(ctx) })

	err = g.Wait()
	appLog.Info("campuscal exiting")
	return err
}

func (a *app) upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := a.service.Upload(ctx, filepath.Base(path), f)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, res.Status)
	return nil
}

func (a *app) list(ctx context.Context) error {
	view, err := a.service.List(ctx)
	printList(a.stdout, view)
	return err
}

func (a *app) week(ctx context.Context) error {
	view, err := a.service.Week(ctx)
	printWeek(a.stdout, view)
	if errors.Is(err, store.ErrCorruptEvents) {
		return nil
	}
	return err
}

func (a *app) export(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fset.String("o", ics.ExportFileName, "Output file (- for stdout)")
	ids := fset.String("ids", "", "Comma-separated event ids (all when empty)")
	if err := fset.Parse(args); err != nil {
		return err
	}

	view, err := a.service.List(ctx)
	if err != nil {
		return err
	}
	selected := selectEvents(view.Events, *ids)
	if len(selected) == 0 {
		return errors.New("no events selected")
	}

	doc := ics.Export(selected, view.GeneratedAt)
	if *out == "-" {
		_, err := io.WriteString(a.stdout, doc)
		return err
	}
	if err := os.WriteFile(*out, []byte(doc), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Exported %d events to %s\n", len(selected), *out)
	return nil
}

func splitIDs(s string) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids
}
