package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ptolemy-maps/ptolemy/pkg/cache"
	"github.com/ptolemy-maps/ptolemy/pkg/fetch"
	"github.com/ptolemy-maps/ptolemy/pkg/model"
)

type App struct {
	addr        string
	cacheDir    string
	serversFile string
	userAgent   string
	interval    time.Duration
	logger      *slog.Logger
	fetchers    *Fetchers
}

func NewApp(addr string) *App {
	return &App{
		fetchers: NewFetchers(),
		logger:   slog.Default(),
		addr:     addr,
	}
}

func (app *App) loadServers() error {
	registry := model.DefaultRegistry()

	if app.serversFile != "" {
		var err error
		if registry, err = model.LoadRegistry(app.serversFile); err != nil {
			return err
		}
	}

	c := cache.New(app.cacheDir, app.logger)

	app.fetchers.Clear()

	registry.All(func(s *model.Server) bool {
		app.fetchers.Add(fetch.New(s, c, app.logger, fetch.Options{
			UserAgent:       app.userAgent,
			RequestInterval: app.interval,
		}))
		app.logger.Info(fmt.Sprintf("loaded server %s (%s)", s.GetKey(), s.GetName()))

		return true
	})

	return nil
}

func (app *App) Run() {
	if err := os.MkdirAll(app.cacheDir, 0755); err != nil {
		panic(err)
	}

	if err := app.loadServers(); err != nil {
		panic(err)
	}

	http := NewHttp(app)

	app.logger.Info("listening on " + app.addr)

	go func() {
		if err := http.Listen(app.addr); err != nil {
			panic(err)
		}
	}()

	if app.serversFile != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			panic(err)
		}

		defer watcher.Close()

		go app.watch(watcher)

		if err := watcher.Add(filepath.Dir(app.serversFile)); err != nil {
			panic(err)
		}
	}

	app.loop()
}

func (app *App) watch(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Name != app.serversFile || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			app.logger.Info("registry changed, reloading: " + event.Name)

			if err := app.loadServers(); err != nil {
				app.logger.Error("reload error", slog.Any("error", err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			app.logger.Error("watch error", slog.Any("error", err))
		}
	}
}

func (app *App) loop() {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	<-sigc
}

func main() {
	var cacheDir = flag.String("cache", "", "cache path (default: user cache dir)")
	var serversFile = flag.String("servers", "", "yaml server registry")
	var addr = flag.String("addr", ":8888", "listen address")
	var userAgent = flag.String("user-agent", "", "http user agent")
	var interval = flag.Duration("rate", 100*time.Millisecond, "minimum interval between upstream requests")
	var debug = flag.Bool("debug", false, "")

	flag.Parse()

	var h slog.Handler
	if *debug {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}

	slog.SetDefault(slog.New(h))

	app := NewApp(*addr)
	app.cacheDir = *cacheDir
	app.serversFile = *serversFile
	app.userAgent = *userAgent
	app.interval = *interval

	if app.cacheDir == "" {
		root, err := cache.DefaultRoot()
		if err != nil {
			panic(err)
		}

		app.cacheDir = root
	}

	app.Run()
}
