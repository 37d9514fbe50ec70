// DeskPilot - desk-side action automation engine
//
// This is the main entry point for DeskPilot. It plays JSON action scripts
// that download files, run scripted functions, launch apps and replay
// recorded browser sessions, triggered over HTTP, MQTT buttons or the
// command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/deskpilot/migrations"

	"github.com/nerrad567/deskpilot/internal/api"
	"github.com/nerrad567/deskpilot/internal/automation"
	"github.com/nerrad567/deskpilot/internal/browser"
	"github.com/nerrad567/deskpilot/internal/functions"
	"github.com/nerrad567/deskpilot/internal/infrastructure/config"
	"github.com/nerrad567/deskpilot/internal/infrastructure/database"
	"github.com/nerrad567/deskpilot/internal/infrastructure/influxdb"
	"github.com/nerrad567/deskpilot/internal/infrastructure/logging"
	"github.com/nerrad567/deskpilot/internal/infrastructure/mqtt"
	"github.com/nerrad567/deskpilot/internal/names"
	"github.com/nerrad567/deskpilot/internal/notify"
	"github.com/nerrad567/deskpilot/internal/resultcache"
	"github.com/nerrad567/deskpilot/internal/scripts"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/deskpilot.yaml"

// queriesDir is the subdirectory of the data dir receiving .iqy files.
const queriesDir = "queries"

// options are the parsed command line flags.
type options struct {
	configPath  string
	showVersion bool
	migrateDown bool
	play        string
	playSteps   string
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("deskpilot %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses the command line.
//
// The config path defaults to DESKPILOT_CONFIG, then configs/deskpilot.yaml.
func parseFlags(args []string) (options, error) {
	var opts options

	fs := pflag.NewFlagSet("deskpilot", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", getConfigPath(), "path to the configuration file")
	fs.BoolVarP(&opts.showVersion, "version", "v", false, "print version information and exit")
	fs.BoolVar(&opts.migrateDown, "migrate-down", false, "roll back the most recent database migration and exit")
	fs.StringVar(&opts.play, "play", "", "play the named action script once and exit")
	fs.StringVar(&opts.playSteps, "play-steps", "", "play the named browser step script once and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.play != "" && opts.playSteps != "" {
		return options{}, fmt.Errorf("--play and --play-steps are mutually exclusive")
	}
	return opts, nil
}

// getConfigPath prefers DESKPILOT_CONFIG over the default path.
func getConfigPath() string {
	if path := os.Getenv("DESKPILOT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// run wires every component, then either plays one script (--play,
// --play-steps) or serves until ctx is cancelled. Components close in
// reverse order through the deferred chain.
func run(ctx context.Context, opts options) error { //nolint:gocognit,gocyclo // linear startup sequence
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logger from config settings
	log, logCloser, err := logging.Open(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("opening log output: %w", err)
	}
	defer logCloser.Close()

	log.Info("starting DeskPilot",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", opts.configPath,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if opts.migrateDown {
		if downErr := db.MigrateDown(ctx); downErr != nil {
			return fmt.Errorf("rolling back migration: %w", downErr)
		}
		log.Info("most recent migration rolled back")
		return nil
	}

	pending, err := db.Pending(ctx)
	if err != nil {
		return fmt.Errorf("checking migrations: %w", err)
	}
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete", "applied", len(pending))

	// Global name table: config constants are persisted, then the table
	// and the secrets file are loaded.
	resolver, err := loadNames(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	log.Info("name table loaded", "names", resolver.Len())

	// Result cache with spreadsheet query files
	cache := resultcache.New(resultcache.IQYWriter{
		Dir:     filepath.Join(cfg.Engine.DataDir, queriesDir),
		BaseURL: cfg.GetPublicURL(),
	})
	cache.SetLogger(log.Component("cache"))

	// Scripts and apps
	store := scripts.NewStore(cfg.Engine.ScriptDirs...)
	apps := scripts.NewApps(cfg.Engine.AppsFile)

	// Browser pool and step player
	launcher := browser.NewPlaywrightLauncher(browser.PlaywrightConfig{
		InstallDriver:     cfg.Browser.InstallDriver,
		ConnectTimeout:    config.Seconds(cfg.Browser.ConnectTimeout),
		NavigationTimeout: config.Seconds(cfg.Browser.NavigationTimeout),
		SelectorTimeout:   config.Seconds(cfg.Browser.SelectorTimeout),
	})
	launcher.SetLogger(log.Component("browser"))

	pool := browser.NewPool(launcher, browser.PoolConfig{
		StartPort: cfg.Browser.StartPort,
		MaxPort:   cfg.Browser.MaxPort,
		Reuse:     cfg.Browser.ReuseInstances,
	})
	pool.SetLogger(log.Component("pool"))
	defer func() {
		log.Info("closing browsers")
		pool.Close()
	}()

	player := browser.NewPlayer(pool, resolver, store, browser.LaunchKey{
		Executable:  cfg.Browser.Executable,
		UserDataDir: cfg.Browser.UserDataDir,
		Headless:    cfg.Browser.Headless,
		Devtools:    cfg.Browser.Devtools,
	})
	player.SetLogger(log.Component("player"))

	// Function runtime
	runtime := functions.New(functions.Config{
		Interpreter: cfg.Functions.Interpreter,
		Dir:         cfg.Functions.Dir,
		Timeout:     config.Seconds(cfg.Functions.Timeout),
	})
	runtime.SetLogger(log.Component("functions"))

	// WebSocket hub shared by the notifier and the API server
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	var publisher notify.Publisher
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		publisher = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	notifier := notify.New(hub, publisher, notify.Topics{
		Notification: mqtt.Topics{}.Notification(),
		Cache:        mqtt.Topics{}.Cache(),
	})
	notifier.SetLogger(log.Component("notify"))

	// Run summaries go to InfluxDB when enabled.
	var recorder automation.RunRecorder
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		recorder = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	engine := automation.NewEngine(automation.Config{
		DataDir:     cfg.Engine.DataDir,
		HTTPTimeout: config.Seconds(cfg.Engine.HTTPTimeout),
		MaxDepth:    cfg.Engine.MaxDepth,
		Templates:   engineTemplates(cfg.Engine.Templates),
	}, automation.Deps{
		Store:     store,
		Resolver:  resolver,
		Cache:     cache,
		Player:    player,
		Functions: runtime,
		Apps:      apps,
		Notifier:  notifier,
		Recorder:  recorder,
		HTTP:      &http.Client{},
	})
	engine.SetLogger(log.Component("engine"))

	// One-shot mode: play a single script and exit with its outcome.
	if opts.play != "" || opts.playSteps != "" {
		return playOnce(ctx, engine, opts, os.Stdout)
	}

	if mqttClient != nil {
		if subErr := mqttClient.SubscribeTriggers(func(kind, name string) {
			engine.Trigger(ctx, automation.TriggerKind(kind), name)
		}); subErr != nil {
			return fmt.Errorf("subscribing to MQTT triggers: %w", subErr)
		}
		log.Info("MQTT triggers subscribed", "topic", mqtt.Topics{}.AllTriggers())
	}

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log.Component("api"),
		Runner:      engine,
		Cache:       cache,
		Browsers:    pool,
		Scripts:     store,
		MQTT:        mqttClient,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("deskpilot ready", "version", version, "api", cfg.API.Port)
	<-ctx.Done()
	log.Info("shutting down")

	// Deferred Close() calls run in reverse order: API server, InfluxDB,
	// MQTT, browsers, database, log output.
	log.Info("DeskPilot stopped")
	return nil
}

// loadNames builds the global name table from the database and the secrets
// file. Config constants are written to the database first so they survive
// being removed from the config file. A missing secrets file is not an error.
func loadNames(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (*names.Resolver, error) {
	for key, value := range cfg.Secrets.Constants {
		if err := db.UpsertNameValue(ctx, key, value); err != nil {
			return nil, fmt.Errorf("storing name %q: %w", key, err)
		}
	}

	resolver := names.NewResolver()
	if _, err := resolver.LoadSQLite(ctx, db.DB); err != nil {
		return nil, fmt.Errorf("loading name table: %w", err)
	}
	if cfg.Secrets.DotenvPath != "" {
		n, err := resolver.LoadDotenv(cfg.Secrets.DotenvPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Warn("secrets file not found", "path", cfg.Secrets.DotenvPath)
		case err != nil:
			return nil, fmt.Errorf("loading secrets: %w", err)
		default:
			log.Debug("secrets loaded", "path", cfg.Secrets.DotenvPath, "names", n)
		}
	}
	return resolver, nil
}

// engineTemplates converts the configured host templates.
func engineTemplates(in map[string]config.HostTemplateConfig) map[string]automation.HostTemplate {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]automation.HostTemplate, len(in))
	for host, t := range in {
		var ht automation.HostTemplate
		if t.URL != nil {
			ht.URL = &automation.Template{Format: t.URL.Format, Refs: t.URL.Refs}
		}
		if len(t.Headers) > 0 {
			ht.Headers = make(map[string]automation.Template, len(t.Headers))
			for name, h := range t.Headers {
				ht.Headers[name] = automation.Template{Format: h.Format, Refs: h.Refs}
			}
		}
		out[host] = ht
	}
	return out
}

// playOnce plays the script named by --play or --play-steps and reports
// the outcome on w. A failed run is returned as an error.
func playOnce(ctx context.Context, engine *automation.Engine, opts options, w io.Writer) error {
	kind, name := automation.TriggerActions, opts.play
	if opts.playSteps != "" {
		kind, name = automation.TriggerSteps, opts.playSteps
	}

	res := engine.Trigger(ctx, kind, name)
	if !res.OK {
		return fmt.Errorf("%s %s: %s", kind, name, res.Message)
	}
	fmt.Fprintf(w, "%s %s: ok\n", kind, name)
	return nil
}

// healthCheck pings each backing service. mqttClient and influxClient are
// nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
