// ThreatCanvas - declarative threat modeling processor
//
// The tool supports two deployment modes:
//
//  1. ONE-SHOT MODE (CI/CD):
//     threatcanvas -model threatmodel.yaml -format json,markdown,svg -out reports
//
//  2. SERVE MODE (Continuous):
//     threatcanvas -serve -model threatmodel.yaml -interval 1h -config config.yaml
//
// Serve mode re-processes the model on an interval and exposes health
// probes and Prometheus metrics over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/threatcanvas/sdk/pkg/client"
	"github.com/threatcanvas/sdk/pkg/compress"
	"github.com/threatcanvas/sdk/pkg/connectors"
	"github.com/threatcanvas/sdk/pkg/connectors/github"
	"github.com/threatcanvas/sdk/pkg/connectors/gitlab"
	"github.com/threatcanvas/sdk/pkg/core"
	"github.com/threatcanvas/sdk/pkg/credentials"
	"github.com/threatcanvas/sdk/pkg/health"
	"github.com/threatcanvas/sdk/pkg/history"
	"github.com/threatcanvas/sdk/pkg/loader"
	"github.com/threatcanvas/sdk/pkg/metrics"
	"github.com/threatcanvas/sdk/pkg/render/dot"
	"github.com/threatcanvas/sdk/pkg/render/svg"
	"github.com/threatcanvas/sdk/pkg/report"
	"github.com/threatcanvas/sdk/pkg/retry"
	"github.com/threatcanvas/sdk/pkg/shared/severity"
	"github.com/threatcanvas/sdk/pkg/tm"
	grpctransport "github.com/threatcanvas/sdk/pkg/transport/grpc"
)

const (
	appName    = "threatcanvas"
	appVersion = "1.0.0"
)

// Config represents the tool configuration.
type Config struct {
	// Model is the path to the threat model definition.
	Model string `yaml:"model"`

	// Output settings
	Formats   []string `yaml:"formats"`
	OutputDir string   `yaml:"output_dir"`
	Verbose   bool     `yaml:"verbose"`

	// History database
	History struct {
		Enabled   bool          `yaml:"enabled"`
		Path      string        `yaml:"path"`
		Retention time.Duration `yaml:"retention"`
	} `yaml:"history"`

	// Report archive
	Archive struct {
		Enabled   bool   `yaml:"enabled"`
		Dir       string `yaml:"dir"`
		Algorithm string `yaml:"algorithm"` // "zstd" or "gzip"
	} `yaml:"archive"`

	// Ingest API
	Push struct {
		Enabled  bool          `yaml:"enabled"`
		BaseURL  string        `yaml:"base_url"`
		APIKey   string        `yaml:"api_key"`
		ClientID string        `yaml:"client_id"`
		Timeout  time.Duration `yaml:"timeout"`

		// Transport selects "http" (default) or "grpc". For gRPC,
		// BaseURL is the host:port of the ingest service.
		Transport string `yaml:"transport"`

		// QueueDir enables the on-disk retry queue: reports that cannot
		// be delivered are parked there instead of failing the run.
		QueueDir string `yaml:"queue_dir"`
	} `yaml:"push"`

	// Serve mode
	Serve struct {
		Address  string        `yaml:"address"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"serve"`
}

func main() {
	configPath := flag.String("config", "", "Path to config file")
	modelPath := flag.String("model", "", "Threat model definition: a YAML file, or github://owner/repo/path[@ref]")
	formats := flag.String("format", "", "Comma-separated output formats (json, yaml, markdown, sarif, dot, svg)")
	outputDir := flag.String("out", "", "Output directory for reports and diagrams")
	useHistory := flag.Bool("history", false, "Record findings in the local history database")
	historyPath := flag.String("history-db", "", "History database path (default ~/.threatcanvas/history.db)")
	archive := flag.Bool("archive", false, "Archive a compressed copy of the report")
	archiveDir := flag.String("archive-dir", "archive", "Archive directory")
	push := flag.Bool("push", false, "Push the report to the ingest API")
	apiURL := flag.String("api-url", "", "Ingest API URL (or THREATCANVAS_API_URL env)")
	apiKey := flag.String("api-key", "", "Ingest API key (or THREATCANVAS_API_KEY env)")
	clientID := flag.String("client-id", "", "Client ID for audit trails (or THREATCANVAS_CLIENT_ID env)")
	queueDir := flag.String("queue-dir", "", "Park undeliverable reports in this directory for later retry")
	serve := flag.Bool("serve", false, "Run continuously with health and metrics endpoints")
	addr := flag.String("addr", ":8080", "Listen address for serve mode")
	interval := flag.Duration("interval", time.Hour, "Re-processing interval in serve mode")
	verbose := flag.Bool("verbose", false, "Verbose output")
	validateOnly := flag.Bool("validate", false, "Validate the model and exit")
	showVersion := flag.Bool("version", false, "Show version")

	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	var cfg Config
	if *configPath != "" {
		if err := loadConfig(*configPath, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	// CLI flags override config values.
	if *modelPath != "" {
		cfg.Model = *modelPath
	}
	if *formats != "" {
		cfg.Formats = nil
		for _, f := range strings.Split(*formats, ",") {
			if f = strings.TrimSpace(f); f != "" {
				cfg.Formats = append(cfg.Formats, f)
			}
		}
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *verbose {
		cfg.Verbose = true
	}
	if *useHistory {
		cfg.History.Enabled = true
	}
	if *historyPath != "" {
		cfg.History.Path = *historyPath
	}
	if *archive {
		cfg.Archive.Enabled = true
	}
	if cfg.Archive.Dir == "" {
		cfg.Archive.Dir = *archiveDir
	}
	if *push {
		cfg.Push.Enabled = true
	}
	if cfg.Push.BaseURL == "" {
		cfg.Push.BaseURL = getEnvOrFlag(*apiURL, "THREATCANVAS_API_URL")
	}
	creds := credentialStore()
	if cfg.Push.APIKey == "" {
		cfg.Push.APIKey = resolveCredential(ctx, creds, *apiKey, "api_key")
	}
	if cfg.Push.ClientID == "" {
		cfg.Push.ClientID = getEnvOrFlag(*clientID, "THREATCANVAS_CLIENT_ID")
	}
	if cfg.Push.QueueDir == "" {
		cfg.Push.QueueDir = *queueDir
	}
	if *serve {
		cfg.Serve.Address = *addr
		if cfg.Serve.Interval == 0 {
			cfg.Serve.Interval = *interval
		}
	}

	if cfg.Model == "" {
		fmt.Fprintln(os.Stderr, "Error: no threat model given.")
		fmt.Fprintln(os.Stderr, "Use -model to point at a YAML definition, or set model: in the config file.")
		os.Exit(1)
	}

	var collector metrics.Collector = &metrics.NopCollector{}
	if *serve {
		collector = metrics.NewPrometheusCollector(&metrics.PrometheusConfig{
			Namespace:              "",
			RegisterDefaultMetrics: true,
		})
	}
	ctx = metrics.WithCollector(ctx, collector)

	m, err := loadModel(ctx, cfg.Model, creds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading model: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		if err := m.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Model is invalid:\n%v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Model %q is valid: %d elements, %d flows, %d data assets\n",
			m.Name, len(m.Elements()), len(m.Flows()), len(m.DataAssets()))
		os.Exit(0)
	}

	if *serve {
		runServe(ctx, &cfg, m, collector)
		return
	}

	processor, d, err := buildProcessor(&cfg, collector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer d.Close()

	result, err := processor.Process(ctx, m, processOptions(&cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Processing failed: %v\n", err)
		os.Exit(1)
	}
	printResult(result)

	if result.Report.HighestSeverity().IsAtLeast(severity.High) {
		os.Exit(2)
	}
}

func getEnvOrFlag(flagVal, envName string) string {
	if flagVal != "" {
		return flagVal
	}
	return os.Getenv(envName)
}

// credentialStore builds the secret lookup chain: environment variables
// first, then ~/.threatcanvas/credentials.json when present.
func credentialStore() credentials.Store {
	stores := []credentials.Store{credentials.NewEnvStore("THREATCANVAS_")}
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".threatcanvas", "credentials.json")
		if fs, err := credentials.NewFileStore(path); err == nil {
			stores = append(stores, fs)
		}
	}
	return credentials.NewChain(stores...)
}

// resolveCredential prefers the flag value, then the credential chain.
func resolveCredential(ctx context.Context, creds credentials.Store, flagVal, key string) string {
	if flagVal != "" {
		return flagVal
	}
	value, err := credentials.GetValue(ctx, creds, key)
	if err != nil {
		return ""
	}
	return value
}

// loadModel reads a model definition from a local file or, for
// github:// and gitlab:// references, straight from a repository.
//
//	threatcanvas -model github://owner/repo/threatmodel.yaml@main
func loadModel(ctx context.Context, ref string, creds credentials.Store) (*tm.Model, error) {
	scheme, rest, found := strings.Cut(ref, "://")
	if !found {
		return loader.LoadFile(ref)
	}

	rest, gitRef, _ := strings.Cut(rest, "@")
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid model reference %q, expected %s://owner/repo/path[@ref]", ref, scheme)
	}
	repo := parts[0] + "/" + parts[1]
	path := parts[2]

	var fetcher connectors.DefinitionFetcher
	switch scheme {
	case "github":
		token, _ := credentials.GetValue(ctx, creds, "github.token")
		conn := github.NewConnector(&github.Config{Token: token})
		if token != "" {
			if err := conn.Connect(ctx); err != nil {
				return nil, fmt.Errorf("connect to GitHub: %w", err)
			}
		}
		defer conn.Close()
		fetcher = conn
	case "gitlab":
		token, _ := credentials.GetValue(ctx, creds, "gitlab.token")
		conn, err := gitlab.NewConnector(&gitlab.Config{Token: token})
		if err != nil {
			return nil, fmt.Errorf("build GitLab connector: %w", err)
		}
		if token != "" {
			if err := conn.Connect(ctx); err != nil {
				return nil, fmt.Errorf("connect to GitLab: %w", err)
			}
		}
		defer conn.Close()
		fetcher = conn
	default:
		return nil, fmt.Errorf("unsupported model source %q", scheme)
	}

	data, err := fetcher.FetchDefinition(ctx, repo, path, gitRef)
	if err != nil {
		return nil, err
	}
	return loader.Load(data)
}

func loadConfig(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables in config
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	return nil
}

// deps bundles the long-lived resources behind a processor. Close releases
// them once the processor is done.
type deps struct {
	store *history.Store
	queue *retry.FileQueue

	// pusher is a queue-less client for draining parked reports, so a
	// failed drain attempt cannot re-park the same item.
	pusher *client.Client
}

func (d *deps) Close() {
	if d.store != nil {
		d.store.Close()
	}
	if d.queue != nil {
		d.queue.Close()
	}
}

// buildProcessor wires the processor from config. The caller must Close the
// returned deps.
func buildProcessor(cfg *Config, collector metrics.Collector) (*core.Processor, *deps, error) {
	opts := []core.ProcessorOption{
		core.WithRenderer(dot.New()),
		core.WithRenderer(svg.New()),
		core.WithCollector(collector),
		core.WithTool(report.Tool{Name: appName, Version: appVersion}),
	}

	if cfg.Verbose {
		opts = append(opts, core.WithProcessorLogger(core.NewDefaultLogger("[threatcanvas] ", core.LogLevelDebug)))
	}

	d := &deps{}
	if cfg.History.Enabled {
		storeCfg := history.DefaultConfig()
		if cfg.History.Path != "" {
			storeCfg.DatabasePath = cfg.History.Path
		}
		store, err := history.NewStore(storeCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open history database: %w", err)
		}
		d.store = store
		opts = append(opts, core.WithHistory(store))

		if cfg.History.Retention > 0 {
			if n, err := store.Prune(context.Background(), cfg.History.Retention); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: prune history: %v\n", err)
			} else if n > 0 && cfg.Verbose {
				fmt.Printf("[threatcanvas] Pruned %d history rows older than %v\n", n, cfg.History.Retention)
			}
		}
	}

	if cfg.Archive.Enabled {
		compressor := compress.DefaultZSTD
		if cfg.Archive.Algorithm == "gzip" {
			compressor = compress.DefaultGzip
		}
		opts = append(opts, core.WithArchiver(compress.NewArchiver(cfg.Archive.Dir, compressor)))
	}

	if cfg.Push.Enabled {
		if cfg.Push.BaseURL == "" || cfg.Push.APIKey == "" {
			d.Close()
			return nil, nil, fmt.Errorf("push enabled but no API credentials given (use -api-url and -api-key)")
		}

		if cfg.Push.Transport == "grpc" {
			transport := grpctransport.NewTransport(&grpctransport.Config{
				Address:  cfg.Push.BaseURL,
				APIKey:   cfg.Push.APIKey,
				ClientID: cfg.Push.ClientID,
				UseTLS:   true,
				Timeout:  cfg.Push.Timeout,
				Verbose:  cfg.Verbose,
			})
			opts = append(opts, core.WithPusher(grpctransport.NewPusher(transport)))
		} else {
			clientCfg := &client.Config{
				BaseURL:  cfg.Push.BaseURL,
				APIKey:   cfg.Push.APIKey,
				ClientID: cfg.Push.ClientID,
				Timeout:  cfg.Push.Timeout,
				Verbose:  cfg.Verbose,
			}
			pusher := client.New(clientCfg)

			if cfg.Push.QueueDir != "" {
				queue, err := retry.NewFileQueue(&retry.FileQueueConfig{
					Dir:           cfg.Push.QueueDir,
					Deduplication: true,
					Verbose:       cfg.Verbose,
				})
				if err != nil {
					d.Close()
					return nil, nil, fmt.Errorf("open retry queue: %w", err)
				}
				d.queue = queue
				d.pusher = client.New(clientCfg)
				client.WithRetryQueue(queue)(pusher)
			}

			opts = append(opts, core.WithPusher(pusher))
		}
	}

	return core.NewProcessor(opts...), d, nil
}

func processOptions(cfg *Config) *core.Options {
	return &core.Options{
		Formats:   cfg.Formats,
		OutputDir: cfg.OutputDir,
		Archive:   cfg.Archive.Enabled,
		Push:      cfg.Push.Enabled,
	}
}

func printResult(result *core.Result) {
	r := result.Report

	fmt.Printf("Model:    %s\n", r.Model.Name)
	fmt.Printf("Findings: %d (highest: %s)\n", r.Summary.Total, r.HighestSeverity())
	fmt.Printf("          %d critical, %d high, %d medium, %d low, %d info\n",
		r.Summary.Critical, r.Summary.High, r.Summary.Medium, r.Summary.Low, r.Summary.Info)

	for _, f := range result.Files {
		fmt.Printf("Wrote:    %s\n", f)
	}
	if result.ArchivePath != "" {
		fmt.Printf("Archived: %s\n", result.ArchivePath)
	}
	if result.Diff != nil {
		fmt.Printf("History:  %d new, %d recurring, %d resolved\n",
			len(result.Diff.New), result.Diff.Recurring, len(result.Diff.Resolved))
	}
	if result.PushResult != nil {
		fmt.Printf("Pushed:   %d findings accepted (report %s)\n",
			result.PushResult.FindingsAccepted, result.PushResult.ReportID)
	}
}

// runServe re-processes the model on an interval and exposes health and
// metrics endpoints until the context is canceled.
func runServe(ctx context.Context, cfg *Config, m *tm.Model, collector metrics.Collector) {
	processor, d, err := buildProcessor(cfg, collector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer d.Close()

	healthHandler := health.NewHandler(health.WithVersion(appVersion))
	healthHandler.Register("ping", &health.PingCheck{})
	if d.store != nil {
		healthHandler.Register("history", &health.StoreCheck{Store: d.store})
	}
	if cfg.Archive.Enabled {
		healthHandler.Register("archive_dir", &health.ArchiveDirCheck{
			Path:           cfg.Archive.Dir,
			MinFreePercent: 5,
		})
	}
	if cfg.Push.Enabled {
		healthHandler.Register("ingest", &health.IngestCheck{
			URL:     cfg.Push.BaseURL + "/api/v1/ping",
			Timeout: 5 * time.Second,
		})
	}

	mux := http.NewServeMux()
	healthHandler.RegisterRoutes(mux)
	mux.Handle("/metrics", collector.Handler())

	server := &http.Server{
		Addr:              cfg.Serve.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		fmt.Printf("Serving health and metrics on %s\n", cfg.Serve.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "HTTP server error: %v\n", err)
		}
	}()

	// Drain parked reports in the background.
	if d.queue != nil {
		worker := retry.NewWorker(&retry.WorkerConfig{Verbose: cfg.Verbose}, d.queue, d.pusher)
		worker.Start(ctx)
		defer worker.Stop()
	}

	process := func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()

		result, err := processor.Process(runCtx, m, processOptions(cfg))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Processing failed: %v\n", err)
			return
		}
		printResult(result)
	}

	process()
	healthHandler.SetReady(true)

	ticker := time.NewTicker(cfg.Serve.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
			return
		case <-ticker.C:
			process()
		}
	}
}
