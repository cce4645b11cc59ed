package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath     string `long:"db-path" env:"DB_PATH" default:"./data/clubfeed.db" description:"Path to the SQLite database file"`
	StreamsDir string `long:"streams-dir" env:"STREAMS_DIR" default:"./streams" description:"Directory containing stream definition files"`

	// Backend configuration
	BackendURL        string        `long:"backend-url" env:"BACKEND_URL" description:"Base URL of the club backend API" required:"true"`
	UserID            string        `long:"user-id" env:"USER_ID" description:"Viewer id sent with backend requests" required:"true"`
	RequestTimeout    time.Duration `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"30s" description:"Per request timeout for backend calls"`
	RequestsPerSecond float64       `long:"requests-per-second" env:"REQUESTS_PER_SECOND" default:"10" description:"Backend request rate limit (0 disables)"`
	RequestBurst      int           `long:"request-burst" env:"REQUEST_BURST" default:"5" description:"Backend request burst size"`

	// Application configuration
	Port               string        `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey       string        `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	WorkerCount        int           `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers"`
	SchedulerInterval  int           `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"30" description:"Scheduler interval in seconds"`
	SessionIdleTimeout time.Duration `long:"session-idle-timeout" env:"SESSION_IDLE_TIMEOUT" default:"15m" description:"Close stream sessions idle for longer than this"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"ClubFeed/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs parses the given arguments instead of os.Args. A nil slice means
// the process arguments. Variables from a .env file in the working directory
// are applied first and never override the real environment.
func LoadArgs(args []string) (*Cfg, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:             raw.DBPath,
		StreamsDir:         raw.StreamsDir,
		BackendURL:         raw.BackendURL,
		UserID:             raw.UserID,
		RequestTimeout:     raw.RequestTimeout,
		RequestsPerSecond:  raw.RequestsPerSecond,
		RequestBurst:       raw.RequestBurst,
		Port:               raw.Port,
		APIAccessKey:       raw.APIAccessKey,
		WorkerCount:        raw.WorkerCount,
		SchedulerInterval:  raw.SchedulerInterval,
		SessionIdleTimeout: raw.SessionIdleTimeout,
		UserAgent:          raw.UserAgent,
		Timezone:           raw.Timezone,
		Debug:              raw.Debug,
		Version:            GetVersion(),
	}

	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("worker count must be positive, got %d", cfg.WorkerCount)
	}
	if cfg.SchedulerInterval < 1 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %d", cfg.SchedulerInterval)
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
