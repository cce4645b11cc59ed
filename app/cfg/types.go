package cfg

import "time"

type Cfg struct {
	// Storage configuration
	DBPath     string
	StreamsDir string

	// Backend configuration
	BackendURL        string
	UserID            string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	RequestBurst      int

	// Application configuration
	Port               string
	APIAccessKey       string
	WorkerCount        int
	SchedulerInterval  int
	SessionIdleTimeout time.Duration

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
