// Package config loads notedeck settings from a YAML file, NOTEDECK_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"time"

	"github.com/spf13/pflag"
)

// AppName names the XDG directories and the environment prefix.
const AppName = "notedeck"

// Config is the resolved application configuration.
type Config struct {
	APIURL        string        `koanf:"api-url"        validate:"required,http_url"`
	DB            string        `koanf:"db"             validate:"required"`
	Listen        string        `koanf:"listen"         validate:"required,hostname_port"`
	Timeout       time.Duration `koanf:"timeout"        validate:"gt=0"`
	Shuffle       bool          `koanf:"shuffle"`
	AnswerMode    string        `koanf:"answer-mode"    validate:"oneof=lock reveal"`
	WatchInterval time.Duration `koanf:"watch-interval" validate:"gt=0"`
	Prefetch      int           `koanf:"prefetch"       validate:"gte=0,lte=32"`
	LogLevel      string        `koanf:"log-level"      validate:"oneof=debug info warn error"`
	LogFormat     string        `koanf:"log-format"     validate:"oneof=text json"`
}

// Defaults.
const (
	DefaultAPIURL        = "http://127.0.0.1:8000"
	DefaultListen        = "127.0.0.1:8090"
	DefaultTimeout       = 10 * time.Second
	DefaultWatchInterval = 2 * time.Second
	DefaultPrefetch      = 4
)

// RegisterFlags adds every configuration key to fs. Flag defaults are the
// lowest-priority layer.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to the YAML config file (default "+DefaultConfigPath()+")")
	fs.String("api-url", DefaultAPIURL, "base URL of the notes API")
	fs.String("db", DefaultDBPath(), "path to the local state database")
	fs.String("listen", DefaultListen, "address for the web server")
	fs.Duration("timeout", DefaultTimeout, "timeout for notes API requests")
	fs.Bool("shuffle", true, "shuffle practice questions and options")
	fs.String("answer-mode", "lock", "answer policy: lock (on select) or reveal (lock on reveal)")
	fs.Duration("watch-interval", DefaultWatchInterval, "how often to check for changes made by other processes")
	fs.Int("prefetch", DefaultPrefetch, "concurrent note content prefetches, 0 disables")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-format", "text", "log format: text or json")
}
