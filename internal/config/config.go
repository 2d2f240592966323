// Package config loads the hub's process configuration from flags and
// environment variables (no config file is read), the way the rest of
// this stack wires spf13/viper: flags register defaults,
// environment variables override them, and the result is one plain
// struct the rest of the program depends on.
package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the hub's fully resolved runtime configuration.
type Config struct {
	Host string
	Port int

	JWTSecret string

	MaxEvents     int
	LockTTL       time.Duration
	SweepInterval time.Duration
}

// Load resolves configuration from flags, environment variables
// (POSYNC_HUB_*), and built-in defaults, in that order of precedence.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("hubd", pflag.ContinueOnError)
	fs.String("host", "0.0.0.0", "address to bind the hub's listeners to")
	fs.Int("port", 4001, "port for the bidirectional message transport and HTTP surface")
	fs.String("jwt-secret", "", "secret used to sign session tokens, if JWT sessions are enabled")
	fs.Int("max-events", 10_000, "maximum retained events before oldest-first eviction")
	fs.Duration("lock-ttl", 5*time.Minute, "time-to-live for an acquired order lock")
	fs.Duration("sweep-interval", 60*time.Second, "interval between lock manager sweeps")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("posync_hub")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, err
	}

	// PORT/HOST/JWT_SECRET without the POSYNC_HUB_ prefix are the
	// historical, bare environment variable names called out by the
	// spec; bind them explicitly since AutomaticEnv only applies the
	// configured prefix.
	_ = v.BindEnv("host", "HOST")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("jwt-secret", "JWT_SECRET")

	return Config{
		Host:          v.GetString("host"),
		Port:          v.GetInt("port"),
		JWTSecret:     v.GetString("jwt-secret"),
		MaxEvents:     v.GetInt("max-events"),
		LockTTL:       v.GetDuration("lock-ttl"),
		SweepInterval: v.GetDuration("sweep-interval"),
	}, nil
}
