package server

import (
	"net/http"
	"strconv"
	"time"
)

// EnvConfig defines fields parsed from environment variables
type EnvConfig struct {
	Host           string `env:"HOST" envDefault:"0.0.0.0"`
	Port           uint16 `env:"PORT" envDefault:"9000"`
	TokenSecret    string `env:"TOKEN_SECRET,required"`
	DefaultChannel string `env:"DEFAULT_CHANNEL" envDefault:"main"`
	AdminUsername  string `env:"ADMIN_USERNAME" envDefault:"admin"`
	UploadDir      string `env:"UPLOAD_DIR" envDefault:"uploads"`
}

// config collects the tunables applied while building a Server
type config struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
}

type Option interface {
	apply(*config)
}

type optionFunc func(c *config)

func (f optionFunc) apply(c *config) { f(c) }

// WithEnvConfig sources the listen address from the parsed environment
func WithEnvConfig(cfg EnvConfig) Option {
	return optionFunc(func(c *config) {
		c.httpServer.Addr = cfg.Host + ":" + strconv.FormatUint(uint64(cfg.Port), 10)
	})
}

// ReadTimeout sets read timeout for http.Server
func ReadTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) {
		c.httpServer.ReadTimeout = d
	})
}

// ShutdownTimeout bounds how long Start waits for the hub's connection pumps
// during graceful shutdown
func ShutdownTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) {
		c.shutdownTimeout = d
	})
}
