package redisent

import (
	"github.com/caarlos0/env/v7"

	pr "github.com/unkn0wn-root/redisent/provider"
	rp "github.com/unkn0wn-root/redisent/provider/redis"
)

const envPrefix = "REDISENT_"

// Config is the environment-driven setup of a Context backed by Redis.
// Every variable carries the REDISENT_ prefix, e.g. REDISENT_URL.
type Config struct {
	URL       string `env:"URL"         envDefault:"redis://localhost:6379/0"`
	ReaderURL string `env:"READER_URL"` // empty => reads share the writer connection
	Channel   string `env:"CHANNEL"`
	ChannelDB int    `env:"CHANNEL_DB"  envDefault:"0"`
	KeyPrefix string `env:"KEY_PREFIX"`

	CacheEnabled bool `env:"CACHE_ENABLED" envDefault:"true"`
	AsyncPublish int  `env:"ASYNC_PUBLISH" envDefault:"0"`
	PublishQueue int  `env:"PUBLISH_QUEUE" envDefault:"1024"`
	// PerKey pipelines single-key commands instead of MGET/MSET/DEL;
	// needed when keys of one entity span cluster slots.
	PerKey bool `env:"PER_KEY" envDefault:"false"`
}

// LoadConfig reads Config from the process environment.
func LoadConfig() (Config, error) {
	return loadConfig(nil)
}

// loadConfig reads from environ when non-nil, else from the process environment.
func loadConfig(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{Prefix: envPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.Parse(&cfg, opts); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Options turns cfg into Context options with go-redis dialers. Each logical
// database gets its own client, owned and closed by the Context.
func (cfg Config) Options() Options {
	o := Options{
		Writer:       cfg.dialer(cfg.URL),
		Channel:      cfg.Channel,
		ChannelDB:    cfg.ChannelDB,
		AsyncPublish: cfg.AsyncPublish,
		PublishQueue: cfg.PublishQueue,
		KeyPrefix:    cfg.KeyPrefix,
		DisableCache: !cfg.CacheEnabled,
	}
	if cfg.ReaderURL != "" {
		o.Reader = cfg.dialer(cfg.ReaderURL)
	}
	return o
}

func (cfg Config) dialer(url string) Dialer {
	return func(db int) (pr.Store, error) {
		client, err := rp.Dial(url, db)
		if err != nil {
			return nil, err
		}
		s, err := rp.New(rp.Config{Client: client, CloseClient: true, PerKey: cfg.PerKey})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
