package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
)

type Config struct {
	Env            string `env:"ENVIRONMENT" envDefault:"development"`
	ServerPort     int    `env:"SERVER_PORT" envDefault:"8080"`
	BasicAuthCreds string `env:"BASIC_AUTH_CREDS"`
	DatabasePath   string `env:"DATABASE_PATH" envDefault:"trailerwatch.sqlite"`
	UserAgent      string `env:"USER_AGENT" envDefault:"trailerwatch/1.0 (+https://github.com/fiffu/trailerwatch)"`
	BotName        string `env:"BOT_NAME" envDefault:"Trailerwatch"`

	Reddit struct {
		BaseURL   string `env:"REDDIT_BASE_URL" envDefault:"https://www.reddit.com"`
		Subreddit string `env:"REDDIT_SUBREDDIT" envDefault:"movies"`
	}
	TMDB struct {
		APIKey            string  `env:"TMDB_API_KEY"`
		BaseURL           string  `env:"TMDB_BASE_URL" envDefault:"https://api.themoviedb.org/3"`
		Language          string  `env:"TMDB_LANGUAGE" envDefault:"en-US"`
		RequestsPerSecond float64 `env:"TMDB_REQUESTS_PER_SECOND" envDefault:"4"`
	}
	Video struct {
		YoutubeOEmbedURL string `env:"YOUTUBE_OEMBED_URL"`
		VimeoOEmbedURL   string `env:"VIMEO_OEMBED_URL"`
	}
	Poll struct {
		Interval       time.Duration `env:"POLL_INTERVAL" envDefault:"1h"`
		Limit          int           `env:"POLL_LIMIT" envDefault:"10"`
		ScoreThreshold int           `env:"SCORE_THRESHOLD" envDefault:"300"`
		RepostSeen     bool          `env:"REPOST_SEEN" envDefault:"false"`
	}
	Pipeline struct {
		Concurrency  int           `env:"PIPELINE_CONCURRENCY" envDefault:"4"`
		FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"15s"`
	}
	Delivery struct {
		Timeout     time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"10s"`
		Parallelism int           `env:"DELIVERY_PARALLELISM" envDefault:"8"`
	}
	Mailgun struct {
		Domain      string `env:"MAILGUN_DOMAIN"`
		APIKey      string `env:"MAILGUN_API_KEY"`
		SenderFrom  string `env:"MAILGUN_SENDER_FROM"`
		TimeoutSecs int    `env:"MAILGUN_TIMEOUT_SECS" envDefault:"10"`
	}

	creds    map[string]string
	backfill *Backfill
}

func NewConfig(log *zap.Logger) *Config {
	cfg, err := Load(env.ToMap(os.Environ()))
	if err != nil {
		log.Sugar().Panic(err)
	}

	creds, err := cfg.parseCreds()
	if err != nil {
		if cfg.IsDevelopment() {
			log.Sugar().Infof("%s (credentials will be set to default in development env)", err)
			creds = map[string]string{"admin": "password"}
		} else {
			log.Sugar().Panic(err)
		}
	}
	cfg.creds = creds

	return cfg
}

type Backfill struct {
	Limit          int
	ScoreThreshold int
	RepostSeen     bool
}

// Load parses environ into a Config. In development the first run backfills:
// it reads a larger page, ignores the score threshold and reposts seen
// trailers, unless those settings were given explicitly.
func Load(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, err
	}

	if cfg.IsDevelopment() {
		b := &Backfill{cfg.Poll.Limit, cfg.Poll.ScoreThreshold, cfg.Poll.RepostSeen}
		if _, ok := environ["POLL_LIMIT"]; !ok {
			b.Limit = 100
		}
		if _, ok := environ["SCORE_THRESHOLD"]; !ok {
			b.ScoreThreshold = 0
		}
		if _, ok := environ["REPOST_SEEN"]; !ok {
			b.RepostSeen = true
		}
		cfg.backfill = b
	}
	return cfg, nil
}

// Backfill, when non-nil, replaces Poll's page settings for the first run
// after startup.
func (cfg *Config) Backfill() *Backfill {
	return cfg.backfill
}

func (cfg *Config) IsDevelopment() bool {
	return cfg.Env == "development"
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	if cfg.BasicAuthCreds == "" {
		return nil, errors.New("BASIC_AUTH_CREDS envvar must be populated")
	}

	creds := strings.Split(cfg.BasicAuthCreds, ",")
	result := make(map[string]string)
	for _, cred := range creds {
		userPass := strings.Split(cred, ":")
		if len(userPass) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}

		user, pass := userPass[0], userPass[1]
		result[strings.Trim(user, " ")] = strings.Trim(pass, " ")
	}

	return result, nil
}
