package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/feed"
	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/transport"
)

const (
	DefaultRadiusNM = 25
	DefaultRate     = 0
)

var (
	ErrNoTransport          = errors.New("one of --udp, --tcp or --cert is required")
	ErrConflictingTransport = errors.New("--udp, --tcp and --cert are mutually exclusive")
)

// Config holds runtime configuration for the relay.
type Config struct {
	Lat      float64
	Lon      float64
	RadiusNM int
	// RateSeconds <= 0 runs a single cycle.
	RateSeconds int

	Dest string
	Port int

	UDP          bool
	TCP          bool
	CertPath     string
	CertPassword string
	CAPath       string

	FeedBaseURL string
	// FeedTimeout of zero leaves feed requests unbounded.
	FeedTimeout time.Duration
	StatusAddr  string

	LogLevel  string
	LogFormat string
}

// Load reads defaults from environment variables (optionally .env). Flags
// are applied on top by the caller.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		RadiusNM:    DefaultRadiusNM,
		RateSeconds: DefaultRate,
		FeedBaseURL: feed.DefaultBaseURL,
	}

	if v := strings.TrimSpace(os.Getenv("FEED_BASE_URL")); v != "" {
		cfg.FeedBaseURL = v
	}

	if v := strings.TrimSpace(os.Getenv("FEED_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid FEED_TIMEOUT: %w", err)
		}
		if d < 0 {
			return cfg, fmt.Errorf("invalid FEED_TIMEOUT: %s is negative", v)
		}
		cfg.FeedTimeout = d
	}

	cfg.StatusAddr = strings.TrimSpace(os.Getenv("STATUS_ADDR"))
	cfg.CertPassword = os.Getenv("CERT_PASSWORD")
	cfg.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	cfg.LogFormat = strings.TrimSpace(os.Getenv("LOG_FORMAT"))

	if v := strings.TrimSpace(os.Getenv("RELAY_RADIUS_NM")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid RELAY_RADIUS_NM: %w", err)
		}
		cfg.RadiusNM = n
	}

	if v := strings.TrimSpace(os.Getenv("RELAY_RATE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid RELAY_RATE: %w", err)
		}
		cfg.RateSeconds = n
	}

	return cfg, nil
}

// Validate checks ranges and that exactly one transport is selected.
func (c Config) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("invalid latitude %v", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("invalid longitude %v", c.Lon)
	}
	if c.RadiusNM <= 0 {
		return fmt.Errorf("invalid radius %d", c.RadiusNM)
	}
	if strings.TrimSpace(c.Dest) == "" {
		return errors.New("destination is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	return nil
}

// Mode returns the selected transport.
func (c Config) Mode() (transport.Mode, error) {
	selected := 0
	mode := transport.Mode("")
	if c.UDP {
		selected++
		mode = transport.ModeUDP
	}
	if c.TCP {
		selected++
		mode = transport.ModeTCP
	}
	if c.CertPath != "" {
		selected++
		mode = transport.ModeTLS
	}

	switch selected {
	case 0:
		return "", ErrNoTransport
	case 1:
		return mode, nil
	default:
		return "", ErrConflictingTransport
	}
}

// DestAddr returns the destination host:port.
func (c Config) DestAddr() string {
	return net.JoinHostPort(c.Dest, strconv.Itoa(c.Port))
}

// Query returns the feed query for the configured circle.
func (c Config) Query() feed.Query {
	return feed.Query{Lat: c.Lat, Lon: c.Lon, RadiusNM: c.RadiusNM}
}

// TransportOptions builds Dial options for the configured mode.
func (c Config) TransportOptions() (transport.Options, error) {
	mode, err := c.Mode()
	if err != nil {
		return transport.Options{}, err
	}
	return transport.Options{
		Mode:         mode,
		Addr:         c.DestAddr(),
		CertPath:     c.CertPath,
		CertPassword: c.CertPassword,
		CAPath:       c.CAPath,
	}, nil
}
