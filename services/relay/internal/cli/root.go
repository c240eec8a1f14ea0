package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/config"
)

type rootFlags struct {
	lat, lon     float64
	dest         string
	port         int
	radius       int
	rate         int
	udp, tcp     bool
	cert         string
	certPassword string
	ca           string
	statusAddr   string
	feedURL      string
	logLevel     string
	logFormat    string
}

// NewRootCommand builds the adsb-cot command tree.
func NewRootCommand() *cobra.Command {
	f := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "adsb-cot",
		Short: "Relay airplanes.live traffic to a TAK endpoint as Cursor-on-Target",
		Long: "Polls the airplanes.live point API around a center position and sends one CoT event\n" +
			"per aircraft over UDP, TCP or TLS. With --rate 0 it polls once and exits.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config(cmd)
			if err != nil {
				return err
			}
			return runRelay(cmd.Context(), cfg, newLogger(cfg))
		},
	}

	fl := cmd.Flags()
	fl.Float64Var(&f.lat, "lat", 0, "Centerpoint latitude")
	fl.Float64Var(&f.lon, "lon", 0, "Centerpoint longitude")
	fl.StringVar(&f.dest, "dest", "", "Destination hostname or IP address for sending CoT")
	fl.IntVar(&f.port, "port", 0, "Destination port")
	fl.IntVar(&f.radius, "radius", config.DefaultRadiusNM, "Radius in nautical miles")
	fl.IntVar(&f.rate, "rate", config.DefaultRate, "Seconds between polls; 0 polls once and exits")
	fl.BoolVar(&f.udp, "udp", false, "Send events via UDP")
	fl.BoolVar(&f.tcp, "tcp", false, "Send events via TCP")
	fl.StringVar(&f.cert, "cert", "", "Send events via TLS using this client certificate (PEM with key, or .p12)")
	fl.StringVar(&f.certPassword, "cert-password", "", "Password for a PKCS#12 client certificate (or CERT_PASSWORD)")
	fl.StringVar(&f.ca, "ca", "", "CA certificate used to verify the TLS server")
	fl.StringVar(&f.statusAddr, "status-addr", "", "Serve /healthz, /status and /metrics on this address (or STATUS_ADDR)")
	fl.StringVar(&f.feedURL, "feed-url", "", "Feed base URL (or FEED_BASE_URL)")
	fl.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (or LOG_LEVEL)")
	fl.StringVar(&f.logFormat, "log-format", "", "text or json (or LOG_FORMAT)")

	for _, name := range []string{"lat", "lon", "dest", "port"} {
		_ = cmd.MarkFlagRequired(name)
	}
	cmd.MarkFlagsMutuallyExclusive("udp", "tcp", "cert")
	cmd.MarkFlagsOneRequired("udp", "tcp", "cert")

	cmd.AddCommand(newVersionCommand())
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// config merges environment defaults with the flags that were set.
func (f *rootFlags) config(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, fmt.Errorf("config error: %w", err)
	}

	cfg.Lat = f.lat
	cfg.Lon = f.lon
	cfg.Dest = f.dest
	cfg.Port = f.port
	cfg.UDP = f.udp
	cfg.TCP = f.tcp
	cfg.CertPath = f.cert
	cfg.CAPath = f.ca

	changed := cmd.Flags().Changed
	if changed("radius") {
		cfg.RadiusNM = f.radius
	}
	if changed("rate") {
		cfg.RateSeconds = f.rate
	}
	if changed("cert-password") {
		cfg.CertPassword = f.certPassword
	}
	if changed("status-addr") {
		cfg.StatusAddr = f.statusAddr
	}
	if changed("feed-url") {
		cfg.FeedBaseURL = f.feedURL
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}
