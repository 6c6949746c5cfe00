package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	internaldns "github.com/jmerrifield20/paymail/internal/dns"
	"github.com/jmerrifield20/paymail/pkg/bsm"
	"github.com/jmerrifield20/paymail/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile string
	verbose bool
	logger  = zap.NewNop()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "paymail",
	Short: "Paymail protocol client",
	Long: `paymail resolves alias@domain addresses, discovers the capabilities
their domains publish, and calls them: public key lookup, payment
destinations, P2P transactions and arbitrary extensions.

Settings come from flags, PAYMAIL_* environment variables, or
~/.paymail/config.yaml:

  private_key: <hex or WIF>
  cache_ttl: 1h
  dns_server: 1.1.1.1:53
  scheme: https
  http_timeout: 10s`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		return initLogger()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ~/.paymail/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log discovery and HTTP activity to stderr")
	flags.String("private-key", "", "signing key, hex or WIF")
	flags.Duration("cache-ttl", client.DefaultCacheTTL, "capability cache TTL; 0 disables caching")
	flags.String("dns-server", "", "nameserver host:port (default from /etc/resolv.conf)")
	flags.String("scheme", "https", "URL scheme of paymail hosts")
	flags.Duration("http-timeout", 10*time.Second, "HTTP request timeout")

	for key, flag := range map[string]string{
		"private_key":  "private-key",
		"cache_ttl":    "cache-ttl",
		"dns_server":   "dns-server",
		"scheme":       "scheme",
		"http_timeout": "http-timeout",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(
		capabilitiesCmd,
		pubkeyCmd,
		destinationCmd,
		p2pDestinationCmd,
		sendTxCmd,
		callCmd,
		profileCmd,
		verifyPubKeyCmd,
		signCmd,
		verifyCmd,
		keygenCmd,
		versionCmd,
	)
}

func loadConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		viper.AddConfigPath(filepath.Join(home, ".paymail"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("PAYMAIL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func initLogger() error {
	if !verbose {
		return nil
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = l
	return nil
}

// signingKey parses the configured private key, or returns nil when none is set.
func signingKey() (*secp256k1.PrivateKey, error) {
	raw := strings.TrimSpace(viper.GetString("private_key"))
	if raw == "" {
		return nil, nil
	}
	key, err := bsm.ParsePrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("private_key: %w", err)
	}
	return key, nil
}

func requireSigningKey() (*secp256k1.PrivateKey, error) {
	key, err := signingKey()
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, fmt.Errorf("a private key is required: set --private-key or PAYMAIL_PRIVATE_KEY")
	}
	return key, nil
}

// newClient builds a Client from the resolved configuration.
func newClient(needKey bool) (*client.Client, error) {
	opts := []client.Option{
		client.WithLogger(logger),
		client.WithCacheTTL(viper.GetDuration("cache_ttl")),
		client.WithTimeout(viper.GetDuration("http_timeout")),
		client.WithDNS(internaldns.Config{Server: viper.GetString("dns_server")}),
	}
	if scheme := viper.GetString("scheme"); scheme != "" {
		opts = append(opts, client.WithScheme(scheme))
	}

	keyFn := signingKey
	if needKey {
		keyFn = requireSigningKey
	}
	key, err := keyFn()
	if err != nil {
		return nil, err
	}
	if key != nil {
		opts = append(opts, client.WithPrivateKey(key))
	}
	return client.New(opts...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "paymail %s\n", version)
	},
}
