package di

import (
	"flag"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/greylist-filter/internal/config"
	"github.com/mikey/greylist-filter/internal/core"
	"github.com/mikey/greylist-filter/internal/logging"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Signal flags; when IP is set the message is not read
	FirstContact bool
	From         string
	IP           string
	Hostname     string
	Score        float64
	Required     float64

	// Store flags
	StoreType    string
	StoreAddress string

	// Input flags
	InputFile     string
	WhitelistFile string
	Verbose       bool
	JSONLog       bool
	ConfigFile    string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags(fs *flag.FlagSet, args []string) (*CLIFlags, error) {
	flags := &CLIFlags{}

	// Signal flags
	fs.BoolVar(&flags.FirstContact, "first-contact", false, "Treat the message as a first contact")
	fs.StringVar(&flags.From, "from", "", "Envelope sender address")
	fs.StringVar(&flags.IP, "ip", "", "Client IP address (skips reading a message)")
	fs.StringVar(&flags.Hostname, "hostname", "", "Client reverse DNS name")
	fs.Float64Var(&flags.Score, "score", 0, "Spam score of the message")
	fs.Float64Var(&flags.Required, "required", 5.0, "Required spam score")

	// Store flags
	fs.StringVar(&flags.StoreType, "store", "memory", "Store type (memcached, redis, memory, sqlite, mysql)")
	fs.StringVar(&flags.StoreAddress, "store-address", "127.0.0.1:11211", "Memcached server(s)")

	// Input flags
	fs.StringVar(&flags.InputFile, "file", "", "Input email file (use stdin if not specified)")
	fs.StringVar(&flags.WhitelistFile, "whitelist", "", "Whitelist file")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides store and whitelist flags)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}

// Signals returns the explicit signal set given on the command line, or nil when the
// signals must come from a message
func (f *CLIFlags) Signals() *core.SignalSet {
	if f.IP == "" {
		return nil
	}
	return &core.SignalSet{
		FirstContact:   f.FirstContact,
		SenderAddress:  f.From,
		SourceHost:     f.IP,
		SourceHostname: f.Hostname,
		CurrentScore:   f.Score,
		RequiredScore:  f.Required,
	}
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.New(flags.ConfigFile)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			cfg.Set("server.filter_type", "cli")
			cfg.Set("cli.verbose", flags.Verbose)
			return cfg, nil
		}

		cfg := createConfigFromFlags(flags)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	// No metrics endpoint for one-shot checks
	if err := container.Provide(core.NopMetrics); err != nil {
		return nil, err
	}

	if err := provideCommon(container); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	// Set some cli specific settings
	v.Set("server.filter_type", "cli")
	v.Set("cli.verbose", flags.Verbose)

	v.Set("store.type", flags.StoreType)
	v.Set("store.address", flags.StoreAddress)
	v.Set("greylist.whitelist_file", flags.WhitelistFile)

	return config.NewFromViper(v)
}
