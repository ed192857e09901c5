package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/andreazorzetto/yh/highlight"
	"github.com/hokaccha/go-prettyjson"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"gopkg.in/yaml.v3"

	sdk "go.opentelemetry.io/otel/sdk/metric"

	"github.com/charm-corp/ai-value-matching-sub001/conf"
	"github.com/charm-corp/ai-value-matching-sub001/internal/build"
	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
	"github.com/charm-corp/ai-value-matching-sub001/internal/metrics"
	"github.com/charm-corp/ai-value-matching-sub001/internal/server/authn"
	"github.com/charm-corp/ai-value-matching-sub001/internal/server/biz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/server/dependencies"
	"github.com/charm-corp/ai-value-matching-sub001/internal/server/gc"
	"github.com/charm-corp/ai-value-matching-sub001/internal/tracing"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			handleConfigCommand()
			return
		case "token":
			handleTokenCommand()
			return
		case "match":
			runMatchingOnce()
			return
		case "version", "--version", "-v":
			showVersion()
			return
		case "help", "--help", "-h":
			showHelp()
			return
		case "build-info":
			showBuildInfo()
			return
		}
	}

	startServer()
}

func showBuildInfo() {
	fmt.Println(build.GetBuildInfo())
}

type logger struct{}

func (l *logger) LogEvent(event fxevent.Event) {
	log.Debug(context.Background(), "fx event", log.Any("event", event))
}

func newApp(opts ...fx.Option) *fx.App {
	return fx.New(append([]fx.Option{
		fx.WithLogger(func() fxevent.Logger {
			return &logger{}
		}),
		fx.Provide(conf.Load),
		fx.Provide(metrics.NewProvider),
		dependencies.Module,
		biz.Module,
		gc.Module,
	}, opts...)...)
}

type metricsParams struct {
	fx.In

	Provider    *sdk.MeterProvider
	ServiceName string `name:"service_name"`
}

func startServer() {
	newApp(
		fx.Invoke(func(lc fx.Lifecycle, params metricsParams) {
			provider := params.Provider

			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if provider != nil {
						return metrics.SetupMetrics(provider, params.ServiceName)
					}

					return nil
				},
				OnStop: func(ctx context.Context) error {
					if provider != nil {
						return provider.Shutdown(ctx)
					}

					return nil
				},
			})
		}),
	).Run()
}

// runMatchingOnce runs a single matching pass without the scheduler.
func runMatchingOnce() {
	var job *biz.MatchingJob

	app := newApp(fx.Populate(&job))

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}

	created, err := job.Run(tracing.StartRun(ctx))

	if stopErr := app.Stop(ctx); stopErr != nil {
		fmt.Fprintf(os.Stderr, "Failed to stop: %v\n", stopErr)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Matching failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Created %d match pairs\n", created)
}

func handleConfigCommand() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: matchd config <preview|validate|get>")
		os.Exit(1)
	}

	switch os.Args[2] {
	case "preview":
		configPreview()
	case "validate":
		configValidate()
	case "get":
		configGet()
	default:
		fmt.Println("Usage: matchd config <preview|validate|get>")
		os.Exit(1)
	}
}

func configPreview() {
	format := "yml"

	for i := 3; i < len(os.Args); i++ {
		if os.Args[i] == "--format" || os.Args[i] == "-f" {
			if i+1 < len(os.Args) {
				format = os.Args[i+1]
			}
		}
	}

	config, err := conf.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Never print the signing secret.
	if config.Auth.Secret != "" {
		config.Auth.Secret = "******"
	}

	var output string

	switch format {
	case "json":
		b, err := prettyjson.Marshal(config)
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}

		output = string(b)
	case "yml", "yaml":
		b, err := yaml.Marshal(config)
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}

		output, err = highlight.Highlight(bytes.NewBuffer(b))
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Printf("Unsupported format: %s\n", format)
		os.Exit(1)
	}

	fmt.Println(output)
}

func configValidate() {
	config, err := conf.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	errors := validateConfig(config)

	if len(errors) == 0 {
		fmt.Println("Configuration is valid!")
		return
	}

	fmt.Println("Configuration validation failed:")

	for _, err := range errors {
		fmt.Printf("  - %s\n", err)
	}

	os.Exit(1)
}

func validateConfig(config conf.Config) []string {
	var errors []string

	switch strings.ToLower(config.DB.Dialect) {
	case "", "memory":
	case "redis":
		if config.DB.Redis.Addr == "" && config.DB.Redis.URL == "" {
			errors = append(errors, "db.redis.addr or db.redis.url is required for the redis dialect")
		}
	default:
		if config.DB.DSN == "" {
			errors = append(errors, "db.dsn cannot be empty")
		}
	}

	if config.Log.Name == "" {
		errors = append(errors, "log.name cannot be empty")
	}

	if config.Matching.Enabled && config.Matching.Cron == "" {
		errors = append(errors, "matching.cron cannot be empty when matching is enabled")
	}

	if config.Matching.Threshold < 0 || config.Matching.Threshold > 100 {
		errors = append(errors, "matching.threshold must be between 0 and 100")
	}

	if config.Auth.Secret == "" {
		errors = append(errors, "auth.secret cannot be empty")
	}

	return errors
}

func configGet() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: matchd config get <key>")
		fmt.Println("")
		fmt.Println("Available keys:")
		fmt.Println("  db.dialect          Document store dialect")
		fmt.Println("  db.dsn              Database DSN")
		fmt.Println("  matching.enabled    Whether the matching job is scheduled")
		fmt.Println("  matching.cron       Matching job schedule")
		fmt.Println("  matching.threshold  Lowest score that creates a match pair")
		os.Exit(1)
	}

	key := os.Args[3]

	config, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var value any

	switch key {
	case "name":
		value = config.Name
	case "db.dialect":
		value = config.DB.Dialect
	case "db.dsn":
		value = config.DB.DSN
	case "matching.enabled":
		value = config.Matching.Enabled
	case "matching.cron":
		value = config.Matching.Cron
	case "matching.threshold":
		value = config.Matching.Threshold
	case "log.level":
		value = config.Log.Level
	default:
		fmt.Fprintf(os.Stderr, "Unknown config key: %s\n", key)
		os.Exit(1)
	}

	fmt.Println(value)
}

// handleTokenCommand issues a development access token:
// matchd token <subject> [role] [permission...].
func handleTokenCommand() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: matchd token <subject> [role] [permission...]")
		os.Exit(1)
	}

	config, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	resolver, err := authn.NewJWTResolver(config.Auth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create token issuer: %v\n", err)
		os.Exit(1)
	}

	subject := os.Args[2]
	identity := authn.Identity{SubjectID: &subject, Role: "user"}

	if len(os.Args) > 3 {
		identity.Role = os.Args[3]
		identity.Permissions = os.Args[4:]
	}

	token, err := resolver.IssueToken(identity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}

func showHelp() {
	fmt.Println("matchd - matching platform data access service")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  matchd                          Start the service (default)")
	fmt.Println("  matchd match                    Run one matching pass and exit")
	fmt.Println("  matchd token <subject> [role]   Issue a development access token")
	fmt.Println("  matchd config preview           Preview configuration")
	fmt.Println("  matchd config validate          Validate configuration")
	fmt.Println("  matchd config get <key>         Get a specific config value")
	fmt.Println("  matchd version                  Show version")
	fmt.Println("  matchd help                     Show this help message")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -f, --format FORMAT       Output format for config preview (yml, json)")
}

func showVersion() {
	fmt.Println(build.Version)
}
