package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load(".env")

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		// CloudWatch Logs keeps one JSON object per line
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	app := &cli.App{
		Name:  "firehose-log-processor",
		Usage: "Transform CloudWatch Logs subscription records for Kinesis Data Firehose",
		Flags: globalFlags(),
		// the Lambda runtime starts the bootstrap binary without arguments
		Action: runLambda,
		Commands: []*cli.Command{
			{
				Name:   "lambda",
				Usage:  "Serve transformation invocations from the AWS Lambda runtime",
				Action: runLambda,
			},
			{
				Name:      "process",
				Usage:     "Transform one transformation event read from a file (or stdin) and print the response",
				ArgsUsage: "[event.json]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Indent the JSON response",
					},
				},
				Action: runProcess,
			},
			{
				Name:  "serve",
				Usage: "Serve transformation invocations over HTTP for local testing",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "listen-addr",
						Usage:   "HTTP listen address",
						Value:   ":8080",
						EnvVars: []string{"LISTEN_ADDR"},
					},
				},
				Action: runServe,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("Application failed")
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "max-size",
			Usage:   "Projected response size after which records are re-ingested (bytes or e.g. 9.9MB)",
			Value:   fmt.Sprintf("%d", defaultMaxSize),
			EnvVars: []string{"MAXSIZE"},
		},
		&cli.IntFlag{
			Name:    "max-attempts",
			Usage:   "Submissions per re-ingestion batch before the invocation fails",
			Value:   defaultMaxAttempts,
			EnvVars: []string{"MAX_ATTEMPTS"},
		},
		&cli.StringFlag{
			Name:    "pushgateway-url",
			Usage:   "Prometheus Pushgateway to push metrics to after each Lambda invocation",
			EnvVars: []string{"PUSHGATEWAY_URL"},
		},
	}
}

func runLambda(c *cli.Context) error {
	cfg, err := configFromCLI(c, log.Logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	processor := NewProcessor(cfg, NewMetrics(reg))

	var pusher *push.Pusher
	if cfg.PushgatewayURL != "" {
		pusher = push.New(cfg.PushgatewayURL, "firehose_log_processor").Gatherer(reg)
	}

	cfg.Logger.Info().
		Int64("max_size", cfg.MaxSize).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Starting Lambda handler")

	lambda.Start(func(ctx context.Context, ev TransformationEvent) (*Response, error) {
		resp, err := processor.Handle(ctx, ev)
		if pusher != nil {
			if perr := pusher.PushContext(ctx); perr != nil {
				cfg.Logger.Warn().Err(perr).Msg("Failed to push metrics")
			}
		}
		return resp, err
	})
	return nil
}

func runProcess(c *cli.Context) error {
	cfg, err := configFromCLI(c, log.Logger)
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if path := c.Args().First(); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open event file: %w", err)
		}
		defer f.Close()
		in = f
	}

	var ev TransformationEvent
	if err := json.NewDecoder(in).Decode(&ev); err != nil {
		return fmt.Errorf("failed to parse transformation event: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resp, err := NewProcessor(cfg, NewMetrics(prometheus.NewRegistry())).Handle(ctx, ev)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.App.Writer)
	if c.Bool("pretty") {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(resp)
}

func runServe(c *cli.Context) error {
	cfg, err := configFromCLI(c, log.Logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	processor := NewProcessor(cfg, NewMetrics(reg))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewRouter(processor, reg, cfg.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// shutdown setup
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	cfg.Logger.Info().Str("addr", cfg.ListenAddr).Msg("Serving transformation invocations")

	select {
	case err := <-errChan:
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
	}

	cfg.Logger.Info().Msg("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
