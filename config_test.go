package main

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "9900000", want: 9900000},
		{raw: " 1024 ", want: 1024},
		{raw: "10MB", want: 10000000},
		{raw: "6MiB", want: 6291456},
		{raw: "0", wantErr: true},
		{raw: "-5", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseSize(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLogLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, zerolog.FatalLevel, parseLogLevel("critical"))
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel("nonsense"))
}

func runConfigApp(args ...string) (Config, error) {
	var cfg Config
	app := &cli.App{
		Name:      "test",
		Flags:     globalFlags(),
		Writer:    io.Discard,
		ErrWriter: io.Discard,
		Action: func(c *cli.Context) error {
			var err error
			cfg, err = configFromCLI(c, zerolog.Nop())
			return err
		},
	}
	err := app.Run(append([]string{"test"}, args...))
	return cfg, err
}

func TestConfigFromCLI(t *testing.T) {
	cfg, err := runConfigApp("--max-size", "6MiB", "--max-attempts", "3", "--log-level", "debug")

	require.NoError(t, err)
	assert.Equal(t, int64(6291456), cfg.MaxSize)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
}

func TestConfigFromCLIRejectsInvalidValues(t *testing.T) {
	_, err := runConfigApp("--max-attempts", "0")
	assert.ErrorContains(t, err, "max-attempts")

	_, err = runConfigApp("--max-size", "lots")
	assert.ErrorContains(t, err, "max-size")
}
