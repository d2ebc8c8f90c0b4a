package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/firehose"
	"github.com/aws/aws-sdk-go-v2/service/firehose/types"
	"github.com/brianvoe/gofakeit/v6"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
)

type Settings struct {
	StreamName  string
	Region      string
	Records     int
	Concurrency int
	MaxEvents   int
	Timeout     time.Duration
	Pattern     WorkloadPattern
	Mix         Mix
	Owner       string
	LogGroup    string
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func loadSettings() (Settings, error) {
	s := Settings{
		StreamName:  getEnv("DELIVERY_STREAM_NAME", ""),
		Region:      getEnv("AWS_REGION", "us-east-1"),
		Records:     getEnvInt("LOAD_TEST_RECORDS", 1000),
		Concurrency: getEnvInt("LOAD_TEST_CONCURRENCY", 10),
		MaxEvents:   getEnvInt("LOAD_TEST_MAX_EVENTS", 50),
		Timeout:     time.Duration(getEnvInt("LOAD_TEST_TIMEOUT_SECONDS", 30)) * time.Second,
		Pattern:     WorkloadPattern(getEnv("LOAD_TEST_PATTERN", string(PatternWave))),
		Owner:       getEnv("LOAD_TEST_OWNER", "123456789012"),
		LogGroup:    getEnv("LOAD_TEST_LOG_GROUP", "/loadtest/app"),
		Mix:         defaultMix,
	}
	if s.StreamName == "" {
		return s, fmt.Errorf("DELIVERY_STREAM_NAME environment variable is required")
	}
	if s.Records < 1 || s.Concurrency < 1 || s.MaxEvents < 1 {
		return s, fmt.Errorf("LOAD_TEST_RECORDS, LOAD_TEST_CONCURRENCY and LOAD_TEST_MAX_EVENTS must be positive")
	}
	switch s.Pattern {
	case PatternSteady, PatternBurst, PatternWave:
	default:
		return s, fmt.Errorf("unknown LOAD_TEST_PATTERN %q", s.Pattern)
	}
	if raw := os.Getenv("LOAD_TEST_MIX"); raw != "" {
		mix, err := parseMix(raw)
		if err != nil {
			return s, fmt.Errorf("failed to parse LOAD_TEST_MIX: %w", err)
		}
		s.Mix = mix
	}
	return s, nil
}

type RecordPutter interface {
	PutRecord(ctx context.Context, params *firehose.PutRecordInput, optFns ...func(*firehose.Options)) (*firehose.PutRecordOutput, error)
}

type Result struct {
	Success  bool
	Duration time.Duration
	Index    int
	Kind     PayloadKind
	Bytes    int
	Error    string
}

type sender struct {
	settings Settings
	client   RecordPutter
	gen      *Generator
}

func (s *sender) send(ctx context.Context, rng *rand.Rand, index int) Result {
	progress := float64(index) / float64(s.settings.Records)
	kind := s.settings.Mix.pick(rng)

	data, err := s.gen.Payload(kind, s.settings.Pattern.eventsPerRecord(progress, s.settings.MaxEvents, rng))
	if err != nil {
		return Result{Index: index, Kind: kind, Error: fmt.Sprintf("payload error: %v", err)}
	}

	putCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()

	start := time.Now()
	_, err = s.client.PutRecord(putCtx, &firehose.PutRecordInput{
		DeliveryStreamName: aws.String(s.settings.StreamName),
		Record:             &types.Record{Data: data},
	})
	res := Result{Duration: time.Since(start), Index: index, Kind: kind, Bytes: len(data)}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

// run fans indices out to the workers and streams every result to out, closing it
// once all workers are done.
func (s *sender) run(ctx context.Context, out chan<- Result) {
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < s.settings.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			for index := range jobs {
				progress := float64(index) / float64(s.settings.Records)
				select {
				case <-time.After(s.settings.Pattern.delay(progress, rng)):
				case <-ctx.Done():
					return
				}
				out <- s.send(ctx, rng, index)
			}
		}(w)
	}

	go func() {
		defer close(jobs)
		for i := 1; i <= s.settings.Records; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(out)
}

func main() {
	_ = godotenv.Load(".env")

	settings, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	gofakeit.Seed(time.Now().UnixNano())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(settings.Region))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to load SDK config: %v\n", err)
		os.Exit(1)
	}

	s := &sender{
		settings: settings,
		client:   firehose.NewFromConfig(cfg),
		gen:      NewGenerator(settings.Owner, settings.LogGroup),
	}

	p := tea.NewProgram(newModel(settings), tea.WithAltScreen())

	results := make(chan Result, settings.Concurrency)
	go s.run(ctx, results)
	go func() {
		for r := range results {
			p.Send(resultMsg(r))
		}
		p.Send(completeMsg{})
	}()
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}
