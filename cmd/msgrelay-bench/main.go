// Command msgrelay-bench generates producer load against the relay and reports submit
// latency, forwarder tick timings and end-to-end throughput.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"

	"github.com/velmie/msgrelay"
	"github.com/velmie/msgrelay/ipc"
	"github.com/velmie/msgrelay/mysql"
	"github.com/velmie/msgrelay/sqlite"
)

type mode string

const (
	modeRelay  mode = "relay"
	modeSubmit mode = "submit"
)

const (
	defaultRecords          = 10000
	defaultPayloadBytes     = 256
	defaultProducers        = 4
	defaultPoolSize         = 3
	defaultInterval         = 100 * time.Millisecond
	defaultSubmitTimeout    = time.Second
	defaultDrainTimeout     = 2 * time.Minute
	defaultProgressInterval = 5 * time.Second
	defaultDrainPoll        = 10 * time.Millisecond
)

var (
	errInvalidMode      = errors.New("msgrelay-bench: invalid mode")
	errRecordsRequired  = errors.New("msgrelay-bench: records must be positive")
	errEndpointRequired = errors.New("msgrelay-bench: submit mode requires an endpoint")
	errDrainTimeout     = errors.New("msgrelay-bench: queue not drained before timeout")
	errPersistMismatch  = errors.New("msgrelay-bench: persisted rows mismatch")
)

type benchConfig struct {
	mode             mode
	records          int
	producers        int
	payload          []byte
	payloadRandom    bool
	payloadSeed      int64
	endpoint         string
	dsn              string
	table            string
	poolSize         int
	monitorInterval  time.Duration
	forwardInterval  time.Duration
	submitTimeout    time.Duration
	drainTimeout     time.Duration
	progress         bool
	progressInterval time.Duration
}

type result struct {
	Mode            mode          `json:"mode"`
	Store           string        `json:"store,omitempty"`
	Records         int           `json:"records"`
	Producers       int           `json:"producers"`
	PayloadBytes    int           `json:"payload_bytes"`
	PayloadRandom   bool          `json:"payload_random"`
	PoolSize        int           `json:"pool_size,omitempty"`
	ForwardInterval time.Duration `json:"forward_interval,omitempty"`
	Accepted        int64         `json:"accepted"`
	Rejected        int64         `json:"rejected"`
	Timeouts        int64         `json:"timeouts"`
	Received        int64         `json:"received"`
	Persisted       int64         `json:"persisted"`
	Dropped         int64         `json:"dropped"`
	ConnectFailures int64         `json:"connect_failures"`
	Respawns        int64         `json:"respawns"`
	MaxQueueLength  int64         `json:"max_queue_length"`
	StoredRows      int           `json:"stored_rows,omitempty"`
	SubmitDuration  time.Duration `json:"submit_duration"`
	Duration        time.Duration `json:"duration"`
	Throughput      float64       `json:"throughput_msg_per_sec"`
	SubmitP50Ms     float64       `json:"submit_p50_ms"`
	SubmitP99Ms     float64       `json:"submit_p99_ms"`
	SubmitMaxMs     float64       `json:"submit_max_ms"`
	TickP50Ms       float64       `json:"tick_p50_ms"`
	TickP99Ms       float64       `json:"tick_p99_ms"`
	TickMaxMs       float64       `json:"tick_max_ms"`
	TickSamples     int           `json:"tick_samples"`
	GoTotalAllocB   uint64        `json:"go_total_alloc_bytes"`
	GoNumGC         uint32        `json:"go_num_gc"`
}

func main() {
	var (
		runMode       string
		payloadBytes  int
		jsonOut       bool
		cfg           benchConfig
		payloadRandom bool
	)

	flagSet := pflag.NewFlagSet("msgrelay-bench", pflag.ExitOnError)
	flagSet.StringVar(&runMode, "mode", string(modeRelay), "Benchmark mode: relay (in-process server) or submit (external relay)")
	flagSet.IntVar(&cfg.records, "records", defaultRecords, "Number of messages to submit")
	flagSet.IntVar(&cfg.producers, "producers", defaultProducers, "Concurrent producers")
	flagSet.IntVar(&payloadBytes, "payload-bytes", defaultPayloadBytes, "Payload size in bytes")
	flagSet.BoolVar(&payloadRandom, "payload-random", false, "Generate random payload contents")
	flagSet.Int64Var(&cfg.payloadSeed, "payload-seed", 1, "Random seed for payload generation")
	flagSet.StringVar(&cfg.endpoint, "endpoint", "", "Relay socket path (submit mode, or relay mode override)")
	flagSet.StringVar(&cfg.dsn, "dsn", "", "MySQL DSN for relay mode; a temporary SQLite database is used when empty")
	flagSet.StringVar(&cfg.table, "table", "", "Destination table (relay mode)")
	flagSet.IntVar(&cfg.poolSize, "pool-size", defaultPoolSize, "Listener slots (relay mode)")
	flagSet.DurationVar(&cfg.monitorInterval, "monitor-interval", defaultInterval, "Supervisor tick (relay mode)")
	flagSet.DurationVar(&cfg.forwardInterval, "forward-interval", defaultInterval, "Forwarder tick (relay mode)")
	flagSet.DurationVar(&cfg.submitTimeout, "submit-timeout", defaultSubmitTimeout, "Timeout per submit")
	flagSet.DurationVar(&cfg.drainTimeout, "drain-timeout", defaultDrainTimeout, "Time to wait for the forwarder to drain (relay mode)")
	flagSet.BoolVar(&cfg.progress, "progress", true, "Emit progress updates to stderr")
	flagSet.DurationVar(&cfg.progressInterval, "progress-interval", defaultProgressInterval, "Progress update interval")
	flagSet.BoolVar(&jsonOut, "json", false, "Print JSON result")
	_ = flagSet.Parse(os.Args[1:])

	parsed, err := parseMode(runMode)
	if err != nil {
		exitErr(err)
	}
	cfg.mode = parsed
	cfg.payloadRandom = payloadRandom
	// #nosec G404 -- deterministic RNG for benchmark payloads.
	cfg.payload = buildPayload(payloadBytes, payloadRandom, rand.New(rand.NewSource(cfg.payloadSeed)))

	var res result
	switch cfg.mode {
	case modeRelay:
		res, err = runRelay(context.Background(), cfg)
	case modeSubmit:
		res, err = runSubmit(context.Background(), cfg)
	}
	if err != nil {
		exitErr(err)
	}

	if jsonOut {
		if err := json.NewEncoder(os.Stdout).Encode(res); err != nil {
			exitErr(err)
		}

		return
	}

	fmt.Printf(
		"RESULT mode=%s store=%s records=%d accepted=%d persisted=%d dropped=%d duration=%s throughput=%.0f/s "+
			"submit_p99=%.2fms tick_p99=%.2fms producers=%d pool=%d payload=%dB\n",
		res.Mode,
		res.Store,
		res.Records,
		res.Accepted,
		res.Persisted,
		res.Dropped,
		res.Duration,
		res.Throughput,
		res.SubmitP99Ms,
		res.TickP99Ms,
		res.Producers,
		res.PoolSize,
		res.PayloadBytes,
	)
}

type countingStore interface {
	msgrelay.Store
	Count(ctx context.Context) (int, error)
}

// runRelay starts a server in-process and measures producers through to persisted rows.
func runRelay(ctx context.Context, cfg benchConfig) (result, error) {
	if cfg.records <= 0 {
		return result{}, errRecordsRequired
	}

	dir, err := os.MkdirTemp("", "msgrelay-bench-")
	if err != nil {
		return result{}, err
	}
	defer os.RemoveAll(dir)

	store, storeName, connection, closeStore, err := openBenchStore(ctx, cfg, dir)
	if err != nil {
		return result{}, err
	}
	defer closeStore()

	baseline, err := store.Count(ctx)
	if err != nil {
		return result{}, fmt.Errorf("msgrelay-bench: baseline count: %w", err)
	}

	endpoint := cfg.endpoint
	if endpoint == "" {
		endpoint = filepath.Join(dir, "bench.sock")
	}
	channel, err := ipc.Listen(endpoint)
	if err != nil {
		return result{}, err
	}

	metrics := &benchMetrics{}
	server := msgrelay.NewServer(store, channel,
		msgrelay.WithConnectionString(connection),
		msgrelay.WithPoolSize(cfg.poolSize),
		msgrelay.WithMonitorInterval(cfg.monitorInterval),
		msgrelay.WithForwardInterval(cfg.forwardInterval),
		msgrelay.WithMetrics(metrics),
	)
	if err := server.Start(ctx); err != nil {
		_ = channel.Close()
		return result{}, err
	}

	allocStart := sampleAlloc()
	start := time.Now()
	submit := runProducers(ctx, cfg, endpoint)
	submitDuration := time.Since(start)

	drainErr := waitDrained(ctx, cfg, metrics, submit.accepted.Load())
	duration := time.Since(start)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.drainTimeout)
	defer cancel()
	stopErr := server.Stop(stopCtx)
	alloc := sampleAlloc().since(allocStart)

	rows, err := store.Count(ctx)
	if err != nil {
		return result{}, fmt.Errorf("msgrelay-bench: final count: %w", err)
	}

	res := newResult(cfg, submit, submitDuration, duration, alloc)
	res.Store = storeName
	res.PoolSize = cfg.poolSize
	res.ForwardInterval = cfg.forwardInterval
	res.StoredRows = rows - baseline
	metrics.fill(&res)
	if duration > 0 {
		res.Throughput = float64(res.Persisted) / duration.Seconds()
	}

	if err := errors.Join(drainErr, stopErr); err != nil {
		return res, err
	}
	if int64(res.StoredRows) != res.Persisted {
		return res, fmt.Errorf("%w: stored=%d persisted=%d", errPersistMismatch, res.StoredRows, res.Persisted)
	}

	return res, nil
}

// runSubmit measures producer latency against an already running relay.
func runSubmit(ctx context.Context, cfg benchConfig) (result, error) {
	if cfg.records <= 0 {
		return result{}, errRecordsRequired
	}
	if cfg.endpoint == "" {
		return result{}, errEndpointRequired
	}

	allocStart := sampleAlloc()
	start := time.Now()
	submit := runProducers(ctx, cfg, cfg.endpoint)
	duration := time.Since(start)

	res := newResult(cfg, submit, duration, duration, sampleAlloc().since(allocStart))
	if duration > 0 {
		res.Throughput = float64(res.Accepted) / duration.Seconds()
	}

	return res, nil
}

func openBenchStore(ctx context.Context, cfg benchConfig, dir string) (countingStore, string, string, func(), error) {
	if cfg.dsn != "" {
		db, err := mysql.OpenDB(cfg.dsn)
		if err != nil {
			return nil, "", "", nil, err
		}
		store, err := mysql.NewStore(db, mysql.WithTable(cfg.table))
		if err != nil {
			_ = db.Close()
			return nil, "", "", nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, "", "", nil, err
		}

		return store, "mysql", cfg.dsn, func() { _ = db.Close() }, nil
	}

	path := filepath.Join(dir, "bench.db")
	store, err := sqlite.Open(sqlite.Config{Path: path, Table: cfg.table})
	if err != nil {
		return nil, "", "", nil, err
	}

	return store, "sqlite", path, func() { _ = store.Close() }, nil
}

type submitStats struct {
	accepted atomic.Int64
	rejected atomic.Int64
	timeouts atomic.Int64
	latency  durationStats
}

// done counts submits that finished, whatever the outcome.
func (s *submitStats) done() int64 {
	return s.accepted.Load() + s.rejected.Load() + s.timeouts.Load()
}

func runProducers(ctx context.Context, cfg benchConfig, endpoint string) *submitStats {
	stats := &submitStats{}
	producers := max(cfg.producers, 1)

	progressCtx, stopProgress := context.WithCancel(ctx)
	if cfg.progress && cfg.progressInterval > 0 {
		go reportProgress(progressCtx, os.Stderr, cfg, stats)
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				seq := next.Add(1)
				if seq > int64(cfg.records) {
					return
				}
				submitOne(ctx, cfg, endpoint, seq, stats)
			}
		}()
	}
	wg.Wait()

	stopProgress()
	if cfg.progress {
		fmt.Fprintln(os.Stderr, progressDoneLine(cfg, stats))
	}

	return stats
}

func submitOne(ctx context.Context, cfg benchConfig, endpoint string, seq int64, stats *submitStats) {
	message := fmt.Sprintf("%d:%s", seq, cfg.payload)

	submitCtx, cancel := context.WithTimeout(ctx, cfg.submitTimeout)
	defer cancel()

	start := time.Now()
	err := ipc.SubmitTo(submitCtx, endpoint, message)
	switch {
	case err == nil:
		stats.latency.Add(time.Since(start))
		stats.accepted.Add(1)
	case errors.Is(err, ipc.ErrSubmitTimeout):
		stats.timeouts.Add(1)
	default:
		stats.rejected.Add(1)
	}
}

func waitDrained(ctx context.Context, cfg benchConfig, metrics *benchMetrics, target int64) error {
	deadline := time.NewTimer(cfg.drainTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(defaultDrainPoll)
	defer ticker.Stop()

	for {
		if metrics.handled() >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: handled=%d target=%d", errDrainTimeout, metrics.handled(), target)
		case <-ticker.C:
		}
	}
}

func newResult(cfg benchConfig, submit *submitStats, submitDuration, duration time.Duration, alloc allocStats) result {
	latency := submit.latency.Snapshot()

	return result{
		Mode:           cfg.mode,
		Records:        cfg.records,
		Producers:      cfg.producers,
		PayloadBytes:   len(cfg.payload),
		PayloadRandom:  cfg.payloadRandom,
		Accepted:       submit.accepted.Load(),
		Rejected:       submit.rejected.Load(),
		Timeouts:       submit.timeouts.Load(),
		SubmitDuration: submitDuration,
		Duration:       duration,
		SubmitP50Ms:    msFloat(latency.P50),
		SubmitP99Ms:    msFloat(latency.P99),
		SubmitMaxMs:    msFloat(latency.Max),
		GoTotalAllocB:  alloc.Bytes,
		GoNumGC:        alloc.GC,
	}
}

func parseMode(value string) (mode, error) {
	switch value {
	case string(modeRelay):
		return modeRelay, nil
	case string(modeSubmit):
		return modeSubmit, nil
	default:
		return "", fmt.Errorf("%w: %s", errInvalidMode, value)
	}
}

func buildPayload(size int, random bool, rng *rand.Rand) []byte {
	if size <= 0 {
		size = 1
	}
	data := make([]byte, size)
	if random {
		if rng == nil {
			// #nosec G404 -- deterministic RNG for benchmark payloads.
			rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
		for i := range data {
			data[i] = alphabet[rng.Intn(len(alphabet))]
		}
	} else {
		for i := range data {
			data[i] = 'a'
		}
	}

	return data
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
