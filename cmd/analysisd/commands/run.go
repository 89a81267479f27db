package commands

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/analysisd/pkg/action"
	"github.com/Sumatoshi-tech/analysisd/pkg/config"
	"github.com/Sumatoshi-tech/analysisd/pkg/library"
	"github.com/Sumatoshi-tech/analysisd/pkg/observability"
	"github.com/Sumatoshi-tech/analysisd/pkg/pipeline"
	"github.com/Sumatoshi-tech/analysisd/pkg/version"
)

// stdinPath selects standard input as the action source.
const stdinPath = "-"

// maxLineBytes bounds a single action document.
const maxLineBytes = 1 << 20

// serverShutdownTimeout bounds the metrics server drain.
const serverShutdownTimeout = 3 * time.Second

// ErrPipelineFaulted is returned when the pipeline ends with a fault.
var ErrPipelineFaulted = errors.New("pipeline faulted")

// ErrNotReady is reported by /readyz once the pipeline has faulted.
var ErrNotReady = errors.New("pipeline not ready")

type runCommand struct {
	flags       *globalFlags
	inputPath   string
	metricsAddr string
}

func newRunCommand(flags *globalFlags) *cobra.Command {
	rc := &runCommand{flags: flags}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run actions through the analysis pipeline",
		Long: `Restore pending actions from the state file, then read newline-delimited
JSON actions and post them to the pipeline. The pipeline drains on end of
input and is canceled on SIGINT or SIGTERM; unfinished actions stay in the
state file for the next run.`,
		Args: cobra.NoArgs,
		RunE: rc.run,
	}

	cmd.Flags().StringVarP(&rc.inputPath, "input", "i", stdinPath, "Action source file, or - for stdin")
	cmd.Flags().StringVar(&rc.metricsAddr, "metrics-addr", "", "Serve /metrics, /healthz and /readyz on this address")

	return cmd
}

// feedResult counts what happened to the input lines.
type feedResult struct {
	Lines    int
	Posted   int
	Skipped  int
	Rejected int
}

type poster interface {
	Post(act *action.Action) bool
}

func (rc *runCommand) run(cmd *cobra.Command, _ []string) error {
	started := time.Now()

	cfg, err := rc.flags.load()
	if err != nil {
		return err
	}

	if rc.metricsAddr != "" {
		cfg.Server.MetricsAddr = rc.metricsAddr
	}

	providers, err := observability.InitWithWriter(cfg.Telemetry(observability.ModeRun, version.Version), cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", slog.Any("error", shutdownErr))
		}
	}()

	logger := providers.Logger

	lib, err := library.Open(library.Config{DSN: cfg.Library.DSN, Debug: cfg.Library.Debug, Logger: logger})
	if err != nil {
		return err
	}

	defer func() {
		closeErr := lib.Close()
		if closeErr != nil {
			logger.Warn("close library failed", slog.Any("error", closeErr))
		}
	}()

	pipe, err := rc.newPipeline(cmd.Context(), cfg, lib, providers)
	if err != nil {
		return err
	}

	if cfg.Server.MetricsAddr != "" {
		stopServer := serveOps(cfg.Server.MetricsAddr, providers, logger,
			lib.Ping,
			func(context.Context) error {
				if pipe.State() == pipeline.StateFaulted || pipe.Outcome() == pipeline.OutcomeFaulted {
					return ErrNotReady
				}

				return nil
			},
		)
		defer stopServer()
	}

	restored, err := pipe.Restore(cmd.Context())
	if err != nil {
		abort(pipe)

		return err
	}

	input, err := rc.openInput(cmd)
	if err != nil {
		abort(pipe)

		return err
	}

	defer func() { _ = input.Close() }()

	result := drive(cmd.Context(), pipe, input, logger)

	waitErr := pipe.Completion().Wait(context.Background())

	writeSummary(cmd.OutOrStdout(), pipe, restored, result, time.Since(started))

	if waitErr != nil {
		return fmt.Errorf("%w: %w", ErrPipelineFaulted, waitErr)
	}

	return nil
}

func (rc *runCommand) newPipeline(
	ctx context.Context,
	cfg *config.Config,
	lib *library.Library,
	providers observability.Providers,
) (*pipeline.Pipeline, error) {
	pcfg, err := cfg.PipelineConfig()
	if err != nil {
		return nil, err
	}

	store, err := pendingStore(cfg)
	if err != nil {
		return nil, err
	}

	metrics, err := observability.NewPipelineMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("create pipeline metrics: %w", err)
	}

	return pipeline.New(ctx, pipeline.Deps{
		Index:    lib,
		Analyzer: lib,
		Store:    store,
		Logger:   providers.Logger,
		Metrics:  metrics,
		Tracer:   providers.Tracer,
	}, pcfg)
}

func (rc *runCommand) openInput(cmd *cobra.Command) (io.ReadCloser, error) {
	if rc.inputPath == stdinPath {
		if rd, ok := cmd.InOrStdin().(io.ReadCloser); ok {
			return rd, nil
		}

		return io.NopCloser(cmd.InOrStdin()), nil
	}

	file, err := os.Open(rc.inputPath)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	return file, nil
}

// abort cancels pipe and waits for its final state write.
func abort(pipe *pipeline.Pipeline) {
	pipe.Cancel()

	_ = pipe.Completion().Wait(context.Background())
}

// feedGrace bounds the wait for the reader to stop after input is closed.
const feedGrace = time.Second

// drive feeds input into the pipeline until end of input, a signal, or the
// pipeline stopping on its own. On a signal the pipeline is canceled, input
// is closed to unblock the reader, and the lines read so far are reported.
func drive(ctx context.Context, pipe *pipeline.Pipeline, input io.ReadCloser, logger *slog.Logger) feedResult {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var counts feedCounts

	fed := make(chan struct{})

	go func() {
		defer close(fed)

		feed(sigCtx, input, pipe, logger, &counts)
	}()

	select {
	case <-fed:
		if sigCtx.Err() == nil {
			pipe.Complete()

			return counts.result()
		}

		logger.Info("interrupted, canceling pipeline")
		pipe.Cancel()

		return counts.result()
	case <-sigCtx.Done():
		logger.Info("interrupted, canceling pipeline")
		pipe.Cancel()
	case <-pipe.Completion().Done():
	}

	closeErr := input.Close()
	if closeErr != nil {
		logger.Debug("close input", slog.Any("error", closeErr))
	}

	select {
	case <-fed:
	case <-time.After(feedGrace):
		logger.Warn("input reader still blocked, reporting partial counts")
	}

	return counts.result()
}

// feedCounts is updated by the reader and read by drive at any time.
type feedCounts struct {
	lines    atomic.Int64
	posted   atomic.Int64
	skipped  atomic.Int64
	rejected atomic.Int64
}

func (c *feedCounts) result() feedResult {
	return feedResult{
		Lines:    int(c.lines.Load()),
		Posted:   int(c.posted.Load()),
		Skipped:  int(c.skipped.Load()),
		Rejected: int(c.rejected.Load()),
	}
}

// feed decodes one action per line and posts it until input ends or ctx is
// done. Blank lines are ignored; lines that fail schema validation are
// logged and skipped.
func feed(ctx context.Context, input io.Reader, sink poster, logger *slog.Logger, counts *feedCounts) {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineBytes)

	for ctx.Err() == nil && scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		lineNo := counts.lines.Add(1)

		act, err := action.Decode(line)
		if err != nil {
			counts.skipped.Add(1)

			logger.Warn("skipping invalid action", slog.Int64("line", lineNo), slog.Any("error", err))

			continue
		}

		if ctx.Err() != nil || !sink.Post(act) {
			counts.rejected.Add(1)

			continue
		}

		counts.posted.Add(1)
	}

	scanErr := scanner.Err()
	if scanErr != nil && ctx.Err() == nil {
		logger.Error("read input failed", slog.Any("error", scanErr))
	}
}

func serveOps(addr string, providers observability.Providers, logger *slog.Logger, checks ...observability.ReadyCheck) func() {
	mux := http.NewServeMux()
	mux.Handle("/healthz", observability.HealthHandler())
	mux.Handle("/readyz", observability.ReadyHandler(checks...))

	if providers.MetricsHandler != nil {
		mux.Handle("/metrics", providers.MetricsHandler)
	}

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: serverShutdownTimeout}

	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("addr", addr), slog.Any("error", err))
		}
	}()

	logger.Info("serving metrics", slog.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()

		_ = srv.Shutdown(ctx)
	}
}

func writeSummary(out io.Writer, pipe *pipeline.Pipeline, restored int, result feedResult, elapsed time.Duration) {
	stats := pipe.Stats()

	fmt.Fprintf(out, "outcome:    %s\n", pipe.Outcome())
	fmt.Fprintf(out, "input:      %s lines, %s posted, %s skipped, %s rejected\n",
		humanize.Comma(int64(result.Lines)), humanize.Comma(int64(result.Posted)),
		humanize.Comma(int64(result.Skipped)), humanize.Comma(int64(result.Rejected)))
	fmt.Fprintf(out, "restored:   %s\n", humanize.Comma(int64(restored)))
	fmt.Fprintf(out, "completed:  %s (%s failed) in %s batches\n",
		humanize.Comma(stats.Completed), humanize.Comma(stats.Failed), humanize.Comma(stats.Batches))
	fmt.Fprintf(out, "duplicates: %s\n", humanize.Comma(stats.Duplicates))
	fmt.Fprintf(out, "pending:    %s\n", humanize.Comma(int64(stats.Pending)))
	fmt.Fprintf(out, "writes:     %s (%s failed, %s coalesced)\n",
		humanize.Comma(stats.Writes), humanize.Comma(stats.WriteFailures), humanize.Comma(stats.Coalesced))
	fmt.Fprintf(out, "elapsed:    %s\n", elapsed.Round(time.Millisecond))
}
