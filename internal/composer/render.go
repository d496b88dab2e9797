package composer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/providers"
	"github.com/aura-studio/aura/internal/supervisor"
)

// StderrTailBytes bounds the stderr tail kept for failure reporting.
const StderrTailBytes = 16 * 1024

type jobIDKey struct{}
type correlationKey struct{}

// WithJobID tags a render context with the owning job.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, jobID)
}

// JobIDFrom returns the job ID tagged on the context.
func JobIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}

// WithCorrelationID tags a render context with the job's correlation ID.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationKey{}, correlationID)
}

// CorrelationIDFrom returns the correlation ID tagged on the context.
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// writeLogHeader writes the per-job log preamble: job identity, render
// resolution, and the resolved command line.
func writeLogHeader(w io.Writer, jobID, correlationID string, spec models.RenderSpec, plan *CommandPlan) {
	fmt.Fprintf(w, "# encoder log for job %s\n", jobID)
	if correlationID != "" {
		fmt.Fprintf(w, "# correlation %s\n", correlationID)
	}
	fmt.Fprintf(w, "# resolution %dx%d @ %d fps\n", spec.Width, spec.Height, spec.FPS)
	fmt.Fprintf(w, "# started %s\n# %s\n\n", time.Now().UTC().Format(time.RFC3339), plan.String())
}

// logStreamLine records one line of encoder stderr in the per-job log.
func logStreamLine(w io.Writer, line string) {
	fmt.Fprintf(w, "[stream] %s\n", line)
}

// Composer renders timelines through the external encoder. It implements
// providers.VideoEncoderProvider and registers as the Local encoder.
type Composer struct {
	detector *BinaryDetector
	sup      *supervisor.Supervisor
	logDir   string
	logger   *slog.Logger
}

// New creates the encoder adapter. Per-job encoder logs land under
// logDir/encoder.
func New(detector *BinaryDetector, sup *supervisor.Supervisor, logDir string, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		detector: detector,
		sup:      sup,
		logDir:   logDir,
		logger:   logger,
	}
}

// Manifest implements providers.Provider.
func (c *Composer) Manifest() providers.Manifest {
	return providers.Manifest{
		Name:                 "FFmpeg",
		Tier:                 providers.TierLocal,
		OnlineRequired:       false,
		SupportsStreaming:    true,
		SupportsCancellation: true,
	}
}

// LogPath returns the encoder log file for a job.
func (c *Composer) LogPath(jobID string) string {
	return filepath.Join(c.logDir, "encoder", jobID+".log")
}

// Render implements providers.VideoEncoderProvider. It spawns the encoder
// through the supervisor, streams stderr to the per-job log while keeping
// a bounded tail, and reports progress parsed from the encoder's status
// lines. On cancellation the subprocess is terminated and the partial
// output removed.
func (c *Composer) Render(ctx context.Context, timeline models.Timeline, spec models.RenderSpec, outPath string, sink func(providers.EncodeProgress)) error {
	info, err := c.detector.Detect(ctx)
	if err != nil {
		return err
	}

	plan, err := BuildCommandPlan(info.Path, timeline, spec, outPath)
	if err != nil {
		return err
	}

	jobID := JobIDFrom(ctx)
	if jobID == "" {
		jobID = fmt.Sprintf("adhoc-%d", time.Now().UnixNano())
	}

	logPath := c.LogPath(jobID)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return models.WrapEngineError(models.CodeEncoderFailure, "creating encoder log directory", err)
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		return models.WrapEngineError(models.CodeEncoderFailure, "creating encoder log file", err)
	}
	defer logFile.Close()

	writeLogHeader(logFile, jobID, CorrelationIDFrom(ctx), spec, plan)

	cmd := exec.Command(plan.Binary, plan.Args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return models.WrapEngineError(models.CodeEncoderFailure, "opening encoder stderr pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return models.WrapEngineError(models.CodeEncoderFailure, "starting encoder", err)
	}

	procName := "encoder-" + jobID
	wait := c.sup.Register(procName, cmd, supervisor.Metadata{Role: "encoder", JobID: jobID})
	defer c.sup.Remove(procName)

	c.logger.Info("encoder started",
		slog.String("job_id", jobID),
		slog.Int("pid", cmd.Process.Pid),
		slog.String("output", outPath),
		slog.Duration("timeline", timeline.TotalDuration),
	)

	tail := newTailBuffer(StderrTailBytes)
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
		var progress renderProgress
		for scanner.Scan() {
			line := scanner.Text()
			logStreamLine(logFile, line)
			tail.WriteLine(line)

			if parseProgressLine(line, &progress) && sink != nil {
				sink(providers.EncodeProgress{
					Percent: percentOf(progress.Time, timeline.TotalDuration),
					Detail:  fmt.Sprintf("frame %d, %.1fx", progress.Frame, progress.Speed),
				})
			}
		}
	}()

	waitDone := make(chan struct{})
	var code int
	var waitErr error
	go func() {
		defer close(waitDone)
		<-scanDone
		code, waitErr = wait()
	}()

	select {
	case <-ctx.Done():
		c.sup.Terminate(procName, 3*time.Second)
		<-waitDone
		_ = os.Remove(outPath)
		fmt.Fprintf(logFile, "\n# canceled %s\n", time.Now().UTC().Format(time.RFC3339))
		return ctx.Err()
	case <-waitDone:
	}

	fmt.Fprintf(logFile, "\n# exited %d at %s\n", code, time.Now().UTC().Format(time.RFC3339))

	if waitErr != nil || code != 0 {
		snippet := tail.String()
		c.logger.Error("encoder failed",
			slog.String("job_id", jobID),
			slog.Int("exit_code", code),
			slog.String("log_path", logPath),
		)
		return &models.ProviderError{
			Provider:   "FFmpeg",
			Code:       models.CodeEncoderFailure,
			Retryable:  true,
			StderrTail: lastLines(snippet, 20),
			LogPath:    logPath,
			Err:        fmt.Errorf("encoder exited with code %d (log %s)", code, logPath),
		}
	}

	if sink != nil {
		sink(providers.EncodeProgress{Percent: 100, Detail: "encode complete"})
	}
	return nil
}
