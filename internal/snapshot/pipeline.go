// Package snapshot fetches still images from a camera source and resizes
// them on demand, coalescing concurrent requests into one transcoder run.
package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/smazurov/camstream/internal/config"
	"github.com/smazurov/camstream/internal/ffmpeg"
	"github.com/smazurov/camstream/internal/logging"
	"github.com/smazurov/camstream/internal/process"
	"github.com/smazurov/camstream/internal/resolution"
)

// CacheWindow is how long a finished fetch keeps answering new requests.
const CacheWindow = 3 * time.Second

// ErrNoData is returned when the transcoder exits without writing an image.
var ErrNoData = errors.New("failed to fetch snapshot: no data produced")

// FetchResult describes one completed fetch.
type FetchResult struct {
	Camera  string
	Elapsed time.Duration
	Bytes   int
	Err     error
}

// Options configures a Pipeline.
type Options struct {
	Camera     string
	Executable string
	Config     config.VideoConfig
	Unbridge   bool // camera runs outside the shared bridge
	Logger     *slog.Logger

	// CacheWindow overrides the default retention of a finished fetch.
	CacheWindow time.Duration

	// OnFetch is called after every fetch completes.
	OnFetch func(FetchResult)
}

// fetch is a single in-flight or cached transcoder run.
type fetch struct {
	done chan struct{}
	data []byte
	err  error
}

// Pipeline serves snapshots for one camera.
type Pipeline struct {
	opts   Options
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	current *fetch
	expiry  *time.Timer
}

// New creates a snapshot pipeline.
func New(opts Options) *Pipeline {
	if opts.Executable == "" {
		opts.Executable = ffmpeg.DefaultExecutable
	}
	if opts.CacheWindow <= 0 {
		opts.CacheWindow = CacheWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("snapshot")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		opts:   opts,
		logger: logger.With("component", "snapshot"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// FetchArgs returns the still-image extraction arguments.
func FetchArgs(cfg config.VideoConfig, filter string) *ffmpeg.Args {
	source := cfg.StillImageSource
	if source == "" {
		source = cfg.Source
	}
	return ffmpeg.NewArgs().
		Raw(source).
		Opt("-frames:v", 1).
		OptIf(filter != "", "-filter:v", filter).
		Opt("-f", "image2").
		Output("-").
		Flag("-hide_banner").
		Opt("-loglevel", "error")
}

// ResizeArgs returns the arguments that re-filter an image read from stdin.
func ResizeArgs(filter string) *ffmpeg.Args {
	return ffmpeg.NewArgs().
		Opt("-i", "pipe:").
		Opt("-frames:v", 1).
		OptIf(filter != "", "-filter:v", filter).
		Opt("-f", "image2").
		Output("-")
}

// Fetch returns the in-flight or cached image, starting a new transcoder
// run only when neither exists.
func (p *Pipeline) Fetch(ctx context.Context, filter string) ([]byte, error) {
	f, _ := p.acquire(filter)
	select {
	case <-f.done:
		return f.data, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// acquire returns the current fetch, starting one if needed. The boolean
// reports whether an existing fetch was reused.
func (p *Pipeline) acquire(filter string) (*fetch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		return p.current, true
	}

	f := &fetch{done: make(chan struct{})}
	p.current = f
	go p.run(f, filter)
	return f, false
}

func (p *Pipeline) run(f *fetch, filter string) {
	args := FetchArgs(p.opts.Config, filter)
	p.logger.Debug("Snapshot command", "command", p.opts.Executable+" "+args.String())

	start := time.Now()
	f.data, f.err = p.extract(args)
	elapsed := time.Since(start)

	close(f.done)
	p.expire(f)
	p.logElapsed(elapsed)

	if p.opts.OnFetch != nil {
		p.opts.OnFetch(FetchResult{Camera: p.opts.Camera, Elapsed: elapsed, Bytes: len(f.data), Err: f.err})
	}
}

func (p *Pipeline) extract(args *ffmpeg.Args) ([]byte, error) {
	cmd := exec.CommandContext(p.ctx, p.opts.Executable, args.Tokens()...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", process.ErrSpawn, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", process.ErrSpawn, err)
	}

	p.logDiagnostics(stderr)
	_ = cmd.Wait()

	if stdout.Len() == 0 {
		return nil, ErrNoData
	}
	return stdout.Bytes(), nil
}

// logDiagnostics logs every non-empty line as an error. The extraction runs
// with -loglevel error so nothing else is expected.
func (p *Pipeline) logDiagnostics(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			p.logger.Error(line)
		}
	}
	_, _ = io.Copy(io.Discard, r)
}

// expire clears the cached fetch once the window has passed.
func (p *Pipeline) expire(f *fetch) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.expiry != nil {
		p.expiry.Stop()
	}
	p.expiry = time.AfterFunc(p.opts.CacheWindow, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.current == f {
			p.current = nil
		}
	})
}

func (p *Pipeline) logElapsed(elapsed time.Duration) {
	level := process.LatencyLevel(elapsed)
	msg := fmt.Sprintf("Fetching snapshot took %.3f seconds", elapsed.Seconds())

	if level > slog.LevelDebug && !p.opts.Unbridge {
		msg += ". It is highly recommended you switch to unbridge mode"
	}
	if level >= slog.LevelError {
		msg += ". The request has likely timed out and the viewer did not receive a refreshed snapshot"
	}
	p.logger.Log(context.Background(), level, msg)
}

// Resize re-filters an image through a second transcoder run. The output
// is returned as produced, even when empty.
func (p *Pipeline) Resize(ctx context.Context, image []byte, filter string) ([]byte, error) {
	args := ResizeArgs(filter)
	p.logger.Debug("Resize command", "command", p.opts.Executable+" "+args.String())

	cmd := exec.CommandContext(ctx, p.opts.Executable, args.Tokens()...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stdin = bytes.NewReader(image)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", process.ErrSpawn, err)
	}
	// TODO: a failed resize exits non-zero with no output, and the snapshot
	// endpoint then answers 200 with an empty image/jpeg body. Return the
	// exit error and map it to 502.
	_ = cmd.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// HandleSnapshotRequest negotiates the snapshot size, reuses or starts a
// fetch and resizes the result for the requester.
func (p *Pipeline) HandleSnapshotRequest(ctx context.Context, width, height int) ([]byte, error) {
	res := resolution.Resolve(width, height, p.opts.Config, true)
	p.logger.Debug("Snapshot requested", "width", width, "height", height)

	f, cached := p.acquire(res.SnapFilter)
	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.err != nil {
		p.logger.Error("Snapshot failed", "error", f.err)
		return nil, f.err
	}

	p.logger.Debug("Sending snapshot",
		"width", dimension(res.Width),
		"height", dimension(res.Height),
		"cached", cached)

	resized, err := p.Resize(ctx, f.data, res.ResizeFilter)
	if err != nil {
		p.logger.Error("Snapshot resize failed", "error", err)
		return nil, err
	}
	return resized, nil
}

// Close cancels an in-flight fetch and drops the cache.
func (p *Pipeline) Close() {
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.expiry != nil {
		p.expiry.Stop()
	}
	p.current = nil
}

func dimension(v int) any {
	if v > 0 {
		return v
	}
	return "native"
}
