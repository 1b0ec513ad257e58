package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/reelbox/reelbox-agent/internal/logging"
)

const (
	maxStderrBytes  = 8 * 1024
	stopGracePeriod = 5 * time.Second
	readBufferSize  = 32 * 1024
)

// FFmpegEncoder records InputSource streams by running ffmpeg with the
// container written to stdout.
type FFmpegEncoder struct {
	ffmpegPath string
	doctor     *Doctor
	logger     *slog.Logger
}

func NewFFmpegEncoder(ffmpegPath string, doctor *Doctor, logger *slog.Logger) *FFmpegEncoder {
	return &FFmpegEncoder{
		ffmpegPath: ffmpegPath,
		doctor:     doctor,
		logger:     logging.WithComponent(logging.OrDiscard(logger), "encoder"),
	}
}

func (e *FFmpegEncoder) Supports(ctx context.Context, mimeType string) bool {
	spec, ok := lookupCodec(mimeType)
	if !ok {
		return false
	}
	caps, err := e.doctor.Get(ctx)
	if err != nil {
		return false
	}
	return caps.Has(spec.VideoCodec, spec.AudioCodec)
}

// Args builds the ffmpeg command line for recording src as mimeType.
func Args(src InputSource, c Constraints, mimeType string) ([]string, error) {
	spec, ok := lookupCodec(mimeType)
	if !ok {
		return nil, &UnsupportedFormatError{Tried: []string{mimeType}}
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, src.InputArgs()...)
	args = append(args, "-c:v", spec.VideoCodec)
	if c.Audio {
		args = append(args, "-c:a", spec.AudioCodec)
	} else {
		args = append(args, "-an")
	}
	args = append(args, spec.Extra...)
	args = append(args, "-f", spec.Format, "pipe:1")
	return args, nil
}

func (e *FFmpegEncoder) Start(ctx context.Context, stream Stream, mimeType string, timeslice time.Duration) (Encoding, error) {
	src, ok := stream.(InputSource)
	if !ok {
		return nil, fmt.Errorf("stream %s cannot be opened by ffmpeg", stream.ID())
	}
	args, err := Args(src, stream.Constraints(), mimeType)
	if err != nil {
		return nil, err
	}

	// Not CommandContext: Stop must be able to finish the container after
	// the starting request's context is gone.
	cmd := exec.Command(e.ffmpegPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	enc := &ffmpegEncoding{
		cmd:    cmd,
		stdin:  stdin,
		chunks: make(chan []byte, 16),
		exited: make(chan struct{}),
		logger: e.logger,
	}
	cmd.Stderr = &limitedWriter{w: &enc.stderr, limit: maxStderrBytes}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	e.logger.Info("encoder started", "mime_type", mimeType, "pid", cmd.Process.Pid, "stream_id", stream.ID())

	reads := make(chan []byte, 16)
	go readLoop(stdout, reads)
	go enc.flushLoop(reads, timeslice)
	go func() {
		enc.waitErr = cmd.Wait()
		close(enc.exited)
	}()

	return enc, nil
}

type ffmpegEncoding struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	chunks chan []byte
	logger *slog.Logger

	stderr  bytes.Buffer
	exited  chan struct{}
	waitErr error

	stopOnce sync.Once
	stopErr  error
}

func (e *ffmpegEncoding) Chunks() <-chan []byte {
	return e.chunks
}

// Stop sends "q" so ffmpeg writes the container trailer, then waits for
// the process to exit. ffmpeg is killed after a grace period.
func (e *ffmpegEncoding) Stop() error {
	e.stopOnce.Do(func() {
		_, _ = io.WriteString(e.stdin, "q")
		_ = e.stdin.Close()

		select {
		case <-e.exited:
		case <-time.After(stopGracePeriod):
			e.logger.Warn("encoder did not exit, killing")
			_ = e.cmd.Process.Kill()
			<-e.exited
			e.stopErr = errors.New("encoder killed after stop timeout")
			return
		}

		var exitErr *exec.ExitError
		if e.waitErr != nil && !errors.As(e.waitErr, &exitErr) {
			e.stopErr = e.waitErr
		} else if exitErr != nil && exitErr.ExitCode() != 0 && exitErr.ExitCode() != 255 {
			e.stopErr = fmt.Errorf("ffmpeg exited %d: %s", exitErr.ExitCode(), truncate(e.stderr.String(), 512))
		}
	})
	return e.stopErr
}

func (e *ffmpegEncoding) Abort() {
	e.stopOnce.Do(func() {
		_ = e.stdin.Close()
		_ = e.cmd.Process.Kill()
		<-e.exited
		e.stopErr = errors.New("encoding aborted")
	})
}

func readLoop(r io.Reader, out chan<- []byte) {
	defer close(out)
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out <- append([]byte(nil), buf[:n]...)
		}
		if err != nil {
			return
		}
	}
}

// flushLoop batches stdout reads into one chunk per timeslice and emits
// the remainder once stdout is closed.
func (e *ffmpegEncoding) flushLoop(reads <-chan []byte, timeslice time.Duration) {
	defer close(e.chunks)

	if timeslice <= 0 {
		timeslice = time.Second
	}
	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

	var pending []byte
	for {
		select {
		case b, ok := <-reads:
			if !ok {
				if len(pending) > 0 {
					e.chunks <- pending
				}
				return
			}
			pending = append(pending, b...)
		case <-ticker.C:
			if len(pending) > 0 {
				e.chunks <- pending
				pending = nil
			}
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
