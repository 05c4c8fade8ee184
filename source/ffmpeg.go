package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/imroc/req/v3"
)

const (
	stderrTail = 4096

	// waitDelay bounds how long ffmpeg's stderr is drained after it exits
	waitDelay = 5 * time.Second
)

// Options control how frames are decoded and fetched.
type Options struct {
	// FFmpeg and FFprobe are the executables to run
	FFmpeg  string
	FFprobe string

	// Client is used for URL sources, NewClient is used if nil
	Client *req.Client

	// Retries bounds how many times a failed download is resumed
	Retries      int
	RetryBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.FFmpeg == "" {
		o.FFmpeg = "ffmpeg"
	}
	if o.FFprobe == "" {
		o.FFprobe = "ffprobe"
	}
	if o.Client == nil {
		o.Client = NewClient()
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 500 * time.Millisecond
	}
	return o
}

// tailBuffer keeps the last bytes written to it.
type tailBuffer struct {
	b []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.b = append(t.b, p...)
	if len(t.b) > stderrTail {
		t.b = t.b[len(t.b)-stderrTail:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.b))
}

type decoder struct {
	Source

	cmd    *exec.Cmd
	stdout *os.File
	stdin  io.ReadCloser
	stderr *tailBuffer
	cancel context.CancelFunc

	// done is closed once ffmpeg has exited and err is set
	done   chan struct{}
	copied chan struct{}
	err    error

	closeOnce sync.Once
}

// Open starts decoding the video file at path.
func Open(ctx context.Context, path string, opts Options) (Source, error) {
	opts = opts.withDefaults()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	info, err := Probe(ctx, opts.FFprobe, path)
	if err != nil {
		return nil, err
	}

	return start(ctx, opts, path, nil, info)
}

// OpenURL checks that url is reachable and then starts decoding it while it
// is being downloaded.
func OpenURL(ctx context.Context, url string, opts Options) (Source, error) {
	opts = opts.withDefaults()

	if err := CheckURL(ctx, opts.Client, url); err != nil {
		return nil, err
	}

	info, err := Probe(ctx, opts.FFprobe, url)
	if err != nil {
		return nil, err
	}

	return start(ctx, opts, "pipe:0", func(ctx context.Context) io.ReadCloser {
		return newResumableBody(ctx, httpOpener(opts.Client, url), opts.Retries, opts.RetryBackoff)
	}, info)
}

// start runs ffmpeg against input. If body is set, the reader it returns is
// copied to ffmpeg's standard input and is bound to a context that is
// cancelled as soon as ffmpeg exits.
func start(ctx context.Context, opts Options, input string, body func(context.Context) io.ReadCloser, info Info) (Source, error) {
	ctx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(ctx, opts.FFmpeg,
		"-v", "error",
		"-noautorotate",
		"-i", input,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)
	cmd.WaitDelay = waitDelay

	d := &decoder{
		cmd:    cmd,
		stderr: new(tailBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	cmd.Stderr = d.stderr

	// Pipes are created here rather than by exec so Wait never closes the
	// read side of stdout under the frame reader, nor waits on the download
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	cmd.Stdout = stdoutW

	var stdinR, stdinW *os.File
	if body != nil {
		if stdinR, stdinW, err = os.Pipe(); err != nil {
			cancel()
			stdoutR.Close()
			stdoutW.Close()
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		cmd.Stdin = stdinR
	}

	if err := cmd.Start(); err != nil {
		cancel()
		for _, f := range []*os.File{stdoutR, stdoutW, stdinR, stdinW} {
			if f != nil {
				f.Close()
			}
		}
		return nil, fmt.Errorf("%w: start %s: %v", ErrDecode, opts.FFmpeg, err)
	}
	stdoutW.Close()

	if body != nil {
		stdinR.Close()
		d.stdin = body(ctx)
		d.copied = make(chan struct{})
		go func() {
			defer close(d.copied)
			io.Copy(stdinW, d.stdin)
			stdinW.Close()
		}()
	}

	go func() {
		defer close(d.done)
		if err := cmd.Wait(); err != nil {
			d.err = fmt.Errorf("%w: ffmpeg: %v: %s", ErrDecode, err, d.stderr)
		}
		// Stops a download ffmpeg will no longer read
		cancel()
	}()

	d.stdout = stdoutR
	d.Source = NewReader(stdoutR, info)

	return d, nil
}

func (d *decoder) Next() (*Frame, error) {
	f, err := d.Source.Next()
	if err == nil {
		return f, nil
	}

	// The stream only ends cleanly if ffmpeg also exited cleanly
	<-d.done
	if d.err != nil {
		return nil, d.err
	}
	return nil, err
}

func (d *decoder) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		d.stdout.Close()
		<-d.done
		if d.copied != nil {
			<-d.copied
			d.stdin.Close()
		}
	})
	return nil
}
