package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/imroc/req/v3"
)

const userAgent = "mcmap"

// NewClient returns an HTTP client suitable for streaming video downloads.
func NewClient() *req.Client {
	return req.C().
		SetUserAgent(userAgent).
		SetTimeout(0)
}

// CheckURL issues a HEAD request against url and returns ErrUnreachable
// unless the server answers with a 2xx status.
func CheckURL(ctx context.Context, client *req.Client, url string) error {
	resp, err := client.R().SetContext(ctx).Head(url)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s: %s", ErrUnreachable, url, resp.Status)
	}
	return nil
}

type statusError struct {
	status string
}

func (e *statusError) Error() string {
	return "unexpected status " + e.status
}

type opener func(ctx context.Context, offset int64) (io.ReadCloser, error)

func httpOpener(client *req.Client, url string) opener {
	return func(ctx context.Context, offset int64) (io.ReadCloser, error) {
		r := client.R().SetContext(ctx).DisableAutoReadResponse()
		if offset > 0 {
			r.SetHeader("Range", fmt.Sprintf("bytes=%d-", offset))
		}

		resp, err := r.Get(url)
		if err != nil {
			return nil, err
		}

		// A resumed request must honour the range, otherwise the stream
		// would restart from the beginning
		want := http.StatusOK
		if offset > 0 {
			want = http.StatusPartialContent
		}
		if resp.StatusCode != want {
			resp.Body.Close()
			return nil, &statusError{resp.Status}
		}

		return resp.Body, nil
	}
}

// resumableBody reads a remote resource, reopening it from the current
// offset after a transient failure.
type resumableBody struct {
	ctx     context.Context
	open    opener
	rc      io.ReadCloser
	offset  int64
	err     error
	retries int
	backoff time.Duration
}

func newResumableBody(ctx context.Context, open opener, retries int, backoff time.Duration) *resumableBody {
	return &resumableBody{
		ctx:     ctx,
		open:    open,
		retries: retries,
		backoff: backoff,
	}
}

func (b *resumableBody) retry(err error) bool {
	var se *statusError
	if b.retries <= 0 || b.ctx.Err() != nil || errors.As(err, &se) {
		return false
	}
	b.retries--

	select {
	case <-time.After(b.backoff):
	case <-b.ctx.Done():
		return false
	}
	return true
}

func (b *resumableBody) Read(p []byte) (int, error) {
	for {
		if b.rc == nil {
			if b.err != nil {
				if !b.retry(b.err) {
					return 0, b.err
				}
				b.err = nil
			}

			rc, err := b.open(b.ctx, b.offset)
			if err != nil {
				b.err = err
				continue
			}
			b.rc = rc
		}

		n, err := b.rc.Read(p)
		b.offset += int64(n)
		if err == nil || err == io.EOF {
			return n, err
		}

		b.rc.Close()
		b.rc = nil
		b.err = err

		// Hand over what was read, the stream is reopened on the next call
		if n > 0 {
			return n, nil
		}
	}
}

func (b *resumableBody) Close() error {
	if b.rc == nil {
		return nil
	}
	err := b.rc.Close()
	b.rc = nil
	return err
}
