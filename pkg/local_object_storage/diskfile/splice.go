package diskfile

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/sys/unix"
)

// errSpliceUnsupported means nothing was transferred and buffered reads
// must be used instead.
var errSpliceUnsupported = errors.New("splice is not supported")

type pipe struct{ r, w int }

func newPipe() (pipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return pipe{}, err
	}
	return pipe{r: fds[0], w: fds[1]}, nil
}

func (p pipe) close() {
	_ = unix.Close(p.r)
	_ = unix.Close(p.w)
}

// spliceTo moves data from the current position into dst through a pipe.
// A copy of every chunk is teed into a second pipe to keep ETag
// verification.
func (r *Reader) spliceTo(dst syscall.Conn) (int64, error) {
	rc, err := dst.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errSpliceUnsupported, err)
	}

	data, err := newPipe()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errSpliceUnsupported, err)
	}
	defer data.close()

	hashp, err := newPipe()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errSpliceUnsupported, err)
	}
	defer hashp.close()

	src := int(r.f.Fd())
	off := r.pos
	start := off
	defer func() {
		_, _ = r.f.Seek(r.pos, io.SeekStart)
	}()

	for {
		n, err := unix.Splice(src, &off, data.w, nil, len(r.buf), unix.SPLICE_F_MORE)
		if err != nil {
			if r.pos == start {
				return 0, fmt.Errorf("%w: %w", errSpliceUnsupported, err)
			}
			return r.pos - start, fmt.Errorf("splice from %s: %w", r.f.Name(), err)
		}
		if n == 0 {
			return r.pos - start, r.finish()
		}

		if r.etag != nil {
			if t, err := unix.Tee(data.r, hashp.w, int(n), 0); err != nil || t != n {
				if err == nil {
					err = io.ErrShortWrite
				}
				return r.pos - start, fmt.Errorf("tee: %w", err)
			}
		}

		remaining := n
		var werr error
		err = rc.Write(func(fd uintptr) bool {
			for remaining > 0 {
				k, err := unix.Splice(data.r, nil, int(fd), nil, int(remaining), unix.SPLICE_F_MORE)
				if errors.Is(err, unix.EAGAIN) {
					return false
				}
				if err != nil {
					werr = err
					return true
				}
				remaining -= k
			}
			return true
		})
		if err == nil {
			err = werr
		}
		if err != nil {
			if r.pos == start && remaining == n {
				return 0, fmt.Errorf("%w: %w", errSpliceUnsupported, err)
			}
			return r.pos - start, fmt.Errorf("splice to destination: %w", err)
		}

		if r.etag != nil {
			if err := r.drainHash(hashp.r, int(n)); err != nil {
				return r.pos - start, err
			}
		}
		r.pos += n
	}
}

func (r *Reader) drainHash(fd int, n int) error {
	for n > 0 {
		k, err := unix.Read(fd, r.buf[:min(n, len(r.buf))])
		if err != nil {
			return fmt.Errorf("read hash pipe: %w", err)
		}
		r.etag.Write(r.buf[:k])
		n -= k
	}
	return nil
}
