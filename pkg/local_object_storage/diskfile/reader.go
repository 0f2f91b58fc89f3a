package diskfile

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"syscall"

	"go.uber.org/zap"
)

// FragmentValidator checks erasure coded fragment archive chunks while
// they are read. Errors matching ErrInvalidFragment quarantine the object.
type FragmentValidator interface {
	ValidateFragment(chunk []byte) error
}

// Reader streams object data. Reading the whole object from the start
// verifies its size and ETag, a mismatch quarantines the object. Seeking
// disables verification.
type Reader struct {
	d *DiskFile
	f *os.File

	size      int64
	expETag   string
	pos       int64
	buf       []byte
	pending   []byte
	etag      hash.Hash
	validator FragmentValidator
	done      bool
}

// Reader returns data reader of the opened object. The reader takes over
// the data file, DiskFile.Close does not affect it.
func (d *DiskFile) Reader() (*Reader, error) {
	if !d.opened || d.fp == nil {
		return nil, ErrNotOpen
	}

	chunk := d.m.diskChunkSize
	var validator FragmentValidator
	if d.m.isEC() {
		chunk = d.m.policy.FragmentArchiveSize
		validator = d.m.validator
	}

	r := &Reader{
		d:         d,
		f:         d.fp,
		size:      d.size,
		expETag:   d.dataMeta[MetaETag],
		buf:       make([]byte, chunk),
		etag:      md5.New(),
		validator: validator,
	}
	d.fp = nil
	return r, nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	if r.f == nil {
		return 0, ErrNotOpen
	}
	if len(r.pending) == 0 {
		if err := r.fill(); err != nil {
			return 0, err
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *Reader) fill() error {
	if r.done {
		return io.EOF
	}

	n, err := io.ReadFull(r.f, r.buf)
	if n > 0 {
		chunk := r.buf[:n]
		if r.validator != nil {
			if verr := r.validator.ValidateFragment(chunk); verr != nil {
				if errors.Is(verr, ErrInvalidFragment) {
					return r.quarantine(fmt.Sprintf("invalid fragment at offset %d: %v", r.pos, verr))
				}
				return verr
			}
		}
		if r.etag != nil {
			r.etag.Write(chunk)
		}
		r.pos += int64(n)
		r.pending = chunk
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if n > 0 {
			return nil
		}
		return r.finish()
	default:
		return fmt.Errorf("read %s: %w", r.f.Name(), err)
	}
}

// finish verifies data read from the start to the end and returns io.EOF
// or quarantine error.
func (r *Reader) finish() error {
	r.done = true
	if r.etag == nil {
		return io.EOF
	}

	sum := hex.EncodeToString(r.etag.Sum(nil))
	r.etag = nil

	if r.pos != r.size {
		return r.quarantine(fmt.Sprintf("bytes read: %d, does not match metadata: %d", r.pos, r.size))
	}
	if r.expETag != "" && sum != r.expETag {
		return r.quarantine(fmt.Sprintf("ETag %s and file's md5 %s do not match", r.expETag, sum))
	}
	return io.EOF
}

func (r *Reader) quarantine(reason string) error {
	r.done = true
	r.pending = nil
	return r.d.quarantineDir(r.d.hashDir, reason)
}

// Seek implements io.Seeker. Data read after seeking is not verified.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	if r.f == nil {
		return 0, ErrNotOpen
	}

	switch whence {
	case io.SeekCurrent:
		offset += r.pos - int64(len(r.pending))
		whence = io.SeekStart
	}
	pos, err := r.f.Seek(offset, whence)
	if err != nil {
		return 0, err
	}

	r.etag = nil
	r.validator = nil
	r.pending = nil
	r.pos = pos
	r.done = false
	return pos, nil
}

// WriteTo implements io.WriterTo. With zero-copy enabled, data of
// replicated objects is spliced into w if it wraps a file descriptor.
func (r *Reader) WriteTo(w io.Writer) (int64, error) {
	if r.f == nil {
		return 0, ErrNotOpen
	}

	var written int64
	if sc, ok := w.(syscall.Conn); ok && r.canSplice() {
		n, err := r.spliceTo(sc)
		if !errors.Is(err, errSpliceUnsupported) {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			return n, err
		}
		if r.d.m.noSplice.CompareAndSwap(false, true) {
			r.d.m.log.Warn("zero-copy transfer is not available, using buffered reads", zap.Error(err))
		}
	}

	for {
		if len(r.pending) == 0 {
			if err := r.fill(); err != nil {
				if errors.Is(err, io.EOF) {
					return written, nil
				}
				return written, err
			}
		}
		n, err := w.Write(r.pending)
		written += int64(n)
		r.pending = r.pending[n:]
		if err != nil {
			return written, err
		}
	}
}

func (r *Reader) canSplice() bool {
	m := r.d.m
	return m.splice && !m.noSplice.Load() && !m.isEC() && len(r.pending) == 0 && !r.done
}

// Close releases the data file.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
