package dispatch

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/navispace/navid/pkg/status"
)

// Body is a request's entity: buffered in memory up to the dispatcher's
// spool threshold, or spooled to a temp file beyond it so a large upload
// doesn't pin its whole size in memory.
type Body struct {
	mem  []byte
	file *os.File
	size int64
}

// Reader returns a fresh reader over the body from its start.
func (b *Body) Reader() io.Reader {
	if b == nil {
		return bytes.NewReader(nil)
	}
	if b.file != nil {
		b.file.Seek(0, io.SeekStart)
		return b.file
	}
	return bytes.NewReader(b.mem)
}

// Size returns the body's length in bytes.
func (b *Body) Size() int64 {
	if b == nil {
		return 0
	}
	return b.size
}

// Close removes the spooled temp file, if any.
func (b *Body) Close() error {
	if b == nil || b.file == nil {
		return nil
	}
	name := b.file.Name()
	err := b.file.Close()
	os.Remove(name)
	return err
}

// readBody reads exactly n bytes (the parsed Content-Length) off br into a
// Body. Bodies up to spoolThreshold buffer in memory; larger bodies spool
// to a temp file under tmpDir via os.CreateTemp, following this codebase's
// chunk-spill-to-disk pattern. maxBodySize bounds the entity before any
// byte is read (0 disables the check); n beyond it fails with
// status.EntityTooLarge.
func readBody(br *bufio.Reader, n int64, spoolThreshold, maxBodySize int64, tmpDir string) (*Body, status.Status) {
	if maxBodySize > 0 && n > maxBodySize {
		return nil, status.EntityTooLarge
	}
	if n <= 0 {
		return &Body{}, status.OK
	}
	if spoolThreshold <= 0 || n <= spoolThreshold {
		buf := make([]byte, n)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, status.Error
		}
		return &Body{mem: buf, size: n}, status.OK
	}

	f, err := os.CreateTemp(tmpDir, "navid-body-*")
	if err != nil {
		return nil, status.Error
	}
	if _, err := io.CopyN(f, br, n); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, status.Error
	}
	return &Body{file: f, size: n}, status.OK
}
