// Package chunk implements the stream chunker (C1): it consumes a byte
// stream and emits fixed-size blocks, buffering across read boundaries so
// that every block except possibly the last is exactly BlockSize bytes.
package chunk

import (
	"context"
	"io"
)

// Chunker slices an io.Reader into fixed-size blocks. It is not safe for
// concurrent use; callers must serialize calls to Next, as the caller
// themselves does in the C3 pipeline (each iteration waits on the
// previous Next before issuing the next one).
type Chunker struct {
	src       io.Reader
	blockSize int
	buf       []byte
	eof       bool
}

// New returns a Chunker reading from src, emitting blocks of blockSize
// bytes (the last block may be shorter).
func New(src io.Reader, blockSize int) *Chunker {
	return &Chunker{
		src:       src,
		blockSize: blockSize,
		buf:       make([]byte, 0, blockSize),
	}
}

// Next returns the next block, or (nil, nil) once the stream and any
// buffered remainder are exhausted. It pulls from the underlying reader
// until either blockSize bytes are buffered or the source reaches EOF,
// propagating any other read error unchanged. Next is the component's
// only suspension point.
func (c *Chunker) Next(ctx context.Context) ([]byte, error) {
	for !c.eof && len(c.buf) < c.blockSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		room := c.blockSize - len(c.buf)
		// Ask only for the bytes still missing from the current block, so
		// the buffer never holds more than blockSize bytes.
		chunkBuf := make([]byte, room)
		n, err := c.src.Read(chunkBuf)
		if n > 0 {
			c.buf = append(c.buf, chunkBuf[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				c.eof = true
				break
			}
			return nil, err
		}
	}

	if len(c.buf) == 0 {
		return nil, nil
	}

	take := c.blockSize
	if take > len(c.buf) {
		take = len(c.buf)
	}
	block := make([]byte, take)
	copy(block, c.buf[:take])
	c.buf = c.buf[take:]
	return block, nil
}
