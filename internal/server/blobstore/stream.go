package blobstore

import (
	"errors"
	"io"
	"iter"
	"sync"
	"sync/atomic"
)

// ErrStreamConsumed is yielded when a ChunkStream is iterated a second time
// or after it was closed.
var ErrStreamConsumed = errors.New("chunk stream already consumed")

// ChunkStream yields an object's bytes in fixed-size chunks. The underlying
// body is closed exactly once: when iteration ends for any reason, or on
// Close if the stream is never iterated.
type ChunkStream struct {
	body      io.ReadCloser
	chunkSize int
	// Size is the object length reported by the store, -1 when unknown.
	Size int64

	used     atomic.Bool
	once     sync.Once
	closeErr error
}

// NewChunkStream wraps body. A non-positive chunkSize falls back to DefaultChunkSize.
func NewChunkStream(body io.ReadCloser, chunkSize int, size int64) *ChunkStream {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ChunkStream{body: body, chunkSize: chunkSize, Size: size}
}

// All returns a single-use sequence of chunks. Each chunk is only valid until
// the next iteration step; callers that keep it must copy it.
func (s *ChunkStream) All() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if !s.used.CompareAndSwap(false, true) {
			yield(nil, ErrStreamConsumed)
			return
		}
		defer s.closeBody()

		buf := make([]byte, s.chunkSize)
		for {
			n, err := io.ReadFull(s.body, buf)
			if n > 0 {
				if !yield(buf[:n], nil) {
					return
				}
			}
			switch {
			case err == nil:
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				return
			default:
				yield(nil, classify("read", err))
				return
			}
		}
	}
}

// WriteTo drains the stream into w.
func (s *ChunkStream) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for chunk, err := range s.All() {
		if err != nil {
			return total, err
		}
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close releases the body. It is safe to call more than once and after
// iteration; a stream closed before iteration can no longer be iterated.
func (s *ChunkStream) Close() error {
	s.used.Store(true)
	return s.closeBody()
}

func (s *ChunkStream) closeBody() error {
	s.once.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
