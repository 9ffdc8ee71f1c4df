package dump

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compression selects the codec applied to a dump's content section.
type Compression uint8

const (
	CompNone Compression = iota
	CompZlib
	CompZstd
	CompBrotli
)

var compNames = [...]string{"none", "zlib", "zstd", "brotli"}

func (c Compression) String() string {
	if int(c) < len(compNames) {
		return compNames[c]
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

var ErrCompression = errors.New("dump: unknown compression")

// ParseCompression accepts the names printed by String. The empty string
// means none.
func ParseCompression(s string) (Compression, error) {
	if s == "" {
		return CompNone, nil
	}
	for i, n := range compNames {
		if strings.EqualFold(s, n) {
			return Compression(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrCompression, s)
}

// maxContent bounds decompressed content so a hostile dump cannot exhaust
// memory.
const maxContent = 64 << 20

var (
	zstdEnc = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	zstdDec = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxContent))
	})
)

func compress(c Compression, b []byte) ([]byte, error) {
	switch c {
	case CompNone:
		return b, nil
	case CompZlib:
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(b); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompZstd:
		enc, err := zstdEnc()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(b, nil), nil
	case CompBrotli:
		var buf bytes.Buffer
		bw := brotli.NewWriterLevel(&buf, brotli.BestCompression)
		if _, err := bw.Write(b); err != nil {
			return nil, err
		}
		if err := bw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrCompression, c)
}

func decompress(c Compression, b []byte) ([]byte, error) {
	switch c {
	case CompNone:
		return b, nil
	case CompZlib:
		zr, err := zlib.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readLimited(zr)
	case CompZstd:
		dec, err := zstdDec()
		if err != nil {
			return nil, err
		}
		return dec.DecodeAll(b, nil)
	case CompBrotli:
		return readLimited(brotli.NewReader(bytes.NewReader(b)))
	}
	return nil, fmt.Errorf("%w: %d", ErrCompression, c)
}

func readLimited(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxContent+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxContent {
		return nil, fmt.Errorf("dump: content exceeds %d bytes", maxContent)
	}
	return out, nil
}
