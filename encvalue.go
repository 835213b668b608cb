package ss

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	valueFormatVer1      = 1
	valueFormatVerLatest = valueFormatVer1
)

type valueFlags uint64

const (
	vfVerBit0 = valueFlags(1 << iota)
	vfVerBit1
	vfVerBit2
	vfVerBit3
	vfCompressionBit0
	vfCompressionBit1

	vfVerMask         = (vfVerBit0 | vfVerBit1 | vfVerBit2 | vfVerBit3)
	vfCompressionMask = (vfCompressionBit0 | vfCompressionBit1)
	vfVer1            = vfVerBit0
	vfZstd            = vfCompressionBit0
	vfLZ4             = vfCompressionBit1
	vfSupportedMask   = (vfVer1 | vfZstd | vfLZ4)
	vfDefault         = vfVer1

	minValueSize       = 2
	maxValueHeaderSize = binary.MaxVarintLen64 * 3
)

func (vf valueFlags) ver() valueFlags {
	return vf & vfVerMask
}

// Compression selects how stored values above Options.CompressThreshold are
// compressed.
type Compression int

const (
	CompressZstd Compression = iota
	CompressLZ4
	CompressNone
)

func (c Compression) String() string {
	switch c {
	case CompressZstd:
		return "zstd"
	case CompressLZ4:
		return "lz4"
	case CompressNone:
		return "none"
	default:
		return fmt.Sprintf("compression(%d)", int(c))
	}
}

func ParseCompression(s string) (Compression, error) {
	switch s {
	case "zstd", "":
		return CompressZstd, nil
	case "lz4":
		return CompressLZ4, nil
	case "none":
		return CompressNone, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

// encodeValue wraps payload in a value header:
//
//  1. Flags (uvarint): format version and compression method.
//  2. Uncompressed payload size (uvarint).
//  3. Stored payload size (uvarint).
//  4. Stored payload.
//
// Payloads longer than threshold are compressed unless that does not save
// space. A threshold <= 0 disables compression.
func encodeValue(buf []byte, payload []byte, comp Compression, threshold int) []byte {
	flags := vfDefault
	stored := payload
	if threshold > 0 && len(payload) > threshold {
		switch comp {
		case CompressZstd:
			if c := compressZstd(payload); len(c) < len(payload) {
				flags |= vfZstd
				stored = c
			}
		case CompressLZ4:
			if c := compressLZ4(payload); c != nil && len(c) < len(payload) {
				flags |= vfLZ4
				stored = c
			}
		}
	}

	buf = ensureCapacity(buf, len(buf)+maxValueHeaderSize+len(stored))
	buf = binary.AppendUvarint(buf, uint64(flags))
	buf = binary.AppendUvarint(buf, uint64(len(payload)))
	buf = binary.AppendUvarint(buf, uint64(len(stored)))
	return append(buf, stored...)
}

// decodeValue returns the uncompressed payload. When the value is not
// compressed, the result aliases data.
func decodeValue(data []byte) ([]byte, valueFlags, error) {
	d := makeByteDecoder(data)
	if len(data) < minValueSize {
		return nil, 0, dataErrf(data, 0, nil, "invalid value: at least %d bytes required", minValueSize)
	}

	v, err := d.Uvarint()
	if err != nil {
		return nil, 0, err
	}
	if (v & ^uint64(vfSupportedMask)) != 0 {
		return nil, 0, dataErrf(data, d.Off(), nil, "invalid value: unsupported flags %x", v)
	}
	flags := valueFlags(v)
	if flags.ver() != vfVer1 {
		return nil, 0, dataErrf(data, d.Off(), nil, "invalid value: unsupported version %d", flags.ver())
	}

	size, err := d.Uvarinti()
	if err != nil {
		return nil, 0, err
	}
	stored, err := d.VarBytes()
	if err != nil {
		return nil, 0, err
	}
	if len(d.Buf) != 0 {
		return nil, 0, dataErrf(data, d.Off(), nil, "invalid value: %d trailing bytes", len(d.Buf))
	}

	switch flags & vfCompressionMask {
	case 0:
		if len(stored) != size {
			return nil, 0, dataErrf(data, d.Off(), nil, "invalid value: got %d bytes, expected %d", len(stored), size)
		}
		return stored, flags, nil
	case vfZstd:
		out, err := decompressZstd(stored, size)
		if err != nil {
			return nil, 0, dataErrf(data, d.Off(), err, "invalid value: zstd")
		}
		return out, flags, nil
	case vfLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(stored, out)
		if err != nil || n != size {
			return nil, 0, dataErrf(data, d.Off(), err, "invalid value: lz4 produced %d bytes, expected %d", n, size)
		}
		return out, flags, nil
	default:
		return nil, 0, dataErrf(data, d.Off(), nil, "invalid value: conflicting compression flags %x", v)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func compressZstd(data []byte) []byte {
	enc := getZstdEncoder()
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(data, nil)
}

func decompressZstd(data []byte, size int) ([]byte, error) {
	dec := getZstdDecoder()
	defer zstdDecoderPool.Put(dec)
	out, err := dec.DecodeAll(data, make([]byte, 0, size))
	if err != nil {
		return nil, err
	}
	if len(out) != size {
		return nil, fmt.Errorf("decompressed %d bytes, expected %d", len(out), size)
	}
	return out, nil
}

func compressLZ4(data []byte) []byte {
	out := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, out, nil)
	if err != nil || n == 0 {
		return nil
	}
	return out[:n]
}
