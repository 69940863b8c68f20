/*
   Copyright The containerd Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package zstream

import "errors"

// Status is the flat result-code classification shared by every entry point.
// The values match the classic zlib return codes so callers ported from a
// C-ABI surface keep their switch statements unchanged.
type Status int

const (
	Ok           Status = 0
	StreamEnd    Status = 1
	NeedDict     Status = 2
	Errno        Status = -1
	StreamError  Status = -2
	DataError    Status = -3
	MemError     Status = -4
	BufError     Status = -5
	VersionError Status = -6
)

// Flush selects how much pending output a step call must emit.
type Flush int

const (
	NoFlush      Flush = 0
	PartialFlush Flush = 1
	SyncFlush    Flush = 2
	FullFlush    Flush = 3
	Finish       Flush = 4
	Block        Flush = 5
	Trees        Flush = 6
)

// Compression levels.
const (
	NoCompression      = 0
	BestSpeed          = 1
	BestCompression    = 9
	DefaultCompression = -1
)

// Compression strategies. Backends that have no strategy knob treat these
// as hints; HuffmanOnly is honored by the pure-Go backend.
const (
	DefaultStrategy = 0
	Filtered        = 1
	HuffmanOnly     = 2
	RLE             = 3
	Fixed           = 4
)

// Deflated is the only supported compression method.
const Deflated = 8

// Window-bits conventions: 8..15 select a zlib wrapper, negative values a
// raw deflate stream, +16 a gzip wrapper, and +32 (inflate only) automatic
// zlib/gzip detection.
const (
	MinWindowBits = 8
	MaxWindowBits = 15
	DefMemLevel   = 8

	gzipWrapOffset = 16
	autoWrapOffset = 32

	// maxDictSize is the sliding-window limit; longer dictionaries keep
	// only their most recent bytes.
	maxDictSize = 1 << 15
)

var (
	ErrStream  = errors.New("stream state error")
	ErrData    = errors.New("data error")
	ErrMem     = errors.New("insufficient memory")
	ErrBuf     = errors.New("buffer error")
	ErrVersion = errors.New("incompatible version")
	ErrErrno   = errors.New("file error")
)

func (s Status) String() string {
	switch s {
	case Ok:
		return "OK"
	case StreamEnd:
		return "stream end"
	case NeedDict:
		return "need dictionary"
	case Errno:
		return "file error"
	case StreamError:
		return "stream error"
	case DataError:
		return "data error"
	case MemError:
		return "insufficient memory"
	case BufError:
		return "buffer error"
	case VersionError:
		return "incompatible version"
	}
	return "unknown status"
}

// Err converts a Status into a Go error. Ok and StreamEnd are successful
// outcomes and yield nil. NeedDict is intentionally non-nil: a caller that
// did not expect it must treat it as a failure.
func (s Status) Err() error {
	switch s {
	case Ok, StreamEnd:
		return nil
	case NeedDict:
		return errors.New("dictionary required")
	case Errno:
		return ErrErrno
	case StreamError:
		return ErrStream
	case DataError:
		return ErrData
	case MemError:
		return ErrMem
	case BufError:
		return ErrBuf
	case VersionError:
		return ErrVersion
	}
	return errors.New(s.String())
}

// ZError mirrors the classic zError helper: a static description for a
// result code, usable in diagnostics without allocating.
func ZError(s Status) string { return s.String() }
