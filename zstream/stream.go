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

import "time"

// Stream is the caller-owned handle threaded through every streaming
// operation. The zero value is ready for DeflateInit or InflateInit.
//
// NextIn is the input cursor: the bridge consumes bytes from the front and
// re-slices it forward. NextOut is the output cursor: the bridge fills it
// from the front and re-slices it forward; the caller computes the number of
// bytes produced from the length difference. TotalIn and TotalOut accumulate
// across steps until the next reset.
//
// The codec-internal state attached by the init calls is owned exclusively
// by the selected backend and is never inspected here. A Stream must not be
// used concurrently from two goroutines.
type Stream struct {
	NextIn  []byte
	NextOut []byte

	TotalIn  uint64
	TotalOut uint64

	// Msg holds the last diagnostic message, empty when the last
	// operation succeeded.
	Msg string

	// Adler is the running checksum of the uncompressed data as maintained
	// by the codec (adler32 for zlib streams, crc32 for gzip streams).
	Adler uint32

	// DataType is a best-effort hint about the data seen so far.
	DataType int

	state any
}

// Header is the optional gzip metadata record. For the deflate direction the
// caller fills the fields before the first step; for the inflate direction
// ExtraMax, NameMax and CommentMax cap how much of each field is retained,
// and Done is set once the header has been fully parsed.
type Header struct {
	Text    bool
	ModTime time.Time
	OS      byte

	Extra   []byte
	Name    string
	Comment string

	ExtraMax   int
	NameMax    int
	CommentMax int

	Done bool
}

// deflater is the per-stream compression state a backend attaches at init.
type deflater interface {
	step(s *Stream, flush Flush) Status
	reset(s *Stream) Status
	end(s *Stream) Status
	params(s *Stream, level, strategy int) Status
	setDictionary(s *Stream, dict []byte) Status
	getDictionary(s *Stream) ([]byte, Status)
	setHeader(s *Stream, h *Header) Status
	pending(s *Stream) (bytes, bits int, st Status)
	bound(sourceLen int) int
	copyTo(src, dst *Stream) Status
}

// inflater is the per-stream decompression state a backend attaches at init.
type inflater interface {
	step(s *Stream, flush Flush) Status
	reset(s *Stream) Status
	reset2(s *Stream, windowBits int) Status
	end(s *Stream) Status
	setDictionary(s *Stream, dict []byte) Status
	getDictionary(s *Stream) ([]byte, Status)
	getHeader(s *Stream, h *Header) Status
	pending(s *Stream) (bytes, bits int, st Status)
	copyTo(src, dst *Stream) Status
}

func (s *Stream) deflater() deflater {
	if s == nil {
		return nil
	}
	d, _ := s.state.(deflater)
	return d
}

func (s *Stream) inflater() inflater {
	if s == nil {
		return nil
	}
	d, _ := s.state.(inflater)
	return d
}

// consume advances the input cursor by n bytes.
func (s *Stream) consume(n int) {
	s.NextIn = s.NextIn[n:]
	s.TotalIn += uint64(n)
}

// produce advances the output cursor by n bytes.
func (s *Stream) produce(n int) {
	s.NextOut = s.NextOut[n:]
	s.TotalOut += uint64(n)
}

// streamErr records a diagnostic on the stream and returns StreamError.
func streamErr(s *Stream, msg string) Status {
	if s != nil {
		s.Msg = msg
	}
	return StreamError
}

// dataErr records a diagnostic on the stream and returns DataError.
func dataErr(s *Stream, msg string) Status {
	if s != nil {
		s.Msg = msg
	}
	return DataError
}
