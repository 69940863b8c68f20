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

// One-shot helpers over the streaming entry points. A zero-length source is
// a documented no-op: zero bytes written, Ok, and the source is never
// dereferenced or handed to the codec.

// CompressBound returns an upper bound on the zlib-wrapped compressed size
// of sourceLen input bytes.
func CompressBound(sourceLen int) int {
	return sourceLen + sourceLen>>12 + sourceLen>>14 + sourceLen>>25 + 13
}

// Compress compresses src into dst at the default level and returns the
// number of bytes written. BufError means dst was too small; size it with
// CompressBound.
func Compress(dst, src []byte) (int, Status) {
	return Compress2(dst, src, DefaultCompression)
}

// Compress2 is Compress with an explicit level.
func Compress2(dst, src []byte, level int) (int, Status) {
	if len(src) == 0 {
		return 0, Ok
	}
	if dst == nil {
		return 0, StreamError
	}
	var s Stream
	if st := DeflateInit(&s, level); st != Ok {
		return 0, st
	}
	defer DeflateEnd(&s)
	s.NextIn, s.NextOut = src, dst
	st := Deflate(&s, Finish)
	n := len(dst) - len(s.NextOut)
	switch st {
	case StreamEnd:
		return n, Ok
	case Ok:
		s.Msg = "destination buffer too small"
		return n, BufError
	}
	return n, st
}

// Uncompress decompresses src into dst and returns the number of bytes
// written. BufError means dst was too small, DataError that src is corrupt
// or truncated.
func Uncompress(dst, src []byte) (int, Status) {
	n, _, st := Uncompress2(dst, src)
	return n, st
}

// Uncompress2 additionally reports how many source bytes were consumed.
func Uncompress2(dst, src []byte) (written, consumed int, st Status) {
	if len(src) == 0 {
		return 0, 0, Ok
	}
	if dst == nil {
		return 0, 0, StreamError
	}
	var s Stream
	if st := InflateInit(&s); st != Ok {
		return 0, 0, st
	}
	defer InflateEnd(&s)
	s.NextIn, s.NextOut = src, dst
	st = Inflate(&s, Finish)
	written = len(dst) - len(s.NextOut)
	consumed = len(src) - len(s.NextIn)
	switch st {
	case StreamEnd:
		return written, consumed, Ok
	case Ok, BufError:
		if len(s.NextOut) == 0 {
			s.Msg = "destination buffer too small"
			return written, consumed, BufError
		}
		return written, consumed, dataErr(&s, "incomplete stream")
	}
	return written, consumed, st
}
