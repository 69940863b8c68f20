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

// InflateInit initializes a zlib-wrapped decompression stream on the handle.
func InflateInit(s *Stream) Status {
	return InflateInit2(s, MaxWindowBits)
}

// InflateInit2 initializes a decompression stream. windowBits follows the
// usual convention: negative for raw deflate, 8..15 for zlib, +16 for gzip,
// +32 for automatic zlib/gzip detection.
func InflateInit2(s *Stream, windowBits int) Status {
	if s == nil {
		return StreamError
	}
	d, st := ActiveCodec().newInflate(inflateConfig{windowBits: windowBits})
	if st != Ok {
		return streamErr(s, "invalid window bits")
	}
	s.state = d
	s.Msg = ""
	s.TotalIn, s.TotalOut = 0, 0
	s.Adler = 0
	return Ok
}

// Inflate runs one decompression step over the stream's cursors. NeedDict,
// DataError and BufError are surfaced verbatim; the caller must act on them.
func Inflate(s *Stream, flush Flush) Status {
	d := s.inflater()
	if d == nil {
		return streamErr(s, "inflate stream not initialized")
	}
	return d.step(s, flush)
}

// InflateEnd releases the codec state attached to the handle.
func InflateEnd(s *Stream) Status {
	d := s.inflater()
	if d == nil {
		return streamErr(s, "inflate stream not initialized")
	}
	st := d.end(s)
	s.state = nil
	return st
}

// InflateReset rewinds the stream to its post-init state.
func InflateReset(s *Stream) Status {
	d := s.inflater()
	if d == nil {
		return streamErr(s, "inflate stream not initialized")
	}
	return d.reset(s)
}

// InflateReset2 rewinds the stream and changes the window-bits convention.
// Backends without CapWindowReset degrade to a plain reset and ignore the
// window hint.
func InflateReset2(s *Stream, windowBits int) Status {
	d := s.inflater()
	if d == nil {
		return streamErr(s, "inflate stream not initialized")
	}
	return d.reset2(s, windowBits)
}

// InflateSetDictionary supplies the pre-shared dictionary. It must be called
// before the first Inflate step; once an in-progress step has signaled
// NeedDict the stream cannot be repaired and the call is a state error.
func InflateSetDictionary(s *Stream, dict []byte) Status {
	d := s.inflater()
	if d == nil {
		return streamErr(s, "inflate stream not initialized")
	}
	if len(dict) == 0 {
		return streamErr(s, "empty dictionary")
	}
	return d.setDictionary(s, dict)
}

// InflateGetDictionary reads back the sliding-window content where the
// backend supports it (CapDictRead).
func InflateGetDictionary(s *Stream) ([]byte, Status) {
	d := s.inflater()
	if d == nil {
		return nil, streamErr(s, "inflate stream not initialized")
	}
	return d.getDictionary(s)
}

// InflateGetHeader registers a caller-owned record to receive the gzip
// header fields; Done is set on it once the header has been parsed.
func InflateGetHeader(s *Stream, h *Header) Status {
	d := s.inflater()
	if d == nil {
		return streamErr(s, "inflate stream not initialized")
	}
	if h == nil {
		return streamErr(s, "nil header")
	}
	return d.getHeader(s, h)
}

// InflatePending reports output held back inside the codec. Backends
// without CapPendingBits answer with a conservative estimate derived from
// the output cursor; callers must not rely on bit-exact results.
func InflatePending(s *Stream) (pending, bits int, st Status) {
	d := s.inflater()
	if d == nil {
		return 0, 0, streamErr(s, "inflate stream not initialized")
	}
	return d.pending(s)
}

// InflateCopy duplicates a mid-flight decompression stream onto dst. Only
// backends with CapStreamCopy support it.
func InflateCopy(dst, src *Stream) Status {
	d := src.inflater()
	if d == nil {
		return streamErr(src, "inflate stream not initialized")
	}
	if dst == nil {
		return streamErr(src, "nil destination stream")
	}
	return d.copyTo(src, dst)
}
