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

// The forwarder layer: one exported function per codec operation. Every
// function validates its arguments before touching codec state and returns
// StreamError on its own authority when validation fails; everything else is
// forwarded and the backend's result code is returned verbatim. DataError,
// NeedDict and BufError are contractual signals for the caller, never
// retried or recovered here.

// DeflateInit initializes a zlib-wrapped compression stream on the handle.
func DeflateInit(s *Stream, level int) Status {
	return DeflateInit2(s, level, Deflated, MaxWindowBits, DefMemLevel, DefaultStrategy)
}

// DeflateInit2 initializes a compression stream with full control over
// framing, window size, memory level and strategy.
func DeflateInit2(s *Stream, level, method, windowBits, memLevel, strategy int) Status {
	if s == nil {
		return StreamError
	}
	if method != Deflated {
		return streamErr(s, "unsupported compression method")
	}
	if level != DefaultCompression && (level < NoCompression || level > BestCompression) {
		return streamErr(s, "invalid compression level")
	}
	if memLevel < 1 || memLevel > 9 {
		return streamErr(s, "invalid memory level")
	}
	if strategy < DefaultStrategy || strategy > Fixed {
		return streamErr(s, "invalid strategy")
	}
	d, st := ActiveCodec().newDeflate(deflateConfig{
		level:      level,
		method:     method,
		windowBits: windowBits,
		memLevel:   memLevel,
		strategy:   strategy,
	})
	if st != Ok {
		return streamErr(s, "invalid window bits")
	}
	s.state = d
	s.Msg = ""
	s.TotalIn, s.TotalOut = 0, 0
	s.Adler = AdlerInit
	return Ok
}

// Deflate runs one compression step over the stream's cursors.
func Deflate(s *Stream, flush Flush) Status {
	d := s.deflater()
	if d == nil {
		return streamErr(s, "deflate stream not initialized")
	}
	return d.step(s, flush)
}

// DeflateEnd releases the codec state attached to the handle.
func DeflateEnd(s *Stream) Status {
	d := s.deflater()
	if d == nil {
		return streamErr(s, "deflate stream not initialized")
	}
	st := d.end(s)
	s.state = nil
	return st
}

// DeflateReset rewinds the stream to its post-init state, dropping any
// dictionary and buffered output.
func DeflateReset(s *Stream) Status {
	d := s.deflater()
	if d == nil {
		return streamErr(s, "deflate stream not initialized")
	}
	return d.reset(s)
}

// DeflateParams changes level and strategy between steps.
func DeflateParams(s *Stream, level, strategy int) Status {
	d := s.deflater()
	if d == nil {
		return streamErr(s, "deflate stream not initialized")
	}
	if level != DefaultCompression && (level < NoCompression || level > BestCompression) {
		return streamErr(s, "invalid compression level")
	}
	if strategy < DefaultStrategy || strategy > Fixed {
		return streamErr(s, "invalid strategy")
	}
	return d.params(s, level, strategy)
}

// DeflateSetDictionary seeds the compression history. Must precede the
// first Deflate call; not permitted on gzip streams.
func DeflateSetDictionary(s *Stream, dict []byte) Status {
	d := s.deflater()
	if d == nil {
		return streamErr(s, "deflate stream not initialized")
	}
	if len(dict) == 0 {
		return streamErr(s, "empty dictionary")
	}
	return d.setDictionary(s, dict)
}

// DeflateGetDictionary reads back the sliding-window dictionary where the
// backend supports it (CapDictRead).
func DeflateGetDictionary(s *Stream) ([]byte, Status) {
	d := s.deflater()
	if d == nil {
		return nil, streamErr(s, "deflate stream not initialized")
	}
	return d.getDictionary(s)
}

// DeflateSetHeader attaches gzip metadata to the stream. The record stays
// caller-owned; it is read when the header is emitted at the first step.
func DeflateSetHeader(s *Stream, h *Header) Status {
	d := s.deflater()
	if d == nil {
		return streamErr(s, "deflate stream not initialized")
	}
	if h == nil {
		return streamErr(s, "nil header")
	}
	return d.setHeader(s, h)
}

// DeflatePending reports output buffered inside the codec. Backends without
// CapPendingBits answer with a byte count and zero bits.
func DeflatePending(s *Stream) (pending, bits int, st Status) {
	d := s.deflater()
	if d == nil {
		return 0, 0, streamErr(s, "deflate stream not initialized")
	}
	return d.pending(s)
}

// DeflateBound returns an upper bound on compressed size for sourceLen
// input bytes on this stream. With a nil or un-initialized stream it falls
// back to the generic CompressBound.
func DeflateBound(s *Stream, sourceLen int) int {
	d := s.deflater()
	if d == nil {
		return CompressBound(sourceLen)
	}
	return d.bound(sourceLen)
}

// DeflateCopy duplicates a mid-flight compression stream onto dst. Only
// backends with CapStreamCopy support it.
func DeflateCopy(dst, src *Stream) Status {
	d := src.deflater()
	if d == nil {
		return streamErr(src, "deflate stream not initialized")
	}
	if dst == nil {
		return streamErr(src, "nil destination stream")
	}
	return d.copyTo(src, dst)
}
