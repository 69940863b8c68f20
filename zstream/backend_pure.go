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

import (
	"errors"
	"io"

	"github.com/klauspost/compress/flate"
)

// wrapKind selects the framing around the raw deflate blocks.
type wrapKind int

const (
	wrapRaw wrapKind = iota
	wrapZlib
	wrapGzip
	wrapAuto // inflate only: sniff zlib vs gzip from the first bytes
)

// pureCodec implements Codec on top of klauspost/compress. It is always
// available and is the default backend unless the libz-backed native one was
// compiled in.
type pureCodec struct{}

func newPureCodec() *pureCodec { return &pureCodec{} }

func (p *pureCodec) Name() string { return "pure-go (klauspost/compress)" }

func (p *pureCodec) Native() bool { return false }

func (p *pureCodec) Capabilities() CapabilitySet {
	return CapabilitySet(CapWindowReset | CapInflateBack)
}

func (p *pureCodec) newDeflate(cfg deflateConfig) (deflater, Status) {
	wrap, _, ok := parseDeflateBits(cfg.windowBits)
	if !ok {
		return nil, StreamError
	}
	// The flate writer always runs a 32K match window, so emitted zlib
	// headers declare the window actually in use rather than the requested
	// one.
	return &pureDeflate{
		cfg:   cfg,
		wrap:  wrap,
		bits:  MaxWindowBits,
		adler: AdlerInit,
	}, Ok
}

func (p *pureCodec) newInflate(cfg inflateConfig) (inflater, Status) {
	wrap, bits, ok := parseInflateBits(cfg.windowBits)
	if !ok {
		return nil, StreamError
	}
	return &pureInflate{wrap: wrap, bits: bits}, Ok
}

// parseDeflateBits maps the windowBits convention onto a framing kind.
// Negative values select a raw stream, 9..15 a zlib wrapper, 25..31 a gzip
// wrapper. A window of 8 is widened to 9, matching the classic codec.
func parseDeflateBits(wb int) (wrapKind, int, bool) {
	switch {
	case wb >= -MaxWindowBits && wb <= -MinWindowBits:
		bits := -wb
		if bits == 8 {
			bits = 9
		}
		return wrapRaw, bits, true
	case wb >= MinWindowBits && wb <= MaxWindowBits:
		if wb == 8 {
			wb = 9
		}
		return wrapZlib, wb, true
	case wb >= MinWindowBits+gzipWrapOffset && wb <= MaxWindowBits+gzipWrapOffset:
		return wrapGzip, wb - gzipWrapOffset, true
	}
	return 0, 0, false
}

// parseInflateBits additionally understands the +32 automatic-detection
// convention.
func parseInflateBits(wb int) (wrapKind, int, bool) {
	switch {
	case wb >= -MaxWindowBits && wb <= -MinWindowBits:
		return wrapRaw, -wb, true
	case wb >= MinWindowBits && wb <= MaxWindowBits:
		return wrapZlib, wb, true
	case wb >= MinWindowBits+gzipWrapOffset && wb <= MaxWindowBits+gzipWrapOffset:
		return wrapGzip, wb - gzipWrapOffset, true
	case wb >= MinWindowBits+autoWrapOffset && wb <= MaxWindowBits+autoWrapOffset:
		return wrapAuto, wb - autoWrapOffset, true
	}
	return 0, 0, false
}

// inflateBack decompresses a raw deflate stream driven by the callback
// context: input is pulled on demand, output is pushed in chunks no larger
// than the caller's window. Any initial bytes left in the stream's input
// cursor are consumed before the first pull.
func (p *pureCodec) inflateBack(s *Stream, windowBits int, window []byte, ctx *backContext) Status {
	br := &backReader{s: s, ctx: ctx}
	fr := flate.NewReader(br)
	defer fr.Close()

	for {
		n, err := fr.Read(window)
		if n > 0 {
			if st := ctx.deliver(window[:n]); st != Ok {
				return streamErr(s, "output consumer aborted")
			}
			s.TotalOut += uint64(n)
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			return StreamEnd
		case errors.Is(err, io.ErrUnexpectedEOF):
			s.Msg = "input exhausted before end of stream"
			return BufError
		default:
			return dataErr(s, err.Error())
		}
	}
}

// backReader adapts the pull behavior into the reader the decompressor
// consumes. The stream's own input cursor is drained first, then each
// exhaustion pulls a fresh chunk; an empty pull is end of input.
type backReader struct {
	s    *Stream
	ctx  *backContext
	cur  []byte
	done bool
}

func (r *backReader) Read(p []byte) (int, error) {
	for len(r.cur) == 0 {
		if r.done {
			return 0, io.EOF
		}
		if n := len(r.s.NextIn); n > 0 {
			r.cur = r.s.NextIn[:n]
			r.s.consume(n)
			continue
		}
		chunk := r.ctx.pullInput()
		if len(chunk) == 0 {
			r.done = true
			return 0, io.EOF
		}
		r.cur = chunk
		r.s.TotalIn += uint64(len(chunk))
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}
