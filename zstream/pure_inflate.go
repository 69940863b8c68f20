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
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// pureInflate is the decompression state of the pure Go backend. The flate
// reader underneath is pull-based and cannot be suspended mid-read, so input
// accumulates in the state and each step decodes the stream from its start,
// delivering only the bytes past what earlier steps already handed out.
// Quadratic over pathological step counts, but faithful to the cursor
// contract without goroutines.
type pureInflate struct {
	wrap wrapKind
	bits int

	dict    []byte
	dictID  uint32
	dictSet bool

	in        []byte
	delivered int

	out      []byte // cached decode once the stream completed
	finished bool

	stepped          bool
	needDictSignaled bool
	endSignaled      bool

	hdr     *Header
	hdrDone bool
}

func (d *pureInflate) step(s *Stream, flush Flush) Status {
	if flush < NoFlush || flush > Trees {
		return streamErr(s, "invalid flush value")
	}
	d.stepped = true

	consumed := len(s.NextIn)
	if consumed > 0 {
		d.in = append(d.in, s.NextIn...)
		s.consume(consumed)
	}

	out, st := d.decode(s)
	if st != Ok {
		return st
	}

	produced := 0
	if d.delivered < len(out) && len(s.NextOut) > 0 {
		n := copy(s.NextOut, out[d.delivered:])
		d.delivered += n
		s.produce(n)
		produced = n
	}

	if d.finished && d.delivered == len(out) {
		if d.endSignaled && consumed == 0 && produced == 0 {
			return BufError
		}
		d.endSignaled = true
		return StreamEnd
	}
	if consumed == 0 && produced == 0 {
		return BufError
	}
	return Ok
}

// decode runs the framing-aware decompression over all accumulated input.
// A truncated stream is not an error: it returns whatever decompressed
// bytes are already determined, with Ok, and a later step resumes once more
// input arrived.
func (d *pureInflate) decode(s *Stream) ([]byte, Status) {
	if d.finished {
		return d.out, Ok
	}

	wrap := d.wrap
	if wrap == wrapAuto {
		if len(d.in) < 2 {
			return nil, Ok
		}
		if d.in[0] == 0x1f && d.in[1] == 0x8b {
			wrap = wrapGzip
		} else {
			wrap = wrapZlib
		}
	}

	switch wrap {
	case wrapRaw:
		return d.decodeRaw(s, d.in, false)
	case wrapZlib:
		return d.decodeZlib(s)
	case wrapGzip:
		return d.decodeGzip(s)
	}
	return nil, streamErr(s, "corrupt inflate state")
}

// decodeRaw inflates a bare deflate block stream. hasTrailer tells it the
// zlib adler32 trailer follows the final block.
func (d *pureInflate) decodeRaw(s *Stream, body []byte, hasTrailer bool) ([]byte, Status) {
	br := bytes.NewReader(body)
	var fr io.ReadCloser
	if d.dictSet {
		fr = flate.NewReaderDict(br, d.dict)
	} else {
		fr = flate.NewReader(br)
	}
	defer fr.Close()

	data, err := io.ReadAll(fr)
	switch {
	case err == nil:
		if hasTrailer {
			trailer := body[len(body)-br.Len():]
			if len(trailer) < 4 {
				return data, Ok // complete blocks, trailer still in flight
			}
			want := uint32(trailer[0])<<24 | uint32(trailer[1])<<16 |
				uint32(trailer[2])<<8 | uint32(trailer[3])
			got := adler32Update(AdlerInit, data)
			s.Adler = got
			if want != got {
				return nil, dataErr(s, "incorrect data check")
			}
		}
		d.out = data
		d.finished = true
		return data, Ok
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return data, Ok
	default:
		return nil, dataErr(s, err.Error())
	}
}

func (d *pureInflate) decodeZlib(s *Stream) ([]byte, Status) {
	if len(d.in) < 2 {
		return nil, Ok
	}
	cmf, flg := d.in[0], d.in[1]
	if cmf&0x0f != Deflated {
		return nil, dataErr(s, "unknown compression method")
	}
	if int(cmf>>4)+8 > d.bits {
		return nil, dataErr(s, "invalid window size")
	}
	if (uint16(cmf)<<8|uint16(flg))%31 != 0 {
		return nil, dataErr(s, "incorrect header check")
	}
	body := d.in[2:]
	if flg&0x20 != 0 {
		if len(body) < 4 {
			return nil, Ok
		}
		dictID := uint32(body[0])<<24 | uint32(body[1])<<16 |
			uint32(body[2])<<8 | uint32(body[3])
		body = body[4:]
		if !d.dictSet {
			s.Adler = dictID
			d.needDictSignaled = true
			s.Msg = "dictionary required"
			return nil, NeedDict
		}
		if d.dictID != dictID {
			return nil, dataErr(s, "incorrect dictionary")
		}
	}
	return d.decodeRaw(s, body, true)
}

func (d *pureInflate) decodeGzip(s *Stream) ([]byte, Status) {
	zr, err := gzip.NewReader(bytes.NewReader(d.in))
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return nil, Ok // header still in flight
	default:
		return nil, dataErr(s, err.Error())
	}
	defer zr.Close()
	zr.Multistream(false)

	if h := d.hdr; h != nil && !d.hdrDone {
		h.Name = clipString(zr.Header.Name, h.NameMax)
		h.Comment = clipString(zr.Header.Comment, h.CommentMax)
		h.Extra = clipBytes(zr.Header.Extra, h.ExtraMax)
		h.ModTime = zr.Header.ModTime
		h.OS = zr.Header.OS
		h.Done = true
		d.hdrDone = true
	}

	data, err := io.ReadAll(zr)
	switch {
	case err == nil:
		s.Adler = CRC32(0, data)
		d.out = data
		d.finished = true
		return data, Ok
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return data, Ok
	case errors.Is(err, gzip.ErrChecksum):
		return nil, dataErr(s, "incorrect data check")
	default:
		return nil, dataErr(s, err.Error())
	}
}

func clipString(v string, max int) string {
	if max > 0 && len(v) > max {
		return v[:max]
	}
	return v
}

func clipBytes(v []byte, max int) []byte {
	if max > 0 && len(v) > max {
		v = v[:max]
	}
	return append([]byte(nil), v...)
}

// setDictionary must run before the first step. Supplying a dictionary after
// an in-progress step already signaled NeedDict is a state error: the stream
// header was consumed under the no-dictionary assumption and cannot be
// replayed.
func (d *pureInflate) setDictionary(s *Stream, dict []byte) Status {
	if d.needDictSignaled {
		return streamErr(s, "dictionary supplied after needs-dictionary signal")
	}
	if d.stepped {
		return streamErr(s, "dictionary must be set before the first inflate call")
	}
	if d.wrap == wrapGzip {
		return streamErr(s, "dictionaries are not permitted on gzip streams")
	}
	// The stream header's dictionary id covers the full dictionary; only the
	// window-sized tail is retained for matching.
	d.dictID = adler32Update(AdlerInit, dict)
	if len(dict) > maxDictSize {
		dict = dict[len(dict)-maxDictSize:]
	}
	d.dict = append([]byte(nil), dict...)
	d.dictSet = true
	return Ok
}

func (d *pureInflate) getDictionary(s *Stream) ([]byte, Status) {
	return nil, streamErr(s, "dictionary readback requires the native backend")
}

func (d *pureInflate) getHeader(s *Stream, h *Header) Status {
	if d.wrap != wrapGzip && d.wrap != wrapAuto {
		return streamErr(s, "header metadata is only valid on gzip streams")
	}
	d.hdr = h
	d.hdrDone = false
	return Ok
}

func (d *pureInflate) pending(s *Stream) (int, int, Status) {
	p, b := pendingBitsEstimate(s)
	return p, b, Ok
}

func (d *pureInflate) copyTo(src, dst *Stream) Status {
	return streamErr(src, "stream copy requires the native backend")
}

func (d *pureInflate) reset(s *Stream) Status {
	d.in = nil
	d.out = nil
	d.delivered = 0
	d.finished = false
	d.stepped = false
	d.needDictSignaled = false
	d.endSignaled = false
	d.dict = nil
	d.dictID = 0
	d.dictSet = false
	d.hdrDone = false
	s.TotalIn, s.TotalOut = 0, 0
	s.Msg = ""
	s.Adler = 0
	return Ok
}

// reset2 re-initializes with a new window-bits convention. The pure backend
// re-creates its reader per step, so re-windowing is supported natively.
func (d *pureInflate) reset2(s *Stream, windowBits int) Status {
	wrap, bits, ok := parseInflateBits(windowBits)
	if !ok {
		return streamErr(s, "invalid window bits")
	}
	d.wrap, d.bits = wrap, bits
	return d.reset(s)
}

func (d *pureInflate) end(s *Stream) Status {
	d.in = nil
	d.out = nil
	return Ok
}
