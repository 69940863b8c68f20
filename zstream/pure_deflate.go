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

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// flushWriter is the compressing writer shared by the flate and gzip paths.
type flushWriter interface {
	Write(p []byte) (int, error)
	Flush() error
	Close() error
}

// pureDeflate is the compression state of the pure Go backend. Raw and zlib
// streams are framed here by hand over a flate.Writer so that dictionaries
// and mid-stream parameter changes work; gzip streams delegate framing to
// the gzip.Writer. Compressed bytes accumulate in buf until the caller's
// output cursor drains them.
type pureDeflate struct {
	cfg  deflateConfig
	wrap wrapKind
	bits int

	dict   []byte
	dictID uint32
	hdr    *Header

	w   flushWriter
	buf bytes.Buffer

	started bool
	closed  bool

	adler uint32
	crc   uint32
}

// effectiveLevel maps the level/strategy pair onto a flate level.
// HuffmanOnly is the only strategy the flate implementation distinguishes;
// the others only tune match selection and are treated as hints.
func effectiveLevel(level, strategy int) int {
	if strategy == HuffmanOnly {
		return flate.HuffmanOnly
	}
	if level == DefaultCompression {
		return flate.DefaultCompression
	}
	return level
}

func zlibHeaderBytes(level, bits int, hasDict bool, dictID uint32) []byte {
	cmf := byte((bits-8)<<4 | 8)
	var flevel byte
	switch {
	case level == NoCompression || level == BestSpeed:
		flevel = 0
	case level >= 2 && level <= 5:
		flevel = 1
	case level == 6 || level == DefaultCompression:
		flevel = 2
	default:
		flevel = 3
	}
	flg := flevel << 6
	if hasDict {
		flg |= 0x20
	}
	if rem := (uint16(cmf)<<8 | uint16(flg)) % 31; rem != 0 {
		flg += byte(31 - rem)
	}
	hdr := []byte{cmf, flg}
	if hasDict {
		hdr = append(hdr, byte(dictID>>24), byte(dictID>>16), byte(dictID>>8), byte(dictID))
	}
	return hdr
}

func (d *pureDeflate) start(s *Stream) Status {
	lvl := effectiveLevel(d.cfg.level, d.cfg.strategy)
	switch d.wrap {
	case wrapGzip:
		gw, err := gzip.NewWriterLevel(&d.buf, lvl)
		if err != nil {
			return streamErr(s, err.Error())
		}
		if h := d.hdr; h != nil {
			gw.Header.Comment = h.Comment
			gw.Header.Extra = h.Extra
			gw.Header.ModTime = h.ModTime
			gw.Header.Name = h.Name
			gw.Header.OS = h.OS
		}
		d.w = gw
	case wrapZlib:
		d.buf.Write(zlibHeaderBytes(d.cfg.level, d.bits, len(d.dict) > 0, d.dictID))
		fallthrough
	case wrapRaw:
		fw, err := flate.NewWriterDict(&d.buf, lvl, d.dict)
		if err != nil {
			return streamErr(s, err.Error())
		}
		d.w = fw
	}
	d.started = true
	return Ok
}

func (d *pureDeflate) step(s *Stream, flush Flush) Status {
	if flush < NoFlush || flush > Trees {
		return streamErr(s, "invalid flush value")
	}
	if d.closed && len(s.NextIn) > 0 {
		return streamErr(s, "deflate stream already finished")
	}
	// The classic codec refuses to run against an exhausted output cursor,
	// consuming nothing; both backends present that behavior.
	if len(s.NextOut) == 0 {
		return BufError
	}
	if !d.started {
		if st := d.start(s); st != Ok {
			return st
		}
	}

	var consumed, produced int
	if n := len(s.NextIn); n > 0 {
		if _, err := d.w.Write(s.NextIn); err != nil {
			return streamErr(s, err.Error())
		}
		switch d.wrap {
		case wrapZlib:
			d.adler = adler32Update(d.adler, s.NextIn)
			s.Adler = d.adler
		case wrapGzip:
			d.crc = CRC32(d.crc, s.NextIn)
			s.Adler = d.crc
		}
		s.consume(n)
		consumed = n
	}

	switch flush {
	case PartialFlush, SyncFlush, FullFlush, Block, Trees:
		if !d.closed {
			if err := d.w.Flush(); err != nil {
				return streamErr(s, err.Error())
			}
		}
	case Finish:
		if !d.closed {
			if err := d.w.Close(); err != nil {
				return streamErr(s, err.Error())
			}
			if d.wrap == wrapZlib {
				a := d.adler
				d.buf.Write([]byte{byte(a >> 24), byte(a >> 16), byte(a >> 8), byte(a)})
			}
			d.closed = true
		}
	}

	if d.buf.Len() > 0 && len(s.NextOut) > 0 {
		n := copy(s.NextOut, d.buf.Bytes())
		d.buf.Next(n)
		s.produce(n)
		produced = n
	}

	if d.closed {
		if d.buf.Len() == 0 {
			return StreamEnd
		}
		return Ok
	}
	if consumed == 0 && produced == 0 && flush == NoFlush {
		return BufError
	}
	return Ok
}

// params changes level and strategy between steps. For raw and zlib streams
// the current writer is flushed and replaced, which resets the match history
// but keeps the block stream valid. A gzip stream cannot swap its writer, so
// the change degrades to a flush and the new level is ignored.
func (d *pureDeflate) params(s *Stream, level, strategy int) Status {
	if d.closed {
		return streamErr(s, "deflate stream already finished")
	}
	if !d.started {
		d.cfg.level, d.cfg.strategy = level, strategy
		return Ok
	}
	if d.wrap == wrapGzip {
		if err := d.w.Flush(); err != nil {
			return streamErr(s, err.Error())
		}
		return Ok
	}
	if err := d.w.Flush(); err != nil {
		return streamErr(s, err.Error())
	}
	fw, err := flate.NewWriter(&d.buf, effectiveLevel(level, strategy))
	if err != nil {
		return streamErr(s, err.Error())
	}
	d.w = fw
	d.cfg.level, d.cfg.strategy = level, strategy
	return Ok
}

func (d *pureDeflate) setDictionary(s *Stream, dict []byte) Status {
	if d.wrap == wrapGzip {
		return streamErr(s, "dictionaries are not permitted on gzip streams")
	}
	if d.started {
		return streamErr(s, "dictionary must be set before the first deflate call")
	}
	// The dictionary id covers the full dictionary even when only the
	// window-sized tail is retained for matching.
	d.dictID = adler32Update(AdlerInit, dict)
	if len(dict) > maxDictSize {
		dict = dict[len(dict)-maxDictSize:]
	}
	d.dict = append([]byte(nil), dict...)
	if d.wrap == wrapZlib {
		// Observable like the classic codec: adler carries the dictionary id
		// until the first deflate call.
		s.Adler = d.dictID
	}
	return Ok
}

func (d *pureDeflate) getDictionary(s *Stream) ([]byte, Status) {
	return nil, streamErr(s, "dictionary readback requires the native backend")
}

func (d *pureDeflate) setHeader(s *Stream, h *Header) Status {
	if d.wrap != wrapGzip {
		return streamErr(s, "header metadata is only valid on gzip streams")
	}
	if d.started {
		return streamErr(s, "header must be set before the first deflate call")
	}
	d.hdr = h
	return Ok
}

// pending reports the bytes buffered between the compressor and the output
// cursor. The bit count within the current byte is not observable here and
// is reported as zero.
func (d *pureDeflate) pending(s *Stream) (int, int, Status) {
	return d.buf.Len(), 0, Ok
}

func (d *pureDeflate) bound(sourceLen int) int {
	n := sourceLen + sourceLen>>12 + sourceLen>>14 + sourceLen>>25 + 13
	// The flate writer's block framing can exceed the classic overhead on
	// short payloads.
	n += 5
	if len(d.dict) > 0 {
		n += 4 // dictionary id in the stream header
	}
	if d.wrap == wrapGzip {
		n += 18
	}
	return n
}

func (d *pureDeflate) copyTo(src, dst *Stream) Status {
	return streamErr(src, "stream copy requires the native backend")
}

func (d *pureDeflate) reset(s *Stream) Status {
	d.buf.Reset()
	d.w = nil
	d.started = false
	d.closed = false
	d.dict = nil
	d.dictID = 0
	d.adler = AdlerInit
	d.crc = 0
	s.TotalIn, s.TotalOut = 0, 0
	s.Msg = ""
	s.Adler = AdlerInit
	return Ok
}

func (d *pureDeflate) end(s *Stream) Status {
	d.buf.Reset()
	d.w = nil
	return Ok
}
