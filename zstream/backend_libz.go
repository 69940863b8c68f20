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

//go:build libz && cgo

package zstream

/*
#cgo LDFLAGS: -lz
#cgo CFLAGS: -Werror=implicit

#include <stdint.h>
#include <stdlib.h>
#include <string.h>
#include <zlib.h>

// deflateInit2 and friends are macros, so every initializer gets a wrapper
// function.
static int zb_deflate_init2(char *strm, int level, int method, int windowBits,
                            int memLevel, int strategy) {
	z_stream *zs = (z_stream *)strm;
	memset(zs, 0, sizeof(*zs));
	return deflateInit2(zs, level, method, windowBits, memLevel, strategy);
}

static int zb_inflate_init2(char *strm, int windowBits) {
	z_stream *zs = (z_stream *)strm;
	memset(zs, 0, sizeof(*zs));
	return inflateInit2(zs, windowBits);
}

static int zb_inflate_back_init(char *strm, int windowBits, unsigned char *window) {
	z_stream *zs = (z_stream *)strm;
	memset(zs, 0, sizeof(*zs));
	return inflateBackInit(zs, windowBits, window);
}

// The codec rejects NULL cursors outright, so empty buffers are presented
// through a zero-length placeholder.
static unsigned char zb_empty[1];

static void zb_set_in_buf(char *strm, void *buf, unsigned int len) {
	((z_stream *)strm)->next_in = buf ? (Bytef *)buf : zb_empty;
	((z_stream *)strm)->avail_in = len;
}

static void zb_set_out_buf(char *strm, void *buf, unsigned int len) {
	((z_stream *)strm)->next_out = buf ? (Bytef *)buf : zb_empty;
	((z_stream *)strm)->avail_out = len;
}

static unsigned int zb_avail_in(char *strm)  { return ((z_stream *)strm)->avail_in; }
static unsigned int zb_avail_out(char *strm) { return ((z_stream *)strm)->avail_out; }
static unsigned long zb_adler(char *strm)    { return ((z_stream *)strm)->adler; }
static char *zb_msg(char *strm)              { return ((z_stream *)strm)->msg; }

static int zb_deflate(char *strm, int flush) { return deflate((z_stream *)strm, flush); }
static int zb_deflate_end(char *strm)        { return deflateEnd((z_stream *)strm); }
static int zb_deflate_reset(char *strm)      { return deflateReset((z_stream *)strm); }
static int zb_deflate_params(char *strm, int level, int strategy) {
	return deflateParams((z_stream *)strm, level, strategy);
}
static int zb_deflate_set_dict(char *strm, const unsigned char *d, unsigned int n) {
	return deflateSetDictionary((z_stream *)strm, d, n);
}
static unsigned long zb_deflate_bound(char *strm, unsigned long n) {
	return deflateBound((z_stream *)strm, n);
}
static int zb_deflate_copy(char *dst, char *src) {
	return deflateCopy((z_stream *)dst, (z_stream *)src);
}
static int zb_deflate_set_header(char *strm, gz_header *head) {
	return deflateSetHeader((z_stream *)strm, head);
}

static int zb_inflate(char *strm, int flush) { return inflate((z_stream *)strm, flush); }
static int zb_inflate_end(char *strm)        { return inflateEnd((z_stream *)strm); }
static int zb_inflate_reset(char *strm)      { return inflateReset((z_stream *)strm); }
static int zb_inflate_set_dict(char *strm, const unsigned char *d, unsigned int n) {
	return inflateSetDictionary((z_stream *)strm, d, n);
}
static int zb_inflate_copy(char *dst, char *src) {
	return inflateCopy((z_stream *)dst, (z_stream *)src);
}
static int zb_inflate_get_header(char *strm, gz_header *head) {
	return inflateGetHeader((z_stream *)strm, head);
}
static int zb_inflate_back_end(char *strm) {
	return inflateBackEnd((z_stream *)strm);
}

// Optional entry points, resolved at compile time against the platform's
// zlib. Each absent symbol gets the documented downgrade or estimate.

#if ZLIB_VERNUM >= 0x1240
static int zb_has_reset2(void) { return 1; }
static int zb_inflate_reset2(char *strm, int windowBits) {
	return inflateReset2((z_stream *)strm, windowBits);
}
#else
static int zb_has_reset2(void) { return 0; }
static int zb_inflate_reset2(char *strm, int windowBits) {
	(void)windowBits; // window hint ignored: plain reset is the downgrade
	return inflateReset((z_stream *)strm);
}
#endif

#if ZLIB_VERNUM >= 0x1230
static int zb_has_pending(void) { return 1; }
static int zb_deflate_pending(char *strm, unsigned int *pending, int *bits) {
	return deflatePending((z_stream *)strm, pending, bits);
}
#else
static int zb_has_pending(void) { return 0; }
static int zb_deflate_pending(char *strm, unsigned int *pending, int *bits) {
	*pending = 0;
	*bits = 0;
	return Z_OK;
}
#endif

#if ZLIB_VERNUM >= 0x1280
static int zb_has_getdict(void) { return 1; }
static int zb_deflate_get_dict(char *strm, unsigned char *d, unsigned int *n) {
	return deflateGetDictionary((z_stream *)strm, d, n);
}
static int zb_inflate_get_dict(char *strm, unsigned char *d, unsigned int *n) {
	return inflateGetDictionary((z_stream *)strm, d, n);
}
#else
static int zb_has_getdict(void) { return 0; }
static int zb_deflate_get_dict(char *strm, unsigned char *d, unsigned int *n) {
	(void)d; *n = 0;
	return Z_STREAM_ERROR;
}
static int zb_inflate_get_dict(char *strm, unsigned char *d, unsigned int *n) {
	(void)d; *n = 0;
	return Z_STREAM_ERROR;
}
#endif

// Trampolines exported from trampoline_libz.go. The codec only accepts
// plain function pointers, so per-call behavior travels in the opaque
// descriptor (a cgo handle) instead.
extern unsigned int zbridgeBackPull(void *desc, unsigned char **buf);
extern int zbridgeBackPush(void *desc, unsigned char *buf, unsigned int len);

static int zb_inflate_back(char *strm, uintptr_t in_desc, uintptr_t out_desc) {
	return inflateBack((z_stream *)strm,
	                   (in_func)zbridgeBackPull, (void *)in_desc,
	                   (out_func)zbridgeBackPush, (void *)out_desc);
}

static const char *zb_version(void) { return zlibVersion(); }
*/
import "C"

import (
	"strings"
	"time"
	"unsafe"
)

// zstrm is a buffer big enough to fit a C z_stream, kept opaque to the Go
// GC the same way the cgo-based stream wrappers do it.
type zstrm [unsafe.Sizeof(C.z_stream{})]C.char

func (z *zstrm) p() *C.char { return &z[0] }

func (z *zstrm) msg() string {
	if m := C.zb_msg(z.p()); m != nil {
		return C.GoString(m)
	}
	return ""
}

func (z *zstrm) setInBuf(buf []byte) {
	if len(buf) == 0 {
		C.zb_set_in_buf(z.p(), nil, 0)
		return
	}
	C.zb_set_in_buf(z.p(), unsafe.Pointer(&buf[0]), C.uint(len(buf)))
}

func (z *zstrm) setOutBuf(buf []byte) {
	if len(buf) == 0 {
		C.zb_set_out_buf(z.p(), nil, 0)
		return
	}
	C.zb_set_out_buf(z.p(), unsafe.Pointer(&buf[0]), C.uint(len(buf)))
}

// syncCursors moves the stream cursors by however much the codec consumed
// and produced, and mirrors the codec's running checksum and diagnostic.
func (z *zstrm) syncCursors(s *Stream, ret C.int) Status {
	consumed := len(s.NextIn) - int(C.zb_avail_in(z.p()))
	produced := len(s.NextOut) - int(C.zb_avail_out(z.p()))
	s.consume(consumed)
	s.produce(produced)
	s.Adler = uint32(C.zb_adler(z.p()))
	if ret < 0 {
		s.Msg = z.msg()
	}
	return Status(ret)
}

// libzCodec is the native backend: every operation forwards to the
// platform's codec library through the C shim above. Optional entry points
// are resolved once, here, into the capability set.
type libzCodec struct {
	caps CapabilitySet
}

// nativeCodec probes the platform library once and reports the backend, or
// nil if the probe fails.
func nativeCodec() Codec {
	var strm zstrm
	if C.zb_deflate_init2(strm.p(), C.int(DefaultCompression), C.int(Deflated),
		C.int(MaxWindowBits), C.int(DefMemLevel), C.int(DefaultStrategy)) != C.Z_OK {
		return nil
	}
	C.zb_deflate_end(strm.p())

	caps := Capability(CapStreamCopy | CapInflateBack)
	if C.zb_has_reset2() != 0 {
		caps |= CapWindowReset
	}
	if C.zb_has_pending() != 0 {
		caps |= CapPendingBits
	}
	if C.zb_has_getdict() != 0 {
		caps |= CapDictRead
	}
	return &libzCodec{caps: CapabilitySet(caps)}
}

func (c *libzCodec) Name() string {
	return "libz/" + C.GoString(C.zb_version())
}

func (c *libzCodec) Native() bool { return true }

func (c *libzCodec) Capabilities() CapabilitySet { return c.caps }

func (c *libzCodec) newDeflate(cfg deflateConfig) (deflater, Status) {
	d := &libzDeflate{codec: c}
	ret := C.zb_deflate_init2(d.strm.p(), C.int(cfg.level), C.int(cfg.method),
		C.int(cfg.windowBits), C.int(cfg.memLevel), C.int(cfg.strategy))
	if ret != C.Z_OK {
		return nil, Status(ret)
	}
	return d, Ok
}

func (c *libzCodec) newInflate(cfg inflateConfig) (inflater, Status) {
	d := &libzInflate{codec: c}
	ret := C.zb_inflate_init2(d.strm.p(), C.int(cfg.windowBits))
	if ret != C.Z_OK {
		return nil, Status(ret)
	}
	d.raw = cfg.windowBits < 0
	d.gzip = cfg.windowBits >= MinWindowBits+gzipWrapOffset &&
		cfg.windowBits <= MaxWindowBits+gzipWrapOffset
	return d, Ok
}

type libzDeflate struct {
	codec *libzCodec
	strm  zstrm

	// C copies handed to the codec for the gzip header; the codec retains
	// the pointers until the header is written, so they live until end().
	chdr     *C.gz_header
	cextra   unsafe.Pointer
	cname    unsafe.Pointer
	ccomment unsafe.Pointer

	stepped bool
}

func (d *libzDeflate) step(s *Stream, flush Flush) Status {
	d.stepped = true
	d.strm.setInBuf(s.NextIn)
	d.strm.setOutBuf(s.NextOut)
	ret := C.zb_deflate(d.strm.p(), C.int(flush))
	return d.strm.syncCursors(s, ret)
}

func (d *libzDeflate) reset(s *Stream) Status {
	d.stepped = false
	s.TotalIn, s.TotalOut = 0, 0
	s.Msg = ""
	return Status(C.zb_deflate_reset(d.strm.p()))
}

func (d *libzDeflate) end(s *Stream) Status {
	ret := C.zb_deflate_end(d.strm.p())
	d.freeHeader()
	return Status(ret)
}

func (d *libzDeflate) params(s *Stream, level, strategy int) Status {
	ret := Status(C.zb_deflate_params(d.strm.p(), C.int(level), C.int(strategy)))
	if ret < 0 {
		s.Msg = d.strm.msg()
	}
	return ret
}

func (d *libzDeflate) setDictionary(s *Stream, dict []byte) Status {
	if d.stepped {
		return streamErr(s, "dictionary must be set before the first deflate call")
	}
	ret := Status(C.zb_deflate_set_dict(d.strm.p(),
		(*C.uchar)(unsafe.Pointer(&dict[0])), C.uint(len(dict))))
	if ret == Ok {
		s.Adler = uint32(C.zb_adler(d.strm.p()))
	} else {
		s.Msg = d.strm.msg()
	}
	return ret
}

func (d *libzDeflate) getDictionary(s *Stream) ([]byte, Status) {
	if !d.codec.caps.Has(CapDictRead) {
		return nil, streamErr(s, "dictionary readback not available in this codec build")
	}
	buf := make([]byte, maxDictSize)
	var n C.uint
	ret := Status(C.zb_deflate_get_dict(d.strm.p(), (*C.uchar)(unsafe.Pointer(&buf[0])), &n))
	if ret != Ok {
		return nil, ret
	}
	return buf[:int(n)], Ok
}

func (d *libzDeflate) setHeader(s *Stream, h *Header) Status {
	if d.stepped {
		return streamErr(s, "header must be set before the first deflate call")
	}
	d.freeHeader()
	d.chdr = (*C.gz_header)(C.calloc(1, C.sizeof_gz_header))
	if h.Text {
		d.chdr.text = 1
	}
	d.chdr.time = C.uLong(h.ModTime.Unix())
	d.chdr.os = C.int(h.OS)
	if len(h.Extra) > 0 {
		d.cextra = C.CBytes(h.Extra)
		d.chdr.extra = (*C.Bytef)(d.cextra)
		d.chdr.extra_len = C.uint(len(h.Extra))
	}
	if h.Name != "" {
		d.cname = unsafe.Pointer(C.CString(h.Name))
		d.chdr.name = (*C.Bytef)(d.cname)
	}
	if h.Comment != "" {
		d.ccomment = unsafe.Pointer(C.CString(h.Comment))
		d.chdr.comment = (*C.Bytef)(d.ccomment)
	}
	ret := Status(C.zb_deflate_set_header(d.strm.p(), d.chdr))
	if ret != Ok {
		s.Msg = d.strm.msg()
		d.freeHeader()
	}
	return ret
}

func (d *libzDeflate) freeHeader() {
	for _, p := range []unsafe.Pointer{d.cextra, d.cname, d.ccomment, unsafe.Pointer(d.chdr)} {
		if p != nil {
			C.free(p)
		}
	}
	d.chdr, d.cextra, d.cname, d.ccomment = nil, nil, nil, nil
}

func (d *libzDeflate) pending(s *Stream) (int, int, Status) {
	if !d.codec.caps.Has(CapPendingBits) {
		p, b := pendingBitsEstimate(s)
		return p, b, Ok
	}
	var p C.uint
	var b C.int
	ret := Status(C.zb_deflate_pending(d.strm.p(), &p, &b))
	return int(p), int(b), ret
}

func (d *libzDeflate) bound(sourceLen int) int {
	return int(C.zb_deflate_bound(d.strm.p(), C.ulong(sourceLen)))
}

func (d *libzDeflate) copyTo(src, dst *Stream) Status {
	out := &libzDeflate{codec: d.codec, stepped: d.stepped}
	ret := Status(C.zb_deflate_copy(out.strm.p(), d.strm.p()))
	if ret != Ok {
		src.Msg = d.strm.msg()
		return ret
	}
	dst.state = out
	dst.TotalIn, dst.TotalOut = src.TotalIn, src.TotalOut
	dst.Adler = src.Adler
	return Ok
}

type libzInflate struct {
	codec *libzCodec
	strm  zstrm
	raw   bool
	gzip  bool

	// dictStash defers the dictionary to the codec's own NeedDict moment
	// while the exported contract requires it before the first step.
	dictStash   []byte
	dictApplied bool

	stepped          bool
	needDictSignaled bool

	hdr  *Header
	chdr *C.gz_header
	cbuf []unsafe.Pointer
}

func (d *libzInflate) step(s *Stream, flush Flush) Status {
	d.stepped = true
	for {
		d.strm.setInBuf(s.NextIn)
		d.strm.setOutBuf(s.NextOut)
		ret := C.zb_inflate(d.strm.p(), C.int(flush))
		st := d.strm.syncCursors(s, ret)
		if st == NeedDict && len(d.dictStash) > 0 && !d.dictApplied {
			r := Status(C.zb_inflate_set_dict(d.strm.p(),
				(*C.uchar)(unsafe.Pointer(&d.dictStash[0])), C.uint(len(d.dictStash))))
			if r != Ok {
				s.Msg = d.strm.msg()
				return r
			}
			d.dictApplied = true
			continue
		}
		if st == NeedDict {
			d.needDictSignaled = true
			s.Msg = "dictionary required"
		}
		d.copyHeaderOut()
		return st
	}
}

func (d *libzInflate) reset(s *Stream) Status {
	d.stepped = false
	d.needDictSignaled = false
	d.dictStash = nil
	d.dictApplied = false
	s.TotalIn, s.TotalOut = 0, 0
	s.Msg = ""
	return Status(C.zb_inflate_reset(d.strm.p()))
}

func (d *libzInflate) reset2(s *Stream, windowBits int) Status {
	d.stepped = false
	d.needDictSignaled = false
	d.dictStash = nil
	d.dictApplied = false
	s.TotalIn, s.TotalOut = 0, 0
	s.Msg = ""
	d.raw = windowBits < 0
	d.gzip = windowBits >= MinWindowBits+gzipWrapOffset &&
		windowBits <= MaxWindowBits+gzipWrapOffset
	return Status(C.zb_inflate_reset2(d.strm.p(), C.int(windowBits)))
}

func (d *libzInflate) end(s *Stream) Status {
	ret := C.zb_inflate_end(d.strm.p())
	d.freeHeader()
	return Status(ret)
}

func (d *libzInflate) setDictionary(s *Stream, dict []byte) Status {
	if d.needDictSignaled {
		return streamErr(s, "dictionary supplied after needs-dictionary signal")
	}
	if d.stepped {
		return streamErr(s, "dictionary must be set before the first inflate call")
	}
	if d.gzip {
		return streamErr(s, "dictionaries are not permitted on gzip streams")
	}
	if d.raw {
		// raw streams accept the dictionary up front
		ret := Status(C.zb_inflate_set_dict(d.strm.p(),
			(*C.uchar)(unsafe.Pointer(&dict[0])), C.uint(len(dict))))
		if ret != Ok {
			s.Msg = d.strm.msg()
			return ret
		}
		d.dictApplied = true
		return Ok
	}
	d.dictStash = append([]byte(nil), dict...)
	return Ok
}

func (d *libzInflate) getDictionary(s *Stream) ([]byte, Status) {
	if !d.codec.caps.Has(CapDictRead) {
		return nil, streamErr(s, "dictionary readback not available in this codec build")
	}
	buf := make([]byte, maxDictSize)
	var n C.uint
	ret := Status(C.zb_inflate_get_dict(d.strm.p(), (*C.uchar)(unsafe.Pointer(&buf[0])), &n))
	if ret != Ok {
		return nil, ret
	}
	return buf[:int(n)], Ok
}

func (d *libzInflate) getHeader(s *Stream, h *Header) Status {
	d.freeHeader()
	d.hdr = h
	d.chdr = (*C.gz_header)(C.calloc(1, C.sizeof_gz_header))
	alloc := func(n int) *C.Bytef {
		if n <= 0 {
			return nil
		}
		p := C.calloc(1, C.size_t(n))
		d.cbuf = append(d.cbuf, p)
		return (*C.Bytef)(p)
	}
	d.chdr.extra = alloc(h.ExtraMax)
	d.chdr.extra_max = C.uint(h.ExtraMax)
	d.chdr.name = alloc(h.NameMax)
	d.chdr.name_max = C.uint(h.NameMax)
	d.chdr.comment = alloc(h.CommentMax)
	d.chdr.comm_max = C.uint(h.CommentMax)
	ret := Status(C.zb_inflate_get_header(d.strm.p(), d.chdr))
	if ret != Ok {
		s.Msg = d.strm.msg()
		d.freeHeader()
	}
	return ret
}

// copyHeaderOut mirrors the parsed header fields into the caller's record
// once the codec marks the header complete.
func (d *libzInflate) copyHeaderOut() {
	if d.hdr == nil || d.chdr == nil || d.chdr.done != 1 {
		return
	}
	h := d.hdr
	h.Text = d.chdr.text != 0
	h.ModTime = time.Unix(int64(d.chdr.time), 0)
	h.OS = byte(d.chdr.os)
	if d.chdr.extra != nil {
		n := int(d.chdr.extra_len)
		if n > int(d.chdr.extra_max) {
			n = int(d.chdr.extra_max)
		}
		h.Extra = C.GoBytes(unsafe.Pointer(d.chdr.extra), C.int(n))
	}
	if d.chdr.name != nil {
		h.Name = goStringMax((*C.char)(unsafe.Pointer(d.chdr.name)), int(d.chdr.name_max))
	}
	if d.chdr.comment != nil {
		h.Comment = goStringMax((*C.char)(unsafe.Pointer(d.chdr.comment)), int(d.chdr.comm_max))
	}
	h.Done = true
	d.hdr = nil
}

// goStringMax reads a C string that may lack a terminator when the codec
// truncated it at the buffer limit.
func goStringMax(p *C.char, max int) string {
	s := C.GoStringN(p, C.int(max))
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return s
}

func (d *libzInflate) freeHeader() {
	for _, p := range d.cbuf {
		C.free(p)
	}
	if d.chdr != nil {
		C.free(unsafe.Pointer(d.chdr))
	}
	d.cbuf = nil
	d.chdr = nil
	d.hdr = nil
}

func (d *libzInflate) pending(s *Stream) (int, int, Status) {
	// The platform library has no inflatePending; answer with the
	// documented estimate regardless of version.
	p, b := pendingBitsEstimate(s)
	return p, b, Ok
}

// inflateBack drives the codec's backward-streaming mode. The codec accepts
// only plain function pointers, so the two fixed trampolines are installed
// and the per-call context travels as an opaque handle; the handle and the
// C-side staging buffer are torn down on every exit path.
func (c *libzCodec) inflateBack(s *Stream, windowBits int, window []byte, ctx *backContext) Status {
	var strm zstrm
	ret := C.zb_inflate_back_init(strm.p(), C.int(windowBits), (*C.uchar)(unsafe.Pointer(&window[0])))
	switch ret {
	case C.Z_OK:
	case C.Z_MEM_ERROR:
		return MemError
	default:
		return streamErr(s, strm.msg())
	}
	defer C.zb_inflate_back_end(strm.p())

	lctx := newLibzBackCtx(s, ctx)
	defer lctx.free()

	strm.setInBuf(s.NextIn)
	st := Status(C.zb_inflate_back(strm.p(), C.uintptr_t(lctx.handle), C.uintptr_t(lctx.handle)))
	// After the call avail_in refers to the last buffer handed to the codec:
	// the initial cursor when nothing was pulled, otherwise the staged chunk
	// of the final pull, whose unread tail was counted at pull time.
	left := int(C.zb_avail_in(strm.p()))
	if lctx.pulls == 0 {
		s.consume(len(s.NextIn) - left)
	} else {
		s.consume(len(s.NextIn))
		s.TotalIn -= uint64(left)
	}
	if lctx.aborted {
		return streamErr(s, "output consumer aborted")
	}
	if st < 0 {
		s.Msg = strm.msg()
	}
	return st
}

func (d *libzInflate) copyTo(src, dst *Stream) Status {
	out := &libzInflate{codec: d.codec, raw: d.raw, gzip: d.gzip, stepped: d.stepped}
	ret := Status(C.zb_inflate_copy(out.strm.p(), d.strm.p()))
	if ret != Ok {
		src.Msg = d.strm.msg()
		return ret
	}
	dst.state = out
	dst.TotalIn, dst.TotalOut = src.TotalIn, src.TotalOut
	dst.Adler = src.Adler
	return Ok
}
