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
#include <stdlib.h>
#include <string.h>
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"
)

// libzBackCtx carries a backContext across the codec boundary. The codec
// reads pulled input after the trampoline returns, so each pulled chunk is
// staged in C-allocated memory that stays valid until the next pull or
// until free().
type libzBackCtx struct {
	s   *Stream
	ctx *backContext

	handle cgo.Handle

	cbuf unsafe.Pointer
	ccap int

	pulls   int
	aborted bool
}

func newLibzBackCtx(s *Stream, ctx *backContext) *libzBackCtx {
	l := &libzBackCtx{s: s, ctx: ctx}
	l.handle = cgo.NewHandle(l)
	return l
}

func (l *libzBackCtx) free() {
	if l.cbuf != nil {
		C.free(l.cbuf)
		l.cbuf = nil
	}
	l.handle.Delete()
}

// stage copies a pulled chunk into the C staging buffer.
func (l *libzBackCtx) stage(chunk []byte) *C.uchar {
	if len(chunk) > l.ccap {
		if l.cbuf != nil {
			C.free(l.cbuf)
		}
		l.cbuf = C.malloc(C.size_t(len(chunk)))
		l.ccap = len(chunk)
	}
	C.memcpy(l.cbuf, unsafe.Pointer(&chunk[0]), C.size_t(len(chunk)))
	return (*C.uchar)(l.cbuf)
}

//export zbridgeBackPull
func zbridgeBackPull(desc unsafe.Pointer, buf **C.uchar) C.uint {
	l := cgo.Handle(uintptr(desc)).Value().(*libzBackCtx)
	chunk := l.ctx.pullInput()
	if len(chunk) == 0 {
		*buf = nil
		return 0
	}
	l.pulls++
	*buf = l.stage(chunk)
	// Counted in full here; the driver subtracts whatever the codec leaves
	// unread in the final chunk.
	l.s.TotalIn += uint64(len(chunk))
	return C.uint(len(chunk))
}

//export zbridgeBackPush
func zbridgeBackPush(desc unsafe.Pointer, buf *C.uchar, n C.uint) C.int {
	l := cgo.Handle(uintptr(desc)).Value().(*libzBackCtx)
	block := unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(n))
	if st := l.ctx.deliver(block); st != Ok {
		l.aborted = true
		return 1 // nonzero aborts the codec loop
	}
	l.s.TotalOut += uint64(n)
	return 0
}
