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

import "sync/atomic"

// Backward-streaming decompression: instead of caller-managed buffers, the
// caller supplies a pull behavior for input and a push behavior for output.
// The codec side only understands fixed trampoline entry points, so the two
// behaviors and the caller's opaque descriptor travel in a per-call context
// record. The context is created immediately before the codec call and
// released exactly once on every return path; it is never pooled, cached or
// shared between invocations.

// Pull returns the next chunk of compressed input. A nil or empty slice
// signals end of input. The returned bytes must stay valid until the next
// Pull call or until InflateBack returns.
type Pull func(desc any) []byte

// Push receives a block of decompressed output and returns how many bytes
// it consumed. It must consume the whole block; any other return value is a
// consumer abort and terminates the operation with StreamError.
type Push func(desc any, block []byte) int

type backState struct {
	codec      Codec
	windowBits int
	window     []byte
}

type backContext struct {
	pull     Pull
	push     Push
	desc     any
	released bool
}

// liveBackContexts tracks outstanding contexts. It must read zero whenever
// no InflateBack call is in flight; the trampoline tests assert on it.
var liveBackContexts atomic.Int64

func newBackContext(pull Pull, push Push, desc any) *backContext {
	liveBackContexts.Add(1)
	return &backContext{pull: pull, push: push, desc: desc}
}

func (c *backContext) release() {
	if c.released {
		panic("zstream: callback context released twice")
	}
	c.released = true
	liveBackContexts.Add(-1)
}

// pullInput invokes the stored pull behavior. A nil behavior behaves like
// end of input.
func (c *backContext) pullInput() []byte {
	if c.pull == nil {
		return nil
	}
	return c.pull(c.desc)
}

// deliver invokes the stored push behavior. A nil behavior is an immediate
// abort, as is consuming anything other than the whole block.
func (c *backContext) deliver(block []byte) Status {
	if c.push == nil {
		return StreamError
	}
	if c.push(c.desc, block) != len(block) {
		return StreamError
	}
	return Ok
}

// InflateBackInit prepares the handle for backward-streaming decompression
// of a raw deflate stream. window is caller-owned workspace of at least
// 1<<windowBits bytes and doubles as the output chunk buffer.
func InflateBackInit(s *Stream, windowBits int, window []byte) Status {
	if s == nil {
		return StreamError
	}
	if windowBits < MinWindowBits || windowBits > MaxWindowBits {
		return streamErr(s, "invalid window bits")
	}
	if len(window) < 1<<windowBits {
		return streamErr(s, "window smaller than 1<<windowBits")
	}
	s.state = &backState{codec: ActiveCodec(), windowBits: windowBits, window: window}
	s.Msg = ""
	s.TotalIn, s.TotalOut = 0, 0
	return Ok
}

// InflateBack decompresses the whole stream in one call, pulling input and
// pushing output through the supplied behaviors. Any bytes already in the
// stream's input cursor are consumed before the first pull. Returns
// StreamEnd on success; codec errors propagate verbatim and a consumer
// abort surfaces as StreamError.
func InflateBack(s *Stream, pull Pull, push Push, desc any) Status {
	if s == nil {
		return StreamError
	}
	bs, _ := s.state.(*backState)
	if bs == nil {
		return streamErr(s, "inflate-back stream not initialized")
	}
	if pull == nil || push == nil {
		return streamErr(s, "nil input or output behavior")
	}
	ctx := newBackContext(pull, push, desc)
	defer ctx.release()
	return bs.codec.inflateBack(s, bs.windowBits, bs.window, ctx)
}

// InflateBackEnd releases the backward-streaming state.
func InflateBackEnd(s *Stream) Status {
	if s == nil {
		return StreamError
	}
	if _, ok := s.state.(*backState); !ok {
		return streamErr(s, "inflate-back stream not initialized")
	}
	s.state = nil
	return Ok
}
