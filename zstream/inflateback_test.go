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
	"testing"
)

// rawDeflate produces a bare deflate block stream for the backward-streaming
// tests.
func rawDeflate(t *testing.T, payload []byte) []byte {
	t.Helper()
	var s Stream
	if st := DeflateInit2(&s, DefaultCompression, Deflated, -MaxWindowBits, DefMemLevel, DefaultStrategy); st != Ok {
		t.Fatalf("DeflateInit2(raw): %v", st)
	}
	defer DeflateEnd(&s)
	return deflateChunk(t, &s, payload, Finish)
}

// backFixture is the opaque descriptor handed through the callback layer.
type backFixture struct {
	chunks [][]byte
	next   int
	out    []byte
	pulls  int
	pushes int
}

func (f *backFixture) pull(desc any) []byte {
	if desc.(*backFixture) != f {
		panic("descriptor not threaded through pull")
	}
	f.pulls++
	if f.next >= len(f.chunks) {
		return nil
	}
	c := f.chunks[f.next]
	f.next++
	return c
}

func (f *backFixture) push(desc any, block []byte) int {
	if desc.(*backFixture) != f {
		panic("descriptor not threaded through push")
	}
	f.pushes++
	f.out = append(f.out, block...)
	return len(block)
}

func splitChunks(data []byte, size int) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

func TestInflateBackRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("backward-streaming payload, pulled in small chunks. "), 256)
	compressed := rawDeflate(t, payload)

	for _, chunk := range []int{5, 64, len(compressed)} {
		var s Stream
		window := make([]byte, 1<<MaxWindowBits)
		if st := InflateBackInit(&s, MaxWindowBits, window); st != Ok {
			t.Fatalf("InflateBackInit: %v", st)
		}
		fix := &backFixture{chunks: splitChunks(compressed, chunk)}
		if st := InflateBack(&s, fix.pull, fix.push, fix); st != StreamEnd {
			t.Fatalf("chunk %d: InflateBack: %v (%s)", chunk, st, s.Msg)
		}
		if !bytes.Equal(fix.out, payload) {
			t.Fatalf("chunk %d: output mismatch, %d bytes", chunk, len(fix.out))
		}
		if s.TotalIn != uint64(len(compressed)) || s.TotalOut != uint64(len(payload)) {
			t.Errorf("chunk %d: totals %d/%d, want %d/%d",
				chunk, s.TotalIn, s.TotalOut, len(compressed), len(payload))
		}
		if n := liveBackContexts.Load(); n != 0 {
			t.Fatalf("chunk %d: %d callback contexts still live", chunk, n)
		}
		if st := InflateBackEnd(&s); st != Ok {
			t.Fatalf("InflateBackEnd: %v", st)
		}
	}
}

// Bytes already sitting in the input cursor are consumed before the first
// pull.
func TestInflateBackInitialInputCursor(t *testing.T) {
	payload := []byte("cursor bytes come before pulled bytes")
	compressed := rawDeflate(t, payload)

	var s Stream
	window := make([]byte, 1<<MaxWindowBits)
	if st := InflateBackInit(&s, MaxWindowBits, window); st != Ok {
		t.Fatalf("InflateBackInit: %v", st)
	}
	s.NextIn = compressed[:3]
	fix := &backFixture{chunks: [][]byte{compressed[3:]}}
	if st := InflateBack(&s, fix.pull, fix.push, fix); st != StreamEnd {
		t.Fatalf("InflateBack: %v (%s)", st, s.Msg)
	}
	if !bytes.Equal(fix.out, payload) {
		t.Fatal("output mismatch")
	}
}

// A consumer abort terminates the operation with StreamError, and the
// callback context is released exactly once on that path too.
func TestInflateBackConsumerAbort(t *testing.T) {
	payload := bytes.Repeat([]byte("abort me "), 128)
	compressed := rawDeflate(t, payload)

	var s Stream
	window := make([]byte, 1<<MaxWindowBits)
	if st := InflateBackInit(&s, MaxWindowBits, window); st != Ok {
		t.Fatalf("InflateBackInit: %v", st)
	}
	fix := &backFixture{chunks: [][]byte{compressed}}
	aborting := func(desc any, block []byte) int {
		fix.pushes++
		return len(block) - 1 // partial consumption is an abort
	}
	if st := InflateBack(&s, fix.pull, aborting, fix); st != StreamError {
		t.Fatalf("InflateBack with aborting consumer: %v, want StreamError", st)
	}
	if s.Msg == "" {
		t.Error("no diagnostic recorded for the abort")
	}
	if fix.pushes != 1 {
		t.Errorf("consumer called %d times after aborting", fix.pushes)
	}
	if n := liveBackContexts.Load(); n != 0 {
		t.Fatalf("%d callback contexts still live after abort", n)
	}
	if st := InflateBackEnd(&s); st != Ok {
		t.Fatalf("InflateBackEnd after abort: %v", st)
	}
}

func TestInflateBackNilBehaviors(t *testing.T) {
	var s Stream
	window := make([]byte, 1<<MaxWindowBits)
	if st := InflateBackInit(&s, MaxWindowBits, window); st != Ok {
		t.Fatalf("InflateBackInit: %v", st)
	}
	fix := &backFixture{}
	if st := InflateBack(&s, nil, fix.push, fix); st != StreamError {
		t.Errorf("nil pull: %v", st)
	}
	if st := InflateBack(&s, fix.pull, nil, fix); st != StreamError {
		t.Errorf("nil push: %v", st)
	}
	// Rejected before any context was allocated.
	if n := liveBackContexts.Load(); n != 0 {
		t.Fatalf("%d callback contexts live after rejected calls", n)
	}
}

func TestInflateBackInitValidation(t *testing.T) {
	if st := InflateBackInit(nil, MaxWindowBits, make([]byte, 1<<MaxWindowBits)); st != StreamError {
		t.Errorf("nil stream: %v", st)
	}
	var s Stream
	if st := InflateBackInit(&s, 16, make([]byte, 1<<16)); st != StreamError {
		t.Errorf("oversized window bits: %v", st)
	}
	if st := InflateBackInit(&s, MaxWindowBits, make([]byte, 100)); st != StreamError {
		t.Errorf("undersized window: %v", st)
	}
	if st := InflateBackEnd(&s); st != StreamError {
		t.Errorf("end without init: %v", st)
	}
}

// Pulled input past the end of the deflate stream must not upset the
// operation or its byte accounting: the codec stops at the final block and
// only the bytes it actually read count.
func TestInflateBackTrailingInput(t *testing.T) {
	payload := bytes.Repeat([]byte("trailing bytes follow the final block "), 64)
	compressed := rawDeflate(t, payload)
	withTrailer := append(append([]byte(nil), compressed...), []byte("GARBAGE-AFTER-END")...)

	var s Stream
	window := make([]byte, 1<<MaxWindowBits)
	if st := InflateBackInit(&s, MaxWindowBits, window); st != Ok {
		t.Fatalf("InflateBackInit: %v", st)
	}
	fix := &backFixture{chunks: [][]byte{withTrailer}}
	if st := InflateBack(&s, fix.pull, fix.push, fix); st != StreamEnd {
		t.Fatalf("InflateBack: %v (%s)", st, s.Msg)
	}
	if !bytes.Equal(fix.out, payload) {
		t.Fatal("output mismatch")
	}
	if s.TotalIn < uint64(len(compressed)) || s.TotalIn > uint64(len(withTrailer)) {
		t.Errorf("TotalIn = %d, want between %d and %d",
			s.TotalIn, len(compressed), len(withTrailer))
	}
	if n := liveBackContexts.Load(); n != 0 {
		t.Fatalf("%d callback contexts still live", n)
	}
	if st := InflateBackEnd(&s); st != Ok {
		t.Fatalf("InflateBackEnd: %v", st)
	}
}

func TestInflateBackTruncatedInput(t *testing.T) {
	payload := bytes.Repeat([]byte("truncated "), 512)
	compressed := rawDeflate(t, payload)

	var s Stream
	window := make([]byte, 1<<MaxWindowBits)
	if st := InflateBackInit(&s, MaxWindowBits, window); st != Ok {
		t.Fatalf("InflateBackInit: %v", st)
	}
	fix := &backFixture{chunks: [][]byte{compressed[:len(compressed)/2]}}
	st := InflateBack(&s, fix.pull, fix.push, fix)
	if st != BufError && st != DataError {
		t.Fatalf("truncated input: %v, want BufError or DataError", st)
	}
	if n := liveBackContexts.Load(); n != 0 {
		t.Fatalf("%d callback contexts still live", n)
	}
}

func TestInflateBackCorruptInput(t *testing.T) {
	var s Stream
	window := make([]byte, 1<<MaxWindowBits)
	if st := InflateBackInit(&s, MaxWindowBits, window); st != Ok {
		t.Fatalf("InflateBackInit: %v", st)
	}
	// 0xff opens a block with an invalid type.
	fix := &backFixture{chunks: [][]byte{bytes.Repeat([]byte{0xff}, 32)}}
	if st := InflateBack(&s, fix.pull, fix.push, fix); st != DataError {
		t.Fatalf("corrupt input: %v, want DataError", st)
	}
	if n := liveBackContexts.Load(); n != 0 {
		t.Fatalf("%d callback contexts still live", n)
	}
}
