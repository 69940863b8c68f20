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
	"time"
)

// deflateStream compresses payload through the streaming surface, feeding
// input in inChunk-byte pieces and draining output through an outChunk-byte
// cursor.
func deflateStream(t *testing.T, s *Stream, payload []byte, inChunk, outChunk int) []byte {
	t.Helper()
	var compressed []byte
	outBuf := make([]byte, outChunk)

	for off := 0; off < len(payload); off += inChunk {
		end := off + inChunk
		if end > len(payload) {
			end = len(payload)
		}
		s.NextIn = payload[off:end]
		for {
			s.NextOut = outBuf
			if st := Deflate(s, NoFlush); st != Ok {
				t.Fatalf("Deflate: %v (%s)", st, s.Msg)
			}
			compressed = append(compressed, outBuf[:outChunk-len(s.NextOut)]...)
			if len(s.NextIn) == 0 {
				break
			}
		}
	}
	for {
		s.NextOut = outBuf
		st := Deflate(s, Finish)
		compressed = append(compressed, outBuf[:outChunk-len(s.NextOut)]...)
		if st == StreamEnd {
			break
		}
		if st != Ok {
			t.Fatalf("Deflate(Finish): %v (%s)", st, s.Msg)
		}
	}
	return compressed
}

// inflateStream decompresses through the streaming surface with chunked
// cursors and requires a clean StreamEnd. BufError with a drained input
// cursor is the codec asking for the next chunk, not a failure.
func inflateStream(t *testing.T, s *Stream, compressed []byte, inChunk, outChunk int) []byte {
	t.Helper()
	var out []byte
	outBuf := make([]byte, outChunk)

	for off := 0; off < len(compressed); off += inChunk {
		end := off + inChunk
		if end > len(compressed) {
			end = len(compressed)
		}
		s.NextIn = compressed[off:end]
		for {
			s.NextOut = outBuf
			st := Inflate(s, NoFlush)
			out = append(out, outBuf[:outChunk-len(s.NextOut)]...)
			switch st {
			case StreamEnd:
				if end != len(compressed) || len(s.NextIn) != 0 {
					t.Fatalf("premature stream end with %d input bytes left",
						len(compressed)-end+len(s.NextIn))
				}
				return out
			case Ok:
			case BufError:
				if len(s.NextIn) != 0 {
					t.Fatalf("Inflate stalled with %d input bytes unread (%s)",
						len(s.NextIn), s.Msg)
				}
			default:
				t.Fatalf("Inflate: %v (%s)", st, s.Msg)
			}
			if len(s.NextIn) == 0 && len(s.NextOut) > 0 {
				break
			}
		}
	}
	// Input is fully consumed but the end marker has not surfaced yet.
	for {
		s.NextOut = outBuf
		st := Inflate(s, Finish)
		out = append(out, outBuf[:outChunk-len(s.NextOut)]...)
		if st == StreamEnd {
			return out
		}
		if st != Ok {
			t.Fatalf("Inflate tail: %v (%s)", st, s.Msg)
		}
	}
}

func TestStreamingRoundTripChunked(t *testing.T) {
	payload := bytes.Repeat([]byte("streaming round trip payload, deliberately repetitive. "), 512)
	tests := []struct {
		name        string
		deflateBits int
		inflateBits int
	}{
		{"zlib", MaxWindowBits, MaxWindowBits},
		{"raw", -MaxWindowBits, -MaxWindowBits},
		{"gzip", MaxWindowBits + 16, MaxWindowBits + 16},
		// A deflater may widen a small requested window, so the inflate side
		// uses the full one.
		{"small deflate window", 9, MaxWindowBits},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ds Stream
			if st := DeflateInit2(&ds, DefaultCompression, Deflated, tt.deflateBits, DefMemLevel, DefaultStrategy); st != Ok {
				t.Fatalf("DeflateInit2: %v", st)
			}
			defer DeflateEnd(&ds)
			compressed := deflateStream(t, &ds, payload, 7, 13)

			if ds.TotalIn != uint64(len(payload)) {
				t.Errorf("TotalIn = %d, want %d", ds.TotalIn, len(payload))
			}
			if ds.TotalOut != uint64(len(compressed)) {
				t.Errorf("TotalOut = %d, want %d", ds.TotalOut, len(compressed))
			}

			var is Stream
			if st := InflateInit2(&is, tt.inflateBits); st != Ok {
				t.Fatalf("InflateInit2: %v", st)
			}
			defer InflateEnd(&is)
			out := inflateStream(t, &is, compressed, 11, 17)
			if !bytes.Equal(out, payload) {
				t.Fatalf("round trip mismatch: %d bytes out, want %d", len(out), len(payload))
			}
			if is.TotalOut != uint64(len(payload)) {
				t.Errorf("inflate TotalOut = %d, want %d", is.TotalOut, len(payload))
			}
		})
	}
}

func TestAutoDetectWrapper(t *testing.T) {
	payload := []byte("auto-detected framing")
	for _, wb := range []int{MaxWindowBits, MaxWindowBits + 16} {
		var ds Stream
		if st := DeflateInit2(&ds, DefaultCompression, Deflated, wb, DefMemLevel, DefaultStrategy); st != Ok {
			t.Fatalf("DeflateInit2(%d): %v", wb, st)
		}
		compressed := deflateStream(t, &ds, payload, len(payload), 256)
		DeflateEnd(&ds)

		var is Stream
		if st := InflateInit2(&is, MaxWindowBits+32); st != Ok {
			t.Fatalf("InflateInit2(+32): %v", st)
		}
		out := inflateStream(t, &is, compressed, len(compressed), 256)
		InflateEnd(&is)
		if !bytes.Equal(out, payload) {
			t.Fatalf("windowBits %d: auto-detect mismatch", wb)
		}
	}
}

// A sync flush must make everything written so far decodable without the
// stream's end.
func TestDeflateSyncFlushMakesPrefixDecodable(t *testing.T) {
	var ds Stream
	if st := DeflateInit(&ds, DefaultCompression); st != Ok {
		t.Fatalf("DeflateInit: %v", st)
	}
	defer DeflateEnd(&ds)

	out := make([]byte, 256)
	ds.NextIn = []byte("hello ")
	ds.NextOut = out
	if st := Deflate(&ds, SyncFlush); st != Ok {
		t.Fatalf("Deflate(SyncFlush): %v (%s)", st, ds.Msg)
	}
	prefix := out[:256-len(ds.NextOut)]

	var is Stream
	if st := InflateInit(&is); st != Ok {
		t.Fatalf("InflateInit: %v", st)
	}
	defer InflateEnd(&is)
	dec := make([]byte, 64)
	is.NextIn = prefix
	is.NextOut = dec
	if st := Inflate(&is, NoFlush); st != Ok {
		t.Fatalf("Inflate over flushed prefix: %v (%s)", st, is.Msg)
	}
	if got := string(dec[:64-len(is.NextOut)]); got != "hello " {
		t.Fatalf("flushed prefix decoded to %q", got)
	}

	// Finish the stream and hand the inflater the rest.
	ds.NextIn = []byte("world")
	ds.NextOut = out
	if st := Deflate(&ds, Finish); st != StreamEnd {
		t.Fatalf("Deflate(Finish): %v (%s)", st, ds.Msg)
	}
	is.NextIn = out[:256-len(ds.NextOut)]
	is.NextOut = dec
	if st := Inflate(&is, Finish); st != StreamEnd {
		t.Fatalf("Inflate tail: %v (%s)", st, is.Msg)
	}
	if got := string(dec[:64-len(is.NextOut)]); got != "world" {
		t.Fatalf("tail decoded to %q", got)
	}
}

func TestDeflateParamsMidStream(t *testing.T) {
	payload := bytes.Repeat([]byte("level change mid-stream "), 1024)
	var ds Stream
	if st := DeflateInit(&ds, BestSpeed); st != Ok {
		t.Fatalf("DeflateInit: %v", st)
	}
	defer DeflateEnd(&ds)

	half := len(payload) / 2
	first := deflateChunk(t, &ds, payload[:half], NoFlush)
	if st := DeflateParams(&ds, BestCompression, DefaultStrategy); st != Ok {
		t.Fatalf("DeflateParams: %v (%s)", st, ds.Msg)
	}
	rest := deflateChunk(t, &ds, payload[half:], Finish)

	var is Stream
	if st := InflateInit(&is); st != Ok {
		t.Fatalf("InflateInit: %v", st)
	}
	defer InflateEnd(&is)
	compressed := append(first, rest...)
	out := inflateStream(t, &is, compressed, len(compressed), 4096)
	if !bytes.Equal(out, payload) {
		t.Fatal("round trip across DeflateParams mismatch")
	}

	if st := DeflateParams(&ds, 42, DefaultStrategy); st != StreamError {
		t.Fatalf("invalid level accepted: %v", st)
	}
}

// deflateChunk runs one payload through an initialized stream with a
// generously sized output buffer.
func deflateChunk(t *testing.T, s *Stream, payload []byte, flush Flush) []byte {
	t.Helper()
	out := make([]byte, len(payload)+512)
	s.NextIn = payload
	s.NextOut = out
	st := Deflate(s, flush)
	if flush == Finish && st != StreamEnd {
		t.Fatalf("Deflate(Finish): %v (%s)", st, s.Msg)
	}
	if flush != Finish && st != Ok {
		t.Fatalf("Deflate: %v (%s)", st, s.Msg)
	}
	return out[:len(out)-len(s.NextOut)]
}

func TestDeflateResetReusesStream(t *testing.T) {
	var s Stream
	if st := DeflateInit(&s, DefaultCompression); st != Ok {
		t.Fatalf("DeflateInit: %v", st)
	}
	defer DeflateEnd(&s)

	first := deflateChunk(t, &s, []byte("first stream"), Finish)
	if st := DeflateReset(&s); st != Ok {
		t.Fatalf("DeflateReset: %v", st)
	}
	if s.TotalIn != 0 || s.TotalOut != 0 {
		t.Fatalf("totals survived reset: %d/%d", s.TotalIn, s.TotalOut)
	}
	second := deflateChunk(t, &s, []byte("second stream"), Finish)

	for i, c := range [][]byte{first, second} {
		var is Stream
		if st := InflateInit(&is); st != Ok {
			t.Fatalf("InflateInit: %v", st)
		}
		out := inflateStream(t, &is, c, len(c), 64)
		InflateEnd(&is)
		want := []string{"first stream", "second stream"}[i]
		if string(out) != want {
			t.Fatalf("stream %d decoded to %q", i, out)
		}
	}
}

func TestInflateResetReusesStream(t *testing.T) {
	var ds Stream
	if st := DeflateInit(&ds, DefaultCompression); st != Ok {
		t.Fatalf("DeflateInit: %v", st)
	}
	compressed := deflateChunk(t, &ds, []byte("replayed payload"), Finish)
	DeflateEnd(&ds)

	var is Stream
	if st := InflateInit(&is); st != Ok {
		t.Fatalf("InflateInit: %v", st)
	}
	defer InflateEnd(&is)
	for round := 0; round < 3; round++ {
		out := inflateStream(t, &is, compressed, len(compressed), 64)
		if string(out) != "replayed payload" {
			t.Fatalf("round %d decoded to %q", round, out)
		}
		if st := InflateReset(&is); st != Ok {
			t.Fatalf("InflateReset: %v", st)
		}
	}
}

// No input, no output space, no flush demand: the step cannot make progress
// and must say so rather than spin.
func TestNoProgressIsBufError(t *testing.T) {
	var ds Stream
	if st := DeflateInit(&ds, DefaultCompression); st != Ok {
		t.Fatalf("DeflateInit: %v", st)
	}
	defer DeflateEnd(&ds)
	ds.NextIn, ds.NextOut = nil, nil
	if st := Deflate(&ds, NoFlush); st != BufError {
		t.Fatalf("Deflate no-progress: %v, want BufError", st)
	}

	// An exhausted output cursor refuses the step outright, consuming
	// nothing, even when input is available.
	ds.NextIn, ds.NextOut = []byte("held"), nil
	if st := Deflate(&ds, NoFlush); st != BufError {
		t.Fatalf("Deflate with exhausted output: %v, want BufError", st)
	}
	if len(ds.NextIn) != 4 {
		t.Fatalf("input consumed despite exhausted output cursor")
	}

	var is Stream
	if st := InflateInit(&is); st != Ok {
		t.Fatalf("InflateInit: %v", st)
	}
	defer InflateEnd(&is)
	is.NextIn, is.NextOut = nil, nil
	if st := Inflate(&is, NoFlush); st != BufError {
		t.Fatalf("Inflate no-progress: %v, want BufError", st)
	}
}

func TestUninitializedStreamRejected(t *testing.T) {
	var s Stream
	if st := Deflate(&s, NoFlush); st != StreamError {
		t.Errorf("Deflate: %v", st)
	}
	if st := Inflate(&s, NoFlush); st != StreamError {
		t.Errorf("Inflate: %v", st)
	}
	if st := DeflateEnd(&s); st != StreamError {
		t.Errorf("DeflateEnd: %v", st)
	}
	if st := InflateEnd(&s); st != StreamError {
		t.Errorf("InflateEnd: %v", st)
	}
	if st := InflateBack(&s, nil, nil, nil); st != StreamError {
		t.Errorf("InflateBack: %v", st)
	}
	if _, _, st := DeflatePending(&s); st != StreamError {
		t.Errorf("DeflatePending: %v", st)
	}
}

func TestDeflateInitValidation(t *testing.T) {
	tests := []struct {
		name                                       string
		level, method, windowBits, memLevel, strat int
	}{
		{"bad method", DefaultCompression, 9, MaxWindowBits, DefMemLevel, DefaultStrategy},
		{"bad level", 17, Deflated, MaxWindowBits, DefMemLevel, DefaultStrategy},
		{"bad window", DefaultCompression, Deflated, 3, DefMemLevel, DefaultStrategy},
		{"bad memLevel", DefaultCompression, Deflated, MaxWindowBits, 0, DefaultStrategy},
		{"bad strategy", DefaultCompression, Deflated, MaxWindowBits, DefMemLevel, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Stream
			if st := DeflateInit2(&s, tt.level, tt.method, tt.windowBits, tt.memLevel, tt.strat); st != StreamError {
				t.Fatalf("got %v, want StreamError", st)
			}
			if s.Msg == "" {
				t.Fatal("no diagnostic message recorded")
			}
		})
	}
	if st := DeflateInit(nil, DefaultCompression); st != StreamError {
		t.Errorf("nil stream: %v", st)
	}
	var s Stream
	if st := InflateInit2(&s, 99); st != StreamError {
		t.Errorf("inflate bad window: %v", st)
	}
}

func TestGzipHeaderRoundTrip(t *testing.T) {
	payload := []byte("gzip member with metadata")
	set := &Header{
		Name:    "payload.txt",
		Comment: "round-trip comment",
		Extra:   []byte{0x01, 0x02, 0x03, 0x04},
		ModTime: time.Unix(1234567890, 0),
		OS:      3,
	}

	var ds Stream
	if st := DeflateInit2(&ds, DefaultCompression, Deflated, MaxWindowBits+16, DefMemLevel, DefaultStrategy); st != Ok {
		t.Fatalf("DeflateInit2: %v", st)
	}
	defer DeflateEnd(&ds)
	if st := DeflateSetHeader(&ds, set); st != Ok {
		t.Fatalf("DeflateSetHeader: %v (%s)", st, ds.Msg)
	}
	compressed := deflateChunk(t, &ds, payload, Finish)

	var is Stream
	if st := InflateInit2(&is, MaxWindowBits+16); st != Ok {
		t.Fatalf("InflateInit2: %v", st)
	}
	defer InflateEnd(&is)
	got := &Header{ExtraMax: 64, NameMax: 64, CommentMax: 64}
	if st := InflateGetHeader(&is, got); st != Ok {
		t.Fatalf("InflateGetHeader: %v (%s)", st, is.Msg)
	}
	out := inflateStream(t, &is, compressed, len(compressed), 128)
	if !bytes.Equal(out, payload) {
		t.Fatal("payload mismatch")
	}

	if !got.Done {
		t.Fatal("header not marked done")
	}
	if got.Name != set.Name || got.Comment != set.Comment {
		t.Errorf("name/comment = %q/%q", got.Name, got.Comment)
	}
	if !bytes.Equal(got.Extra, set.Extra) {
		t.Errorf("extra = %x", got.Extra)
	}
	if !got.ModTime.Equal(set.ModTime) {
		t.Errorf("modtime = %v, want %v", got.ModTime, set.ModTime)
	}
}

// The zlib header's window field must describe a window the emitted
// distances actually fit in: a decoder granted exactly the declared window
// has to accept the stream.
func TestZlibHeaderDeclaresUsableWindow(t *testing.T) {
	payload := bytes.Repeat([]byte("window declaration check, repetitive on purpose. "), 1024)
	var ds Stream
	if st := DeflateInit2(&ds, DefaultCompression, Deflated, 9, DefMemLevel, DefaultStrategy); st != Ok {
		t.Fatalf("DeflateInit2: %v", st)
	}
	defer DeflateEnd(&ds)
	compressed := deflateStream(t, &ds, payload, 4096, 4096)

	declared := int(compressed[0]>>4) + 8
	if declared < MinWindowBits || declared > MaxWindowBits {
		t.Fatalf("header declares window bits %d", declared)
	}
	var is Stream
	if st := InflateInit2(&is, declared); st != Ok {
		t.Fatalf("InflateInit2(%d): %v", declared, st)
	}
	defer InflateEnd(&is)
	out := inflateStream(t, &is, compressed, len(compressed), 4096)
	if !bytes.Equal(out, payload) {
		t.Fatal("round trip under the declared window mismatch")
	}
}

// Caps on the inflate-side header record clip the recovered fields instead
// of overflowing them.
func TestGzipHeaderCapsClipFields(t *testing.T) {
	var ds Stream
	if st := DeflateInit2(&ds, DefaultCompression, Deflated, MaxWindowBits+16, DefMemLevel, DefaultStrategy); st != Ok {
		t.Fatalf("DeflateInit2: %v", st)
	}
	defer DeflateEnd(&ds)
	set := &Header{
		Name:    "very-long-file-name.txt",
		Comment: "a comment longer than its cap",
		Extra:   []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
	if st := DeflateSetHeader(&ds, set); st != Ok {
		t.Fatalf("DeflateSetHeader: %v", st)
	}
	compressed := deflateChunk(t, &ds, []byte("capped header payload"), Finish)

	var is Stream
	if st := InflateInit2(&is, MaxWindowBits+16); st != Ok {
		t.Fatalf("InflateInit2: %v", st)
	}
	defer InflateEnd(&is)
	got := &Header{ExtraMax: 2, NameMax: 4, CommentMax: 3}
	if st := InflateGetHeader(&is, got); st != Ok {
		t.Fatalf("InflateGetHeader: %v", st)
	}
	out := inflateStream(t, &is, compressed, len(compressed), 128)
	if string(out) != "capped header payload" {
		t.Fatal("payload mismatch")
	}
	if !got.Done {
		t.Fatal("header not marked done")
	}
	if got.Name != "very" {
		t.Errorf("name = %q, want %q", got.Name, "very")
	}
	if got.Comment != "a c" {
		t.Errorf("comment = %q, want %q", got.Comment, "a c")
	}
	if !bytes.Equal(got.Extra, []byte{1, 2}) {
		t.Errorf("extra = %v, want [1 2]", got.Extra)
	}
}

func TestSetHeaderRejected(t *testing.T) {
	var s Stream
	if st := DeflateInit(&s, DefaultCompression); st != Ok {
		t.Fatalf("DeflateInit: %v", st)
	}
	defer DeflateEnd(&s)
	// zlib framing has no header record.
	if st := DeflateSetHeader(&s, &Header{}); st != StreamError {
		t.Fatalf("header on zlib stream: %v", st)
	}
	if st := DeflateSetHeader(&s, nil); st != StreamError {
		t.Fatalf("nil header: %v", st)
	}
}

func TestStatusSurface(t *testing.T) {
	if Ok.Err() != nil || StreamEnd.Err() != nil {
		t.Error("success statuses must map to nil errors")
	}
	for _, st := range []Status{NeedDict, Errno, StreamError, DataError, MemError, BufError, VersionError} {
		if st.Err() == nil {
			t.Errorf("%v maps to nil error", st)
		}
		if ZError(st) == "" || ZError(st) == "unknown status" {
			t.Errorf("%d has no description", st)
		}
	}
}
