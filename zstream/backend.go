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

// Capability identifies an optional codec entry point. Whether a backend
// provides it natively is resolved once when the backend is constructed,
// never re-probed per call.
type Capability uint32

const (
	// CapPendingBits: exact pending byte/bit introspection on a stream.
	CapPendingBits Capability = 1 << iota
	// CapWindowReset: re-initializing an inflate stream with new window bits.
	CapWindowReset
	// CapStreamCopy: duplicating a mid-flight stream.
	CapStreamCopy
	// CapDictRead: reading back the current sliding-window dictionary.
	CapDictRead
	// CapInflateBack: backward-streaming decompression.
	CapInflateBack
)

// CapabilitySet is the resolved capability table of a backend.
type CapabilitySet uint32

func (c CapabilitySet) Has(cap Capability) bool { return uint32(c)&uint32(cap) != 0 }

type deflateConfig struct {
	level      int
	method     int
	windowBits int
	memLevel   int
	strategy   int
}

type inflateConfig struct {
	windowBits int
}

// Codec is the interface every codec backend implements. The exported
// forwarder functions validate arguments and delegate here; backends own all
// codec-internal state and report results in the shared Status space.
type Codec interface {
	// Name returns a human-readable backend identifier.
	Name() string

	// Native reports whether the backend is backed by a platform codec
	// library rather than a pure Go implementation.
	Native() bool

	// Capabilities returns the optional entry points this backend provides
	// natively. Operations outside the set are served by the compatibility
	// fallback layer.
	Capabilities() CapabilitySet

	newDeflate(cfg deflateConfig) (deflater, Status)
	newInflate(cfg inflateConfig) (inflater, Status)

	// inflateBack runs backward-streaming decompression over the callback
	// context. The context is owned by the caller (the trampoline entry
	// point) and must not be retained after return.
	inflateBack(s *Stream, windowBits int, window []byte, ctx *backContext) Status
}
