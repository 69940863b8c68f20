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

// Compatibility fallbacks for optional codec entry points. Each fallback is
// keyed to a missing Capability on the active backend, never to a runtime
// codec failure, and is strictly weaker than the native answer:
//
//   - CapPendingBits absent: pendingBitsEstimate below. Callers must not
//     rely on bit-exact results from the estimate.
//   - CapWindowReset absent: InflateReset2 degrades to a plain reset and the
//     window-size hint is ignored.
//   - CapStreamCopy or CapDictRead absent: the operation fails with
//     StreamError and a diagnostic; there is no meaningful substitute.

// pendingBitsEstimate approximates pending output introspection from the
// observable cursor state: an exhausted output cursor suggests the codec is
// holding data back, an open one suggests it is drained. Bits within the
// current byte are unknowable without codec support and reported as zero.
func pendingBitsEstimate(s *Stream) (pending, bits int) {
	if len(s.NextOut) == 0 {
		return 1, 0
	}
	return 0, 0
}
