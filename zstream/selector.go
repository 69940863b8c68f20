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
	"os"
	"sync"

	"github.com/containerd/log"
)

var (
	defaultCodec Codec
	once         sync.Once
)

// ActiveCodec returns the codec backend used by every stream initialized
// afterwards. Selection happens once: the ZBRIDGE_BACKEND environment
// variable ("pure" or "native") wins, otherwise the native libz backend is
// preferred when it was compiled in and probes as usable, with the pure Go
// backend as the fallback.
func ActiveCodec() Codec {
	once.Do(func() {
		switch os.Getenv("ZBRIDGE_BACKEND") {
		case "pure":
			defaultCodec = newPureCodec()
		case "native":
			if c := nativeCodec(); c != nil {
				defaultCodec = c
			} else {
				log.L.Warnf("ZBRIDGE_BACKEND=native but no native backend is available, using pure Go")
				defaultCodec = newPureCodec()
			}
		default:
			if c := nativeCodec(); c != nil {
				defaultCodec = c
			} else {
				defaultCodec = newPureCodec()
			}
		}
		log.L.Debugf("zbridge: using %s codec backend (capabilities %#x)",
			defaultCodec.Name(), defaultCodec.Capabilities())
	})
	return defaultCodec
}

// SetCodec overrides the selected backend (mainly for testing).
func SetCodec(c Codec) {
	once.Do(func() {})
	defaultCodec = c
}
