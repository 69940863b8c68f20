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
	"strings"
	"testing"
)

func TestActiveCodecSelection(t *testing.T) {
	c := ActiveCodec()
	if c == nil {
		t.Fatal("no codec selected")
	}
	if c.Name() == "" {
		t.Error("codec has no name")
	}
	if !c.Native() {
		// The pure Go backend always carries these two.
		if !c.Capabilities().Has(CapWindowReset) {
			t.Error("pure backend lost CapWindowReset")
		}
		if !c.Capabilities().Has(CapInflateBack) {
			t.Error("pure backend lost CapInflateBack")
		}
	}
}

type fakeCodec struct {
	pureCodec
	name string
}

func (f *fakeCodec) Name() string { return f.name }

func TestSetCodecOverride(t *testing.T) {
	prev := ActiveCodec()
	defer SetCodec(prev)

	SetCodec(&fakeCodec{name: "test-override"})
	if got := ActiveCodec().Name(); got != "test-override" {
		t.Fatalf("ActiveCodec().Name() = %q after override", got)
	}

	// Streams initialized under the override use it.
	var s Stream
	if st := DeflateInit(&s, DefaultCompression); st != Ok {
		t.Fatalf("DeflateInit under override: %v", st)
	}
	DeflateEnd(&s)
}

func TestVersionNamesBackend(t *testing.T) {
	v := Version()
	if !strings.Contains(v, ActiveCodec().Name()) {
		t.Errorf("Version() = %q does not name the backend", v)
	}
	if !strings.HasPrefix(v, bridgeVersion) {
		t.Errorf("Version() = %q does not start with %q", v, bridgeVersion)
	}
}
