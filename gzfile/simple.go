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

package gzfile

// Simplified variants of the formatted-write and line-read operations.
// Unlike the rest of the package these return a bare success flag instead
// of a byte count: success means the complete transfer happened, and a
// partial transfer is indistinguishable from failure. Callers that need to
// tell the two apart use Write and Gets directly.

// WriteString writes s and reports whether all of it was written.
func (g *File) WriteString(s string) bool {
	n, err := g.Write([]byte(s))
	return err == nil && n == len(s)
}

// ReadLine reads one newline-terminated line, without the newline, and
// reports whether a line was read. The final line of a stream with no
// trailing newline still counts as a line.
func (g *File) ReadLine() (string, bool) {
	line, err := g.Gets(1 << 16)
	if err != nil || len(line) == 0 {
		return "", false
	}
	if line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	return line, true
}
