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

import "hash/crc32"

// AdlerInit is the adler32 seed for an empty byte range.
const AdlerInit uint32 = 1

const (
	adlerBase = 65521
	// adlerNMax is the largest n such that 255*n*(n+1)/2 + (n+1)*(adlerBase-1)
	// fits in 32 bits, so the sums only need reducing once per block.
	adlerNMax = 5552
)

func adler32Update(adler uint32, p []byte) uint32 {
	s1, s2 := adler&0xffff, adler>>16
	for len(p) > 0 {
		n := len(p)
		if n > adlerNMax {
			n = adlerNMax
		}
		for _, b := range p[:n] {
			s1 += uint32(b)
			s2 += s1
		}
		s1 %= adlerBase
		s2 %= adlerBase
		p = p[n:]
	}
	return s2<<16 | s1
}

// Adler32 folds buf into a running adler32 checksum. A nil buffer leaves the
// running value unchanged: Adler32(seed, nil) == seed, the checksum is the
// identity under empty input.
func Adler32(adler uint32, buf []byte) uint32 {
	if buf == nil {
		return adler
	}
	return adler32Update(adler, buf)
}

// CRC32 folds buf into a running IEEE crc32 checksum, with the same nil
// buffer identity as Adler32.
func CRC32(crc uint32, buf []byte) uint32 {
	if buf == nil {
		return crc
	}
	return crc32.Update(crc, crc32.IEEETable, buf)
}
