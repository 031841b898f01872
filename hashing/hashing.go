// Package hashing computes the content fingerprints vfsarc uses for
// dedup keys and integrity checks: MD5 over uncompressed page/file
// content, and CRC32 as a lighter-weight alternative fingerprint.
package hashing

import (
	"crypto/md5"
	"hash/crc32"
)

// Size is the length in bytes of an MD5 sum, as stored in a page index
// record.
const Size = md5.Size

// MD5 is the content-addressed dedup fingerprint: two pages or two small
// files with identical (size, MD5) are considered identical content.
type MD5 [Size]byte

// SumMD5 computes the MD5 fingerprint of b.
func SumMD5(b []byte) MD5 {
	return MD5(md5.Sum(b))
}

// SumCRC32 computes the IEEE CRC32 of b, used as a cheap alternative
// fingerprint (e.g. for header sanity checks) where a full MD5 would be
// overkill.
func SumCRC32(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}
