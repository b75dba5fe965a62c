package book

import (
	"hash/crc32"
	"strings"
)

// ChecksumLevels is the number of best levels per side covered by the
// integrity checksum, fixed by the wire protocol.
const ChecksumLevels = 25

// Checksum computes the signed 32-bit CRC (IEEE polynomial) over the
// canonical join of the top depth levels of each side. The canonical
// string interleaves bid and ask levels best-first:
//
//	bidPx:bidSz:askPx:askSz:bidPx:bidSz:...
//
// using the exchange's original price and size strings. When one side
// runs out of levels the remaining levels of the other side follow in
// order. Pinned against captured-frame fixtures in checksum_test.go.
func Checksum(bids, asks []Level, depth int) int32 {
	if depth <= 0 {
		depth = ChecksumLevels
	}

	fields := make([]string, 0, 4*depth)
	for i := 0; i < depth; i++ {
		if i < len(bids) {
			fields = append(fields, bids[i].PriceRaw, bids[i].SizeRaw)
		}
		if i < len(asks) {
			fields = append(fields, asks[i].PriceRaw, asks[i].SizeRaw)
		}
	}

	return int32(crc32.ChecksumIEEE([]byte(strings.Join(fields, ":"))))
}
