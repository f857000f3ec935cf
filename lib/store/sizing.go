package store

import (
	"math"

	"github.com/ValentinKolb/shmkv/lib/codec"
)

// Sizing constants of GetRequiredBytes. They are estimates for the native segment layout and
// may need tuning for other platforms.
var (
	// SizingBase is the fixed overhead of a segment.
	SizingBase = 24
	// SizingEntryOverhead is the fixed overhead of one entry.
	SizingEntryOverhead = 8
	// SizingAlignment is the alignment of entry payloads.
	SizingAlignment = 4
	// SizingMultiplier absorbs growth when values are overwritten in place.
	SizingMultiplier = 1.5
)

// DefaultSegmentSize is the segment capacity used when no size hint is given.
const DefaultSegmentSize = 10000

// GetRequiredBytes estimates the segment size needed to store values (serialized with the
// default serializer). The result can be passed as Options.SizeHint.
func GetRequiredBytes(values ...any) (int, error) {
	serializer := codec.Default()

	n := SizingBase
	for _, v := range values {
		b, err := serializer.Serialize(v)
		if err != nil {
			return 0, wrapError(RetCInvalidOperation, err, "cannot serialize %T", v)
		}
		n += SizingEntryOverhead + roundUp(len(b), SizingAlignment)
	}
	return int(math.Ceil(float64(n) * SizingMultiplier)), nil
}

// bookkeepingBytes is the space reserved for the bookkeeping entries on top of a size hint.
func bookkeepingBytes() int {
	n, _ := GetRequiredBytes(int64(math.MaxInt64), int64(math.MaxInt64))
	return n
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}
