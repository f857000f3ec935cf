package segment

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"

	"github.com/valyala/bytebufferpool"
)

// entry is one variable of a segment.
type entry struct {
	key     VarKey
	payload []byte
}

// table is the decoded content of a segment, sorted by key.
type table []entry

func (t table) find(key VarKey) (int, bool) {
	i := sort.Search(len(t), func(i int) bool { return t[i].key >= key })
	return i, i < len(t) && t[i].key == key
}

func (t table) get(key VarKey) ([]byte, bool) {
	if i, ok := t.find(key); ok {
		return t[i].payload, true
	}
	return nil, false
}

func (t *table) put(key VarKey, payload []byte) {
	i, ok := t.find(key)
	if ok {
		(*t)[i].payload = payload
		return
	}
	*t = append(*t, entry{})
	copy((*t)[i+1:], (*t)[i:])
	(*t)[i] = entry{key: key, payload: payload}
}

func (t *table) remove(key VarKey) bool {
	i, ok := t.find(key)
	if !ok {
		return false
	}
	*t = append((*t)[:i], (*t)[i+1:]...)
	return true
}

// --------------------------------------------------------------------------
// Binary Layout (native segments)
// --------------------------------------------------------------------------

// A native segment starts with a fixed header followed by the encoded table:
//
//	header: magic "SKV1" | payload length u32 | reserved 8 bytes
//	table:  count u32 | (key u32 | len u32 | payload | padding to 4 bytes)*
//
// All integers are little endian. A segment without magic is empty.
const (
	headerSize     = 16
	tableCountSize = 4
	entryHeadSize  = 8
)

var magic = [4]byte{'S', 'K', 'V', '1'}

func align4(n int) int {
	return (n + 3) &^ 3
}

// binaryLen returns the number of bytes the encoded table occupies (without header).
func (t table) binaryLen() int {
	n := tableCountSize
	for _, e := range t {
		n += entryHeadSize + align4(len(e.payload))
	}
	return n
}

// encodeBinary writes header and table into mem. mem must be large enough.
func (t table) encodeBinary(mem []byte) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var word [4]byte
	var pad [3]byte
	binary.LittleEndian.PutUint32(word[:], uint32(len(t)))
	_, _ = buf.Write(word[:])
	for _, e := range t {
		binary.LittleEndian.PutUint32(word[:], uint32(e.key))
		_, _ = buf.Write(word[:])
		binary.LittleEndian.PutUint32(word[:], uint32(len(e.payload)))
		_, _ = buf.Write(word[:])
		_, _ = buf.Write(e.payload)
		_, _ = buf.Write(pad[:align4(len(e.payload))-len(e.payload)])
	}

	copy(mem[headerSize:], buf.B)
	copy(mem[0:4], magic[:])
	binary.LittleEndian.PutUint32(mem[4:8], uint32(buf.Len()))
}

// decodeBinary reads the table of a native segment. Payloads are copied out of mem.
func decodeBinary(mem []byte) (table, error) {
	if len(mem) < headerSize || !bytes.Equal(mem[0:4], magic[:]) {
		return table{}, nil
	}

	n := int(binary.LittleEndian.Uint32(mem[4:8]))
	if n < tableCountSize || headerSize+n > len(mem) {
		return nil, fmt.Errorf("%w: invalid payload length %d", ErrCorrupt, n)
	}
	data := mem[headerSize : headerSize+n]

	count := int(binary.LittleEndian.Uint32(data[0:4]))
	data = data[tableCountSize:]

	t := make(table, 0, count)
	for i := 0; i < count; i++ {
		if len(data) < entryHeadSize {
			return nil, fmt.Errorf("%w: truncated entry %d", ErrCorrupt, i)
		}
		key := VarKey(binary.LittleEndian.Uint32(data[0:4]))
		size := int(binary.LittleEndian.Uint32(data[4:8]))
		data = data[entryHeadSize:]
		if align4(size) > len(data) {
			return nil, fmt.Errorf("%w: entry %d exceeds table", ErrCorrupt, i)
		}
		payload := make([]byte, size)
		copy(payload, data[:size])
		t = append(t, entry{key: key, payload: payload})
		data = data[align4(size):]
	}

	sort.Slice(t, func(i, j int) bool { return t[i].key < t[j].key })
	return t, nil
}

// --------------------------------------------------------------------------
// Record Layout (segment files)
// --------------------------------------------------------------------------

// Segment files hold one record per entry:
//
//	decimal key | 0x1F | base64(payload) | 0x1E
//
// Payloads are base64 encoded because they may contain the separator bytes.
const (
	unitSep   = 0x1F
	recordSep = 0x1E
)

// encodeRecords writes the table in record layout to buf.
func (t table) encodeRecords(buf *bytebufferpool.ByteBuffer) {
	for _, e := range t {
		buf.B = strconv.AppendUint(buf.B, uint64(e.key), 10)
		buf.B = append(buf.B, unitSep)
		buf.B = base64.StdEncoding.AppendEncode(buf.B, e.payload)
		buf.B = append(buf.B, recordSep)
	}
}

// decodeRecords parses the content of a segment file.
func decodeRecords(data []byte) (table, error) {
	t := table{}
	for len(data) > 0 {
		end := bytes.IndexByte(data, recordSep)
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated record", ErrCorrupt)
		}
		record := data[:end]
		data = data[end+1:]
		if len(record) == 0 {
			continue
		}

		sep := bytes.IndexByte(record, unitSep)
		if sep < 0 {
			return nil, fmt.Errorf("%w: record without separator", ErrCorrupt)
		}
		key, err := strconv.ParseUint(string(record[:sep]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		payload, err := base64.StdEncoding.AppendDecode(nil, record[sep+1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		t.put(VarKey(key), payload)
	}
	return t, nil
}
