package cart

import (
	"bytes"
	"encoding/gob"
)

// encodeGob/decodeGob are tiny helpers shared by the MBC SaveState/
// LoadState implementations. gob is stdlib and matches the teacher's own
// choice for internal (non-savestate-file) serialization in bus.go.
func encodeGob(v interface{}) []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(v)
	return buf.Bytes()
}

func decodeGob(data []byte, v interface{}) bool {
	if len(data) == 0 {
		return false
	}
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v) == nil
}
