package export

// StringTable interns names into the text section. Offset 0 is always the
// empty string once anything has been added.
type StringTable struct {
	data    []byte
	offsets map[string]uint32
}

// NewStringTable returns an empty table.
func NewStringTable() *StringTable {
	return &StringTable{offsets: make(map[string]uint32)}
}

// Add returns the offset of s, appending it NUL-terminated on first use.
func (t *StringTable) Add(s string) uint32 {
	if len(t.data) == 0 {
		t.data = append(t.data, 0)
		t.offsets[""] = 0
	}
	if ofs, ok := t.offsets[s]; ok {
		return ofs
	}
	ofs := uint32(len(t.data))
	t.data = append(t.data, s...)
	t.data = append(t.data, 0)
	t.offsets[s] = ofs
	return ofs
}

// Len is the unpadded size of the table in bytes.
func (t *StringTable) Len() int {
	return len(t.data)
}

// Bytes returns the table padded with zeros to a multiple of 4.
func (t *StringTable) Bytes() []byte {
	out := make([]byte, align4(len(t.data)))
	copy(out, t.data)
	return out
}

func align4(n int) int {
	return (n + 3) &^ 3
}
