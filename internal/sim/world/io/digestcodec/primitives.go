package digestcodec

import "encoding/binary"

type Writer interface {
	Write(p []byte) (n int, err error)
}

func BoolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func WriteU64(w Writer, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.Write(tmp[:])
}

func WriteI64(w Writer, tmp *[8]byte, v int64) { WriteU64(w, tmp, uint64(v)) }

// WriteString is length-prefixed so adjacent fields cannot alias.
func WriteString(w Writer, tmp *[8]byte, s string) {
	WriteU64(w, tmp, uint64(len(s)))
	w.Write([]byte(s))
}

func WriteBytes(w Writer, tmp *[8]byte, b []byte) {
	WriteU64(w, tmp, uint64(len(b)))
	w.Write(b)
}

func WritePos(w Writer, tmp *[8]byte, p [3]int) {
	WriteI64(w, tmp, int64(p[0]))
	WriteI64(w, tmp, int64(p[1]))
	WriteI64(w, tmp, int64(p[2]))
}
