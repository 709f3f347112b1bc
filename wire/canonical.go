package wire

import "encoding/binary"

// canonical concatenates a message-type tag with its semantic fields into
// the exact string that Sign/Verify operate over (§4.2): built from the
// view/index/hash/sender fields, never a raw byte dump of the envelope.
func canonical(tag string, fields ...[]byte) []byte {
	b := []byte(tag)
	for _, f := range fields {
		b = append(b, f...)
	}
	return b
}

func u32(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func u64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

func bytesField(b []byte) []byte {
	return append(u64(uint64(len(b))), b...)
}

// RequestCanonical builds the canonical byte string for a single client
// Request, the per-request unit the batching thread concatenates, in
// order, to produce a batch's hash (§4.5 "computes the batch hash over the
// ordered concatenation of canonical request strings").
func RequestCanonical(r Request) []byte {
	return canonical("REQ", u32(r.ClientID), u64(r.ClientStartTS), u32(r.Op), []byte(r.Key), []byte(r.Value), []byte(r.Arg))
}
