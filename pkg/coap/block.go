package coap

// BlockWhich identifies which block-wise direction a message carries,
// derived from which of Block1/Block2 are present on a Message (§3.3).
type BlockWhich int

const (
	BlockNone BlockWhich = iota
	BlockB1
	BlockB2
	BlockBoth
)

// Block is the decoded value of a Block1 or Block2 option (RFC 7959).
type Block struct {
	Number uint32    // block sequence number
	Size   BlockSize // negotiated block size, 16..1024
	More   bool      // true if more blocks follow this one
}

// encodeBlockValue packs a Block into the 0-3 byte integer encoding used on
// the wire: NUM in the high bits, M in bit 3, SZX in the low 3 bits.
func encodeBlockValue(b Block) (uint32, error) {
	szx, ok := b.Size.SZX()
	if !ok {
		return 0, ErrMalformed
	}
	v := (b.Number << 4) | uint32(szx)
	if b.More {
		v |= 0x8
	}
	return v, nil
}

// decodeBlockValue unpacks the 0-3 byte integer encoding of a Block1/Block2
// option value.
func decodeBlockValue(v uint32) Block {
	return Block{
		Number: v >> 4,
		Size:   BlockSizeFromSZX(uint8(v & 0x7)),
		More:   v&0x8 != 0,
	}
}

// Which reports the combined block-transfer shape of a message: absent,
// Block1 only, Block2 only, or both present (composite operations, §4.2.3).
func Which(block1, block2 *Block) BlockWhich {
	switch {
	case block1 != nil && block2 != nil:
		return BlockBoth
	case block1 != nil:
		return BlockB1
	case block2 != nil:
		return BlockB2
	default:
		return BlockNone
	}
}
