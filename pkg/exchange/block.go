package exchange

import "github.com/lindqvist-iot/lwm2m/pkg/coap"

// SliceForBlock extracts the bytes a given block number/size addresses out
// of a complete in-memory payload (§4.2.3), along with whether further
// blocks follow. It is the building block both a client's Block1 upload and
// a server's Block2 download use.
func SliceForBlock(payload []byte, number uint32, size coap.BlockSize) (chunk []byte, more bool, err error) {
	sz := int(size)
	start := int(number) * sz
	if start > len(payload) {
		return nil, false, ErrBlockOutOfRange
	}
	end := start + sz
	if end >= len(payload) {
		return payload[start:], false, nil
	}
	return payload[start:end], true, nil
}

// BlockCount returns how many blocks of the given size a payload of
// totalLen bytes splits into (at least 1, even for an empty payload).
func BlockCount(totalLen int, size coap.BlockSize) int {
	sz := int(size)
	n := (totalLen + sz - 1) / sz
	if n == 0 {
		return 1
	}
	return n
}

// NegotiateSize picks the block size to actually use for a transfer: the
// smaller of what the peer proposed and the local maximum, since a node may
// always fall back to a smaller block than requested (RFC 7959 Section
// 2.5) but never a larger one.
func NegotiateSize(proposed, localMax coap.BlockSize) coap.BlockSize {
	if proposed == 0 || proposed > localMax {
		return localMax
	}
	return proposed
}

// Assembler accumulates sequential Block1 chunks from a client upload into
// one in-memory payload, rejecting an out-of-order block or one larger
// than the last accepted block size (RFC 7959 Section 2.5: block size may
// only shrink mid-transfer, never grow).
type Assembler struct {
	buf         []byte
	nextNumber  uint32
	size        coap.BlockSize
	sizeLocked  bool
	done        bool
}

// NewAssembler creates an empty Assembler for a fresh block-wise upload.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Append folds one Block1 chunk into the assembler. It returns
// ErrBlockTransferNeeded-free nil once the chunk is accepted; the caller
// checks block.More (echoed by the caller from the request) to know
// whether to expect another Append.
func (a *Assembler) Append(block coap.Block, chunk []byte) error {
	if a.done {
		return ErrFinished
	}
	if block.Number != a.nextNumber {
		return ErrBlockOutOfOrder
	}
	if !a.sizeLocked {
		a.size = block.Size
		a.sizeLocked = true
	} else if block.Size > a.size {
		// a block size may only shrink across a transfer, never grow.
		return ErrBlockSizeChanged
	}
	a.size = block.Size

	a.buf = append(a.buf, chunk...)
	a.nextNumber++
	if !block.More {
		a.done = true
	}
	return nil
}

// Done reports whether the final block has been appended.
func (a *Assembler) Done() bool { return a.done }

// Payload returns the assembled bytes. Only meaningful once Done() is true.
func (a *Assembler) Payload() []byte { return a.buf }
