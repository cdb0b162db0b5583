package types

// Block is the final, signed, prev-linked unit added to the chain.
type Block struct {
	Height            uint64
	PrevHash          Hash
	Transactions      []*Transaction
	RejectedTxHashes  []Hash
	CreatedTime       uint64
	Signatures        []Signature
}

// payloadBytes serializes every field that makes up block_hash: all fields
// except signatures.
func (b *Block) payloadBytes() []byte {
	buf := make([]byte, 0, 64)
	var h8 [8]byte
	putUint64(h8[:], b.Height)
	buf = append(buf, h8[:]...)
	buf = append(buf, b.PrevHash[:]...)
	for _, tx := range b.Transactions {
		rh := tx.ReducedHash()
		buf = append(buf, rh[:]...)
	}
	for _, h := range b.RejectedTxHashes {
		buf = append(buf, h[:]...)
	}
	putUint64(h8[:], b.CreatedTime)
	buf = append(buf, h8[:]...)
	return buf
}

// BlockHash hashes the block's payload, excluding signatures.
func (b *Block) BlockHash() Hash {
	return HashBytes(b.payloadBytes())
}

// TransactionHashes returns the ReducedHash of every included transaction.
func (b *Block) TransactionHashes() []Hash {
	hs := make([]Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		hs[i] = tx.ReducedHash()
	}
	return hs
}
