package types

import "sort"

// AccountId names a transaction's creator in "name@domain" form, following
// the account identifier convention of the original model.
type AccountId string

// Command is one instruction inside a transaction payload. The consensus
// core treats commands opaquely except for AddPeer, which the Simulator
// applies to the WSV's peer list (spec.md §1's one allowed validator-set
// change).
type Command struct {
	Kind    string
	AddPeer *Peer // non-nil iff Kind == "AddPeer"
}

// CommandError describes why a single command failed stateful validation.
type CommandError struct {
	CommandIndex int
	Reason       string
}

func (e CommandError) Error() string { return e.Reason }

// Transaction is a signed, ordered batch of commands submitted by one
// account.
type Transaction struct {
	Creator     AccountId
	CreatedTime uint64 // unix millis
	Commands    []Command
	Quorum      uint8
	Signatures  []Signature

	// BatchID is empty for a singleton transaction, otherwise shared by
	// every transaction in the same atomic batch.
	BatchID string
}

// payloadBytes serializes the fields that make up payload_hash: creator,
// commands and created time, not signatures.
func (t *Transaction) payloadBytes() []byte {
	buf := []byte(t.Creator)
	for _, c := range t.Commands {
		buf = append(buf, []byte(c.Kind)...)
		if c.AddPeer != nil {
			buf = append(buf, c.AddPeer.PublicKey[:]...)
			buf = append(buf, []byte(c.AddPeer.Address)...)
		}
	}
	var tb [8]byte
	putUint64(tb[:], t.CreatedTime)
	buf = append(buf, tb[:]...)
	return buf
}

// PayloadHash includes creator, commands and created time but not
// signatures.
func (t *Transaction) PayloadHash() Hash {
	return HashBytes(t.payloadBytes())
}

// ReducedHash excludes signatures; it is identical to PayloadHash in this
// model since no other signature-independent field exists beyond payload.
// Kept as a distinct method because batch hashing and presence-cache
// lookups key off ReducedHash specifically, per spec.md §3.
func (t *Transaction) ReducedHash() Hash {
	return t.PayloadHash()
}

// FullHash includes signatures, and is the transaction's identity once
// submitted to the network.
func (t *Transaction) FullHash() Hash {
	buf := t.payloadBytes()
	sigs := append([]Signature(nil), t.Signatures...)
	sort.Slice(sigs, func(i, j int) bool {
		return string(sigs[i].PublicKey[:]) < string(sigs[j].PublicKey[:])
	})
	for _, s := range sigs {
		buf = append(buf, s.PublicKey[:]...)
		buf = append(buf, s.Bytes...)
	}
	return HashBytes(buf)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}
