package ledger

import (
	"errors"
	"fmt"
)

// AccountMeta is an account reference within an instruction.
type AccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

// Writable returns a writable, non-signing account reference.
func Writable(pk PublicKey) AccountMeta { return AccountMeta{PublicKey: pk, IsWritable: true} }

// ReadOnly returns a read-only, non-signing account reference.
func ReadOnly(pk PublicKey) AccountMeta { return AccountMeta{PublicKey: pk} }

// ReadOnlySigner returns a read-only account reference that must sign.
func ReadOnlySigner(pk PublicKey) AccountMeta { return AccountMeta{PublicKey: pk, IsSigner: true} }

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// MessageHeader counts signers and read-only accounts in the key list.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references accounts by index into the message key list.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is a legacy transaction message.
type Message struct {
	Header          MessageHeader
	AccountKeys     []PublicKey
	RecentBlockhash Hash
	Instructions    []CompiledInstruction
}

type keyFlags struct {
	signer   bool
	writable bool
}

// NewMessage compiles instructions into a message paid for by payer. Keys are
// ordered writable signers, read-only signers, writable non-signers, then
// read-only non-signers; the payer is always first.
func NewMessage(payer PublicKey, blockhash Hash, instructions ...Instruction) (*Message, error) {
	if len(instructions) == 0 {
		return nil, errors.New("message needs at least one instruction")
	}
	order := []PublicKey{payer}
	flags := map[PublicKey]*keyFlags{payer: {signer: true, writable: true}}
	add := func(pk PublicKey, signer, writable bool) {
		f, ok := flags[pk]
		if !ok {
			f = &keyFlags{}
			flags[pk] = f
			order = append(order, pk)
		}
		f.signer = f.signer || signer
		f.writable = f.writable || writable
	}
	for _, ix := range instructions {
		for _, meta := range ix.Accounts {
			add(meta.PublicKey, meta.IsSigner, meta.IsWritable)
		}
		add(ix.ProgramID, false, false)
	}

	var groups [4][]PublicKey
	for _, pk := range order {
		f := flags[pk]
		switch {
		case f.signer && f.writable:
			groups[0] = append(groups[0], pk)
		case f.signer:
			groups[1] = append(groups[1], pk)
		case f.writable:
			groups[2] = append(groups[2], pk)
		default:
			groups[3] = append(groups[3], pk)
		}
	}
	keys := make([]PublicKey, 0, len(order))
	for _, g := range groups {
		keys = append(keys, g...)
	}
	if len(keys) > 256 {
		return nil, fmt.Errorf("too many accounts: %d", len(keys))
	}
	index := make(map[PublicKey]uint8, len(keys))
	for i, pk := range keys {
		index[pk] = uint8(i)
	}

	msg := &Message{
		Header: MessageHeader{
			NumRequiredSignatures:       uint8(len(groups[0]) + len(groups[1])),
			NumReadonlySignedAccounts:   uint8(len(groups[1])),
			NumReadonlyUnsignedAccounts: uint8(len(groups[3])),
		},
		AccountKeys:     keys,
		RecentBlockhash: blockhash,
	}
	for _, ix := range instructions {
		ci := CompiledInstruction{ProgramIDIndex: index[ix.ProgramID], Data: ix.Data}
		for _, meta := range ix.Accounts {
			ci.Accounts = append(ci.Accounts, index[meta.PublicKey])
		}
		msg.Instructions = append(msg.Instructions, ci)
	}
	return msg, nil
}

// Signers returns the keys that must sign, in signature order.
func (m *Message) Signers() []PublicKey {
	return m.AccountKeys[:m.Header.NumRequiredSignatures]
}

// IsWritable reports whether the key at index i is writable.
func (m *Message) IsWritable(i int) bool {
	n := int(m.Header.NumRequiredSignatures)
	if i < n {
		return i < n-int(m.Header.NumReadonlySignedAccounts)
	}
	return i < len(m.AccountKeys)-int(m.Header.NumReadonlyUnsignedAccounts)
}

// Serialize encodes the message in the legacy wire format.
func (m *Message) Serialize() []byte {
	buf := []byte{m.Header.NumRequiredSignatures, m.Header.NumReadonlySignedAccounts, m.Header.NumReadonlyUnsignedAccounts}
	buf = appendCompactU16(buf, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		buf = append(buf, k[:]...)
	}
	buf = append(buf, m.RecentBlockhash[:]...)
	buf = appendCompactU16(buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)
		buf = appendCompactU16(buf, len(ix.Accounts))
		buf = append(buf, ix.Accounts...)
		buf = appendCompactU16(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}
	return buf
}

// appendCompactU16 writes n as the variable-length "shortvec" length prefix.
func appendCompactU16(buf []byte, n int) []byte {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// Signer produces signatures for one key.
type Signer interface {
	PublicKey() PublicKey
	Sign(message []byte) Signature
}

// ErrMissingSignature means a required signer did not sign.
var ErrMissingSignature = errors.New("transaction is missing a required signature")

// Transaction is a message plus its signatures.
type Transaction struct {
	Signatures []Signature
	Message    *Message
}

// NewTransaction wraps msg with empty signature slots.
func NewTransaction(msg *Message) *Transaction {
	return &Transaction{Signatures: make([]Signature, msg.Header.NumRequiredSignatures), Message: msg}
}

// Sign fills the signature slots of the given signers.
func (t *Transaction) Sign(signers ...Signer) error {
	payload := t.Message.Serialize()
	for _, s := range signers {
		placed := false
		for i, pk := range t.Message.Signers() {
			if pk == s.PublicKey() {
				t.Signatures[i] = s.Sign(payload)
				placed = true
			}
		}
		if !placed {
			return fmt.Errorf("signer %s is not required by the transaction", s.PublicKey())
		}
	}
	return nil
}

// ID returns the first signature, which identifies the transaction.
func (t *Transaction) ID() Signature {
	if len(t.Signatures) == 0 {
		return Signature{}
	}
	return t.Signatures[0]
}

// Serialize encodes the signed transaction.
func (t *Transaction) Serialize() ([]byte, error) {
	for i, sig := range t.Signatures {
		if sig.IsZero() {
			return nil, fmt.Errorf("%w: %s", ErrMissingSignature, t.Message.AccountKeys[i])
		}
	}
	buf := appendCompactU16(nil, len(t.Signatures))
	for _, sig := range t.Signatures {
		buf = append(buf, sig[:]...)
	}
	return append(buf, t.Message.Serialize()...), nil
}
