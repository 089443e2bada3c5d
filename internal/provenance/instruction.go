package provenance

import (
	"encoding/binary"
	"fmt"

	"git.home.luguber.info/inful/verifybuild/internal/ledger"
)

// Seed is the domain-separation tag mixed into every record address.
const Seed = "otter_verify"

// InstructionKind selects a verify-program instruction.
type InstructionKind uint8

const (
	Initialize InstructionKind = iota
	Update
	Close
)

// discriminants route instructions inside the verify program.
var discriminants = map[InstructionKind][8]byte{
	Initialize: {175, 175, 109, 31, 13, 152, 155, 237},
	Update:     {219, 200, 88, 176, 158, 63, 253, 127},
	Close:      {98, 165, 201, 177, 108, 65, 206, 96},
}

func (k InstructionKind) String() string {
	switch k {
	case Initialize:
		return "initialize"
	case Update:
		return "update"
	case Close:
		return "close"
	default:
		return fmt.Sprintf("instruction(%d)", uint8(k))
	}
}

// Discriminant returns the 8-byte routing prefix for k.
func (k InstructionKind) Discriminant() ([8]byte, error) {
	d, ok := discriminants[k]
	if !ok {
		return d, fmt.Errorf("unknown instruction kind %d", uint8(k))
	}
	return d, nil
}

// HasPayload reports whether k carries Params.
func (k InstructionKind) HasPayload() bool { return k != Close }

// Params is the record payload of Initialize and Update.
type Params struct {
	Version      string
	RepoURL      string
	Commit       string
	BuildArgs    []string
	DeployedSlot uint64
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// AppendBorsh appends the length-prefixed encoding of p: strings as u32 LE
// length plus bytes, the argument list as u32 LE count plus strings, and the
// slot as u64 LE.
func (p Params) AppendBorsh(buf []byte) []byte {
	buf = appendString(buf, p.Version)
	buf = appendString(buf, p.RepoURL)
	buf = appendString(buf, p.Commit)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.BuildArgs)))
	for _, a := range p.BuildArgs {
		buf = appendString(buf, a)
	}
	return binary.LittleEndian.AppendUint64(buf, p.DeployedSlot)
}

// InstructionData encodes the discriminant and, for kinds that take one, the payload.
func InstructionData(kind InstructionKind, params *Params) ([]byte, error) {
	d, err := kind.Discriminant()
	if err != nil {
		return nil, err
	}
	data := append([]byte(nil), d[:]...)
	if !kind.HasPayload() {
		return data, nil
	}
	if params == nil {
		return nil, fmt.Errorf("%s requires a payload", kind)
	}
	return params.AppendBorsh(data), nil
}

// Protocol binds the instruction encoding to a deployed verify program.
type Protocol struct {
	ProgramID ledger.PublicKey
}

// DeriveAddress returns the record address of signer's attestation for program.
func (p Protocol) DeriveAddress(program, signer ledger.PublicKey) (ledger.PublicKey, error) {
	addr, _, err := ledger.FindProgramAddress([][]byte{[]byte(Seed), signer[:], program[:]}, p.ProgramID)
	return addr, err
}

// Instruction builds a verify-program instruction. Accounts are, in order,
// the record (writable), the signer, the target program and, except for
// Close, the system program.
func (p Protocol) Instruction(kind InstructionKind, program, signer ledger.PublicKey, params *Params) (ledger.Instruction, error) {
	record, err := p.DeriveAddress(program, signer)
	if err != nil {
		return ledger.Instruction{}, err
	}
	data, err := InstructionData(kind, params)
	if err != nil {
		return ledger.Instruction{}, err
	}
	accounts := []ledger.AccountMeta{
		ledger.Writable(record),
		ledger.ReadOnlySigner(signer),
		ledger.ReadOnly(program),
	}
	if kind != Close {
		accounts = append(accounts, ledger.ReadOnly(ledger.SystemProgramID))
	}
	return ledger.Instruction{ProgramID: p.ProgramID, Accounts: accounts, Data: data}, nil
}

// setComputeUnitPrice is the compute-budget instruction tag for priority fees.
const setComputeUnitPrice = 3

// PriorityFeeInstruction sets the compute unit price in micro-lamports.
func PriorityFeeInstruction(microLamports uint64) ledger.Instruction {
	data := binary.LittleEndian.AppendUint64([]byte{setComputeUnitPrice}, microLamports)
	return ledger.Instruction{ProgramID: ledger.ComputeBudgetID, Data: data}
}

// ComposeTransaction builds the unsigned transaction for ix, prefixed by a
// priority-fee instruction only when fee is positive.
func ComposeTransaction(payer ledger.PublicKey, blockhash ledger.Hash, fee uint64, ix ledger.Instruction) (*ledger.Transaction, error) {
	ixs := make([]ledger.Instruction, 0, 2)
	if fee > 0 {
		ixs = append(ixs, PriorityFeeInstruction(fee))
	}
	ixs = append(ixs, ix)
	msg, err := ledger.NewMessage(payer, blockhash, ixs...)
	if err != nil {
		return nil, err
	}
	return ledger.NewTransaction(msg), nil
}
