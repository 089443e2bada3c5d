package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
)

// Upgradeable loader account layouts.
const (
	// ProgramDataHeaderSize is tag(4) + slot(8) + option<authority>(1+32).
	ProgramDataHeaderSize = 45
	// BufferHeaderSize is tag(4) + option<authority>(1+32).
	BufferHeaderSize = 37

	loaderTagBuffer      = 1
	loaderTagProgram     = 2
	loaderTagProgramData = 3
)

var (
	// ErrAccountNotFound means the queried address holds no account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrProgramNotDeployed means the program exists but holds no executable bytes,
	// typically because it was closed.
	ErrProgramNotDeployed = errors.New("program is not deployed")
	// ErrNotUpgradeable means the account is not owned by the upgradeable loader.
	ErrNotUpgradeable = errors.New("account is not an upgradeable program")
)

// Account is the subset of account state verifybuild reads.
type Account struct {
	Owner      PublicKey
	Lamports   uint64
	Executable bool
	Data       []byte
}

// AccountReader fetches accounts. A missing account yields ErrAccountNotFound.
type AccountReader interface {
	GetAccountInfo(ctx context.Context, address PublicKey) (*Account, error)
}

// ProgramDataAddress returns the program-data account for an upgradeable program.
func ProgramDataAddress(program PublicKey) (PublicKey, error) {
	addr, _, err := FindProgramAddress([][]byte{program[:]}, UpgradeableLoaderID)
	return addr, err
}

// ParseProgramAccount returns the program-data address a program account points at.
func ParseProgramAccount(data []byte) (PublicKey, error) {
	if len(data) < 4+PublicKeySize {
		return PublicKey{}, fmt.Errorf("program account too short: %d bytes", len(data))
	}
	if tag := binary.LittleEndian.Uint32(data[:4]); tag != loaderTagProgram {
		return PublicKey{}, fmt.Errorf("unexpected loader account tag %d", tag)
	}
	return PublicKeyFromBytes(data[4 : 4+PublicKeySize])
}

// ProgramDataSlot returns the slot at which the program data was last written.
func ProgramDataSlot(data []byte) (uint64, error) {
	if len(data) < 12 {
		return 0, fmt.Errorf("program data too short: %d bytes", len(data))
	}
	if tag := binary.LittleEndian.Uint32(data[:4]); tag != loaderTagProgramData {
		return 0, fmt.Errorf("unexpected loader account tag %d", tag)
	}
	return binary.LittleEndian.Uint64(data[4:12]), nil
}

// ProgramData is the deployed executable of an upgradeable program.
type ProgramData struct {
	Program    PublicKey
	Address    PublicKey
	Slot       uint64
	Executable []byte
}

// FetchProgramData resolves program to its program-data account and returns
// the executable bytes with the metadata header removed.
func FetchProgramData(ctx context.Context, r AccountReader, program PublicKey) (*ProgramData, error) {
	acc, err := r.GetAccountInfo(ctx, program)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", program, err)
	}
	if acc.Owner != UpgradeableLoaderID {
		return nil, fmt.Errorf("program %s owned by %s: %w", program, acc.Owner, ErrNotUpgradeable)
	}
	dataAddr, err := ParseProgramAccount(acc.Data)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", program, err)
	}
	pd, err := r.GetAccountInfo(ctx, dataAddr)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("program %s: %w", program, ErrProgramNotDeployed)
	}
	if err != nil {
		return nil, fmt.Errorf("program data %s: %w", dataAddr, err)
	}
	if len(pd.Data) <= ProgramDataHeaderSize {
		return nil, fmt.Errorf("program %s: %w", program, ErrProgramNotDeployed)
	}
	slot, err := ProgramDataSlot(pd.Data)
	if err != nil {
		return nil, fmt.Errorf("program data %s: %w", dataAddr, err)
	}
	return &ProgramData{
		Program:    program,
		Address:    dataAddr,
		Slot:       slot,
		Executable: pd.Data[ProgramDataHeaderSize:],
	}, nil
}

// FetchBuffer returns the bytes held in a loader buffer account without its header.
func FetchBuffer(ctx context.Context, r AccountReader, buffer PublicKey) ([]byte, error) {
	acc, err := r.GetAccountInfo(ctx, buffer)
	if err != nil {
		return nil, fmt.Errorf("buffer %s: %w", buffer, err)
	}
	if acc.Owner != UpgradeableLoaderID {
		return nil, fmt.Errorf("buffer %s owned by %s: %w", buffer, acc.Owner, ErrNotUpgradeable)
	}
	if len(acc.Data) < BufferHeaderSize {
		return nil, fmt.Errorf("buffer %s too short: %d bytes", buffer, len(acc.Data))
	}
	if tag := binary.LittleEndian.Uint32(acc.Data[:4]); tag != loaderTagBuffer {
		return nil, fmt.Errorf("buffer %s: unexpected loader account tag %d", buffer, tag)
	}
	return acc.Data[BufferHeaderSize:], nil
}
