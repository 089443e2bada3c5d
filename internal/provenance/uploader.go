package provenance

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/ledger"
	"git.home.luguber.info/inful/verifybuild/internal/logfields"
	"git.home.luguber.info/inful/verifybuild/internal/metrics"
	"git.home.luguber.info/inful/verifybuild/internal/retry"
)

var (
	// ErrRecordNotFound means the signer has no record for the program.
	ErrRecordNotFound = stderrors.New("provenance record not found")
	// ErrUploadDeclined means the operator refused to create a competing record.
	ErrUploadDeclined = stderrors.New("upload declined")
)

// Ledger is what the uploader needs from a ledger node.
type Ledger interface {
	ledger.AccountReader
	GetLatestBlockhash(ctx context.Context) (ledger.Hash, error)
	SendTransaction(ctx context.Context, tx *ledger.Transaction) (ledger.Signature, error)
	AwaitConfirmation(ctx context.Context, sig ledger.Signature, policy retry.Policy) error
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, question string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, question string) (bool, error) { return f(ctx, question) }

// AlwaysConfirm answers yes without asking.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

// Decision is the outcome of the upload resolution policy.
type Decision struct {
	Kind    InstructionKind
	Address ledger.PublicKey
	// Competing is set when a record by the default uploader already exists.
	Competing *ledger.PublicKey
}

// Result describes a confirmed provenance transaction.
type Result struct {
	Kind      InstructionKind
	Address   ledger.PublicKey
	Signature ledger.Signature
}

// Uploader writes provenance records for one signer.
type Uploader struct {
	protocol        Protocol
	ledger          Ledger
	signer          ledger.Signer
	defaultUploader ledger.PublicKey
	confirmer       Confirmer
	priorityFee     uint64
	policy          retry.Policy
	recorder        metrics.Recorder
}

// NewUploader returns an uploader that signs with signer. Without a confirmer
// every competing upload is declined.
func NewUploader(protocol Protocol, l Ledger, signer ledger.Signer, defaultUploader ledger.PublicKey) *Uploader {
	return &Uploader{
		protocol:        protocol,
		ledger:          l,
		signer:          signer,
		defaultUploader: defaultUploader,
		policy:          retry.DefaultPolicy(),
		recorder:        metrics.NoopRecorder{},
	}
}

// WithConfirmer sets how competing uploads are approved.
func (u *Uploader) WithConfirmer(c Confirmer) *Uploader {
	u.confirmer = c
	return u
}

// WithPriorityFee sets the compute unit price in micro-lamports.
func (u *Uploader) WithPriorityFee(microLamports uint64) *Uploader {
	u.priorityFee = microLamports
	return u
}

// WithPolicy sets the confirmation polling policy.
func (u *Uploader) WithPolicy(p retry.Policy) *Uploader {
	u.policy = p
	return u
}

// WithRecorder sets the metrics recorder.
func (u *Uploader) WithRecorder(r metrics.Recorder) *Uploader {
	if r != nil {
		u.recorder = r
	}
	return u
}

func (u *Uploader) recordExists(ctx context.Context, addr ledger.PublicKey) (bool, error) {
	_, err := u.ledger.GetAccountInfo(ctx, addr)
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, ledger.ErrAccountNotFound):
		return false, nil
	default:
		return false, errors.WrapError(err, errors.CategoryLedger, "query provenance record").
			WithContext("address", addr.String()).Build()
	}
}

// Resolve applies the upload policy for program: update the signer's own
// record if it exists; otherwise initialize one, asking first if the default
// uploader already holds a record for the same program.
func (u *Uploader) Resolve(ctx context.Context, program ledger.PublicKey) (Decision, error) {
	signer := u.signer.PublicKey()
	own, err := u.protocol.DeriveAddress(program, signer)
	if err != nil {
		return Decision{}, errors.WrapError(err, errors.CategoryInternal, "derive record address").Build()
	}
	exists, err := u.recordExists(ctx, own)
	if err != nil {
		return Decision{}, err
	}
	if exists {
		return Decision{Kind: Update, Address: own}, nil
	}
	if signer == u.defaultUploader || u.defaultUploader.IsZero() {
		return Decision{Kind: Initialize, Address: own}, nil
	}

	other, err := u.protocol.DeriveAddress(program, u.defaultUploader)
	if err != nil {
		return Decision{}, errors.WrapError(err, errors.CategoryInternal, "derive record address").Build()
	}
	competing, err := u.recordExists(ctx, other)
	if err != nil {
		return Decision{}, err
	}
	if !competing {
		return Decision{Kind: Initialize, Address: own}, nil
	}

	slog.WarnContext(ctx, "Program already has a provenance record from the default uploader",
		logfields.ProgramID(program.String()), logfields.Address(other.String()))
	ok := false
	if u.confirmer != nil {
		question := fmt.Sprintf("Program %s already has a verification record uploaded by %s. Create a separate record signed by %s?",
			program, u.defaultUploader, signer)
		ok, err = u.confirmer.Confirm(ctx, question)
		if err != nil {
			return Decision{}, err
		}
	}
	if !ok {
		return Decision{}, errors.ConflictError("competing provenance record not created").
			WithCause(ErrUploadDeclined).UserAction().
			WithContext("existing_record", other.String()).Build()
	}
	return Decision{Kind: Initialize, Address: own, Competing: &other}, nil
}

// Upload writes params for program, filling in the last deployed slot.
func (u *Uploader) Upload(ctx context.Context, program ledger.PublicKey, params Params) (*Result, error) {
	pd, err := ledger.FetchProgramData(ctx, u.ledger, program)
	if err != nil {
		return nil, classifyLedger(err, "read program data")
	}
	params.DeployedSlot = pd.Slot

	decision, err := u.Resolve(ctx, program)
	if err != nil {
		return nil, err
	}
	return u.submit(ctx, decision.Kind, program, &params)
}

// Close removes the signer's record for program.
func (u *Uploader) Close(ctx context.Context, program ledger.PublicKey) (*Result, error) {
	own, err := u.protocol.DeriveAddress(program, u.signer.PublicKey())
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "derive record address").Build()
	}
	exists, err := u.recordExists(ctx, own)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.NotFoundError("no provenance record to close").
			WithCause(ErrRecordNotFound).
			WithContext("address", own.String()).Build()
	}
	return u.submit(ctx, Close, program, nil)
}

func (u *Uploader) submit(ctx context.Context, kind InstructionKind, program ledger.PublicKey, params *Params) (res *Result, err error) {
	defer func() {
		u.recorder.IncProvenanceTransaction(kind.String(), metrics.OutcomeFor(err, ctx.Err() != nil))
	}()

	signer := u.signer.PublicKey()
	ix, err := u.protocol.Instruction(kind, program, signer, params)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "encode instruction").Build()
	}
	blockhash, err := u.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, classifyLedger(err, "fetch blockhash")
	}
	tx, err := ComposeTransaction(signer, blockhash, u.priorityFee, ix)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "compose transaction").Build()
	}
	if err := tx.Sign(u.signer); err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "sign transaction").Build()
	}
	slog.InfoContext(ctx, "Sending provenance transaction",
		slog.String("instruction", kind.String()), logfields.ProgramID(program.String()), logfields.Address(ix.Accounts[0].PublicKey.String()))
	sig, err := u.ledger.SendTransaction(ctx, tx)
	if err != nil {
		return nil, classifyLedger(err, "send transaction")
	}
	if err := u.ledger.AwaitConfirmation(ctx, sig, u.policy); err != nil {
		return nil, classifyLedger(err, "confirm transaction").WithContext("signature", sig.String())
	}
	slog.InfoContext(ctx, "Provenance transaction confirmed", logfields.Signature(sig.String()))
	return &Result{Kind: kind, Address: ix.Accounts[0].PublicKey, Signature: sig}, nil
}

func classifyLedger(err error, msg string) *errors.ClassifiedError {
	switch {
	case stderrors.Is(err, ledger.ErrAccountNotFound), stderrors.Is(err, ledger.ErrProgramNotDeployed):
		return errors.WrapError(err, errors.CategoryNotFound, msg).Build()
	case stderrors.Is(err, context.Canceled):
		return errors.WrapError(err, errors.CategoryInterrupted, msg).Build()
	default:
		return errors.WrapError(err, errors.CategoryLedger, msg).Build()
	}
}
