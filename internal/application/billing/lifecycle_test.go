package billing

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aymenbha/fattoura-api/internal/domain"
	"github.com/aymenbha/fattoura-api/internal/domain/entity"
	teifcodec "github.com/aymenbha/fattoura-api/internal/infrastructure/teif"
	"github.com/aymenbha/fattoura-api/internal/infrastructure/teif/xades"
	"github.com/aymenbha/fattoura-api/internal/infrastructure/ttn"
	pkgteif "github.com/aymenbha/fattoura-api/pkg/teif"
)

// memInvoiceRepo dépôt de factures en mémoire.
type memInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[string]*entity.Invoice
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{invoices: make(map[string]*entity.Invoice)}
}

func (r *memInvoiceRepo) Load(_ context.Context, id string) (*entity.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return inv, nil
}

func (r *memInvoiceRepo) Save(_ context.Context, inv *entity.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices[inv.ID] = inv
	return nil
}

// fakeSubmitter double du client TTN, réponses programmables.
type fakeSubmitter struct {
	submitResult *ttn.SubmitResult
	submitErr    error
	statusResult *ttn.StatusResult
	cev          string
	submitCalls  int
}

func (f *fakeSubmitter) Submit(_ context.Context, _ string, _ []byte) (*ttn.SubmitResult, error) {
	f.submitCalls++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submitResult, nil
}

func (f *fakeSubmitter) CheckStatus(_ context.Context, _, _ string) (*ttn.StatusResult, error) {
	return f.statusResult, nil
}

func (f *fakeSubmitter) FetchVerification(_ context.Context, _, _ string) (string, error) {
	return f.cev, nil
}

func testSigner(t *testing.T) pkgteif.Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "Société El Bouniane SARL"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return xades.NewSignatureService(xades.NewStaticProvider(cert, key))
}

func draftInvoice() *entity.Invoice {
	return &entity.Invoice{
		SenderIdentifier:       "1234568XAM000",
		SenderIdentifierType:   pkgteif.IdentifierMatriculeFiscal,
		ReceiverIdentifier:     "0987654MBN000",
		ReceiverIdentifierType: pkgteif.IdentifierMatriculeFiscal,
		DocumentIdentifier:     "FACT-2026-0042",
		IssueDate:              time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		Seller: entity.Partner{
			Identifier:     "1234568XAM000",
			IdentifierType: pkgteif.IdentifierMatriculeFiscal,
			Name:           "Société El Bouniane SARL",
		},
		Buyer: entity.Partner{
			Identifier:     "0987654MBN000",
			IdentifierType: pkgteif.IdentifierMatriculeFiscal,
			Name:           "Client Sfax SA",
		},
		Lines: []*entity.Line{
			{
				ItemCode:    "ART-001",
				ItemName:    "Prestation de conseil",
				Quantity:    decimal.NewFromInt(10),
				UnitPrice:   decimal.NewFromInt(100),
				TaxTypeCode: pkgteif.TaxTVA,
				TaxRate:     decimal.NewFromInt(19),
			},
		},
	}
}

type fixture struct {
	repo      *memInvoiceRepo
	usecase   *InvoiceUseCase
	lifecycle *LifecycleOrchestrator
	submitter *fakeSubmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemInvoiceRepo()
	submitter := &fakeSubmitter{
		submitResult: &ttn.SubmitResult{Reference: "TTN-2026-00042", Status: "pending"},
	}
	stamp := decimal.NewFromInt(1)
	return &fixture{
		repo: repo,
		usecase: NewInvoiceUseCase(repo, &memLogRepo{}, stamp, true, zerolog.Nop()),
		lifecycle: NewLifecycleOrchestrator(
			repo, teifcodec.NewBuilder(), teifcodec.NewValidator(false),
			testSigner(t), submitter, stamp, true, zerolog.Nop(),
		),
		submitter: submitter,
	}
}

// memLogRepo journal en mémoire minimal pour le cas d'usage.
type memLogRepo struct {
	mu      sync.Mutex
	entries []*entity.SubmissionLogEntry
}

func (r *memLogRepo) Append(_ context.Context, e *entity.SubmissionLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *memLogRepo) ListByInvoice(_ context.Context, id string) ([]*entity.SubmissionLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.SubmissionLogEntry
	for _, e := range r.entries {
		if e.InvoiceID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.usecase.CreateDraft(ctx, draftInvoice())
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, inv.Status)
	assert.Equal(t, "1191.000", inv.Totals.InclTax.StringFixed(3))

	inv, err = f.lifecycle.Validate(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusValidated, inv.Status)

	inv, err = f.lifecycle.Sign(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSigned, inv.Status)
	require.NotNil(t, inv.Signature)
	assert.NotEmpty(t, inv.Signature.SignedXML)
	assert.NotEmpty(t, inv.Signature.ElementXML)

	inv, err = f.lifecycle.Submit(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSubmitted, inv.Status)
	require.NotNil(t, inv.Submission)
	assert.Equal(t, "TTN-2026-00042", inv.Submission.Reference)

	f.submitter.statusResult = &ttn.StatusResult{Status: "accepted", Verification: "CEV-PAYLOAD"}
	inv, err = f.lifecycle.RefreshStatus(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, inv.Status)
	assert.Equal(t, "CEV-PAYLOAD", inv.Submission.Verification)
	require.NotNil(t, inv.Submission.AcceptedAt)

	inv, err = f.lifecycle.Archive(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusArchived, inv.Status)
}

func TestSubmitImmediateAcceptance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submitter.submitResult = &ttn.SubmitResult{Reference: "TTN-X", Status: "ACCEPTED"}

	inv, err := f.usecase.CreateDraft(ctx, draftInvoice())
	require.NoError(t, err)
	_, err = f.lifecycle.Validate(ctx, inv.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.Sign(ctx, inv.ID)
	require.NoError(t, err)

	// le jeton "accepted" est comparé sans tenir compte de la casse
	inv, err = f.lifecycle.Submit(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, inv.Status)
	require.NotNil(t, inv.Submission.AcceptedAt)
}

func TestSubmitFromDraftRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.usecase.CreateDraft(ctx, draftInvoice())
	require.NoError(t, err)

	_, err = f.lifecycle.Submit(ctx, inv.ID)
	require.Error(t, err)
	var sv *domain.StateViolationError
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, string(entity.StatusDraft), sv.From)
	assert.Equal(t, string(entity.StatusSubmitted), sv.To)
	assert.Zero(t, f.submitter.submitCalls)

	// l'agrégat est resté intact
	reloaded, err := f.usecase.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, reloaded.Status)
}

func TestSubmitFailureLeavesSigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submitter.submitErr = domain.NewSubmissionError(409, "duplicate", nil)

	inv, err := f.usecase.CreateDraft(ctx, draftInvoice())
	require.NoError(t, err)
	_, err = f.lifecycle.Validate(ctx, inv.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.Sign(ctx, inv.ID)
	require.NoError(t, err)

	_, err = f.lifecycle.Submit(ctx, inv.ID)
	require.Error(t, err)
	var se *domain.SubmissionError
	assert.ErrorAs(t, err, &se)

	// la facture reste Signed: une nouvelle soumission est possible
	reloaded, err := f.usecase.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSigned, reloaded.Status)
	assert.Nil(t, reloaded.Submission)

	f.submitter.submitErr = nil
	_, err = f.lifecycle.Submit(ctx, inv.ID)
	require.NoError(t, err)
}

func TestSignTwiceRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.usecase.CreateDraft(ctx, draftInvoice())
	require.NoError(t, err)
	_, err = f.lifecycle.Validate(ctx, inv.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.Sign(ctx, inv.ID)
	require.NoError(t, err)

	_, err = f.lifecycle.Sign(ctx, inv.ID)
	require.Error(t, err)
	var sv *domain.StateViolationError
	assert.ErrorAs(t, err, &sv)
}

func TestUpdateRefusedOnceSigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.usecase.CreateDraft(ctx, draftInvoice())
	require.NoError(t, err)
	_, err = f.lifecycle.Validate(ctx, inv.ID)
	require.NoError(t, err)

	// encore modifiable en Validated; la modification ramène en Draft
	updated, err := f.usecase.UpdateDraft(ctx, inv.ID, func(i *entity.Invoice) {
		i.Lines[0].Quantity = decimal.NewFromInt(20)
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, updated.Status)
	assert.Equal(t, "2000.000", updated.Totals.Gross.StringFixed(3))

	_, err = f.lifecycle.Validate(ctx, inv.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.Sign(ctx, inv.ID)
	require.NoError(t, err)

	_, err = f.usecase.UpdateDraft(ctx, inv.ID, func(i *entity.Invoice) {
		i.Lines[0].Quantity = decimal.NewFromInt(30)
	})
	require.ErrorIs(t, err, domain.ErrImmutable)
}

func TestRejectionThenArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.usecase.CreateDraft(ctx, draftInvoice())
	require.NoError(t, err)
	_, err = f.lifecycle.Validate(ctx, inv.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.Sign(ctx, inv.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.Submit(ctx, inv.ID)
	require.NoError(t, err)

	f.submitter.statusResult = &ttn.StatusResult{Status: "rejected", RejectionReason: "matricule inconnu"}
	inv, err = f.lifecycle.RefreshStatus(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRejected, inv.Status)
	assert.Equal(t, "matricule inconnu", inv.Submission.RejectionReason)

	// une facture rejetée s'archive pour l'audit
	inv, err = f.lifecycle.Archive(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusArchived, inv.Status)

	// état terminal
	_, err = f.lifecycle.Archive(ctx, inv.ID)
	require.Error(t, err)
}

func TestValidateRefusesBadDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := draftInvoice()
	bad.Lines[0].Quantity = decimal.Zero
	inv, err := f.usecase.CreateDraft(ctx, bad)
	require.NoError(t, err)

	_, err = f.lifecycle.Validate(ctx, inv.ID)
	require.Error(t, err)

	reloaded, err := f.usecase.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, reloaded.Status)
}

func TestDevModeSimulatedSubmission(t *testing.T) {
	repo := newMemInvoiceRepo()
	stamp := decimal.NewFromInt(1)
	usecase := NewInvoiceUseCase(repo, &memLogRepo{}, stamp, true, zerolog.Nop())
	lifecycle := NewLifecycleOrchestrator(
		repo, teifcodec.NewBuilder(), teifcodec.NewValidator(false),
		testSigner(t), nil, stamp, true, zerolog.Nop(),
	)
	ctx := context.Background()

	inv, err := usecase.CreateDraft(ctx, draftInvoice())
	require.NoError(t, err)
	_, err = lifecycle.Validate(ctx, inv.ID)
	require.NoError(t, err)
	_, err = lifecycle.Sign(ctx, inv.ID)
	require.NoError(t, err)

	inv, err = lifecycle.Submit(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, inv.Status)
	assert.Equal(t, "SIMULE-"+inv.ID, inv.Submission.Reference)
}
