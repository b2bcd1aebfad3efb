package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aymenbha/fattoura-api/internal/domain/entity"
	"github.com/aymenbha/fattoura-api/internal/domain/repository"
	domteif "github.com/aymenbha/fattoura-api/internal/domain/teif"
	pkgteif "github.com/aymenbha/fattoura-api/pkg/teif"
)

// InvoiceUseCase gestion des brouillons: création, modification tant que
// l'état le permet, consultation. Les montants sont recalculés à chaque
// écriture; ils ne sont jamais fournis par l'appelant.
type InvoiceUseCase struct {
	invoices repository.InvoiceRepository
	logs     repository.SubmissionLogRepository

	stampDuty        decimal.Decimal
	stampDutyEnabled bool

	logger zerolog.Logger
}

// NewInvoiceUseCase construit le cas d'usage.
func NewInvoiceUseCase(
	invoices repository.InvoiceRepository,
	logs repository.SubmissionLogRepository,
	stampDuty decimal.Decimal,
	stampDutyEnabled bool,
	logger zerolog.Logger,
) *InvoiceUseCase {
	return &InvoiceUseCase{
		invoices:         invoices,
		logs:             logs,
		stampDuty:        stampDuty,
		stampDutyEnabled: stampDutyEnabled,
		logger:           logger.With().Str("component", "invoices").Logger(),
	}
}

// CreateDraft persiste un nouveau brouillon. Les champs de format
// absents reçoivent leurs valeurs par défaut; les montants sont calculés.
func (u *InvoiceUseCase) CreateDraft(ctx context.Context, inv *entity.Invoice) (*entity.Invoice, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.Version == "" {
		inv.Version = pkgteif.FormatVersion
	}
	if inv.ControlingAgency == "" {
		inv.ControlingAgency = pkgteif.ControlingAgency
	}
	if inv.DocumentTypeCode == "" {
		inv.DocumentTypeCode = pkgteif.DocTypeInvoice
		inv.DocumentTypeLabel = "Facture"
	}
	if inv.IssueDate.IsZero() {
		inv.IssueDate = time.Now().UTC()
	}
	inv.Status = entity.StatusDraft
	inv.Signature = nil
	inv.Submission = nil

	domteif.CalculateTotals(inv, u.stampDuty, u.stampDutyEnabled)

	if err := u.invoices.Save(ctx, inv); err != nil {
		return nil, err
	}
	u.logger.Info().Str("invoice_id", inv.ID).Str("document", inv.DocumentIdentifier).Msg("brouillon créé")
	return inv, nil
}

// UpdateDraft remplace l'en-tête commercial et les lignes d'un brouillon.
// Refusé (ErrImmutable) dès que la facture est Signed ou au-delà.
func (u *InvoiceUseCase) UpdateDraft(ctx context.Context, invoiceID string, apply func(*entity.Invoice)) (*entity.Invoice, error) {
	inv, err := u.invoices.Load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := domteif.EnsureMutable(inv); err != nil {
		return nil, err
	}

	apply(inv)
	// toute modification ramène la facture en brouillon
	inv.Status = entity.StatusDraft
	domteif.CalculateTotals(inv, u.stampDuty, u.stampDutyEnabled)

	if err := u.invoices.Save(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Get recharge l'agrégat complet.
func (u *InvoiceUseCase) Get(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	return u.invoices.Load(ctx, invoiceID)
}

// SubmissionLog retourne le journal d'audit des échanges TTN de la
// facture, du plus ancien au plus récent.
func (u *InvoiceUseCase) SubmissionLog(ctx context.Context, invoiceID string) ([]*entity.SubmissionLogEntry, error) {
	if _, err := u.invoices.Load(ctx, invoiceID); err != nil {
		return nil, err
	}
	entries, err := u.logs.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*entity.SubmissionLogEntry{}
	}
	return entries, nil
}
