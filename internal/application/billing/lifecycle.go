package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aymenbha/fattoura-api/internal/domain"
	"github.com/aymenbha/fattoura-api/internal/domain/entity"
	"github.com/aymenbha/fattoura-api/internal/domain/repository"
	domteif "github.com/aymenbha/fattoura-api/internal/domain/teif"
	teifcodec "github.com/aymenbha/fattoura-api/internal/infrastructure/teif"
	"github.com/aymenbha/fattoura-api/internal/infrastructure/teif/xades"
	"github.com/aymenbha/fattoura-api/internal/infrastructure/ttn"
	pkgteif "github.com/aymenbha/fattoura-api/pkg/teif"
)

// LifecycleOrchestrator pilote les transitions d'état de la facture.
// Chaque opération recharge l'agrégat, vérifie la transition, exécute
// l'effet puis persiste. Une transition illégale laisse l'agrégat
// intact.
//
// submitter peut être nil (environnement dev): la soumission est alors
// simulée localement, rien ne part vers TTN.
type LifecycleOrchestrator struct {
	invoices  repository.InvoiceRepository
	builder   *teifcodec.Builder
	validator *teifcodec.Validator
	signer    pkgteif.Signer
	submitter Submitter

	stampDuty        decimal.Decimal
	stampDutyEnabled bool

	logger zerolog.Logger
	now    func() time.Time
}

// NewLifecycleOrchestrator construit l'orchestrateur avec toutes ses
// dépendances.
func NewLifecycleOrchestrator(
	invoices repository.InvoiceRepository,
	builder *teifcodec.Builder,
	validator *teifcodec.Validator,
	signer pkgteif.Signer,
	submitter Submitter,
	stampDuty decimal.Decimal,
	stampDutyEnabled bool,
	logger zerolog.Logger,
) *LifecycleOrchestrator {
	return &LifecycleOrchestrator{
		invoices:         invoices,
		builder:          builder,
		validator:        validator,
		signer:           signer,
		submitter:        submitter,
		stampDuty:        stampDuty,
		stampDutyEnabled: stampDutyEnabled,
		logger:           logger.With().Str("component", "lifecycle").Logger(),
		now:              time.Now,
	}
}

// Validate contrôle le brouillon (règles métier puis structure du
// document généré) et le fait passer Draft → Validated.
func (o *LifecycleOrchestrator) Validate(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	inv, err := o.invoices.Load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.Status.CanTransition(entity.StatusValidated) {
		return nil, domain.NewStateViolation(string(inv.Status), string(entity.StatusValidated))
	}

	if err := domteif.ValidateDraft(inv); err != nil {
		return nil, err
	}
	o.recalculate(inv)

	data, err := o.builder.Build(inv)
	if err != nil {
		return nil, err
	}
	if report := o.validator.Validate(data); !report.Valid {
		return nil, domain.NewMalformedDocument(report.Errors, nil)
	}

	if err := inv.TransitionTo(entity.StatusValidated); err != nil {
		return nil, err
	}
	if err := o.invoices.Save(ctx, inv); err != nil {
		return nil, err
	}
	o.logger.Info().Str("invoice_id", inv.ID).Str("document", inv.DocumentIdentifier).Msg("facture validée")
	return inv, nil
}

// Sign construit le document, le signe (XAdES-BES) et fait passer
// Validated → Signed. Le bloc de signature est assigné une seule fois;
// retour StateViolation si la facture n'est pas en Validated.
func (o *LifecycleOrchestrator) Sign(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	inv, err := o.invoices.Load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.Status.CanTransition(entity.StatusSigned) || inv.Status != entity.StatusValidated {
		return nil, domain.NewStateViolation(string(inv.Status), string(entity.StatusSigned))
	}
	if inv.Signature != nil {
		return nil, domain.NewSignatureError("assignation", fmt.Errorf("bloc de signature déjà présent: %w", domain.ErrImmutable))
	}

	unsigned, err := o.builder.Build(inv)
	if err != nil {
		return nil, err
	}
	signed, err := o.signer.Sign(unsigned)
	if err != nil {
		return nil, err
	}
	element, err := xades.ExtractSignatureElement(signed)
	if err != nil {
		return nil, err
	}

	doc, err := teifcodec.NewParser().Parse(signed)
	if err != nil {
		return nil, err
	}
	sigID := ""
	if len(doc.Signatures) > 0 {
		sigID = doc.Signatures[len(doc.Signatures)-1].ID
	}

	inv.Signature = &entity.SignatureBlock{
		ID:          sigID,
		ElementXML:  element,
		SignedXML:   string(signed),
		SigningTime: o.now().UTC(),
	}
	if err := inv.TransitionTo(entity.StatusSigned); err != nil {
		return nil, err
	}
	if err := o.invoices.Save(ctx, inv); err != nil {
		return nil, err
	}
	o.logger.Info().Str("invoice_id", inv.ID).Str("signature_id", sigID).Msg("facture signée")
	return inv, nil
}

// Submit transmet le document signé à TTN et fait passer Signed →
// Submitted. Si la plateforme annonce une acceptation immédiate, la
// facture avance jusqu'à Accepted dans la même sauvegarde. En cas
// d'échec de soumission, la facture reste Signed: l'appelant peut
// soumettre à nouveau.
func (o *LifecycleOrchestrator) Submit(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	inv, err := o.invoices.Load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.Status.CanTransition(entity.StatusSubmitted) {
		return nil, domain.NewStateViolation(string(inv.Status), string(entity.StatusSubmitted))
	}
	if inv.Signature == nil || inv.Signature.SignedXML == "" {
		return nil, domain.NewStateViolation(string(inv.Status), string(entity.StatusSubmitted))
	}

	var result *ttn.SubmitResult
	if o.submitter == nil {
		// Mode dev: pas d'appel réseau, référence simulée.
		result = &ttn.SubmitResult{
			Reference: "SIMULE-" + inv.ID,
			Status:    "accepted",
		}
	} else {
		result, err = o.submitter.Submit(ctx, inv.ID, []byte(inv.Signature.SignedXML))
		if err != nil {
			o.logger.Error().Err(err).Str("invoice_id", inv.ID).Msg("soumission TTN en échec")
			return nil, err
		}
	}

	now := o.now().UTC()
	inv.Submission = &entity.SubmissionRecord{
		Reference:    result.Reference,
		Verification: result.Verification,
		SubmittedAt:  now,
	}
	if err := inv.TransitionTo(entity.StatusSubmitted); err != nil {
		return nil, err
	}
	// Acceptation immédiate annoncée dans la réponse de soumission:
	// avancer jusqu'à Accepted dans la même persistance.
	if strings.EqualFold(result.Status, "accepted") {
		if err := inv.TransitionTo(entity.StatusAccepted); err != nil {
			return nil, err
		}
		inv.Submission.AcceptedAt = &now
	}
	if err := o.invoices.Save(ctx, inv); err != nil {
		return nil, err
	}
	o.logger.Info().Str("invoice_id", inv.ID).Str("reference", result.Reference).
		Str("status", string(inv.Status)).Msg("facture soumise")
	return inv, nil
}

// RefreshStatus interroge TTN sur une facture Submitted et applique
// l'issue: Accepted (avec récupération du CEV si absent) ou Rejected
// avec motif. Un statut encore en attente ne change rien.
func (o *LifecycleOrchestrator) RefreshStatus(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	inv, err := o.invoices.Load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != entity.StatusSubmitted {
		return nil, domain.NewStateViolation(string(inv.Status), string(entity.StatusAccepted))
	}
	if o.submitter == nil || inv.Submission == nil {
		return inv, nil
	}

	res, err := o.submitter.CheckStatus(ctx, inv.ID, inv.Submission.Reference)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.EqualFold(res.Status, "accepted"):
		if err := inv.TransitionTo(entity.StatusAccepted); err != nil {
			return nil, err
		}
		now := o.now().UTC()
		inv.Submission.AcceptedAt = &now
		if res.Verification != "" {
			inv.Submission.Verification = res.Verification
		} else if inv.Submission.Verification == "" {
			if cev, err := o.submitter.FetchVerification(ctx, inv.ID, inv.Submission.Reference); err == nil {
				inv.Submission.Verification = cev
			}
		}
	case strings.EqualFold(res.Status, "rejected"):
		if err := inv.TransitionTo(entity.StatusRejected); err != nil {
			return nil, err
		}
		inv.Submission.RejectionReason = res.RejectionReason
	default:
		// toujours en attente côté plateforme
		return inv, nil
	}

	if err := o.invoices.Save(ctx, inv); err != nil {
		return nil, err
	}
	o.logger.Info().Str("invoice_id", inv.ID).Str("status", string(inv.Status)).Msg("statut TTN appliqué")
	return inv, nil
}

// Archive fait passer la facture en Archived, depuis Accepted ou
// Rejected. État terminal: plus aucune transition ensuite.
func (o *LifecycleOrchestrator) Archive(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	inv, err := o.invoices.Load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := inv.TransitionTo(entity.StatusArchived); err != nil {
		return nil, err
	}
	if err := o.invoices.Save(ctx, inv); err != nil {
		return nil, err
	}
	o.logger.Info().Str("invoice_id", inv.ID).Msg("facture archivée")
	return inv, nil
}

// recalculate recalcule lignes, récapitulatif et totaux de l'agrégat.
func (o *LifecycleOrchestrator) recalculate(inv *entity.Invoice) {
	domteif.CalculateTotals(inv, o.stampDuty, o.stampDutyEnabled)
}
