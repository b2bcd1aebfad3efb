package teif

import (
	"errors"
	"fmt"

	"github.com/aymenbha/fattoura-api/internal/domain"
	"github.com/aymenbha/fattoura-api/internal/domain/entity"
	pkgteif "github.com/aymenbha/fattoura-api/pkg/teif"
)

// ErrInvalidInvoice agrège les erreurs de validation d'agrégat.
var ErrInvalidInvoice = errors.New("facture invalide")

// ValidateDraft contrôle l'agrégat avant tout calcul ou construction XML:
// identifiants des intervenants, type de document, présence d'au moins une
// ligne, valeurs numériques et profondeur d'imbrication des sous-lignes.
// Toutes les violations sont collectées puis retournées ensemble.
func ValidateDraft(inv *entity.Invoice) error {
	if inv == nil {
		return fmt.Errorf("%w: agrégat nul", ErrInvalidInvoice)
	}
	var errs []error

	if inv.DocumentIdentifier == "" {
		errs = append(errs, errors.New("numéro de document requis"))
	}
	if !pkgteif.ValidDocumentTypeCodes[inv.DocumentTypeCode] {
		errs = append(errs, fmt.Errorf("type de document inconnu: %q", inv.DocumentTypeCode))
	}
	if !pkgteif.ValidIdentifierTypes[inv.SenderIdentifierType] {
		errs = append(errs, fmt.Errorf("type d'identifiant émetteur inconnu: %q", inv.SenderIdentifierType))
	}
	// Seul le matricule fiscal porte une clé de contrôle vérifiable.
	if inv.SenderIdentifierType == pkgteif.IdentifierMatriculeFiscal {
		if err := pkgteif.ValidateMatricule(inv.SenderIdentifier); err != nil {
			errs = append(errs, fmt.Errorf("émetteur: %w", err))
		}
	}
	if inv.ReceiverIdentifierType == pkgteif.IdentifierMatriculeFiscal {
		if err := pkgteif.ValidateMatricule(inv.ReceiverIdentifier); err != nil {
			errs = append(errs, fmt.Errorf("destinataire: %w", err))
		}
	}
	if inv.IssueDate.IsZero() {
		errs = append(errs, errors.New("date d'émission requise"))
	}

	if len(inv.Lines) == 0 {
		errs = append(errs, errors.New("au moins une ligne requise"))
	}
	for i, l := range inv.Lines {
		if l.Quantity.IsNegative() || l.Quantity.IsZero() {
			errs = append(errs, fmt.Errorf("ligne %d: quantité strictement positive requise", i+1))
		}
		if l.UnitPrice.IsNegative() {
			errs = append(errs, fmt.Errorf("ligne %d: prix unitaire négatif", i+1))
		}
		if l.TaxRate.IsNegative() {
			errs = append(errs, fmt.Errorf("ligne %d: taux de taxe négatif", i+1))
		}
		if d := l.Depth(); d > pkgteif.MaxLineDepth {
			errs = append(errs, fmt.Errorf("ligne %d: profondeur %d au-delà du maximum %d", i+1, d, pkgteif.MaxLineDepth))
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidInvoice}, errs...)...)
	}
	return nil
}

// EnsureMutable rejette toute modification d'en-tête ou de lignes dès que
// la facture est signée. Garde utilisée par les opérations d'édition, pas
// par la machine à états elle-même.
func EnsureMutable(inv *entity.Invoice) error {
	if inv.Status.Frozen() {
		return domain.ErrImmutable
	}
	return nil
}
