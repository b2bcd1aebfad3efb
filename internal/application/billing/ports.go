// Package billing orchestre le cycle de vie légal de la facture:
// Draft → Validated → Signed → Submitted → Accepted|Rejected → Archived.
package billing

import (
	"context"

	"github.com/aymenbha/fattoura-api/internal/infrastructure/ttn"
)

// Submitter port de sortie vers la plateforme TTN. L'implémentation
// concrète est le client REST; les tests injectent un double.
type Submitter interface {
	Submit(ctx context.Context, invoiceID string, signedXML []byte) (*ttn.SubmitResult, error)
	CheckStatus(ctx context.Context, invoiceID, reference string) (*ttn.StatusResult, error)
	FetchVerification(ctx context.Context, invoiceID, reference string) (string, error)
}

var _ Submitter = (*ttn.Client)(nil)
