package repository

import (
	"context"

	"github.com/aymenbha/fattoura-api/internal/domain/entity"
)

// SubmissionLogRepository journal d'audit des échanges avec TTN.
// Append uniquement: aucune mise à jour ni suppression. Les écritures pour
// des factures différentes peuvent être concurrentes; celles d'une même
// facture sont sérialisées par la machine à états appelante.
type SubmissionLogRepository interface {
	Append(ctx context.Context, e *entity.SubmissionLogEntry) error
	ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.SubmissionLogEntry, error)
}
