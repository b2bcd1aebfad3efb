package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aymenbha/fattoura-api/internal/domain/entity"
	"github.com/aymenbha/fattoura-api/internal/domain/repository"
)

var _ repository.SubmissionLogRepository = (*SubmissionLogRepo)(nil)

// SubmissionLogRepo journal d'audit des échanges TTN. Append uniquement:
// aucune opération de mise à jour ni de suppression n'existe.
type SubmissionLogRepo struct {
	q Querier
}

// NewSubmissionLogRepository construit l'adaptateur. Passer pool ou tx.
func NewSubmissionLogRepository(q Querier) *SubmissionLogRepo {
	return &SubmissionLogRepo{q: q}
}

// Append insère une entrée de journal.
func (r *SubmissionLogRepo) Append(ctx context.Context, e *entity.SubmissionLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO submission_log (id, invoice_id, direction, endpoint, payload, response, http_status, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.InvoiceID, e.Direction, e.Endpoint, e.Payload, e.Response, e.HTTPStatus, e.Outcome, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insérer entrée de journal: %w", err)
	}
	return nil
}

// ListByInvoice retourne les entrées d'une facture, de la plus ancienne à
// la plus récente.
func (r *SubmissionLogRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.SubmissionLogEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, invoice_id, direction, endpoint, payload, response, http_status, outcome, created_at
		FROM submission_log WHERE invoice_id = $1 ORDER BY created_at`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("charger journal: %w", err)
	}
	defer rows.Close()

	var out []*entity.SubmissionLogEntry
	for rows.Next() {
		e := &entity.SubmissionLogEntry{}
		if err := rows.Scan(&e.ID, &e.InvoiceID, &e.Direction, &e.Endpoint, &e.Payload, &e.Response, &e.HTTPStatus, &e.Outcome, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("lire entrée de journal: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
