package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aymenbha/fattoura-api/internal/domain"
	"github.com/aymenbha/fattoura-api/internal/domain/entity"
	"github.com/aymenbha/fattoura-api/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo persistance de l'agrégat facture: en-tête dans invoices,
// lignes (arbre aplati par parent_line_id) dans invoice_lines,
// récapitulatif de taxes dans invoice_tax_summary. Save remplace les
// lignes et le récapitulatif en bloc, dans une transaction.
type InvoiceRepo struct {
	pool *pgxpool.Pool
}

// NewInvoiceRepository construit l'adaptateur.
func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepo {
	return &InvoiceRepo{pool: pool}
}

// Save persiste l'agrégat entier. Insère ou met à jour l'en-tête, puis
// réécrit lignes et récapitulatif.
func (r *InvoiceRepo) Save(ctx context.Context, inv *entity.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.UpdatedAt = time.Now().UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = inv.UpdatedAt
	}

	sellerJSON, err := json.Marshal(inv.Seller)
	if err != nil {
		return fmt.Errorf("sérialiser fournisseur: %w", err)
	}
	buyerJSON, err := json.Marshal(inv.Buyer)
	if err != nil {
		return fmt.Errorf("sérialiser acheteur: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.saveHeader(ctx, tx, inv, sellerJSON, buyerJSON); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id = $1`, inv.ID); err != nil {
		return fmt.Errorf("purger les lignes: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM invoice_tax_summary WHERE invoice_id = $1`, inv.ID); err != nil {
		return fmt.Errorf("purger le récapitulatif: %w", err)
	}
	pos := 0
	for _, l := range inv.Lines {
		if err := r.insertLine(ctx, tx, inv.ID, nil, l, &pos); err != nil {
			return err
		}
	}
	for i, row := range inv.TaxSummary {
		_, err := tx.Exec(ctx, `
			INSERT INTO invoice_tax_summary (invoice_id, position, tax_type_code, tax_type_label, rate, taxable_amount, tax_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			inv.ID, i, row.TaxTypeCode, row.TaxTypeLabel, row.Rate, row.TaxableAmount, row.TaxAmount,
		)
		if err != nil {
			return fmt.Errorf("insérer ligne de taxe: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *InvoiceRepo) saveHeader(ctx context.Context, tx pgx.Tx, inv *entity.Invoice, sellerJSON, buyerJSON []byte) error {
	var sigID, sigElement, signedXML *string
	var signingTime *time.Time
	if inv.Signature != nil {
		sigID = nullIfEmpty(inv.Signature.ID)
		sigElement = nullIfEmpty(inv.Signature.ElementXML)
		signedXML = nullIfEmpty(inv.Signature.SignedXML)
		st := inv.Signature.SigningTime
		signingTime = &st
	}
	var ttnRef, ttnCev, rejection *string
	var submittedAt, acceptedAt *time.Time
	if inv.Submission != nil {
		ttnRef = nullIfEmpty(inv.Submission.Reference)
		ttnCev = nullIfEmpty(inv.Submission.Verification)
		rejection = nullIfEmpty(inv.Submission.RejectionReason)
		if !inv.Submission.SubmittedAt.IsZero() {
			st := inv.Submission.SubmittedAt
			submittedAt = &st
		}
		acceptedAt = inv.Submission.AcceptedAt
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO invoices (
			id, sender_identifier, sender_identifier_type,
			receiver_identifier, receiver_identifier_type,
			document_identifier, document_type_code, document_type_label,
			version, controling_agency, issue_date, due_date,
			seller, buyer,
			payment_terms_code, payment_terms_description, payment_means_code,
			gross_total, discount_total, net_before_discount, excl_tax_total,
			tax_total, stamp_duty, incl_tax_total,
			signature_id, signature_element, signed_xml, signing_time,
			ttn_reference, ttn_cev, submitted_at, accepted_at, rejection_reason,
			status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36)
		ON CONFLICT (id) DO UPDATE SET
			document_identifier = EXCLUDED.document_identifier,
			document_type_code = EXCLUDED.document_type_code,
			document_type_label = EXCLUDED.document_type_label,
			issue_date = EXCLUDED.issue_date,
			due_date = EXCLUDED.due_date,
			seller = EXCLUDED.seller,
			buyer = EXCLUDED.buyer,
			payment_terms_code = EXCLUDED.payment_terms_code,
			payment_terms_description = EXCLUDED.payment_terms_description,
			payment_means_code = EXCLUDED.payment_means_code,
			gross_total = EXCLUDED.gross_total,
			discount_total = EXCLUDED.discount_total,
			net_before_discount = EXCLUDED.net_before_discount,
			excl_tax_total = EXCLUDED.excl_tax_total,
			tax_total = EXCLUDED.tax_total,
			stamp_duty = EXCLUDED.stamp_duty,
			incl_tax_total = EXCLUDED.incl_tax_total,
			signature_id = EXCLUDED.signature_id,
			signature_element = EXCLUDED.signature_element,
			signed_xml = EXCLUDED.signed_xml,
			signing_time = EXCLUDED.signing_time,
			ttn_reference = EXCLUDED.ttn_reference,
			ttn_cev = EXCLUDED.ttn_cev,
			submitted_at = EXCLUDED.submitted_at,
			accepted_at = EXCLUDED.accepted_at,
			rejection_reason = EXCLUDED.rejection_reason,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		inv.ID, inv.SenderIdentifier, inv.SenderIdentifierType,
		inv.ReceiverIdentifier, inv.ReceiverIdentifierType,
		inv.DocumentIdentifier, inv.DocumentTypeCode, inv.DocumentTypeLabel,
		inv.Version, inv.ControlingAgency, inv.IssueDate, inv.DueDate,
		sellerJSON, buyerJSON,
		inv.PaymentTermsCode, inv.PaymentTermsDescription, inv.PaymentMeansCode,
		inv.Totals.Gross, inv.Totals.Discount, inv.Totals.NetBeforeDiscount, inv.Totals.ExclTax,
		inv.Totals.Tax, inv.Totals.StampDuty, inv.Totals.InclTax,
		sigID, sigElement, signedXML, signingTime,
		ttnRef, ttnCev, submittedAt, acceptedAt, rejection,
		string(inv.Status), inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("numéro de document déjà utilisé: %w", domain.ErrConflict)
		}
		return fmt.Errorf("insérer facture: %w", err)
	}
	return nil
}

func (r *InvoiceRepo) insertLine(ctx context.Context, tx pgx.Tx, invoiceID string, parentID *string, l *entity.Line, pos *int) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO invoice_lines (
			id, invoice_id, parent_line_id, position,
			item_code, item_name, quantity, unit, unit_price,
			discount_rate, tax_type_code, tax_rate,
			gross, discount, net, tax, total
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		l.ID, invoiceID, parentID, *pos,
		l.ItemCode, l.ItemName, l.Quantity, l.Unit, l.UnitPrice,
		l.DiscountRate, l.TaxTypeCode, l.TaxRate,
		l.Gross, l.Discount, l.Net, l.Tax, l.Total,
	)
	if err != nil {
		return fmt.Errorf("insérer ligne: %w", err)
	}
	*pos++
	for _, sub := range l.SubLines {
		if err := r.insertLine(ctx, tx, invoiceID, &l.ID, sub, pos); err != nil {
			return err
		}
	}
	return nil
}

// Load recharge l'agrégat entier. Retourne domain.ErrNotFound si l'id est
// inconnu.
func (r *InvoiceRepo) Load(ctx context.Context, id string) (*entity.Invoice, error) {
	inv := &entity.Invoice{}
	var sellerJSON, buyerJSON []byte
	var sigID, sigElement, signedXML, ttnRef, ttnCev, rejection *string
	var signingTime, submittedAt, acceptedAt *time.Time
	var status string

	err := r.pool.QueryRow(ctx, `
		SELECT id, sender_identifier, sender_identifier_type,
		       receiver_identifier, receiver_identifier_type,
		       document_identifier, document_type_code, document_type_label,
		       version, controling_agency, issue_date, due_date,
		       seller, buyer,
		       payment_terms_code, payment_terms_description, payment_means_code,
		       gross_total, discount_total, net_before_discount, excl_tax_total,
		       tax_total, stamp_duty, incl_tax_total,
		       signature_id, signature_element, signed_xml, signing_time,
		       ttn_reference, ttn_cev, submitted_at, accepted_at, rejection_reason,
		       status, created_at, updated_at
		FROM invoices WHERE id = $1`, id,
	).Scan(
		&inv.ID, &inv.SenderIdentifier, &inv.SenderIdentifierType,
		&inv.ReceiverIdentifier, &inv.ReceiverIdentifierType,
		&inv.DocumentIdentifier, &inv.DocumentTypeCode, &inv.DocumentTypeLabel,
		&inv.Version, &inv.ControlingAgency, &inv.IssueDate, &inv.DueDate,
		&sellerJSON, &buyerJSON,
		&inv.PaymentTermsCode, &inv.PaymentTermsDescription, &inv.PaymentMeansCode,
		&inv.Totals.Gross, &inv.Totals.Discount, &inv.Totals.NetBeforeDiscount, &inv.Totals.ExclTax,
		&inv.Totals.Tax, &inv.Totals.StampDuty, &inv.Totals.InclTax,
		&sigID, &sigElement, &signedXML, &signingTime,
		&ttnRef, &ttnCev, &submittedAt, &acceptedAt, &rejection,
		&status, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("charger facture: %w", err)
	}
	inv.Status = entity.Status(status)

	if err := json.Unmarshal(sellerJSON, &inv.Seller); err != nil {
		return nil, fmt.Errorf("désérialiser fournisseur: %w", err)
	}
	if err := json.Unmarshal(buyerJSON, &inv.Buyer); err != nil {
		return nil, fmt.Errorf("désérialiser acheteur: %w", err)
	}

	if sigID != nil || signedXML != nil {
		inv.Signature = &entity.SignatureBlock{
			ID:         orEmpty(sigID),
			ElementXML: orEmpty(sigElement),
			SignedXML:  orEmpty(signedXML),
		}
		if signingTime != nil {
			inv.Signature.SigningTime = *signingTime
		}
	}
	if ttnRef != nil || submittedAt != nil {
		inv.Submission = &entity.SubmissionRecord{
			Reference:       orEmpty(ttnRef),
			Verification:    orEmpty(ttnCev),
			AcceptedAt:      acceptedAt,
			RejectionReason: orEmpty(rejection),
		}
		if submittedAt != nil {
			inv.Submission.SubmittedAt = *submittedAt
		}
	}

	if err := r.loadLines(ctx, inv); err != nil {
		return nil, err
	}
	if err := r.loadTaxSummary(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *InvoiceRepo) loadLines(ctx context.Context, inv *entity.Invoice) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, parent_line_id, item_code, item_name, quantity, unit, unit_price,
		       discount_rate, tax_type_code, tax_rate, gross, discount, net, tax, total
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY position`, inv.ID)
	if err != nil {
		return fmt.Errorf("charger lignes: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*entity.Line)
	type flat struct {
		line     *entity.Line
		parentID *string
	}
	var order []flat
	for rows.Next() {
		l := &entity.Line{}
		var parentID *string
		if err := rows.Scan(
			&l.ID, &parentID, &l.ItemCode, &l.ItemName, &l.Quantity, &l.Unit, &l.UnitPrice,
			&l.DiscountRate, &l.TaxTypeCode, &l.TaxRate, &l.Gross, &l.Discount, &l.Net, &l.Tax, &l.Total,
		); err != nil {
			return fmt.Errorf("lire ligne: %w", err)
		}
		byID[l.ID] = l
		order = append(order, flat{line: l, parentID: parentID})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("parcourir lignes: %w", err)
	}

	// Reconstruction de l'arbre; l'ordre des positions préserve l'ordre
	// des lignes et de leurs sous-lignes.
	for _, f := range order {
		if f.parentID == nil {
			inv.Lines = append(inv.Lines, f.line)
			continue
		}
		parent, ok := byID[*f.parentID]
		if !ok {
			return fmt.Errorf("ligne %s: parent %s introuvable", f.line.ID, *f.parentID)
		}
		parent.SubLines = append(parent.SubLines, f.line)
	}
	return nil
}

func (r *InvoiceRepo) loadTaxSummary(ctx context.Context, inv *entity.Invoice) error {
	rows, err := r.pool.Query(ctx, `
		SELECT tax_type_code, tax_type_label, rate, taxable_amount, tax_amount
		FROM invoice_tax_summary WHERE invoice_id = $1 ORDER BY position`, inv.ID)
	if err != nil {
		return fmt.Errorf("charger récapitulatif: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row entity.TaxSummaryEntry
		if err := rows.Scan(&row.TaxTypeCode, &row.TaxTypeLabel, &row.Rate, &row.TaxableAmount, &row.TaxAmount); err != nil {
			return fmt.Errorf("lire ligne de taxe: %w", err)
		}
		inv.TaxSummary = append(inv.TaxSummary, row)
	}
	return rows.Err()
}
