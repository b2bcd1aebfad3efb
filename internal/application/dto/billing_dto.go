package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aymenbha/fattoura-api/internal/domain"
	"github.com/aymenbha/fattoura-api/internal/domain/entity"
	pkgteif "github.com/aymenbha/fattoura-api/pkg/teif"
)

// PartnerRequest intervenant d'une facture entrante.
type PartnerRequest struct {
	Identifier     string `json:"identifier"`
	IdentifierType string `json:"identifier_type"` // I-01 par défaut
	Name           string `json:"name"`
	Street         string `json:"street"`
	City           string `json:"city"`
	PostalCode     string `json:"postal_code"`
	Country        string `json:"country"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
}

// LineRequest ligne entrante; les montants sont des chaînes décimales
// exactes, jamais des flottants JSON. Récursive pour les sous-lignes.
type LineRequest struct {
	ItemCode     string        `json:"item_code"`
	ItemName     string        `json:"item_name"`
	Quantity     string        `json:"quantity"`
	Unit         string        `json:"unit"`
	UnitPrice    string        `json:"unit_price"`
	DiscountRate string        `json:"discount_rate"`
	TaxTypeCode  string        `json:"tax_type_code"`
	TaxRate      string        `json:"tax_rate"`
	SubLines     []LineRequest `json:"sub_lines,omitempty"`
}

// CreateInvoiceRequest création ou remplacement d'un brouillon.
type CreateInvoiceRequest struct {
	DocumentIdentifier string         `json:"document_identifier"`
	DocumentTypeCode   string         `json:"document_type_code"`
	DocumentTypeLabel  string         `json:"document_type_label"`
	IssueDate          string         `json:"issue_date"` // AAAA-MM-JJ
	DueDate            string         `json:"due_date,omitempty"`
	Seller             PartnerRequest `json:"seller"`
	Buyer              PartnerRequest `json:"buyer"`
	PaymentTermsCode   string         `json:"payment_terms_code"`
	PaymentMeansCode   string         `json:"payment_means_code"`
	Lines              []LineRequest  `json:"lines"`
}

// ToEntity convertit la requête en agrégat. Les décimaux illisibles
// rendent ErrInvalidInput.
func (r CreateInvoiceRequest) ToEntity() (*entity.Invoice, error) {
	inv := &entity.Invoice{
		DocumentIdentifier: r.DocumentIdentifier,
		DocumentTypeCode:   r.DocumentTypeCode,
		DocumentTypeLabel:  r.DocumentTypeLabel,
		PaymentTermsCode:   r.PaymentTermsCode,
		PaymentMeansCode:   r.PaymentMeansCode,
		Seller:             r.Seller.toEntity(),
		Buyer:              r.Buyer.toEntity(),
	}
	inv.Seller.FunctionCode = pkgteif.PartnerSeller
	inv.Buyer.FunctionCode = pkgteif.PartnerBuyer
	inv.SenderIdentifier = inv.Seller.Identifier
	inv.SenderIdentifierType = inv.Seller.IdentifierType
	inv.ReceiverIdentifier = inv.Buyer.Identifier
	inv.ReceiverIdentifierType = inv.Buyer.IdentifierType

	if r.IssueDate != "" {
		t, err := time.Parse("2006-01-02", r.IssueDate)
		if err != nil {
			return nil, fmt.Errorf("date d'émission %q: %w", r.IssueDate, domain.ErrInvalidInput)
		}
		inv.IssueDate = t
	}
	if r.DueDate != "" {
		t, err := time.Parse("2006-01-02", r.DueDate)
		if err != nil {
			return nil, fmt.Errorf("date d'échéance %q: %w", r.DueDate, domain.ErrInvalidInput)
		}
		inv.DueDate = &t
	}
	for i, lr := range r.Lines {
		l, err := lr.toEntity()
		if err != nil {
			return nil, fmt.Errorf("ligne %d: %w", i+1, err)
		}
		inv.Lines = append(inv.Lines, l)
	}
	return inv, nil
}

func (r PartnerRequest) toEntity() entity.Partner {
	idType := r.IdentifierType
	if idType == "" {
		idType = pkgteif.IdentifierMatriculeFiscal
	}
	p := entity.Partner{
		Identifier:     pkgteif.NormalizeMatricule(r.Identifier),
		IdentifierType: idType,
		Name:           r.Name,
		Address: entity.Address{
			Street:     r.Street,
			City:       r.City,
			PostalCode: r.PostalCode,
			Country:    r.Country,
		},
	}
	if r.Email != "" {
		p.Contacts = append(p.Contacts, entity.Contact{Name: r.Name, Means: pkgteif.ComMeansEmail, Value: r.Email})
	}
	if r.Phone != "" {
		p.Contacts = append(p.Contacts, entity.Contact{Name: r.Name, Means: pkgteif.ComMeansPhone, Value: r.Phone})
	}
	return p
}

func (r LineRequest) toEntity() (*entity.Line, error) {
	qty, err := parseDecimal(r.Quantity)
	if err != nil {
		return nil, fmt.Errorf("quantité %q: %w", r.Quantity, domain.ErrInvalidInput)
	}
	price, err := parseDecimal(r.UnitPrice)
	if err != nil {
		return nil, fmt.Errorf("prix unitaire %q: %w", r.UnitPrice, domain.ErrInvalidInput)
	}
	discount, err := parseDecimalOrZero(r.DiscountRate)
	if err != nil {
		return nil, fmt.Errorf("taux de remise %q: %w", r.DiscountRate, domain.ErrInvalidInput)
	}
	taxRate, err := parseDecimalOrZero(r.TaxRate)
	if err != nil {
		return nil, fmt.Errorf("taux de taxe %q: %w", r.TaxRate, domain.ErrInvalidInput)
	}
	l := &entity.Line{
		ItemCode:     r.ItemCode,
		ItemName:     r.ItemName,
		Quantity:     qty,
		Unit:         r.Unit,
		UnitPrice:    price,
		DiscountRate: discount,
		TaxTypeCode:  r.TaxTypeCode,
		TaxRate:      taxRate,
	}
	for i, sr := range r.SubLines {
		sub, err := sr.toEntity()
		if err != nil {
			return nil, fmt.Errorf("sous-ligne %d: %w", i+1, err)
		}
		l.SubLines = append(l.SubLines, sub)
	}
	return l, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("valeur requise")
	}
	return decimal.NewFromString(s)
}

func parseDecimalOrZero(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// Réponses.

// LineResponse ligne sortante, montants en chaînes à trois décimales.
type LineResponse struct {
	ID           string         `json:"id"`
	ItemCode     string         `json:"item_code"`
	ItemName     string         `json:"item_name"`
	Quantity     string         `json:"quantity"`
	Unit         string         `json:"unit"`
	UnitPrice    string         `json:"unit_price"`
	DiscountRate string         `json:"discount_rate"`
	TaxTypeCode  string         `json:"tax_type_code"`
	TaxRate      string         `json:"tax_rate"`
	Gross        string         `json:"gross"`
	Discount     string         `json:"discount"`
	Net          string         `json:"net"`
	Tax          string         `json:"tax"`
	Total        string         `json:"total"`
	SubLines     []LineResponse `json:"sub_lines,omitempty"`
}

// TotalsResponse totaux du document.
type TotalsResponse struct {
	Gross             string `json:"gross"`
	Discount          string `json:"discount"`
	NetBeforeDiscount string `json:"net_before_discount"`
	ExclTax           string `json:"excl_tax"`
	Tax               string `json:"tax"`
	StampDuty         string `json:"stamp_duty"`
	InclTax           string `json:"incl_tax"`
}

// TaxSummaryResponse une ligne du récapitulatif de taxes.
type TaxSummaryResponse struct {
	TaxTypeCode   string `json:"tax_type_code"`
	TaxTypeLabel  string `json:"tax_type_label"`
	Rate          string `json:"rate"`
	TaxableAmount string `json:"taxable_amount"`
	TaxAmount     string `json:"tax_amount"`
}

// SubmissionResponse dossier de soumission TTN.
type SubmissionResponse struct {
	Reference       string     `json:"reference"`
	Verification    string     `json:"verification,omitempty"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
}

// InvoiceResponse représentation complète de la facture.
type InvoiceResponse struct {
	ID                 string               `json:"id"`
	DocumentIdentifier string               `json:"document_identifier"`
	DocumentTypeCode   string               `json:"document_type_code"`
	Status             string               `json:"status"`
	IssueDate          string               `json:"issue_date"`
	DueDate            string               `json:"due_date,omitempty"`
	SellerName         string               `json:"seller_name"`
	SellerIdentifier   string               `json:"seller_identifier"`
	BuyerName          string               `json:"buyer_name"`
	BuyerIdentifier    string               `json:"buyer_identifier"`
	Lines              []LineResponse       `json:"lines"`
	TaxSummary         []TaxSummaryResponse `json:"tax_summary"`
	Totals             TotalsResponse       `json:"totals"`
	SignatureID        string               `json:"signature_id,omitempty"`
	SigningTime        *time.Time           `json:"signing_time,omitempty"`
	Submission         *SubmissionResponse  `json:"submission,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// FromInvoice construit la réponse depuis l'agrégat.
func FromInvoice(inv *entity.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:                 inv.ID,
		DocumentIdentifier: inv.DocumentIdentifier,
		DocumentTypeCode:   inv.DocumentTypeCode,
		Status:             string(inv.Status),
		IssueDate:          inv.IssueDate.Format("2006-01-02"),
		SellerName:         inv.Seller.Name,
		SellerIdentifier:   inv.Seller.Identifier,
		BuyerName:          inv.Buyer.Name,
		BuyerIdentifier:    inv.Buyer.Identifier,
		Totals: TotalsResponse{
			Gross:             money(inv.Totals.Gross),
			Discount:          money(inv.Totals.Discount),
			NetBeforeDiscount: money(inv.Totals.NetBeforeDiscount),
			ExclTax:           money(inv.Totals.ExclTax),
			Tax:               money(inv.Totals.Tax),
			StampDuty:         money(inv.Totals.StampDuty),
			InclTax:           money(inv.Totals.InclTax),
		},
		CreatedAt: inv.CreatedAt,
		UpdatedAt: inv.UpdatedAt,
	}
	if inv.DueDate != nil {
		resp.DueDate = inv.DueDate.Format("2006-01-02")
	}
	for _, l := range inv.Lines {
		resp.Lines = append(resp.Lines, fromLine(l))
	}
	for _, row := range inv.TaxSummary {
		resp.TaxSummary = append(resp.TaxSummary, TaxSummaryResponse{
			TaxTypeCode:   row.TaxTypeCode,
			TaxTypeLabel:  row.TaxTypeLabel,
			Rate:          row.Rate.StringFixed(2),
			TaxableAmount: money(row.TaxableAmount),
			TaxAmount:     money(row.TaxAmount),
		})
	}
	if inv.Signature != nil {
		resp.SignatureID = inv.Signature.ID
		st := inv.Signature.SigningTime
		resp.SigningTime = &st
	}
	if inv.Submission != nil {
		resp.Submission = &SubmissionResponse{
			Reference:       inv.Submission.Reference,
			Verification:    inv.Submission.Verification,
			SubmittedAt:     inv.Submission.SubmittedAt,
			AcceptedAt:      inv.Submission.AcceptedAt,
			RejectionReason: inv.Submission.RejectionReason,
		}
	}
	return resp
}

func fromLine(l *entity.Line) LineResponse {
	resp := LineResponse{
		ID:           l.ID,
		ItemCode:     l.ItemCode,
		ItemName:     l.ItemName,
		Quantity:     l.Quantity.String(),
		Unit:         l.Unit,
		UnitPrice:    money(l.UnitPrice),
		DiscountRate: l.DiscountRate.StringFixed(2),
		TaxTypeCode:  l.TaxTypeCode,
		TaxRate:      l.TaxRate.StringFixed(2),
		Gross:        money(l.Gross),
		Discount:     money(l.Discount),
		Net:          money(l.Net),
		Tax:          money(l.Tax),
		Total:        money(l.Total),
	}
	for _, sub := range l.SubLines {
		resp.SubLines = append(resp.SubLines, fromLine(sub))
	}
	return resp
}

func money(d decimal.Decimal) string {
	return d.StringFixed(3)
}

// ValidationReportResponse résultat d'une validation structurelle.
type ValidationReportResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// SubmissionLogEntryResponse entrée du journal d'audit TTN.
type SubmissionLogEntryResponse struct {
	ID         string    `json:"id"`
	Direction  string    `json:"direction"`
	Endpoint   string    `json:"endpoint"`
	HTTPStatus int       `json:"http_status"`
	Outcome    string    `json:"outcome"`
	CreatedAt  time.Time `json:"created_at"`
}

// FromLogEntries convertit les entrées du journal (sans les corps bruts,
// consultables en base).
func FromLogEntries(entries []*entity.SubmissionLogEntry) []SubmissionLogEntryResponse {
	out := make([]SubmissionLogEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, SubmissionLogEntryResponse{
			ID:         e.ID,
			Direction:  e.Direction,
			Endpoint:   e.Endpoint,
			HTTPStatus: e.HTTPStatus,
			Outcome:    e.Outcome,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}
