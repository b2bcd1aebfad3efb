package teif

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aymenbha/fattoura-api/internal/domain/entity"
	pkgteif "github.com/aymenbha/fattoura-api/pkg/teif"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func line(qty, price, taxRate string) *entity.Line {
	return &entity.Line{
		ItemName:    "article",
		Quantity:    dec(qty),
		Unit:        "PCE",
		UnitPrice:   dec(price),
		TaxTypeCode: pkgteif.TaxTVA,
		TaxRate:     dec(taxRate),
	}
}

func TestCalculateLineSimple(t *testing.T) {
	l := line("10", "100.000", "19")
	CalculateLine(l)

	assert.Equal(t, "1000.000", l.Gross.StringFixed(3))
	assert.Equal(t, "0.000", l.Discount.StringFixed(3))
	assert.Equal(t, "1000.000", l.Net.StringFixed(3))
	assert.Equal(t, "190.000", l.Tax.StringFixed(3))
	assert.Equal(t, "1190.000", l.Total.StringFixed(3))
}

// La taxe est tronquée au millime, jamais arrondie: 0.020 × 19 % donne
// 0.0038, soit 0.003 et non 0.004.
func TestCalculateLineTruncatesTax(t *testing.T) {
	l := line("0.100", "0.200", "19")
	CalculateLine(l)

	assert.Equal(t, "0.020", l.Net.StringFixed(3))
	assert.Equal(t, "0.003", l.Tax.StringFixed(3))
	assert.Equal(t, "0.023", l.Total.StringFixed(3))
}

func TestCalculateLineDiscountTruncatedBeforeTax(t *testing.T) {
	l := line("3", "19.990", "19")
	l.DiscountRate = dec("10")
	CalculateLine(l)

	// 59.970 × 10 % = 5.997; 53.973 × 19 % = 10.25487 -> 10.254.
	assert.Equal(t, "59.970", l.Gross.StringFixed(3))
	assert.Equal(t, "5.997", l.Discount.StringFixed(3))
	assert.Equal(t, "53.973", l.Net.StringFixed(3))
	assert.Equal(t, "10.254", l.Tax.StringFixed(3))
	assert.Equal(t, "64.227", l.Total.StringFixed(3))
}

func TestCalculateTotalsWithStampDuty(t *testing.T) {
	inv := &entity.Invoice{
		DocumentIdentifier: "FACT-2026-0001",
		IssueDate:          time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		Lines:              []*entity.Line{line("10", "100.000", "19")},
	}
	CalculateTotals(inv, dec("1.000"), true)

	assert.Equal(t, "1000.000", inv.Totals.ExclTax.StringFixed(3))
	assert.Equal(t, "190.000", inv.Totals.Tax.StringFixed(3))
	assert.Equal(t, "1.000", inv.Totals.StampDuty.StringFixed(3))
	assert.Equal(t, "1191.000", inv.Totals.InclTax.StringFixed(3))

	// TVA puis droit de timbre dans le récapitulatif.
	require.Len(t, inv.TaxSummary, 2)
	assert.Equal(t, pkgteif.TaxTVA, inv.TaxSummary[0].TaxTypeCode)
	assert.Equal(t, "190.000", inv.TaxSummary[0].TaxAmount.StringFixed(3))
	assert.Equal(t, pkgteif.TaxStampDuty, inv.TaxSummary[1].TaxTypeCode)
	assert.Equal(t, "1.000", inv.TaxSummary[1].TaxAmount.StringFixed(3))
}

func TestCalculateTotalsStampDutyDisabled(t *testing.T) {
	inv := &entity.Invoice{Lines: []*entity.Line{line("10", "100.000", "19")}}
	CalculateTotals(inv, dec("1.000"), false)

	assert.Equal(t, "0.000", inv.Totals.StampDuty.StringFixed(3))
	assert.Equal(t, "1190.000", inv.Totals.InclTax.StringFixed(3))
	require.Len(t, inv.TaxSummary, 1)
}

func TestCalculateTotalsGroupsByRate(t *testing.T) {
	inv := &entity.Invoice{Lines: []*entity.Line{
		line("1", "1000.000", "19"),
		line("1", "1000.000", "7"),
		line("1", "500.000", "19"),
	}}
	CalculateTotals(inv, decimal.Zero, false)

	require.Len(t, inv.TaxSummary, 2)
	assert.Equal(t, "1500.000", inv.TaxSummary[0].TaxableAmount.StringFixed(3))
	assert.Equal(t, "285.000", inv.TaxSummary[0].TaxAmount.StringFixed(3))
	assert.Equal(t, "1000.000", inv.TaxSummary[1].TaxableAmount.StringFixed(3))
	assert.Equal(t, "70.000", inv.TaxSummary[1].TaxAmount.StringFixed(3))
	assert.Equal(t, "355.000", inv.Totals.Tax.StringFixed(3))
}

// "19" et "19.00" désignent le même taux: une seule entrée au
// récapitulatif.
func TestCalculateTotalsRateEqualityIsNumeric(t *testing.T) {
	inv := &entity.Invoice{Lines: []*entity.Line{
		line("1", "100.000", "19"),
		line("1", "100.000", "19.00"),
	}}
	CalculateTotals(inv, decimal.Zero, false)

	require.Len(t, inv.TaxSummary, 1)
	assert.Equal(t, "200.000", inv.TaxSummary[0].TaxableAmount.StringFixed(3))
}

// Les sous-lignes participent aux totaux et au récapitulatif au même
// titre que leurs parentes.
func TestCalculateTotalsIncludesSubLines(t *testing.T) {
	parent := line("1", "100.000", "19")
	parent.SubLines = []*entity.Line{line("2", "50.000", "19")}
	inv := &entity.Invoice{Lines: []*entity.Line{parent}}
	CalculateTotals(inv, decimal.Zero, false)

	assert.Equal(t, "200.000", inv.Totals.ExclTax.StringFixed(3))
	assert.Equal(t, "38.000", inv.Totals.Tax.StringFixed(3))
	require.Len(t, inv.TaxSummary, 1)
	assert.Equal(t, "200.000", inv.TaxSummary[0].TaxableAmount.StringFixed(3))
}

// Les totaux sont la somme exacte des montants de ligne: aucune dérive
// de troncature au niveau du document.
func TestCalculateTotalsSumLaw(t *testing.T) {
	inv := &entity.Invoice{Lines: []*entity.Line{
		line("0.100", "0.200", "19"),
		line("0.300", "0.700", "19"),
		line("7", "3.333", "7"),
	}}
	CalculateTotals(inv, decimal.Zero, false)

	gross, net, tax := decimal.Zero, decimal.Zero, decimal.Zero
	for _, l := range inv.Lines {
		gross = gross.Add(l.Gross)
		net = net.Add(l.Net)
		tax = tax.Add(l.Tax)
	}
	assert.True(t, inv.Totals.Gross.Equal(gross))
	assert.True(t, inv.Totals.ExclTax.Equal(net))
	assert.True(t, inv.Totals.Tax.Equal(tax))
	assert.True(t, inv.Totals.InclTax.Equal(net.Add(tax)))
}

func TestValidateDraftCollectsAllViolations(t *testing.T) {
	inv := &entity.Invoice{
		SenderIdentifierType: pkgteif.IdentifierMatriculeFiscal,
		SenderIdentifier:     "1234567X", // clé de contrôle fausse
	}
	err := ValidateDraft(inv)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInvoice)

	msg := err.Error()
	assert.Contains(t, msg, "numéro de document requis")
	assert.Contains(t, msg, "émetteur")
	assert.Contains(t, msg, "date d'émission requise")
	assert.Contains(t, msg, "au moins une ligne requise")
}

func TestValidateDraftDepthLimit(t *testing.T) {
	l := line("1", "10.000", "19")
	l2 := line("1", "10.000", "19")
	l3 := line("1", "10.000", "19")
	l4 := line("1", "10.000", "19")
	l3.SubLines = []*entity.Line{l4}
	l2.SubLines = []*entity.Line{l3}
	l.SubLines = []*entity.Line{l2}

	inv := &entity.Invoice{
		DocumentIdentifier:   "FACT-2026-0001",
		DocumentTypeCode:     pkgteif.DocTypeInvoice,
		SenderIdentifierType: pkgteif.IdentifierMatriculeFiscal,
		SenderIdentifier:     "1234568XAM000",
		IssueDate:            time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		Lines:                []*entity.Line{l},
	}
	err := ValidateDraft(inv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profondeur")
}

func TestValidateDraftAcceptsWellFormed(t *testing.T) {
	inv := &entity.Invoice{
		DocumentIdentifier:     "FACT-2026-0001",
		DocumentTypeCode:       pkgteif.DocTypeInvoice,
		SenderIdentifierType:   pkgteif.IdentifierMatriculeFiscal,
		SenderIdentifier:       "1234568XAM000",
		ReceiverIdentifierType: pkgteif.IdentifierMatriculeFiscal,
		ReceiverIdentifier:     "0987654MBN000",
		IssueDate:              time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		Lines:                  []*entity.Line{line("10", "100.000", "19")},
	}
	require.NoError(t, ValidateDraft(inv))
}

func TestEnsureMutable(t *testing.T) {
	inv := &entity.Invoice{Status: entity.StatusValidated}
	require.NoError(t, EnsureMutable(inv))

	inv.Status = entity.StatusSigned
	require.Error(t, EnsureMutable(inv))
}
