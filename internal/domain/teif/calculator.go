// Package teif: règles de domaine de la facture électronique TEIF —
// calcul décimal exact des montants et validation de l'agrégat.
package teif

import (
	"github.com/shopspring/decimal"

	"github.com/aymenbha/fattoura-api/internal/domain/entity"
	pkgteif "github.com/aymenbha/fattoura-api/pkg/teif"
)

var cent = decimal.NewFromInt(100)

// CalculateLine calcule les montants d'une ligne et les écrit sur place:
//
//	brut   = quantité × prix unitaire
//	remise = brut × taux de remise / 100 (zéro si taux nul)
//	net    = brut − remise
//	taxe   = net × taux de taxe / 100
//	total  = net + taxe
//
// Chaque étape intermédiaire est tronquée à trois décimales AVANT l'étape
// suivante. Tronquer seulement à la fin donnerait des écarts au millime;
// cet ordre est contractuel. Fonction totale: aucune erreur possible sur
// des décimaux bien formés.
func CalculateLine(l *entity.Line) {
	l.Gross = pkgteif.Round3(l.Quantity.Mul(l.UnitPrice))
	if l.DiscountRate.IsZero() {
		l.Discount = decimal.Zero.Round(3)
	} else {
		l.Discount = pkgteif.Round3(l.Gross.Mul(l.DiscountRate).Div(cent))
	}
	l.Net = l.Gross.Sub(l.Discount)
	l.Tax = pkgteif.Round3(l.Net.Mul(l.TaxRate).Div(cent))
	l.Total = l.Net.Add(l.Tax)
}

// CalculateTotals recalcule toutes les lignes (sous-lignes comprises), le
// récapitulatif de taxes et les totaux du document. Le droit de timbre est
// ajouté au TTC et au récapitulatif seulement si stampDutyEnabled.
//
// À appeler après toute modification des lignes: les totaux sont la
// fonction déterministe des lignes courantes.
func CalculateTotals(inv *entity.Invoice, stampDuty decimal.Decimal, stampDutyEnabled bool) {
	gross := decimal.Zero
	discount := decimal.Zero
	net := decimal.Zero
	tax := decimal.Zero

	var summary []entity.TaxSummaryEntry
	accumulate := func(l *entity.Line) {
		CalculateLine(l)
		gross = gross.Add(l.Gross)
		discount = discount.Add(l.Discount)
		net = net.Add(l.Net)
		tax = tax.Add(l.Tax)

		code := l.TaxTypeCode
		if code == "" {
			code = pkgteif.TaxTVA
		}
		// Regroupement par valeur décimale exacte du taux, pas par
		// représentation: "19" et "19.00" sont la même entrée.
		for i := range summary {
			if summary[i].TaxTypeCode == code && summary[i].Rate.Equal(l.TaxRate) {
				summary[i].TaxableAmount = summary[i].TaxableAmount.Add(l.Net)
				summary[i].TaxAmount = summary[i].TaxAmount.Add(l.Tax)
				return
			}
		}
		summary = append(summary, entity.TaxSummaryEntry{
			TaxTypeCode:   code,
			TaxTypeLabel:  pkgteif.TaxLabels[code],
			Rate:          l.TaxRate,
			TaxableAmount: l.Net,
			TaxAmount:     l.Tax,
		})
	}
	for _, l := range inv.Lines {
		l.Walk(accumulate)
	}

	stamp := decimal.Zero
	if stampDutyEnabled {
		stamp = pkgteif.Round3(stampDuty)
		summary = append(summary, entity.TaxSummaryEntry{
			TaxTypeCode:   pkgteif.TaxStampDuty,
			TaxTypeLabel:  pkgteif.TaxLabels[pkgteif.TaxStampDuty],
			Rate:          decimal.Zero,
			TaxableAmount: decimal.Zero,
			TaxAmount:     stamp,
		})
	}

	inv.TaxSummary = summary
	inv.Totals = entity.Totals{
		Gross:             gross,
		Discount:          discount,
		NetBeforeDiscount: gross,
		ExclTax:           net,
		Tax:               tax,
		StampDuty:         stamp,
		InclTax:           net.Add(tax).Add(stamp),
	}
}
