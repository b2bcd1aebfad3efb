package teif

import (
	"time"

	"github.com/shopspring/decimal"
)

// Les montants TEIF sont exprimés en dinars avec exactement trois décimales
// (le millime). Toute l'arithmétique monétaire du module passe par Round3:
// troncature vers zéro, appliquée à chaque étape intermédiaire.

// Round3 tronque un montant à trois décimales (millime).
func Round3(d decimal.Decimal) decimal.Decimal {
	return d.RoundDown(3)
}

// FormatAmount sérialise un montant avec exactement trois décimales.
func FormatAmount(d decimal.Decimal) string {
	return d.RoundDown(3).StringFixed(3)
}

// FormatRate sérialise un taux de taxe ou de remise avec deux décimales
// (ex: "19.00").
func FormatRate(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatDate sérialise une date au format fixe ddMMyy du fil TEIF.
func FormatDate(t time.Time) string {
	return t.Format("020106")
}

// ParseDate lit une date ddMMyy du fil TEIF.
func ParseDate(s string) (time.Time, error) {
	return time.Parse("020106", s)
}
