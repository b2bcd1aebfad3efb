package entity

import "github.com/shopspring/decimal"

// Line ligne de facture. Les montants calculés (Gross..Total) sont la
// fonction déterministe de Quantity, UnitPrice, DiscountRate et TaxRate;
// ils sont recalculés à chaque modification des lignes.
type Line struct {
	ID        string
	ItemCode  string // Référence produit (SKU)
	ItemName  string
	Quantity  decimal.Decimal
	Unit      string // Code UNECE (PCE, KGM, ...)
	UnitPrice decimal.Decimal

	DiscountRate decimal.Decimal // Pourcentage, zéro si pas de remise
	TaxTypeCode  string          // I-1602 par défaut
	TaxRate      decimal.Decimal // Pourcentage (ex: 19.00)

	// Montants calculés, trois décimales exactes.
	Gross    decimal.Decimal // quantité × prix
	Discount decimal.Decimal // brut × taux de remise / 100
	Net      decimal.Decimal // brut − remise
	Tax      decimal.Decimal // net × taux de taxe / 100
	Total    decimal.Decimal // net + taxe

	// Sous-lignes imbriquées, au plus la profondeur admise par le format.
	SubLines []*Line
}

// Walk parcourt la ligne et toutes ses sous-lignes en profondeur d'abord.
func (l *Line) Walk(fn func(*Line)) {
	fn(l)
	for _, sub := range l.SubLines {
		sub.Walk(fn)
	}
}

// Depth profondeur d'imbrication de la ligne (1 si aucune sous-ligne).
func (l *Line) Depth() int {
	max := 0
	for _, sub := range l.SubLines {
		if d := sub.Depth(); d > max {
			max = d
		}
	}
	return 1 + max
}
