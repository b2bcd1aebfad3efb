// Package repository: ports de persistance consommés par le cœur métier.
// Le cœur ne dépend que de ces opérations abstraites, jamais d'un moteur
// de stockage concret.
package repository

import (
	"context"

	"github.com/aymenbha/fattoura-api/internal/domain/entity"
)

// InvoiceRepository charge et persiste l'agrégat facture complet
// (lignes, récapitulatif, signature, dossier de soumission inclus).
type InvoiceRepository interface {
	Load(ctx context.Context, id string) (*entity.Invoice, error)
	Save(ctx context.Context, inv *entity.Invoice) error
}
