package entity

import "github.com/aymenbha/fattoura-api/internal/domain"

// Status état légal de la facture. La séquence est strictement monotone:
// aucun retour en arrière, aucune sortie d'Archived.
type Status string

const (
	StatusDraft     Status = "DRAFT"     // Créée, modifiable
	StatusValidated Status = "VALIDATED" // Structure TEIF contrôlée
	StatusSigned    Status = "SIGNED"    // Signature XAdES apposée; contenu gelé
	StatusSubmitted Status = "SUBMITTED" // Transmise à TTN, verdict en attente
	StatusAccepted  Status = "ACCEPTED"  // Acceptée par TTN
	StatusRejected  Status = "REJECTED"  // Refusée par TTN
	StatusArchived  Status = "ARCHIVED"  // Classée, état terminal
)

// AllStatuses tous les états, dans l'ordre du cycle de vie.
var AllStatuses = []Status{
	StatusDraft, StatusValidated, StatusSigned, StatusSubmitted,
	StatusAccepted, StatusRejected, StatusArchived,
}

// legalTransitions table explicite des transitions autorisées, clé
// (état courant → état cible). Tout couple absent est une violation.
var legalTransitions = map[Status]map[Status]bool{
	StatusDraft:     {StatusValidated: true},
	StatusValidated: {StatusSigned: true},
	StatusSigned:    {StatusSubmitted: true},
	StatusSubmitted: {StatusAccepted: true, StatusRejected: true},
	StatusAccepted:  {StatusArchived: true},
	StatusRejected:  {StatusArchived: true},
	StatusArchived:  {},
}

// CanTransition indique si la transition s → to figure dans la table.
func (s Status) CanTransition(to Status) bool {
	return legalTransitions[s][to]
}

// IsTerminal vrai pour l'état final du cycle de vie.
func (s Status) IsTerminal() bool { return s == StatusArchived }

// Frozen vrai dès que le contenu de la facture est gelé (Signed et au-delà).
func (s Status) Frozen() bool {
	switch s {
	case StatusDraft, StatusValidated:
		return false
	}
	return true
}

// TransitionTo applique la transition vers to après contrôle de la table.
// En cas de transition illégale l'agrégat est laissé strictement inchangé
// et l'erreur nomme le couple (source, cible).
func (inv *Invoice) TransitionTo(to Status) error {
	if !inv.Status.CanTransition(to) {
		return domain.NewStateViolation(string(inv.Status), string(to))
	}
	inv.Status = to
	return nil
}
