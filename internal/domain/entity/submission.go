package entity

import "time"

// SubmissionRecord dossier de soumission à la plateforme TTN. Reference
// n'est assignée qu'après un appel de soumission réussi.
type SubmissionRecord struct {
	Reference       string // Référence attribuée par TTN
	Verification    string // Charge utile du code de vérification (CEV)
	SubmittedAt     time.Time
	AcceptedAt      *time.Time
	RejectionReason string
}

// Sens et issue d'une entrée du journal de soumission.
const (
	LogDirectionOut = "OUT" // Requête vers TTN
	LogDirectionIn  = "IN"  // Réponse de TTN

	LogOutcomeAccepted = "ACCEPTED"
	LogOutcomeRejected = "REJECTED"
	LogOutcomeError    = "ERROR"
	LogOutcomePending  = "PENDING"
)

// SubmissionLogEntry une entrée du journal d'audit des échanges avec TTN.
// Journal en append uniquement: une entrée n'est jamais modifiée après
// création, et elle existe que l'appel ait abouti ou non.
type SubmissionLogEntry struct {
	ID         string
	InvoiceID  string
	Direction  string // OUT ou IN
	Endpoint   string
	Payload    string // Corps envoyé
	Response   string // Corps brut reçu (vide si échec réseau)
	HTTPStatus int    // Zéro si la requête n'a pas atteint le serveur
	Outcome    string
	CreatedAt  time.Time
}
