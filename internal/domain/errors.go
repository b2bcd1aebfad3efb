// Package domain: erreurs de domaine (sans dépendances externes).
//
// Les quatre types structurés forment la taxonomie d'erreurs du cycle de vie
// de la facture électronique; chaque composant échoue avec le type qui lui
// est propre, jamais avec une erreur générique, pour que l'appelant puisse
// décider réessai / abandon / message utilisateur par famille.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Erreurs sentinelles partagées.
var (
	ErrNotFound     = errors.New("ressource introuvable")
	ErrInvalidInput = errors.New("entrée invalide")
	ErrConflict     = errors.New("conflit avec l'état actuel")
	ErrImmutable    = errors.New("facture signée: en-tête et lignes immuables")
	ErrUnauthorized = errors.New("non autorisé")
	ErrForbidden    = errors.New("accès refusé")
)

// MalformedDocumentError: XML TEIF illisible ou structurellement invalide.
// Porte la liste complète des violations constatées; jamais réparé en
// silence.
type MalformedDocumentError struct {
	Violations []string
	Cause      error
}

func (e *MalformedDocumentError) Error() string {
	if len(e.Violations) > 0 {
		return fmt.Sprintf("document TEIF invalide: %s", strings.Join(e.Violations, "; "))
	}
	if e.Cause != nil {
		return fmt.Sprintf("document TEIF illisible: %v", e.Cause)
	}
	return "document TEIF invalide"
}

func (e *MalformedDocumentError) Unwrap() error { return e.Cause }

// NewMalformedDocument construit l'erreur à partir des violations collectées.
func NewMalformedDocument(violations []string, cause error) *MalformedDocumentError {
	return &MalformedDocumentError{Violations: violations, Cause: cause}
}

// StateViolationError: transition de cycle de vie illégale. L'agrégat est
// laissé inchangé; l'erreur nomme la transition tentée.
type StateViolationError struct {
	From string
	To   string
}

func (e *StateViolationError) Error() string {
	return fmt.Sprintf("transition illégale: %s → %s", e.From, e.To)
}

// NewStateViolation construit l'erreur pour la transition (from → to).
func NewStateViolation(from, to string) *StateViolationError {
	return &StateViolationError{From: from, To: to}
}

// SignatureError: matériel de certificat manquant/invalide ou échec d'une
// primitive cryptographique. Step nomme l'étape de l'algorithme XAdES.
type SignatureError struct {
	Step  string
	Cause error
}

func (e *SignatureError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("échec de signature [%s]: %v", e.Step, e.Cause)
	}
	return fmt.Sprintf("échec de signature [%s]", e.Step)
}

func (e *SignatureError) Unwrap() error { return e.Cause }

// NewSignatureError construit l'erreur de signature avec sa cause.
func NewSignatureError(step string, cause error) *SignatureError {
	return &SignatureError{Step: step, Cause: cause}
}

// SubmissionError: échec réseau, HTTP ou de décodage en dialoguant avec la
// plateforme TTN. La tentative est déjà tracée dans le journal de soumission
// quand cette erreur remonte.
type SubmissionError struct {
	HTTPStatus int
	Message    string
	Cause      error
}

func (e *SubmissionError) Error() string {
	switch {
	case e.Message != "" && e.HTTPStatus > 0:
		return fmt.Sprintf("soumission TTN refusée (HTTP %d): %s", e.HTTPStatus, e.Message)
	case e.Message != "":
		return fmt.Sprintf("soumission TTN échouée: %s", e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("soumission TTN échouée: %v", e.Cause)
	default:
		return "soumission TTN échouée"
	}
}

func (e *SubmissionError) Unwrap() error { return e.Cause }

// NewSubmissionError construit l'erreur de soumission.
func NewSubmissionError(httpStatus int, message string, cause error) *SubmissionError {
	return &SubmissionError{HTTPStatus: httpStatus, Message: message, Cause: cause}
}
