package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice est l'agrégat facture: en-tête, lignes, récapitulatif de taxes,
// totaux calculés, bloc de signature et dossier de soumission. C'est une
// structure mémoire pure; la persistance passe par le port repository.
type Invoice struct {
	ID string

	// En-tête du message TEIF.
	SenderIdentifier       string // Matricule fiscal de l'émetteur
	SenderIdentifierType   string // I-01, I-02, ...
	ReceiverIdentifier     string
	ReceiverIdentifierType string
	DocumentIdentifier     string // Numéro de facture (ex: 2026-0042)
	DocumentTypeCode       string // I-11 facture, I-12 avoir
	DocumentTypeLabel      string
	Version                string // Version du format TEIF
	ControlingAgency       string // "TTN"
	IssueDate              time.Time
	DueDate                *time.Time

	// Intervenants de la section partenaires.
	Seller Partner
	Buyer  Partner

	// Conditions de paiement.
	PaymentTermsCode        string
	PaymentTermsDescription string
	PaymentMeansCode        string

	Lines      []*Line
	TaxSummary []TaxSummaryEntry
	Totals     Totals

	// Signature et soumission; assignés une seule fois chacun.
	Signature  *SignatureBlock
	Submission *SubmissionRecord

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Totals totaux du document. Tous les champs sont en millimes exacts
// (trois décimales), jamais en flottant binaire.
type Totals struct {
	Gross             decimal.Decimal // Total brut (somme quantité × prix)
	Discount          decimal.Decimal // Total des remises
	NetBeforeDiscount decimal.Decimal // Total HT avant remise
	ExclTax           decimal.Decimal // Total HT (base imposable)
	Tax               decimal.Decimal // Total des taxes (hors timbre)
	StampDuty         decimal.Decimal // Droit de timbre (zéro si non appliqué)
	InclTax           decimal.Decimal // Total TTC
}

// TaxSummaryEntry une ligne du récapitulatif de taxes: un taux distinct
// rencontré sur les lignes, ou l'entrée fixe du droit de timbre.
type TaxSummaryEntry struct {
	TaxTypeCode   string          // I-1602 TVA, I-1601 droit de timbre
	TaxTypeLabel  string
	Rate          decimal.Decimal // Taux en pourcentage (zéro pour le timbre)
	TaxableAmount decimal.Decimal // Base imposable cumulée
	TaxAmount     decimal.Decimal // Taxe cumulée
}

// SignatureBlock bloc de signature XAdES-BES. Assigné exactement une fois
// lors du passage à l'état Signed, immuable ensuite. ElementXML est le
// nœud ds:Signature seul, réémis tel quel par le constructeur de document;
// SignedXML est le document complet signé, transmis verbatim à TTN.
type SignatureBlock struct {
	ID          string    // Id du nœud ds:Signature
	ElementXML  string    // Élément ds:Signature sérialisé
	SignedXML   string    // Document TEIF complet signé
	SigningTime time.Time // Horodatage UTC de la signature
}

// SignatureSummary signature extraite d'un document TEIF lu: identité
// sans le XML complet.
type SignatureSummary struct {
	ID             string
	Value          string // SignatureValue en Base64
	SigningTime    string // xades:SigningTime brut
	Role           string // xades:ClaimedRole
	CertificateB64 string // Certificat X.509 embarqué (Base64 DER)
}
