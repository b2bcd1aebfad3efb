// Package teif contient les catalogues et vocabulaires du format TEIF
// (Tunisian Electronic Invoice Format) échangé avec la plateforme El Fatoora
// de Tunisie TradeNet (TTN).
package teif

// =============================================================================
// Versions du format et agence de contrôle acceptées par la plateforme.
// =============================================================================

const (
	// FormatVersion version du format TEIF générée par ce module.
	FormatVersion = "1.8.8"
	// ControlingAgency agence de contrôle portée par l'attribut racine.
	// L'orthographe "controling" (un seul l) est celle du schéma officiel.
	ControlingAgency = "TTN"
)

// ValidFormatVersions versions TEIF reconnues en lecture/validation.
var ValidFormatVersions = map[string]bool{
	"1.8.8": true,
	"1.8.7": true,
}

// ValidControlingAgencies agences de contrôle reconnues.
var ValidControlingAgencies = map[string]bool{
	ControlingAgency: true,
}

// =============================================================================
// Types de document (Bgm/DocumentType @code).
// =============================================================================

const (
	DocTypeInvoice    = "I-11" // Facture
	DocTypeCreditNote = "I-12" // Facture d'avoir
	DocTypeProforma   = "I-13" // Facture pro forma (non soumise à TTN)
)

// ValidDocumentTypeCodes types de document admis à la soumission.
var ValidDocumentTypeCodes = map[string]bool{
	DocTypeInvoice:    true,
	DocTypeCreditNote: true,
	DocTypeProforma:   true,
}

// =============================================================================
// Types d'identifiant des intervenants (attribut type des éléments
// MessageSenderIdentifier / MessageRecieverIdentifier / PartnerIdentifier).
// =============================================================================

const (
	IdentifierMatriculeFiscal = "I-01" // Matricule fiscal tunisien
	IdentifierCIN             = "I-02" // Carte d'identité nationale
	IdentifierCarteSejour     = "I-03" // Carte de séjour
	IdentifierAutre           = "I-04" // Autre identifiant
)

// ValidIdentifierTypes types d'identifiant admis.
var ValidIdentifierTypes = map[string]bool{
	IdentifierMatriculeFiscal: true,
	IdentifierCIN:             true,
	IdentifierCarteSejour:     true,
	IdentifierAutre:           true,
}

// =============================================================================
// Codes de fonction des intervenants (PartnerDetails @functionCode).
// =============================================================================

const (
	PartnerBuyer    = "I-61" // Acheteur (destinataire de la facture)
	PartnerSeller   = "I-62" // Fournisseur (émetteur de la facture)
	PartnerDelivery = "I-64" // Lieu de livraison
)

// =============================================================================
// Codes de fonction des dates (Dtm/DateText @functionCode).
// Le format de sérialisation des dates TEIF est ddMMyy.
// =============================================================================

const (
	// DateFormat format fixe des dates dans le fil TEIF.
	DateFormat = "ddMMyy"

	DateInvoice = "I-31" // Date d'émission de la facture
	DateDue     = "I-32" // Date d'échéance
	DatePeriod  = "I-36" // Période de facturation
)

// =============================================================================
// Codes de type de montant (Moa @amountTypeCode).
// Niveau ligne puis niveau document; la section taxes réutilise I-178/I-179.
// =============================================================================

const (
	// Niveau ligne
	AmountLineUnitPrice = "I-182" // Prix unitaire HT
	AmountLineGross     = "I-183" // Montant brut ligne (quantité × prix)
	AmountLineDiscount  = "I-184" // Montant de la remise ligne
	AmountLineNet       = "I-171" // Montant net HT ligne (après remise)
	AmountLineTax       = "I-172" // Montant de taxe ligne
	AmountLineTotal     = "I-173" // Montant TTC ligne

	// Niveau document
	AmountGrossTotal        = "I-174" // Total brut des lignes
	AmountDiscountTotal     = "I-175" // Total des remises
	AmountNetTotal          = "I-176" // Total HT (base imposable, après remise)
	AmountNetBeforeDiscount = "I-181" // Total HT avant remise
	AmountTaxableBase       = "I-178" // Base imposable d'une ligne de taxe
	AmountTaxTotal          = "I-179" // Montant de taxe (ligne de taxe et total TVA)
	AmountInclTaxTotal      = "I-180" // Total TTC (HT + taxes + droit de timbre)
)

// =============================================================================
// Codes de taxe (TaxTypeName @code).
// =============================================================================

const (
	TaxStampDuty = "I-1601" // Droit de timbre (montant fixe par document)
	TaxTVA       = "I-1602" // Taxe sur la valeur ajoutée
	TaxFODEC     = "I-1603" // FODEC (fonds de développement de la compétitivité)
)

// TaxLabels libellés officiels des codes de taxe.
var TaxLabels = map[string]string{
	TaxStampDuty: "droit de timbre",
	TaxTVA:       "TVA",
	TaxFODEC:     "FODEC",
}

// =============================================================================
// Conditions et moyens de paiement (PytSection).
// =============================================================================

const (
	PaymentTermsImmediate = "I-10" // Paiement comptant
	PaymentTermsDeferred  = "I-11" // Paiement à échéance

	PaymentMeansCash     = "I-111" // Espèces
	PaymentMeansCheque   = "I-112" // Chèque
	PaymentMeansTransfer = "I-113" // Virement bancaire
	PaymentMeansCard     = "I-114" // Carte bancaire
)

// =============================================================================
// Moyens de communication (CtaSection/Communication @type).
// =============================================================================

const (
	ComMeansPhone = "I-101" // Téléphone
	ComMeansFax   = "I-102" // Fax
	ComMeansEmail = "I-103" // Courriel
)

// =============================================================================
// Unités de mesure (LinQty/Quantity @measurementUnit) — codes UNECE usuels.
// =============================================================================

const (
	UnitPiece    = "PCE" // Pièce
	UnitKilogram = "KGM" // Kilogramme
	UnitLitre    = "LTR" // Litre
	UnitMetre    = "MTR" // Mètre
	UnitHour     = "HUR" // Heure
	UnitDay      = "DAY" // Jour
)

// ValidMeasurementUnits unités admises sur les lignes.
var ValidMeasurementUnits = map[string]bool{
	UnitPiece: true, UnitKilogram: true, UnitLitre: true,
	UnitMetre: true, UnitHour: true, UnitDay: true,
}

// CurrencyTND identifiant de devise porté par chaque montant du fil.
const CurrencyTND = "TND"

// MaxLineDepth profondeur maximale d'imbrication des sous-lignes admise
// par le format (ligne racine = profondeur 1).
const MaxLineDepth = 3

// =============================================================================
// Prédicats d'appartenance aux vocabulaires, utilisés par la validation.
// =============================================================================

func ValidFormatVersion(v string) bool { return ValidFormatVersions[v] }

func ValidDocumentType(code string) bool { return ValidDocumentTypeCodes[code] }

func ValidIdentifierType(t string) bool { return ValidIdentifierTypes[t] }

func ValidMeasurementUnit(u string) bool { return ValidMeasurementUnits[u] }

func ValidPartnerFunction(code string) bool {
	switch code {
	case PartnerBuyer, PartnerSeller, PartnerDelivery:
		return true
	}
	return false
}

func ValidDateFunction(code string) bool {
	switch code {
	case DateInvoice, DateDue, DatePeriod:
		return true
	}
	return false
}

func ValidTaxType(code string) bool {
	_, ok := TaxLabels[code]
	return ok
}
