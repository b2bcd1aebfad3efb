// Constantes XMLDSig / XAdES-BES pour la signature des documents TEIF.

package xades

// Espaces de noms et algorithmes.
const (
	NamespaceDS    = "http://www.w3.org/2000/09/xmldsig#"
	NamespaceXAdES = "http://uri.etsi.org/01903/v1.3.2#"

	AlgExcC14N         = "http://www.w3.org/2001/10/xml-exc-c14n#"
	AlgRSASHA256       = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgSHA256          = "http://www.w3.org/2000/09/xmldsig#sha256"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"

	// TypeSignedProperties type de la référence XAdES vers les propriétés
	// signées.
	TypeSignedProperties = "http://uri.etsi.org/01903#SignedProperties"
)

// InvoiceBodyID Id de l'élément InvoiceBody visé par la référence
// principale (doit coïncider avec l'Id émis par le constructeur TEIF).
const InvoiceBodyID = "invoice-body"

// SignerRoleSupplier rôle déclaré du signataire: l'émetteur de la facture.
const SignerRoleSupplier = "supplier"
