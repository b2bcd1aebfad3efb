// Interfaces de signature électronique des documents TEIF (XAdES-BES).

package teif

// Signer signe un document TEIF non signé et vérifie un document signé.
type Signer interface {
	// Sign prend le XML TEIF sans signature et retourne le document complet
	// avec le bloc ds:Signature ajouté en frère de l'InvoiceBody.
	Sign(xmlBytes []byte) ([]byte, error)
	// Verify contrôle la signature embarquée contre le certificat qu'elle
	// contient. Retourne false (sans erreur) pour une signature
	// cryptographiquement invalide; une erreur signale une structure
	// incomplète.
	Verify(signedXML []byte) (bool, error)
}

// CertificateProvider fournit le matériel de signature. L'implémentation
// doit garantir qu'une opération de signature observe toujours un triplet
// certificat + clé + chaîne complet et cohérent, jamais un état partiel.
type CertificateProvider interface {
	SigningCertificatePEM() ([]byte, error)
	SigningCertificateDER() ([]byte, error)
	PrivateKeyPEM() ([]byte, error)
	// CertificateChain retourne la chaîne de confiance en blocs PEM,
	// certificat de signature exclu. Peut être vide.
	CertificateChain() ([][]byte, error)
	SerialNumberHex() (string, error)
	IssuerDN() (string, error)
}
