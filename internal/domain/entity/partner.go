package entity

// Partner intervenant de la facture (fournisseur, acheteur, livraison).
type Partner struct {
	FunctionCode   string // I-61 acheteur, I-62 fournisseur
	Identifier     string // Matricule fiscal, CIN, ...
	IdentifierType string // I-01, I-02, ...
	Name           string
	Address        Address
	References     []Reference // Bons de commande, contrats, ...
	Contacts       []Contact
}

// Address adresse postale d'un intervenant.
type Address struct {
	Description string
	Street      string
	City        string
	PostalCode  string
	Country     string // ISO 3166-1 alpha-2, "TN" par défaut
}

// Reference référence externe rattachée à un intervenant.
type Reference struct {
	Type  string
	Value string
}

// Contact moyen de communication d'un intervenant.
type Contact struct {
	Name  string
	Means string // I-101 téléphone, I-103 courriel
	Value string
}
