// Service de signature XAdES-BES des documents TEIF. Ajoute <ds:Signature>
// en frère de l'InvoiceBody, dernier enfant de la racine TEIF.

package xades

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/ucarion/c14n"

	"github.com/aymenbha/fattoura-api/internal/domain"
	pkgteif "github.com/aymenbha/fattoura-api/pkg/teif"
)

// SignatureService implémente pkg/teif.Signer. Le matériel cryptographique
// vient du CertificateProvider injecté; l'horloge est substituable pour
// les tests.
type SignatureService struct {
	certs pkgteif.CertificateProvider
	now   func() time.Time
}

// NewSignatureService crée le service de signature.
func NewSignatureService(certs pkgteif.CertificateProvider) *SignatureService {
	return &SignatureService{certs: certs, now: time.Now}
}

// Sign signe le document TEIF: condensé exclusif C14N de l'InvoiceBody,
// propriétés signées XAdES (SigningTime, SigningCertificate, SignerRole),
// SignedInfo à deux références, signature RSA-SHA256 du SignedInfo. Le
// bloc ds:Signature est ajouté après l'InvoiceBody.
func (s *SignatureService) Sign(xmlBytes []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, domain.NewSignatureError("lecture", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "TEIF" {
		return nil, domain.NewSignatureError("lecture", fmt.Errorf("racine TEIF absente"))
	}
	body := findByID(root, InvoiceBodyID)
	if body == nil {
		return nil, domain.NewSignatureError("lecture", fmt.Errorf("InvoiceBody Id=%q introuvable", InvoiceBodyID))
	}

	key, cert, err := s.loadMaterial()
	if err != nil {
		return nil, err
	}

	// 1) Condensé du corps de facture (C14N exclusif)
	bodyDigestB64, err := digestElement(body)
	if err != nil {
		return nil, domain.NewSignatureError("condensé du corps", err)
	}

	// 2) Propriétés signées XAdES et leur condensé
	sigID := "SigId-" + uuid.NewString()
	signedPropsID := sigID + "-signedprops"
	signedPropsXML := s.buildSignedProperties(signedPropsID, cert)
	signedPropsDigestB64, err := digestFragment(signedPropsXML)
	if err != nil {
		return nil, domain.NewSignatureError("condensé des propriétés signées", err)
	}

	// 3) SignedInfo et signature RSA de sa forme canonique
	signedInfoXML := s.buildSignedInfo(bodyDigestB64, signedPropsID, signedPropsDigestB64)
	canonicalSignedInfo, err := canonicalize([]byte(signedInfoXML))
	if err != nil {
		return nil, domain.NewSignatureError("canonisation du SignedInfo", err)
	}
	signHash := sha256.Sum256(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, signHash[:])
	if err != nil {
		return nil, domain.NewSignatureError("signature RSA", err)
	}

	// 4) Assemblage et insertion du bloc complet
	chain, err := s.certs.CertificateChain()
	if err != nil {
		return nil, domain.NewSignatureError("chaîne de certificats", err)
	}
	signatureXML := s.buildFullSignature(
		sigID, signedInfoXML, signedPropsXML,
		base64.StdEncoding.EncodeToString(signatureValue),
		cert, chain,
	)
	return injectSignature(doc, signatureXML)
}

// Verify contrôle la signature embarquée: recalcul du condensé de
// l'InvoiceBody contre la référence principale, puis vérification RSA de
// la valeur de signature sur le SignedInfo canonique. Toute altération du
// corps ou de la signature rend false; une structure incomplète rend une
// erreur.
func (s *SignatureService) Verify(signedXML []byte) (bool, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return false, domain.NewSignatureError("lecture", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "TEIF" {
		return false, domain.NewSignatureError("lecture", fmt.Errorf("racine TEIF absente"))
	}
	sig := lastSignature(root)
	if sig == nil {
		return false, domain.NewSignatureError("structure", fmt.Errorf("aucun bloc ds:Signature"))
	}
	signedInfo := childByTag(sig, "SignedInfo")
	if signedInfo == nil {
		return false, domain.NewSignatureError("structure", fmt.Errorf("SignedInfo absent"))
	}

	// Référence principale: condensé attendu du corps
	wantBodyDigest := referenceDigest(signedInfo, "#"+InvoiceBodyID)
	if wantBodyDigest == "" {
		return false, domain.NewSignatureError("structure", fmt.Errorf("référence #%s absente", InvoiceBodyID))
	}
	body := findByID(root, InvoiceBodyID)
	if body == nil {
		return false, domain.NewSignatureError("structure", fmt.Errorf("InvoiceBody Id=%q introuvable", InvoiceBodyID))
	}
	gotBodyDigest, err := digestElement(body)
	if err != nil {
		return false, domain.NewSignatureError("condensé du corps", err)
	}
	if gotBodyDigest != wantBodyDigest {
		return false, nil
	}

	// Valeur de signature RSA sur le SignedInfo canonique
	sigValueEl := childByTag(sig, "SignatureValue")
	if sigValueEl == nil {
		return false, domain.NewSignatureError("structure", fmt.Errorf("SignatureValue absent"))
	}
	sigValue, err := base64.StdEncoding.DecodeString(compact(sigValueEl.Text()))
	if err != nil {
		return false, domain.NewSignatureError("structure", fmt.Errorf("SignatureValue illisible: %w", err))
	}
	cert, err := embeddedCertificate(sig)
	if err != nil {
		return false, err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return false, domain.NewSignatureError("certificat", fmt.Errorf("clé publique non RSA"))
	}

	canonicalSignedInfo, err := canonicalizeElement(signedInfo)
	if err != nil {
		return false, domain.NewSignatureError("canonisation du SignedInfo", err)
	}
	hash := sha256.Sum256(canonicalSignedInfo)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, hash[:], sigValue); err != nil {
		return false, nil
	}
	return true, nil
}

// ExtractSignatureElement retourne le dernier bloc ds:Signature du
// document signé, sérialisé tel quel, pour réémission verbatim.
func ExtractSignatureElement(signedXML []byte) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return "", domain.NewSignatureError("lecture", err)
	}
	root := doc.Root()
	if root == nil {
		return "", domain.NewSignatureError("lecture", fmt.Errorf("document sans racine"))
	}
	sig := lastSignature(root)
	if sig == nil {
		return "", domain.NewSignatureError("structure", fmt.Errorf("aucun bloc ds:Signature"))
	}
	return serializeElement(sig)
}

func (s *SignatureService) loadMaterial() (*rsa.PrivateKey, *x509.Certificate, error) {
	keyPEM, err := s.certs.PrivateKeyPEM()
	if err != nil {
		return nil, nil, domain.NewSignatureError("clé privée", err)
	}
	key, err := parseRSAPrivateKey(keyPEM)
	if err != nil {
		return nil, nil, domain.NewSignatureError("clé privée", err)
	}
	der, err := s.certs.SigningCertificateDER()
	if err != nil {
		return nil, nil, domain.NewSignatureError("certificat", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, domain.NewSignatureError("certificat", err)
	}
	return key, cert, nil
}

// buildSignedProperties émet les propriétés signées avec leurs espaces de
// noms déclarés sur l'élément même, pour que le condensé se recalcule sur
// un fragment autonome.
func (s *SignatureService) buildSignedProperties(signedPropsID string, cert *x509.Certificate) string {
	certDigest := sha256.Sum256(cert.Raw)
	signingTime := s.now().UTC().Format(time.RFC3339)

	issuer, err := s.certs.IssuerDN()
	if err != nil || issuer == "" {
		issuer = cert.Issuer.String()
	}
	serial, err := s.certs.SerialNumberHex()
	if err != nil || serial == "" {
		serial = cert.SerialNumber.Text(16)
	}

	var sb strings.Builder
	sb.WriteString(`<xades:SignedProperties xmlns:ds="` + NamespaceDS + `" xmlns:xades="` + NamespaceXAdES + `" Id="` + signedPropsID + `">`)
	sb.WriteString(`<xades:SignedSignatureProperties>`)
	sb.WriteString(`<xades:SigningTime>` + signingTime + `</xades:SigningTime>`)
	sb.WriteString(`<xades:SigningCertificate><xades:Cert>`)
	sb.WriteString(`<xades:CertDigest><ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + base64.StdEncoding.EncodeToString(certDigest[:]) + `</ds:DigestValue></xades:CertDigest>`)
	sb.WriteString(`<xades:IssuerSerial><ds:X509IssuerName>` + escapeXML(issuer) + `</ds:X509IssuerName>`)
	sb.WriteString(`<ds:X509SerialNumber>` + serial + `</ds:X509SerialNumber></xades:IssuerSerial>`)
	sb.WriteString(`</xades:Cert></xades:SigningCertificate>`)
	sb.WriteString(`<xades:SignerRole><xades:ClaimedRoles><xades:ClaimedRole>` + SignerRoleSupplier + `</xades:ClaimedRole></xades:ClaimedRoles></xades:SignerRole>`)
	sb.WriteString(`</xades:SignedSignatureProperties>`)
	sb.WriteString(`</xades:SignedProperties>`)
	return sb.String()
}

func (s *SignatureService) buildSignedInfo(bodyDigestB64, signedPropsID, signedPropsDigestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + AlgExcC14N + `"/>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + AlgRSASHA256 + `"/>`)
	sb.WriteString(`<ds:Reference URI="#` + InvoiceBodyID + `">`)
	sb.WriteString(`<ds:Transforms><ds:Transform Algorithm="` + AlgExcC14N + `"/></ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + bodyDigestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`<ds:Reference Type="` + TypeSignedProperties + `" URI="#` + signedPropsID + `">`)
	sb.WriteString(`<ds:Transforms><ds:Transform Algorithm="` + AlgExcC14N + `"/></ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + signedPropsDigestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String()
}

func (s *SignatureService) buildFullSignature(sigID, signedInfoXML, signedPropsXML, signatureValueB64 string, cert *x509.Certificate, chain [][]byte) string {
	var sb strings.Builder
	sb.WriteString(`<ds:Signature xmlns:ds="` + NamespaceDS + `" xmlns:xades="` + NamespaceXAdES + `" Id="` + sigID + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<ds:SignatureValue>` + signatureValueB64 + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo><ds:X509Data>`)
	sb.WriteString(`<ds:X509Certificate>` + base64.StdEncoding.EncodeToString(cert.Raw) + `</ds:X509Certificate>`)
	for _, pemBlock := range chain {
		if der := pemToDER(pemBlock); der != nil {
			sb.WriteString(`<ds:X509Certificate>` + base64.StdEncoding.EncodeToString(der) + `</ds:X509Certificate>`)
		}
	}
	sb.WriteString(`</ds:X509Data></ds:KeyInfo>`)
	sb.WriteString(`<ds:Object><xades:QualifyingProperties Target="#` + sigID + `">`)
	sb.WriteString(signedPropsXML)
	sb.WriteString(`</xades:QualifyingProperties></ds:Object>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

func injectSignature(doc *etree.Document, signatureXML string) ([]byte, error) {
	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, domain.NewSignatureError("insertion", err)
	}
	sigRoot := sigDoc.Root()
	if sigRoot == nil {
		return nil, domain.NewSignatureError("insertion", fmt.Errorf("bloc de signature vide"))
	}
	doc.Root().AddChild(sigRoot)
	return doc.WriteToBytes()
}

// ── canonisation et condensés ────────────────────────────────────────────────

func canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func canonicalizeElement(el *etree.Element) ([]byte, error) {
	raw, err := serializeElement(el)
	if err != nil {
		return nil, err
	}
	return canonicalize([]byte(raw))
}

func digestElement(el *etree.Element) (string, error) {
	canonical, err := canonicalizeElement(el)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

func digestFragment(fragment string) (string, error) {
	canonical, err := canonicalize([]byte(fragment))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

func serializeElement(el *etree.Element) (string, error) {
	d := etree.NewDocument()
	d.SetRoot(el.Copy())
	return d.WriteToString()
}

// ── navigation et analyse ────────────────────────────────────────────────────

func findByID(el *etree.Element, id string) *etree.Element {
	if el.SelectAttrValue("Id", "") == id {
		return el
	}
	for _, c := range el.ChildElements() {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func lastSignature(root *etree.Element) *etree.Element {
	var last *etree.Element
	for _, c := range root.ChildElements() {
		if c.Tag == "Signature" {
			last = c
		}
	}
	return last
}

func childByTag(el *etree.Element, tag string) *etree.Element {
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// referenceDigest retourne le DigestValue de la ds:Reference visant l'URI
// donnée, ou "" si absente.
func referenceDigest(signedInfo *etree.Element, uri string) string {
	for _, ref := range signedInfo.ChildElements() {
		if ref.Tag != "Reference" || ref.SelectAttrValue("URI", "") != uri {
			continue
		}
		if dv := childByTag(ref, "DigestValue"); dv != nil {
			return compact(dv.Text())
		}
	}
	return ""
}

func embeddedCertificate(sig *etree.Element) (*x509.Certificate, error) {
	keyInfo := childByTag(sig, "KeyInfo")
	if keyInfo == nil {
		return nil, domain.NewSignatureError("structure", fmt.Errorf("KeyInfo absent"))
	}
	x509Data := childByTag(keyInfo, "X509Data")
	if x509Data == nil {
		return nil, domain.NewSignatureError("structure", fmt.Errorf("X509Data absent"))
	}
	certEl := childByTag(x509Data, "X509Certificate")
	if certEl == nil {
		return nil, domain.NewSignatureError("structure", fmt.Errorf("X509Certificate absent"))
	}
	der, err := base64.StdEncoding.DecodeString(compact(certEl.Text()))
	if err != nil {
		return nil, domain.NewSignatureError("certificat", fmt.Errorf("X509Certificate illisible: %w", err))
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, domain.NewSignatureError("certificat", err)
	}
	return cert, nil
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("bloc PEM absent")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("clé PKCS8 non RSA")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("type de bloc PEM inattendu: %s", block.Type)
	}
}

func pemToDER(pemBytes []byte) []byte {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil
	}
	return block.Bytes
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

var _ pkgteif.Signer = (*SignatureService)(nil)
