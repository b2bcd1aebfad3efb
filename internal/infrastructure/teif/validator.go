package teif

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	pkgteif "github.com/aymenbha/fattoura-api/pkg/teif"
)

// Report résultat d'une validation structurelle. Errors liste toutes les
// violations trouvées, pas seulement la première.
type Report struct {
	Valid  bool
	Errors []string
}

// Validator vérifie la conformité structurelle d'un document TEIF:
// bonne formation, attributs de racine, sections obligatoires et
// vocabulaires de codes. Ne vérifie pas la cryptographie des signatures.
type Validator struct {
	// SignatureRequired exige au moins un bloc ds:Signature (documents
	// destinés à la soumission).
	SignatureRequired bool
}

// NewValidator crée un validateur; les brouillons se valident sans
// signature.
func NewValidator(signatureRequired bool) *Validator {
	return &Validator{SignatureRequired: signatureRequired}
}

// Validate accumule toutes les violations dans le rapport. Un XML
// illisible produit un rapport à violation unique.
func (v *Validator) Validate(data []byte) Report {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return Report{Errors: []string{"XML mal formé: " + err.Error()}}
	}
	root := doc.Root()
	if root == nil || root.Tag != "TEIF" {
		return Report{Errors: []string{"élément racine TEIF absent"}}
	}

	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if ver := root.SelectAttrValue("version", ""); !pkgteif.ValidFormatVersion(ver) {
		add("version non supportée: %q", ver)
	}
	if ag := root.SelectAttrValue("controlingAgency", ""); ag != pkgteif.ControlingAgency {
		add("controlingAgency invalide: %q", ag)
	}

	v.checkHeader(root, add)

	body := root.SelectElement("InvoiceBody")
	if body == nil {
		add("InvoiceBody absent")
	} else {
		v.checkBody(body, add)
	}

	if v.SignatureRequired && !hasSignature(root) {
		add("signature requise absente")
	}

	return Report{Valid: len(errs) == 0, Errors: errs}
}

func (v *Validator) checkHeader(root *etree.Element, add func(string, ...any)) {
	h := root.SelectElement("InvoiceHeader")
	if h == nil {
		add("InvoiceHeader absent")
		return
	}
	for _, tag := range []string{"MessageSenderIdentifier", "MessageRecieverIdentifier"} {
		e := h.SelectElement(tag)
		if e == nil || strings.TrimSpace(e.Text()) == "" {
			add("%s absent ou vide", tag)
			continue
		}
		typ := e.SelectAttrValue("type", "")
		if !pkgteif.ValidIdentifierType(typ) {
			add("%s: type d'identifiant inconnu %q", tag, typ)
		} else if typ == pkgteif.IdentifierMatriculeFiscal {
			if err := pkgteif.ValidateMatricule(e.Text()); err != nil {
				add("%s: %v", tag, err)
			}
		}
	}
}

func (v *Validator) checkBody(body *etree.Element, add func(string, ...any)) {
	if bgm := body.SelectElement("Bgm"); bgm == nil {
		add("Bgm absent")
	} else {
		if e := bgm.SelectElement("DocumentIdentifier"); e == nil || strings.TrimSpace(e.Text()) == "" {
			add("DocumentIdentifier absent ou vide")
		}
		if e := bgm.SelectElement("DocumentType"); e == nil {
			add("DocumentType absent")
		} else if code := e.SelectAttrValue("code", ""); !pkgteif.ValidDocumentType(code) {
			add("type de document inconnu: %q", code)
		}
	}

	if dtm := body.SelectElement("Dtm"); dtm == nil {
		add("Dtm absent")
	} else {
		hasIssue := false
		for _, e := range dtm.SelectElements("DateText") {
			fc := e.SelectAttrValue("functionCode", "")
			if !pkgteif.ValidDateFunction(fc) {
				add("fonction de date inconnue: %q", fc)
			}
			if fc == pkgteif.DateInvoice {
				hasIssue = true
			}
			if _, err := pkgteif.ParseDate(strings.TrimSpace(e.Text())); err != nil {
				add("date illisible %q (format attendu %s)", strings.TrimSpace(e.Text()), pkgteif.DateFormat)
			}
		}
		if !hasIssue {
			add("date de facturation (%s) absente", pkgteif.DateInvoice)
		}
	}

	v.checkPartners(body, add)

	lin := body.SelectElement("LinSection")
	if lin == nil || len(lin.SelectElements("Lin")) == 0 {
		add("LinSection vide: au moins une ligne requise")
	} else {
		for i, le := range lin.SelectElements("Lin") {
			v.checkLine(le, i+1, 1, add)
		}
	}

	if moa := body.SelectElement("InvoiceMoa"); moa == nil {
		add("InvoiceMoa absent")
	}
	if tax := body.SelectElement("InvoiceTax"); tax == nil {
		add("InvoiceTax absent")
	}
}

func (v *Validator) checkPartners(body *etree.Element, add func(string, ...any)) {
	ps := body.SelectElement("PartnerSection")
	if ps == nil {
		add("PartnerSection absente")
		return
	}
	seen := map[string]bool{}
	for _, pd := range ps.SelectElements("PartnerDetails") {
		fc := pd.SelectAttrValue("functionCode", "")
		if !pkgteif.ValidPartnerFunction(fc) {
			add("fonction d'intervenant inconnue: %q", fc)
			continue
		}
		seen[fc] = true
		nad := pd.SelectElement("Nad")
		if nad == nil {
			add("intervenant %s: Nad absent", fc)
			continue
		}
		if e := nad.SelectElement("PartnerIdentifier"); e == nil || strings.TrimSpace(e.Text()) == "" {
			add("intervenant %s: identifiant absent", fc)
		}
		if e := nad.SelectElement("PartnerName"); e == nil || strings.TrimSpace(e.Text()) == "" {
			add("intervenant %s: nom absent", fc)
		}
	}
	if !seen[pkgteif.PartnerSeller] {
		add("fournisseur (%s) absent", pkgteif.PartnerSeller)
	}
	if !seen[pkgteif.PartnerBuyer] {
		add("acheteur (%s) absent", pkgteif.PartnerBuyer)
	}
}

func (v *Validator) checkLine(le *etree.Element, ordinal, depth int, add func(string, ...any)) {
	if depth > pkgteif.MaxLineDepth {
		add("ligne %d: profondeur d'imbrication supérieure à %d", ordinal, pkgteif.MaxLineDepth)
		return
	}
	if qty := le.SelectElement("LinQty"); qty == nil || qty.SelectElement("Quantity") == nil {
		add("ligne %d: quantité absente", ordinal)
	}
	if tax := le.SelectElement("LinTax"); tax == nil {
		add("ligne %d: LinTax absent", ordinal)
	} else if e := tax.SelectElement("TaxTypeName"); e != nil {
		if code := e.SelectAttrValue("code", ""); !pkgteif.ValidTaxType(code) {
			add("ligne %d: type de taxe inconnu %q", ordinal, code)
		}
	}
	if moa := le.SelectElement("LinMoa"); moa == nil {
		add("ligne %d: LinMoa absent", ordinal)
	} else {
		for _, m := range moa.SelectElements("Moa") {
			a := m.SelectElement("Amount")
			if a == nil {
				add("ligne %d: Moa sans Amount", ordinal)
				continue
			}
			if cur := a.SelectAttrValue("currencyIdentifier", ""); cur != pkgteif.CurrencyTND {
				add("ligne %d: devise non supportée %q", ordinal, cur)
			}
		}
	}
	for _, sub := range le.SelectElements("Lin") {
		v.checkLine(sub, ordinal, depth+1, add)
	}
}

func hasSignature(root *etree.Element) bool {
	for _, c := range root.ChildElements() {
		if c.Tag == "Signature" {
			return true
		}
	}
	return false
}
