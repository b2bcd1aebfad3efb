package teif

import (
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/aymenbha/fattoura-api/internal/domain"
	"github.com/aymenbha/fattoura-api/internal/domain/entity"
	pkgteif "github.com/aymenbha/fattoura-api/pkg/teif"
)

// InvoiceDocument résultat d'une analyse: l'agrégat reconstruit et le
// résumé des signatures trouvées. L'analyse ne vérifie rien; voir
// Validator et le moteur XAdES pour cela.
type InvoiceDocument struct {
	Invoice    *entity.Invoice
	Signatures []entity.SignatureSummary
}

// Parser reconstruit un agrégat depuis un document TEIF. Tolérant aux
// éléments manquants: les champs absents restent vides, seuls un XML
// mal formé ou une racine inattendue font échouer.
type Parser struct{}

// NewParser crée l'analyseur.
func NewParser() *Parser {
	return &Parser{}
}

// Parse analyse le document. Retourne MalformedDocumentError si le XML
// est illisible ou si la racine n'est pas TEIF.
func (p *Parser) Parse(data []byte) (*InvoiceDocument, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, domain.NewMalformedDocument([]string{"XML mal formé"}, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "TEIF" {
		return nil, domain.NewMalformedDocument([]string{"élément racine TEIF absent"}, nil)
	}

	inv := &entity.Invoice{
		Version:          root.SelectAttrValue("version", ""),
		ControlingAgency: root.SelectAttrValue("controlingAgency", ""),
	}

	if h := root.SelectElement("InvoiceHeader"); h != nil {
		if e := h.SelectElement("MessageSenderIdentifier"); e != nil {
			inv.SenderIdentifier = strings.TrimSpace(e.Text())
			inv.SenderIdentifierType = e.SelectAttrValue("type", "")
		}
		if e := h.SelectElement("MessageRecieverIdentifier"); e != nil {
			inv.ReceiverIdentifier = strings.TrimSpace(e.Text())
			inv.ReceiverIdentifierType = e.SelectAttrValue("type", "")
		}
	}

	if body := root.SelectElement("InvoiceBody"); body != nil {
		p.parseBody(body, inv)
	}

	if ref := root.SelectElement("RefTtnVal"); ref != nil {
		sub := &entity.SubmissionRecord{}
		if e := ref.SelectElement("Reference"); e != nil {
			sub.Reference = strings.TrimSpace(e.Text())
		}
		if e := ref.SelectElement("Cev"); e != nil {
			sub.Verification = strings.TrimSpace(e.Text())
		}
		if sub.Reference != "" || sub.Verification != "" {
			inv.Submission = sub
		}
	}

	return &InvoiceDocument{
		Invoice:    inv,
		Signatures: p.parseSignatures(root),
	}, nil
}

func (p *Parser) parseBody(body *etree.Element, inv *entity.Invoice) {
	if bgm := body.SelectElement("Bgm"); bgm != nil {
		if e := bgm.SelectElement("DocumentIdentifier"); e != nil {
			inv.DocumentIdentifier = strings.TrimSpace(e.Text())
		}
		if e := bgm.SelectElement("DocumentType"); e != nil {
			inv.DocumentTypeLabel = strings.TrimSpace(e.Text())
			inv.DocumentTypeCode = e.SelectAttrValue("code", "")
		}
	}

	if dtm := body.SelectElement("Dtm"); dtm != nil {
		for _, e := range dtm.SelectElements("DateText") {
			t, err := pkgteif.ParseDate(strings.TrimSpace(e.Text()))
			if err != nil {
				continue
			}
			switch e.SelectAttrValue("functionCode", "") {
			case pkgteif.DateInvoice:
				inv.IssueDate = t
			case pkgteif.DateDue:
				due := t
				inv.DueDate = &due
			}
		}
	}

	if ps := body.SelectElement("PartnerSection"); ps != nil {
		for _, pd := range ps.SelectElements("PartnerDetails") {
			partner := p.parsePartner(pd)
			switch partner.FunctionCode {
			case pkgteif.PartnerSeller:
				inv.Seller = partner
			case pkgteif.PartnerBuyer:
				inv.Buyer = partner
			}
		}
	}

	if pyt := body.SelectElement("PytSection"); pyt != nil {
		if det := pyt.SelectElement("PytSectionDetails"); det != nil {
			if e := det.SelectElement("PaymentTermsTypeCode"); e != nil {
				inv.PaymentTermsCode = strings.TrimSpace(e.Text())
			}
			if e := det.SelectElement("PaymentTermsDescription"); e != nil {
				inv.PaymentTermsDescription = strings.TrimSpace(e.Text())
			}
			if e := det.SelectElement("PaymentMeansCode"); e != nil {
				inv.PaymentMeansCode = strings.TrimSpace(e.Text())
			}
		}
	}

	if lin := body.SelectElement("LinSection"); lin != nil {
		for _, le := range lin.SelectElements("Lin") {
			inv.Lines = append(inv.Lines, p.parseLine(le))
		}
	}

	if moa := body.SelectElement("InvoiceMoa"); moa != nil {
		if det := moa.SelectElement("AmountDetails"); det != nil {
			amounts := collectAmounts(det)
			inv.Totals = entity.Totals{
				Gross:             amounts[pkgteif.AmountGrossTotal],
				Discount:          amounts[pkgteif.AmountDiscountTotal],
				NetBeforeDiscount: amounts[pkgteif.AmountNetBeforeDiscount],
				ExclTax:           amounts[pkgteif.AmountNetTotal],
				Tax:               amounts[pkgteif.AmountTaxTotal],
				InclTax:           amounts[pkgteif.AmountInclTaxTotal],
			}
		}
	}

	if tax := body.SelectElement("InvoiceTax"); tax != nil {
		for _, det := range tax.SelectElements("InvoiceTaxDetails") {
			row := entity.TaxSummaryEntry{}
			if t := det.SelectElement("Tax"); t != nil {
				if e := t.SelectElement("TaxTypeName"); e != nil {
					row.TaxTypeLabel = strings.TrimSpace(e.Text())
					row.TaxTypeCode = e.SelectAttrValue("code", "")
				}
				if e := t.SelectElement("TaxRate"); e != nil {
					row.Rate = parseDecimal(e.Text())
				}
			}
			if a := det.SelectElement("AmountDetails"); a != nil {
				amounts := collectAmounts(a)
				row.TaxableAmount = amounts[pkgteif.AmountTaxableBase]
				row.TaxAmount = amounts[pkgteif.AmountTaxTotal]
			}
			inv.TaxSummary = append(inv.TaxSummary, row)
		}
	}
}

func (p *Parser) parsePartner(pd *etree.Element) entity.Partner {
	partner := entity.Partner{
		FunctionCode: pd.SelectAttrValue("functionCode", ""),
	}
	if nad := pd.SelectElement("Nad"); nad != nil {
		if e := nad.SelectElement("PartnerIdentifier"); e != nil {
			partner.Identifier = strings.TrimSpace(e.Text())
			partner.IdentifierType = e.SelectAttrValue("type", "")
		}
		if e := nad.SelectElement("PartnerName"); e != nil {
			partner.Name = strings.TrimSpace(e.Text())
		}
		if adr := nad.SelectElement("PartnerAdresses"); adr != nil {
			if e := adr.SelectElement("AdressDescription"); e != nil {
				partner.Address.Description = strings.TrimSpace(e.Text())
			}
			if e := adr.SelectElement("Street"); e != nil {
				partner.Address.Street = strings.TrimSpace(e.Text())
			}
			if e := adr.SelectElement("CityName"); e != nil {
				partner.Address.City = strings.TrimSpace(e.Text())
			}
			if e := adr.SelectElement("PostalCode"); e != nil {
				partner.Address.PostalCode = strings.TrimSpace(e.Text())
			}
			if e := adr.SelectElement("Country"); e != nil {
				partner.Address.Country = strings.TrimSpace(e.Text())
			}
		}
	}
	if rff := pd.SelectElement("RffSection"); rff != nil {
		for _, e := range rff.SelectElements("Reference") {
			partner.References = append(partner.References, entity.Reference{
				Type:  e.SelectAttrValue("type", ""),
				Value: strings.TrimSpace(e.Text()),
			})
		}
	}
	if cta := pd.SelectElement("CtaSection"); cta != nil {
		for _, ce := range cta.SelectElements("Contact") {
			contact := entity.Contact{Name: ce.SelectAttrValue("name", "")}
			if com := ce.SelectElement("Communication"); com != nil {
				contact.Means = com.SelectAttrValue("type", "")
				if e := com.SelectElement("ComAdress"); e != nil {
					contact.Value = strings.TrimSpace(e.Text())
				}
			}
			partner.Contacts = append(partner.Contacts, contact)
		}
	}
	return partner
}

func (p *Parser) parseLine(le *etree.Element) *entity.Line {
	line := &entity.Line{}
	if e := le.SelectElement("ItemIdentifier"); e != nil {
		line.ItemCode = strings.TrimSpace(e.Text())
	}
	if imd := le.SelectElement("LinImd"); imd != nil {
		if e := imd.SelectElement("ItemDescription"); e != nil {
			line.ItemName = strings.TrimSpace(e.Text())
		}
	}
	if qty := le.SelectElement("LinQty"); qty != nil {
		if e := qty.SelectElement("Quantity"); e != nil {
			line.Quantity = parseDecimal(e.Text())
			line.Unit = e.SelectAttrValue("measurementUnit", "")
		}
	}
	if tax := le.SelectElement("LinTax"); tax != nil {
		if e := tax.SelectElement("TaxTypeName"); e != nil {
			line.TaxTypeCode = e.SelectAttrValue("code", "")
		}
		if e := tax.SelectElement("TaxRate"); e != nil {
			line.TaxRate = parseDecimal(e.Text())
		}
	}
	if moa := le.SelectElement("LinMoa"); moa != nil {
		amounts := collectAmounts(moa)
		line.UnitPrice = amounts[pkgteif.AmountLineUnitPrice]
		line.Gross = amounts[pkgteif.AmountLineGross]
		line.Discount = amounts[pkgteif.AmountLineDiscount]
		line.Net = amounts[pkgteif.AmountLineNet]
		line.Tax = amounts[pkgteif.AmountLineTax]
		line.Total = amounts[pkgteif.AmountLineTotal]
	}
	for _, sub := range le.SelectElements("Lin") {
		line.SubLines = append(line.SubLines, p.parseLine(sub))
	}
	return line
}

// parseSignatures extrait le résumé de chaque bloc ds:Signature enfant de
// la racine, sans en vérifier la validité.
func (p *Parser) parseSignatures(root *etree.Element) []entity.SignatureSummary {
	var out []entity.SignatureSummary
	for _, sig := range root.ChildElements() {
		if sig.Tag != "Signature" {
			continue
		}
		s := entity.SignatureSummary{ID: sig.SelectAttrValue("Id", "")}
		if e := findDescendant(sig, "SignatureValue"); e != nil {
			s.Value = compactBase64(e.Text())
		}
		if e := findDescendant(sig, "SigningTime"); e != nil {
			s.SigningTime = strings.TrimSpace(e.Text())
		}
		if e := findDescendant(sig, "ClaimedRole"); e != nil {
			s.Role = strings.TrimSpace(e.Text())
		}
		if e := findDescendant(sig, "X509Certificate"); e != nil {
			s.CertificateB64 = compactBase64(e.Text())
		}
		out = append(out, s)
	}
	return out
}

// findDescendant recherche en profondeur le premier élément portant le tag
// donné, quelque soit son espace de noms.
func findDescendant(e *etree.Element, tag string) *etree.Element {
	for _, c := range e.ChildElements() {
		if c.Tag == tag {
			return c
		}
		if found := findDescendant(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func collectAmounts(parent *etree.Element) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, moa := range parent.SelectElements("Moa") {
		code := moa.SelectAttrValue("amountTypeCode", "")
		if e := moa.SelectElement("Amount"); e != nil {
			out[code] = parseDecimal(e.Text())
		}
	}
	return out
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func compactBase64(s string) string {
	return strings.Join(strings.Fields(s), "")
}
