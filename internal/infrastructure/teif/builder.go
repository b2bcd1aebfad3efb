// Package teif implémente le codec du format TEIF: construction du XML
// depuis l'agrégat, analyse inverse et validation structurelle.
package teif

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aymenbha/fattoura-api/internal/domain/entity"
	pkgteif "github.com/aymenbha/fattoura-api/pkg/teif"
)

// InvoiceBodyID valeur de l'attribut Id de l'InvoiceBody; cible de la
// référence principale de la signature XAdES.
const InvoiceBodyID = "invoice-body"

// Builder construit le document TEIF (sans signature propre: les blocs
// ds:Signature déjà présents sur l'agrégat sont réémis tels quels).
type Builder struct{}

// NewBuilder crée le constructeur.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build sérialise l'agrégat en XML TEIF, dans l'ordre d'éléments fixe du
// format. Les totaux doivent déjà être calculés sur l'agrégat. Ne peut
// échouer que sur un agrégat nul: toute autre entrée bien formée produit
// un document.
func (b *Builder) Build(inv *entity.Invoice) ([]byte, error) {
	if inv == nil {
		return nil, fmt.Errorf("teif: agrégat nul")
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	version := inv.Version
	if version == "" {
		version = pkgteif.FormatVersion
	}
	agency := inv.ControlingAgency
	if agency == "" {
		agency = pkgteif.ControlingAgency
	}
	root := xml.StartElement{
		Name: xml.Name{Local: "TEIF"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "version"}, Value: version},
			{Name: xml.Name{Local: "controlingAgency"}, Value: agency},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	b.writeHeader(enc, inv)
	b.writeBody(enc, inv)
	b.writeAuthorityReference(enc, inv)

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}

	// Bloc de signature réémis verbatim (produit par le moteur XAdES,
	// jamais reconstruit): inséré avant la fermeture de la racine.
	if inv.Signature != nil && inv.Signature.ElementXML != "" {
		return spliceBeforeClosing(buf.Bytes(), inv.Signature.ElementXML), nil
	}
	return buf.Bytes(), nil
}

func (b *Builder) writeHeader(enc *xml.Encoder, inv *entity.Invoice) {
	start(enc, "InvoiceHeader")
	writeElAttr(enc, "MessageSenderIdentifier", inv.SenderIdentifier, "type", inv.SenderIdentifierType)
	// "Reciever" est l'orthographe du schéma officiel.
	writeElAttr(enc, "MessageRecieverIdentifier", inv.ReceiverIdentifier, "type", inv.ReceiverIdentifierType)
	end(enc, "InvoiceHeader")
}

func (b *Builder) writeBody(enc *xml.Encoder, inv *entity.Invoice) {
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Local: "InvoiceBody"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "Id"}, Value: InvoiceBodyID}},
	})

	// Identification du document
	start(enc, "Bgm")
	writeEl(enc, "DocumentIdentifier", inv.DocumentIdentifier)
	writeElAttr(enc, "DocumentType", inv.DocumentTypeLabel, "code", inv.DocumentTypeCode)
	end(enc, "Bgm")

	// Dates au format fixe ddMMyy
	start(enc, "Dtm")
	writeDate(enc, pkgteif.DateInvoice, pkgteif.FormatDate(inv.IssueDate))
	if inv.DueDate != nil {
		writeDate(enc, pkgteif.DateDue, pkgteif.FormatDate(*inv.DueDate))
	}
	end(enc, "Dtm")

	// Intervenants: fournisseur puis acheteur
	start(enc, "PartnerSection")
	b.writePartner(enc, &inv.Seller, pkgteif.PartnerSeller)
	b.writePartner(enc, &inv.Buyer, pkgteif.PartnerBuyer)
	end(enc, "PartnerSection")

	// Conditions de paiement
	if inv.PaymentTermsCode != "" || inv.PaymentMeansCode != "" {
		start(enc, "PytSection")
		start(enc, "PytSectionDetails")
		writeEl(enc, "PaymentTermsTypeCode", inv.PaymentTermsCode)
		if inv.PaymentTermsDescription != "" {
			writeEl(enc, "PaymentTermsDescription", inv.PaymentTermsDescription)
		}
		if inv.PaymentMeansCode != "" {
			writeEl(enc, "PaymentMeansCode", inv.PaymentMeansCode)
		}
		end(enc, "PytSectionDetails")
		end(enc, "PytSection")
	}

	// Lignes
	start(enc, "LinSection")
	for _, l := range inv.Lines {
		b.writeLine(enc, l)
	}
	end(enc, "LinSection")

	// Montants du document
	start(enc, "InvoiceMoa")
	start(enc, "AmountDetails")
	writeAmount(enc, pkgteif.AmountGrossTotal, inv.Totals.Gross)
	writeAmount(enc, pkgteif.AmountDiscountTotal, inv.Totals.Discount)
	writeAmount(enc, pkgteif.AmountNetBeforeDiscount, inv.Totals.NetBeforeDiscount)
	writeAmount(enc, pkgteif.AmountNetTotal, inv.Totals.ExclTax)
	writeAmount(enc, pkgteif.AmountTaxTotal, inv.Totals.Tax)
	writeAmount(enc, pkgteif.AmountInclTaxTotal, inv.Totals.InclTax)
	end(enc, "AmountDetails")
	end(enc, "InvoiceMoa")

	// Récapitulatif des taxes
	start(enc, "InvoiceTax")
	for _, row := range inv.TaxSummary {
		start(enc, "InvoiceTaxDetails")
		start(enc, "Tax")
		writeElAttr(enc, "TaxTypeName", row.TaxTypeLabel, "code", row.TaxTypeCode)
		writeEl(enc, "TaxRate", pkgteif.FormatRate(row.Rate))
		end(enc, "Tax")
		start(enc, "AmountDetails")
		writeAmount(enc, pkgteif.AmountTaxableBase, row.TaxableAmount)
		writeAmount(enc, pkgteif.AmountTaxTotal, row.TaxAmount)
		end(enc, "AmountDetails")
		end(enc, "InvoiceTaxDetails")
	}
	end(enc, "InvoiceTax")

	end(enc, "InvoiceBody")
}

func (b *Builder) writePartner(enc *xml.Encoder, p *entity.Partner, defaultFunction string) {
	function := p.FunctionCode
	if function == "" {
		function = defaultFunction
	}
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Local: "PartnerDetails"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "functionCode"}, Value: function}},
	})
	start(enc, "Nad")
	writeElAttr(enc, "PartnerIdentifier", p.Identifier, "type", p.IdentifierType)
	writeEl(enc, "PartnerName", p.Name)
	if p.Address != (entity.Address{}) {
		start(enc, "PartnerAdresses")
		if p.Address.Description != "" {
			writeEl(enc, "AdressDescription", p.Address.Description)
		}
		writeEl(enc, "Street", p.Address.Street)
		writeEl(enc, "CityName", p.Address.City)
		writeEl(enc, "PostalCode", p.Address.PostalCode)
		country := p.Address.Country
		if country == "" {
			country = "TN"
		}
		writeElAttr(enc, "Country", country, "codeList", "ISO_3166-1")
		end(enc, "PartnerAdresses")
	}
	end(enc, "Nad")
	if len(p.References) > 0 {
		start(enc, "RffSection")
		for _, r := range p.References {
			writeElAttr(enc, "Reference", r.Value, "type", r.Type)
		}
		end(enc, "RffSection")
	}
	if len(p.Contacts) > 0 {
		start(enc, "CtaSection")
		for _, c := range p.Contacts {
			_ = enc.EncodeToken(xml.StartElement{
				Name: xml.Name{Local: "Contact"},
				Attr: []xml.Attr{{Name: xml.Name{Local: "name"}, Value: c.Name}},
			})
			_ = enc.EncodeToken(xml.StartElement{
				Name: xml.Name{Local: "Communication"},
				Attr: []xml.Attr{{Name: xml.Name{Local: "type"}, Value: c.Means}},
			})
			writeEl(enc, "ComAdress", c.Value)
			end(enc, "Communication")
			end(enc, "Contact")
		}
		end(enc, "CtaSection")
	}
	end(enc, "PartnerDetails")
}

// writeLine émet une ligne et, récursivement, ses sous-lignes (éléments
// Lin imbriqués, profondeur bornée par le format).
func (b *Builder) writeLine(enc *xml.Encoder, l *entity.Line) {
	start(enc, "Lin")
	writeEl(enc, "ItemIdentifier", l.ItemCode)
	start(enc, "LinImd")
	writeEl(enc, "ItemDescription", l.ItemName)
	end(enc, "LinImd")

	unit := l.Unit
	if unit == "" {
		unit = pkgteif.UnitPiece
	}
	start(enc, "LinQty")
	writeElAttr(enc, "Quantity", pkgteif.FormatAmount(l.Quantity), "measurementUnit", unit)
	end(enc, "LinQty")

	taxCode := l.TaxTypeCode
	if taxCode == "" {
		taxCode = pkgteif.TaxTVA
	}
	start(enc, "LinTax")
	writeElAttr(enc, "TaxTypeName", pkgteif.TaxLabels[taxCode], "code", taxCode)
	writeEl(enc, "TaxRate", pkgteif.FormatRate(l.TaxRate))
	end(enc, "LinTax")

	start(enc, "LinMoa")
	writeAmount(enc, pkgteif.AmountLineUnitPrice, l.UnitPrice)
	writeAmount(enc, pkgteif.AmountLineGross, l.Gross)
	if !l.Discount.IsZero() {
		writeAmount(enc, pkgteif.AmountLineDiscount, l.Discount)
	}
	writeAmount(enc, pkgteif.AmountLineNet, l.Net)
	writeAmount(enc, pkgteif.AmountLineTax, l.Tax)
	writeAmount(enc, pkgteif.AmountLineTotal, l.Total)
	end(enc, "LinMoa")

	for _, sub := range l.SubLines {
		b.writeLine(enc, sub)
	}
	end(enc, "Lin")
}

// writeAuthorityReference émet le bloc RefTtnVal dès qu'une référence de
// soumission existe.
func (b *Builder) writeAuthorityReference(enc *xml.Encoder, inv *entity.Invoice) {
	if inv.Submission == nil || inv.Submission.Reference == "" {
		return
	}
	start(enc, "RefTtnVal")
	writeEl(enc, "Reference", inv.Submission.Reference)
	if inv.Submission.Verification != "" {
		writeEl(enc, "Cev", inv.Submission.Verification)
	}
	end(enc, "RefTtnVal")
}

// ── helpers d'encodage ───────────────────────────────────────────────────────

func start(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: local}})
}

func end(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: local}})
}

func writeEl(enc *xml.Encoder, local, value string) {
	start(enc, local)
	_ = enc.EncodeToken(xml.CharData(value))
	end(enc, local)
}

func writeElAttr(enc *xml.Encoder, local, value, attrLocal, attrValue string) {
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Local: local},
		Attr: []xml.Attr{{Name: xml.Name{Local: attrLocal}, Value: attrValue}},
	})
	_ = enc.EncodeToken(xml.CharData(value))
	end(enc, local)
}

func writeDate(enc *xml.Encoder, functionCode, value string) {
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Local: "DateText"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "format"}, Value: pkgteif.DateFormat},
			{Name: xml.Name{Local: "functionCode"}, Value: functionCode},
		},
	})
	_ = enc.EncodeToken(xml.CharData(value))
	end(enc, "DateText")
}

// writeAmount émet un Moa typé; montant à trois décimales exactes avec
// l'identifiant de devise.
func writeAmount(enc *xml.Encoder, amountTypeCode string, d decimal.Decimal) {
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Local: "Moa"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "amountTypeCode"}, Value: amountTypeCode}},
	})
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Local: "Amount"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "currencyIdentifier"}, Value: pkgteif.CurrencyTND}},
	})
	_ = enc.EncodeToken(xml.CharData(pkgteif.FormatAmount(d)))
	end(enc, "Amount")
	end(enc, "Moa")
}

// spliceBeforeClosing insère un fragment XML brut juste avant la balise de
// fermeture de la racine.
func spliceBeforeClosing(doc []byte, fragment string) []byte {
	idx := bytes.LastIndex(doc, []byte("</TEIF>"))
	if idx < 0 {
		return doc
	}
	var out bytes.Buffer
	out.Grow(len(doc) + len(fragment) + 1)
	out.Write(doc[:idx])
	out.WriteString(fragment)
	out.WriteString("\n")
	out.Write(doc[idx:])
	return out.Bytes()
}
