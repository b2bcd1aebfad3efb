package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/aymenbha/fattoura-api/internal/application/billing"
	"github.com/aymenbha/fattoura-api/internal/application/dto"
	"github.com/aymenbha/fattoura-api/internal/domain"
	"github.com/aymenbha/fattoura-api/internal/domain/entity"
	teifcodec "github.com/aymenbha/fattoura-api/internal/infrastructure/teif"
)

// InvoiceHandler expose le cycle de vie complet de la facture sur HTTP:
// brouillon, validation, signature, soumission TTN, archivage.
type InvoiceHandler struct {
	usecase   *billing.InvoiceUseCase
	lifecycle *billing.LifecycleOrchestrator
	builder   *teifcodec.Builder
	logger    zerolog.Logger
}

func NewInvoiceHandler(
	usecase *billing.InvoiceUseCase,
	lifecycle *billing.LifecycleOrchestrator,
	builder *teifcodec.Builder,
	logger zerolog.Logger,
) *InvoiceHandler {
	return &InvoiceHandler{
		usecase:   usecase,
		lifecycle: lifecycle,
		builder:   builder,
		logger:    logger.With().Str("component", "invoice_handler").Logger(),
	}
}

// Create crée un brouillon de facture.
// POST /api/invoices
func (h *InvoiceHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "corps JSON illisible")
	}
	inv, err := req.ToEntity()
	if err != nil {
		return h.respondError(c, err)
	}
	created, err := h.usecase.CreateDraft(c.Context(), inv)
	if err != nil {
		return h.respondError(c, err)
	}
	h.logger.Info().Str("invoice_id", created.ID).Str("document", created.DocumentIdentifier).Msg("brouillon créé")
	return c.Status(fiber.StatusCreated).JSON(dto.FromInvoice(created))
}

// Get retourne une facture par ID.
// GET /api/invoices/:id
func (h *InvoiceHandler) Get(c *fiber.Ctx) error {
	inv, err := h.usecase.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(dto.FromInvoice(inv))
}

// Update remplace le contenu d'un brouillon. Refusé dès que la facture
// est signée ou soumise.
// PUT /api/invoices/:id
func (h *InvoiceHandler) Update(c *fiber.Ctx) error {
	var req dto.CreateInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "corps JSON illisible")
	}
	replacement, err := req.ToEntity()
	if err != nil {
		return h.respondError(c, err)
	}
	updated, err := h.usecase.UpdateDraft(c.Context(), c.Params("id"), func(inv *entity.Invoice) {
		inv.DocumentIdentifier = replacement.DocumentIdentifier
		inv.DocumentTypeCode = replacement.DocumentTypeCode
		inv.DocumentTypeLabel = replacement.DocumentTypeLabel
		inv.IssueDate = replacement.IssueDate
		inv.DueDate = replacement.DueDate
		inv.Seller = replacement.Seller
		inv.Buyer = replacement.Buyer
		inv.SenderIdentifier = replacement.SenderIdentifier
		inv.SenderIdentifierType = replacement.SenderIdentifierType
		inv.ReceiverIdentifier = replacement.ReceiverIdentifier
		inv.ReceiverIdentifierType = replacement.ReceiverIdentifierType
		inv.PaymentTermsCode = replacement.PaymentTermsCode
		inv.PaymentMeansCode = replacement.PaymentMeansCode
		inv.Lines = replacement.Lines
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(dto.FromInvoice(updated))
}

// Validate contrôle le brouillon et le passe à l'état Validée.
// POST /api/invoices/:id/validate
func (h *InvoiceHandler) Validate(c *fiber.Ctx) error {
	inv, err := h.lifecycle.Validate(c.Context(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(dto.FromInvoice(inv))
}

// Sign appose la signature XAdES-BES sur la facture validée.
// POST /api/invoices/:id/sign
func (h *InvoiceHandler) Sign(c *fiber.Ctx) error {
	inv, err := h.lifecycle.Sign(c.Context(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	h.logger.Info().Str("invoice_id", inv.ID).Msg("facture signée")
	return c.JSON(dto.FromInvoice(inv))
}

// Submit transmet la facture signée à TTN.
// POST /api/invoices/:id/submit
func (h *InvoiceHandler) Submit(c *fiber.Ctx) error {
	inv, err := h.lifecycle.Submit(c.Context(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	h.logger.Info().Str("invoice_id", inv.ID).Str("status", string(inv.Status)).Msg("facture soumise")
	return c.Status(fiber.StatusAccepted).JSON(dto.FromInvoice(inv))
}

// RefreshStatus interroge TTN sur le sort d'une facture soumise.
// POST /api/invoices/:id/refresh-status
func (h *InvoiceHandler) RefreshStatus(c *fiber.Ctx) error {
	inv, err := h.lifecycle.RefreshStatus(c.Context(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(dto.FromInvoice(inv))
}

// Archive clôt le cycle de vie d'une facture acceptée ou rejetée.
// POST /api/invoices/:id/archive
func (h *InvoiceHandler) Archive(c *fiber.Ctx) error {
	inv, err := h.lifecycle.Archive(c.Context(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(dto.FromInvoice(inv))
}

// Document retourne le document TEIF en XML: l'exemplaire signé verbatim
// si la facture est signée, sinon une construction à la volée.
// GET /api/invoices/:id/document
func (h *InvoiceHandler) Document(c *fiber.Ctx) error {
	inv, err := h.usecase.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	var payload []byte
	if inv.Signature != nil && inv.Signature.SignedXML != "" {
		payload = []byte(inv.Signature.SignedXML)
	} else {
		payload, err = h.builder.Build(inv)
		if err != nil {
			return h.respondError(c, err)
		}
	}
	c.Set(fiber.HeaderContentType, "application/xml; charset=utf-8")
	return c.Send(payload)
}

// ValidateDocument contrôle un document TEIF brut (XML dans le corps de
// la requête) sans toucher à la base: rapport de violations, jamais
// d'erreur pour un document invalide.
// POST /api/documents/validate?signature_required=true
func (h *InvoiceHandler) ValidateDocument(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return badRequest(c, "document XML attendu dans le corps de la requête")
	}
	validator := teifcodec.NewValidator(c.QueryBool("signature_required"))
	report := validator.Validate(body)
	return c.JSON(dto.ValidationReportResponse{Valid: report.Valid, Errors: report.Errors})
}

// SubmissionLog retourne le journal d'audit des échanges TTN.
// GET /api/invoices/:id/log
func (h *InvoiceHandler) SubmissionLog(c *fiber.Ctx) error {
	entries, err := h.usecase.SubmissionLog(c.Context(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(dto.FromLogEntries(entries))
}

// respondError traduit la taxonomie d'erreurs du domaine en statuts HTTP.
func (h *InvoiceHandler) respondError(c *fiber.Ctx, err error) error {
	var malformed *domain.MalformedDocumentError
	if errors.As(err, &malformed) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{
			Code:    "MALFORMED_DOCUMENT",
			Message: "le document ne respecte pas le format TEIF",
			Details: malformed.Violations,
		})
	}
	var state *domain.StateViolationError
	if errors.As(err, &state) {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Code:    "STATE_VIOLATION",
			Message: err.Error(),
		})
	}
	var submission *domain.SubmissionError
	if errors.As(err, &submission) {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{
			Code:    "SUBMISSION_FAILED",
			Message: err.Error(),
		})
	}
	var signature *domain.SignatureError
	if errors.As(err, &signature) {
		h.logger.Error().Err(err).Msg("échec de signature")
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Code:    "SIGNATURE_FAILED",
			Message: "la signature du document a échoué",
		})
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "facture introuvable"})
	case errors.Is(err, domain.ErrInvalidInput):
		return badRequest(c, err.Error())
	case errors.Is(err, domain.ErrImmutable), errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "authentification requise"})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "accès refusé"})
	}
	h.logger.Error().Err(err).Msg("erreur interne")
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
		Code:    "INTERNAL",
		Message: "erreur interne",
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "BAD_REQUEST", Message: msg})
}
