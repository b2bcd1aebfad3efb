package http

import (
	"github.com/gofiber/fiber/v2"
)

// RouterDeps dépendances du routeur HTTP.
type RouterDeps struct {
	Invoices  *InvoiceHandler
	JWTSecret string
}

// Router monte l'API sous /api. Toutes les routes facture exigent un
// JWT; les mutations du cycle de vie exigent admin ou comptable.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	invoices := api.Group("/invoices")
	writer := RequireRole(RoleAdmin, RoleComptable)

	invoices.Post("/", writer, deps.Invoices.Create)
	invoices.Get("/:id", deps.Invoices.Get)
	invoices.Put("/:id", writer, deps.Invoices.Update)

	invoices.Post("/:id/validate", writer, deps.Invoices.Validate)
	invoices.Post("/:id/sign", writer, deps.Invoices.Sign)
	invoices.Post("/:id/submit", writer, deps.Invoices.Submit)
	invoices.Post("/:id/refresh-status", writer, deps.Invoices.RefreshStatus)
	invoices.Post("/:id/archive", writer, deps.Invoices.Archive)

	invoices.Get("/:id/document", deps.Invoices.Document)
	invoices.Get("/:id/log", deps.Invoices.SubmissionLog)

	api.Post("/documents/validate", deps.Invoices.ValidateDocument)
}
