// Package ttn implémente le client REST de la plateforme El Fatoora de
// Tunisie TradeNet: soumission des factures signées et consultation de
// leur statut. Chaque échange, réussi ou non, laisse une entrée dans le
// journal d'audit.
package ttn

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aymenbha/fattoura-api/internal/domain"
	"github.com/aymenbha/fattoura-api/internal/domain/entity"
	"github.com/aymenbha/fattoura-api/internal/domain/repository"
)

// Identifiants d'environnement.
const (
	EnvTest = "test"
	EnvProd = "prod"
	// EnvDev environnement local: le câblage substitue un soumetteur simulé.
	EnvDev = "dev"

	baseURLTest = "https://test.elfatoora.tn/api/v1"
	baseURLProd = "https://elfatoora.tn/api/v1"
)

// BaseURLFor retourne l'URL de base par défaut de l'environnement donné.
func BaseURLFor(env string) string {
	if env == EnvProd {
		return baseURLProd
	}
	return baseURLTest
}

// SubmitResult résultat d'une soumission acceptée par la plateforme.
type SubmitResult struct {
	Reference    string // Référence TTN de la soumission
	Verification string // Charge utile CEV (peut être vide à ce stade)
	Status       string // Statut initial annoncé par la plateforme
}

// StatusResult résultat d'une consultation de statut.
type StatusResult struct {
	Status          string
	Verification    string
	RejectionReason string
}

// Client client HTTP de la plateforme TTN. Authentification par jeton
// Bearer; corps en XML TEIF à l'envoi, réponses XML (avec repli JSON).
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logs       repository.SubmissionLogRepository
	logger     zerolog.Logger
}

// NewClient construit le client. Le délai couvre l'appel entier; la
// plateforme peut mettre plusieurs secondes à répondre.
func NewClient(baseURL, token string, timeout time.Duration, logs repository.SubmissionLogRepository, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logs:       logs,
		logger:     logger.With().Str("component", "ttn").Logger(),
	}
}

// ── structures de réponse de la plateforme ───────────────────────────────────

// ttnResponse couvre les deux représentations servies par la plateforme:
// XML (nominal) et JSON (certaines erreurs de la passerelle).
type ttnResponse struct {
	XMLName      xml.Name `json:"-"`
	Reference    string   `xml:"reference" json:"reference"`
	Verification string   `xml:"cev" json:"cev"`
	Status       string   `xml:"status" json:"status"`
	Message      string   `xml:"message" json:"message"`
	ErrorText    string   `xml:"error" json:"error"`
}

func decodeResponse(body []byte) (*ttnResponse, error) {
	var resp ttnResponse
	if err := xml.Unmarshal(body, &resp); err == nil {
		return &resp, nil
	}
	if err := json.Unmarshal(body, &resp); err == nil {
		return &resp, nil
	}
	return nil, fmt.Errorf("réponse TTN illisible")
}

// errorMessage extrait le motif d'erreur d'un corps de réponse: champ
// error ou message du XML/JSON, sinon le corps brut tronqué.
func errorMessage(body []byte) string {
	if resp, err := decodeResponse(body); err == nil {
		if resp.ErrorText != "" {
			return resp.ErrorText
		}
		if resp.Message != "" {
			return resp.Message
		}
	}
	raw := strings.TrimSpace(string(body))
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return raw
}

// ── opérations ───────────────────────────────────────────────────────────────

// Submit soumet le document signé. L'appel, quel que soit son sort, est
// journalisé avant que l'erreur ne remonte.
func (c *Client) Submit(ctx context.Context, invoiceID string, signedXML []byte) (*SubmitResult, error) {
	endpoint := c.baseURL + "/invoices"
	status, body, err := c.do(ctx, http.MethodPost, endpoint, signedXML)
	if err != nil {
		c.appendLog(ctx, invoiceID, endpoint, string(signedXML), "", 0, entity.LogOutcomeError)
		return nil, domain.NewSubmissionError(0, "appel TTN", err)
	}
	if status < 200 || status > 299 {
		c.appendLog(ctx, invoiceID, endpoint, string(signedXML), string(body), status, entity.LogOutcomeError)
		return nil, domain.NewSubmissionError(status, errorMessage(body), nil)
	}
	resp, err := decodeResponse(body)
	if err != nil || resp.Reference == "" {
		c.appendLog(ctx, invoiceID, endpoint, string(signedXML), string(body), status, entity.LogOutcomeError)
		return nil, domain.NewSubmissionError(status, "réponse TTN sans référence", err)
	}
	c.appendLog(ctx, invoiceID, endpoint, string(signedXML), string(body), status, entity.LogOutcomePending)
	c.logger.Info().Str("invoice_id", invoiceID).Str("reference", resp.Reference).Msg("facture soumise à TTN")
	return &SubmitResult{Reference: resp.Reference, Verification: resp.Verification, Status: resp.Status}, nil
}

// CheckStatus consulte le statut courant d'une soumission.
func (c *Client) CheckStatus(ctx context.Context, invoiceID, reference string) (*StatusResult, error) {
	endpoint := c.baseURL + "/invoices/" + reference + "/status"
	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.appendLog(ctx, invoiceID, endpoint, "", "", 0, entity.LogOutcomeError)
		return nil, domain.NewSubmissionError(0, "appel TTN", err)
	}
	if status < 200 || status > 299 {
		c.appendLog(ctx, invoiceID, endpoint, "", string(body), status, entity.LogOutcomeError)
		return nil, domain.NewSubmissionError(status, errorMessage(body), nil)
	}
	resp, err := decodeResponse(body)
	if err != nil {
		c.appendLog(ctx, invoiceID, endpoint, "", string(body), status, entity.LogOutcomeError)
		return nil, domain.NewSubmissionError(status, "réponse TTN illisible", err)
	}
	outcome := entity.LogOutcomePending
	switch {
	case strings.EqualFold(resp.Status, "accepted"):
		outcome = entity.LogOutcomeAccepted
	case strings.EqualFold(resp.Status, "rejected"):
		outcome = entity.LogOutcomeRejected
	}
	c.appendLog(ctx, invoiceID, endpoint, "", string(body), status, outcome)
	return &StatusResult{
		Status:          resp.Status,
		Verification:    resp.Verification,
		RejectionReason: resp.Message,
	}, nil
}

// FetchVerification récupère la charge utile du code de vérification
// (CEV) d'une soumission acceptée.
func (c *Client) FetchVerification(ctx context.Context, invoiceID, reference string) (string, error) {
	endpoint := c.baseURL + "/invoices/" + reference + "/cev"
	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.appendLog(ctx, invoiceID, endpoint, "", "", 0, entity.LogOutcomeError)
		return "", domain.NewSubmissionError(0, "appel TTN", err)
	}
	if status < 200 || status > 299 {
		c.appendLog(ctx, invoiceID, endpoint, "", string(body), status, entity.LogOutcomeError)
		return "", domain.NewSubmissionError(status, errorMessage(body), nil)
	}
	resp, err := decodeResponse(body)
	if err != nil || resp.Verification == "" {
		c.appendLog(ctx, invoiceID, endpoint, "", string(body), status, entity.LogOutcomeError)
		return "", domain.NewSubmissionError(status, "réponse TTN sans CEV", err)
	}
	c.appendLog(ctx, invoiceID, endpoint, "", string(body), status, entity.LogOutcomeAccepted)
	return resp.Verification, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/xml")
	if payload != nil {
		req.Header.Set("Content-Type", "application/xml")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// appendLog journalise l'échange. Un échec d'écriture du journal est
// tracé mais n'interrompt pas le flux appelant.
func (c *Client) appendLog(ctx context.Context, invoiceID, endpoint, payload, response string, httpStatus int, outcome string) {
	entry := &entity.SubmissionLogEntry{
		ID:         uuid.NewString(),
		InvoiceID:  invoiceID,
		Direction:  entity.LogDirectionOut,
		Endpoint:   endpoint,
		Payload:    payload,
		Response:   response,
		HTTPStatus: httpStatus,
		Outcome:    outcome,
		CreatedAt:  time.Now().UTC(),
	}
	if err := c.logs.Append(ctx, entry); err != nil {
		c.logger.Error().Err(err).Str("invoice_id", invoiceID).Msg("écriture du journal de soumission")
	}
}
