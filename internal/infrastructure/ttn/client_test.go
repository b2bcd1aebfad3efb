package ttn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aymenbha/fattoura-api/internal/domain"
	"github.com/aymenbha/fattoura-api/internal/domain/entity"
)

// memLogRepo journal de soumission en mémoire.
type memLogRepo struct {
	mu      sync.Mutex
	entries []*entity.SubmissionLogEntry
}

func (r *memLogRepo) Append(_ context.Context, e *entity.SubmissionLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *memLogRepo) ListByInvoice(_ context.Context, invoiceID string) ([]*entity.SubmissionLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.SubmissionLogEntry
	for _, e := range r.entries {
		if e.InvoiceID == invoiceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memLogRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *memLogRepo) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logs := &memLogRepo{}
	return NewClient(srv.URL, "jeton-test", 5*time.Second, logs, zerolog.Nop()), logs
}

func TestSubmitAccepted(t *testing.T) {
	var gotAuth, gotContentType string
	client, logs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/invoices", r.URL.Path)
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<submission><reference>TTN-2026-00042</reference><cev>CEV-PAYLOAD</cev><status>pending</status></submission>`))
	})

	res, err := client.Submit(context.Background(), "inv-1", []byte(`<TEIF/>`))
	require.NoError(t, err)
	assert.Equal(t, "TTN-2026-00042", res.Reference)
	assert.Equal(t, "CEV-PAYLOAD", res.Verification)
	assert.Equal(t, "pending", res.Status)
	assert.Equal(t, "Bearer jeton-test", gotAuth)
	assert.Equal(t, "application/xml", gotContentType)

	require.Equal(t, 1, logs.count())
	entries, err := logs.ListByInvoice(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, entity.LogOutcomePending, entries[0].Outcome)
	assert.Equal(t, http.StatusOK, entries[0].HTTPStatus)
	assert.Contains(t, entries[0].Payload, "<TEIF/>")
}

func TestSubmitRejectedJSONError(t *testing.T) {
	client, logs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"duplicate"}`))
	})

	_, err := client.Submit(context.Background(), "inv-2", []byte(`<TEIF/>`))
	require.Error(t, err)
	var se *domain.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.HTTPStatus)
	assert.Contains(t, err.Error(), "duplicate")

	// exactement une entrée de journal, en erreur
	require.Equal(t, 1, logs.count())
	entries, _ := logs.ListByInvoice(context.Background(), "inv-2")
	assert.Equal(t, entity.LogOutcomeError, entries[0].Outcome)
	assert.Equal(t, http.StatusConflict, entries[0].HTTPStatus)
}

func TestSubmitXMLErrorBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`<fault><error>signature invalide</error></fault>`))
	})

	_, err := client.Submit(context.Background(), "inv-3", []byte(`<TEIF/>`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature invalide")
}

func TestSubmitNetworkFailureStillLogged(t *testing.T) {
	logs := &memLogRepo{}
	client := NewClient("http://127.0.0.1:1", "jeton", time.Second, logs, zerolog.Nop())

	_, err := client.Submit(context.Background(), "inv-4", []byte(`<TEIF/>`))
	require.Error(t, err)
	var se *domain.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Zero(t, se.HTTPStatus)

	require.Equal(t, 1, logs.count())
	entries, _ := logs.ListByInvoice(context.Background(), "inv-4")
	assert.Equal(t, entity.LogOutcomeError, entries[0].Outcome)
	assert.Zero(t, entries[0].HTTPStatus)
}

func TestSubmitResponseWithoutReference(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<submission><status>pending</status></submission>`))
	})
	_, err := client.Submit(context.Background(), "inv-5", []byte(`<TEIF/>`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "référence")
}

func TestCheckStatusAccepted(t *testing.T) {
	client, logs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/invoices/TTN-2026-00042/status", r.URL.Path)
		w.Write([]byte(`<submission><reference>TTN-2026-00042</reference><status>ACCEPTED</status><cev>CEV-PAYLOAD</cev></submission>`))
	})

	res, err := client.CheckStatus(context.Background(), "inv-1", "TTN-2026-00042")
	require.NoError(t, err)
	// comparaison de statut insensible à la casse côté journal
	assert.Equal(t, "ACCEPTED", res.Status)
	assert.Equal(t, "CEV-PAYLOAD", res.Verification)

	entries, _ := logs.ListByInvoice(context.Background(), "inv-1")
	require.Len(t, entries, 1)
	assert.Equal(t, entity.LogOutcomeAccepted, entries[0].Outcome)
}

func TestCheckStatusRejectedWithReason(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<submission><status>rejected</status><message>matricule inconnu</message></submission>`))
	})

	res, err := client.CheckStatus(context.Background(), "inv-1", "TTN-X")
	require.NoError(t, err)
	assert.Equal(t, "rejected", res.Status)
	assert.Equal(t, "matricule inconnu", res.RejectionReason)
}

func TestFetchVerification(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/invoices/TTN-X/cev", r.URL.Path)
		w.Write([]byte(`<submission><cev>CEV-PAYLOAD</cev></submission>`))
	})

	cev, err := client.FetchVerification(context.Background(), "inv-1", "TTN-X")
	require.NoError(t, err)
	assert.Equal(t, "CEV-PAYLOAD", cev)
}

func TestBaseURLFor(t *testing.T) {
	assert.Equal(t, baseURLProd, BaseURLFor(EnvProd))
	assert.Equal(t, baseURLTest, BaseURLFor(EnvTest))
	assert.Equal(t, baseURLTest, BaseURLFor(EnvDev))
}
