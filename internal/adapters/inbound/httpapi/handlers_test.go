package httpapi_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/pkdpa/internal/adapters/inbound/httpapi"
	"github.com/sufield/pkdpa/internal/adapters/outbound/inmemory"
	"github.com/sufield/pkdpa/internal/app"
	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/testpki"
)

// apiFixture wires the full service stack over the in-memory adapters, the
// same shape the dev-mode composition root builds.
type apiFixture struct {
	server *httptest.Server

	certs        *inmemory.CertificateStore
	dir          *inmemory.Directory
	statuses     *inmemory.SyncStatusStore
	configs      *inmemory.SyncConfigStore
	verifs       *inmemory.VerificationStore
	reconcileRun *inmemory.ReconciliationStore

	csca *testpki.Authority
	dsc  *testpki.Credential
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	now := time.Now()
	f := &apiFixture{
		certs:        inmemory.NewCertificateStore(inmemory.NewDuplicateLedger()),
		dir:          inmemory.NewDirectory("dc=pkd,dc=local"),
		statuses:     inmemory.NewSyncStatusStore(),
		configs:      inmemory.NewSyncConfigStore(),
		verifs:       inmemory.NewVerificationStore(),
		reconcileRun: inmemory.NewReconciliationStore(),
	}
	crls := inmemory.NewCRLStore()

	f.csca = testpki.NewCSCA("KR", "CSCA Korea", now.Add(-time.Hour), now.Add(24*time.Hour))
	f.dsc = f.csca.IssueDSC("DS KR", now.Add(-time.Hour), now.Add(24*time.Hour))
	cert, err := domain.NewCertificateFromDER(domain.CertTypeCSCA, f.csca.DER, domain.SourceUpload)
	require.NoError(t, err)
	_, err = f.dir.AddCertificate(context.Background(), cert)
	require.NoError(t, err)

	validator := app.NewChainValidator(f.dir, f.certs)
	engine := app.NewPAEngine(f.certs, f.verifs, validator, app.WithConformanceProber(f.dir))
	syncSvc := app.NewSyncService(f.certs, crls, f.dir, f.statuses)
	reconciler := app.NewReconcilerService(f.certs, crls, f.dir, f.reconcileRun, f.configs)
	revalidator := app.NewRevalidationService(f.certs, validator, inmemory.NewRevalidationStore(), 2)

	h := httpapi.NewHandler(engine, syncSvc, reconciler, revalidator, f.verifs, f.statuses, f.configs, nil)
	f.server = httptest.NewServer(h.Router())
	t.Cleanup(f.server.Close)
	return f
}

func (f *apiFixture) verifyBody(t *testing.T) []byte {
	t.Helper()
	dg1 := testpki.TD3MRZ("KOR", "M12345678")
	sod := testpki.BuildSOD(testpki.SODSpec{
		DSC:        f.dsc,
		DataGroups: map[int][]byte{1: dg1},
	})
	body, err := json.Marshal(map[string]any{
		"sod": base64.StdEncoding.EncodeToString(sod),
		"dataGroups": map[string]string{
			"1": base64.StdEncoding.EncodeToString(dg1),
		},
	})
	require.NoError(t, err)
	return body
}

func (f *apiFixture) post(t *testing.T, path string, body []byte) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (f *apiFixture) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestAPI_Health(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	resp, body := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAPI_VerifyRoundTrip(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	resp, body := f.post(t, "/api/v1/pa/verify", f.verifyBody(t))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "VALID", body["status"])
	assert.Equal(t, true, body["chainValid"])
	assert.Equal(t, true, body["sodSignatureValid"])
	assert.Equal(t, "M12345678", body["documentNumber"])
	assert.Equal(t, "KR", body["countryCode"])
	assert.NotEmpty(t, body["verificationId"])
	// No KR CRL is seeded; the fail-open warning must surface.
	assert.Equal(t, "CRL_UNAVAILABLE", body["crlStatus"])

	id := body["verificationId"].(string)
	resp, detail := f.get(t, "/api/v1/pa/verifications/"+id)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	verification := detail["verification"].(map[string]any)
	assert.Equal(t, "VALID", verification["Status"])

	resp, list := f.get(t, "/api/v1/pa/verifications?country=KR")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), list["count"])

	resp, stats := f.get(t, "/api/v1/pa/statistics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), stats["Total"])
}

func TestAPI_VerifyRejectsBadInput(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	resp, body := f.post(t, "/api/v1/pa/verify", []byte(`{"sod": "not-base64!!"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "base64")

	resp, body = f.post(t, "/api/v1/pa/verify",
		[]byte(`{"sod": "AAAA", "dataGroups": {"17": "AAAA"}}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "1-16")

	resp, _ = f.post(t, "/api/v1/pa/verify", []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_VerificationNotFound(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	resp, _ := f.get(t, "/api/v1/pa/verifications/no-such-id")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_SyncCheckAndStatus(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	// Nothing recorded yet.
	resp, _ := f.get(t, "/api/v1/sync/status")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := f.post(t, "/api/v1/sync/check", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	// One CSCA in LDAP, none in the relational store.
	assert.Equal(t, "DISCREPANCY", body["State"])

	resp, latest := f.get(t, "/api/v1/sync/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, body["ID"], latest["ID"])
}

func TestAPI_SyncConfig(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	resp, cfg := f.get(t, "/api/v1/sync/config")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, cfg["DailySyncEnabled"])

	req, err := http.NewRequest(http.MethodPut, f.server.URL+"/api/v1/sync/config",
		strings.NewReader(`{"DailySyncEnabled": true, "DailySyncHour": 25}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPut, f.server.URL+"/api/v1/sync/config",
		strings.NewReader(`{"DailySyncEnabled": true, "DailySyncHour": 3, "DailySyncMinute": 30}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	saved, err := f.configs.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, saved.DailySyncHour)
	assert.Equal(t, 30, saved.DailySyncMinute)
}

func TestAPI_ReconcileAndRevalidate(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	resp, summary := f.post(t, "/api/v1/reconcile", []byte(`{"dryRun": true}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "COMPLETED", summary["Status"])
	assert.Equal(t, true, summary["DryRun"])
	assert.Equal(t, "API", summary["TriggeredBy"])

	resp, run := f.post(t, "/api/v1/revalidate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "API", run["TriggeredBy"])
	assert.Equal(t, float64(0), run["Total"])
}
