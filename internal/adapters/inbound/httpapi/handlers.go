package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

type verifyRequest struct {
	// SOD is the base64-encoded security object, with or without the ICAO
	// 0x77 wrapper.
	SOD string `json:"sod"`
	// DataGroups maps dg number ("1".."16") to base64 content.
	DataGroups     map[string]string `json:"dataGroups"`
	DocumentNumber string            `json:"documentNumber,omitempty"`
	CountryCode    string            `json:"countryCode,omitempty"`
	SigningTime    *time.Time        `json:"signingTime,omitempty"`
}

type verifyResponse struct {
	VerificationID   string                    `json:"verificationId"`
	Status           domain.VerificationStatus `json:"status"`
	DocumentNumber   string                    `json:"documentNumber,omitempty"`
	CountryCode      string                    `json:"countryCode,omitempty"`
	ChainValid       bool                      `json:"chainValid"`
	SodSignature     bool                      `json:"sodSignatureValid"`
	DgHashesValid    bool                      `json:"dgHashesValid"`
	Revoked          bool                      `json:"revoked"`
	CrlStatus        domain.CrlStatus          `json:"crlStatus"`
	CrlMessage       domain.StatusMessage      `json:"crlMessage"`
	ExpirationStatus domain.ExpirationStatus   `json:"expirationStatus"`
	ExpirationMsg    domain.StatusMessage      `json:"expirationMessage"`
	TrustChainPath   string                    `json:"trustChainPath,omitempty"`
	ValidationErrors string                    `json:"validationErrors,omitempty"`
	DataGroups       []dataGroupResponse       `json:"dataGroups"`
	ProcessingTimeMs int64                     `json:"processingTimeMs"`
}

type dataGroupResponse struct {
	DgNumber      int    `json:"dgNumber"`
	ExpectedHash  string `json:"expectedHash"`
	ActualHash    string `json:"actualHash"`
	HashAlgorithm string `json:"hashAlgorithm"`
	HashValid     bool   `json:"hashValid"`
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	sodBytes, err := base64.StdEncoding.DecodeString(req.SOD)
	if err != nil || len(sodBytes) == 0 {
		writeError(w, http.StatusBadRequest, "sod must be non-empty base64")
		return
	}
	dataGroups := map[int][]byte{}
	for key, value := range req.DataGroups {
		n, err := strconv.Atoi(key)
		if err != nil || n < 1 || n > 16 {
			writeError(w, http.StatusBadRequest, "data group numbers must be 1-16")
			return
		}
		blob, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			writeError(w, http.StatusBadRequest, "data group "+key+" is not valid base64")
			return
		}
		dataGroups[n] = blob
	}

	result, err := h.pa.Verify(r.Context(), ports.PARequest{
		SOD:            sodBytes,
		DataGroups:     dataGroups,
		DocumentNumber: req.DocumentNumber,
		CountryCode:    req.CountryCode,
		SigningTime:    req.SigningTime,
		IPAddress:      r.RemoteAddr,
		UserAgent:      r.UserAgent(),
	})
	if err != nil {
		h.logger.Error("verification pipeline failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	resp := verifyResponse{
		VerificationID:   result.Verification.ID,
		Status:           result.Verification.Status,
		DocumentNumber:   result.Verification.DocumentNumber,
		CountryCode:      result.Verification.CountryCode,
		ChainValid:       result.Verification.ChainValid,
		SodSignature:     result.Verification.SodSignatureValid,
		DgHashesValid:    result.Verification.DgHashesValid,
		Revoked:          result.Verification.Revoked,
		CrlStatus:        result.Verification.CrlStatus,
		CrlMessage:       result.Chain.CrlMessage,
		ExpirationStatus: result.Verification.ExpirationStatus,
		ExpirationMsg:    result.Chain.ExpirationMessage,
		TrustChainPath:   result.Chain.TrustChainPath,
		ValidationErrors: result.Verification.ValidationErrors,
		ProcessingTimeMs: result.Verification.ProcessingTimeMs,
		DataGroups:       make([]dataGroupResponse, 0, len(result.DataGroups)),
	}
	for _, dg := range result.DataGroups {
		resp.DataGroups = append(resp.DataGroups, dataGroupResponse{
			DgNumber:      dg.DgNumber,
			ExpectedHash:  dg.ExpectedHash,
			ActualHash:    dg.ActualHash,
			HashAlgorithm: dg.HashAlgorithm,
			HashValid:     dg.HashValid,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listVerifications(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ports.VerificationFilter{
		Status:      domain.VerificationStatus(query.Get("status")),
		CountryCode: query.Get("country"),
		Limit:       intParam(query.Get("limit"), 50),
		Offset:      intParam(query.Get("offset"), 0),
	}
	items, err := h.verifications.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("verification history query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *Handler) getVerification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	verification, dataGroups, err := h.verifications.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ports.ErrInvalidInput) {
			writeError(w, http.StatusNotFound, "verification not found")
			return
		}
		h.logger.Error("verification lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"verification": verification,
		"dataGroups":   dataGroups,
	})
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.verifications.Statistics(r.Context())
	if err != nil {
		h.logger.Error("statistics query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "statistics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) runSyncCheck(w http.ResponseWriter, r *http.Request) {
	status, err := h.syncChecker.RunSyncCheck(r.Context(), "API")
	if err != nil {
		h.logger.Error("sync check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "sync check failed")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) latestSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.syncStatuses.Latest(r.Context())
	if err != nil {
		if errors.Is(err, ports.ErrInvalidInput) {
			writeError(w, http.StatusNotFound, "no sync check recorded yet")
			return
		}
		h.logger.Error("sync status lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "sync status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) getSyncConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.syncConfigs.Load(r.Context())
	if err != nil {
		h.logger.Error("sync config load failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "config unavailable")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) putSyncConfig(w http.ResponseWriter, r *http.Request) {
	var cfg ports.SyncConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "malformed config body")
		return
	}
	if cfg.DailySyncHour < 0 || cfg.DailySyncHour > 23 ||
		cfg.DailySyncMinute < 0 || cfg.DailySyncMinute > 59 {
		writeError(w, http.StatusBadRequest, "schedule must be a valid HH:MM")
		return
	}
	if err := h.syncConfigs.Save(r.Context(), cfg); err != nil {
		h.logger.Error("sync config save failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "config not saved")
		return
	}
	if h.audit != nil {
		h.audit.Record(r.Context(), domain.AuditEntry{
			Operation: domain.AuditConfigChange,
			IPAddress: r.RemoteAddr,
			Success:   true,
			Metadata: map[string]any{
				"daily_sync_enabled": cfg.DailySyncEnabled,
				"hour":               cfg.DailySyncHour,
				"minute":             cfg.DailySyncMinute,
			},
			CreatedAt: time.Now(),
		})
	}
	if h.scheduler != nil {
		if err := h.scheduler.Reload(r.Context()); err != nil {
			h.logger.Warn("scheduler reload after config change failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DryRun       bool   `json:"dryRun"`
		SyncStatusID string `json:"syncStatusId,omitempty"`
		BatchSize    int    `json:"batchSize,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}
	summary, err := h.reconciler.Reconcile(r.Context(), ports.ReconcileOptions{
		DryRun:       body.DryRun,
		TriggeredBy:  "API",
		SyncStatusID: body.SyncStatusID,
		BatchSize:    body.BatchSize,
	})
	if err != nil {
		h.logger.Error("reconciliation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) revalidate(w http.ResponseWriter, r *http.Request) {
	run, err := h.revalidator.Revalidate(r.Context(), "API")
	if err != nil {
		h.logger.Error("revalidation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "revalidation failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func intParam(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
