package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/3leaps/gobulk/internal/errors"
	"github.com/3leaps/gobulk/pkg/pipeline"
	"github.com/3leaps/gobulk/pkg/record"
	"github.com/3leaps/gobulk/pkg/resource"
)

// BatchRunner runs extractions for several kinds.
type BatchRunner interface {
	RunBatch(ctx context.Context, kinds []resource.Kind, mode pipeline.Mode) []*pipeline.KindResult
}

// KindError is the per-kind failure reported in a records response.
type KindError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// KindRecords is one kind's entry in a records response.
type KindRecords struct {
	Kind     string             `json:"kind"`
	RunID    string             `json:"run_id,omitempty"`
	Mode     string             `json:"mode"`
	Count    int                `json:"count"`
	Skipped  int                `json:"skipped,omitempty"`
	Records  []record.Canonical `json:"records"`
	Error    *KindError         `json:"error,omitempty"`
	Duration string             `json:"duration"`
}

// RecordsResponse is the body of GET /v1/records.
type RecordsResponse struct {
	Results []KindRecords `json:"results"`
}

// RecordsHandler serves GET /v1/records?resources=products,orders[&mode=paginated].
//
// Kinds run in the order requested. A kind that fails is reported in its
// own entry and does not fail the request.
type RecordsHandler struct {
	runner BatchRunner
	mode   pipeline.Mode
	logger *zap.Logger
}

// NewRecordsHandler creates a handler whose default mode is bulk.
func NewRecordsHandler(runner BatchRunner) *RecordsHandler {
	return &RecordsHandler{runner: runner, mode: pipeline.ModeBulk, logger: zap.NewNop()}
}

func (h *RecordsHandler) WithDefaultMode(m pipeline.Mode) *RecordsHandler {
	if m != "" {
		h.mode = m
	}
	return h
}

func (h *RecordsHandler) WithLogger(l *zap.Logger) *RecordsHandler {
	if l != nil {
		h.logger = l
	}
	return h
}

func (h *RecordsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	kinds := requestedKinds(q.Get("resources"))
	if len(kinds) == 0 {
		respondWithError(w, r, apperrors.NewBadRequest("MISSING_RESOURCES",
			"query parameter resources is required").
			WithDetails(map[string]any{"supported": supportedKinds()}))
		return
	}

	mode := h.mode
	if m := strings.ToLower(strings.TrimSpace(q.Get("mode"))); m != "" {
		mode = pipeline.Mode(m)
	}
	if mode != pipeline.ModeBulk && mode != pipeline.ModePaginated {
		respondWithError(w, r, apperrors.NewBadRequest("INVALID_MODE",
			"mode must be bulk or paginated").
			WithDetails(map[string]any{"mode": string(mode)}))
		return
	}

	results := h.runner.RunBatch(r.Context(), kinds, mode)

	resp := RecordsResponse{Results: make([]KindRecords, 0, len(results))}
	for _, res := range results {
		entry := KindRecords{
			Kind:     res.Kind.String(),
			RunID:    res.RunID,
			Mode:     string(res.Mode),
			Count:    len(res.Records),
			Skipped:  len(res.Skipped),
			Records:  res.Records,
			Duration: res.Duration.String(),
		}
		if entry.Records == nil {
			entry.Records = []record.Canonical{}
		}
		if res.Err != nil {
			entry.Error = &KindError{Code: pipeline.Classify(res.Err), Message: res.Err.Error()}
			h.logger.Warn("Kind extraction failed",
				zap.String("kind", entry.Kind),
				zap.String("code", entry.Error.Code),
				zap.Error(res.Err))
		}
		resp.Results = append(resp.Results, entry)
	}

	apperrors.WriteJSON(w, http.StatusOK, resp)
}

// requestedKinds keeps unknown names so they surface as per-kind errors.
func requestedKinds(csv string) []resource.Kind {
	var out []resource.Kind
	seen := map[resource.Kind]bool{}
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, err := resource.ParseKind(part)
		if err != nil {
			k = resource.Kind(part)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func supportedKinds() []string {
	kinds := resource.Kinds()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = k.String()
	}
	return out
}

// KindInfo describes one catalog entry.
type KindInfo struct {
	Kind      string `json:"kind"`
	RootField string `json:"root_field"`
	TypeName  string `json:"type_name"`
	Grouping  string `json:"grouping"`
}

// KindsHandler serves GET /v1/kinds.
func KindsHandler(w http.ResponseWriter, r *http.Request) {
	var out []KindInfo
	for _, k := range resource.Kinds() {
		st, err := resource.Lookup(k)
		if err != nil {
			respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "catalog lookup failed"))
			return
		}
		out = append(out, KindInfo{
			Kind:      st.Kind.String(),
			RootField: st.RootField,
			TypeName:  st.TypeName,
			Grouping:  st.Grouping.String(),
		})
	}
	apperrors.WriteJSON(w, http.StatusOK, map[string]any{"kinds": out})
}
