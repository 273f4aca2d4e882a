package v1alpha1

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/statspub/publisher/internal/service"
	"github.com/statspub/publisher/pkg/dataset"
)

var downloadContentTypes = map[string]string{
	service.FormatCSV:  "text/csv; charset=utf-8",
	service.FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// (GET /api/v1/public/data-sets/{id}/meta)
func (h *ServiceHandler) GetDataSetMeta(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	meta, err := h.dataSetSrv.GetMeta(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, meta)
}

// (POST /api/v1/public/data-sets/{id}/query)
func (h *ServiceHandler) QueryDataSet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var q dataset.Query
	if err := decodeBody(r, &q, false); err != nil {
		writeError(w, r, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" || format == service.FormatJSON {
		result, err := h.dataSetSrv.Query(r.Context(), id, q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respond(w, r, http.StatusOK, result)
		return
	}

	var buf bytes.Buffer
	if err := h.dataSetSrv.Export(r.Context(), id, q, format, &buf); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", downloadContentTypes[format])
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s.%s", id, format)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
