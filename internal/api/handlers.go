package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/export"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/session"
)

const maxUploadBytes = 64 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", session.ErrInvalidInput, err))
		return
	}

	pdfBytes, fileName, err := formFile(r, "pdf")
	if err != nil {
		s.writeError(w, err)
		return
	}
	schemaBytes, _, err := formFile(r, "schema")
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.ctrl.Upload(r.Context(), pdfBytes, schemaBytes, fileName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) feedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid JSON body: %v", session.ErrInvalidInput, err))
		return
	}

	res, err := s.ctrl.SubmitFeedback(r.Context(), req.Feedback)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) savePrompt(w http.ResponseWriter, r *http.Request) {
	promptID, err := s.ctrl.SavePrompt(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompt_id": promptID})
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	// ?lineage=<local_id> exports the full history of any lineage this
	// process has seen, including ones superseded by a later upload.
	if id := r.URL.Query().Get("lineage"); id != "" {
		localID, err := uuid.Parse(id)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: invalid lineage id %q", session.ErrInvalidInput, id))
			return
		}
		fileName, sch, versions, ok := s.ctrl.ExportLineage(localID)
		if !ok {
			s.writeError(w, fmt.Errorf("%w: unknown lineage %s", session.ErrInvalidInput, localID))
			return
		}
		b, err := export.ConsolidatedWorkbook(fileName, versions, sch)
		if err != nil {
			s.writeError(w, fmt.Errorf("export: %w", err))
			return
		}
		writeWorkbook(w, b, "extraction_history.xlsx")
		return
	}

	fileName, sch, versions, table, ok := s.ctrl.ExportData()
	if !ok {
		s.writeError(w, fmt.Errorf("%w: no extraction to export", session.ErrInvalidInput))
		return
	}

	var b []byte
	var err error
	var attachment string
	if r.URL.Query().Get("consolidated") == "1" {
		b, err = export.ConsolidatedWorkbook(fileName, versions, sch)
		attachment = "extraction_history.xlsx"
	} else {
		b, err = export.ResultWorkbook(table)
		attachment = "extraction.xlsx"
	}
	if err != nil {
		s.writeError(w, fmt.Errorf("export: %w", err))
		return
	}
	writeWorkbook(w, b, attachment)
}

func writeWorkbook(w http.ResponseWriter, b []byte, attachment string) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+attachment+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func formFile(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("%w: missing %q file", session.ErrInvalidInput, field)
	}
	defer file.Close()

	b, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %q file: %v", session.ErrInvalidInput, field, err)
	}
	return b, header.Filename, nil
}
