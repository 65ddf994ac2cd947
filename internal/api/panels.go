package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/farm-connect/internal/identity"
	"github.com/ashureev/farm-connect/internal/mediator"
)

// PanelInfo declares a panel form for the frontend.
type PanelInfo struct {
	Name      string               `json:"name"`
	Title     string               `json:"title"`
	Available bool                 `json:"available"`
	Fields    []mediator.FieldSpec `json:"fields"`
	View      mediator.View        `json:"view"`
}

var errUploadTooLarge = errors.New("upload too large")

// ListPanels returns every panel's declaration and current state.
func (h *Handler) ListPanels(w http.ResponseWriter, r *http.Request) {
	d := h.dashboardFor(r)
	panels := d.Panels()
	out := make([]PanelInfo, 0, len(panels))
	for _, p := range panels {
		out = append(out, PanelInfo{
			Name:      p.Name(),
			Title:     p.Title(),
			Available: p.Available(),
			Fields:    p.Fields(),
			View:      p.View(),
		})
	}
	JSON(w, http.StatusOK, map[string]any{"panels": out})
}

// GetPanel returns a panel's current state.
func (h *Handler) GetPanel(w http.ResponseWriter, r *http.Request) {
	p, ok := h.dashboardFor(r).Panel(chi.URLParam(r, "panel"))
	if !ok {
		Error(w, http.StatusNotFound, KindNotFound, "unknown panel")
		return
	}
	JSON(w, http.StatusOK, p.View())
}

// SubmitPanel validates the form and performs the panel's remote call. The
// call completes even if the client disconnects.
func (h *Handler) SubmitPanel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "panel")
	p, ok := h.dashboardFor(r).Panel(name)
	if !ok {
		Error(w, http.StatusNotFound, KindNotFound, "unknown panel")
		return
	}

	fields, err := h.readFields(w, r)
	if err != nil {
		if errors.Is(err, errUploadTooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, KindBadRequest,
				fmt.Sprintf("Upload exceeds the %d byte limit.", h.maxUploadBytes))
			return
		}
		Error(w, http.StatusBadRequest, KindBadRequest, "invalid request body")
		return
	}

	view, err := p.Run(r.Context(), fields)
	if err != nil {
		if !errors.Is(err, mediator.ErrBusy) {
			h.logger.Info("Panel submission rejected",
				"panel", name,
				"user_id", identity.UserIDFromContext(r.Context()),
				"kind", mediator.KindOf(err),
			)
		}
		MediatorError(w, err, &view)
		return
	}
	JSON(w, http.StatusOK, view)
}

// ResetPanel returns a resolved panel to idle.
func (h *Handler) ResetPanel(w http.ResponseWriter, r *http.Request) {
	p, ok := h.dashboardFor(r).Panel(chi.URLParam(r, "panel"))
	if !ok {
		Error(w, http.StatusNotFound, KindNotFound, "unknown panel")
		return
	}
	if !p.Reset() {
		MediatorError(w, mediator.ErrBusy, nil)
		return
	}
	JSON(w, http.StatusOK, p.View())
}

// readFields accepts a JSON object or a multipart form. Uploaded files are
// base64-encoded into the field of the same name, with the part's content
// type stored under mime_type.
func (h *Handler) readFields(w http.ResponseWriter, r *http.Request) (mediator.Fields, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		return h.readMultipart(r)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, tooLarge(err)
		}
		fields := make(mediator.Fields, len(r.PostForm))
		for k := range r.PostForm {
			fields[k] = r.PostForm.Get(k)
		}
		return fields, nil
	default:
		return readJSONFields(r.Body)
	}
}

func (h *Handler) readMultipart(r *http.Request) (mediator.Fields, error) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		return nil, tooLarge(err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	fields := make(mediator.Fields)
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	for k, files := range r.MultipartForm.File {
		if len(files) == 0 {
			continue
		}
		f, err := files[0].Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, tooLarge(err)
		}
		fields[k] = base64.StdEncoding.EncodeToString(data)
		if fields["mime_type"] == "" {
			ct := files[0].Header.Get("Content-Type")
			if ct == "" || ct == "application/octet-stream" {
				ct = http.DetectContentType(data)
			}
			fields["mime_type"] = ct
		}
	}
	return fields, nil
}

// readJSONFields flattens a JSON object of scalars into Fields.
func readJSONFields(body io.Reader) (mediator.Fields, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, tooLarge(err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return mediator.Fields{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}

	fields := make(mediator.Fields, len(obj))
	for k, v := range obj {
		switch v := v.(type) {
		case nil:
		case string:
			fields[k] = v
		case json.Number:
			fields[k] = v.String()
		case bool:
			fields[k] = strconv.FormatBool(v)
		default:
			return nil, fmt.Errorf("field %q: unsupported value type %T", k, v)
		}
	}
	return fields, nil
}

func tooLarge(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errUploadTooLarge
	}
	return err
}
