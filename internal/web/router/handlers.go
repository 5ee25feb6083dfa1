package router

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/armelgeek/better-query/internal/endpoint"
	"github.com/armelgeek/better-query/internal/orm/relationships"
	"github.com/armelgeek/better-query/internal/web/query"
	"github.com/armelgeek/better-query/internal/web/response"
)

// MaxBodyBytes caps request payloads
const MaxBodyBytes = 1 << 20

type handlers struct {
	eps *endpoint.Endpoints
}

type relateBody struct {
	Operation string        `json:"operation"`
	IDs       []interface{} `json:"ids"`
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	in, err := h.input(r, true)
	if err != nil {
		response.Error(w, err)
		return
	}
	rec, err := h.eps.Create(r.Context(), in)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, rec)
}

func (h *handlers) read(w http.ResponseWriter, r *http.Request) {
	in, err := h.input(r, false)
	if err != nil {
		response.Error(w, err)
		return
	}
	rec, err := h.eps.Read(r.Context(), in)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, rec)
}

func (h *handlers) update(w http.ResponseWriter, r *http.Request) {
	in, err := h.input(r, true)
	if err != nil {
		response.Error(w, err)
		return
	}
	rec, err := h.eps.Update(r.Context(), in)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, rec)
}

func (h *handlers) delete(w http.ResponseWriter, r *http.Request) {
	in := endpoint.Input{Request: r, ID: chi.URLParam(r, "id")}
	if err := h.eps.Delete(r.Context(), in); err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.Success{Success: true})
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	in, err := h.input(r, false)
	if err != nil {
		response.Error(w, err)
		return
	}
	params, err := query.ParseList(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	page, err := h.eps.List(r.Context(), in, params)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, page)
}

func (h *handlers) relate(w http.ResponseWriter, r *http.Request) {
	in, err := h.input(r, false)
	if err != nil {
		response.Error(w, err)
		return
	}
	var body relateBody
	if err := decodeBody(r, &body); err != nil {
		response.Error(w, err)
		return
	}
	op, err := relationships.ParseManyToManyOp(body.Operation)
	if err != nil {
		response.Error(w, endpoint.BadRequestf("%v", err))
		return
	}
	rec, err := h.eps.Relate(r.Context(), in, chi.URLParam(r, "relation"), op, body.IDs)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, rec)
}

// input collects the id, shape and optionally the JSON payload of a request
func (h *handlers) input(r *http.Request, withBody bool) (endpoint.Input, error) {
	in := endpoint.Input{Request: r, ID: chi.URLParam(r, "id")}
	inc, sel, err := query.ParseShape(r)
	if err != nil {
		return in, err
	}
	in.Include, in.Select = inc, sel
	if withBody {
		data := map[string]interface{}{}
		if err := decodeBody(r, &data); err != nil {
			return in, err
		}
		in.Data = data
	}
	return in, nil
}

// decodeBody reads a JSON body into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return endpoint.BadRequestf("request body exceeds %d bytes", MaxBodyBytes)
		}
		return endpoint.BadRequestf("failed to read request body")
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return endpoint.BadRequestf("invalid JSON body: %v", err)
	}
	return nil
}
