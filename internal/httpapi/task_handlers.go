package httpapi

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"taskdeck.io/internal/task"
	"taskdeck.io/internal/validate"
)

func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var in task.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeDomainError(w, r, err)
		return
	}
	t, err := a.tasks.Create(r.Context(), p.AccountID, in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/tasks/"+t.ID.String())
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	q := r.URL.Query()
	v := validate.Errors{}
	page := intParam(q, "page", v)
	size := intParam(q, "size", v)
	if err := v.Err(); err != nil {
		writeDomainError(w, r, err)
		return
	}
	out, err := a.tasks.List(r.Context(), p.AccountID, q.Get("status"), page, size)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	id, ok := taskID(r)
	if !ok {
		notFound(w, r)
		return
	}
	t, err := a.tasks.Get(r.Context(), p.AccountID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) updateTask(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	id, ok := taskID(r)
	if !ok {
		notFound(w, r)
		return
	}
	var in task.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeDomainError(w, r, err)
		return
	}
	t, err := a.tasks.Update(r.Context(), p.AccountID, id, in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) deleteTask(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	id, ok := taskID(r)
	if !ok {
		notFound(w, r)
		return
	}
	if err := a.tasks.Delete(r.Context(), p.AccountID, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// taskID parses the {id} segment; a malformed id names no task.
func taskID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

// intParam returns 0 when the parameter is absent.
func intParam(q url.Values, name string, v validate.Errors) int {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		v.Add(name, "must be an integer")
		return 0
	}
	return n
}
