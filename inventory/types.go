package inventory

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

type deviceType struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (b *Backend) typesList(w http.ResponseWriter, r *http.Request) {
	rows, err := b.db.Query(`SELECT id, name FROM ` + b.db.Schema + `.device_types ORDER BY name;`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	types := []deviceType{}
	for rows.Next() {
		var t deviceType
		if err = rows.Scan(&t.ID, &t.Name); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		types = append(types, t)
	}
	writeJSON(w, http.StatusOK, types)
}

func (b *Backend) typesCreate(w http.ResponseWriter, r *http.Request) {
	var t deviceType
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := b.db.QueryRow(`INSERT INTO `+b.db.Schema+`.device_types (name) VALUES ($1) RETURNING id;`, t.Name).Scan(&t.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.auditLog(r.Context(), auditCreateType, "type", t.ID, map[string]string{"name": t.Name})
	writeJSON(w, http.StatusCreated, t)
}

func (b *Backend) typesDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	_, err := b.db.Exec(`DELETE FROM `+b.db.Schema+`.device_types WHERE id = $1;`, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.auditLog(r.Context(), auditDeleteType, "type", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
