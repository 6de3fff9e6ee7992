package inventory

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/netinventory/core/csql"
)

// column is a dynamic device attribute definition. The key is the
// attribute name inside the device data, the label is what the browser
// client renders as table header.
type column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

func (b *Backend) columnsList(w http.ResponseWriter, r *http.Request) {
	rows, err := b.db.Query(`SELECT key, label FROM ` + b.db.Schema + `.columns;`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	columns := []column{}
	for rows.Next() {
		var c column
		if err = rows.Scan(&c.Key, &c.Label); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		columns = append(columns, c)
	}
	writeJSON(w, http.StatusOK, columns)
}

func (b *Backend) columnsCreate(w http.ResponseWriter, r *http.Request) {
	var c column
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// an empty key would become an accepted device attribute
	if len(c.Key) == 0 || len(c.Label) == 0 {
		writeError(w, http.StatusBadRequest, "key and label must not be empty")
		return
	}
	_, err := b.db.Exec(`INSERT INTO `+b.db.Schema+`.columns (key, label) VALUES ($1, $2);`, c.Key, c.Label)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.auditLog(r.Context(), auditCreateColumn, "column", c.Key, map[string]string{"label": c.Label})
	writeJSON(w, http.StatusCreated, c)
}

func (b *Backend) columnsUpdate(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var c column
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c.Key = key

	err := b.db.QueryRow(`UPDATE `+b.db.Schema+`.columns SET label = $1 WHERE key = $2 RETURNING key;`,
		c.Label, key).Scan(&c.Key)
	if err == csql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.auditLog(r.Context(), auditUpdateColumn, "column", key, map[string]string{"label": c.Label})
	writeJSON(w, http.StatusOK, c)
}

// columnsDelete removes the column definition and strips the attribute
// key from every device's data in one bulk update.
func (b *Backend) columnsDelete(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	_, err := b.db.Exec(`DELETE FROM `+b.db.Schema+`.columns WHERE key = $1;`, key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_, err = b.db.Exec(`UPDATE `+b.db.Schema+`.devices SET data = data - $1;`, key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.auditLog(r.Context(), auditDeleteColumn, "column", key, nil)
	w.WriteHeader(http.StatusNoContent)
}
