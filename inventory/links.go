package inventory

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/netinventory/core/csql"
)

// utilityLink is a bookmark the browser client shows in its sidebar.
// The display order is a sort key only, gaps and duplicates are fine.
type utilityLink struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	DisplayOrder int    `json:"display_order"`
}

func (b *Backend) linksList(w http.ResponseWriter, r *http.Request) {
	rows, err := b.db.Query(`SELECT id, title, url, display_order FROM ` + b.db.Schema + `.utility_links
		ORDER BY display_order, title;`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	links := []utilityLink{}
	for rows.Next() {
		var l utilityLink
		if err = rows.Scan(&l.ID, &l.Title, &l.URL, &l.DisplayOrder); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		links = append(links, l)
	}
	writeJSON(w, http.StatusOK, links)
}

func (b *Backend) linksCreate(w http.ResponseWriter, r *http.Request) {
	var l utilityLink
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := b.db.QueryRow(`INSERT INTO `+b.db.Schema+`.utility_links (title, url, display_order)
		VALUES ($1, $2, $3) RETURNING id;`, l.Title, l.URL, l.DisplayOrder).Scan(&l.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.auditLog(r.Context(), auditCreateLink, "link", l.ID, map[string]string{"title": l.Title, "url": l.URL})
	writeJSON(w, http.StatusCreated, l)
}

func (b *Backend) linksUpdate(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	var l utilityLink
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	l.ID = id

	err := b.db.QueryRow(`UPDATE `+b.db.Schema+`.utility_links SET title = $1, url = $2, display_order = $3
		WHERE id = $4 RETURNING id;`, l.Title, l.URL, l.DisplayOrder, id).Scan(&l.ID)
	if err == csql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.auditLog(r.Context(), auditUpdateLink, "link", id, map[string]string{"title": l.Title, "url": l.URL})
	writeJSON(w, http.StatusOK, l)
}

func (b *Backend) linksDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	_, err := b.db.Exec(`DELETE FROM `+b.db.Schema+`.utility_links WHERE id = $1;`, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.auditLog(r.Context(), auditDeleteLink, "link", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
