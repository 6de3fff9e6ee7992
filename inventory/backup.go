package inventory

import (
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
)

// backupDocument is the full-dataset snapshot served by the backup
// route and accepted by the restore route. Audit logs, device types
// and topology slots are deliberately not part of the document.
type backupDocument struct {
	Users   []backupUser   `json:"users"`
	Columns []column       `json:"columns"`
	Devices []backupDevice `json:"devices"`
	Links   []utilityLink  `json:"links"`
}

type backupUser struct {
	Username           string `json:"username"`
	PasswordHash       string `json:"password_hash"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"must_change_password"`
}

type backupDevice struct {
	Data map[string]interface{} `json:"data"`
}

// restoreSchema validates a restore document before anything is
// truncated. A document that fails here is rejected without touching
// the dataset.
const restoreSchema = `{
	"type": "object",
	"required": ["users", "columns", "devices"],
	"properties": {
		"users": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["username", "password_hash", "role"],
				"properties": {
					"username": {"type": "string", "minLength": 1},
					"password_hash": {"type": "string", "minLength": 1},
					"role": {"type": "string", "minLength": 1},
					"must_change_password": {"type": "boolean"}
				}
			}
		},
		"columns": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["key", "label"],
				"properties": {
					"key": {"type": "string", "minLength": 1},
					"label": {"type": "string"}
				}
			}
		},
		"devices": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["data"],
				"properties": {
					"data": {"type": "object"}
				}
			}
		},
		"links": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["title", "url"],
				"properties": {
					"title": {"type": "string"},
					"url": {"type": "string"},
					"display_order": {"type": "integer"}
				}
			}
		}
	}
}`

// backup serializes users, columns, devices and links into a single
// JSON document and returns it as a downloadable attachment.
func (b *Backend) backup(w http.ResponseWriter, r *http.Request) {
	doc := backupDocument{
		Users:   []backupUser{},
		Columns: []column{},
		Devices: []backupDevice{},
		Links:   []utilityLink{},
	}

	rows, err := b.db.Query(`SELECT username, password_hash, role, must_change_password FROM ` + b.db.Schema + `.users;`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for rows.Next() {
		var u backupUser
		if err = rows.Scan(&u.Username, &u.PasswordHash, &u.Role, &u.MustChangePassword); err != nil {
			rows.Close()
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		doc.Users = append(doc.Users, u)
	}
	rows.Close()

	rows, err = b.db.Query(`SELECT key, label FROM ` + b.db.Schema + `.columns;`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for rows.Next() {
		var c column
		if err = rows.Scan(&c.Key, &c.Label); err != nil {
			rows.Close()
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		doc.Columns = append(doc.Columns, c)
	}
	rows.Close()

	rows, err = b.db.Query(`SELECT data FROM ` + b.db.Schema + `.devices;`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for rows.Next() {
		var raw []byte
		if err = rows.Scan(&raw); err != nil {
			rows.Close()
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		var d backupDevice
		if err = json.Unmarshal(raw, &d.Data); err != nil {
			rows.Close()
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		doc.Devices = append(doc.Devices, d)
	}
	rows.Close()

	rows, err = b.db.Query(`SELECT id, title, url, display_order FROM ` + b.db.Schema + `.utility_links;`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for rows.Next() {
		var l utilityLink
		if err = rows.Scan(&l.ID, &l.Title, &l.URL, &l.DisplayOrder); err != nil {
			rows.Close()
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		doc.Links = append(doc.Links, l)
	}
	rows.Close()

	b.auditLog(r.Context(), auditBackupData, "system", "all", nil)
	w.Header().Set("Content-Disposition", "attachment; filename=backup.json")
	writeJSON(w, http.StatusOK, doc)
}

// restore replaces the entire dataset with the content of a backup
// document. The document is schema-validated first, then users,
// columns, devices and utility links are truncated with restarted
// identity sequences and reinserted within a single transaction. Any
// failure rolls the whole restore back, the prior dataset stays
// authoritative.
func (b *Backend) restore(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Lỗi restore: "+err.Error())
		return
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(restoreSchema), gojsonschema.NewBytesLoader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Lỗi restore: "+err.Error())
		return
	}
	if !result.Valid() {
		details := []string{}
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		writeError(w, http.StatusBadRequest, "Lỗi restore: "+strings.Join(details, "; "))
		return
	}

	var doc backupDocument
	if err = json.Unmarshal(body, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "Lỗi restore: "+err.Error())
		return
	}

	schema := b.db.Schema
	tx, err := b.db.Begin()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Lỗi restore: "+err.Error())
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`TRUNCATE ` + schema + `.users, ` + schema + `.columns, ` + schema + `.devices, ` +
		schema + `.utility_links RESTART IDENTITY CASCADE;`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Lỗi restore: "+err.Error())
		return
	}
	for _, u := range doc.Users {
		_, err = tx.Exec(`INSERT INTO `+schema+`.users (username, password_hash, role, must_change_password)
			VALUES ($1, $2, $3, $4);`, u.Username, u.PasswordHash, u.Role, u.MustChangePassword)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Lỗi restore: "+err.Error())
			return
		}
	}
	for _, c := range doc.Columns {
		_, err = tx.Exec(`INSERT INTO `+schema+`.columns (key, label) VALUES ($1, $2);`, c.Key, c.Label)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Lỗi restore: "+err.Error())
			return
		}
	}
	for _, d := range doc.Devices {
		var raw []byte
		if raw, err = json.Marshal(d.Data); err == nil {
			_, err = tx.Exec(`INSERT INTO `+schema+`.devices (data) VALUES ($1);`, string(raw))
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Lỗi restore: "+err.Error())
			return
		}
	}
	for _, l := range doc.Links {
		_, err = tx.Exec(`INSERT INTO `+schema+`.utility_links (title, url, display_order)
			VALUES ($1, $2, $3);`, l.Title, l.URL, l.DisplayOrder)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Lỗi restore: "+err.Error())
			return
		}
	}
	if err = tx.Commit(); err != nil {
		writeError(w, http.StatusInternalServerError, "Lỗi restore: "+err.Error())
		return
	}

	b.auditLog(r.Context(), auditRestoreData, "system", "all", nil)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Phục hồi OK!"})
}
