package inventory

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/netinventory/core/access"
	"github.com/relabs-tech/netinventory/core/csql"
)

// ownerKey is the reserved device attribute holding the username of
// the creating user. It is set by the backend, never by the client,
// and preserved across updates.
const ownerKey = "owner_username"

// validateDeviceData checks a device payload against the currently
// defined attribute columns. Unknown keys and non-scalar values are
// rejected, so stale browser clients cannot sneak orphaned attributes
// into the store.
func (b *Backend) validateDeviceData(data map[string]interface{}) error {
	rows, err := b.db.Query(`SELECT key FROM ` + b.db.Schema + `.columns;`)
	if err != nil {
		return err
	}
	defer rows.Close()

	allowed := map[string]bool{ownerKey: true}
	for rows.Next() {
		var key string
		if err = rows.Scan(&key); err != nil {
			return err
		}
		allowed[key] = true
	}

	for key, value := range data {
		if !allowed[key] {
			return fmt.Errorf("unknown attribute '%s'", key)
		}
		switch value.(type) {
		case nil, string, float64, bool:
		default:
			return fmt.Errorf("attribute '%s' must be a scalar value", key)
		}
	}
	return nil
}

// deviceResponse flattens a device row into the wire representation:
// the attribute map with the numeric id mixed in.
func deviceResponse(id int, data map[string]interface{}) map[string]interface{} {
	response := map[string]interface{}{"id": id}
	for key, value := range data {
		if key == "id" {
			continue
		}
		response[key] = value
	}
	return response
}

func (b *Backend) devicesList(w http.ResponseWriter, r *http.Request) {
	rows, err := b.db.Query(`SELECT id, data FROM ` + b.db.Schema + `.devices;`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	devices := []map[string]interface{}{}
	for rows.Next() {
		var id int
		var raw []byte
		if err = rows.Scan(&id, &raw); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		data := map[string]interface{}{}
		if err = json.Unmarshal(raw, &data); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		devices = append(devices, deviceResponse(id, data))
	}
	writeJSON(w, http.StatusOK, devices)
}

func (b *Backend) devicesCreate(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	delete(data, "id")
	identity := access.IdentityFromContext(r.Context())
	data[ownerKey] = identity.Username

	if err := b.validateDeviceData(data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var id int
	err = b.db.QueryRow(`INSERT INTO `+b.db.Schema+`.devices (data) VALUES ($1) RETURNING id;`, string(raw)).Scan(&id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	device := deviceResponse(id, data)
	b.auditLog(r.Context(), auditCreateDevice, "device", id, device)
	writeJSON(w, http.StatusCreated, device)
}

// loadDeviceForMutation loads the device and enforces the
// owner-or-admin rule. It writes the error response itself and returns
// false when the mutation must not proceed.
func (b *Backend) loadDeviceForMutation(w http.ResponseWriter, r *http.Request, id int) (map[string]interface{}, bool) {
	var raw []byte
	err := b.db.QueryRow(`SELECT data FROM `+b.db.Schema+`.devices WHERE id = $1;`, id).Scan(&raw)
	if err == csql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	data := map[string]interface{}{}
	if err = json.Unmarshal(raw, &data); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}

	identity := access.IdentityFromContext(r.Context())
	owner, _ := data[ownerKey].(string)
	if !identity.IsAdmin() && identity.Username != owner {
		writeError(w, http.StatusForbidden, "Forbidden")
		return nil, false
	}
	return data, true
}

func (b *Backend) devicesUpdate(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	data := map[string]interface{}{}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, ok := b.loadDeviceForMutation(w, r, id)
	if !ok {
		return
	}
	delete(data, "id")
	data[ownerKey] = existing[ownerKey]

	if err := b.validateDeviceData(data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	_, err = b.db.Exec(`UPDATE `+b.db.Schema+`.devices SET data = $1 WHERE id = $2;`, string(raw), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	device := deviceResponse(id, data)
	b.auditLog(r.Context(), auditUpdateDevice, "device", id, device)
	writeJSON(w, http.StatusOK, device)
}

func (b *Backend) devicesDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	if _, ok := b.loadDeviceForMutation(w, r, id); !ok {
		return
	}
	_, err := b.db.Exec(`DELETE FROM `+b.db.Schema+`.devices WHERE id = $1;`, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.auditLog(r.Context(), auditDeleteDevice, "device", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
