package inventory

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/netinventory/core/logger"
)

// maxTopologyUploadSize bounds the in-memory part of a multipart
// upload parse. Diagram exports are screenshots, 20MB is plenty.
const maxTopologyUploadSize = 20 << 20

// topologyGet returns the cache-busted image URL for both topology
// slots, or null for a slot without an uploaded diagram.
func (b *Backend) topologyGet(w http.ResponseWriter, r *http.Request) {
	rows, err := b.db.Query(`SELECT id, filename FROM ` + b.db.Schema + `.topology;`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	topology := map[string]interface{}{}
	for rows.Next() {
		var id string
		var filename *string
		if err = rows.Scan(&id, &filename); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if filename == nil {
			topology[id] = nil
			continue
		}
		url, err := b.files.URL(*filename)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		topology[id] = url
	}
	writeJSON(w, http.StatusOK, topology)
}

// topologyUpload stores a diagram image for one of the two topology
// slots. Anything but "logical" in the path is coerced to "physical".
// The file is stored under a fixed name per slot, overwriting any
// prior diagram, and the filename is recorded against the slot.
func (b *Backend) topologyUpload(w http.ResponseWriter, r *http.Request) {
	slot := "physical"
	if mux.Vars(r)["type"] == "logical" {
		slot = "logical"
	}

	if err := r.ParseMultipartForm(maxTopologyUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "Lỗi tải lên: "+err.Error())
		return
	}
	file, header, err := r.FormFile("topology_image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Không có file.")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, "Chỉ cho phép tải lên file ảnh!")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	filename := slot + path.Ext(header.Filename)
	if err = b.files.Put(filename, contentType, data); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	_, err = b.db.Exec(`UPDATE `+b.db.Schema+`.topology SET filename = $1 WHERE id = $2;`, filename, slot)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	url, err := b.files.URL(filename)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.FromContext(r.Context()).Infoln("topology upload:", filename)
	b.auditLog(r.Context(), auditUpdateTopology, "topology", slot, map[string]string{"filename": filename})
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "filename": filename, "path": url})
}
