package inventory

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/netinventory/core/access"
	"github.com/relabs-tech/netinventory/core/logger"
)

// audit actions
const (
	auditCreateDevice   = "CREATE_DEVICE"
	auditUpdateDevice   = "UPDATE_DEVICE"
	auditDeleteDevice   = "DELETE_DEVICE"
	auditCreateColumn   = "CREATE_COLUMN"
	auditUpdateColumn   = "UPDATE_COLUMN"
	auditDeleteColumn   = "DELETE_COLUMN"
	auditCreateUser     = "CREATE_USER"
	auditUpdateUserRole = "UPDATE_USER_ROLE"
	auditDeleteUser     = "DELETE_USER"
	auditChangePassword = "CHANGE_PASSWORD"
	auditBackupData     = "BACKUP_DATA"
	auditRestoreData    = "RESTORE_DATA"
	auditCreateType     = "CREATE_TYPE"
	auditDeleteType     = "DELETE_TYPE"
	auditUpdateTopology = "UPDATE_TOPOLOGY"
	auditCreateLink     = "CREATE_LINK"
	auditUpdateLink     = "UPDATE_LINK"
	auditDeleteLink     = "DELETE_LINK"
)

// auditLog appends a record to the audit trail. It is best-effort: a
// failure is logged with the request logger and swallowed, it never
// affects the primary operation.
func (b *Backend) auditLog(ctx context.Context, action, targetType string, targetID interface{}, details interface{}) {
	identity := access.IdentityFromContext(ctx)
	username := ""
	if identity != nil {
		username = identity.Username
	}
	if details == nil {
		details = struct{}{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		logger.FromContext(ctx).Errorln("audit log:", err)
		return
	}
	// string, not []byte: lib/pq would send a byte slice as bytea,
	// which postgres refuses to put into a jsonb column
	_, err = b.db.Exec(`INSERT INTO `+b.db.Schema+`.audit_logs (username, action, target_type, target_id, details)
		VALUES ($1, $2, $3, $4, $5);`,
		username, action, targetType, fmt.Sprint(targetID), string(detailsJSON))
	if err != nil {
		logger.FromContext(ctx).Errorln("audit log:", err)
	}
}

type auditLogEntry struct {
	ID         int64  `json:"id"`
	Timestamp  string `json:"timestamp"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
}

// auditLogsList returns the latest 200 audit records, newest first.
// Timestamps are rendered in local wall time for the browser client.
func (b *Backend) auditLogsList(w http.ResponseWriter, r *http.Request) {
	rows, err := b.db.Query(`SELECT id, TO_CHAR(timestamp AT TIME ZONE 'Asia/Ho_Chi_Minh', 'DD/MM/YYYY HH24:MI:SS'),
		username, action, target_type, target_id
		FROM ` + b.db.Schema + `.audit_logs ORDER BY id DESC LIMIT 200;`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	entries := []auditLogEntry{}
	for rows.Next() {
		var e auditLogEntry
		if err = rows.Scan(&e.ID, &e.Timestamp, &e.Username, &e.Action, &e.TargetType, &e.TargetID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		entries = append(entries, e)
	}
	writeJSON(w, http.StatusOK, entries)
}
