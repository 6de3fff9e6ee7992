package inventory

import (
	"net/http"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/relabs-tech/netinventory/core/access"
	"github.com/relabs-tech/netinventory/core/csql"
	"github.com/relabs-tech/netinventory/core/logger"
)

// login verifies username and password against the stored credential
// and returns a signed session token with an 8 hour expiry.
//
// The user-facing failure messages distinguish an unknown username
// from a wrong password, matching the behaviour the browser client
// relies on.
func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var passwordHash, role string
	var mustChangePassword bool
	err := b.db.QueryRow(`SELECT password_hash, role, must_change_password FROM `+b.db.Schema+`.users
		WHERE username = $1;`, request.Username).Scan(&passwordHash, &role, &mustChangePassword)
	if err == csql.ErrNoRows {
		writeError(w, http.StatusUnauthorized, "Tên đăng nhập không tồn tại.")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(request.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Mật khẩu không chính xác.")
		return
	}

	identity := &access.Identity{
		Username:           request.Username,
		Role:               role,
		MustChangePassword: mustChangePassword,
	}
	token, err := access.NewToken(identity, b.jwtSecret, access.TokenLifetime)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.FromContext(r.Context()).Infoln("login:", request.Username)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "token": token})
}

// changePassword lets the authenticated user replace their own
// password. The current password must match the stored hash; a
// successful change clears the forced password change flag.
func (b *Backend) changePassword(w http.ResponseWriter, r *http.Request) {
	var request struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(request.CurrentPassword) == 0 || len(request.NewPassword) == 0 {
		writeError(w, http.StatusBadRequest, "Vui lòng cung cấp mật khẩu hiện tại và mật khẩu mới.")
		return
	}

	identity := access.IdentityFromContext(r.Context())

	var passwordHash string
	err := b.db.QueryRow(`SELECT password_hash FROM `+b.db.Schema+`.users
		WHERE username = $1;`, identity.Username).Scan(&passwordHash)
	if err == csql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Không tìm thấy người dùng.")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(request.CurrentPassword)) != nil {
		writeError(w, http.StatusBadRequest, "Mật khẩu hiện tại không chính xác.")
		return
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(request.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_, err = b.db.Exec(`UPDATE `+b.db.Schema+`.users SET password_hash = $1, must_change_password = FALSE
		WHERE username = $2;`, string(newHash), identity.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	b.auditLog(r.Context(), auditChangePassword, "user", identity.Username, nil)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Đổi mật khẩu thành công!"})
}
