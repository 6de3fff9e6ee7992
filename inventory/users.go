package inventory

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/relabs-tech/netinventory/core/csql"
)

// user is the wire representation of an account. The password hash
// never leaves the backend except through the admin backup document.
type user struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (b *Backend) usersList(w http.ResponseWriter, r *http.Request) {
	rows, err := b.db.Query(`SELECT username, role FROM ` + b.db.Schema + `.users;`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rows.Close()

	users := []user{}
	for rows.Next() {
		var u user
		if err = rows.Scan(&u.Username, &u.Role); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		users = append(users, u)
	}
	writeJSON(w, http.StatusOK, users)
}

// usersCreate creates a new account. The account starts with the
// forced password change flag set, so the chosen initial password is a
// one-time credential.
func (b *Backend) usersCreate(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(request.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_, err = b.db.Exec(`INSERT INTO `+b.db.Schema+`.users (username, password_hash, role, must_change_password)
		VALUES ($1, $2, $3, TRUE);`, request.Username, string(hash), request.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	b.auditLog(r.Context(), auditCreateUser, "user", request.Username, map[string]string{"role": request.Role})
	writeJSON(w, http.StatusCreated, user{Username: request.Username, Role: request.Role})
}

func (b *Backend) usersUpdateRole(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	var request struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := b.db.QueryRow(`UPDATE `+b.db.Schema+`.users SET role = $1 WHERE username = $2 RETURNING username;`,
		request.Role, username).Scan(&username)
	if err == csql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.auditLog(r.Context(), auditUpdateUserRole, "user", username, map[string]string{"role": request.Role})
	writeJSON(w, http.StatusOK, user{Username: username, Role: request.Role})
}

func (b *Backend) usersDelete(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	_, err := b.db.Exec(`DELETE FROM `+b.db.Schema+`.users WHERE username = $1;`, username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	b.auditLog(r.Context(), auditDeleteUser, "user", username, nil)
	w.WriteHeader(http.StatusNoContent)
}
