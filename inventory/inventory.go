/*
Package inventory implements the network inventory backend.

The backend tracks devices with admin-defined attribute columns, user
accounts with role based access, network topology diagrams, utility
links and an append-only audit trail, all stored in postgres and
exposed as a JSON REST api on a gorilla mux router.
*/
package inventory

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/netinventory/core/access"
	"github.com/relabs-tech/netinventory/core/csql"
	"github.com/relabs-tech/netinventory/core/filestore"
	"github.com/relabs-tech/netinventory/core/logger"
)

// Builder is a builder helper for the inventory backend
type Builder struct {
	// DB is the postgres database the inventory lives in. Must not be nil.
	DB *csql.DB
	// Router is the router the backend adds its routes to. Must not be nil.
	Router *mux.Router
	// JWTSecret signs and verifies session tokens. Must not be empty.
	JWTSecret string
	// FileStore stores uploaded topology images. Must not be nil.
	FileStore filestore.Driver
}

// Backend is the inventory backend
type Backend struct {
	db        *csql.DB
	jwtSecret string
	files     filestore.Driver
}

// New realizes the inventory backend. It creates the database schema
// and seeds the default dataset if necessary, and adds all routes to
// the builder's router.
//
// A missing builder requirement or a schema creation failure is fatal.
func New(bb *Builder) *Backend {
	if bb.DB == nil {
		panic("database is missing")
	}
	if bb.Router == nil {
		panic("router is missing")
	}
	if len(bb.JWTSecret) == 0 {
		panic("jwt secret is missing")
	}
	if bb.FileStore == nil {
		panic("file store is missing")
	}

	b := &Backend{
		db:        bb.DB,
		jwtSecret: bb.JWTSecret,
		files:     bb.FileStore,
	}

	if err := b.createSchema(); err != nil {
		panic(err)
	}
	b.handleRoutes(bb.Router)
	return b
}

func (b *Backend) handleRoutes(router *mux.Router) {
	logger.AddRequestID(router)
	logger.Default().Debugln("backend: handle inventory routes")

	router.HandleFunc("/login", b.login).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(access.NewTokenMiddleware(b.jwtSecret))

	api.HandleFunc("/devices", b.devicesList).Methods(http.MethodGet)
	api.HandleFunc("/devices", b.devicesCreate).Methods(http.MethodPost)
	api.HandleFunc("/devices/{id:[0-9]+}", b.devicesUpdate).Methods(http.MethodPut)
	api.HandleFunc("/devices/{id:[0-9]+}", b.devicesDelete).Methods(http.MethodDelete)

	api.HandleFunc("/columns", b.columnsList).Methods(http.MethodGet)
	api.HandleFunc("/columns", access.AdminOnly(b.columnsCreate)).Methods(http.MethodPost)
	api.HandleFunc("/columns/{key}", access.AdminOnly(b.columnsUpdate)).Methods(http.MethodPut)
	api.HandleFunc("/columns/{key}", access.AdminOnly(b.columnsDelete)).Methods(http.MethodDelete)

	api.HandleFunc("/users", access.AdminOnly(b.usersList)).Methods(http.MethodGet)
	api.HandleFunc("/users", access.AdminOnly(b.usersCreate)).Methods(http.MethodPost)
	api.HandleFunc("/users/{username}", access.AdminOnly(b.usersUpdateRole)).Methods(http.MethodPut)
	api.HandleFunc("/users/{username}", access.AdminOnly(b.usersDelete)).Methods(http.MethodDelete)
	api.HandleFunc("/user/change-password", b.changePassword).Methods(http.MethodPost)

	api.HandleFunc("/types", b.typesList).Methods(http.MethodGet)
	api.HandleFunc("/types", access.AdminOnly(b.typesCreate)).Methods(http.MethodPost)
	api.HandleFunc("/types/{id:[0-9]+}", access.AdminOnly(b.typesDelete)).Methods(http.MethodDelete)

	api.HandleFunc("/topology", b.topologyGet).Methods(http.MethodGet)
	api.HandleFunc("/topology/{type}", access.AdminOnly(b.topologyUpload)).Methods(http.MethodPost)

	api.HandleFunc("/links", b.linksList).Methods(http.MethodGet)
	api.HandleFunc("/links", access.AdminOnly(b.linksCreate)).Methods(http.MethodPost)
	api.HandleFunc("/links/{id:[0-9]+}", access.AdminOnly(b.linksUpdate)).Methods(http.MethodPut)
	api.HandleFunc("/links/{id:[0-9]+}", access.AdminOnly(b.linksDelete)).Methods(http.MethodDelete)

	api.HandleFunc("/audit-logs", access.AdminOnly(b.auditLogsList)).Methods(http.MethodGet)

	api.HandleFunc("/backup", access.AdminOnly(b.backup)).Methods(http.MethodGet)
	api.HandleFunc("/restore", access.AdminOnly(b.restore)).Methods(http.MethodPost)
}

// writeJSON writes v as JSON response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError writes the canonical error response body {"message": ...}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
