package inventory_test

import (
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/netinventory/core/access"
	"github.com/relabs-tech/netinventory/core/client"
	"github.com/relabs-tech/netinventory/core/csql"
	"github.com/relabs-tech/netinventory/core/filestore"
	"github.com/relabs-tech/netinventory/inventory"
)

// TestService holds the configuration for the test suite
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
type TestService struct {
	Postgres         string `env:"POSTGRES,required" description:"the connection string for the Postgres DB"`
	PostgresPassword string `env:"POSTGRES_PASSWORD,default=" description:"password to the Postgres DB"`
}

const testJWTSecret = "unit_test_secret"

var testRouter *mux.Router

func TestMain(m *testing.M) {
	service := &TestService{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	db := csql.OpenWithSchema(service.Postgres, service.PostgresPassword, "_netinventory_unit_test_")
	db.ClearSchema()

	dir, err := os.MkdirTemp("", "topology")
	if err != nil {
		panic(err)
	}
	files, err := filestore.NewLocalFilesystem(filestore.LocalConfiguration{BasePath: dir})
	if err != nil {
		panic(err)
	}

	testRouter = mux.NewRouter()
	inventory.New(&inventory.Builder{
		DB:        db,
		Router:    testRouter,
		JWTSecret: testJWTSecret,
		FileStore: files,
	})

	code := m.Run()
	db.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

func login(t *testing.T, username, password string) client.Client {
	t.Helper()
	cl := client.NewWithRouter(testRouter)
	var response struct {
		Status string `json:"status"`
		Token  string `json:"token"`
	}
	_, err := cl.RawPost("/login", map[string]string{"username": username, "password": password}, &response)
	require.NoError(t, err)
	require.Equal(t, "success", response.Status)
	return cl.WithToken(response.Token)
}

func createUser(t *testing.T, admin client.Client, username, password, role string) {
	t.Helper()
	status, err := admin.RawPost("/api/users",
		map[string]string{"username": username, "password": password, "role": role}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)
}

func TestLoginSeededAdmin(t *testing.T) {
	cl := client.NewWithRouter(testRouter)

	var response struct {
		Status string `json:"status"`
		Token  string `json:"token"`
	}
	status, err := cl.RawPost("/login", map[string]string{"username": "admin", "password": "admin"}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", response.Status)

	// the bootstrap account must signal a forced password change
	identity, err := access.ParseToken(response.Token, testJWTSecret)
	require.NoError(t, err)
	assert.Equal(t, "admin", identity.Username)
	assert.Equal(t, access.RoleAdmin, identity.Role)
	assert.True(t, identity.MustChangePassword)

	status, _ = cl.RawPost("/login", map[string]string{"username": "admin", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = cl.RawPost("/login", map[string]string{"username": "nosuchuser", "password": "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestTokenRequired(t *testing.T) {
	cl := client.NewWithRouter(testRouter)

	status, _ := cl.RawGet("/api/devices", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = cl.WithToken("not.a.token").RawGet("/api/devices", nil)
	assert.Equal(t, http.StatusForbidden, status)

	// an expired token is rejected like an invalid one
	expired, err := access.NewToken(&access.Identity{Username: "admin", Role: access.RoleAdmin},
		testJWTSecret, -time.Minute)
	require.NoError(t, err)
	status, _ = cl.WithToken(expired).RawGet("/api/devices", nil)
	assert.Equal(t, http.StatusForbidden, status)

	// a token signed with another secret is rejected as well
	foreign, err := access.NewToken(&access.Identity{Username: "admin", Role: access.RoleAdmin},
		"other_secret", time.Hour)
	require.NoError(t, err)
	status, _ = cl.WithToken(foreign).RawGet("/api/devices", nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestChangePassword(t *testing.T) {
	admin := login(t, "admin", "admin")
	createUser(t, admin, "pwuser", "initial", "viewer")

	cl := login(t, "pwuser", "initial")

	status, err := cl.RawPost("/api/user/change-password",
		map[string]string{"currentPassword": "wrong", "newPassword": "changed"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, err.Error(), "Mật khẩu hiện tại không chính xác.")

	status, err = cl.RawPost("/api/user/change-password",
		map[string]string{"currentPassword": "initial"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, err.Error(), "Vui lòng cung cấp mật khẩu hiện tại và mật khẩu mới.")

	var response struct {
		Message string `json:"message"`
	}
	status, err = cl.RawPost("/api/user/change-password",
		map[string]string{"currentPassword": "initial", "newPassword": "changed"}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Đổi mật khẩu thành công!", response.Message)

	// the old password no longer works, the new one does and the
	// forced password change flag is cleared
	plain := client.NewWithRouter(testRouter)
	status, _ = plain.RawPost("/login", map[string]string{"username": "pwuser", "password": "initial"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	var loginResponse struct {
		Token string `json:"token"`
	}
	_, err = plain.RawPost("/login", map[string]string{"username": "pwuser", "password": "changed"}, &loginResponse)
	require.NoError(t, err)
	identity, err := access.ParseToken(loginResponse.Token, testJWTSecret)
	require.NoError(t, err)
	assert.False(t, identity.MustChangePassword)
}

func TestDeviceOwnership(t *testing.T) {
	admin := login(t, "admin", "admin")
	createUser(t, admin, "viewer1", "secret1", "viewer")
	createUser(t, admin, "viewer2", "secret2", "viewer")
	viewer1 := login(t, "viewer1", "secret1")
	viewer2 := login(t, "viewer2", "secret2")

	device := map[string]interface{}{}
	status, err := viewer1.RawPost("/api/devices",
		map[string]string{"hostname": "core-sw-01", "ip": "10.0.0.1"}, &device)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "viewer1", device["owner_username"])
	require.NotNil(t, device["id"])
	id := int(device["id"].(float64))

	// another viewer can read, but not mutate
	status, _ = viewer2.RawGet("/api/devices", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = viewer2.RawPut(deviceRoute(id), map[string]string{"hostname": "hijacked"}, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = viewer2.RawDelete(deviceRoute(id))
	assert.Equal(t, http.StatusForbidden, status)

	// the admin can mutate, and the original owner is preserved
	updated := map[string]interface{}{}
	status, err = admin.RawPut(deviceRoute(id), map[string]string{"hostname": "core-sw-01a"}, &updated)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "core-sw-01a", updated["hostname"])
	assert.Equal(t, "viewer1", updated["owner_username"])

	// so can the owner
	status, err = viewer1.RawPut(deviceRoute(id), map[string]string{"hostname": "core-sw-01b"}, &updated)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "viewer1", updated["owner_username"])

	status, _ = viewer1.RawPut(deviceRoute(999999), map[string]string{"hostname": "x"}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, err = viewer1.RawDelete(deviceRoute(id))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = viewer1.RawDelete(deviceRoute(id))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDeviceValidation(t *testing.T) {
	admin := login(t, "admin", "admin")

	status, err := admin.RawPost("/api/devices", map[string]string{"bogus_attribute": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, err.Error(), "unknown attribute")

	status, err = admin.RawPost("/api/devices",
		map[string]interface{}{"hostname": []string{"not", "scalar"}}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, err.Error(), "must be a scalar value")
}

func TestColumnDeleteStripsKey(t *testing.T) {
	admin := login(t, "admin", "admin")

	status, err := admin.RawPost("/api/columns", map[string]string{"key": "rack", "label": "Rack"}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, status)

	device := map[string]interface{}{}
	_, err = admin.RawPost("/api/devices",
		map[string]string{"hostname": "rack-host", "rack": "B12"}, &device)
	require.NoError(t, err)
	id := int(device["id"].(float64))

	status, err = admin.RawDelete("/api/columns/rack")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)

	devices := []map[string]interface{}{}
	_, err = admin.RawGet("/api/devices", &devices)
	require.NoError(t, err)
	found := false
	for _, d := range devices {
		if int(d["id"].(float64)) != id {
			continue
		}
		found = true
		_, hasRack := d["rack"]
		assert.False(t, hasRack)
		assert.Equal(t, "rack-host", d["hostname"])
	}
	assert.True(t, found)

	status, err = admin.RawDelete(deviceRoute(id))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestColumnValidation(t *testing.T) {
	admin := login(t, "admin", "admin")

	status, err := admin.RawPost("/api/columns", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, err.Error(), "key and label must not be empty")

	status, _ = admin.RawPost("/api/columns", map[string]string{"key": "serial"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = admin.RawPost("/api/columns", map[string]string{"label": "Serial"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// nothing was inserted, and an empty key never becomes an
	// accepted device attribute
	columns := []map[string]interface{}{}
	_, err = admin.RawGet("/api/columns", &columns)
	require.NoError(t, err)
	for _, c := range columns {
		assert.NotEmpty(t, c["key"])
	}
	status, _ = admin.RawPost("/api/devices", map[string]string{"": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = admin.RawPut("/api/columns/nosuchkey", map[string]string{"label": "X"}, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUserRoleUpdate(t *testing.T) {
	admin := login(t, "admin", "admin")
	createUser(t, admin, "roleuser", "secret", "viewer")

	updated := map[string]interface{}{}
	status, err := admin.RawPut("/api/users/roleuser", map[string]string{"role": "admin"}, &updated)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "admin", updated["role"])

	status, _ = admin.RawPut("/api/users/nosuchuser", map[string]string{"role": "admin"}, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAdminOnlyRoutes(t *testing.T) {
	admin := login(t, "admin", "admin")
	createUser(t, admin, "viewer3", "secret3", "viewer")
	viewer := login(t, "viewer3", "secret3")

	status, err := viewer.RawPost("/api/columns", map[string]string{"key": "x", "label": "X"}, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, err.Error(), "Admin required.")

	// the rejection body is JSON like every other error response
	status, header, _ := viewer.RawGetWithHeader("/api/users", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, header.Get("Content-Type"), "application/json")

	status, _ = viewer.RawGet("/api/audit-logs", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = viewer.RawGet("/api/backup", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = viewer.RawPost("/api/restore", map[string]interface{}{}, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestDeviceTypes(t *testing.T) {
	admin := login(t, "admin", "admin")

	types := []map[string]interface{}{}
	_, err := admin.RawGet("/api/types", &types)
	require.NoError(t, err)
	require.NotEmpty(t, types)
	// seeded types come back ordered by name
	assert.Equal(t, "Access Point", types[0]["name"])

	created := map[string]interface{}{}
	status, err := admin.RawPost("/api/types", map[string]string{"name": "Load Balancer"}, &created)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	require.NotNil(t, created["id"])

	// the name is unique
	status, _ = admin.RawPost("/api/types", map[string]string{"name": "Load Balancer"}, nil)
	assert.Equal(t, http.StatusInternalServerError, status)

	status, err = admin.RawDelete(typeRoute(int(created["id"].(float64))))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestUtilityLinks(t *testing.T) {
	admin := login(t, "admin", "admin")

	second := map[string]interface{}{}
	_, err := admin.RawPost("/api/links",
		map[string]interface{}{"title": "Wiki", "url": "https://wiki.example.com", "display_order": 2}, &second)
	require.NoError(t, err)
	first := map[string]interface{}{}
	_, err = admin.RawPost("/api/links",
		map[string]interface{}{"title": "Monitoring", "url": "https://mon.example.com", "display_order": 1}, &first)
	require.NoError(t, err)

	links := []map[string]interface{}{}
	_, err = admin.RawGet("/api/links", &links)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "Monitoring", links[0]["title"])
	assert.Equal(t, "Wiki", links[1]["title"])

	firstID := int(first["id"].(float64))
	updated := map[string]interface{}{}
	status, err := admin.RawPut(linkRoute(firstID),
		map[string]interface{}{"title": "Grafana", "url": "https://mon.example.com", "display_order": 3}, &updated)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Grafana", updated["title"])

	status, _ = admin.RawPut(linkRoute(999999),
		map[string]interface{}{"title": "x", "url": "y"}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	_, err = admin.RawGet("/api/links", &links)
	require.NoError(t, err)
	assert.Equal(t, "Wiki", links[0]["title"])
	assert.Equal(t, "Grafana", links[1]["title"])
}

func TestAuditLogs(t *testing.T) {
	admin := login(t, "admin", "admin")

	created := map[string]interface{}{}
	_, err := admin.RawPost("/api/types", map[string]string{"name": "Audit Probe"}, &created)
	require.NoError(t, err)
	_, err = admin.RawDelete(typeRoute(int(created["id"].(float64))))
	require.NoError(t, err)

	entries := []struct {
		ID         int64  `json:"id"`
		Timestamp  string `json:"timestamp"`
		Username   string `json:"username"`
		Action     string `json:"action"`
		TargetType string `json:"target_type"`
		TargetID   string `json:"target_id"`
	}{}
	status, err := admin.RawGet("/api/audit-logs", &entries)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, entries)

	// newest first
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i-1].ID, entries[i].ID)
	}
	assert.Equal(t, "DELETE_TYPE", entries[0].Action)
	assert.Equal(t, "CREATE_TYPE", entries[1].Action)
	assert.Equal(t, "admin", entries[0].Username)
	assert.NotEmpty(t, entries[0].Timestamp)
}

func TestTopologyUpload(t *testing.T) {
	admin := login(t, "admin", "admin")
	pngData := []byte("\x89PNG\r\n\x1a\nnot really pixels")

	topology := map[string]interface{}{}
	_, err := admin.RawGet("/api/topology", &topology)
	require.NoError(t, err)
	assert.Nil(t, topology["logical"])
	assert.Nil(t, topology["physical"])

	var uploaded struct {
		Success  bool   `json:"success"`
		Filename string `json:"filename"`
		Path     string `json:"path"`
	}
	status, err := admin.PostMultipart("/api/topology/logical",
		"topology_image", "diagram.png", "image/png", pngData, &uploaded)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, uploaded.Success)
	assert.Equal(t, "logical.png", uploaded.Filename)
	assert.Contains(t, uploaded.Path, "logical.png?v=")

	_, err = admin.RawGet("/api/topology", &topology)
	require.NoError(t, err)
	assert.Contains(t, topology["logical"], "logical.png?v=")
	assert.Nil(t, topology["physical"])

	// anything but "logical" is coerced to the physical slot
	status, err = admin.PostMultipart("/api/topology/whatever",
		"topology_image", "floorplan.jpg", "image/jpeg", pngData, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	_, err = admin.RawGet("/api/topology", &topology)
	require.NoError(t, err)
	assert.Contains(t, topology["physical"], "physical.jpg?v=")

	// a non-image upload is rejected and the slot stays untouched
	status, err = admin.PostMultipart("/api/topology/logical",
		"topology_image", "notes.txt", "text/plain", []byte("hello"), nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, err.Error(), "Chỉ cho phép tải lên file ảnh!")
	_, err = admin.RawGet("/api/topology", &topology)
	require.NoError(t, err)
	assert.Contains(t, topology["logical"], "logical.png?v=")

	status, err = admin.PostMultipart("/api/topology/logical",
		"wrong_field", "diagram.png", "image/png", pngData, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, err.Error(), "Không có file.")
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	admin := login(t, "admin", "admin")

	device := map[string]interface{}{}
	_, err := admin.RawPost("/api/devices", map[string]string{"hostname": "backup-host"}, &device)
	require.NoError(t, err)

	var raw []byte
	status, header, err := admin.RawGetWithHeader("/api/backup", &raw)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, header.Get("Content-Disposition"), "backup.json")

	var doc struct {
		Users   []map[string]interface{} `json:"users"`
		Columns []map[string]interface{} `json:"columns"`
		Devices []map[string]interface{} `json:"devices"`
		Links   []map[string]interface{} `json:"links"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.NotEmpty(t, doc.Users)
	assert.NotEmpty(t, doc.Columns)
	assert.NotEmpty(t, doc.Devices)

	var response struct {
		Message string `json:"message"`
	}
	status, err = admin.RawPost("/api/restore", raw, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Phục hồi OK!", response.Message)

	// the restored dataset is equivalent: the admin can still log in
	// with the preserved hash, and counts match the document
	admin = login(t, "admin", "admin")
	devices := []map[string]interface{}{}
	_, err = admin.RawGet("/api/devices", &devices)
	require.NoError(t, err)
	assert.Len(t, devices, len(doc.Devices))
	users := []map[string]interface{}{}
	_, err = admin.RawGet("/api/users", &users)
	require.NoError(t, err)
	assert.Len(t, users, len(doc.Users))
}

func TestRestoreRejectsMalformedDocument(t *testing.T) {
	admin := login(t, "admin", "admin")

	devicesBefore := []map[string]interface{}{}
	_, err := admin.RawGet("/api/devices", &devicesBefore)
	require.NoError(t, err)

	status, err := admin.RawPost("/api/restore", map[string]interface{}{
		"users":   []interface{}{},
		"columns": []interface{}{},
		"devices": []interface{}{map[string]interface{}{"data": "not an object"}},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, err.Error(), "Lỗi restore:")

	status, _ = admin.RawPost("/api/restore", map[string]interface{}{"devices": []interface{}{}}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// nothing was truncated
	devicesAfter := []map[string]interface{}{}
	_, err = admin.RawGet("/api/devices", &devicesAfter)
	require.NoError(t, err)
	assert.Len(t, devicesAfter, len(devicesBefore))
}

func TestRestoreIsAtomic(t *testing.T) {
	admin := login(t, "admin", "admin")

	usersBefore := []map[string]interface{}{}
	_, err := admin.RawGet("/api/users", &usersBefore)
	require.NoError(t, err)

	// a duplicate username passes schema validation but violates the
	// primary key mid-transaction, so the whole restore must roll back
	duplicate := map[string]interface{}{"username": "dup", "password_hash": "x", "role": "viewer"}
	status, err := admin.RawPost("/api/restore", map[string]interface{}{
		"users":   []interface{}{duplicate, duplicate},
		"columns": []interface{}{},
		"devices": []interface{}{},
	}, nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, err.Error(), "Lỗi restore:")

	// the prior dataset is still authoritative
	admin = login(t, "admin", "admin")
	usersAfter := []map[string]interface{}{}
	_, err = admin.RawGet("/api/users", &usersAfter)
	require.NoError(t, err)
	assert.Len(t, usersAfter, len(usersBefore))
}

func deviceRoute(id int) string {
	return "/api/devices/" + strconv.Itoa(id)
}

func typeRoute(id int) string {
	return "/api/types/" + strconv.Itoa(id)
}

func linkRoute(id int) string {
	return "/api/links/" + strconv.Itoa(id)
}
