package inventory

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/relabs-tech/netinventory/core/csql"
	"github.com/relabs-tech/netinventory/core/logger"
)

// defaultColumns are the device attribute columns seeded into an empty
// inventory.
var defaultColumns = []column{
	{Key: "hostname", Label: "Hostname"},
	{Key: "ip", Label: "Địa chỉ IP"},
	{Key: "type", Label: "Loại"},
	{Key: "location", Label: "Vị trí"},
	{Key: "owner", Label: "Người quản lý"},
	{Key: "description", Label: "Mô tả"},
}

// defaultDeviceTypes are the device types seeded into an empty inventory.
var defaultDeviceTypes = []string{
	"Router", "Switch", "Firewall", "Access Point", "Server", "PC/Laptop",
}

// createSchema creates all tables if necessary and seeds the default
// dataset into empty tables, all within a single transaction. It is
// idempotent and safe to run on every restart.
//
// Seeds: the admin/admin bootstrap account with a forced password
// change, the default attribute columns, the default device types and
// the two topology slots.
func (b *Backend) createSchema() error {
	schema := b.db.Schema

	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	creations := []string{
		`CREATE TABLE IF NOT EXISTS ` + schema + `.users (
			username VARCHAR(50) PRIMARY KEY,
			password_hash VARCHAR(100) NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'viewer',
			must_change_password BOOLEAN DEFAULT FALSE
		);`,
		`CREATE TABLE IF NOT EXISTS ` + schema + `.columns (
			key VARCHAR(50) PRIMARY KEY,
			label VARCHAR(100) NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ` + schema + `.devices (
			id SERIAL PRIMARY KEY,
			data JSONB
		);`,
		`CREATE TABLE IF NOT EXISTS ` + schema + `.audit_logs (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ DEFAULT NOW(),
			username VARCHAR(50),
			action VARCHAR(100),
			target_type VARCHAR(50),
			target_id VARCHAR(100),
			details JSONB
		);`,
		`CREATE TABLE IF NOT EXISTS ` + schema + `.device_types (
			id SERIAL PRIMARY KEY,
			name VARCHAR(100) UNIQUE NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ` + schema + `.topology (
			id VARCHAR(50) PRIMARY KEY,
			filename VARCHAR(255)
		);`,
		`CREATE TABLE IF NOT EXISTS ` + schema + `.utility_links (
			id SERIAL PRIMARY KEY,
			title VARCHAR(100) NOT NULL,
			url VARCHAR(500) NOT NULL,
			display_order INT DEFAULT 0
		);`,
	}
	for _, creation := range creations {
		if _, err = tx.Exec(creation); err != nil {
			return err
		}
	}

	var exists int
	err = tx.QueryRow(`SELECT 1 FROM ` + schema + `.users WHERE username = 'admin';`).Scan(&exists)
	if err == csql.ErrNoRows {
		var hash []byte
		hash, err = bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO `+schema+`.users (username, password_hash, role, must_change_password)
			VALUES ('admin', $1, 'admin', TRUE);`, string(hash))
	}
	if err != nil {
		return err
	}

	err = tx.QueryRow(`SELECT 1 FROM ` + schema + `.columns LIMIT 1;`).Scan(&exists)
	if err == csql.ErrNoRows {
		for _, c := range defaultColumns {
			if _, err = tx.Exec(`INSERT INTO `+schema+`.columns (key, label)
				VALUES ($1, $2) ON CONFLICT DO NOTHING;`, c.Key, c.Label); err != nil {
				return err
			}
		}
		err = nil
	}
	if err != nil {
		return err
	}

	err = tx.QueryRow(`SELECT 1 FROM ` + schema + `.device_types LIMIT 1;`).Scan(&exists)
	if err == csql.ErrNoRows {
		for _, name := range defaultDeviceTypes {
			if _, err = tx.Exec(`INSERT INTO `+schema+`.device_types (name)
				VALUES ($1) ON CONFLICT DO NOTHING;`, name); err != nil {
				return err
			}
		}
		err = nil
	}
	if err != nil {
		return err
	}

	err = tx.QueryRow(`SELECT 1 FROM ` + schema + `.topology LIMIT 1;`).Scan(&exists)
	if err == csql.ErrNoRows {
		_, err = tx.Exec(`INSERT INTO ` + schema + `.topology (id, filename)
			VALUES ('logical', null), ('physical', null) ON CONFLICT DO NOTHING;`)
	}
	if err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	logger.Default().Debugln("schema initialized:", schema)
	return nil
}
