// Package sqlite registers the pure Go sqlite driver under the "sqlite3" name
// so DSNs written for cgo drivers keep working.
package sqlite

import (
	"database/sql"
	"database/sql/driver"

	"modernc.org/sqlite"
)

const DriverName = "sqlite3"

type sqliteDriver struct {
	*sqlite.Driver
}

// Open enables foreign keys and a busy timeout on every new connection.
func (d sqliteDriver) Open(name string) (driver.Conn, error) {
	conn, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}

	c, ok := conn.(interface {
		Exec(string, []driver.Value) (driver.Result, error)
	})
	if !ok {
		return conn, nil
	}

	for _, pragma := range []string{"PRAGMA foreign_keys = ON;", "PRAGMA busy_timeout = 5000;"} {
		if _, err := c.Exec(pragma, nil); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	return conn, nil
}

func init() {
	sql.Register(DriverName, sqliteDriver{Driver: &sqlite.Driver{}})
}
