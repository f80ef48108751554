// Package database backs the db.* capability surface with a real
// connection pool instead of the stub results internal/engine's builtins
// returned before this pass (§4.9/§3).
package database

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// poolProfile bounds a driver's connection pool. sqlite is embedded and
// file-locked: modernc.org/sqlite still serializes writers at the file
// level, so handing out more than one *sql.DB connection to a reactive
// script just trades one goroutine's SQLITE_BUSY for another's. Networked
// drivers get the pool spread a script's effects actually benefit from.
type poolProfile struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	serialize   bool // true forces one in-flight statement at a time
}

var poolProfiles = map[string]poolProfile{
	"sqlite":    {maxOpen: 1, maxIdle: 1, maxLifetime: 0, serialize: true},
	"postgres":  {maxOpen: 10, maxIdle: 5, maxLifetime: 5 * time.Minute},
	"mysql":     {maxOpen: 10, maxIdle: 5, maxLifetime: 5 * time.Minute},
	"sqlserver": {maxOpen: 10, maxIdle: 5, maxLifetime: 5 * time.Minute},
}

// DBManager pools named connections opened by db.connect and addressed by
// id from every later db.query/db.execute/db.close call a script makes.
type DBManager struct {
	connections map[string]*DBConn
	mu          sync.RWMutex
}

// DBConn is a single named connection and the usage counters
// ListConnections surfaces back to a script that wants to inspect how
// heavily it has exercised its own db capability.
type DBConn struct {
	ID       string
	Type     string // sqlite, postgres, mysql, sqlserver
	DB       *sql.DB
	DSN      string
	Created  time.Time
	LastUsed time.Time

	profile poolProfile
	callMu  sync.Mutex // held around DB.Exec/Query when profile.serialize is set

	statsMu  sync.Mutex
	queries  int64
	executes int64
}

// NewDBManager creates a new database manager
func NewDBManager() *DBManager {
	return &DBManager{
		connections: make(map[string]*DBConn),
	}
}

// Connect creates a new database connection
func (m *DBManager) Connect(id, dbType, dsn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.connections[id]; exists {
		return fmt.Errorf("db: connection %q already exists", id)
	}

	driverName, profile, err := resolveDriver(dbType)
	if err != nil {
		return err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("db: connect %q: %w", id, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("db: ping %q: %w", id, err)
	}

	db.SetMaxOpenConns(profile.maxOpen)
	db.SetMaxIdleConns(profile.maxIdle)
	db.SetConnMaxLifetime(profile.maxLifetime)

	m.connections[id] = &DBConn{
		ID:       id,
		Type:     dbType,
		DB:       db,
		DSN:      dsn,
		Created:  time.Now(),
		LastUsed: time.Now(),
		profile:  profile,
	}
	return nil
}

// resolveDriver maps a script-facing dbType name to its registered driver
// and pool profile.
func resolveDriver(dbType string) (string, poolProfile, error) {
	var driverName string
	switch dbType {
	case "sqlite", "sqlite3":
		driverName = "sqlite"
	case "postgres", "postgresql":
		driverName = "postgres"
	case "mysql":
		driverName = "mysql"
	case "sqlserver", "mssql":
		driverName = "sqlserver"
	default:
		return "", poolProfile{}, fmt.Errorf("db: unsupported database type %q", dbType)
	}
	return driverName, poolProfiles[driverName], nil
}

// touch runs fn against conn, serializing callers when the driver's pool
// profile demands it and recording the call under kind ("query"/"execute").
func (conn *DBConn) touch(kind string, fn func() error) error {
	if conn.profile.serialize {
		conn.callMu.Lock()
		defer conn.callMu.Unlock()
	}
	conn.LastUsed = time.Now()
	err := fn()
	if err == nil {
		conn.statsMu.Lock()
		if kind == "query" {
			conn.queries++
		} else {
			conn.executes++
		}
		conn.statsMu.Unlock()
	}
	return err
}

// Execute runs a query that doesn't return rows (INSERT, UPDATE, DELETE)
func (m *DBManager) Execute(connID, query string, args ...interface{}) (int64, error) {
	conn, err := m.getConnection(connID)
	if err != nil {
		return 0, err
	}

	var affected int64
	err = conn.touch("execute", func() error {
		result, err := conn.DB.Exec(query, args...)
		if err != nil {
			return fmt.Errorf("db: execute on %q: %w", connID, err)
		}
		affected, err = result.RowsAffected()
		return err
	})
	return affected, err
}

// Query runs a query that returns rows
func (m *DBManager) Query(connID, query string, args ...interface{}) ([]map[string]interface{}, error) {
	conn, err := m.getConnection(connID)
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	err = conn.touch("query", func() error {
		rows, err := conn.DB.Query(query, args...)
		if err != nil {
			return fmt.Errorf("db: query on %q: %w", connID, err)
		}
		defer rows.Close()

		columns, err := rows.Columns()
		if err != nil {
			return err
		}

		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}

		for rows.Next() {
			if err := rows.Scan(valuePtrs...); err != nil {
				return err
			}
			row := make(map[string]interface{}, len(columns))
			for i, col := range columns {
				if b, ok := values[i].([]byte); ok {
					row[col] = string(b)
				} else {
					row[col] = values[i]
				}
			}
			results = append(results, row)
		}
		return rows.Err()
	})
	return results, err
}

// QueryOne runs a query expecting a single row
func (m *DBManager) QueryOne(connID, query string, args ...interface{}) (map[string]interface{}, error) {
	results, err := m.Query(connID, query, args...)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("db: %q returned no rows", connID)
	}
	return results[0], nil
}

// Transaction runs a function within a database transaction
func (m *DBManager) Transaction(connID string, fn func(*sql.Tx) error) error {
	conn, err := m.getConnection(connID)
	if err != nil {
		return err
	}

	return conn.touch("execute", func() error {
		tx, err := conn.DB.Begin()
		if err != nil {
			return fmt.Errorf("db: begin transaction on %q: %w", connID, err)
		}

		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("db: transaction on %q failed: %v, rollback failed: %w", connID, err, rbErr)
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("db: commit on %q: %w", connID, err)
		}
		return nil
	})
}

// Close closes a specific connection
func (m *DBManager) Close(connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, exists := m.connections[connID]
	if !exists {
		return fmt.Errorf("db: connection %q not found", connID)
	}
	if err := conn.DB.Close(); err != nil {
		return err
	}
	delete(m.connections, connID)
	return nil
}

// CloseAll closes all connections
func (m *DBManager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, conn := range m.connections {
		if err := conn.DB.Close(); err != nil {
			fmt.Printf("db: error closing connection %s: %v\n", id, err)
		}
	}
	m.connections = make(map[string]*DBConn)
	return nil
}

// ListConnections returns a snapshot of every open connection along with
// the query/execute counts accumulated on it, so a script can see how much
// of its own db capability it has used.
func (m *DBManager) ListConnections() []map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []map[string]interface{}
	for _, conn := range m.connections {
		conn.statsMu.Lock()
		queries, executes := conn.queries, conn.executes
		conn.statsMu.Unlock()

		list = append(list, map[string]interface{}{
			"id":       conn.ID,
			"type":     conn.Type,
			"created":  conn.Created,
			"lastUsed": conn.LastUsed,
			"queries":  queries,
			"executes": executes,
		})
	}
	return list
}

// getConnection retrieves a connection by ID
func (m *DBManager) getConnection(connID string) (*DBConn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, exists := m.connections[connID]
	if !exists {
		return nil, fmt.Errorf("db: connection %q not found", connID)
	}
	return conn, nil
}
