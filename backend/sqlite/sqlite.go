// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/0xsoniclabs/jellyfish/backend"
	"github.com/0xsoniclabs/jellyfish/common"
	_ "github.com/mattn/go-sqlite3"
)

const (
	createTable = `CREATE TABLE IF NOT EXISTS kv (
		space INTEGER NOT NULL,
		key   BLOB    NOT NULL,
		value BLOB    NOT NULL,
		PRIMARY KEY (space, key)
	) WITHOUT ROWID`
	getValue   = `SELECT value FROM kv WHERE space = ? AND key = ?`
	putValue   = `INSERT OR REPLACE INTO kv (space, key, value) VALUES (?, ?, ?)`
	deleteKey  = `DELETE FROM kv WHERE space = ? AND key = ?`
	scanPrefix = `SELECT key, value FROM kv WHERE space = ? AND key >= ?`
)

// FileName is the name of the database file created in a directory.
const FileName = "state.sqlite"

// Database is a backend.Database stored in a single SQLite table. Keys are
// BLOBs and thus compared bytewise by SQLite.
type Database struct {
	db *sql.DB
}

// Open opens or creates a SQLite database in the given directory.
func Open(directory string) (*Database, error) {
	path := filepath.Join(directory, FileName)
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database %s: %w", path, err)
	}
	if _, err := db.Exec(createTable); err != nil {
		return nil, errors.Join(
			fmt.Errorf("failed to create table: %w", err),
			db.Close(),
		)
	}
	return &Database{db: db}, nil
}

func nonNil(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	return data
}

func (d *Database) Get(space backend.TableSpace, key []byte) ([]byte, error) {
	var value []byte
	err := d.db.QueryRow(getValue, int(space), nonNil(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrNotFound
	}
	if errors.Is(err, sql.ErrConnDone) {
		return nil, backend.ErrClosed
	}
	if err != nil {
		return nil, err
	}
	return nonNil(value), nil
}

func (d *Database) Iterate(space backend.TableSpace, min, max []byte, order common.Order) (backend.Iterator, error) {
	query := scanPrefix
	args := []any{int(space), nonNil(min)}
	if max != nil {
		query += ` AND key < ?`
		args = append(args, max)
	}
	if order == common.Descending {
		query += ` ORDER BY key DESC`
	} else {
		query += ` ORDER BY key ASC`
	}
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query range: %w", err)
	}
	return &sqliteIterator{rows: rows}, nil
}

func (d *Database) Apply(batch *backend.Batch) (err error) {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()
	put, err := tx.Prepare(putValue)
	if err != nil {
		return err
	}
	defer put.Close()
	del, err := tx.Prepare(deleteKey)
	if err != nil {
		return err
	}
	defer del.Close()
	for _, op := range batch.Operations() {
		if op.Delete {
			_, err = del.Exec(int(op.Space), nonNil(op.Key))
		} else {
			_, err = put.Exec(int(op.Space), nonNil(op.Key), nonNil(op.Value))
		}
		if err != nil {
			return fmt.Errorf("failed to write batch: %w", err)
		}
	}
	return tx.Commit()
}

func (d *Database) Close() error {
	return d.db.Close()
}

type sqliteIterator struct {
	rows  *sql.Rows
	key   []byte
	value []byte
	err   error
}

func (i *sqliteIterator) Next() bool {
	if i.err != nil || !i.rows.Next() {
		return false
	}
	if err := i.rows.Scan(&i.key, &i.value); err != nil {
		i.err = err
		return false
	}
	i.key = nonNil(i.key)
	i.value = nonNil(i.value)
	return true
}

func (i *sqliteIterator) Key() []byte {
	return i.key
}

func (i *sqliteIterator) Value() []byte {
	return i.value
}

func (i *sqliteIterator) Err() error {
	if i.err != nil {
		return i.err
	}
	return i.rows.Err()
}

func (i *sqliteIterator) Release() {
	i.rows.Close()
}
