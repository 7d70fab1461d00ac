// Package inmemdb implements the repositories in memory. It backs the tests and the
// "memory" database engine; data is lost when the process exits.
package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/classroom"
	"github.com/trezcool/darasa/core/task"
	"github.com/trezcool/darasa/core/user"
)

type (
	memberKey struct {
		userID, classroomID int
	}

	dayKey struct {
		userID, classroomID int
		day                 string
	}

	tables struct {
		users       map[int]user.User
		classrooms  map[int]classroom.Classroom
		memberships map[memberKey]int // position
		attendances map[int]attendance.Attendance
		attByDay    map[dayKey]int
		tasks       map[int]task.ClassroomTask
		submissions map[int]task.Submission
		seq         map[string]int
	}

	// DB holds every table. Each repository call is atomic; WithinTx serializes units of work
	// and restores the previous state when one fails. Writes made outside a unit of work wait
	// for the running one to end, so a rollback never discards them.
	DB struct {
		mu   sync.RWMutex
		txMu sync.Mutex
		t    *tables
	}

	txKey struct{}
)

var _ core.Transactor = (*DB)(nil)

func newTables() *tables {
	return &tables{
		users:       make(map[int]user.User),
		classrooms:  make(map[int]classroom.Classroom),
		memberships: make(map[memberKey]int),
		attendances: make(map[int]attendance.Attendance),
		attByDay:    make(map[dayKey]int),
		tasks:       make(map[int]task.ClassroomTask),
		submissions: make(map[int]task.Submission),
		seq:         make(map[string]int),
	}
}

func Open() *DB {
	return &DB{t: newTables()}
}

// Reset drops every row.
func (db *DB) Reset() {
	db.mu.Lock()
	db.t = newTables()
	db.mu.Unlock()
}

func (db *DB) nextID(table string) int {
	db.t.seq[table]++
	return db.t.seq[table]
}

// snapshot returns a copy of the tables; rows are values, so copying the maps is enough.
func (t *tables) snapshot() *tables {
	cp := newTables()
	for k, v := range t.users {
		cp.users[k] = v
	}
	for k, v := range t.classrooms {
		cp.classrooms[k] = v
	}
	for k, v := range t.memberships {
		cp.memberships[k] = v
	}
	for k, v := range t.attendances {
		cp.attendances[k] = v
	}
	for k, v := range t.attByDay {
		cp.attByDay[k] = v
	}
	for k, v := range t.tasks {
		cp.tasks[k] = v
	}
	for k, v := range t.submissions {
		cp.submissions[k] = v
	}
	for k, v := range t.seq {
		cp.seq[k] = v
	}
	return cp
}

// WithinTx runs fn alone among units of work. If fn fails or panics, every change it made is discarded.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(bool); ok {
		return fn(ctx)
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	saved := db.t.snapshot()
	db.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			db.restore(saved)
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		db.restore(saved)
		return err
	}
	return nil
}

// lockWrite takes the write lock and returns its release.
func (db *DB) lockWrite(ctx context.Context) (unlock func()) {
	if _, ok := ctx.Value(txKey{}).(bool); ok {
		db.mu.Lock()
		return db.mu.Unlock
	}
	db.txMu.Lock()
	db.mu.Lock()
	return func() {
		db.mu.Unlock()
		db.txMu.Unlock()
	}
}

func (db *DB) restore(saved *tables) {
	db.mu.Lock()
	db.t = saved
	db.mu.Unlock()
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
