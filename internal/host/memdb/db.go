// Package memdb is an in-memory drawing database implementing the host
// object model. Drawings load from and save to a JSON snapshot.
package memdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
	"github.com/mohammed-shakir/raceway-cad/internal/filter"
	"github.com/mohammed-shakir/raceway-cad/internal/geom"
	"github.com/mohammed-shakir/raceway-cad/internal/host"
)

var ErrClosed = errors.New("database closed")

const (
	ModelSpaceName = "*Model_Space"
	PaperSpaceName = "*Paper_Space"
)

var (
	_ host.Database           = (*DB)(nil)
	_ host.Transaction        = (*Tx)(nil)
	_ host.Document           = (*Document)(nil)
	_ host.Opener             = Opener{}
	_ host.BlockReference     = (*blockRef)(nil)
	_ host.AttributeReference = (*attribute)(nil)
	_ host.Polyline           = (*polyline)(nil)
	_ host.Line               = (*line)(nil)
	_ host.MText              = (*mtext)(nil)
	_ host.BlockTableRecord   = (*record)(nil)
)

// DB holds committed objects. Transactions stage writes and publish them on
// commit.
type DB struct {
	name       string
	objects    map[model.Handle]object
	templates  map[string]model.Handle
	apps       map[string]struct{}
	modelSpace model.Handle
	paperSpace model.Handle
	next       uint64
	readOnly   bool
	closed     bool
	openTx     int
	faults     faults
}

type faults struct {
	get         map[model.Handle]error
	panics      map[model.Handle]string
	failAppends bool
	appendAfter int
	appends     int
}

// New returns an empty drawing with model and paper space layouts.
func New(name string) *DB {
	db := &DB{
		name:      name,
		objects:   map[model.Handle]object{},
		templates: map[string]model.Handle{},
		apps:      map[string]struct{}{},
		next:      0x10,
	}
	db.modelSpace = db.addRecord(ModelSpaceName, true, nil)
	db.paperSpace = db.addRecord(PaperSpaceName, true, nil)
	return db
}

func (db *DB) Name() string { return db.name }

func (db *DB) newHandle() model.Handle {
	h := model.Handle(strings.ToUpper(strconv.FormatUint(db.next, 16)))
	db.next++
	return h
}

// reserve keeps generated handles clear of explicit hex handles.
func (db *DB) reserve(h model.Handle) {
	if n, err := strconv.ParseUint(string(h), 16, 64); err == nil && n >= db.next {
		db.next = n + 1
	}
}

func (db *DB) addRecord(name string, layout bool, attdefs []AttributeDef) model.Handle {
	h := db.newHandle()
	db.objects[h] = &record{handle: h, name: name, layout: layout, attdefs: attdefs}
	if !layout {
		db.templates[strings.ToUpper(name)] = h
	}
	return h
}

// AddTemplate defines a block template. Redefining a name replaces it.
func (db *DB) AddTemplate(name string, attdefs ...AttributeDef) model.Handle {
	if h, ok := db.templates[strings.ToUpper(name)]; ok {
		db.objects[h].(*record).attdefs = attdefs
		return h
	}
	return db.addRecord(name, false, attdefs)
}

// SetReadOnly makes every write through a transaction fail.
func (db *DB) SetReadOnly(ro bool) { db.readOnly = ro }

// FailGet makes lookups of h fail with err.
func (db *DB) FailGet(h model.Handle, err error) {
	if db.faults.get == nil {
		db.faults.get = map[model.Handle]error{}
	}
	db.faults.get[h] = err
}

// PanicOnGet makes lookups of h panic with msg.
func (db *DB) PanicOnGet(h model.Handle, msg string) {
	if db.faults.panics == nil {
		db.faults.panics = map[model.Handle]string{}
	}
	db.faults.panics[h] = msg
}

// FailAppendAfter lets n appends succeed and fails every later one. With
// n == 0 the first append fails.
func (db *DB) FailAppendAfter(n int) {
	db.faults.failAppends = true
	db.faults.appendAfter = n
	db.faults.appends = 0
}

func (db *DB) Closed() bool { return db.closed }

// OpenTransactions counts started transactions that were not disposed.
func (db *DB) OpenTransactions() int { return db.openTx }

func (db *DB) ModelSpace() model.Handle { return db.modelSpace }
func (db *DB) PaperSpace() model.Handle { return db.paperSpace }

func (db *DB) Template(name string) (model.Handle, bool) {
	h, ok := db.templates[strings.ToUpper(name)]
	return h, ok
}

// Apps lists registered application names.
func (db *DB) Apps() []string {
	out := make([]string, 0, len(db.apps))
	for a := range db.apps {
		out = append(out, a)
	}
	return out
}

// Count returns the number of committed entities in a container.
func (db *DB) Count(container model.Handle) int {
	rec, ok := db.objects[container].(*record)
	if !ok {
		return 0
	}
	return len(rec.entities)
}

func (db *DB) StartTransaction() (host.Transaction, error) {
	if db.closed {
		return nil, ErrClosed
	}
	db.openTx++
	return &Tx{db: db, dirty: map[model.Handle]object{}}, nil
}

func (db *DB) NewBlockReference(template model.Handle, position model.Point3) (host.BlockReference, []host.AttributeReference, error) {
	if db.closed {
		return nil, nil, ErrClosed
	}
	rec, ok := db.objects[template].(*record)
	if !ok || rec.layout {
		return nil, nil, fmt.Errorf("%w: template %s", host.ErrNotFound, template)
	}
	ref := &blockRef{
		base:  base{layer: "0"},
		name:  rec.name,
		xform: geom.Displacement(geom.Between(model.Point3{}, position)),
	}
	attrs := make([]host.AttributeReference, 0, len(rec.attdefs))
	for _, d := range rec.attdefs {
		a := &attribute{
			base:     base{layer: "0"},
			tag:      d.Tag,
			text:     d.Text,
			position: ref.xform.Apply(d.Position),
			height:   d.Height,
		}
		ref.pending = append(ref.pending, a)
		attrs = append(attrs, a)
	}
	return ref, attrs, nil
}

// Select evaluates tokens against every entity of model and paper space.
// Entities reachable from both are reported once.
func (db *DB) Select(tokens []filter.Token) ([]model.Handle, host.SelectStatus) {
	if db.closed {
		return nil, host.SelectError
	}
	pred, err := compile(tokens)
	if err != nil {
		return nil, host.SelectError
	}
	seen := map[model.Handle]struct{}{}
	var out []model.Handle
	for _, c := range []model.Handle{db.modelSpace, db.paperSpace} {
		rec := db.objects[c].(*record)
		for _, h := range rec.entities {
			if _, dup := seen[h]; dup {
				continue
			}
			e, ok := db.objects[h].(entity)
			if !ok || !pred(e) {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	if len(out) == 0 {
		return nil, host.SelectNone
	}
	return out, host.SelectOK
}

func (db *DB) Close() error {
	db.closed = true
	return nil
}

// Tx stages writes until Commit.
type Tx struct {
	db    *DB
	dirty map[model.Handle]object
	apps  []string
	done  bool
	freed bool
}

func (tx *Tx) lookup(h model.Handle) (object, bool) {
	if o, ok := tx.dirty[h]; ok {
		return o, true
	}
	o, ok := tx.db.objects[h]
	return o, ok
}

func (tx *Tx) usable() error {
	if tx.db.closed {
		return ErrClosed
	}
	if tx.done {
		return host.ErrTransactionDone
	}
	return nil
}

func (tx *Tx) GetObject(h model.Handle, mode host.OpenMode) (host.Object, error) {
	if err := tx.usable(); err != nil {
		return nil, err
	}
	if msg, ok := tx.db.faults.panics[h]; ok {
		panic(msg)
	}
	if err, ok := tx.db.faults.get[h]; ok {
		return nil, err
	}
	o, ok := tx.lookup(h)
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrNotFound, h)
	}
	if mode == host.ForWrite {
		if tx.db.readOnly {
			return nil, host.ErrReadOnly
		}
		if _, staged := tx.dirty[h]; !staged {
			o = o.clone()
			tx.dirty[h] = o
		}
	}
	return o, nil
}

func (tx *Tx) Append(container model.Handle, e host.Entity) (model.Handle, error) {
	if err := tx.usable(); err != nil {
		return "", err
	}
	if tx.db.readOnly {
		return "", host.ErrReadOnly
	}
	f := &tx.db.faults
	if f.failAppends {
		if f.appends >= f.appendAfter {
			return "", fmt.Errorf("append to %s: injected failure", container)
		}
		f.appends++
	}
	ent, ok := e.(entity)
	if !ok {
		return "", fmt.Errorf("append %T: not created by this database", e)
	}
	o, err := tx.GetObject(container, host.ForWrite)
	if err != nil {
		return "", fmt.Errorf("open container %s: %w", container, err)
	}
	rec, ok := o.(*record)
	if !ok {
		return "", fmt.Errorf("%s is not a container", container)
	}

	h := tx.db.newHandle()
	ent.setHandle(h, container)
	tx.dirty[h] = ent
	rec.entities = append(rec.entities, h)

	if ref, ok := ent.(*blockRef); ok {
		for _, a := range ref.pending {
			ah := tx.db.newHandle()
			a.setHandle(ah, h)
			tx.dirty[ah] = a
			ref.attrs = append(ref.attrs, ah)
		}
		ref.pending = nil
	}
	return h, nil
}

func (tx *Tx) RegisterApp(name string) error {
	if err := tx.usable(); err != nil {
		return err
	}
	if name == "" {
		return errors.New("register app: empty name")
	}
	tx.apps = append(tx.apps, name)
	return nil
}

func (tx *Tx) Commit() error {
	if err := tx.usable(); err != nil {
		return err
	}
	for h, o := range tx.dirty {
		tx.db.objects[h] = o
	}
	for _, a := range tx.apps {
		tx.db.apps[a] = struct{}{}
	}
	tx.dirty, tx.apps = nil, nil
	tx.done = true
	return nil
}

func (tx *Tx) Abort() error {
	if tx.done {
		return host.ErrTransactionDone
	}
	tx.dirty, tx.apps = nil, nil
	tx.done = true
	return nil
}

func (tx *Tx) Dispose() error {
	if tx.freed {
		return nil
	}
	if !tx.done {
		_ = tx.Abort()
	}
	tx.freed = true
	tx.db.openTx--
	return nil
}

// Document is an interactively open drawing guarded by a write lock.
type Document struct {
	name string
	db   *DB
	mu   sync.Mutex
}

func NewDocument(name string, db *DB) *Document {
	return &Document{name: name, db: db}
}

func (d *Document) Name() string            { return d.name }
func (d *Document) Database() host.Database { return d.db }

func (d *Document) Lock() (func(), error) {
	d.mu.Lock()
	return d.mu.Unlock, nil
}

// Opener opens snapshot files read-only.
type Opener struct{}

func (Opener) OpenFile(ctx context.Context, path string) (host.Database, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	db.SetReadOnly(true)
	return db, nil
}
