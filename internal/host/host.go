// Package host describes the CAD object model the engine drives. The real
// host is an external collaborator; package memdb provides an in-memory
// implementation.
package host

import (
	"context"
	"errors"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
	"github.com/mohammed-shakir/raceway-cad/internal/filter"
	"github.com/mohammed-shakir/raceway-cad/internal/geom"
)

var (
	// ErrNotFound is returned by Transaction.GetObject when a handle does
	// not resolve to a live object.
	ErrNotFound = errors.New("object not found")
	// ErrTransactionDone is returned when a committed or aborted
	// transaction is used again.
	ErrTransactionDone = errors.New("transaction already finished")
	ErrReadOnly        = errors.New("database is read-only")
)

type OpenMode int

const (
	ForRead OpenMode = iota
	ForWrite
)

func (m OpenMode) String() string {
	if m == ForWrite {
		return "write"
	}
	return "read"
}

// SelectStatus mirrors the prompt status of a host selection.
type SelectStatus int

const (
	SelectOK SelectStatus = iota
	SelectNone
	SelectError
)

type Object interface {
	Handle() model.Handle
}

type Entity interface {
	Object
	OwnerID() model.Handle
	Layer() string
	SetLayer(name string)
	TransformBy(m geom.Matrix)
	SetXData(app string, value int32)
	XData(app string) (int32, bool)
}

type BlockReference interface {
	Entity
	Name() string
	// EffectiveName is the template name for dynamic blocks, Name otherwise.
	EffectiveName() string
	Position() model.Point3
	Rotation() float64
	ScaleFactor() float64
	AttributeHandles() []model.Handle
}

type AttributeReference interface {
	Entity
	Tag() string
	TextString() string
	SetTextString(s string)
	Position() model.Point3
	Rotation() float64
	Height() float64
}

type Polyline interface {
	Entity
	NumberOfVertices() int
	PointAt(i int) model.Point3
	Closed() bool
	Linetype() string
	Length() float64
}

type Line interface {
	Entity
	Start() model.Point3
	End() model.Point3
	Linetype() string
	Color() string
	Length() float64
}

type MText interface {
	Entity
	Location() model.Point3
	Contents() string
	TextHeight() float64
	TextStyleName() string
	Attachment() int
	Color() string
	Width() float64
}

// BlockTableRecord is a named container: a template definition or a layout
// such as model space.
type BlockTableRecord interface {
	Object
	Name() string
	IsLayout() bool
	Entities() []model.Handle
}

type Transaction interface {
	GetObject(h model.Handle, mode OpenMode) (Object, error)
	// Append adds a new entity to the container and returns its handle.
	// Attributes created alongside a block reference are appended with it.
	Append(container model.Handle, e Entity) (model.Handle, error)
	RegisterApp(name string) error
	Commit() error
	Abort() error
	// Dispose releases the transaction. Uncommitted changes are discarded.
	Dispose() error
}

type Database interface {
	StartTransaction() (Transaction, error)
	ModelSpace() model.Handle
	PaperSpace() model.Handle
	// Template resolves a block definition by name.
	Template(name string) (model.Handle, bool)
	// NewBlockReference builds an unattached reference to the template at
	// position, together with attribute references for each definition
	// attribute of the template.
	NewBlockReference(template model.Handle, position model.Point3) (BlockReference, []AttributeReference, error)
	// Select evaluates serialized filter tokens over model and paper space.
	Select(tokens []filter.Token) ([]model.Handle, SelectStatus)
	Close() error
}

// Document is a database opened interactively. Writers must hold the lock.
type Document interface {
	Name() string
	Database() Database
	Lock() (unlock func(), err error)
}

// Opener opens drawing files read-only without an interactive view.
type Opener interface {
	OpenFile(ctx context.Context, path string) (Database, error)
}
