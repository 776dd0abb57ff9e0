package export

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Input errors. Each is returned wrapped in an *InputError.
var (
	ErrNoDestination  = errors.New("no destination path")
	ErrBadExtension   = errors.New("destination must have the .lmesh extension")
	ErrUnwritable     = errors.New("destination cannot be opened for writing")
	ErrTooManyBones   = errors.New("skeleton exceeds 256 bones")
	ErrBoneIndexRange = errors.New("bone index outside 0..255")
	ErrBadParent      = errors.New("bone parent must precede the bone")
	ErrDuplicateBone  = errors.New("duplicate bone name")
	ErrFrameBoneCount = errors.New("frame does not have one transform per bone")
)

// MaxBones is the largest skeleton a vertex byte index can address.
const MaxBones = 256

// InputError is a failure caused by the caller's data or destination. It is
// always detected before any bytes are written.
type InputError struct {
	Op  string
	Err error
}

func (e *InputError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *InputError) Unwrap() error {
	return e.Err
}

func inputErrorf(op string, sentinel error, format string, args ...any) error {
	return &InputError{Op: op, Err: fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)}
}

// WarningKind classifies a non-fatal data problem.
type WarningKind int

const (
	WarnUnknownBone WarningKind = iota
	WarnDegenerateFace
	WarnEmptyMesh
)

// String returns a short name for the kind.
func (k WarningKind) String() string {
	switch k {
	case WarnUnknownBone:
		return "unknown-bone"
	case WarnDegenerateFace:
		return "degenerate-face"
	case WarnEmptyMesh:
		return "empty-mesh"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Warning is a data problem that did not stop the export.
type Warning struct {
	Kind  WarningKind
	Mesh  string
	Bone  string
	Count int
}

func (w Warning) String() string {
	switch w.Kind {
	case WarnUnknownBone:
		return fmt.Sprintf("mesh %q: vertex group references bone %q, which is not in the skeleton", w.Mesh, w.Bone)
	case WarnDegenerateFace:
		return fmt.Sprintf("mesh %q: skipped %d degenerate faces", w.Mesh, w.Count)
	case WarnEmptyMesh:
		return fmt.Sprintf("mesh %q: no triangles", w.Mesh)
	default:
		return w.Kind.String()
	}
}

// ProgressFunc is told how far a stage has come.
type ProgressFunc func(stage string, done, total int)

// Diagnostics collects warnings and forwards progress for one export.
type Diagnostics struct {
	Warnings []Warning

	log      *zap.Logger
	progress ProgressFunc
	seen     map[Warning]bool
}

// NewDiagnostics returns a collector logging to log (nil disables logging).
func NewDiagnostics(log *zap.Logger, progress ProgressFunc) *Diagnostics {
	if log == nil {
		log = zap.NewNop()
	}
	return &Diagnostics{log: log, progress: progress, seen: make(map[Warning]bool)}
}

// Warn records w unless an identical warning was already recorded.
func (d *Diagnostics) Warn(w Warning) {
	if d == nil {
		return
	}
	if d.seen[w] {
		return
	}
	d.seen[w] = true
	d.Warnings = append(d.Warnings, w)
	d.log.Warn(w.String(), zap.Stringer("kind", w.Kind))
}

// Progress reports stage progress.
func (d *Diagnostics) Progress(stage string, done, total int) {
	if d != nil && d.progress != nil {
		d.progress(stage, done, total)
	}
}

// Logger returns the diagnostics logger.
func (d *Diagnostics) Logger() *zap.Logger {
	if d == nil || d.log == nil {
		return zap.NewNop()
	}
	return d.log
}
