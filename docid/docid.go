// Package docid represents the `_id` values that the checker walks.
//
// An ID is always one of five kinds. Its text form never stands alone: the
// kind tag travels with it wherever it is persisted.
package docid

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind is an ID's variant. Its string value is the tag written to
// checkpoint files and result logs.
type Kind string

const (
	KindObjectID Kind = "ObjectId"
	KindString   Kind = "str"
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindBool     Kind = "bool"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindObjectID, KindString, KindInt, KindFloat, KindBool}

// ErrIncomparable is returned when comparing IDs of different kinds.
var ErrIncomparable = errors.New("IDs of different kinds are not comparable")

// ID is a document identifier. The zero value is invalid; build IDs via
// the constructors or FromRawValue.
type ID struct {
	kind Kind
	oid  primitive.ObjectID
	str  string
	num  int64
	flt  float64
	bl   bool
}

func ObjectID(oid primitive.ObjectID) ID { return ID{kind: KindObjectID, oid: oid} }
func String(s string) ID                 { return ID{kind: KindString, str: s} }
func Int(i int64) ID                     { return ID{kind: KindInt, num: i} }
func Float(f float64) ID                 { return ID{kind: KindFloat, flt: f} }
func Bool(b bool) ID                     { return ID{kind: KindBool, bl: b} }

// Kind returns the ID's variant.
func (id ID) Kind() Kind {
	return id.kind
}

// UnsupportedKindError indicates a BSON `_id` type that this tool cannot walk.
type UnsupportedKindError struct {
	Type bsontype.Type
}

func (uke UnsupportedKindError) Error() string {
	return fmt.Sprintf("unsupported _id type: %s", uke.Type)
}

// FromRawValue converts a driver value into an ID. 32- and 64-bit integers
// both become KindInt.
func FromRawValue(rv bson.RawValue) (ID, error) {
	switch rv.Type {
	case bson.TypeObjectID:
		return ObjectID(rv.ObjectID()), nil
	case bson.TypeString:
		return String(rv.StringValue()), nil
	case bson.TypeInt32:
		return Int(int64(rv.Int32())), nil
	case bson.TypeInt64:
		return Int(rv.Int64()), nil
	case bson.TypeDouble:
		return Float(rv.Double()), nil
	case bson.TypeBoolean:
		return Bool(rv.Boolean()), nil
	default:
		return ID{}, UnsupportedKindError{rv.Type}
	}
}

// BSONValue returns the Go value to use for this ID in a driver query.
func (id ID) BSONValue() any {
	switch id.kind {
	case KindObjectID:
		return id.oid
	case KindString:
		return id.str
	case KindInt:
		return id.num
	case KindFloat:
		return id.flt
	case KindBool:
		return id.bl
	}

	panic(fmt.Sprintf("BSONValue on invalid ID: %#v", id))
}

// Equal reports whether both IDs have the same kind and value.
func (id ID) Equal(other ID) bool {
	c, err := Compare(id, other)
	return err == nil && c == 0
}

// String returns the ID's text form without its tag. Use Encode when
// persisting.
func (id ID) String() string {
	text, _ := Encode(id)
	return text
}

// Compare orders two IDs of the same kind the way the server sorts them.
// It returns ErrIncomparable if the kinds differ.
func Compare(a, b ID) (int, error) {
	if a.kind != b.kind {
		return 0, errors.Wrapf(ErrIncomparable, "%s vs. %s", a.kind, b.kind)
	}

	switch a.kind {
	case KindObjectID:
		return bytes.Compare(a.oid[:], b.oid[:]), nil
	case KindString:
		return strings.Compare(a.str, b.str), nil
	case KindInt:
		return cmp.Compare(a.num, b.num), nil
	case KindFloat:
		return cmp.Compare(a.flt, b.flt), nil
	case KindBool:
		return cmpBool(a.bl, b.bl), nil
	}

	return 0, errors.Errorf("cannot compare invalid IDs")
}

// CompareInStoreOrder orders any two IDs as the server's `_id` index does.
// Numeric kinds compare by value across int and float; other kinds order by
// their canonical BSON type rank (numbers < strings < ObjectIDs < booleans).
func CompareInStoreOrder(a, b ID) int {
	if a.kind == b.kind {
		c, _ := Compare(a, b)
		return c
	}

	if a.isNumeric() && b.isNumeric() {
		return compareNumeric(a, b)
	}

	return cmp.Compare(a.typeRank(), b.typeRank())
}

func (id ID) isNumeric() bool {
	return id.kind == KindInt || id.kind == KindFloat
}

// Mirrors the server's canonical type ordering for the types we support.
func (id ID) typeRank() int {
	switch id.kind {
	case KindInt, KindFloat:
		return 10
	case KindString:
		return 15
	case KindObjectID:
		return 35
	case KindBool:
		return 40
	}

	return math.MaxInt
}

func compareNumeric(a, b ID) int {
	// Exactly one is a float here.
	if a.kind == KindFloat {
		return -compareNumeric(b, a)
	}

	f := b.flt
	switch {
	case math.IsNaN(f):
		return 1
	case f >= math.MaxInt64:
		return -1
	case f < math.MinInt64:
		return 1
	}

	trunc := math.Trunc(f)
	if c := cmp.Compare(a.num, int64(trunc)); c != 0 {
		return c
	}

	// Same integer part; the fractional part decides.
	return cmp.Compare(trunc, f)
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

// Max returns the greatest of the given same-kind IDs in store order.
func Max(ids ...ID) ID {
	if len(ids) == 0 {
		panic("Max requires at least one ID")
	}

	best := ids[0]
	for _, id := range ids[1:] {
		if CompareInStoreOrder(id, best) > 0 {
			best = id
		}
	}

	return best
}

// formatFloat yields the shortest text that parses back to the same value.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
