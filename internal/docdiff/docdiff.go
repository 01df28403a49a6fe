// Package docdiff compares two BSON documents and describes how they
// differ.
package docdiff

import (
	"bytes"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Kind classifies a difference.
type Kind string

const (
	MissingOnSource      Kind = "missing_on_source"
	MissingOnDestination Kind = "missing_on_destination"
	ValueDiffers         Kind = "value_differs"
	TypeDiffers          Kind = "type_differs"
	FieldOrderDiffers    Kind = "field_order_differs"
)

// RootPath names the whole document in an Entry.
const RootPath = "$"

// Entry is one difference at a dotted path. Array elements use their index
// as the path component.
type Entry struct {
	Path        string
	Kind        Kind
	Source      mo.Option[bson.RawValue]
	Destination mo.Option[bson.RawValue]
}

// Diff lists differences in a stable order: source fields first, in source
// order, then fields only the destination has.
type Diff struct {
	Entries []Entry
}

// Compare returns nil if src and dst are equivalent. Arrays are always
// order-sensitive. Document field order matters only when ignoreFieldOrder
// is false.
func Compare(src, dst bson.Raw, ignoreFieldOrder bool) (*Diff, error) {
	if bytes.Equal(src, dst) {
		return nil, nil
	}

	c := comparer{ignoreFieldOrder: ignoreFieldOrder}
	if err := c.documents("", src, dst); err != nil {
		return nil, err
	}

	if len(c.entries) == 0 {
		return nil, nil
	}

	return &Diff{Entries: c.entries}, nil
}

// DocumentMissing describes a document that exists on only one side.
func DocumentMissing(kind Kind) *Diff {
	return &Diff{Entries: []Entry{{Path: RootPath, Kind: kind}}}
}

type comparer struct {
	ignoreFieldOrder bool
	entries          []Entry
}

func (c *comparer) add(path string, kind Kind, src, dst mo.Option[bson.RawValue]) {
	c.entries = append(c.entries, Entry{
		Path:        lo.Ternary(path == "", RootPath, path),
		Kind:        kind,
		Source:      src,
		Destination: dst,
	})
}

func join(path, key string) string {
	if path == "" {
		return key
	}

	return path + "." + key
}

func (c *comparer) documents(path string, srcRaw, dstRaw bson.Raw) error {
	srcElements, err := srcRaw.Elements()
	if err != nil {
		return errors.Wrapf(err, "parsing source document at %#q", lo.Ternary(path == "", RootPath, path))
	}

	dstElements, err := dstRaw.Elements()
	if err != nil {
		return errors.Wrapf(err, "parsing destination document at %#q", lo.Ternary(path == "", RootPath, path))
	}

	dstByKey := make(map[string]bson.RawValue, len(dstElements))
	for _, el := range dstElements {
		dstByKey[el.Key()] = el.Value()
	}

	srcKeys := make([]string, 0, len(srcElements))

	for _, el := range srcElements {
		key, srcValue := el.Key(), el.Value()
		srcKeys = append(srcKeys, key)

		dstValue, ok := dstByKey[key]
		if !ok {
			c.add(join(path, key), MissingOnDestination, mo.Some(srcValue), mo.None[bson.RawValue]())
			continue
		}

		if err := c.values(join(path, key), srcValue, dstValue); err != nil {
			return err
		}
	}

	srcKeySet := lo.SliceToMap(srcKeys, func(k string) (string, struct{}) { return k, struct{}{} })
	sameKeySet := true

	for _, el := range dstElements {
		if _, ok := srcKeySet[el.Key()]; !ok {
			sameKeySet = false
			c.add(join(path, el.Key()), MissingOnSource, mo.None[bson.RawValue](), mo.Some(el.Value()))
		}
	}

	if !c.ignoreFieldOrder && sameKeySet && len(srcKeys) == len(dstElements) {
		dstKeys := lo.Map(dstElements, func(el bson.RawElement, _ int) string { return el.Key() })
		if !slices.Equal(srcKeys, dstKeys) {
			c.add(
				path,
				FieldOrderDiffers,
				mo.Some(keysValue(srcKeys)),
				mo.Some(keysValue(dstKeys)),
			)
		}
	}

	return nil
}

func (c *comparer) values(path string, src, dst bson.RawValue) error {
	if src.Type != dst.Type {
		c.add(path, TypeDiffers, mo.Some(src), mo.Some(dst))
		return nil
	}

	switch src.Type {
	case bsontype.EmbeddedDocument:
		return c.documents(path, src.Document(), dst.Document())
	case bsontype.Array:
		return c.arrays(path, src.Array(), dst.Array())
	}

	if !src.Equal(dst) {
		c.add(path, ValueDiffers, mo.Some(src), mo.Some(dst))
	}

	return nil
}

func (c *comparer) arrays(path string, srcRaw, dstRaw bson.Raw) error {
	srcValues, err := srcRaw.Values()
	if err != nil {
		return errors.Wrapf(err, "parsing source array at %#q", path)
	}

	dstValues, err := dstRaw.Values()
	if err != nil {
		return errors.Wrapf(err, "parsing destination array at %#q", path)
	}

	for i := range max(len(srcValues), len(dstValues)) {
		elPath := join(path, itoa(i))

		switch {
		case i >= len(dstValues):
			c.add(elPath, MissingOnDestination, mo.Some(srcValues[i]), mo.None[bson.RawValue]())
		case i >= len(srcValues):
			c.add(elPath, MissingOnSource, mo.None[bson.RawValue](), mo.Some(dstValues[i]))
		default:
			if err := c.values(elPath, srcValues[i], dstValues[i]); err != nil {
				return err
			}
		}
	}

	return nil
}

// String renders the diff as single-line relaxed Extended JSON, grouped by
// kind:
//
//	{"value_differs":{"a.b":{"source":1,"destination":2}}}
func (d *Diff) String() string {
	var out bson.D

	for _, entry := range d.Entries {
		detail := bson.D{}
		if v, ok := entry.Source.Get(); ok {
			detail = append(detail, bson.E{Key: "source", Value: v})
		}
		if v, ok := entry.Destination.Get(); ok {
			detail = append(detail, bson.E{Key: "destination", Value: v})
		}

		idx := slices.IndexFunc(out, func(e bson.E) bool { return e.Key == string(entry.Kind) })
		if idx < 0 {
			out = append(out, bson.E{Key: string(entry.Kind), Value: bson.D{}})
			idx = len(out) - 1
		}

		out[idx].Value = append(out[idx].Value.(bson.D), bson.E{Key: entry.Path, Value: detail})
	}

	text, err := bson.MarshalExtJSON(out, false, false)
	if err != nil {
		// Only reachable with a corrupt RawValue.
		return strings.Join(
			lo.Map(d.Entries, func(e Entry, _ int) string { return string(e.Kind) + " " + e.Path }),
			"; ",
		)
	}

	return string(text)
}
