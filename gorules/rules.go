//go:build ruleguard
// +build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func NoRawInterface(m dsl.Matcher) {
	m.Match("interface{}").
		Report("Avoid $$; prefer `any`.").
		Suggest("any")
}

func NoZerologInterface(m dsl.Matcher) {
	m.Import("github.com/rs/zerolog")

	m.Match("$v.Interface($*_)").
		Where(m["v"].Type.Is("*zerolog.Event")).
		Report("Avoid Interface(); use Any() instead.")
}

// Errors carry stacks; see zerolog's pkgerrors marshaler in main.
func NoFmtErrorf(m dsl.Matcher) {
	m.Import("fmt")

	m.Match("fmt.Errorf($*_)").
		Report("Use errors.Errorf or errors.Wrapf from github.com/pkg/errors.")
}

// Result lines and checkpoints must go through docid so that mixed _id kinds
// keep their tags.
func NoRawIDString(m dsl.Matcher) {
	m.Import("go.mongodb.org/mongo-driver/bson")

	m.Match("$v.String()").
		Where(m["v"].Type.Is("bson.RawValue") && m.File().PkgPath.Matches(`/internal/(reconciler|resultlog|checkpoint)$`)).
		Report("Convert _id values with docid.FromRawValue and docid.Encode instead of RawValue.String.")
}

func NoUnkeyedBSONElement(m dsl.Matcher) {
	m.Import("go.mongodb.org/mongo-driver/bson")

	m.Match("bson.E{$k, $v}").
		Report("Use keyed fields: bson.E{Key: $k, Value: $v}.").
		Suggest("bson.E{Key: $k, Value: $v}")
}
