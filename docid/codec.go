package docid

import (
	"fmt"
	"strconv"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DecodeError indicates that persisted ID text could not be decoded.
type DecodeError struct {
	Text  string
	Tag   string
	cause error
}

func (de *DecodeError) Error() string {
	if de.cause == nil {
		return fmt.Sprintf("cannot decode ID %#q: unknown kind tag %#q", de.Text, de.Tag)
	}

	return fmt.Sprintf("cannot decode ID %#q as %#q: %v", de.Text, de.Tag, de.cause)
}

func (de *DecodeError) Unwrap() error {
	return de.cause
}

// Encode returns the ID's persisted text and its kind tag.
func Encode(id ID) (string, Kind) {
	switch id.kind {
	case KindObjectID:
		return id.oid.Hex(), id.kind
	case KindString:
		return id.str, id.kind
	case KindInt:
		return strconv.FormatInt(id.num, 10), id.kind
	case KindFloat:
		return formatFloat(id.flt), id.kind
	case KindBool:
		return strconv.FormatBool(id.bl), id.kind
	}

	panic(fmt.Sprintf("Encode on invalid ID: %#v", id))
}

// Decode parses text persisted by Encode. The tag is mandatory; the kind is
// never inferred from the text.
func Decode(text string, tag string) (ID, error) {
	if !lo.Contains(Kinds, Kind(tag)) {
		return ID{}, &DecodeError{Text: text, Tag: tag}
	}

	switch Kind(tag) {
	case KindObjectID:
		oid, err := primitive.ObjectIDFromHex(text)
		if err != nil {
			return ID{}, &DecodeError{text, tag, err}
		}
		return ObjectID(oid), nil
	case KindString:
		return String(text), nil
	case KindInt:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return ID{}, &DecodeError{text, tag, err}
		}
		return Int(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return ID{}, &DecodeError{text, tag, err}
		}
		return Float(f), nil
	default:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return ID{}, &DecodeError{text, tag, err}
		}
		return Bool(b), nil
	}
}
