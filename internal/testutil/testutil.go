package testutil

import (
	"go.mongodb.org/mongo-driver/bson"
)

// MustMarshal wraps `bson.Marshal` with a panic on failure.
func MustMarshal(doc any) bson.Raw {
	raw, err := bson.Marshal(doc)
	if err != nil {
		panic("bson.Marshal (error in test): " + err.Error())
	}

	return raw
}
