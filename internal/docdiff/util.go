package docdiff

import (
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

func itoa(i int) string {
	return strconv.Itoa(i)
}

// keysValue renders a list of field names as a BSON array value.
func keysValue(keys []string) bson.RawValue {
	idx, arr := bsoncore.AppendArrayStart(nil)
	for i, k := range keys {
		arr = bsoncore.AppendStringElement(arr, strconv.Itoa(i), k)
	}
	arr, _ = bsoncore.AppendArrayEnd(arr, idx)

	return bson.RawValue{Type: bsontype.Array, Value: arr}
}
