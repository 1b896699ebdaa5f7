package docs

import "go.mongodb.org/mongo-driver/bson/primitive"

// GenerateID returns a new document identifier. The default produces a
// 24-character lowercase hex ObjectID and is safe for concurrent use.
// Tests may replace it.
var GenerateID = NewObjectID

// NewObjectID returns the hex form of a fresh 12-byte ObjectID.
func NewObjectID() string {
	return primitive.NewObjectID().Hex()
}
