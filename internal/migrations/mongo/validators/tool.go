package validators

import "go.mongodb.org/mongo-driver/bson"

var ToolValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"name",
			"capacity",
			"sealed_credentials",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"capacity": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  500,
			},

			"sealed_credentials": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"login_url": bson.M{
				"bsonType":  "string",
				"maxLength": 2048,
			},

			"icon_url": bson.M{
				"bsonType":  "string",
				"maxLength": 2048,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
