package validators

import "go.mongodb.org/mongo-driver/bson"

var ApprovalValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"branch_id",
			"resource_id",
			"request_type",
			"old_value",
			"new_value",
			"reason",
			"status",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"branch_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"resource_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"request_type": bson.M{
				"bsonType": "string",
				"enum": []string{
					"capacity_change",
				},
			},

			"old_value": bson.M{
				"bsonType": "int",
				"minimum":  0,
			},

			"new_value": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  500,
			},

			"reason": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 500,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"pending",
					"approved",
					"rejected",
				},
			},

			"reviewer_id": bson.M{
				"bsonType":  "string",
				"maxLength": 64,
			},

			"review_notes": bson.M{
				"bsonType":  "string",
				"maxLength": 500,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"decided_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
