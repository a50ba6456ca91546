package aggregation

import (
	"fmt"

	"hermannm.dev/enumnames"
	"hermannm.dev/gridbase/db"
)

// The group of SQL generation rules that applies to a field.
type Family uint8

const (
	FamilyBoolean Family = iota + 1
	FamilyNumber
	FamilyDateTime
	FamilyString
	// String cells stored as JSON arrays, such as multiple selects and attachments.
	FamilyJSON
)

var familyNames = enumnames.NewMap(map[Family]string{
	FamilyBoolean:  "boolean",
	FamilyNumber:   "number",
	FamilyDateTime: "dateTime",
	FamilyString:   "string",
	FamilyJSON:     "json",
})

func (family Family) String() string {
	return familyNames.GetNameOrFallback(family, "INVALID_FAMILY")
}

// Picks the family from the field's cell value type, with string fields stored as JSON going to
// FamilyJSON. Panics on a cell value type outside the known set, since fields are always
// constructed with one of them.
func Classify(field db.Field) Family {
	switch field.CellValueType {
	case db.CellValueTypeBoolean:
		return FamilyBoolean
	case db.CellValueTypeNumber:
		return FamilyNumber
	case db.CellValueTypeDateTime:
		return FamilyDateTime
	case db.CellValueTypeString:
		if field.DBFieldType == db.DBFieldTypeJSON {
			return FamilyJSON
		}
		return FamilyString
	}

	panic(fmt.Sprintf(
		"unrecognized cell value type %d for field '%s'",
		field.CellValueType,
		field.ID,
	))
}
