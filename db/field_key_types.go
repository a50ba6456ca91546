package db

import "hermannm.dev/enumnames"

// Determines whether record fields are keyed by field name or field ID.
type FieldKeyType uint8

const (
	FieldKeyTypeName FieldKeyType = iota + 1
	FieldKeyTypeID
)

var fieldKeyTypeNames = enumnames.NewMap(map[FieldKeyType]string{
	FieldKeyTypeName: "name",
	FieldKeyTypeID:   "id",
})

func (keyType FieldKeyType) IsValid() bool {
	_, ok := fieldKeyTypeNames.GetName(keyType)
	return ok
}

// Returns the key type itself if set, or FieldKeyTypeName otherwise.
func (keyType FieldKeyType) OrDefault() FieldKeyType {
	if keyType == 0 {
		return FieldKeyTypeName
	}
	return keyType
}

func (keyType FieldKeyType) String() string {
	return fieldKeyTypeNames.GetNameOrFallback(keyType, "INVALID_FIELD_KEY_TYPE")
}

func (keyType FieldKeyType) MarshalJSON() ([]byte, error) {
	return fieldKeyTypeNames.MarshalToNameJSON(keyType)
}

func (keyType *FieldKeyType) UnmarshalJSON(bytes []byte) error {
	return fieldKeyTypeNames.UnmarshalFromNameJSON(bytes, keyType)
}
