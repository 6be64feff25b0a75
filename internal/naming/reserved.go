package naming

// reservedFieldNames are the keys with special meaning inside a where
// argument. A column named like one of them would be unreachable by filters.
var reservedFieldNames = map[string]bool{
	"AND": true,
	"OR":  true,
	"NOT": true,
}

// reservedModelNames collide with document keys of the request envelope.
var reservedModelNames = map[string]bool{
	"Query":    true,
	"Mutation": true,
}

func isReservedFieldName(name string) bool {
	return reservedFieldNames[name]
}

func isReservedModelName(name string) bool {
	return reservedModelNames[name]
}
