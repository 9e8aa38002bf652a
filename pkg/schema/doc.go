// Package schema provides the small type system used for typed story variables.
//
// A story declares variables with type strings ("string", "int", "float",
// "bool", "[string]"). ParseType turns them into Type values that validate and
// normalize values written by actions:
//
//	typ, err := schema.ParseType("int")
//	v, err := typ.Coerce(3.0) // int(3)
//
// A Schema maps variable ids to types and validates a whole variable set at
// once, collecting every failure into an AggregateError.
package schema
