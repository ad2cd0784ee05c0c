// Package value models the values carried by the remote-object tree.
//
// A Value is one of int, string or bool, or Invalid when the remote side
// has not (yet) produced one. Anything else the transport delivers, such
// as arrays, objects or fractional numbers, decodes to Unsupported so that
// predicates can treat it as false without guessing.
//
// Payloads use the {"value": X} envelope:
//
//	v, err := value.Decode([]byte(`{"value": 1}`))
//	if n, ok := v.AsInt(); ok && n == 1 {
//	    ...
//	}
package value
