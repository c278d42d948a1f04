// Package license recognizes license names in free-form package metadata.
//
// Recognition is a pure function over text: an ordered rule table maps
// patterns to license names, and when no rule matches a table of
// characteristic clause phrases (BSD, MIT, Apache, GPL) is consulted. The
// first match wins, so the table order is part of the contract.
//
//	v := license.NewValidator()
//	name, ok := v.Extract("MIT License")      // "MIT", true
//	v.Type(name)                               // "MIT"
//
// [Validator.Resolve] implements the full cascade used during enrichment:
// the license field, the license expression, trove classifiers, and finally
// repository licenses reported by a code host.
package license
