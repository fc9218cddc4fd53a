// Package validation provides the pure checks that gate server allocation.
//
// All functions are pure (no I/O, no side effects). Reference data such as the
// datacenter list and OS templates is passed in by the caller.
//
// # Functions
//
//   - ValidateAllocation: Validate a complete allocation request against reference data
//   - IsValidIPv4: Strict dotted-quad check (canonical integer segments only)
//   - IsValidHostname: Lowercase letters, digits and hyphens, at least 3 characters
//   - AvailableOSTemplates: OS templates offered for a plan
//
// # Usage
//
//	alloc, err := validation.ValidateAllocation(input, ref)
//	var fe *validation.FieldError
//	if errors.As(err, &fe) {
//	    // Return 422 with fe.Field and fe.Reason
//	}
package validation
