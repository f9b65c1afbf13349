package booking

import "errors"

var (
	// ErrValidation marks a request rejected before any remote call.
	ErrValidation = errors.New("booking: invalid request")
	// ErrDependencyUnmet marks a dependent service requested without its root,
	// or scheduled before it.
	ErrDependencyUnmet = errors.New("booking: dependency unmet")
	// ErrPatientCreate marks a failure to create the patient; no appointments were attempted.
	ErrPatientCreate = errors.New("booking: patient creation failed")
)
