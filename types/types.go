// Package types defines shared types used across the application.
package types

import "strings"

// Kind identifies what a lookup searches for.
type Kind string

const (
	KindPlate  Kind = "plate"  // vehicle license plate
	KindTitle  Kind = "title"  // property-title certificate
	KindPerson Kind = "person" // involved party, searched by citizen id
)

// Field names used in Request.Fields.
const (
	FieldPlateNumber       = "plate_number"
	FieldCertificateSerial = "certificate_serial"
	FieldParcelNumber      = "parcel_number"
	FieldMapSheetNumber    = "map_sheet_number"
	FieldCitizenID         = "citizen_id"
)

// Request describes one lookup as entered by the user.
type Request struct {
	Kind   Kind
	Fields map[string]string
}

// Field returns the named field with surrounding whitespace removed.
func (r Request) Field(name string) string {
	return strings.TrimSpace(r.Fields[name])
}

// Status classifies the outcome of a lookup attempt.
type Status int

const (
	StatusSuccess Status = iota
	StatusTransientFailure
	StatusPermanentFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusTransientFailure:
		return "transient failure"
	case StatusPermanentFailure:
		return "permanent failure"
	}
	return "unknown"
}

// Outcome is produced once per attempt and consumed by the orchestrator's
// retry loop. ResultVisible reports whether a result page actually
// rendered in the browser, which decides whether the window is worth
// leaving open.
type Outcome struct {
	Status        Status
	Message       string
	ResultVisible bool
}

// LoginResult classifies what happened after submitting a login form.
type LoginResult int

const (
	LoginOK LoginResult = iota
	// LoginInvalidCredentials means the site rejected the credentials.
	// Retrying cannot help; the user has to fix them.
	LoginInvalidCredentials
	// LoginUIChanged means expected form elements were absent. The site's
	// markup probably changed and the adapter needs maintenance.
	LoginUIChanged
)

func (r LoginResult) String() string {
	switch r {
	case LoginOK:
		return "ok"
	case LoginInvalidCredentials:
		return "invalid credentials"
	case LoginUIChanged:
		return "ui changed"
	}
	return "unknown"
}
