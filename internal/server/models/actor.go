package models

// Actor identifies the authenticated user performing an operation. It is
// supplied by the surrounding request-handling layer and is used for
// created_by/modified_by stamping only.
type Actor struct {
	ID       string
	Username string
	IsAdmin  bool
}
