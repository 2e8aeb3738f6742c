// Package models defines server-side data models persisted in the database.
package models

import "time"

// File is the metadata record of one uploaded audio file. The bytes live in
// object storage under CloudObjectKey; at most one File exists per
// (OwnerEmail, OriginalFilename) and records are never updated in place.
type File struct {
	ID string
	// OwnerName and OwnerEmail identify the uploading user. OwnerEmail scopes
	// every lookup.
	OwnerName  string
	OwnerEmail string
	// OriginalFilename is the client-side name, unique per owner.
	OriginalFilename string
	// CloudObjectKey is the object-storage key of the payload.
	CloudObjectKey string
	// ObjectURL is the public URL derived from CloudObjectKey.
	ObjectURL   string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}
