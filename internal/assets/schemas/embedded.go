// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so that document validation works
// regardless of the working directory or installation location.
package schemasassets

import _ "embed"

// JobDocumentSchema is the embedded job-document JSON schema.
//
// It constrains the document envelope only; per-job rules are applied in
// code so that a bad job can be dropped without rejecting the whole set.
//
//go:embed job-document.schema.json
var JobDocumentSchema []byte
