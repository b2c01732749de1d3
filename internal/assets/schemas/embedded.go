// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so validation works regardless of the
// working directory or installation location.
package schemasassets

import _ "embed"

// ExtractionManifestSchema is the embedded extraction-manifest JSON schema.
//
//go:embed extraction-manifest.schema.json
var ExtractionManifestSchema []byte
