package swagger

import _ "embed"

// OpenAPI is the API description served at /openapi.yaml and rendered by
// the ReDoc page.
//
//go:embed openapi.yaml
var OpenAPI []byte
