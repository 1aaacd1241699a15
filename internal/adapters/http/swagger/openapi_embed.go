package swagger

import _ "embed"

// OpenAPI is the document describing the leaderboard routes, served at
// /openapi.yaml.
//
//go:embed openapi.yaml
var OpenAPI []byte
