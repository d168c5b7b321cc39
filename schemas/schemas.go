// Package schemas embeds the JSON schema the refresh pipeline validates
// raw flag definition records against.
package schemas

import _ "embed"

//go:embed flags.json
var FlagDefinitionSchema []byte
