// Package openapi embeds the OpenAPI document of the rating HTTP API.
package openapi

import "embed"

//go:embed openapi.json
var content embed.FS

// Spec returns the OpenAPI document.
func Spec() ([]byte, error) {
	return content.ReadFile("openapi.json")
}

// MustSpec returns the OpenAPI document or panics.
func MustSpec() []byte {
	data, err := Spec()
	if err != nil {
		panic("failed to load OpenAPI document: " + err.Error())
	}
	return data
}
