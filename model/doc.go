// Package model defines stable boundary types for API layers.
//
// The loader returns Go values and *loader.Error. These structs are the
// types intended for direct JSON/YAML serialization by consumers, with
// loader error kinds projected onto stable string codes.
package model
