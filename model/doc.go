// Package model defines stable boundary types for the CLI and daemon.
//
// Block identity is unaffected by any projection. These structs are the only
// types intended for direct JSON serialization by consumers.
package model
