// Package model declares the mailing list tables and their bindings.
package model
