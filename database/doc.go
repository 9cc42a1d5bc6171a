// Package database manages the Bun connection to the mailing list database:
// configuration, the process-wide handle, table bindings, schema
// introspection, dev provisioning and error classification.
package database
