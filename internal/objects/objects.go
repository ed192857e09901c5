// Package objects contains the value types shared by the storage layer, the
// authorization engine and the services: identifiers and schemaless documents.
// To avoid circular dependencies, we put them here.
package objects
