// Package repository provides generic repositories over a Bun data context:
// a read-only Repository with a deferred Query, and CrudRepository for models
// identified by one, two or three key columns. Writes that span several
// statements run in a single transaction and their failures are reported as
// *RepositoryError.
package repository
