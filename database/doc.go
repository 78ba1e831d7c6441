// Package database provides connection management, the startup lifecycle
// (drop, create, migrate, seed), versioned migrations, SQL file seeding,
// configuration, logging, query hooks, and SQL error classification built on
// top of Bun.
package database
