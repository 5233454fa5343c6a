// Package repository holds the PostgreSQL data access for vectors, posts and comments.
package repository

import _ "embed"

// Schema is the idempotent DDL for the tables this service owns.
// The comments table is owned by another system and is only read.
//
//go:embed schema.sql
var Schema string
