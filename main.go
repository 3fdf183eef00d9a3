// Package main is the entry point for the tenantmigrate CLI, the operational
// tool that moves a tenant's embedded single-file asset store into a
// tenant-scoped table in the shared PostgreSQL cluster, with verified
// backups, post-migration validation, and staged rollback.
package main

import "tenantmigrate/cmd"

func main() {
	cmd.Execute()
}
