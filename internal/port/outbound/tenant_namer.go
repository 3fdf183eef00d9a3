package outbound

// TenantNamer supplies the tenant identifier's table-naming convention. The
// provisioning system behind it is an external collaborator; the core only
// asks it for a table name.
type TenantNamer interface {
	// TableName returns the tenant-scoped target table name for a tenant ID.
	TableName(tenantID string) string
}

// TenantNamerFunc adapts a function to the TenantNamer interface.
type TenantNamerFunc func(tenantID string) string

// TableName implements TenantNamer.
func (f TenantNamerFunc) TableName(tenantID string) string {
	return f(tenantID)
}
