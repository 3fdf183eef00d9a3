package service

import (
	"strings"

	"tenantmigrate/internal/port/outbound"
)

// DefaultTenantNamer maps a tenant ID onto the provisioning system's table
// naming convention: "tenant_<id>_assets" with the ID lowercased and any
// character outside [a-z0-9] folded to an underscore.
var DefaultTenantNamer outbound.TenantNamer = outbound.TenantNamerFunc(func(tenantID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(tenantID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return "tenant_" + b.String() + "_assets"
})
