package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/wfcore/engine/internal/domain"
)

const tenantContextKey = "tenant_id"

// TenantMiddleware reads X-Tenant-Id off every inbound request, defaulting
// to domain.DefaultTenant when absent, and stashes it on the gin context
// for handlers to thread into state manager/event store calls.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.GetHeader("X-Tenant-Id")
		if tenant == "" {
			tenant = string(domain.DefaultTenant)
		}
		c.Set(tenantContextKey, domain.Tenant(tenant))
		c.Next()
	}
}

// tenantFrom retrieves the tenant TenantMiddleware stashed on c.
func tenantFrom(c *gin.Context) domain.Tenant {
	if v, ok := c.Get(tenantContextKey); ok {
		if t, ok := v.(domain.Tenant); ok {
			return t
		}
	}
	return domain.DefaultTenant
}
