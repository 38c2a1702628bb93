package blocklist

import (
	"net"
	"strings"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
)

// Normalize canonicalizes a value so lookups match regardless of input form.
func Normalize(entityType enums.BlockedEntityType, value string) string {
	value = strings.TrimSpace(value)
	switch entityType {
	case enums.BlockedEntityEmail:
		return strings.ToLower(value)
	case enums.BlockedEntityIP:
		if ip := net.ParseIP(value); ip != nil {
			return ip.String()
		}
		return strings.ToLower(value)
	default:
		return value
	}
}
