package instance

import (
	"os"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/env"
)

const defaultID = "storefront-0"

// GetID identifies this process in cron lock owners and startup logs.
// Order: STOREFRONT_INSTANCE_ID, INSTANCE_ID, WORKER_ID, hostname.
func GetID() string {
	if id, ok := env.Lookup("INSTANCE_ID"); ok {
		return id
	}
	if id, ok := env.Lookup("WORKER_ID"); ok {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultID
}
