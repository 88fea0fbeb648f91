package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}

func ReconcileLockKey() string {
	return "jobsync:reconcile:lock"
}

func RefreshStatusKey() string {
	return "jobsync:refresh:last"
}

func newLockToken() string {
	return uuid.NewString()
}
