package instance

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// GetID returns an identifier for this process. Explicit ids win over the
// platform dyno name and the hostname; with none of those set every call
// site in the process shares one random id.
func GetID() string {
	for _, key := range []string{"NEWDELIVERY_INSTANCE_ID", "DYNO", "HOSTNAME"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	return fallbackID
}

var fallbackID = "instance-" + uuid.NewString()[:8]
