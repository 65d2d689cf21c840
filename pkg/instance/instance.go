package instance

import "os"

// GetID returns the loader instance identifier or a default value.
func GetID() string {
	if id := os.Getenv("STARLIFT_INSTANCE_ID"); id != "" {
		return id
	}
	return "etl-0"
}
