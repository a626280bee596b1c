package version

import (
	"fmt"

	"twittersphere/internal/spheredb"
)

// Version of the twittersphere binary. The store layout is versioned
// separately by spheredb.CurrentSchemaVersion.
const Version = "0.13.0"

func GetVersion() string {
	return fmt.Sprintf("twittersphere %s (store schema %d)", Version, spheredb.CurrentSchemaVersion)
}
