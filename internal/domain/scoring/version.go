package scoring

import (
	"crypto/sha256"
	"encoding/hex"
)

const versionHashLen = 12

// contentVersion derives a stable version from artifact bytes.
func contentVersion(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:versionHashLen]
}

func pickVersion(declared string, data []byte) string {
	if declared != "" {
		return declared
	}
	return contentVersion(data)
}
