package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ResourcePrefix is the key prefix shared by every cached query of a resource
func ResourcePrefix(resource string) string {
	return resource + ":"
}

// QueryKey builds the key of a cached query from the resource, the operation
// and the parts that identify the query (id, parameters, user)
func QueryKey(resource, operation string, fingerprint ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(fingerprint, "\x00")))
	return ResourcePrefix(resource) + operation + ":" + hex.EncodeToString(sum[:16])
}
