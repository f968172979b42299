package scim

import (
	"fmt"
	"time"
)

// metaTimeFormat is ISO 8601 with millisecond precision, always UTC
const metaTimeFormat = "2006-01-02T15:04:05.000Z"

// Meta is the common resource metadata block (RFC 7643 Section 3.1)
type Meta struct {
	ResourceType string `json:"resourceType"`
	Created      string `json:"created"`
	LastModified string `json:"lastModified"`
	Location     string `json:"location"`
	Version      string `json:"version"`
}

// BuildMeta builds the meta block for a resource. The version is a weak ETag
// derived from the last modification time; same-millisecond writes share a
// version, which is a documented precision limit.
func BuildMeta(resourceType, baseURL, id string, created, lastModified time.Time) Meta {
	return Meta{
		ResourceType: resourceType,
		Created:      created.UTC().Format(metaTimeFormat),
		LastModified: lastModified.UTC().Format(metaTimeFormat),
		Location:     fmt.Sprintf("%s/%ss/%s", baseURL, resourceType, id),
		Version:      VersionOf(lastModified),
	}
}

// VersionOf returns the weak ETag for a modification timestamp
func VersionOf(lastModified time.Time) string {
	return `W/"` + lastModified.UTC().Format(metaTimeFormat) + `"`
}
