package domain

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// TempOidPrefix marks locally generated placeholder OIDs
	TempOidPrefix = "andstatustemp:"

	PublicCollectionOid = "https://www.w3.org/ns/activitystreams#Public"
	// FollowersCollectionOid stands for "followers of the note's author" in any origin
	FollowersCollectionOid = "andstatus:followers"
)

// IsRealOid returns false for empty and synthetic OIDs.
func IsRealOid(oid string) bool {
	return oid != "" && !strings.HasPrefix(oid, TempOidPrefix)
}

// TempOidFor builds a deterministic synthetic OID, so that repeated references
// to the same partially known entity resolve to the same row.
func TempOidFor(key string) string {
	if key == "" {
		return NewTempOid()
	}
	return TempOidPrefix + strings.ToLower(key)
}

func NewTempOid() string {
	return TempOidPrefix + uuid.NewString()
}

// IsPublicMarker recognizes the different spellings of the public collection.
func IsPublicMarker(oid string) bool {
	switch oid {
	case PublicCollectionOid, "as:Public", "Public":
		return true
	}
	return false
}
