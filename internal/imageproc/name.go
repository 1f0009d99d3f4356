package imageproc

import (
	"encoding/base32"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tidalbase/quadrat/internal/domain"
)

// nameKey obfuscates stored file names so object keys don't leak site and
// image identifiers to anyone browsing the bucket. This is obfuscation,
// not encryption; the mapping must stay reversible for support tooling.
var nameKey = []byte("quadrat-object-name-v1")

var nameEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// UniqueName derives the obfuscated storage file name for an image,
// carrying over the original extension in lowercase.
func UniqueName(siteID, imageID uuid.UUID, originalName string) string {
	plain := siteID.String() + "-" + imageID.String()
	enc := nameEncoding.EncodeToString(xorKey([]byte(plain)))
	return strings.ToLower(enc) + strings.ToLower(filepath.Ext(originalName))
}

// DecodeUniqueName recovers the site and image identifiers from a name
// produced by UniqueName.
func DecodeUniqueName(name string) (siteID, imageID uuid.UUID, err error) {
	const op = "imageproc.decode_unique_name"

	base := strings.TrimSuffix(name, filepath.Ext(name))
	raw, err := nameEncoding.DecodeString(strings.ToUpper(base))
	if err != nil {
		return uuid.Nil, uuid.Nil, domain.Invalid(op, "Not an obfuscated image name")
	}
	plain := string(xorKey(raw))

	// Both identifiers are canonical 36-char UUIDs joined by a dash.
	if len(plain) != 73 || plain[36] != '-' {
		return uuid.Nil, uuid.Nil, domain.Invalid(op, "Malformed image name payload")
	}
	siteID, err = uuid.Parse(plain[:36])
	if err != nil {
		return uuid.Nil, uuid.Nil, domain.Invalid(op, "Malformed site identifier in image name")
	}
	imageID, err = uuid.Parse(plain[37:])
	if err != nil {
		return uuid.Nil, uuid.Nil, domain.Invalid(op, "Malformed image identifier in image name")
	}
	return siteID, imageID, nil
}

func xorKey(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ nameKey[i%len(nameKey)]
	}
	return out
}
