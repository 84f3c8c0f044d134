package extract

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	// CommonsThumbBase is the thumbnail root of the media file server.
	CommonsThumbBase = "https://upload.wikimedia.org/wikipedia/commons/thumb"
	// DefaultThumbWidth is used when no width is configured.
	DefaultThumbWidth = 64
)

// ThumbnailURL builds the thumbnail URL for a media filename using the
// file server's hashed directory layout:
//
//	<base>/<a>/<ab>/<name>/<width>px-<name>
//
// where name is the filename with spaces replaced by underscores and a, ab
// are the first one and two hex characters of md5(name).
func ThumbnailURL(filename string, width int) string {
	if width <= 0 {
		width = DefaultThumbWidth
	}
	name := strings.ReplaceAll(filename, " ", "_")
	sum := md5.Sum([]byte(name))
	h := hex.EncodeToString(sum[:])

	var b strings.Builder
	b.Grow(len(CommonsThumbBase) + 2*len(name) + 16)
	b.WriteString(CommonsThumbBase)
	b.WriteByte('/')
	b.WriteString(h[:1])
	b.WriteByte('/')
	b.WriteString(h[:2])
	b.WriteByte('/')
	b.WriteString(name)
	b.WriteByte('/')
	b.WriteString(strconv.Itoa(width))
	b.WriteString("px-")
	b.WriteString(name)
	return b.String()
}
