package gen

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type UUIDGenerator func() uuid.UUID

func UUID() UUIDGenerator {
	return func() uuid.UUID {
		return uuid.Must(uuid.NewRandom())
	}
}

func (g UUIDGenerator) Next() uuid.UUID {
	if g == nil {
		return uuid.Nil
	}

	return g()
}

// FileName builds a collision-free file name for an uploaded file:
// <unix nanos>_<uuid>_<sanitized base name>.
func (g UUIDGenerator) FileName(now time.Time, original string) string {
	return fmt.Sprintf("%d_%s_%s", now.UnixNano(), g.Next().String(), SafeBase(original))
}

// SafeBase strips directories and characters that do not belong in a file
// name. An empty result becomes "audio".
func SafeBase(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == 0:
			return -1
		case r < 0x20:
			return -1
		case r == ' ':
			return '_'
		}
		return r
	}, base)
	if base == "" || base == "." || base == ".." {
		return "audio"
	}
	return base
}
