// Package filesink saves downloaded audio as files on disk.
package filesink

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	zlog "github.com/rs/zerolog/log"
)

const dirPermissions = 0o755

// Sink writes files into a single directory.
type Sink struct {
	dir string
}

// New creates a sink rooted at dir. The directory is created on first save.
func New(dir string) *Sink {
	return &Sink{dir: dir}
}

// Dir returns the target directory.
func (s *Sink) Dir() string {
	return s.dir
}

// Save writes data to filename inside the sink directory and returns the
// full path. Path separators in filename are replaced.
func (s *Sink) Save(filename string, data []byte) (string, error) {
	name := sanitize(filename)
	if name == "" {
		return "", errors.New("filename is required")
	}
	if err := os.MkdirAll(s.dir, dirPermissions); err != nil {
		return "", errors.Wrapf(err, "failed to create directory %s", s.dir)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", errors.Wrapf(err, "failed to move %s into place", path)
	}

	zlog.Info().Msgf("filesink: saved: path=%s size=%s", path, humanize.Bytes(uint64(len(data))))
	return path, nil
}

var unsafeChars = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "'",
	"<", "_",
	">", "_",
	"|", "_",
	"\x00", "",
)

func sanitize(name string) string {
	name = strings.TrimSpace(unsafeChars.Replace(name))
	if name == "." || name == ".." {
		return ""
	}
	return name
}
