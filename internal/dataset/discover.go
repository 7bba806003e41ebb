package dataset

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/pkg/errors"
)

var dataFileRegexp = regexp.MustCompile(`(?i)\.(dat|svm|libsvm|txt)$`)

// Discover returns paths to data files beneath root in lexical order.
func Discover(root string) ([]string, error) {
	entries := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if dataFileRegexp.MatchString(d.Name()) {
			entries = append(entries, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "dataset: discover")
	}
	sort.Strings(entries)
	return entries, nil
}

// Expand resolves each entry of paths: directories are replaced by the data
// files Discover finds in them, files are kept as given.
func Expand(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, errors.Wrap(err, "dataset: stat")
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		files, err := Discover(p)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, errors.Errorf("dataset: no data files in %s", p)
		}
		out = append(out, files...)
	}
	return out, nil
}
