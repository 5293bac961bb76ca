package vector

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// CopyDataset copies src and every sidecar sharing its base name (.shx, .dbf,
// .prj, .cpg, ...) into dstDir, renaming the base to stem. It returns the written
// paths, primary file first.
func CopyDataset(src, dstDir, stem string) ([]string, error) {
	dir := filepath.Dir(src)
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: read directory %s", dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), base+".") {
			continue
		}
		names = append(names, e.Name())
	}
	primary := filepath.Base(src)
	sort.SliceStable(names, func(i, j int) bool {
		if names[i] == primary || names[j] == primary {
			return names[i] == primary
		}
		return names[i] < names[j]
	})

	written := make([]string, 0, len(names))
	for _, name := range names {
		dst := filepath.Join(dstDir, stem+name[len(base):])
		if err := copyFile(filepath.Join(dir, name), dst); err != nil {
			return written, err
		}
		written = append(written, dst)
	}
	return written, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "vector: open %s", src)
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return eris.Wrapf(err, "vector: create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "vector: copy %s", src)
	}
	return eris.Wrapf(out.Close(), "vector: close %s", dst)
}
