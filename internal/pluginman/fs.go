package pluginman

import (
	"fmt"
	"os"
)

// ensureDir makes dir a directory, failing if something else is there.
func ensureDir(name, dir string) error {
	st, err := os.Stat(dir)
	if err == nil {
		if !st.IsDir() {
			return fmt.Errorf("can't ensure %s directory: %s is not a directory", name, dir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("can't ensure %s directory: %w", name, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("can't ensure %s directory: %w", name, err)
	}
	return nil
}

// ensureFile checks that file is a regular file or does not exist yet.
func ensureFile(name, file string) error {
	st, err := os.Stat(file)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("can't ensure %s file: %w", name, err)
	}
	if !st.Mode().IsRegular() {
		return fmt.Errorf("can't ensure %s file: %s is not a regular file", name, file)
	}
	return nil
}
