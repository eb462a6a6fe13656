package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/supermechanical/rangelink/internal/errors"
)

const configFileName = "config.yaml"

// ConfigDirs lists the directories searched for config.yaml, most specific
// first: the user config directory, then /etc/rangelink, or the executable's
// directory on Windows. If one of them already holds a config file, only
// that directory is returned.
func ConfigDirs() ([]string, error) {
	userDir, err := os.UserConfigDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "user_config_dir").
			Build()
	}
	dirs := []string{filepath.Join(userDir, "rangelink")}

	if runtime.GOOS == "windows" {
		exe, err := os.Executable()
		if err != nil {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("operation", "executable_path").
				Build()
		}
		dirs = append(dirs, filepath.Dir(exe))
	} else {
		dirs = append(dirs, "/etc/rangelink")
	}

	for _, dir := range dirs {
		if fileExists(filepath.Join(dir, configFileName)) {
			return []string{dir}, nil
		}
	}
	return dirs, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
