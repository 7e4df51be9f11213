// Package scan finds media files that can be transcribed.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".m4a": true,
	".ogg": true, ".wma": true, ".aac": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mkv": true, ".mov": true,
	".wmv": true, ".webm": true, ".flv": true,
}

// IsAudio reports whether path has a supported audio extension.
func IsAudio(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsVideo reports whether path has a supported video extension.
func IsVideo(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsMedia reports whether path is audio or video.
func IsMedia(path string) bool {
	return IsAudio(path) || IsVideo(path)
}

// Scan returns sorted absolute paths of media files in dir. Hidden entries are skipped.
func Scan(dir string, recursive bool) ([]string, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var out []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		hidden := strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if !recursive || hidden {
				return filepath.SkipDir
			}
			return nil
		}
		if !hidden && d.Type().IsRegular() && IsMedia(path) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	sort.Strings(out)
	return out, nil
}

// Expand resolves a mix of files and directories into a de-duplicated media file list.
func Expand(inputs []string, recursive bool) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}

	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", in, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !IsMedia(abs) {
				return nil, fmt.Errorf("unsupported media file: %s", in)
			}
			add(abs)
			continue
		}
		files, err := Scan(abs, recursive)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(f)
		}
	}
	return out, nil
}
