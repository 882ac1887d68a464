package core

import (
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

var (
	slugInvalidRegex = regexp.MustCompile(`[^a-z0-9-]+`)
	slugDashRegex    = regexp.MustCompile(`-{2,}`)
)

// Slugify converts `s` into a URL-safe slug: lowered, non-alphanumeric runs
// collapsed into single dashes.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	s = slugInvalidRegex.ReplaceAllString(s, "-")
	s = slugDashRegex.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Getwd tries to find the project root.
// go-test changes the working directory to the test package being run during tests;
// see: https://stackoverflow.com/questions/23847003/golang-tests-and-working-directory
func Getwd() string {
	root := "shule"
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(currDir); err == nil {
			dirBase := filepath.Base(currDir)
			if dirBase == root && fi.IsDir() {
				return currDir
			}
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd // fall back to the actual working directory
		}
		currDir = newDir
	}
}
