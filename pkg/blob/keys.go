package blob

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Object names carry hour-minute-second-month-day-year so keys written
// by concurrent workers in the same second still differ by suffix.
const keyTimeLayout = "15040501022006"

// snapshotPrefix namespaces raw audit captures apart from extraction
// results within the same bucket
const snapshotPrefix = "snapshots"

// SnapshotKey builds the object key for the raw page capture of one
// batch: snapshots/{category}/{random}_{timestamp}.json
func SnapshotKey(category string, now time.Time) string {
	return fmt.Sprintf("%s/%s/%d_%s.json", snapshotPrefix, category, randomSuffix(), now.Format(keyTimeLayout))
}

// ResultKey builds the object key for one extraction-result object:
// {category}/{sanitized}_{random}_{timestamp}.json
func ResultKey(category string, now time.Time) string {
	return fmt.Sprintf("%s/%s_%d_%s.json", category, SanitizeCategory(category), randomSuffix(), now.Format(keyTimeLayout))
}

// SanitizeCategory turns a category such as maison/a-vendre into a
// path-safe file name component
func SanitizeCategory(category string) string {
	return strings.ReplaceAll(category, "/", "-")
}

func randomSuffix() int {
	return 1000 + rand.Intn(9000)
}
