package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// StockFeedRoot is the prefix downstream stock-feed processing listens on.
const StockFeedRoot = "stock_feed"

// SanitizeFilename replaces spaces with underscores.
func SanitizeFilename(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}

// PartitionKey builds root/year=YYYY/month=MM/day=DD/<sanitized filename>.
func PartitionKey(root string, date time.Time, filename string) string {
	return fmt.Sprintf("%s/year=%04d/month=%02d/day=%02d/%s",
		strings.TrimSuffix(root, "/"),
		date.Year(),
		int(date.Month()),
		date.Day(),
		SanitizeFilename(filename),
	)
}

// DatePrefix is the listing prefix for every object partitioned under date.
func DatePrefix(root string, date time.Time) string {
	return fmt.Sprintf("%s/year=%04d/month=%02d/day=%02d/",
		strings.TrimSuffix(root, "/"), date.Year(), int(date.Month()), date.Day())
}

// StoreItemsKey is the object holding the items of one supplier in one eBay store.
func StoreItemsKey(ebayStore, supplier string) string {
	return fmt.Sprintf("store/ebay_store=%s/supplier=%s/data.csv", ebayStore, supplier)
}

// PartitionedKey is an object key split into its hive-style partition
// values, its plain path segments and the file name.
type PartitionedKey struct {
	Partitions map[string]string
	Paths      []string
	FileName   string
}

// ParsePartitionedKey splits key into partitions ("k=v" segments, also when
// the "=" is URL-encoded), plain directory segments and the trailing file.
func ParsePartitionedKey(key string) PartitionedKey {
	parsed := PartitionedKey{Partitions: map[string]string{}}

	segments := strings.Split(strings.Trim(key, "/"), "/")
	for i, segment := range segments {
		decoded := strings.ReplaceAll(segment, "%3D", "=")
		if i == len(segments)-1 && path.Ext(decoded) != "" {
			parsed.FileName = decoded
			continue
		}
		if k, v, ok := strings.Cut(decoded, "="); ok {
			parsed.Partitions[k] = v
			continue
		}
		if decoded != "" {
			parsed.Paths = append(parsed.Paths, decoded)
		}
	}

	return parsed
}
