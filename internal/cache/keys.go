package cache

import "fmt"

const (
	invalidationTTLMinutes = 5

	itemCountPattern = "owner:*:item_count"
)

var listingPrefixes = []string{
	"listing:recent:",
	"listing:trending:",
	"listing:featured:",
	"feed:",
}

func urlsKey(contentID string) string {
	return fmt.Sprintf("photo:%s:urls", contentID)
}

func metaKey(contentID string) string {
	return fmt.Sprintf("photo:%s:meta", contentID)
}

func invalidationKey(contentID string) string {
	return fmt.Sprintf("invalidation:photo:%s", contentID)
}

func ownerKey(ownerID, field string) string {
	return fmt.Sprintf("owner:%s:%s", ownerID, field)
}

func ownerPattern(ownerID string) string {
	return fmt.Sprintf("owner:%s:*", ownerID)
}
