package kv

import "strconv"

// Key layout of the ephemeral store. Everything that touches redis builds
// its keys here so the namespace stays in one place.
const (
	PendingUpdatesKey = "optimistic_update:pending"
	PrintQueueKey     = "print_queue"
	PrintLeasesKey    = "print_queue:leases"
	PrintStatsKey     = "print_queue:stats"
	SyncLockKey       = "sync_lock"
	CacheStatsKey     = "colocacion:cache:stats"
	CacheProductGlob  = "colocacion:product:*"
	CacheFrequentGlob = "colocacion:frequent:*"
	SyncConflictGlob  = "sync_conflicts:*"
)

func OptimisticUpdateKey(id string) string { return "optimistic_update:" + id }

func UndoRedoKey(actorID, deviceID string) string {
	return "undo_redo:" + actorID + ":" + deviceID
}

func PrintJobKey(id string) string       { return "print_queue:job:" + id }
func PrintLeaseKey(id string) string     { return "print_queue:processing:" + id }
func PrintUserKey(actorID string) string { return "print_queue:user:" + actorID }

func CacheProductKey(barcode string) string  { return "colocacion:product:" + barcode }
func CacheFrequentKey(barcode string) string { return "colocacion:frequent:" + barcode }

func ProductLockKey(productID int64) string {
	return "product_lock:" + strconv.FormatInt(productID, 10)
}

func SyncConflictKey(productID int64, field string) string {
	return "sync_conflicts:" + strconv.FormatInt(productID, 10) + ":" + field
}

func SyncDecisionKey(productID int64, field string) string {
	return "sync_decisions:" + strconv.FormatInt(productID, 10) + ":" + field
}
