package constants

// Advisory lock keys. The high bits spell "gjob" so they do not collide with
// keys of other applications sharing the database.
const (
	MigrationLock int64 = 0x676a6f62_00000001

	// ClaimLockSpace is the first key of the two-key transaction lock that
	// serializes claims within one project; the second is hashtext(project_id).
	ClaimLockSpace int32 = 0x676a6f62
)

// Lease resources held through lock.DistributedLockManager.
const (
	ReaperLock = "genjob:reaper"
)

const Schema = "genjob_schema"
