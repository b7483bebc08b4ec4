package util

const TimeFormat = "2006-01-02 15:04:05"

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

const MaxAvatarSize = 2 << 20

const (
	TimeRangeAll   = "all"
	TimeRangeWeek  = "week"
	TimeRangeMonth = "month"
)
