package timeutil

import "time"

// NowUnixMilli is the timestamp format stored in ctime/mtime columns.
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
