package utils

import "strconv"

// The v1 segment bumps when the cached payload shape changes.
const courseListCachePrefix = "courses:list:v1"

func BuildCourseListCacheKey(limit int, cursor string) string {
	return courseListCachePrefix + ":limit=" + strconv.Itoa(limit) + ":cursor=" + cursor
}

// FirstPageCacheKey is the only key mutations bother invalidating eagerly;
// deeper pages expire by TTL.
func FirstPageCacheKey(limit int) string {
	return BuildCourseListCacheKey(limit, "")
}
