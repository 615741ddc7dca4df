//go:build !linux

package disposition

import "time"

func birthTime(string) (time.Time, bool) { return time.Time{}, false }
