package analysis

import (
	"fmt"
	"math"
)

// SecondsToTimeString 將秒數轉為 "MM:SS"，超過一小時則為 "HH:MM:SS"。
// 小數部分直接捨去，負數視為 0。
func SecondsToTimeString(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	if seconds > math.MaxInt32 {
		seconds = math.MaxInt32
	}
	total := int64(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
