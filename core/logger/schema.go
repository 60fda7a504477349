package logger

import "strings"

// status values accepted verbatim; anything else is kept but lower-cased.
var knownStatus = map[string]struct{}{
	"ok":           {},
	"fail":         {},
	"skip":         {},
	"retry":        {},
	"rate_limited": {},
	"cancelled":    {},
	"dropped":      {},
}

func normalizeLevel(level string) string {
	switch strings.ToLower(level) {
	case "":
		return "INFO"
	case "warning":
		return "WARN"
	default:
		return strings.ToUpper(level)
	}
}

func normalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "error" {
		return "fail"
	}
	return status
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"cb_key",
	"step",
	"flow",
	"method",
	"order_id",
	"order_status",
	"duration_ms",
	"http_code",
	"mode",
	"listen",
	"err",
	"err_code",
	"attempts",
	"backoff_ms",
}
