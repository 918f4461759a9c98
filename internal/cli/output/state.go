package output

const (
	reset  = "\033[0m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)

func paint(enabled bool, code, s string) string {
	if !enabled {
		return s
	}
	return code + s + reset
}

// State colors a data state name: READY green, TOMBSTONED yellow, DELETED
// red, COPYING cyan. Other values are returned unchanged.
func State(s string, color bool) string {
	switch s {
	case "READY":
		return paint(color, green, s)
	case "TOMBSTONED":
		return paint(color, yellow, s)
	case "DELETED":
		return paint(color, red, s)
	case "COPYING":
		return paint(color, cyan, s)
	default:
		return s
	}
}

// Pending renders a pending target state cell; no pending transition is "-".
func Pending(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Outcome is the structured result of a lifecycle request, printed for
// -o json and -o yaml. Error is the snake_case error code when OK is false.
type Outcome struct {
	TabletID string `json:"tablet_id" yaml:"tablet_id"`
	Target   string `json:"target" yaml:"target"`
	OK       bool   `json:"ok" yaml:"ok"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
}
