package cli

import (
	"fmt"
	"strconv"
	"time"
)

// ParseTimeout reads a --timeout value: a bare integer counts seconds,
// anything else is a Go duration such as 90s or 15m.
func ParseTimeout(s string) (time.Duration, error) {
	var d time.Duration
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		d = time.Duration(n) * time.Second
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, ExitError{Code: ExitConfig, Msg: fmt.Sprintf("invalid --timeout %q: want seconds or a duration like 90s", s)}
	}
	if d <= 0 {
		return 0, ExitError{Code: ExitConfig, Msg: fmt.Sprintf("invalid --timeout %q: must be positive", s)}
	}
	return d, nil
}
