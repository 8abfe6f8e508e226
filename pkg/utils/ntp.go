package utils

import (
	"time"

	"github.com/beevik/ntp"
)

const DefaultNTPServer = "pool.ntp.org"

// NTPNow returns the current time corrected by an NTP query. Boards without
// an RTC can boot with a stale clock, which would mis-stamp capture runs; on
// query failure the local clock is returned as-is.
func NTPNow(server string) time.Time {
	if server == "" {
		server = DefaultNTPServer
	}
	offset, err := NTPOffset(server)
	if err != nil {
		GetLogger().Warnf("ntp query %s failed: %s, using local clock", server, err)
		return time.Now()
	}
	return time.Now().Add(offset)
}

func NTPOffset(server string) (time.Duration, error) {
	rsp, err := ntp.Query(server)
	if err != nil {
		return 0, err
	}
	if err := rsp.Validate(); err != nil {
		return 0, err
	}
	return rsp.ClockOffset, nil
}
