package alarm

import (
	"strconv"
	"strings"
	"time"

	"algoedge.xyz/alarm-relay-service/pkg/models"
)

// parseHHMM returns minutes since midnight, ok=false on malformed input.
func parseHHMM(s string) (int, bool) {
	hh, mm, found := strings.Cut(s, ":")
	if !found {
		return 0, false
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// inTimeWindow evaluates one segment against a clock time in minutes.
// start==end matches always; start>end spans midnight (22:00-06:00 matches
// late night and early morning). Malformed bounds fail open.
func inTimeWindow(nowMin int, startHHMM, endHHMM string) bool {
	if startHHMM == "" || endHHMM == "" {
		return true
	}
	s, ok1 := parseHHMM(startHHMM)
	e, ok2 := parseHHMM(endHHMM)
	if !ok1 || !ok2 {
		return true
	}
	switch {
	case s == e:
		return true
	case s < e:
		return s <= nowMin && nowMin < e
	default:
		return nowMin >= s || nowMin < e
	}
}

// weekdayMon0 maps time.Weekday to the stored convention 0=Monday..6=Sunday.
func weekdayMon0(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// isTimeOK decides whether now falls inside the channel's permitted windows.
// A channel with no rule rows at all is unrestricted; once any rule exists,
// a weekday with zero segments is closed for that day. Segments form a
// union, they need not be sorted or disjoint.
func (a *Alarm) isTimeOK(deviceID, channelKey string, now time.Time) (bool, error) {
	var count int64
	err := a.Db.Conn.Model(&models.ChannelRule{}).
		Where("device_id = ? AND channel_key = ?", deviceID, channelKey).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count == 0 {
		return true, nil
	}

	var segs []models.ChannelRule
	err = a.Db.Conn.
		Where("device_id = ? AND channel_key = ? AND weekday = ?", deviceID, channelKey, weekdayMon0(now)).
		Order("seg_idx asc").
		Find(&segs).Error
	if err != nil {
		return false, err
	}

	nowMin := now.Hour()*60 + now.Minute()
	for _, seg := range segs {
		if inTimeWindow(nowMin, seg.StartHHMM, seg.EndHHMM) {
			return true, nil
		}
	}
	return false, nil
}
