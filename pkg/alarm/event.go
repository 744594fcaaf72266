package alarm

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// UnknownID is the sentinel used when an event carries no usable identity.
const UnknownID = "-"

// FlexInt tolerates JSON numbers, numeric strings and garbage. Garbage
// leaves it unset instead of failing the whole payload.
type FlexInt struct {
	Int   int
	Valid bool
}

func (v *FlexInt) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	switch t := raw.(type) {
	case float64:
		v.Int, v.Valid = int(t), true
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			v.Int, v.Valid = n, true
		}
	}
	return nil
}

func (v FlexInt) Or(def int) int {
	if v.Valid {
		return v.Int
	}
	return def
}

// FlexString accepts strings, numbers and booleans as a string value.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	switch t := raw.(type) {
	case string:
		*s = FlexString(t)
	case float64:
		*s = FlexString(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		*s = FlexString(strconv.FormatBool(t))
	}
	return nil
}

func (s FlexString) String() string { return string(s) }

// Event is the inbound alarm payload from an edge box. Every field is
// optional; missing fields degrade to safe defaults.
type Event struct {
	DeviceID   string `json:"deviceId"`
	GBID       string `json:"GBID"`
	IndexCode  string `json:"indexCode"`
	DeviceName string `json:"deviceName"`
	BoxName    string `json:"boxName"`
	BoxID      string `json:"boxId"`

	Type     FlexInt    `json:"type"`
	TypeName string     `json:"typeName"`
	TrackID  FlexInt    `json:"trackId"`
	SignTime FlexString `json:"signTime"`
	Score    FlexString `json:"score"`

	SignBigAvatarBase64 string `json:"signBigAvatarBase64"`
	SignBigAvatar       string `json:"signBigAvatar"`
	SignAvatar          string `json:"signAvatar"`

	Age    FlexString `json:"age"`
	Gender FlexString `json:"gender"`
	Mask   FlexString `json:"mask"`
	Count  FlexString `json:"count"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Identity resolves the stable device id: deviceId > GBID > indexCode.
func (e *Event) Identity() string {
	if id := firstNonEmpty(e.DeviceID, e.GBID, e.IndexCode); id != "" {
		return id
	}
	return UnknownID
}

// PositionKey resolves the channel identity under the device. The key
// priority (indexCode > GBID > deviceName) is a contract, not an accident:
// the index code is the most stable field the boxes emit.
func (e *Event) PositionKey() (channelKey, channelName, boxName, indexOrGBID string) {
	channelKey = firstNonEmpty(e.IndexCode, e.GBID, e.DeviceName)
	if channelKey == "" {
		channelKey = UnknownID
	}
	channelName = firstNonEmpty(e.DeviceName, e.IndexCode, e.GBID)
	if channelName == "" {
		channelName = UnknownID
	}
	return channelKey, channelName, e.BoxName, firstNonEmpty(e.IndexCode, e.GBID)
}

var signTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseSignTime normalizes the signal timestamp to second resolution.
// Accepts the textual layouts above plus 10/13 digit epoch values; anything
// unparseable falls back to now so ingestion never fails on a bad clock.
func ParseSignTime(s string, now time.Time) time.Time {
	if s == "" {
		return now.Truncate(time.Second)
	}
	for _, layout := range signTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		switch len(s) {
		case 10:
			return time.Unix(n, 0)
		case 13:
			return time.Unix(n/1000, 0)
		}
	}
	return now.Truncate(time.Second)
}

// SignedAt is the event's normalized timestamp.
func (e *Event) SignedAt(now time.Time) time.Time {
	return ParseSignTime(e.SignTime.String(), now)
}

// Day is the YYYYMMDD partition for the evidence image, aligned to the
// signal time so history rows and snapshot directories agree.
func (e *Event) Day(now time.Time) string {
	return e.SignedAt(now).Format("20060102")
}

// DedupKey fingerprints "the same physical detection": same device, same
// algorithm, same tracked object, same second.
func (e *Event) DedupKey(now time.Time) string {
	raw := fmt.Sprintf("%s|%d|%d|%s",
		e.Identity(),
		e.Type.Or(-1),
		e.TrackID.Or(-1),
		e.SignedAt(now).Format("2006-01-02 15:04:05"),
	)
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// algoNames maps the edge platform's algorithm type ids to display names.
var algoNames = map[int]string{
	11:    "restricted area intrusion",
	12:    "fence climbing",
	13:    "hard hat",
	14:    "reflective vest",
	15:    "phone call",
	16:    "sleeping on duty",
	18:    "running",
	19:    "fall",
	21:    "crowd gathering",
	30:    "loitering",
	31:    "people counting",
	36:    "illegal parking",
	49:    "cab gesture",
	1015:  "fatigue detection",
	1021:  "phone usage",
	1025:  "red light crossing",
	1062:  "missing face mask",
	11000: "person detection",
	12000: "face detection",
	1210:  "face recognition",
	2001:  "fire",
	2002:  "smoke",
	20500: "scene monitoring",
	2060:  "thrown object",
	20700: "animal detection",
	2080:  "ground condition",
	2090:  "city appearance",
	3001:  "vehicle detection",
	3002:  "plate recognition",
	3011:  "vehicle illegal parking",
}

// AlgoName renders "name(id)", preferring the payload's own type name.
func AlgoName(typeID FlexInt, typeName string) string {
	id := typeID.Or(-1)
	if typeName != "" {
		return fmt.Sprintf("%s(%d)", typeName, id)
	}
	if name, ok := algoNames[id]; ok {
		return fmt.Sprintf("%s(%d)", name, id)
	}
	return fmt.Sprintf("unknown(%d)", id)
}
