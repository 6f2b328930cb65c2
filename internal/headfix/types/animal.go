package types

import "strconv"

// TagID is the numeric identifier broadcast by an RFID transponder: the
// 10 hex characters of a tag record interpreted as a 40-bit integer.
type TagID uint64

// SessionTag is written in place of an animal tag for session-level events.
const SessionTag = "0000000000"

func (t TagID) String() string {
	return strconv.FormatUint(uint64(t), 10)
}

// Animal holds the cumulative per-animal counters for one process lifetime.
type Animal struct {
	Tag              TagID `json:"tag"`
	Entries          int   `json:"entries"`
	EntranceRewards  int   `json:"entrance_rewards"`
	HeadFixes        int   `json:"headfixes"`
	HeadFixedRewards int   `json:"headfixed_rewards"`
}
