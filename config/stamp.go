package config

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"
)

// Stamp is a time in the problem file. It is written either as seconds since the Unix epoch, or as
// {"sec": s, "nsec": n}. A float64 near present day epochs only resolves about 2e-7 s, so stamps
// that must be exact to the nanosecond should use the object form.
type Stamp struct {
	Sec  int64 `json:"sec"`
	Nsec int64 `json:"nsec"`
}

// StampFromSeconds converts seconds since the Unix epoch to a Stamp, rounded to the nearest
// nanosecond.
func StampFromSeconds(seconds float64) Stamp {
	sec, frac := math.Modf(seconds)
	return StampFromTime(time.Unix(int64(sec), int64(math.Round(frac*1e9))))
}

// StampFromTime returns the Stamp of t.
func StampFromTime(t time.Time) Stamp {
	return Stamp{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// Time returns the stamp as a time.Time.
func (s Stamp) Time() time.Time {
	return time.Unix(s.Sec, s.Nsec)
}

// Validate ensures the nanoseconds are within a second.
func (s Stamp) Validate(path string) error {
	if s.Nsec < 0 || s.Nsec >= int64(time.Second) {
		return errors.Errorf("%s: \"nsec\" must be in [0, 1e9), got %d", path, s.Nsec)
	}
	return nil
}

// UnmarshalJSON accepts a number of seconds or a {"sec", "nsec"} object.
func (s *Stamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		type plainStamp Stamp
		var plain plainStamp
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&plain); err != nil {
			return errors.Wrap(err, "invalid stamp")
		}
		*s = Stamp(plain)
		return nil
	}
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return errors.Wrap(err, "stamp must be a number of seconds or a {\"sec\", \"nsec\"} object")
	}
	*s = StampFromSeconds(seconds)
	return nil
}
