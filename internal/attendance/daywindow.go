package attendance

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// DayWindow: ローカル日の範囲 [Start, End)
type DayWindow struct {
	Start time.Time
	End   time.Time
}

// LocalDayWindow: t を含む loc 上の暦日。日付境界の計算はここだけで行う
func LocalDayWindow(t time.Time, loc *time.Location) DayWindow {
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	// AddDate なので夏時間の日は 23h / 25h になる
	return DayWindow{Start: start, End: start.AddDate(0, 0, 1)}
}

// Key: "YYYY-MM-DD"（entry_day カラムの値）
func (w DayWindow) Key() string {
	return w.Start.Format(DateLayout)
}

func (w DayWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// ParseDay: "YYYY-MM-DD" または "today"（空文字も today 扱い）
func ParseDay(v string, now time.Time, loc *time.Location) (DayWindow, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" || v == "today" {
		return LocalDayWindow(now, loc), nil
	}
	d, err := time.ParseInLocation(DateLayout, v, loc)
	if err != nil {
		return DayWindow{}, err
	}
	return LocalDayWindow(d, loc), nil
}
