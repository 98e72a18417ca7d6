package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"smartid-backend/internal/attendance"
)

type Encoding string

const (
	EncodingUTF8     Encoding = "utf8"
	EncodingShiftJIS Encoding = "sjis" // Excel（CP932）向け
)

var header = []string{
	"record_id", "person_id", "display_name", "entry_time", "exit_time",
	"status", "verification_method", "confidence_score", "station_id",
}

func ParseEncoding(v string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "utf8", "utf-8":
		return EncodingUTF8, nil
	case "sjis", "shift_jis", "cp932":
		return EncodingShiftJIS, nil
	}
	return "", fmt.Errorf("unsupported encoding %q", v)
}

func (e Encoding) ContentType() string {
	if e == EncodingShiftJIS {
		return "text/csv; charset=Shift_JIS"
	}
	return "text/csv; charset=utf-8"
}

// WriteCSV: レコードを CSV で書く。時刻は loc の現地時刻（RFC3339）
func WriteCSV(dst io.Writer, recs []attendance.Record, loc *time.Location, enc Encoding) error {
	out := dst
	var tw *transform.Writer
	if enc == EncodingShiftJIS {
		// Shift_JIS に無い文字（絵文字・外字など）は置換文字にする
		tw = transform.NewWriter(dst, encoding.ReplaceUnsupported(japanese.ShiftJIS.NewEncoder()))
		out = tw
	}

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range recs {
		if err := w.Write(row(r, loc)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if tw != nil {
		return tw.Close()
	}
	return nil
}

func row(r attendance.Record, loc *time.Location) []string {
	exit, status := "", attendance.StatusInside
	if r.ExitAt != nil {
		exit = r.ExitAt.In(loc).Format(time.RFC3339)
		status = attendance.StatusExited
	}
	score := ""
	if r.ConfidenceScore != nil {
		score = strconv.FormatFloat(*r.ConfidenceScore, 'f', -1, 64)
	}
	return []string{
		r.RecordID,
		r.PersonID,
		r.DisplayName,
		r.EntryAt.In(loc).Format(time.RFC3339),
		exit,
		status,
		r.VerificationMethod,
		score,
		r.StationID,
	}
}
