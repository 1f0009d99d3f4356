package imageproc

import (
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/tidalbase/quadrat/internal/domain"
)

// EXIF tag keys after normalization. Tag names are converted from the
// CamelCase the decoder reports to snake_case before being stored in the
// image's data column, so downstream consumers never see decoder naming.
const (
	exifOrientation      = "orientation"
	exifGPSLatitude      = "gps_latitude"
	exifGPSLatitudeRef   = "gps_latitude_ref"
	exifGPSLongitude     = "gps_longitude"
	exifGPSLongitudeRef  = "gps_longitude_ref"
	exifGPSDateStamp     = "gps_date_stamp"
	exifGPSTimeStamp     = "gps_time_stamp"
	exifDateTimeOriginal = "date_time_original"
	exifOffsetTime       = "offset_time"
)

// ParseEXIF decodes the EXIF block of an image and returns a normalized
// tag map. A missing or corrupt block returns nil; preprocessing treats
// that as an image with no metadata.
func ParseEXIF(r io.Reader) map[string]any {
	x, err := exif.Decode(r)
	if err != nil {
		return nil
	}

	tags := make(map[string]any)
	x.Walk(walkFunc(func(name exif.FieldName, tag *tiff.Tag) error {
		if v := tagValue(tag); v != nil {
			tags[camelToSnake(string(name))] = v
		}
		return nil
	}))
	if len(tags) == 0 {
		return nil
	}
	return tags
}

type walkFunc func(exif.FieldName, *tiff.Tag) error

func (f walkFunc) Walk(name exif.FieldName, tag *tiff.Tag) error {
	return f(name, tag)
}

// tagValue flattens a TIFF tag into plain Go values that survive a JSON
// round trip: strings, float64s, or slices of float64.
func tagValue(tag *tiff.Tag) any {
	switch tag.Format() {
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return nil
		}
		return strings.TrimSpace(s)
	case tiff.IntVal:
		vals := make([]float64, 0, int(tag.Count))
		for i := 0; i < int(tag.Count); i++ {
			n, err := tag.Int(i)
			if err != nil {
				return nil
			}
			vals = append(vals, float64(n))
		}
		return scalarOrSlice(vals)
	case tiff.RatVal, tiff.FloatVal:
		vals := make([]float64, 0, int(tag.Count))
		for i := 0; i < int(tag.Count); i++ {
			f, err := tag.Float(i)
			if err != nil {
				return nil
			}
			vals = append(vals, f)
		}
		return scalarOrSlice(vals)
	default:
		return nil
	}
}

func scalarOrSlice(vals []float64) any {
	switch len(vals) {
	case 0:
		return nil
	case 1:
		return vals[0]
	default:
		return vals
	}
}

// camelToSnake rewrites decoder field names like "DateTimeOriginal" to
// "date_time_original". Runs of capitals such as "GPS" stay together.
func camelToSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (!unicode.IsUpper(runes[i-1]) ||
				(i+1 < len(runes) && !unicode.IsUpper(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExtractGeolocation derives a decimal-degree point from the GPS tags.
// It requires latitude, longitude, and both hemisphere refs; anything
// less returns nil rather than a half-specified location.
func ExtractGeolocation(tags map[string]any) *domain.GeoPoint {
	lat, ok := dmsValue(tags[exifGPSLatitude])
	if !ok {
		return nil
	}
	lon, ok := dmsValue(tags[exifGPSLongitude])
	if !ok {
		return nil
	}
	latRef, ok := tags[exifGPSLatitudeRef].(string)
	if !ok {
		return nil
	}
	lonRef, ok := tags[exifGPSLongitudeRef].(string)
	if !ok {
		return nil
	}

	if strings.EqualFold(latRef, "S") {
		lat = -lat
	}
	if strings.EqualFold(lonRef, "W") {
		lon = -lon
	}
	return &domain.GeoPoint{Latitude: lat, Longitude: lon}
}

// dmsValue converts a degrees/minutes/seconds triple to decimal degrees.
func dmsValue(v any) (float64, bool) {
	parts, ok := v.([]float64)
	if !ok || len(parts) != 3 {
		return 0, false
	}
	return parts[0] + parts[1]/60 + parts[2]/3600, true
}

// ExtractTimestamp derives the UTC capture instant. The GPS date and time
// stamps are preferred because they are already UTC; otherwise the local
// DateTimeOriginal is shifted by OffsetTime. Without an offset the local
// time cannot be placed on the UTC timeline, so no timestamp is derived.
func ExtractTimestamp(tags map[string]any) *time.Time {
	if ts := gpsTimestamp(tags); ts != nil {
		return ts
	}

	raw, ok := tags[exifDateTimeOriginal].(string)
	if !ok {
		return nil
	}
	local, err := time.Parse("2006:01:02 15:04:05", raw)
	if err != nil {
		return nil
	}

	offset, ok := parseUTCOffset(tags[exifOffsetTime])
	if !ok {
		return nil
	}
	ts := local.Add(-offset).UTC()
	return &ts
}

func gpsTimestamp(tags map[string]any) *time.Time {
	date, ok := tags[exifGPSDateStamp].(string)
	if !ok {
		return nil
	}
	clock, ok := tags[exifGPSTimeStamp].([]float64)
	if !ok || len(clock) != 3 {
		return nil
	}
	day, err := time.Parse("2006:01:02", date)
	if err != nil {
		return nil
	}
	ts := day.Add(time.Duration(clock[0])*time.Hour +
		time.Duration(clock[1])*time.Minute +
		time.Duration(clock[2]*float64(time.Second))).UTC()
	return &ts
}

// parseUTCOffset accepts either the EXIF "+HH:MM" string form or a bare
// numeric offset in hours.
func parseUTCOffset(v any) (time.Duration, bool) {
	switch off := v.(type) {
	case string:
		t, err := time.Parse("-07:00", off)
		if err != nil {
			return 0, false
		}
		_, secs := t.Zone()
		return time.Duration(secs) * time.Second, true
	case float64:
		return time.Duration(off * float64(time.Hour)), true
	default:
		return 0, false
	}
}

// Orientation returns the EXIF orientation code, or 0 when the tag is
// absent or malformed.
func Orientation(tags map[string]any) int {
	switch v := tags[exifOrientation].(type) {
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
