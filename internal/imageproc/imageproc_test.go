package imageproc

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidalbase/quadrat/internal/domain"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 13), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPreprocess(t *testing.T) {
	t.Run("decodable image without exif", func(t *testing.T) {
		blob := encodePNG(t, 40, 30)

		res, err := Preprocess(blob)
		require.NoError(t, err)

		assert.Equal(t, 40, res.Width)
		assert.Equal(t, 30, res.Height)
		assert.Equal(t, blob, res.Blob, "upright image is stored byte for byte")
		assert.Nil(t, res.EXIF)
		assert.Nil(t, res.Location)
		assert.Nil(t, res.Timestamp)
		assert.Len(t, res.Checksum, 64)
	})

	t.Run("non-image blob", func(t *testing.T) {
		_, err := Preprocess([]byte("definitely not pixels"))
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})

	t.Run("checksum tracks blob content", func(t *testing.T) {
		a, err := Preprocess(encodePNG(t, 10, 10))
		require.NoError(t, err)
		b, err := Preprocess(encodePNG(t, 10, 11))
		require.NoError(t, err)
		assert.NotEqual(t, a.Checksum, b.Checksum)

		again, err := Preprocess(encodePNG(t, 10, 10))
		require.NoError(t, err)
		assert.Equal(t, a.Checksum, again.Checksum)
	})
}

func TestCorrectOrientation(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 2))

	tests := []struct {
		name        string
		tags        map[string]any
		wantW       int
		wantH       int
		wantRotated bool
	}{
		{"no tags", nil, 4, 2, false},
		{"orientation 1", map[string]any{"orientation": float64(1)}, 4, 2, false},
		{"orientation 3", map[string]any{"orientation": float64(3)}, 4, 2, true},
		{"orientation 6", map[string]any{"orientation": float64(6)}, 2, 4, true},
		{"orientation 8", map[string]any{"orientation": float64(8)}, 2, 4, true},
		{"string code", map[string]any{"orientation": "6"}, 2, 4, true},
		{"garbage code", map[string]any{"orientation": "sideways"}, 4, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, rotated := CorrectOrientation(src, tt.tags)
			assert.Equal(t, tt.wantRotated, rotated)
			assert.Equal(t, tt.wantW, out.Bounds().Dx())
			assert.Equal(t, tt.wantH, out.Bounds().Dy())
		})
	}
}

func TestExtractGeolocation(t *testing.T) {
	tests := []struct {
		name string
		tags map[string]any
		want *domain.GeoPoint
	}{
		{
			name: "north east",
			tags: map[string]any{
				"gps_latitude":      []float64{16, 30, 0},
				"gps_latitude_ref":  "N",
				"gps_longitude":     []float64{145, 45, 36},
				"gps_longitude_ref": "E",
			},
			want: &domain.GeoPoint{Latitude: 16.5, Longitude: 145.76},
		},
		{
			name: "south west negates",
			tags: map[string]any{
				"gps_latitude":      []float64{8, 15, 0},
				"gps_latitude_ref":  "S",
				"gps_longitude":     []float64{80, 0, 0},
				"gps_longitude_ref": "W",
			},
			want: &domain.GeoPoint{Latitude: -8.25, Longitude: -80},
		},
		{
			name: "missing ref",
			tags: map[string]any{
				"gps_latitude":  []float64{8, 15, 0},
				"gps_longitude": []float64{80, 0, 0},
			},
			want: nil,
		},
		{
			name: "truncated triple",
			tags: map[string]any{
				"gps_latitude":      []float64{8, 15},
				"gps_latitude_ref":  "N",
				"gps_longitude":     []float64{80, 0, 0},
				"gps_longitude_ref": "E",
			},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractGeolocation(tt.tags)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, tt.want.Latitude, got.Latitude, 1e-9)
			assert.InDelta(t, tt.want.Longitude, got.Longitude, 1e-9)
		})
	}
}

func TestExtractTimestamp(t *testing.T) {
	t.Run("gps stamps win", func(t *testing.T) {
		tags := map[string]any{
			"gps_date_stamp":     "2026:03:14",
			"gps_time_stamp":     []float64{9, 26, 53},
			"date_time_original": "2026:03:14 19:26:53",
		}
		got := ExtractTimestamp(tags)
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC), *got)
	})

	t.Run("offset time shifts local capture", func(t *testing.T) {
		tags := map[string]any{
			"date_time_original": "2026:03:14 19:26:53",
			"offset_time":        "+10:00",
		}
		got := ExtractTimestamp(tags)
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC), *got)
	})

	t.Run("numeric offset in hours", func(t *testing.T) {
		tags := map[string]any{
			"date_time_original": "2026:03:14 19:26:53",
			"offset_time":        float64(-5),
		}
		got := ExtractTimestamp(tags)
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2026, 3, 15, 0, 26, 53, 0, time.UTC), *got)
	})

	t.Run("local time without offset is unusable", func(t *testing.T) {
		tags := map[string]any{"date_time_original": "2026:03:14 19:26:53"}
		assert.Nil(t, ExtractTimestamp(tags))
	})

	t.Run("nothing usable", func(t *testing.T) {
		assert.Nil(t, ExtractTimestamp(map[string]any{"offset_time": "+10:00"}))
	})
}

func TestCamelToSnake(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Orientation", "orientation"},
		{"DateTimeOriginal", "date_time_original"},
		{"GPSLatitude", "gps_latitude"},
		{"GPSLatitudeRef", "gps_latitude_ref"},
		{"OffsetTime", "offset_time"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, camelToSnake(tt.in), tt.in)
	}
}

func TestUniqueNameRoundTrip(t *testing.T) {
	siteID := uuid.New()
	imageID := uuid.New()

	name := UniqueName(siteID, imageID, "Quadrat_017.JPG")
	assert.True(t, strings.HasSuffix(name, ".jpg"))
	assert.Equal(t, strings.ToLower(name), name)
	assert.NotContains(t, name, siteID.String())
	assert.NotContains(t, name, imageID.String())

	gotSite, gotImage, err := DecodeUniqueName(name)
	require.NoError(t, err)
	assert.Equal(t, siteID, gotSite)
	assert.Equal(t, imageID, gotImage)
}

func TestDecodeUniqueNameRejectsGarbage(t *testing.T) {
	_, _, err := DecodeUniqueName("not-a-real-name.jpg")
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestChecksum(t *testing.T) {
	sum, err := Checksum(strings.NewReader("reef"))
	require.NoError(t, err)
	// echo -n reef | sha256sum
	assert.Equal(t, "3297cb78604badb2f37a572b83cfcd7cb2fb43a3acf1e0830d7f7e832ea98c87", sum)
}

func TestGenerateThumbnail(t *testing.T) {
	t.Run("large image fits bounding box", func(t *testing.T) {
		blob := encodePNG(t, 1200, 900)

		thumb, err := GenerateThumbnail(blob)
		require.NoError(t, err)

		img, _, err := image.Decode(bytes.NewReader(thumb))
		require.NoError(t, err)
		assert.Equal(t, domain.ThumbnailMaxDimension, img.Bounds().Dx())
		assert.Equal(t, 375, img.Bounds().Dy())
	})

	t.Run("small image is not upscaled", func(t *testing.T) {
		blob := encodePNG(t, 120, 80)

		thumb, err := GenerateThumbnail(blob)
		require.NoError(t, err)

		img, _, err := image.Decode(bytes.NewReader(thumb))
		require.NoError(t, err)
		assert.Equal(t, 120, img.Bounds().Dx())
		assert.Equal(t, 80, img.Bounds().Dy())
	})

	t.Run("non-image blob", func(t *testing.T) {
		_, err := GenerateThumbnail([]byte("nope"))
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})
}
