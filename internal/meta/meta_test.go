package meta

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/embedview/internal/embedding"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	paths := []string{
		"/data/images/cat.jpg",
		"/data/my images/cat 01.jpg",
		"/data/이미지/고양이.jpg",
		"/data/a+b=c&d?e#f.jpg",
		"/data/100%/literal%20percent.jpg",
		"/data/semi;colon,comma:colon@at$dollar!bang'quote(paren)*star.jpg",
		"C:\\Windows\\Temp\\img.jpg",
		"/data/\x00\xff\xfe/invalid-utf8.jpg",
		"",
	}

	for _, p := range paths {
		t.Run(fmt.Sprintf("%q", p), func(t *testing.T) {
			token := EncodeRef(p)
			got, err := DecodeRef(token)
			require.NoError(t, err)
			assert.Equal(t, p, got)
		})
	}
}

func TestEncodeRef_EscapesReserved(t *testing.T) {
	token := EncodeRef("/a b/c+d&e=f?g#h%i:j@k")
	assert.Equal(t, "%2Fa%20b%2Fc%2Bd%26e%3Df%3Fg%23h%25i%3Aj%40k", token)

	for _, c := range "/ +&=?#:@;,$!'()*[]" {
		assert.NotContains(t, token, string(c))
	}
	assert.Equal(t, "AZaz09-._~", EncodeRef("AZaz09-._~"))
}

func TestDecodeRef_Invalid(t *testing.T) {
	for _, token := range []string{"%zz", "%2Fdata%2F100%.jpg", "%"} {
		_, err := DecodeRef(token)
		assert.Error(t, err, token)
	}

	token := EncodeRef("/data/100%.jpg")
	assert.Equal(t, "%2Fdata%2F100%25.jpg", token)
	got, err := DecodeRef(token)
	require.NoError(t, err)
	assert.Equal(t, "/data/100%.jpg", got)
}

func TestImageURL(t *testing.T) {
	assert.Equal(t, "/get_image?path=%2Fdata%2Fcat%201.jpg", ImageURL("/data/cat 1.jpg"))
}

func TestRawQueryValue(t *testing.T) {
	v, ok := RawQueryValue("x=1&path=%2Fa%2Bb&y=2", "path")
	require.True(t, ok)
	assert.Equal(t, "%2Fa%2Bb", v)

	_, ok = RawQueryValue("x=1", "path")
	assert.False(t, ok)

	v, ok = RawQueryValue("path", "path")
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestAssemble(t *testing.T) {
	n := 50
	coords := make([]embedding.Coordinate, n)
	labels := make([]string, n)
	paths := make([]string, n)
	for i := 0; i < n; i++ {
		coords[i] = embedding.Coordinate{float64(i), float64(-i), 0.5}
		labels[i] = fmt.Sprintf("label-%d", i)
		paths[i] = fmt.Sprintf("/images/set a/%d.jpg", i)
	}

	records := Assemble(coords, labels, paths)
	require.Len(t, records, n)
	for i, r := range records {
		assert.Equal(t, i, r.Idx)
		assert.Equal(t, float64(i), r.X)
		assert.Equal(t, float64(-i), r.Y)
		assert.Equal(t, 0.5, r.Z)
		assert.Equal(t, labels[i], r.Label)
		assert.True(t, strings.HasPrefix(r.ImgURL, ImageRoute+"?path="))
		assert.Contains(t, r.ImgURL, EncodeRef(paths[i]))
	}
}

func TestAssemble_Empty(t *testing.T) {
	records := Assemble(nil, nil, nil)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestPointRecordJSON(t *testing.T) {
	b, err := json.Marshal(PointRecord{Idx: 3, X: 1.5, Y: -2, Z: 0, Label: "dog", ImgURL: "/get_image?path=%2Fd.jpg"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"idx":3,"x":1.5,"y":-2,"z":0,"label":"dog","img_url":"/get_image?path=%2Fd.jpg"}`, string(b))
}
