package dzi

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngTile(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func dziDoc(w, h int) string {
	return fmt.Sprintf(`<Image Format="png" TileSize="256" Overlap="1"><Size Width="%d" Height="%d"/></Image>`, w, h)
}

func TestHTTPSourceURLs(t *testing.T) {
	tile := pngTile(t, 16, 16)
	var gotPaths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.URL.Path)
		switch r.URL.Path {
		case "/scans/slide.dzi":
			fmt.Fprint(w, dziDoc(700, 500))
		case "/scans/slide_files/2/1_0.png":
			w.Write(tile)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src, err := Open(context.Background(), srv.URL+"/scans/slide.dzi", Options{})
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, "slide", src.Name())
	assert.NotEmpty(t, src.ID())
	assert.Equal(t, 700, src.Manifest().Size.Width)

	var buf bytes.Buffer
	require.NoError(t, src.CopyTile(context.Background(), 2, 1, 0, &buf))
	assert.Equal(t, tile, buf.Bytes())
	assert.Contains(t, gotPaths, "/scans/slide_files/2/1_0.png")
}

func TestHTTPSourceRetry(t *testing.T) {
	tile := pngTile(t, 16, 16)
	failures := 1
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/a.dzi" {
			fmt.Fprint(w, dziDoc(100, 100))
			return
		}
		hits++
		if failures > 0 {
			failures--
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write(tile)
	}))
	defer srv.Close()

	src, err := Open(context.Background(), srv.URL+"/a.dzi", Options{Retries: 3, RetryInterval: time.Millisecond})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, src.CopyTile(context.Background(), 0, 0, 0, &buf))
	assert.Equal(t, tile, buf.Bytes())
	assert.Equal(t, 2, hits, "one failure plus one success")

	hs := src.(*httpSource)
	assert.EqualValues(t, 1, hs.Retries())
}

func TestHTTPSourceExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/a.dzi" {
			fmt.Fprint(w, dziDoc(100, 100))
			return
		}
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	src, err := Open(context.Background(), srv.URL+"/a.dzi", Options{Retries: 3, RetryInterval: time.Millisecond})
	require.NoError(t, err)

	var buf bytes.Buffer
	err = src.CopyTile(context.Background(), 0, 0, 0, &buf)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Len(t, fe.Attempts, 3)
}

func TestHTTPSourceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/a.dzi" {
			fmt.Fprint(w, dziDoc(100, 100))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	src, err := Open(context.Background(), srv.URL+"/a.dzi", Options{Retries: 2, RetryInterval: time.Millisecond})
	require.NoError(t, err)

	var buf bytes.Buffer
	err = src.CopyTile(context.Background(), 0, 0, 0, &buf)
	assert.ErrorIs(t, err, ErrTileNotFound)
}

func TestLocalSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "map.dzi"), []byte(dziDoc(300, 300)), 0o644))
	tilesDir := filepath.Join(dir, "map_files", "9")
	require.NoError(t, os.MkdirAll(tilesDir, 0o755))
	tile := pngTile(t, 32, 32)
	require.NoError(t, os.WriteFile(filepath.Join(tilesDir, "0_0.png"), tile, 0o644))

	src, err := Open(context.Background(), "file://"+filepath.Join(dir, "map.dzi"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "map", src.Name())
	assert.Equal(t, 9, src.Manifest().BaseLevel())

	var buf bytes.Buffer
	require.NoError(t, src.CopyTile(context.Background(), 9, 0, 0, &buf))
	assert.Equal(t, tile, buf.Bytes())

	err = src.CopyTile(context.Background(), 9, 5, 5, &buf)
	assert.ErrorIs(t, err, ErrTileNotFound)
}

func TestRasterSource(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 300, 260))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	src, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)
	man := src.Manifest()
	assert.Equal(t, 256, man.TileSize)
	assert.Equal(t, 0, man.Overlap)
	assert.Equal(t, 300, man.Size.Width)
	assert.Equal(t, 260, man.Size.Height)
	assert.Equal(t, "photo", src.Name())

	// right-edge tile is the 44px remainder
	var tb bytes.Buffer
	require.NoError(t, src.CopyTile(context.Background(), man.BaseLevel(), 1, 0, &tb))
	dec, err := png.Decode(bytes.NewReader(tb.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 44, dec.Bounds().Dx())
	assert.Equal(t, 256, dec.Bounds().Dy())

	err = src.CopyTile(context.Background(), man.BaseLevel(), 9, 9, &tb)
	assert.ErrorIs(t, err, ErrTileNotFound)
}

func TestDecodeTile(t *testing.T) {
	data := pngTile(t, 20, 10)
	img, err := DecodeTile("png", data)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Rect.Dx())
	assert.Equal(t, 10, img.Rect.Dy())

	_, err = DecodeTile("jpeg", []byte("garbage"))
	assert.ErrorIs(t, err, ErrDecodeFailed)
}
