package dataset

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeIdxImages(t *testing.T, path string, pixels []byte, count, rows, cols int, compress bool) {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, binary.Write(buf, binary.BigEndian, [4]uint32{imagesMagic, uint32(count), uint32(rows), uint32(cols)}))
	buf.Write(pixels)
	writeIdxFile(t, path, buf.Bytes(), compress)
}

func writeIdxLabels(t *testing.T, path string, labels []byte, compress bool) {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, binary.Write(buf, binary.BigEndian, [2]uint32{labelsMagic, uint32(len(labels))}))
	buf.Write(labels)
	writeIdxFile(t, path, buf.Bytes(), compress)
}

func writeIdxFile(t *testing.T, path string, raw []byte, compress bool) {
	t.Helper()
	if !compress {
		require.NoError(t, os.WriteFile(path, raw, 0o644))
		return
	}
	buf := &bytes.Buffer{}
	gz := gzip.NewWriter(buf)
	_, err := gz.Write(raw)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path+".gz", buf.Bytes(), 0o644))
}

func TestTrainLoadsIdxFiles(t *testing.T) {
	dir := t.TempDir()
	pixels := []byte{
		0, 128, 255, 64, // image 0, 2x2
		255, 255, 0, 0, // image 1
	}
	writeIdxImages(t, filepath.Join(dir, mnistTrainImages), pixels, 2, 2, 2, false)
	writeIdxLabels(t, filepath.Join(dir, mnistTrainLabels), []byte{3, 9}, false)

	ds, err := Train(dir)
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())

	s0, err := ds.At(0)
	require.NoError(t, err)
	assert.Equal(t, 3, s0.Label)
	assert.InDelta(t, 0.0, s0.Image[0][0], 1e-9)
	assert.InDelta(t, 128.0/255.0, s0.Image[0][1], 1e-9)
	assert.InDelta(t, 1.0, s0.Image[1][0], 1e-9)

	s1, err := ds.At(1)
	require.NoError(t, err)
	assert.Equal(t, 9, s1.Label)

	_, err = ds.At(2)
	assert.Error(t, err)
}

func TestTestLoadsGzippedFiles(t *testing.T) {
	dir := t.TempDir()
	writeIdxImages(t, filepath.Join(dir, mnistTestImages), []byte{10, 20, 30, 40}, 1, 2, 2, true)
	writeIdxLabels(t, filepath.Join(dir, mnistTestLabels), []byte{7}, true)

	ds, err := Test(dir)
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())

	s, err := ds.At(0)
	require.NoError(t, err)
	assert.Equal(t, 7, s.Label)
}

func TestLoadMNISTRejectsCountMismatch(t *testing.T) {
	dir := t.TempDir()
	writeIdxImages(t, filepath.Join(dir, mnistTrainImages), []byte{1, 2, 3, 4}, 1, 2, 2, false)
	writeIdxLabels(t, filepath.Join(dir, mnistTrainLabels), []byte{1, 2}, false)

	_, err := Train(dir)
	assert.Error(t, err)
}

func TestLoadMNISTRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	buf := &bytes.Buffer{}
	require.NoError(t, binary.Write(buf, binary.BigEndian, [4]uint32{0xdeadbeef, 1, 2, 2}))
	buf.Write([]byte{1, 2, 3, 4})
	writeIdxFile(t, filepath.Join(dir, mnistTrainImages), buf.Bytes(), false)
	writeIdxLabels(t, filepath.Join(dir, mnistTrainLabels), []byte{1}, false)

	_, err := Train(dir)
	assert.Error(t, err)
}

func TestMissingFiles(t *testing.T) {
	_, err := Train(t.TempDir())
	assert.Error(t, err)
}
