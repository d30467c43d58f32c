package dataset

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MNIST idx-ubyte file names. A .gz variant of each is also accepted.
const (
	mnistTrainImages = "train-images-idx3-ubyte"
	mnistTrainLabels = "train-labels-idx1-ubyte"
	mnistTestImages  = "t10k-images-idx3-ubyte"
	mnistTestLabels  = "t10k-labels-idx1-ubyte"

	imagesMagic = 0x00000803
	labelsMagic = 0x00000801
)

// Train loads the MNIST training split from dir.
func Train(dir string) (Dataset, error) {
	return loadMNIST(dir, mnistTrainImages, mnistTrainLabels)
}

// Test loads the MNIST test split from dir.
func Test(dir string) (Dataset, error) {
	return loadMNIST(dir, mnistTestImages, mnistTestLabels)
}

// mnist holds a split fully decoded in memory. Pixels stay as bytes;
// normalization happens per sample in At.
type mnist struct {
	pixels []byte
	labels []byte
	rows   int
	cols   int
}

func (d *mnist) Len() int { return len(d.labels) }

func (d *mnist) At(i int) (Sample, error) {
	if i < 0 || i >= len(d.labels) {
		return Sample{}, fmt.Errorf("mnist: index %d out of range [0, %d)", i, len(d.labels))
	}
	img := make([][]float64, d.rows)
	base := i * d.rows * d.cols
	for r := 0; r < d.rows; r++ {
		row := make([]float64, d.cols)
		for c := 0; c < d.cols; c++ {
			row[c] = float64(d.pixels[base+r*d.cols+c]) / 255.0
		}
		img[r] = row
	}
	return Sample{Image: img, Label: int(d.labels[i])}, nil
}

func loadMNIST(dir, imagesName, labelsName string) (Dataset, error) {
	pixels, rows, cols, count, err := readImages(filepath.Join(dir, imagesName))
	if err != nil {
		return nil, err
	}
	labels, err := readLabels(filepath.Join(dir, labelsName))
	if err != nil {
		return nil, err
	}
	if len(labels) != count {
		return nil, fmt.Errorf("mnist: %d images but %d labels", count, len(labels))
	}
	return &mnist{pixels: pixels, labels: labels, rows: rows, cols: cols}, nil
}

// openIdx opens path, falling back to path.gz, transparently unzipping.
func openIdx(path string) (io.ReadCloser, error) {
	if f, err := os.Open(path); err == nil {
		return f, nil
	}
	f, err := os.Open(path + ".gz")
	if err != nil {
		return nil, fmt.Errorf("open %s(.gz): %w", path, err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("gunzip %s: %w", path, err)
	}
	return &gzReadCloser{gz: gz, f: f}, nil
}

type gzReadCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (r *gzReadCloser) Read(p []byte) (int, error) { return r.gz.Read(p) }

func (r *gzReadCloser) Close() error {
	gzErr := r.gz.Close()
	fErr := r.f.Close()
	if gzErr != nil {
		return gzErr
	}
	return fErr
}

func readImages(path string) (pixels []byte, rows, cols, count int, err error) {
	r, err := openIdx(path)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	defer r.Close()

	var header [4]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, 0, 0, 0, fmt.Errorf("read %s header: %w", base(path), err)
	}
	if header[0] != imagesMagic {
		return nil, 0, 0, 0, fmt.Errorf("%s: bad magic 0x%08x", base(path), header[0])
	}
	count = int(header[1])
	rows = int(header[2])
	cols = int(header[3])
	pixels = make([]byte, count*rows*cols)
	if _, err := io.ReadFull(r, pixels); err != nil {
		return nil, 0, 0, 0, fmt.Errorf("read %s pixels: %w", base(path), err)
	}
	return pixels, rows, cols, count, nil
}

func readLabels(path string) ([]byte, error) {
	r, err := openIdx(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var header [2]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("read %s header: %w", base(path), err)
	}
	if header[0] != labelsMagic {
		return nil, fmt.Errorf("%s: bad magic 0x%08x", base(path), header[0])
	}
	labels := make([]byte, int(header[1]))
	if _, err := io.ReadFull(r, labels); err != nil {
		return nil, fmt.Errorf("read %s labels: %w", base(path), err)
	}
	return labels, nil
}

func base(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".gz")
}
