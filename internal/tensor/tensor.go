package tensor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Device identifies where a tensor's storage lives. Placement is an
// explicit argument everywhere: every tensor participating in one step
// must share a device with the model.
type Device string

// CPU is the only device backed by an implementation today.
const CPU Device = "cpu"

var (
	// ErrShapeMismatch indicates incompatible tensor dimensions.
	ErrShapeMismatch = errors.New("tensor: shape mismatch")
	// ErrDeviceMismatch indicates operands on different devices.
	ErrDeviceMismatch = errors.New("tensor: device mismatch")
	// ErrEmptyBatch indicates a batch with zero samples.
	ErrEmptyBatch = errors.New("tensor: empty batch")
)

// Dense is a dense float64 tensor with an explicit device tag.
// The backing slice is row-major over the trailing dimensions.
type Dense struct {
	shape  []int
	data   []float64
	device Device
}

// New allocates a zeroed tensor with the given shape on device. A
// negative dimension is a programmer error and panics.
func New(device Device, shape ...int) *Dense {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dimension %d in shape %v", d, shape))
		}
		n *= d
	}
	return &Dense{
		shape:  append([]int(nil), shape...),
		data:   make([]float64, n),
		device: device,
	}
}

// FromSlice wraps data as a tensor with the given shape. The slice is
// used as backing storage, not copied.
func FromSlice(device Device, data []float64, shape ...int) (*Dense, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative dimension %d", ErrShapeMismatch, d)
		}
		n *= d
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: shape %v needs %d elements, have %d", ErrShapeMismatch, shape, n, len(data))
	}
	return &Dense{
		shape:  append([]int(nil), shape...),
		data:   data,
		device: device,
	}, nil
}

// FromMatrix wraps a gonum matrix as a rank-2 tensor, copying its data.
func FromMatrix(device Device, m *mat.Dense) *Dense {
	r, c := m.Dims()
	t := New(device, r, c)
	for i := 0; i < r; i++ {
		copy(t.data[i*c:(i+1)*c], m.RawRowView(i))
	}
	return t
}

// Shape returns the tensor dimensions. The caller must not mutate it.
func (t *Dense) Shape() []int { return t.shape }

// Rank returns the number of dimensions.
func (t *Dense) Rank() int { return len(t.shape) }

// Dim returns the size of dimension i.
func (t *Dense) Dim(i int) int { return t.shape[i] }

// Len returns the total number of elements.
func (t *Dense) Len() int { return len(t.data) }

// Device reports where the tensor resides.
func (t *Dense) Device() Device { return t.device }

// Data exposes the backing slice. Read paths share it; a consumer that
// would invalidate the original must Clone first.
func (t *Dense) Data() []float64 { return t.data }

// Clone returns a deep copy on the same device.
func (t *Dense) Clone() *Dense {
	c := New(t.device, t.shape...)
	copy(c.data, t.data)
	return c
}

// Reshape returns a view with a new shape sharing the backing slice.
func (t *Dense) Reshape(shape ...int) (*Dense, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(t.data) {
		return nil, fmt.Errorf("%w: cannot reshape %v to %v", ErrShapeMismatch, t.shape, shape)
	}
	return &Dense{
		shape:  append([]int(nil), shape...),
		data:   t.data,
		device: t.device,
	}, nil
}

// Matrix returns a gonum view over a rank-2 tensor, sharing storage.
func (t *Dense) Matrix() (*mat.Dense, error) {
	if len(t.shape) != 2 {
		return nil, fmt.Errorf("%w: matrix view needs rank 2, have rank %d", ErrShapeMismatch, len(t.shape))
	}
	return mat.NewDense(t.shape[0], t.shape[1], t.data), nil
}

// SameDevice reports whether both tensors reside on the same device.
func SameDevice(a, b *Dense) bool { return a.device == b.device }
