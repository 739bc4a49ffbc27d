package detect

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	InputSize = 224
	Channels  = 3
)

// ErrDecode — байты не удалось декодировать как изображение.
var ErrDecode = errors.New("decode image")

// Tensor — плоский float32-буфер с формой NHWC.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Preprocess: decode -> float -> resize NN до 224x224 -> /255 -> [1,224,224,3].
// Среднее/std не вычитаются: модель MobileNet-классификатор ждёт [0,1].
func Preprocess(img []byte) (Tensor, error) {
	if len(img) == 0 {
		return Tensor{}, fmt.Errorf("%w: empty buffer", ErrDecode)
	}
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return Tensor{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return FromImage(src), nil
}

// FromImage строит тензор из уже декодированного изображения.
func FromImage(src image.Image) Tensor {
	dst := image.NewNRGBA(image.Rect(0, 0, InputSize, InputSize))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	data := make([]float32, InputSize*InputSize*Channels)
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			off := dst.PixOffset(x, y)
			i := (y*InputSize + x) * Channels
			data[i+0] = float32(dst.Pix[off+0]) / 255.0
			data[i+1] = float32(dst.Pix[off+1]) / 255.0
			data[i+2] = float32(dst.Pix[off+2]) / 255.0
		}
	}

	return Tensor{
		Shape: []int64{1, InputSize, InputSize, Channels},
		Data:  data,
	}
}
