package image

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRGB(t *testing.T) {
	const width, height = 4, 2
	// stride wider than width*3 to mimic padded hardware rows
	const stride = 16
	in := make([]byte, stride*height)
	in[0], in[1], in[2] = 0x11, 0x22, 0x33
	in[stride], in[stride+1], in[stride+2] = 0xaa, 0xbb, 0xcc

	img := DecodeRGB(in, width, height, stride)
	r, g, b, a := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0x11), r>>8)
	assert.Equal(t, uint32(0x22), g>>8)
	assert.Equal(t, uint32(0x33), b>>8)
	assert.Equal(t, uint32(0xff), a>>8)

	r, _, _, _ = img.At(0, 1).RGBA()
	assert.Equal(t, uint32(0xaa), r>>8)
}

func TestDecodeGrayUsesStride(t *testing.T) {
	const width, height, stride = 3, 2, 8
	in := make([]byte, stride*height)
	in[stride+1] = 0x7f

	img := DecodeGray(in, width, height, stride)
	r, _, _, _ := img.At(1, 1).RGBA()
	assert.Equal(t, uint32(0x7f), r>>8)
}

func TestEncodeJPEGRoundTrip(t *testing.T) {
	const width, height = 8, 8
	img := DecodeGray(make([]byte, width*height), width, height, width)

	var buf bytes.Buffer
	require.NoError(t, EncodeJPEG(img, &buf, 90))

	decoded, err := jpeg.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, width, decoded.Bounds().Dx())
	assert.Equal(t, height, decoded.Bounds().Dy())
}
