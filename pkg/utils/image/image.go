package image

import (
	"image"
	"image/jpeg"
	"io"
)

func RGBToRGBA(in, out []byte, width, height, stride int) {
	outStride := width * 4
	if stride <= 0 {
		stride = len(in) / height
	}

	for i := 0; i < height; i++ {
		oIndex := i * outStride
		iIndex := i * stride
		for j := 0; j < width; j++ {
			out[oIndex] = in[iIndex]
			out[oIndex+1] = in[iIndex+1]
			out[oIndex+2] = in[iIndex+2]
			out[oIndex+3] = 0xff

			oIndex += 4
			iIndex += 3
		}
	}
}

// DecodeRGB wraps packed RGB24 data with the given row stride into an image.
func DecodeRGB(data []byte, width, height, stride int) image.Image {
	i := image.NewRGBA(image.Rect(0, 0, width, height))
	RGBToRGBA(data, i.Pix, width, height, stride)

	return i
}

// DecodeGray wraps single-plane greyscale data without copying.
func DecodeGray(data []byte, width, height, stride int) image.Image {
	if stride <= 0 {
		stride = width
	}
	return &image.Gray{
		Pix:    data,
		Stride: stride,
		Rect:   image.Rect(0, 0, width, height),
	}
}

func EncodeJPEG(img image.Image, dst io.Writer, quality int) error {
	return jpeg.Encode(dst, img, &jpeg.Options{Quality: quality})
}
