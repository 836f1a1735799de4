package source

import (
	"context"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"
)

// VideoCapture reads frames from a camera device or stream URI through
// OpenCV and downsamples them to a fixed-size grayscale buffer for motion
// detection.
type VideoCapture struct {
	uri  string
	size image.Point

	cap  *gocv.VideoCapture
	raw  gocv.Mat
	gray gocv.Mat
}

func NewVideoCapture(uri string, size image.Point) (*VideoCapture, error) {
	cap, err := gocv.OpenVideoCapture(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open video capture %v: %w", uri, err)
	}
	return &VideoCapture{
		uri:  uri,
		size: size,
		cap:  cap,
		raw:  gocv.NewMat(),
		gray: gocv.NewMat(),
	}, nil
}

func (v *VideoCapture) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if ok := v.cap.Read(&v.raw); !ok || v.raw.Empty() {
		return Frame{}, fmt.Errorf("%w: read failed on %v", ErrNoFrame, v.uri)
	}
	t := time.Now()

	gocv.CvtColor(v.raw, &v.gray, gocv.ColorBGRToGray)
	if v.gray.Cols() != v.size.X || v.gray.Rows() != v.size.Y {
		gocv.Resize(v.gray, &v.gray, v.size, 0, 0, gocv.InterpolationLinear)
	}

	// Copy out of the Mat so the frame stays valid across the next Read.
	data := v.gray.ToBytes()
	buf := make([]uint8, len(data))
	copy(buf, data)

	return Frame{
		Data:   buf,
		Width:  v.size.X,
		Height: v.size.Y,
		Time:   t,
	}, nil
}

func (v *VideoCapture) Size() image.Point {
	return v.size
}

func (v *VideoCapture) Close() {
	v.cap.Close()
	v.raw.Close()
	v.gray.Close()
}
