package dnn

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"gocv.io/x/gocv"

	"github.com/conservacam/fieldcam/detection"
	"github.com/conservacam/fieldcam/inference"
	"github.com/conservacam/fieldcam/logging"
)

// DefaultNMSThreshold is the IoU above which raw YOLO candidates of the same
// class are collapsed.
const DefaultNMSThreshold = 0.45

type Options struct {
	ModelPath      string // ONNX, Caffe or TensorFlow weights
	ConfigPath     string // Optional network description
	InputSize      int    // Square network input in pixels
	Instances      int    // Networks loaded, one per concurrent tile
	ScoreThreshold float64
	NMSThreshold   float64
	Labels         map[int]string
}

// TileDetector runs an OpenCV DNN model on image tiles. It keeps a pool of
// networks because a gocv.Net must not be used by two goroutines at once.
type TileDetector struct {
	nets   chan *gocv.Net
	all    []*gocv.Net
	opts   Options
	logger logging.Logger
}

// NewTileDetector loads opts.Instances copies of the model.
func NewTileDetector(opts Options, logger logging.Logger) (*TileDetector, error) {
	if opts.ModelPath == "" {
		return nil, fmt.Errorf("model path is required")
	}
	if opts.InputSize <= 0 {
		opts.InputSize = 640
	}
	if opts.Instances <= 0 {
		opts.Instances = 1
	}
	if opts.NMSThreshold <= 0 {
		opts.NMSThreshold = DefaultNMSThreshold
	}

	d := &TileDetector{
		nets:   make(chan *gocv.Net, opts.Instances),
		opts:   opts,
		logger: logging.OrNop(logger),
	}

	for i := 0; i < opts.Instances; i++ {
		net := gocv.ReadNet(opts.ModelPath, opts.ConfigPath)
		if net.Empty() {
			d.Close()
			return nil, inference.NewInferenceError("load model", opts.ModelPath, -1, "", fmt.Errorf("network is empty"))
		}

		if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
			net.Close()
			d.Close()
			return nil, fmt.Errorf("failed to set DNN backend: %w", err)
		}
		if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
			net.Close()
			d.Close()
			return nil, fmt.Errorf("failed to set DNN target: %w", err)
		}

		d.all = append(d.all, &net)
		d.nets <- &net
	}

	d.logger.Info("Detection model loaded", "model", opts.ModelPath, "instances", opts.Instances, "input_size", opts.InputSize)
	return d, nil
}

// DetectTile runs the model on img and returns boxes relative to its origin.
func (d *TileDetector) DetectTile(ctx context.Context, img image.Image) ([]detection.Prediction, error) {
	var net *gocv.Net
	select {
	case net = <-d.nets:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { d.nets <- net }()

	mat, err := gocv.ImageToMatRGB(originAligned(img))
	if err != nil {
		return nil, fmt.Errorf("failed to convert tile: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("tile is empty")
	}

	size := d.opts.InputSize
	blob := gocv.BlobFromImage(
		mat,
		1.0/255.0,                  // scalefactor
		image.Pt(size, size),       // size
		gocv.NewScalar(0, 0, 0, 0), // mean
		true,                       // swapRB, Mat is BGR
		false,                      // crop
	)
	defer blob.Close()

	net.SetInput(blob, "")
	output := net.Forward("")
	defer output.Close()

	return d.decode(output, mat.Cols(), mat.Rows())
}

// Close releases every loaded network.
func (d *TileDetector) Close() error {
	for _, net := range d.all {
		net.Close()
	}
	d.all = nil
	return nil
}

func (d *TileDetector) decode(output gocv.Mat, width, height int) ([]detection.Prediction, error) {
	dims := output.Size()

	switch {
	case len(dims) == 4 && dims[3] == 7:
		return d.decodeSSD(output, width, height), nil
	case len(dims) == 3 && dims[1] > 4:
		return d.decodeYOLO(output, dims[1], dims[2], width, height), nil
	default:
		return nil, fmt.Errorf("unsupported network output shape %v", dims)
	}
}

// decodeSSD reads [1, 1, N, 7] rows of (image, class, score, x1, y1, x2, y2)
// with normalized coordinates.
func (d *TileDetector) decodeSSD(output gocv.Mat, width, height int) []detection.Prediction {
	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	var predictions []detection.Prediction
	for i := 0; i < rows.Rows(); i++ {
		confidence := float64(rows.GetFloatAt(i, 2))
		if confidence < d.opts.ScoreThreshold {
			continue
		}
		classID := int(rows.GetFloatAt(i, 1))
		predictions = append(predictions, detection.Prediction{
			Box: detection.BoundingBox{
				MinX: float64(rows.GetFloatAt(i, 3)) * float64(width),
				MinY: float64(rows.GetFloatAt(i, 4)) * float64(height),
				MaxX: float64(rows.GetFloatAt(i, 5)) * float64(width),
				MaxY: float64(rows.GetFloatAt(i, 6)) * float64(height),
			},
			Score:        confidence,
			CategoryID:   classID,
			CategoryName: d.opts.Labels[classID],
		})
	}
	return predictions
}

// decodeYOLO reads [1, 4+C, N] anchor-free output: centre x, centre y, width
// and height in input pixels followed by one score per class.
func (d *TileDetector) decodeYOLO(output gocv.Mat, attributes, candidates, width, height int) []detection.Prediction {
	data := output.Reshape(1, attributes)
	defer data.Close()

	scaleX := float64(width) / float64(d.opts.InputSize)
	scaleY := float64(height) / float64(d.opts.InputSize)

	var predictions []detection.Prediction
	for i := 0; i < candidates; i++ {
		classID := -1
		best := float32(0)
		for c := 4; c < attributes; c++ {
			if score := data.GetFloatAt(c, i); score > best {
				best = score
				classID = c - 4
			}
		}
		if classID < 0 || float64(best) < d.opts.ScoreThreshold {
			continue
		}

		cx := float64(data.GetFloatAt(0, i)) * scaleX
		cy := float64(data.GetFloatAt(1, i)) * scaleY
		w := float64(data.GetFloatAt(2, i)) * scaleX
		h := float64(data.GetFloatAt(3, i)) * scaleY

		predictions = append(predictions, detection.Prediction{
			Box:          detection.BoundingBox{MinX: cx - w/2, MinY: cy - h/2, MaxX: cx + w/2, MaxY: cy + h/2},
			Score:        float64(best),
			CategoryID:   classID,
			CategoryName: d.opts.Labels[classID],
		})
	}

	return detection.SuppressNonMax(predictions, d.opts.NMSThreshold)
}

// originAligned returns img with its bounds starting at (0, 0).
func originAligned(img image.Image) image.Image {
	b := img.Bounds()
	if b.Min == (image.Point{}) {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
