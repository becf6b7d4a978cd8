package detection

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/conservacam/fieldcam/inference"
)

func TestSlices_WideImage(t *testing.T) {
	slices, err := Slices(1000, 600, SliceParams{SliceHeight: 512, SliceWidth: 512, OverlapHeightRatio: 0.2, OverlapWidthRatio: 0.2})
	if err != nil {
		t.Fatalf("Slices failed: %v", err)
	}

	want := []image.Rectangle{
		image.Rect(0, 0, 512, 512),
		image.Rect(410, 0, 922, 512),
		image.Rect(488, 0, 1000, 512),
		image.Rect(0, 88, 512, 600),
		image.Rect(410, 88, 922, 600),
		image.Rect(488, 88, 1000, 600),
	}
	if len(slices) != len(want) {
		t.Fatalf("got %d slices %v, want %d", len(slices), slices, len(want))
	}
	for i := range want {
		if slices[i] != want[i] {
			t.Errorf("slice %d = %v, want %v", i, slices[i], want[i])
		}
	}
}

func TestSlices_SmallImageIsOneSlice(t *testing.T) {
	slices, err := Slices(300, 200, SliceParams{SliceHeight: 512, SliceWidth: 512, OverlapHeightRatio: 0.7, OverlapWidthRatio: 0.7})
	if err != nil {
		t.Fatal(err)
	}
	if len(slices) != 1 || slices[0] != image.Rect(0, 0, 300, 200) {
		t.Errorf("slices = %v, want one full-image slice", slices)
	}
}

func TestSlices_CoverWholeImage(t *testing.T) {
	width, height := 4056, 3040
	slices, err := Slices(width, height, SliceParams{SliceHeight: 512, SliceWidth: 512, OverlapHeightRatio: 0.7, OverlapWidthRatio: 0.7})
	if err != nil {
		t.Fatal(err)
	}

	covered := image.Rectangle{}
	for _, s := range slices {
		if s.Dx() != 512 || s.Dy() != 512 {
			t.Fatalf("slice %v is not full size", s)
		}
		if !s.In(image.Rect(0, 0, width, height)) {
			t.Fatalf("slice %v leaves the image", s)
		}
		covered = covered.Union(s)
	}
	if covered != image.Rect(0, 0, width, height) {
		t.Errorf("slices cover %v", covered)
	}
}

func TestSlices_InvalidParams(t *testing.T) {
	cases := []SliceParams{
		{SliceHeight: 0, SliceWidth: 512},
		{SliceHeight: 512, SliceWidth: 512, OverlapHeightRatio: 1},
		{SliceHeight: 512, SliceWidth: 512, OverlapWidthRatio: -0.1},
	}
	for _, p := range cases {
		if _, err := Slices(100, 100, p); err == nil {
			t.Errorf("Slices with %+v should fail", p)
		}
	}
	if _, err := Slices(0, 100, SliceParams{SliceHeight: 10, SliceWidth: 10}); err == nil {
		t.Error("empty image should fail")
	}
}

func TestBoundingBoxIOS(t *testing.T) {
	big := BoundingBox{0, 0, 100, 100}
	inner := BoundingBox{10, 10, 30, 30}
	apart := BoundingBox{200, 200, 210, 210}

	if got := big.IOS(inner); got != 1 {
		t.Errorf("IOS of contained box = %v, want 1", got)
	}
	if got := big.IOS(apart); got != 0 {
		t.Errorf("IOS of disjoint boxes = %v, want 0", got)
	}
	if got := (BoundingBox{}).IOS(big); got != 0 {
		t.Errorf("IOS with empty box = %v, want 0", got)
	}
}

func TestBoundingBoxIOU(t *testing.T) {
	a := BoundingBox{0, 0, 10, 10}
	b := BoundingBox{5, 0, 15, 10}

	if got := a.IOU(b); got != 50.0/150.0 {
		t.Errorf("IOU = %v, want %v", got, 50.0/150.0)
	}
	if got := a.IOU(a); got != 1 {
		t.Errorf("IOU with itself = %v, want 1", got)
	}
	if got := (BoundingBox{}).IOU(BoundingBox{}); got != 0 {
		t.Errorf("IOU of empty boxes = %v, want 0", got)
	}
}

func TestSuppressNonMax(t *testing.T) {
	predictions := []Prediction{
		{Box: BoundingBox{0, 0, 10, 10}, Score: 0.7, CategoryID: 0},
		{Box: BoundingBox{1, 1, 11, 11}, Score: 0.9, CategoryID: 0},
		{Box: BoundingBox{1, 1, 11, 11}, Score: 0.8, CategoryID: 1},
		{Box: BoundingBox{50, 50, 60, 60}, Score: 0.4, CategoryID: 0},
	}

	kept := SuppressNonMax(predictions, 0.45)
	if len(kept) != 3 {
		t.Fatalf("expected 3 predictions, got %d: %+v", len(kept), kept)
	}
	if kept[0].Score != 0.9 || kept[1].CategoryID != 1 || kept[2].Score != 0.4 {
		t.Errorf("unexpected order or survivors: %+v", kept)
	}
	if got := SuppressNonMax(nil, 0.5); len(got) != 0 {
		t.Errorf("expected no predictions, got %d", len(got))
	}
}

func TestMergeGreedy(t *testing.T) {
	predictions := []Prediction{
		{Box: BoundingBox{0, 0, 50, 50}, Score: 0.6, CategoryID: 0},
		{Box: BoundingBox{10, 10, 60, 60}, Score: 0.9, CategoryID: 0},
		{Box: BoundingBox{10, 10, 60, 60}, Score: 0.8, CategoryID: 1},
		{Box: BoundingBox{300, 300, 320, 320}, Score: 0.7, CategoryID: 0},
	}

	merged := MergeGreedy(predictions, 0.5)
	if len(merged) != 3 {
		t.Fatalf("got %d predictions %+v, want 3", len(merged), merged)
	}

	top := merged[0]
	if top.Score != 0.9 || top.CategoryID != 0 {
		t.Errorf("top prediction = %+v", top)
	}
	if top.Box != (BoundingBox{0, 0, 60, 60}) {
		t.Errorf("merged box = %+v, want union", top.Box)
	}
	if merged[1].CategoryID != 1 {
		t.Error("predictions of different categories must not merge")
	}
	if merged[2].Box != predictions[3].Box {
		t.Errorf("distant prediction changed: %+v", merged[2].Box)
	}
}

func TestMergeGreedy_Empty(t *testing.T) {
	if got := MergeGreedy(nil, 0.5); len(got) != 0 {
		t.Errorf("MergeGreedy(nil) = %v", got)
	}
}

// brightTileDetector reports the bounding box of bright pixels in a tile.
type brightTileDetector struct {
	calls atomic.Int32
	err   error
}

func (d *brightTileDetector) DetectTile(ctx context.Context, img image.Image) ([]Prediction, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}

	b := img.Bounds()
	found := false
	var box BoundingBox
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			if r < 0xC000 {
				continue
			}
			px, py := float64(x-b.Min.X), float64(y-b.Min.Y)
			if !found {
				box = BoundingBox{px, py, px + 1, py + 1}
				found = true
				continue
			}
			box = box.Union(BoundingBox{px, py, px + 1, py + 1})
		}
	}
	if !found {
		return nil, nil
	}

	// Objects cut by a tile edge get a lower score
	score := 0.9
	if box.MinX == 0 || box.MinY == 0 || box.MaxX == float64(b.Dx()) || box.MaxY == float64(b.Dy()) {
		score = 0.55
	}
	return []Prediction{
		{Box: box, Score: score, CategoryID: 0},
		{Box: box, Score: 0.1, CategoryID: 2},
	}, nil
}

func writeTestImage(t *testing.T, dir, name string, width, height int, target image.Rectangle) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{A: 255}
			if (image.Point{x, y}).In(target) {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func testSlicedOptions() SlicedOptions {
	return SlicedOptions{
		Slice:               SliceParams{SliceHeight: 512, SliceWidth: 512, OverlapHeightRatio: 0.2, OverlapWidthRatio: 0.2},
		ConfidenceThreshold: 0.5,
		MatchThreshold:      0.5,
		FullImagePass:       true,
		Labels:              map[int]string{0: "animal", 1: "person", 2: "vehicle"},
	}
}

func TestSlicedDetector_MergesAcrossTiles(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), "survey.png", 1000, 600, image.Rect(600, 300, 640, 340))
	tiles := &brightTileDetector{}

	detector, err := NewSlicedDetector(tiles, testSlicedOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}

	result, err := detector.Detect(context.Background(), path)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if result.Width != 1000 || result.Height != 600 {
		t.Errorf("image size = %dx%d", result.Width, result.Height)
	}
	if got := tiles.calls.Load(); got != 7 {
		t.Errorf("tile detector called %d times, want 6 slices + full image", got)
	}
	if len(result.Predictions) != 1 {
		t.Fatalf("got %d predictions %+v, want 1", len(result.Predictions), result.Predictions)
	}

	p := result.Predictions[0]
	if p.Box != (BoundingBox{600, 300, 640, 340}) {
		t.Errorf("box = %+v", p.Box)
	}
	if p.Score != 0.9 || p.CategoryName != "animal" {
		t.Errorf("prediction = %+v", p)
	}
}

func TestSlicedDetector_NoFullPassForSingleSlice(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), "small.png", 300, 200, image.Rect(10, 10, 20, 20))
	tiles := &brightTileDetector{}
	detector, _ := NewSlicedDetector(tiles, testSlicedOptions(), nil)

	if _, err := detector.Detect(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if got := tiles.calls.Load(); got != 1 {
		t.Errorf("tile detector called %d times, want 1", got)
	}
}

func TestSlicedDetector_Errors(t *testing.T) {
	dir := t.TempDir()
	detector, _ := NewSlicedDetector(&brightTileDetector{}, testSlicedOptions(), nil)

	notImage := filepath.Join(dir, "broken.jpg")
	if err := os.WriteFile(notImage, []byte("not a jpeg"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := detector.Detect(context.Background(), notImage); !inference.IsInferenceError(err) {
		t.Errorf("undecodable image should be an InferenceError, got %v", err)
	}

	path := writeTestImage(t, dir, "ok.png", 64, 64, image.Rect(0, 0, 1, 1))
	failing, _ := NewSlicedDetector(&brightTileDetector{err: errors.New("model not loaded")}, testSlicedOptions(), nil)
	if _, err := failing.Detect(context.Background(), path); !inference.IsInferenceError(err) {
		t.Errorf("model failure should be an InferenceError, got %v", err)
	}
}

func TestWritePredictions_COCOFormat(t *testing.T) {
	dir := t.TempDir()
	result := &Result{
		ImagePath: "/data/IMG_8716.JPG",
		Predictions: []Prediction{
			{Box: BoundingBox{10, 20, 40, 60}, Score: 0.87, CategoryID: 0, CategoryName: "animal"},
		},
	}

	path, err := WritePredictions(dir, result)
	if err != nil {
		t.Fatalf("WritePredictions failed: %v", err)
	}
	if path != filepath.Join(dir, "IMG_8716_detections.json") {
		t.Errorf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  {\n    \"image_id\": null,") {
		t.Errorf("unexpected layout:\n%s", data)
	}

	var annotations []map[string]any
	if err := json.Unmarshal(data, &annotations); err != nil {
		t.Fatal(err)
	}
	a := annotations[0]
	bbox := a["bbox"].([]any)
	if bbox[0] != 10.0 || bbox[1] != 20.0 || bbox[2] != 30.0 || bbox[3] != 40.0 {
		t.Errorf("bbox = %v, want [10 20 30 40]", bbox)
	}
	if a["area"] != 1200.0 || a["iscrowd"] != 0.0 || a["category_name"] != "animal" {
		t.Errorf("annotation = %v", a)
	}
	if seg, ok := a["segmentation"].([]any); !ok || len(seg) != 0 {
		t.Errorf("segmentation = %v, want []", a["segmentation"])
	}
}

func TestWritePredictions_EmptyIsArray(t *testing.T) {
	dir := t.TempDir()
	path, err := WritePredictions(dir, &Result{ImagePath: "a.jpg", Predictions: []Prediction{}})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "[]" {
		t.Errorf("empty result written as %q", data)
	}
}

func TestOutputPaths(t *testing.T) {
	if got := VisualizationPath("out", "/x/y/c.JPG"); got != filepath.Join("out", "c_detections.jpg") {
		t.Errorf("VisualizationPath = %s", got)
	}
	if got := ImageStem("archive.tar.png"); got != "archive.tar" {
		t.Errorf("ImageStem = %s", got)
	}
}

type fakeRunner struct {
	args     []string
	output   []byte
	exitCode int
	err      error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	f.args = append([]string{name}, args...)
	return f.output, f.exitCode, f.err
}

func TestExecDetector(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), "frame.png", 32, 16, image.Rect(0, 0, 1, 1))
	runner := &fakeRunner{output: []byte(`[{"image_id": null, "bbox": [1, 2, 3, 4], "score": 0.7, "category_id": 1, "category_name": ""}]`)}

	detector, err := NewExecDetector([]string{"python", "sahi_predict.py", "--image={image}"}, runner, map[int]string{1: "person"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	result, err := detector.Detect(context.Background(), path)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if runner.args[2] != "--image="+path {
		t.Errorf("placeholder not replaced: %v", runner.args)
	}
	if result.Width != 32 || result.Height != 16 {
		t.Errorf("size = %dx%d", result.Width, result.Height)
	}
	p := result.Predictions[0]
	if p.Box != (BoundingBox{1, 2, 4, 6}) || p.CategoryName != "person" {
		t.Errorf("prediction = %+v", p)
	}
}

func TestExecDetector_Failures(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), "frame.png", 8, 8, image.Rect(0, 0, 1, 1))

	failing, _ := NewExecDetector([]string{"detect"}, &fakeRunner{exitCode: 1, err: errors.New("exit status 1")}, nil, nil)
	if _, err := failing.Detect(context.Background(), path); !inference.IsInferenceError(err) {
		t.Errorf("non-zero exit should be an InferenceError, got %v", err)
	}

	garbage, _ := NewExecDetector([]string{"detect"}, &fakeRunner{output: []byte("oops")}, nil, nil)
	if _, err := garbage.Detect(context.Background(), path); !inference.IsInferenceError(err) {
		t.Errorf("unparsable output should be an InferenceError, got %v", err)
	}

	if args := garbage.Args("a.jpg"); strings.Join(args, " ") != "detect a.jpg" {
		t.Errorf("image should be appended without placeholder, got %v", args)
	}

	if _, err := NewExecDetector(nil, nil, nil, nil); err == nil {
		t.Error("empty command should fail")
	}
}
