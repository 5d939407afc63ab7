package camera

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/banshee-data/autocouple/internal/frame"
)

// ErrCameraClosed is returned by Read after Close.
var ErrCameraClosed = errors.New("camera closed")

var playbackExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// PlaybackCamera replays image files from a directory in lexical order,
// wrapping around at the end. It stands in for the sensor when re-running
// the search over frames captured on the bench.
type PlaybackCamera struct {
	mu     sync.Mutex
	files  []string
	next   int
	width  int
	height int
	closed bool
}

// OpenPlayback lists the images in dir. When width and height are positive,
// every frame read must match them.
func OpenPlayback(dir string, width, height int) (*PlaybackCamera, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("open playback dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !playbackExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files in %s", dir)
	}
	sort.Strings(files)

	return &PlaybackCamera{files: files, width: width, height: height}, nil
}

// Len returns the number of distinct frames in the playback set.
func (c *PlaybackCamera) Len() int {
	return len(c.files)
}

// Read decodes the next frame.
func (c *PlaybackCamera) Read() (*frame.Frame, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCameraClosed
	}
	path := c.files[c.next]
	c.next = (c.next + 1) % len(c.files)
	c.mu.Unlock()

	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	f, err := frame.Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if c.width > 0 && c.height > 0 && (f.Width != c.width || f.Height != c.height) {
		return nil, fmt.Errorf("%s: frame is %dx%d, camera configured for %dx%d",
			filepath.Base(path), f.Width, f.Height, c.width, c.height)
	}
	return f, nil
}

// Close releases the camera. Further reads fail.
func (c *PlaybackCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
