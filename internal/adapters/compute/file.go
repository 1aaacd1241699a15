package compute

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/knadh/koanf/parsers/yaml"

	"github.com/okian/boxboard/internal/domain/normalize"
	"github.com/okian/boxboard/pkg/logger"
)

var fixtureJSON = jsoniter.Config{UseNumber: true}.Froze()

// fixture extensions in lookup order.
var extensions = []string{".json", ".yaml", ".yml"}

// FileProvider reads precomputed results from <dir>/<season>/<stat>.{json,yaml}.
// Documents may use any of the loose shapes normalize.DecodeComputeResult
// understands. An optional latency range simulates a slow upstream.
type FileProvider struct {
	dir        string
	minLatency time.Duration
	maxLatency time.Duration

	mu  sync.Mutex
	rng *rand.Rand

	logger logger.Logger
}

// FileOption configures a FileProvider.
type FileOption func(*FileProvider)

// WithLatencyRange sets the simulated compute latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) FileOption {
	return func(p *FileProvider) {
		if minLatency >= 0 && maxLatency >= minLatency {
			p.minLatency = minLatency
			p.maxLatency = maxLatency
		}
	}
}

// WithSeed makes the simulated latency deterministic.
func WithSeed(seed int64) FileOption {
	return func(p *FileProvider) {
		p.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // latency jitter only
	}
}

// NewFileProvider creates a provider rooted at dir.
func NewFileProvider(dir string, opts ...FileOption) *FileProvider {
	p := &FileProvider{
		dir:    dir,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // latency jitter only
		logger: logger.Get().Named("compute.file"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Compute loads and decodes the fixture for (seasonID, statKey).
func (p *FileProvider) Compute(ctx context.Context, seasonID int, statKey string) (*normalize.ComputeResult, error) {
	if err := validStatKey(statKey); err != nil {
		return nil, err
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	path, data, err := p.read(seasonID, statKey)
	if err != nil {
		return nil, err
	}
	doc, err := decodeDocument(path, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableInput, path, err)
	}
	res, err := normalize.DecodeComputeResult(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.logger.Debug(ctx, "fixture loaded",
		logger.String("path", path),
		logger.Int("rows", len(res.Rows)))
	return res, nil
}

// StatKeys lists the stat keys that have a fixture for the season.
func (p *FileProvider) StatKeys(seasonID int) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(p.dir, strconv.Itoa(seasonID)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !slices.Contains(extensions, ext) {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ext)
		if !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (p *FileProvider) read(seasonID int, statKey string) (string, []byte, error) {
	base := filepath.Join(p.dir, strconv.Itoa(seasonID), statKey)
	for _, ext := range extensions {
		path := base + ext
		data, err := os.ReadFile(path)
		if err == nil {
			return path, data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return path, nil, fmt.Errorf("%w: %s: %v", ErrUnreadableInput, path, err)
		}
	}
	return "", nil, fmt.Errorf("%w: season %d stat %s under %s", ErrNoFixture, seasonID, statKey, p.dir)
}

func (p *FileProvider) wait(ctx context.Context) error {
	if p.maxLatency <= 0 {
		return ctx.Err()
	}
	latency := p.minLatency
	if spread := int64(p.maxLatency - p.minLatency); spread > 0 {
		p.mu.Lock()
		latency += time.Duration(p.rng.Int63n(spread))
		p.mu.Unlock()
	}
	t := time.NewTimer(latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

func decodeDocument(path string, data []byte) (map[string]any, error) {
	if strings.HasSuffix(path, ".json") {
		var doc map[string]any
		if err := fixtureJSON.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return doc, nil
	}
	return yaml.Parser().Unmarshal(data)
}

func validStatKey(statKey string) error {
	if statKey == "" || statKey == "." || statKey == ".." || strings.ContainsAny(statKey, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidStatKey, statKey)
	}
	return nil
}
