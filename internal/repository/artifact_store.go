package repository

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	domrepo "CoinCast/internal/domain/repository"
	domsvc "CoinCast/internal/domain/service"
	"CoinCast/internal/services/inference"
	applogger "CoinCast/pkg/logger"

	"github.com/klauspost/compress/gzip"
)

// FileArtifactStore loads model and scaler documents from the local
// filesystem on every call. Files ending in .gz are decompressed.
type FileArtifactStore struct {
	l       *applogger.Logger
	metrics domrepo.Metrics
	now     func() time.Time
}

func NewFileArtifactStore(l *applogger.Logger, m domrepo.Metrics) *FileArtifactStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &FileArtifactStore{l: l, metrics: m, now: time.Now}
}

// Load reads and validates both artifacts of p. Any failure wraps
// domsvc.ErrArtifactUnavailable.
func (s *FileArtifactStore) Load(ctx context.Context, p domrepo.ArtifactPaths) (*domrepo.ArtifactBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := s.now()

	model, err := decodeFile(p.Model, inference.DecodeNetwork)
	if err != nil {
		s.fail(p, "model", err)
		return nil, fmt.Errorf("%w: model %s: %w", domsvc.ErrArtifactUnavailable, p.Model, err)
	}
	scaler, err := decodeFile(p.Scaler, inference.DecodeScaler)
	if err != nil {
		s.fail(p, "scaler", err)
		return nil, fmt.Errorf("%w: scaler %s: %w", domsvc.ErrArtifactUnavailable, p.Scaler, err)
	}

	elapsed := s.now().Sub(start)
	if s.metrics != nil {
		s.metrics.RecordLatency("artifact_load", elapsed.Seconds())
	}
	s.l.Debug("artifacts loaded",
		applogger.String("coin", p.Coin),
		applogger.String("model", p.Model),
		applogger.Duration("duration_ms", elapsed),
	)
	return &domrepo.ArtifactBundle{
		Coin:     p.Coin,
		Model:    model,
		Scaler:   scaler,
		LoadedAt: s.now(),
	}, nil
}

func (s *FileArtifactStore) fail(p domrepo.ArtifactPaths, kind string, err error) {
	if s.metrics != nil {
		s.metrics.RecordError("artifact_" + kind)
	}
	s.l.Error("artifact load failed",
		applogger.String("coin", p.Coin),
		applogger.String("artifact", kind),
		applogger.Error(err),
	)
}

func decodeFile[T any](path string, decode func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return zero, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	return decode(r)
}
