// Package merge implements the offline fusion of a session's frame
// stream with its recorded video chunks into a replay-ready dataset,
// per spec.md §4.6.
package merge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fleetlog/telemetryhub/api/pkg/objectstore"
	"github.com/fleetlog/telemetryhub/api/pkg/store"
	"github.com/fleetlog/telemetryhub/api/pkg/types"
)

// DefaultMaxTimestampDiffMS is spec.md §4.6's default alignment tolerance.
const DefaultMaxTimestampDiffMS = 50

// Request is one merge invocation's input.
type Request struct {
	SessionID          uint
	OutputDir          string
	FPSDefault         int
	MaxTimestampDiffMS int
	CameraKeys         []string
	DownloadTempDir    string
}

// Result mirrors spec.md §4.6 step 7's reported shape.
type Result struct {
	Success       bool
	TotalFrames   int
	MatchedFrames int
	SkippedFrames int
	Cameras       []string
	OutputPath    string
	DurationSec   float64
	Error         string
}

// Engine runs the merge pipeline against a frame store and an
// object store adapter capable of downloading remote video chunks.
type Engine struct {
	store   store.Store
	loader  objectstore.Downloader
	dataset DatasetWriter
}

// NewEngine wires the engine to its frame store, object store
// downloader, and dataset sink.
func NewEngine(st store.Store, loader objectstore.Downloader, dataset DatasetWriter) *Engine {
	return &Engine{store: st, loader: loader, dataset: dataset}
}

type preparedCamera struct {
	key       string
	chunk     types.VideoChunk
	extractor *FrameExtractor
}

// Merge runs the full pipeline. Errors returned from Merge are
// pipeline-fatal (steps 1-3, or a failure to start the dataset
// episode); a failure while appending or finalizing the episode is
// reported as Result{Success: false}; per-camera failures are isolated into
// Result.Cameras/Skipped per step 4's contract and never fail the
// call.
func (e *Engine) Merge(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if req.FPSDefault <= 0 {
		req.FPSDefault = 60
	}
	maxDiffMS := req.MaxTimestampDiffMS
	if maxDiffMS <= 0 {
		maxDiffMS = DefaultMaxTimestampDiffMS
	}

	session, err := e.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("merge: load session %d: %w", req.SessionID, err)
	}

	frames, err := e.store.ListFrames(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("merge: load frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("merge: session %d has no frames", req.SessionID)
	}

	chunks, err := e.store.ListVideoChunks(ctx, req.SessionID, req.CameraKeys)
	if err != nil {
		return nil, fmt.Errorf("merge: load video chunks: %w", err)
	}

	prepared := e.prepareExtractors(ctx, chunks, req.DownloadTempDir)

	fps := session.FPS
	if fps <= 0 {
		fps = req.FPSDefault
	}

	observationKeys, actionKeys := schemaFromFirstFrame(frames[0])
	cameraNames := make([]string, 0, len(prepared))
	for _, p := range prepared {
		cameraNames = append(cameraNames, p.key)
	}
	sort.Strings(cameraNames)

	episode, err := e.dataset.NewEpisode(ctx, observationKeys, actionKeys, cameraNames, fps)
	if err != nil {
		return nil, fmt.Errorf("merge: start episode: %w", err)
	}

	matched, skipped, outputPath, err := e.fuse(ctx, frames, prepared, observationKeys, actionKeys, episode)
	if err != nil {
		_ = episode.Abort(ctx)
		return &Result{Success: false, Error: err.Error(), DurationSec: time.Since(start).Seconds()}, nil
	}

	return &Result{
		Success:       true,
		TotalFrames:   len(frames),
		MatchedFrames: matched,
		SkippedFrames: skipped,
		Cameras:       cameraNames,
		OutputPath:    outputPath,
		DurationSec:   time.Since(start).Seconds(),
	}, nil
}

// prepareExtractors opens one extractor per distinct camera key,
// using each camera's first chunk (one chunk per camera, per step 4's
// stated simplification). Per-camera failures are logged and dropped,
// never propagated.
func (e *Engine) prepareExtractors(ctx context.Context, chunks []types.VideoChunk, downloadDir string) []preparedCamera {
	seen := make(map[string]bool)
	var prepared []preparedCamera

	for _, chunk := range chunks {
		if seen[chunk.CameraKey] {
			continue
		}
		seen[chunk.CameraKey] = true

		localPath, err := e.loader.Download(ctx, chunk.StoragePath, downloadDir)
		if err != nil {
			log.Warn().Err(err).Str("camera", chunk.CameraKey).Msg("merge: camera download failed, dropping camera")
			continue
		}

		extractor, err := OpenFrameExtractor(ctx, localPath)
		if err != nil {
			log.Warn().Err(err).Str("camera", chunk.CameraKey).Msg("merge: camera open failed, dropping camera")
			continue
		}

		prepared = append(prepared, preparedCamera{key: chunk.CameraKey, chunk: chunk, extractor: extractor})
	}
	return prepared
}

// fuse iterates frames in order, pulling an image per prepared camera
// when the frame's timestamp falls inside that camera's chunk span,
// and appends each fused row to episode. Per step 6/7, matched counts
// frames with at least one image; skipped counts the rest.
func (e *Engine) fuse(ctx context.Context, frames []types.Frame, prepared []preparedCamera, observationKeys, actionKeys []string, episode Episode) (matched, skipped int, outputPath string, err error) {
	for _, frame := range frames {
		frameTimestamp := float64(frame.Timestamp.UnixNano()) / 1e9

		row := DatasetFrame{
			ObservationState: extractVector(frame, "observation", observationKeys),
			Action:           extractVector(frame, "action", actionKeys),
			Images:           decodeFrameImages(ctx, frameTimestamp, prepared),
		}

		if len(row.Images) > 0 {
			matched++
		} else {
			skipped++
		}

		if err := episode.Append(ctx, row); err != nil {
			return matched, skipped, "", fmt.Errorf("merge: append frame: %w", err)
		}
	}

	outputPath, err = episode.Close(ctx)
	if err != nil {
		return matched, skipped, "", fmt.Errorf("merge: finalize episode: %w", err)
	}
	return matched, skipped, outputPath, nil
}

// decodeFrameImages runs one camera's seek+decode per goroutine via
// errgroup, since each ffmpeg invocation is an independent
// out-of-process suspension point per spec.md §5's concurrency model.
// A camera whose frame falls outside its chunk span or whose decode
// fails is simply absent from the result, never fails the group.
func decodeFrameImages(ctx context.Context, frameTimestamp float64, prepared []preparedCamera) map[string]*Frame {
	images := make([]*Frame, len(prepared))

	g, gctx := errgroup.WithContext(ctx)
	for i, cam := range prepared {
		i, cam := i, cam
		g.Go(func() error {
			relative := frameTimestamp - cam.chunk.StartTimestamp
			if relative < 0 || relative > cam.extractor.Duration() {
				return nil
			}

			frameIndex := int(math.Floor(relative * cam.extractor.FPS()))
			img, err := cam.extractor.SeekAndDecode(gctx, frameIndex)
			if err != nil {
				log.Warn().Err(err).Str("camera", cam.key).Msg("merge: frame decode failed, no image for this frame/camera")
				return nil
			}
			images[i] = img
			return nil
		})
	}
	_ = g.Wait() // per-camera errors are already logged and absorbed above

	result := make(map[string]*Frame)
	for i, img := range images {
		if img != nil {
			result[prepared[i].key] = img
		}
	}
	return result
}

// schemaFromFirstFrame defines observation.state/action's feature
// names as the first frame's sub-object keys, in the insertion order
// they appeared in that frame's source JSON, per step 6.
func schemaFromFirstFrame(first types.Frame) (observationKeys, actionKeys []string) {
	observationKeys = orderedKeysOf(first.Data, "observation")
	actionKeys = orderedKeysOf(first.Data, "action")
	return
}

func orderedKeysOf(data types.JSONMap, field string) []string {
	sub, ok := data[field].(types.OrderedObject)
	if !ok {
		return nil
	}
	return sub.Keys
}

func extractVector(frame types.Frame, field string, keys []string) []float32 {
	sub, ok := frame.Data[field].(types.OrderedObject)
	vec := make([]float32, len(keys))
	if !ok {
		return vec
	}
	for i, k := range keys {
		if v, ok := sub.Values[k].(float64); ok {
			vec[i] = float32(v)
		}
	}
	return vec
}
