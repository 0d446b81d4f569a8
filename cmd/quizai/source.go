package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lpf0528/quiz-ai/trace"
	"github.com/m-mizutani/goerr/v2"
)

var errTraceNotFound = goerr.New("trace not found")

// traceSummary is a lightweight representation of a trace,
// derived from file metadata without reading the file contents.
type traceSummary struct {
	TraceID   string    `json:"trace_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

type listRequest struct {
	pageSize  int
	pageToken string
}

type listResponse struct {
	traces        []traceSummary
	nextPageToken string
}

// traceSource provides access to the trace files written by
// trace.FileRepository: {dir}/{hex(thread_id)}/{trace_id}.json.
type traceSource interface {
	List(ctx context.Context, req listRequest) (*listResponse, error)
	Get(ctx context.Context, traceID string) (*trace.Trace, error)
}

type localSource struct {
	dir string
}

func newLocalSource(dir string) traceSource {
	return &localSource{dir: dir}
}

type traceFile struct {
	rel  string
	info fs.FileInfo
}

func (s *localSource) files() ([]traceFile, error) {
	var files []traceFile
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		files = append(files, traceFile{rel: filepath.ToSlash(rel), info: info})
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read trace directory", goerr.V("dir", s.dir))
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].rel < files[j].rel
	})
	return files, nil
}

func (s *localSource) List(ctx context.Context, req listRequest) (*listResponse, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}

	startIdx := 0
	if req.pageToken != "" {
		last, err := decodePageToken(req.pageToken)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid page token")
		}
		startIdx = sort.Search(len(files), func(i int) bool {
			return files[i].rel > last
		})
	}

	pageSize := req.pageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	endIdx := min(startIdx+pageSize, len(files))

	resp := &listResponse{}
	for _, f := range files[startIdx:endIdx] {
		summary := traceSummary{
			TraceID:   strings.TrimSuffix(filepath.Base(f.rel), ".json"),
			Size:      f.info.Size(),
			UpdatedAt: f.info.ModTime(),
		}
		if threadID, ok := trace.ThreadFromDir(filepath.Dir(f.rel)); ok {
			summary.ThreadID = threadID
		}
		resp.traces = append(resp.traces, summary)
	}

	if endIdx < len(files) {
		resp.nextPageToken = encodePageToken(files[endIdx-1].rel)
	}
	return resp, nil
}

func (s *localSource) Get(ctx context.Context, traceID string) (*trace.Trace, error) {
	name := filepath.Base(traceID) + ".json"
	candidates, err := filepath.Glob(filepath.Join(s.dir, "*", name))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search trace file", goerr.V("trace_id", traceID))
	}
	candidates = append(candidates, filepath.Join(s.dir, name))

	for _, path := range candidates {
		data, err := os.ReadFile(filepath.Clean(path))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read trace file", goerr.V("trace_id", traceID))
		}

		var t trace.Trace
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, goerr.Wrap(err, "failed to parse trace file", goerr.V("trace_id", traceID))
		}
		return &t, nil
	}

	return nil, goerr.Wrap(errTraceNotFound, "no trace file", goerr.V("trace_id", traceID))
}

func encodePageToken(rel string) string {
	return base64.URLEncoding.EncodeToString([]byte(rel))
}

func decodePageToken(token string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", goerr.Wrap(err, "failed to decode page token")
	}
	return string(b), nil
}
