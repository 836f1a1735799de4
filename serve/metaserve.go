package serve

import (
	"encoding/json"
	"net/http"

	"motioncam/video"
)

type MetaEntry struct {
	ID        string
	Timestamp int64

	SizeBytes   int64
	DurationSec int
}

type MetaResponse struct {
	Items []*MetaEntry

	ItemsTotalSize  int64
	ItemsCount      int
	OldestTimestamp int64
}

func toMetaEntry(r *video.SegmentRecord) *MetaEntry {
	return &MetaEntry{
		ID:          r.Identifier(),
		Timestamp:   r.Time.Unix(),
		SizeBytes:   r.Size,
		DurationSec: r.DurationSec,
	}
}

// MetaServer serves the JSON listing of the recording archive.
type MetaServer struct {
	FS *video.Filesystem
}

func (s *MetaServer) BuildResponse() *MetaResponse {
	records := s.FS.GetRecords()

	resp := &MetaResponse{}
	var sz int64
	for _, r := range records {
		resp.Items = append(resp.Items, toMetaEntry(r))
		sz += r.Size
		resp.OldestTimestamp = r.Time.Unix()
	}
	resp.ItemsTotalSize = sz
	resp.ItemsCount = len(resp.Items)
	return resp
}

func (s *MetaServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	if err := enc.Encode(s.BuildResponse()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
