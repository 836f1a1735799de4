package serve

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"motioncam/video"
)

// VideoServer serves raw segment files by archive identifier.
type VideoServer struct {
	FS *video.Filesystem
}

func NewVideoServer(fs *video.Filesystem) *VideoServer {
	return &VideoServer{FS: fs}
}

func (s *VideoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := r.Form.Get("id")
	vr := s.FS.GetRecordByID(id)
	if vr == nil {
		http.Error(w, fmt.Sprintf("No record found for id %v", id), http.StatusNotFound)
		return
	}

	f, err := os.Open(vr.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Add("Content-Type", "video/mp4")
	io.Copy(w, f)
}
