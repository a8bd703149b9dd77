package visualization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"image"
	"net/http"
	"strconv"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/disintegration/imaging"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// DefaultCacheBytes bounds the memory held by encoded panels
const DefaultCacheBytes = 64 << 20

// Server serves the slice viewer over HTTP. It keeps no viewer state:
// each request carries the current selection, is passed through Update
// and answered with the resulting rendering.
type Server struct {
	viewer *SliceViewer
	cache  *ristretto.Cache[string, []byte]
	mux    *http.ServeMux
}

// NewServer creates a viewer server caching up to cacheBytes of encoded
// panels
func NewServer(viewer *SliceViewer, cacheBytes int64) (*Server, error) {
	if cacheBytes <= 0 {
		cacheBytes = DefaultCacheBytes
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// Roughly ten counters per expected entry
		NumCounters: max(1000, cacheBytes/(4<<10)),
		MaxCost:     cacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating panel cache")
	}

	s := &Server{viewer: viewer, cache: cache, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /state", s.handleState)
	s.mux.HandleFunc("GET /render", s.handleRender)
	s.mux.HandleFunc("GET /panel/{view}/{index}", s.handlePanel)
	return s, nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close releases the panel cache
func (s *Server) Close() {
	s.cache.Close()
}

// stateInfo describes the viewer to the page
type stateInfo struct {
	Limits [3]int      `json:"limits"`
	Views  [3]string   `json:"views"`
	Window [2]int16    `json:"window"`
	State  ViewerState `json:"state"`
}

// handleState answers /state?axial=&coronal=&sagittal=[&view=&index=] with
// the limits and the updated, clamped selection
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	ev, err := parseEvent(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	state, _ := Update(s.viewer.Limits(), parseState(r), ev)
	info := stateInfo{
		Limits: s.viewer.Limits(),
		Window: [2]int16{s.viewer.Window().Lo, s.viewer.Window().Hi},
		State:  state,
	}
	for i, v := range Views {
		info.Views[i] = v.String()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		glog.Warningf("Writing viewer state: %v", err)
	}
}

// handleRender answers /render?axial=&coronal=&sagittal=[&view=&index=]
// with the composed three panel image
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	ev, err := parseEvent(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state, cmd := Update(s.viewer.Limits(), parseState(r), ev)
	key := fmt.Sprintf("render/%d/%d/%d", state.Axial, state.Coronal, state.Sagittal)

	s.serveCached(w, key, func() (image.Image, error) {
		return s.viewer.Render(cmd)
	})
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	v, err := ParseView(r.PathValue("view"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || idx < 0 || idx >= s.viewer.Len(v) {
		http.Error(w, "index out of range", http.StatusNotFound)
		return
	}

	key := fmt.Sprintf("panel/%s/%d", v, idx)
	s.serveCached(w, key, func() (image.Image, error) {
		return s.viewer.Panel(v, idx)
	})
}

// serveCached writes the PNG stored under key, drawing and caching it first
// if needed
func (s *Server) serveCached(w http.ResponseWriter, key string, draw func() (image.Image, error)) {
	body, ok := s.cache.Get(key)
	if !ok {
		img, err := draw()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		body = buf.Bytes()
		s.cache.Set(key, body, int64(len(body)))
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if _, err := w.Write(body); err != nil {
		glog.V(2).Infof("Writing %s: %v", key, err)
	}
}

// parseEvent reads the optional view and index parameters. Without a view
// the event changes nothing.
func parseEvent(r *http.Request) (UserEvent, error) {
	q := r.URL.Query()
	name := q.Get("view")
	if name == "" {
		return UserEvent{View: -1}, nil
	}
	v, err := ParseView(name)
	if err != nil {
		return UserEvent{}, err
	}
	idx, err := strconv.Atoi(q.Get("index"))
	if err != nil {
		return UserEvent{}, fmt.Errorf("bad index %q", q.Get("index"))
	}
	return UserEvent{View: v, Index: idx}, nil
}

// parseState reads the selection from the query, missing values being 0
func parseState(r *http.Request) ViewerState {
	q := r.URL.Query()
	get := func(name string) int {
		n, _ := strconv.Atoi(q.Get(name))
		return n
	}
	return ViewerState{
		Axial:    get("axial"),
		Coronal:  get("coronal"),
		Sagittal: get("sagittal"),
	}
}

var indexTemplate = template.Must(template.New("viewer").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Slice viewer</title>
<style>
body { background: #202020; color: #ddd; font-family: sans-serif; margin: 16px; }
label { display: inline-block; width: 80px; }
input[type=range] { width: 320px; }
</style>
</head>
<body>
{{range .}}<div><label for="{{.}}">{{.}}:</label><input type="range" id="{{.}}" min="0" value="0"> <span id="{{.}}-value">0</span></div>
{{end}}<p><img id="panels" alt="slices"></p>
<script>
const views = ["axial", "coronal", "sagittal"];
const state = {axial: 0, coronal: 0, sagittal: 0};

function redraw(view, index) {
  const q = new URLSearchParams(state);
  if (view) { q.set("view", view); q.set("index", index); }
  fetch("state?" + q).then(r => r.json()).then(info => {
    Object.assign(state, info.state);
    views.forEach(v => { document.getElementById(v + "-value").textContent = state[v]; });
    document.getElementById("panels").src = "render?" + new URLSearchParams(state);
  });
}

fetch("state").then(r => r.json()).then(info => {
  views.forEach((v, i) => {
    const el = document.getElementById(v);
    el.max = info.limits[i] - 1;
    // Only redraw once the slider is released
    el.addEventListener("change", () => redraw(v, parseInt(el.value, 10)));
  });
  redraw();
});
</script>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	names := make([]string, len(Views))
	for i, v := range Views {
		names[i] = v.String()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, names); err != nil {
		glog.Warningf("Rendering viewer page: %v", err)
	}
}
