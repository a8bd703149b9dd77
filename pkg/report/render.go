package report

import (
	"html/template"
	"io"
	"net/http"
	"sort"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pageViews = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ctslicesto3d",
	Name:      "report_views_total",
	Help:      "Report pages served, by variant.",
}, []string{"variant"})

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Doc.Title}}</title>
<style>
body { margin: 0; font-family: sans-serif; color: #262730; display: flex; }
aside { width: 240px; min-height: 100vh; background: #f0f2f6; padding: 24px 16px; box-sizing: border-box; }
main { flex: 1; padding: 24px 48px; max-width: 900px; }
h1 { margin-bottom: 4px; }
.subtitle { color: #6b6f7b; margin-top: 0; }
.tabs { border-bottom: 1px solid #ddd; margin: 24px 0 16px; }
.tabs button { background: none; border: none; padding: 8px 16px; font-size: 15px; cursor: pointer; border-bottom: 2px solid transparent; }
.tabs button.active { border-bottom-color: #ff4b4b; color: #ff4b4b; }
section { display: none; }
section.active { display: block; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ddd; padding: 6px 10px; text-align: left; }
figure { margin: 16px 0; }
figure img { max-width: 100%; }
figcaption { color: #6b6f7b; font-size: 14px; }
</style>
</head>
<body>
<aside>
{{range .Doc.Sidebar}}<p>{{.}}</p>
{{end}}{{if .Doc.Links}}<h4>Links</h4>
<ul>
{{range .Doc.Links}}<li><a href="{{.URL}}">{{.Text}}</a></li>
{{end}}</ul>
{{end}}{{if gt (len .Variants) 1}}<h4>Versions</h4>
<ul>
{{range .Variants}}<li><a href="{{$.Base}}report/{{.}}">{{.}}</a></li>
{{end}}</ul>
{{end}}</aside>
<main>
<h1>{{.Doc.Title}}</h1>
{{with .Doc.Subtitle}}<p class="subtitle">{{.}}</p>
{{end}}<div class="tabs">
{{range $i, $s := .Doc.Sections}}<button data-tab="{{$i}}"{{if eq $i 0}} class="active"{{end}}>{{$s.Name}}</button>
{{end}}</div>
{{range $i, $s := .Doc.Sections}}<section id="tab-{{$i}}"{{if eq $i 0}} class="active"{{end}}>
{{range $s.Blocks}}{{if .Header}}<h2>{{.Header}}</h2>
{{else if .Paragraph}}<p>{{.Paragraph}}</p>
{{else if .Table}}<table>
<tr>{{range .Table.Columns}}<th>{{.}}</th>{{end}}</tr>
{{range .Table.Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
{{else if .Image}}<figure><img src="{{.Image.URL}}" alt="{{.Image.Caption}}"><figcaption>{{.Image.Caption}}</figcaption></figure>
{{end}}{{end}}</section>
{{end}}</main>
<script>
document.querySelectorAll(".tabs button").forEach(b => {
  b.addEventListener("click", () => {
    document.querySelectorAll(".tabs button, section").forEach(e => e.classList.remove("active"));
    b.classList.add("active");
    document.getElementById("tab-" + b.dataset.tab).classList.add("active");
  });
});
</script>
</body>
</html>
`))

type pageData struct {
	Doc      *Document
	Variants []string
	Base     string
}

// Render writes doc as a tabbed HTML page
func Render(w io.Writer, doc *Document) error {
	return render(w, doc, nil, "/")
}

func render(w io.Writer, doc *Document, variants []string, base string) error {
	return pageTemplate.Execute(w, pageData{Doc: doc, Variants: variants, Base: base})
}

// Handler serves report documents: "/" shows the default variant and
// "/report/{variant}" any other
type Handler struct {
	docs     map[string]*Document
	variants []string
	def      string
	mux      *http.ServeMux
}

// NewHandler creates a handler for docs, "/" showing defaultVariant
func NewHandler(docs map[string]*Document, defaultVariant string) *Handler {
	h := &Handler{docs: docs, def: defaultVariant, mux: http.NewServeMux()}
	for name := range docs {
		h.variants = append(h.variants, name)
	}
	sort.Strings(h.variants)

	h.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, h.def)
	})
	h.mux.HandleFunc("GET /report/{variant}", func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, r.PathValue("variant"))
	})
	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, variant string) {
	doc, ok := h.docs[variant]
	if !ok {
		http.NotFound(w, r)
		return
	}
	pageViews.WithLabelValues(variant).Inc()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render(w, doc, h.variants, "/"); err != nil {
		glog.Warningf("Rendering report %s: %v", variant, err)
	}
}
