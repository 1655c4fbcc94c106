package dbn

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/awalterschulze/gographviz"
)

type dotLayer struct {
	Name     string
	In, Out  int
	Kind     string
	TiedWith string
}

// ToDot renders the network architecture as a graphviz document: the layer
// stack top to bottom, with each hidden layer annotated by the RBM it shares
// its parameters with.
func (d *DBN) ToDot() string {
	g := gographviz.NewGraph()
	if err := g.SetName("G"); err != nil {
		panic(err)
	}
	g.SetDir(true)

	var buf bytes.Buffer
	add := func(id string, l *dotLayer) {
		tmpl.Execute(&buf, l)
		attrs := map[string]string{
			"fontname": "Monaco",
			"shape":    "none",
			"label":    buf.String(),
		}
		g.AddNode("G", id, attrs)
		buf.Reset()
	}

	add("input", &dotLayer{Name: "input", In: d.NIns, Out: d.NIns, Kind: "data"})
	prev := "input"
	for i, l := range d.layers {
		id := fmt.Sprintf("h%d", i)
		add(id, &dotLayer{
			Name:     id,
			In:       l.NIn,
			Out:      l.NOut,
			Kind:     "sigmoid",
			TiedWith: fmt.Sprintf("rbm%d (W, hbias shared)", i),
		})
		g.AddEdge(prev, id, true, nil)
		prev = id
	}
	add("logreg", &dotLayer{Name: "logreg", In: d.logLayer.NIn, Out: d.logLayer.NOut, Kind: "softmax"})
	g.AddEdge(prev, "logreg", true, nil)

	return g.String()
}

const tmplRaw = `<
<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0">
<TR><TD>Layer</TD><TD>{{.Name}}</TD></TR>
<TR><TD>Kind</TD><TD>{{.Kind}}</TD></TR>
<TR><TD>In</TD><TD>{{.In}}</TD></TR>
<TR><TD>Out</TD><TD>{{.Out}}</TD></TR>
{{if .TiedWith}}<TR><TD>Tied</TD><TD>{{.TiedWith}}</TD></TR>{{end}}
</TABLE>
>
`

var tmpl *template.Template

func init() {
	tmpl = template.Must(template.New("layer").Parse(tmplRaw))
}
